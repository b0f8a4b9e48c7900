package resource

// Attribute keys shared by adapters, rules and pricing formulas.
const (
	AttrBillingMode       = "billing_mode"
	AttrReadCapacity      = "provisioned_read_capacity"
	AttrWriteCapacity     = "provisioned_write_capacity"
	AttrSizeBytes         = "size_bytes"
	AttrItemCount         = "item_count"
	AttrTableClass        = "table_class"
	AttrPITREnabled       = "pitr_enabled"
	AttrStreamEnabled     = "stream_enabled"
	AttrStreamLabel       = "stream_label"
	AttrTTLEnabled        = "ttl_enabled"
	AttrAutoscaling       = "autoscaling_enabled"
	AttrReplicaCount      = "replica_count"
	AttrGSICount          = "gsi_count"
	AttrTableName         = "table_name"
	AttrIndexName         = "index_name"
	AttrMonthlyReadUnits  = "monthly_read_request_units"
	AttrMonthlyWriteUnits = "monthly_write_request_units"

	AttrRestAPIID      = "rest_api_id"
	AttrRestAPIName    = "rest_api_name"
	AttrStageName      = "stage_name"
	AttrCacheEnabled   = "cache_cluster_enabled"
	AttrCacheSizeGB    = "cache_cluster_size_gb"
	AttrTracingEnabled = "tracing_enabled"
	AttrMonthlyCalls   = "monthly_requests"

	AttrCluster          = "cluster"
	AttrServiceName      = "service_name"
	AttrDesiredCount     = "desired_count"
	AttrRunningCount     = "running_count"
	AttrTaskVCPU         = "task_vcpu"
	AttrTaskMemoryGB     = "task_memory_gb"
	AttrCapacityProvider = "capacity_provider"
	AttrCPUArchitecture  = "cpu_architecture"
	AttrLogGroup         = "log_group"
	AttrLogRetentionDays = "log_retention_days"
	AttrLogStoredBytes   = "log_stored_bytes"
)

const (
	BillingProvisioned   = "PROVISIONED"
	BillingPayPerRequest = "PAY_PER_REQUEST"

	CapacityFargate     = "FARGATE"
	CapacityFargateSpot = "FARGATE_SPOT"
)
