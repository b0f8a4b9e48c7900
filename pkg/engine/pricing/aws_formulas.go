package pricing

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// Price keys used by the built-in formulas.
const (
	KeyDynamoRCUHour        = "dynamodb.rcu_hour"
	KeyDynamoWCUHour        = "dynamodb.wcu_hour"
	KeyDynamoReplicatedWCU  = "dynamodb.replicated_wcu_hour"
	KeyDynamoReadMillion    = "dynamodb.read_request_million"
	KeyDynamoWriteMillion   = "dynamodb.write_request_million"
	KeyDynamoStorageGBMonth = "dynamodb.storage_gb_month"
	KeyDynamoIAStorageGB    = "dynamodb.storage_ia_gb_month"
	KeyDynamoPITRGBMonth    = "dynamodb.pitr_gb_month"
	KeyAPIRequestsMillion   = "apigateway.requests_million"
	KeyAPICacheHourPrefix   = "apigateway.cache_hour."
	KeyFargateVCPUHour      = "fargate.vcpu_hour"
	KeyFargateGBHour        = "fargate.gb_hour"
	KeyFargateSpotVCPUHour  = "fargate_spot.vcpu_hour"
	KeyFargateSpotGBHour    = "fargate_spot.gb_hour"
	KeyLogsStorageGBMonth   = "logs.storage_gb_month"
)

func dynamoCapacity(m *meter, desc resource.Descriptor) {
	mode, _ := desc.Text(resource.AttrBillingMode)
	if mode == resource.BillingPayPerRequest {
		reads, _ := desc.Number(resource.AttrMonthlyReadUnits)
		writes, _ := desc.Number(resource.AttrMonthlyWriteUnits)
		m.add(reads/1e6, KeyDynamoReadMillion)
		m.add(writes/1e6, KeyDynamoWriteMillion)
		return
	}
	rcu, _ := desc.Number(resource.AttrReadCapacity)
	wcu, _ := desc.Number(resource.AttrWriteCapacity)
	m.hourly(rcu, KeyDynamoRCUHour)
	m.hourly(wcu, KeyDynamoWCUHour)
}

func dynamoDBTableCost(desc resource.Descriptor, book *Book) (decimal.Decimal, error) {
	m := newMeter(book, desc.Region)
	dynamoCapacity(m, desc)

	if replicas, _ := desc.Number(resource.AttrReplicaCount); replicas > 0 {
		wcu, _ := desc.Number(resource.AttrWriteCapacity)
		m.hourly(replicas*wcu, KeyDynamoReplicatedWCU)
	}

	size, _ := desc.Number(resource.AttrSizeBytes)
	storageKey := KeyDynamoStorageGBMonth
	if class, _ := desc.Text(resource.AttrTableClass); class == "STANDARD_INFREQUENT_ACCESS" {
		storageKey = KeyDynamoIAStorageGB
	}
	m.add(gib(size), storageKey)
	if desc.Flag(resource.AttrPITREnabled) {
		m.add(gib(size), KeyDynamoPITRGBMonth)
	}

	total, err := m.result()
	if err != nil {
		return total, formulaError(desc, err)
	}
	return total, nil
}

func dynamoDBIndexCost(desc resource.Descriptor, book *Book) (decimal.Decimal, error) {
	m := newMeter(book, desc.Region)
	dynamoCapacity(m, desc)
	size, _ := desc.Number(resource.AttrSizeBytes)
	m.add(gib(size), KeyDynamoStorageGBMonth)

	total, err := m.result()
	if err != nil {
		return total, formulaError(desc, err)
	}
	return total, nil
}

func apiGatewayStageCost(desc resource.Descriptor, book *Book) (decimal.Decimal, error) {
	m := newMeter(book, desc.Region)
	if desc.Flag(resource.AttrCacheEnabled) {
		size, err := requireNumber(desc, resource.AttrCacheSizeGB)
		if err != nil {
			return decimal.Zero, err
		}
		m.hourly(1, KeyAPICacheHourPrefix+strconv.FormatFloat(size, 'f', -1, 64))
	}
	calls, _ := desc.Number(resource.AttrMonthlyCalls)
	m.add(calls/1e6, KeyAPIRequestsMillion)

	total, err := m.result()
	if err != nil {
		return total, formulaError(desc, err)
	}
	return total, nil
}

func fargateServiceCost(desc resource.Descriptor, book *Book) (decimal.Decimal, error) {
	count, err := requireNumber(desc, resource.AttrDesiredCount)
	if err != nil {
		return decimal.Zero, err
	}
	vcpu, err := requireNumber(desc, resource.AttrTaskVCPU)
	if err != nil {
		return decimal.Zero, err
	}
	mem, err := requireNumber(desc, resource.AttrTaskMemoryGB)
	if err != nil {
		return decimal.Zero, err
	}

	vcpuKey, gbKey := KeyFargateVCPUHour, KeyFargateGBHour
	if provider, _ := desc.Text(resource.AttrCapacityProvider); provider == resource.CapacityFargateSpot {
		vcpuKey, gbKey = KeyFargateSpotVCPUHour, KeyFargateSpotGBHour
	}

	m := newMeter(book, desc.Region)
	m.hourly(count*vcpu, vcpuKey)
	m.hourly(count*mem, gbKey)
	stored, _ := desc.Number(resource.AttrLogStoredBytes)
	m.add(gib(stored), KeyLogsStorageGBMonth)

	total, err := m.result()
	if err != nil {
		return total, formulaError(desc, err)
	}
	return total, nil
}
