package mock

import (
	"time"

	"github.com/DrSkyle/wastewatch/pkg/engine/metrics"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

const gib = 1 << 30

// DemoRegions are the regions Demo populates.
var DemoRegions = []string{"us-east-1", "eu-west-1"}

// Demo returns a provider seeded with a small account in which every default
// rule has something to find. Samples cover the 30 days before now.
func Demo(now time.Time) *Provider {
	p := New()
	const days = 30

	add := func(t resource.Type, id, region string, ageDays int, attrs map[string]resource.Value) string {
		d := resource.NewDescriptor(t, id, region, now.AddDate(0, 0, -ageDays), now, attrs)
		p.AddResource(d)
		return d.Key()
	}

	orders := add(resource.DynamoDBTable, "orders", "us-east-1", 400, map[string]resource.Value{
		resource.AttrTableName:     resource.String("orders"),
		resource.AttrBillingMode:   resource.String(resource.BillingProvisioned),
		resource.AttrReadCapacity:  resource.Number(500),
		resource.AttrWriteCapacity: resource.Number(200),
		resource.AttrSizeBytes:     resource.Number(8 * gib),
		resource.AttrAutoscaling:   resource.Bool(false),
		resource.AttrTTLEnabled:    resource.Bool(true),
		resource.AttrPITREnabled:   resource.Bool(false),
		resource.AttrStreamEnabled: resource.Bool(false),
	})
	p.AddDaily(orders, "ConsumedReadCapacityUnits", metrics.StatAverage, now, wave(days, 12, 4)...)
	p.AddDaily(orders, "ConsumedWriteCapacityUnits", metrics.StatAverage, now, wave(days, 5, 2)...)

	// No samples at all: never read, never written.
	add(resource.DynamoDBTable, "legacy-sessions", "us-east-1", 900, map[string]resource.Value{
		resource.AttrTableName:     resource.String("legacy-sessions"),
		resource.AttrBillingMode:   resource.String(resource.BillingProvisioned),
		resource.AttrReadCapacity:  resource.Number(25),
		resource.AttrWriteCapacity: resource.Number(25),
		resource.AttrSizeBytes:     resource.Number(40 * gib),
		resource.AttrAutoscaling:   resource.Bool(false),
		resource.AttrTTLEnabled:    resource.Bool(false),
		resource.AttrPITREnabled:   resource.Bool(true),
		resource.AttrStreamEnabled: resource.Bool(false),
	})

	clicks := add(resource.DynamoDBTable, "clickstream", "us-east-1", 120, map[string]resource.Value{
		resource.AttrTableName:     resource.String("clickstream"),
		resource.AttrBillingMode:   resource.String(resource.BillingPayPerRequest),
		resource.AttrSizeBytes:     resource.Number(2 * gib),
		resource.AttrTTLEnabled:    resource.Bool(true),
		resource.AttrStreamEnabled: resource.Bool(true),
	})
	p.AddDaily(clicks, "ConsumedWriteCapacityUnits", metrics.StatAverage, now, wave(days, 40, 10)...)

	index := add(resource.DynamoDBGSI, "orders/by-status", "us-east-1", 400, map[string]resource.Value{
		resource.AttrTableName:     resource.String("orders"),
		resource.AttrIndexName:     resource.String("by-status"),
		resource.AttrBillingMode:   resource.String(resource.BillingProvisioned),
		resource.AttrReadCapacity:  resource.Number(50),
		resource.AttrWriteCapacity: resource.Number(50),
		resource.AttrSizeBytes:     resource.Number(3 * gib),
	})
	p.AddDaily(index, "ConsumedWriteCapacityUnits", metrics.StatAverage, now, wave(days, 5, 2)...)

	add(resource.APIGatewayStage, "a1b2c3/dev", "us-east-1", 200, map[string]resource.Value{
		resource.AttrRestAPIID:    resource.String("a1b2c3"),
		resource.AttrRestAPIName:  resource.String("storefront"),
		resource.AttrStageName:    resource.String("dev"),
		resource.AttrCacheEnabled: resource.Bool(true),
		resource.AttrCacheSizeGB:  resource.Number(0.5),
	})

	prod := add(resource.APIGatewayStage, "a1b2c3/prod", "us-east-1", 200, map[string]resource.Value{
		resource.AttrRestAPIID:    resource.String("a1b2c3"),
		resource.AttrRestAPIName:  resource.String("storefront"),
		resource.AttrStageName:    resource.String("prod"),
		resource.AttrCacheEnabled: resource.Bool(true),
		resource.AttrCacheSizeGB:  resource.Number(6.1),
	})
	p.AddDaily(prod, "Count", metrics.StatSum, now, wave(days, 200000, 50000)...)
	p.AddDaily(prod, "CacheHitCount", metrics.StatSum, now, wave(days, 4000, 1000)...)
	p.AddDaily(prod, "CacheMissCount", metrics.StatSum, now, wave(days, 196000, 49000)...)

	api := add(resource.FargateService, "web/api", "us-east-1", 300, map[string]resource.Value{
		resource.AttrCluster:          resource.String("web"),
		resource.AttrServiceName:      resource.String("api"),
		resource.AttrDesiredCount:     resource.Number(4),
		resource.AttrRunningCount:     resource.Number(4),
		resource.AttrTaskVCPU:         resource.Number(2),
		resource.AttrTaskMemoryGB:     resource.Number(8),
		resource.AttrCapacityProvider: resource.String(resource.CapacityFargate),
		resource.AttrLogGroup:         resource.String("/ecs/web/api"),
		resource.AttrLogRetentionDays: resource.Number(0),
		resource.AttrLogStoredBytes:   resource.Number(120 * gib),
	})
	p.AddDaily(api, "CPUUtilization", metrics.StatAverage, now, wave(days, 5, 2)...)
	p.AddDaily(api, "CPUUtilizationPeak", metrics.StatMaximum, now, wave(days, 10, 2)...)
	p.AddDaily(api, "MemoryUtilization", metrics.StatAverage, now, wave(days, 10, 3)...)
	p.AddDaily(api, "MemoryUtilizationPeak", metrics.StatMaximum, now, wave(days, 15, 3)...)
	p.AddDaily(api, "LogIncomingBytes", metrics.StatSum, now, wave(days, 100<<20, 20<<20)...)

	worker := add(resource.FargateService, "batch/worker", "us-east-1", 90, map[string]resource.Value{
		resource.AttrCluster:          resource.String("batch"),
		resource.AttrServiceName:      resource.String("worker"),
		resource.AttrDesiredCount:     resource.Number(1),
		resource.AttrRunningCount:     resource.Number(1),
		resource.AttrTaskVCPU:         resource.Number(1),
		resource.AttrTaskMemoryGB:     resource.Number(2),
		resource.AttrCapacityProvider: resource.String(resource.CapacityFargateSpot),
	})
	p.AddDaily(worker, "CPUUtilization", metrics.StatAverage, now, wave(days, 0.2, 0.05)...)
	p.AddDaily(worker, "CPUUtilizationPeak", metrics.StatMaximum, now, wave(days, 0.4, 0.1)...)
	p.AddDaily(worker, "MemoryUtilization", metrics.StatAverage, now, wave(days, 40, 5)...)
	p.AddDaily(worker, "MemoryUtilizationPeak", metrics.StatMaximum, now, wave(days, 50, 5)...)

	// Mostly quiet reads with one daily spike: a better fit for on-demand.
	reads := wave(days, 3, 1)
	reads[days/2] = 80
	eu := add(resource.DynamoDBTable, "orders-eu", "eu-west-1", 365, map[string]resource.Value{
		resource.AttrTableName:     resource.String("orders-eu"),
		resource.AttrBillingMode:   resource.String(resource.BillingProvisioned),
		resource.AttrReadCapacity:  resource.Number(100),
		resource.AttrWriteCapacity: resource.Number(10),
		resource.AttrSizeBytes:     resource.Number(1 * gib),
		resource.AttrAutoscaling:   resource.Bool(false),
		resource.AttrTTLEnabled:    resource.Bool(true),
		resource.AttrPITREnabled:   resource.Bool(false),
		resource.AttrStreamEnabled: resource.Bool(false),
	})
	p.AddDaily(eu, "ConsumedReadCapacityUnits", metrics.StatAverage, now, reads...)
	p.AddDaily(eu, "ConsumedWriteCapacityUnits", metrics.StatAverage, now, wave(days, 5, 1)...)

	return p
}

// wave returns n values oscillating around base by ±amp with a weekly period.
func wave(n int, base, amp float64) []float64 {
	pattern := []float64{0, 0.5, 1, 0.5, 0, -0.5, -1}
	out := make([]float64, n)
	for i := range out {
		out[i] = base + amp*pattern[i%len(pattern)]
	}
	return out
}
