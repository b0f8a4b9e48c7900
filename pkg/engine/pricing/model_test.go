package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/engine/metrics"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

var observed = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

const testPricing = `
books:
  - version: "2025-01"
    effective_from: 2025-01-01
    prices:
      "*":
        dynamodb.rcu_hour: "0.0001"
        dynamodb.wcu_hour: "0.0006"
        dynamodb.storage_gb_month: "0.25"
  - version: "2026-01"
    effective_from: 2026-01-01
    currency: USD
    prices:
      "*":
        dynamodb.rcu_hour: "0.00013"
        dynamodb.wcu_hour: "0.00065"
        dynamodb.storage_gb_month: "0.25"
        dynamodb.pitr_gb_month: "0.20"
        fargate.vcpu_hour: "0.04048"
        fargate.gb_hour: "0.004445"
      eu-west-1:
        dynamodb.rcu_hour: "0.000147"
formulas:
  - resource_type: aws_sqs_queue
    terms:
      - attribute: monthly_requests
        price: sqs.requests_million
        divisor: 1000000
`

func testModel(t *testing.T, opts ...ModelOption) *Model {
	t.Helper()
	cfg, err := Parse([]byte(testPricing))
	require.NoError(t, err)
	return NewModel(cfg.Registry(), cfg.Catalog, opts...)
}

func table(region string, attrs map[string]resource.Value) resource.Descriptor {
	return resource.NewDescriptor(resource.DynamoDBTable, "orders", region, observed.AddDate(-1, 0, 0), observed, attrs)
}

func TestEstimateProvisionedTable(t *testing.T) {
	m := testModel(t)
	desc := table("us-east-1", map[string]resource.Value{
		resource.AttrBillingMode:   resource.String(resource.BillingProvisioned),
		resource.AttrReadCapacity:  resource.Number(500),
		resource.AttrWriteCapacity: resource.Number(200),
	})

	cost, err := m.EstimateCurrentCost(desc)
	require.NoError(t, err)
	// 500*0.00013*730 + 200*0.00065*730
	assert.True(t, cost.Equal(decimal.RequireFromString("142.35")), cost.String())
	assert.Equal(t, "2026-01", m.BookVersion(desc))
}

func TestEstimateUsesRegionalPrice(t *testing.T) {
	m := testModel(t)
	desc := table("eu-west-1", map[string]resource.Value{
		resource.AttrBillingMode:  resource.String(resource.BillingProvisioned),
		resource.AttrReadCapacity: resource.Number(100),
	})
	cost, err := m.EstimateCurrentCost(desc)
	require.NoError(t, err)
	assert.True(t, cost.Equal(decimal.RequireFromString("10.731")), cost.String())
}

func TestEstimateOptimizedBelowCurrent(t *testing.T) {
	m := testModel(t)
	desc := table("us-east-1", map[string]resource.Value{
		resource.AttrBillingMode:   resource.String(resource.BillingProvisioned),
		resource.AttrReadCapacity:  resource.Number(500),
		resource.AttrWriteCapacity: resource.Number(200),
	})
	rec := Recommendation{Action: ActionModify, Config: map[string]resource.Value{
		resource.AttrReadCapacity:  resource.Number(30),
		resource.AttrWriteCapacity: resource.Number(12),
	}}

	current, err := m.EstimateCurrentCost(desc)
	require.NoError(t, err)
	optimized, err := m.EstimateOptimizedCost(desc, rec)
	require.NoError(t, err)
	assert.True(t, optimized.LessThan(current))
	assert.False(t, optimized.IsNegative())

	removed, err := m.EstimateOptimizedCost(desc, Recommendation{Action: ActionRemove})
	require.NoError(t, err)
	assert.True(t, removed.IsZero())
}

func TestEstimatePicksBookByObservedDate(t *testing.T) {
	m := testModel(t)
	attrs := map[string]resource.Value{
		resource.AttrBillingMode:  resource.String(resource.BillingProvisioned),
		resource.AttrReadCapacity: resource.Number(1000),
	}
	old := resource.NewDescriptor(resource.DynamoDBTable, "t", "us-east-1", time.Time{}, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), attrs)
	cost, err := m.EstimateCurrentCost(old)
	require.NoError(t, err)
	assert.True(t, cost.Equal(decimal.RequireFromString("73")), cost.String())

	tooOld := resource.NewDescriptor(resource.DynamoDBTable, "t", "us-east-1", time.Time{}, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), attrs)
	_, err = m.EstimateCurrentCost(tooOld)
	assert.ErrorIs(t, err, errs.ErrPricingDataMissing)
}

func TestEstimateMissingPrice(t *testing.T) {
	m := testModel(t)
	desc := resource.NewDescriptor(resource.APIGatewayStage, "api/prod", "us-east-1", time.Time{}, observed, map[string]resource.Value{
		resource.AttrCacheEnabled: resource.Bool(true),
		resource.AttrCacheSizeGB:  resource.Number(0.5),
	})
	_, err := m.EstimateCurrentCost(desc)
	assert.ErrorIs(t, err, errs.ErrPricingDataMissing)

	unknown := resource.NewDescriptor("aws_unknown", "x", "us-east-1", time.Time{}, observed, nil)
	_, err = m.EstimateCurrentCost(unknown)
	assert.ErrorIs(t, err, errs.ErrPricingDataMissing)
}

func TestEstimateNegativeCostIsInvariantViolation(t *testing.T) {
	m := testModel(t)
	desc := table("us-east-1", map[string]resource.Value{
		resource.AttrBillingMode:  resource.String(resource.BillingProvisioned),
		resource.AttrReadCapacity: resource.Number(-10),
	})
	_, err := m.EstimateCurrentCost(desc)
	assert.ErrorIs(t, err, errs.ErrInvariantViolation)
}

func TestEstimateFargateAndDiscount(t *testing.T) {
	m := testModel(t, WithDiscountFactor(0.5))
	desc := resource.NewDescriptor(resource.FargateService, "prod/api", "us-east-1", time.Time{}, observed, map[string]resource.Value{
		resource.AttrDesiredCount: resource.Number(2),
		resource.AttrTaskVCPU:     resource.Number(1),
		resource.AttrTaskMemoryGB: resource.Number(2),
	})
	cost, err := m.EstimateCurrentCost(desc)
	require.NoError(t, err)
	// (2*0.04048 + 4*0.004445) * 730 * 0.5
	assert.True(t, cost.Equal(decimal.RequireFromString("36.0401")), cost.String())
}

func TestLinearFormulaFromConfig(t *testing.T) {
	cfg, err := Parse([]byte(testPricing + `
`))
	require.NoError(t, err)
	book, err := cfg.Catalog.At(observed)
	require.NoError(t, err)
	book.Set(AnyRegion, "sqs.requests_million", decimal.RequireFromString("0.40"))

	m := NewModel(cfg.Registry(), cfg.Catalog)
	desc := resource.NewDescriptor("aws_sqs_queue", "q", "us-east-1", time.Time{}, observed, map[string]resource.Value{
		"monthly_requests": resource.Number(5_000_000),
	})
	cost, err := m.EstimateCurrentCost(desc)
	require.NoError(t, err)
	assert.True(t, cost.Equal(decimal.RequireFromString("2")), cost.String())
}

func TestParseRejectsBadFiles(t *testing.T) {
	tests := map[string]string{
		"no books":       "books: []\n",
		"bad date":       "books:\n  - version: a\n    effective_from: yesterday\n    prices: {\"*\": {k: \"1\"}}\n",
		"negative price": "books:\n  - version: a\n    effective_from: 2026-01-01\n    prices: {\"*\": {k: \"-1\"}}\n",
		"duplicate date": "books:\n  - version: a\n    effective_from: 2026-01-01\n    prices: {\"*\": {k: \"1\"}}\n  - version: b\n    effective_from: 2026-01-01\n    prices: {\"*\": {k: \"1\"}}\n",
		"unknown field":  "books:\n  - version: a\n    effective_from: 2026-01-01\n    colour: red\n    prices: {\"*\": {k: \"1\"}}\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestRoundToSize(t *testing.T) {
	tests := []struct {
		name   string
		target float64
		sizes  []float64
		step   float64
		min    float64
		want   float64
	}{
		{name: "next size up", target: 0.6, sizes: []float64{0.25, 0.5, 1, 2, 4}, want: 1},
		{name: "exact size", target: 2, sizes: []float64{4, 2, 1}, want: 2},
		{name: "above largest", target: 9, sizes: []float64{1, 2, 4}, want: 4},
		{name: "step", target: 30.2, step: 5, want: 35},
		{name: "min floor", target: 0, step: 1, min: 1, want: 1},
		{name: "no constraint", target: 3.3, want: 3.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, RoundToSize(tt.target, tt.sizes, tt.step, tt.min), 1e-9)
		})
	}
}

func TestPlanBuildRightSize(t *testing.T) {
	w, _ := metrics.Lookback(observed, 7)
	samples := make([]metrics.Sample, 7)
	for i := range samples {
		samples[i] = metrics.Sample{Timestamp: w.Start.AddDate(0, 0, i), Value: float64(20 + i)}
	}
	set := metrics.Set{
		"ConsumedReadCapacityUnits": metrics.NewSeries("orders", "ConsumedReadCapacityUnits", metrics.StatAverage, w, metrics.DefaultGranularity, samples),
	}
	desc := table("us-east-1", map[string]resource.Value{resource.AttrReadCapacity: resource.Number(500)})

	plan := Plan{RightSize: []RightSize{{
		Attribute:    resource.AttrReadCapacity,
		Metric:       "ConsumedReadCapacityUnits",
		SafetyMargin: 1.2,
		Step:         5,
		Min:          1,
	}}}
	require.NoError(t, plan.Validate())

	rec := plan.Build(desc, set)
	assert.Equal(t, ActionModify, rec.Action)
	// p99 = 26, *1.2 = 31.2, step 5 -> 35
	got, _ := rec.Config[resource.AttrReadCapacity].Float()
	assert.Equal(t, 35.0, got)
	assert.Contains(t, rec.Summary, "500 -> 35")
}

func TestPlanBuildNeverUpsizes(t *testing.T) {
	w, _ := metrics.Lookback(observed, 1)
	set := metrics.Set{"CPUUtilization": metrics.NewSeries("svc", "CPUUtilization", metrics.StatAverage, w, time.Hour,
		[]metrics.Sample{{Timestamp: w.Start, Value: 95}})}
	desc := resource.NewDescriptor(resource.FargateService, "svc", "us-east-1", time.Time{}, observed, map[string]resource.Value{
		resource.AttrTaskVCPU: resource.Number(1),
	})
	plan := Plan{RightSize: []RightSize{{
		Attribute: resource.AttrTaskVCPU, Metric: "CPUUtilization", PercentOf: resource.AttrTaskVCPU,
		SafetyMargin: 1.5, Sizes: []float64{0.25, 0.5, 1, 2, 4},
	}}}
	rec := plan.Build(desc, set)
	got, _ := rec.Config[resource.AttrTaskVCPU].Float()
	assert.Equal(t, 1.0, got)
}

func TestPlanValidate(t *testing.T) {
	assert.Error(t, Plan{Remove: true, Set: map[string]any{"a": 1}}.Validate())
	assert.Error(t, Plan{RightSize: []RightSize{{Attribute: "a", Metric: "m"}}}.Validate())
	assert.Error(t, Plan{RightSize: []RightSize{{Attribute: "a", Metric: "m", Step: 1, SafetyMargin: 0.5}}}.Validate())
	assert.Error(t, Plan{Derive: []Derive{{Attribute: "a", Metric: "m", Agg: "median"}}}.Validate())
	assert.NoError(t, Plan{Set: map[string]any{resource.AttrBillingMode: resource.BillingPayPerRequest}}.Validate())

	rec := Plan{Remove: true}.Build(table("us-east-1", nil), nil)
	assert.Equal(t, ActionRemove, rec.Action)
}
