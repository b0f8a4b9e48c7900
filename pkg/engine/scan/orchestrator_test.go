package scan

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/wastewatch/pkg/engine/confidence"
	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/engine/metrics"
	"github.com/DrSkyle/wastewatch/pkg/engine/mock"
	"github.com/DrSkyle/wastewatch/pkg/engine/pricing"
	"github.com/DrSkyle/wastewatch/pkg/engine/rules"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

var now = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

const testRules = `
version: v1
rules:
  - id: ddb-over-provisioned
    resource_type: aws_dynamodb_table
    classification: over_provisioned
    empty_series: zero
    thresholds: {lookback_days: 7, min_age_days: 7, utilization_threshold_pct: 10}
    when:
      all:
        - compare: {left: {attr: billing_mode}, op: "==", right: {const: PROVISIONED}}
        - compare:
            left: {mul: [{div: [{metric: ConsumedReadCapacityUnits, agg: avg}, {attr: provisioned_read_capacity}]}, {const: 100}]}
            op: "<"
            right: {threshold: utilization_threshold_pct}
    recommend:
      rightsize:
        - {attribute: provisioned_read_capacity, metric: ConsumedReadCapacityUnits, percentile: 99, safety_margin: 1.2, step: 1, min: 1}
        - {attribute: provisioned_write_capacity, metric: ConsumedWriteCapacityUnits, percentile: 99, safety_margin: 1.2, step: 1, min: 1}
  - id: ddb-never-used
    resource_type: aws_dynamodb_table
    classification: never_used
    empty_series: zero
    thresholds: {lookback_days: 30, min_age_days: 30}
    when:
      all:
        - compare: {left: {metric: ConsumedReadCapacityUnits, agg: sum}, op: "==", right: {const: 0}}
        - compare: {left: {metric: ConsumedWriteCapacityUnits, agg: sum}, op: "==", right: {const: 0}}
    recommend: {remove: true}
  - id: ddb-missing-ttl
    resource_type: aws_dynamodb_table
    classification: missing_ttl
    thresholds: {min_age_days: 30, size_gb: 1}
    when:
      all:
        - compare: {left: {attr: ttl_enabled}, op: "==", right: {const: false}}
        - compare: {left: {div: [{attr: size_bytes}, {const: 1073741824}]}, op: ">", right: {threshold: size_gb}}
`

const testPricing = `
books:
  - version: "2026-01"
    effective_from: 2026-01-01
    prices:
      "*":
        dynamodb.rcu_hour: "0.00013"
        dynamodb.wcu_hour: "0.00065"
        dynamodb.storage_gb_month: "0.25"
        dynamodb.read_request_million: "0.125"
        dynamodb.write_request_million: "0.625"
`

const gib = 1 << 30

type fixture struct {
	provider *mock.Provider
	set      *rules.Set
	model    *pricing.Model
	scorer   *confidence.Scorer
	orch     *Orchestrator
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()
	set, err := rules.Parse([]byte(testRules))
	require.NoError(t, err)
	pc, err := pricing.Parse([]byte(testPricing))
	require.NoError(t, err)
	scorer, err := confidence.NewScorer(confidence.DefaultConfig())
	require.NoError(t, err)

	p := mock.New()
	model := pricing.NewModel(pc.Registry(), pc.Catalog)
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return &fixture{
		provider: p,
		set:      set,
		model:    model,
		scorer:   scorer,
		orch:     NewOrchestrator(p, model, scorer, cfg, opts...),
	}
}

func table(id, region string, ageDays int, attrs map[string]resource.Value) resource.Descriptor {
	base := map[string]resource.Value{
		resource.AttrTTLEnabled: resource.Bool(true),
	}
	for k, v := range attrs {
		base[k] = v
	}
	return resource.NewDescriptor(resource.DynamoDBTable, id, region, now.AddDate(0, 0, -ageDays), now, base)
}

func provisioned(rcu, wcu float64) map[string]resource.Value {
	return map[string]resource.Value{
		resource.AttrBillingMode:   resource.String(resource.BillingProvisioned),
		resource.AttrReadCapacity:  resource.Number(rcu),
		resource.AttrWriteCapacity: resource.Number(wcu),
	}
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func (f *fixture) run(t *testing.T, ctx context.Context, req Request) *Result {
	t.Helper()
	res, err := f.orch.Run(ctx, f.set, req)
	require.NoError(t, err)
	return res
}

func states(fs []Job) []State {
	out := make([]State, len(fs))
	for i, j := range fs {
		out[i] = j.State
	}
	return out
}

func TestOverProvisionedTable(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	desc := table("orders", "us-east-1", 200, provisioned(500, 200))
	f.provider.AddResource(desc)
	f.provider.AddDaily(desc.Key(), "ConsumedReadCapacityUnits", metrics.StatAverage, now, repeat(25, 7)...)
	f.provider.AddDaily(desc.Key(), "ConsumedWriteCapacityUnits", metrics.StatAverage, now, repeat(10, 7)...)

	res := f.run(t, context.Background(), Request{Regions: []string{"us-east-1"}})

	require.Len(t, res.Findings, 1)
	got := res.Findings[0]
	assert.Equal(t, "over_provisioned", got.Classification)
	assert.Equal(t, confidence.Critical, got.Confidence)
	assert.True(t, got.CurrentMonthlyCost.GreaterThan(got.OptimizedMonthlyCost))
	assert.True(t, got.CurrentMonthlyCost.Equal(decimal.RequireFromString("142.35")), got.CurrentMonthlyCost.String())
	assert.Equal(t, pricing.ActionModify, got.Recommendation.Action)
	assert.Equal(t, "v1", got.Metadata["rule_set_version"])
	assert.Equal(t, "2026-01", got.Metadata["price_book_version"])
	assert.Equal(t, []State{Completed}, states(res.Jobs))
	assert.Empty(t, res.Failures)
	assert.Equal(t, 1, f.provider.Fetches())
}

func TestYoungResourceIsNotApplicable(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.provider.AddResource(table("fresh", "us-east-1", 5, provisioned(500, 200)))

	res := f.run(t, context.Background(), Request{Regions: []string{"us-east-1"}})

	assert.Empty(t, res.Findings)
	assert.Equal(t, 0, f.provider.Fetches())
	assert.Equal(t, 1, res.Jobs[0].Resources)
}

func TestNeverUsedAccruesWaste(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.provider.AddResource(table("archive", "us-east-1", 90, map[string]resource.Value{
		resource.AttrBillingMode: resource.String(resource.BillingPayPerRequest),
		resource.AttrSizeBytes:   resource.Number(10 * gib),
	}))

	res := f.run(t, context.Background(), Request{Regions: []string{"us-east-1"}})

	require.Len(t, res.Findings, 1)
	got := res.Findings[0]
	assert.Equal(t, "never_used", got.Classification)
	assert.True(t, got.CurrentMonthlyCost.Equal(decimal.RequireFromString("2.5")), got.CurrentMonthlyCost.String())
	assert.True(t, got.OptimizedMonthlyCost.IsZero())
	// monthly cost × 90 / 30
	assert.True(t, got.AlreadyWasted.Equal(decimal.RequireFromString("7.5")), got.AlreadyWasted.String())
	// no datapoints under empty_series: zero is a full observation of no usage
	assert.Equal(t, confidence.High, got.Confidence)
}

func TestNeverUsedOldTableIsCritical(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.provider.AddResource(table("legacy", "us-east-1", 365, map[string]resource.Value{
		resource.AttrBillingMode: resource.String(resource.BillingPayPerRequest),
		resource.AttrSizeBytes:   resource.Number(10 * gib),
	}))

	res := f.run(t, context.Background(), Request{Regions: []string{"us-east-1"}})

	require.Len(t, res.Findings, 1)
	assert.Equal(t, "never_used", res.Findings[0].Classification)
	assert.Equal(t, confidence.Critical, res.Findings[0].Confidence)
}

func TestIndependentRulesYieldDistinctFindings(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.provider.AddResource(table("idle", "us-east-1", 200, provisioned(500, 200)))

	res := f.run(t, context.Background(), Request{Regions: []string{"us-east-1"}})

	got := res.FindingsFor("idle")
	require.Len(t, got, 2)
	// rule order
	assert.Equal(t, "over_provisioned", got[0].Classification)
	assert.Equal(t, "never_used", got[1].Classification)
	assert.NotEqual(t, got[0].Key(), got[1].Key())
}

func TestCancellationFailsRemainingJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	completed := 0
	observer := func(j Job) {
		mu.Lock()
		defer mu.Unlock()
		if j.State == Completed {
			completed++
			if completed == 2 {
				cancel()
			}
		}
	}

	f := newFixture(t, Config{MaxJobs: 1, ResourceConcurrency: 1}, WithObserver(observer))
	regions := []string{"r1", "r2", "r3", "r4", "r5"}
	for _, r := range regions {
		f.provider.AddResource(table("idle-"+r, r, 200, provisioned(500, 200)))
	}

	res := f.run(t, ctx, Request{Regions: regions})

	assert.Equal(t, []State{Completed, Completed, Failed, Failed, Failed}, states(res.Jobs))
	require.Len(t, res.Failures, 3)
	for _, fail := range res.Failures {
		assert.Equal(t, errs.KindCancelled, fail.Kind)
	}
	for _, fd := range res.Findings {
		assert.Contains(t, []string{"r1", "r2"}, fd.Region)
	}
	assert.Len(t, res.Findings, 4)
}

func TestFailedJobDoesNotAffectSiblings(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.provider.AddResource(table("idle", "us-east-1", 200, provisioned(500, 200)))
	f.provider.FailList("eu-west-1", resource.DynamoDBTable, errs.Errorf(errs.KindProviderThrottled, "ListTables", "rate exceeded"))

	res := f.run(t, context.Background(), Request{Regions: []string{"us-east-1", "eu-west-1"}})

	assert.Equal(t, []State{Completed, Failed}, states(res.Jobs))
	require.Len(t, res.Failures, 1)
	assert.Equal(t, errs.KindProviderThrottled, res.Failures[0].Kind)
	assert.Equal(t, "eu-west-1", res.Failures[0].Region)
	assert.Len(t, res.FindingsFor("idle"), 2)
}

func TestMetricsUnavailableSkipsResource(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	desc := table("big", "us-east-1", 200, map[string]resource.Value{
		resource.AttrBillingMode: resource.String(resource.BillingPayPerRequest),
		resource.AttrSizeBytes:   resource.Number(5 * gib),
		resource.AttrTTLEnabled:  resource.Bool(false),
	})
	f.provider.AddResource(desc)
	f.provider.FailFetch(desc.Key(), errs.Errorf(errs.KindMetricsUnavailable, "GetMetricData", "no access"))

	res := f.run(t, context.Background(), Request{Regions: []string{"us-east-1"}})

	assert.Equal(t, []State{Completed}, states(res.Jobs))
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "missing_ttl", res.Findings[0].Classification)

	var reasons []string
	for _, s := range res.Skips {
		reasons = append(reasons, s.RuleID+":"+s.Reason)
	}
	assert.Contains(t, reasons, ":"+rules.ReasonMetricsUnavailable)
	assert.Contains(t, reasons, "ddb-never-used:"+rules.ReasonMetricsUnavailable)
}

func TestUnavailableMetricOnlyUndecidesItsRules(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	set, err := rules.Parse([]byte(`
version: v2
rules:
  - id: ddb-never-used
    resource_type: aws_dynamodb_table
    classification: never_used
    empty_series: zero
    thresholds: {lookback_days: 30, min_age_days: 30}
    when:
      all:
        - compare: {left: {metric: ConsumedReadCapacityUnits, agg: sum}, op: "==", right: {const: 0}}
        - compare: {left: {metric: ConsumedWriteCapacityUnits, agg: sum}, op: "==", right: {const: 0}}
    recommend: {remove: true}
  - id: ddb-stream-no-consumers
    resource_type: aws_dynamodb_table
    classification: unconsumed_stream
    empty_series: zero
    thresholds: {lookback_days: 14, min_age_days: 14}
    when:
      all:
        - compare: {left: {attr: stream_enabled}, op: "==", right: {const: true}}
        - compare: {left: {metric: StreamReadRequests, agg: sum}, op: "==", right: {const: 0}}
    recommend:
      set: {stream_enabled: false}
`))
	require.NoError(t, err)
	f.set = set

	desc := table("events", "us-east-1", 90, map[string]resource.Value{
		resource.AttrBillingMode:   resource.String(resource.BillingPayPerRequest),
		resource.AttrSizeBytes:     resource.Number(10 * gib),
		resource.AttrStreamEnabled: resource.Bool(true),
	})
	f.provider.AddResource(desc)
	f.provider.FailMetric(desc.Key(), "StreamReadRequests", errs.Errorf(errs.KindMetricsUnavailable, "GetMetricData", "no stream label"))

	res := f.run(t, context.Background(), Request{Regions: []string{"us-east-1"}})

	assert.Equal(t, []State{Completed}, states(res.Jobs))
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "never_used", res.Findings[0].Classification)

	require.Len(t, res.Skips, 1)
	assert.Equal(t, "ddb-stream-no-consumers", res.Skips[0].RuleID)
	assert.Equal(t, rules.ReasonMetricsUnavailable, res.Skips[0].Reason)
}

// panickyProvider panics on every fetch in one region.
type panickyProvider struct {
	*mock.Provider
	region string
}

func (p panickyProvider) Aggregator(region string) (metrics.Aggregator, error) {
	if region == p.region {
		return panickyAggregator{}, nil
	}
	return p.Provider.Aggregator(region)
}

type panickyAggregator struct{}

func (panickyAggregator) Fetch(context.Context, resource.Descriptor, []string, metrics.Window, time.Duration) (metrics.Set, error) {
	panic("nil series")
}

func TestPanicInResourceFailsOnlyItsJob(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.provider.AddResource(table("idle", "us-east-1", 200, provisioned(500, 200)))
	broken := table("idle", "eu-west-1", 200, provisioned(500, 200))
	f.provider.AddResource(broken)
	orch := NewOrchestrator(panickyProvider{Provider: f.provider, region: "eu-west-1"}, f.model, f.scorer, DefaultConfig(),
		WithClock(func() time.Time { return now }))

	res, err := orch.Run(context.Background(), f.set, Request{Regions: []string{"us-east-1", "eu-west-1"}})

	assert.Equal(t, errs.KindInvariantViolation, errs.KindOf(err))
	require.NotNil(t, res)
	assert.Equal(t, []State{Completed, Failed}, states(res.Jobs))
	assert.Equal(t, errs.KindInvariantViolation, res.Jobs[1].FailureKind)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, broken.Key(), res.Failures[0].ResourceID)
	assert.Contains(t, res.Failures[0].Message, "panic: nil series")
	assert.NotEmpty(t, res.Findings)
}

func TestPanicInListingFailsOnlyItsJob(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.provider.AddResource(table("idle", "us-east-1", 200, provisioned(500, 200)))
	f.provider.OnList = func(_ context.Context, region string, _ resource.Type) error {
		if region == "eu-west-1" {
			panic("bad page")
		}
		return nil
	}

	res, err := f.orch.Run(context.Background(), f.set, Request{Regions: []string{"us-east-1", "eu-west-1"}})

	assert.Equal(t, errs.KindInvariantViolation, errs.KindOf(err))
	require.NotNil(t, res)
	assert.Equal(t, []State{Completed, Failed}, states(res.Jobs))
	assert.NotEmpty(t, res.Findings)
}

func TestJobTimeout(t *testing.T) {
	f := newFixture(t, Config{MaxJobs: 2, ResourceConcurrency: 1, JobTimeout: 50 * time.Millisecond})
	f.provider.OnList = func(ctx context.Context, region string, _ resource.Type) error {
		if region != "slow" {
			return nil
		}
		<-ctx.Done()
		return ctx.Err()
	}
	f.provider.AddResource(table("idle", "fast", 200, provisioned(500, 200)))

	res := f.run(t, context.Background(), Request{Regions: []string{"fast", "slow"}})

	assert.Equal(t, []State{Completed, Failed}, states(res.Jobs))
	assert.Equal(t, errs.KindTimeout, res.Jobs[1].FailureKind)
}

func TestInvariantViolationFailsJobAndScan(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.provider.AddResource(table("broken", "us-east-1", 200, provisioned(-1000000, 0)))
	f.provider.AddResource(table("idle", "eu-west-1", 200, provisioned(500, 200)))

	res, err := f.orch.Run(context.Background(), f.set, Request{Regions: []string{"us-east-1", "eu-west-1"}})

	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInvariantViolation)
	require.NotNil(t, res)
	assert.Equal(t, []State{Failed, Completed}, states(res.Jobs))
	assert.Equal(t, errs.KindInvariantViolation, res.Failures[0].Kind)
	assert.NotEmpty(t, res.FindingsFor("idle"))
	for _, fd := range res.Findings {
		assert.False(t, fd.CurrentMonthlyCost.IsNegative())
		assert.False(t, fd.MonthlyWaste.IsNegative())
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newFixture(t, Config{MaxJobs: 3, ResourceConcurrency: 4})
	for i := range 20 {
		region := []string{"us-east-1", "eu-west-1"}[i%2]
		f.provider.AddResource(table(fmt.Sprintf("t%02d", i), region, 60+i*10, provisioned(float64(100+i), 50)))
	}
	req := Request{Regions: []string{"us-east-1", "eu-west-1"}}

	first := f.run(t, context.Background(), req)
	second := f.run(t, context.Background(), req)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Findings, second.Findings)
	assert.Len(t, first.Findings, 40)
}

func TestLookbackOverrides(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	desc := table("orders", "us-east-1", 200, provisioned(500, 200))
	f.provider.AddResource(desc)
	// busy 20 days ago, idle for the last 7
	f.provider.AddDaily(desc.Key(), "ConsumedReadCapacityUnits", metrics.StatAverage, now, append(repeat(480, 13), repeat(0, 7)...)...)

	res := f.run(t, context.Background(), Request{Regions: []string{"us-east-1"}})
	assert.Equal(t, "over_provisioned", res.Findings[0].Classification)

	res = f.run(t, context.Background(), Request{
		Regions:           []string{"us-east-1"},
		LookbackOverrides: map[string]int{"ddb-over-provisioned": 20},
	})
	for _, fd := range res.Findings {
		assert.NotEqual(t, "over_provisioned", fd.Classification)
	}

	_, err := f.orch.Run(context.Background(), f.set, Request{
		Regions:           []string{"us-east-1"},
		LookbackOverrides: map[string]int{"*": 0},
	})
	assert.ErrorIs(t, err, errs.ErrInvalidWindow)
}

func TestResourceTypesFilter(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.provider.AddResource(table("idle", "us-east-1", 200, provisioned(500, 200)))

	res := f.run(t, context.Background(), Request{
		Regions:       []string{"us-east-1"},
		ResourceTypes: []resource.Type{resource.FargateService},
	})
	assert.Empty(t, res.Findings)
	assert.Equal(t, []State{Completed}, states(res.Jobs))
	assert.Equal(t, 0, f.provider.Lists())
}

func TestRunRequiresRegion(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	_, err := f.orch.Run(context.Background(), f.set, Request{})
	assert.Error(t, err)
}
