// Package scan drives (region × resource type) jobs through
// enumerate → measure → classify → price → score → assemble.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/DrSkyle/wastewatch/internal/swarm"
	"github.com/DrSkyle/wastewatch/pkg/engine/confidence"
	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/engine/finding"
	"github.com/DrSkyle/wastewatch/pkg/engine/metrics"
	"github.com/DrSkyle/wastewatch/pkg/engine/pricing"
	"github.com/DrSkyle/wastewatch/pkg/engine/rules"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// Config bounds a scan's concurrency and duration.
type Config struct {
	MaxJobs             int           `mapstructure:"max_jobs" validate:"gte=1"`
	ResourceConcurrency int           `mapstructure:"resource_concurrency" validate:"gte=1"`
	JobTimeout          time.Duration `mapstructure:"job_timeout" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{MaxJobs: 4, ResourceConcurrency: 8, JobTimeout: 10 * time.Minute}
}

// Observer is called after every job state transition with a copy of the job.
type Observer func(Job)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs scans. It is safe for concurrent use; every Run pins the
// rule set it was given.
type Orchestrator struct {
	provider Provider
	model    *pricing.Model
	scorer   *confidence.Scorer
	cfg      Config
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
	tracer   trace.Tracer
	findings metric.Int64Counter
	jobs     metric.Int64Counter
}

func NewOrchestrator(provider Provider, model *pricing.Model, scorer *confidence.Scorer, cfg Config, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.MaxJobs < 1 {
		cfg.MaxJobs = def.MaxJobs
	}
	if cfg.ResourceConcurrency < 1 {
		cfg.ResourceConcurrency = def.ResourceConcurrency
	}
	o := &Orchestrator{
		provider: provider,
		model:    model,
		scorer:   scorer,
		cfg:      cfg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		tracer:   otel.Tracer("wastewatch/scan"),
	}
	for _, opt := range opts {
		opt(o)
	}

	meter := otel.Meter("wastewatch/scan")
	o.findings, _ = meter.Int64Counter("wastewatch.findings", metric.WithDescription("Findings emitted"))
	o.jobs, _ = meter.Int64Counter("wastewatch.jobs", metric.WithDescription("Scan jobs by terminal state"))
	return o
}

type run struct {
	o     *Orchestrator
	set   *rules.Set
	rules map[resource.Type][]*rules.Rule
	acc   *accumulator

	mu        sync.Mutex
	jobs      []*Job
	failures  []Failure
	invariant []error
}

// Run executes req against set. Jobs are isolated from one another: a failed
// job never stops its siblings. The returned error is non-nil only for an
// invalid request or when an invariant was violated; in the latter case the
// result is returned as well.
func (o *Orchestrator) Run(ctx context.Context, set *rules.Set, req Request) (*Result, error) {
	const op = "scan.Run"
	if set == nil {
		return nil, errs.Errorf(errs.KindInvalidRuleConfiguration, op, "no rule set")
	}
	if len(req.Regions) == 0 {
		return nil, fmt.Errorf("%s: at least one region is required", op)
	}

	ctx, span := o.tracer.Start(ctx, "scan.Run", trace.WithAttributes(
		attribute.String("provider", o.provider.Name()),
		attribute.String("rule_set_version", set.Version),
	))
	defer span.End()

	r := &run{o: o, set: set, rules: make(map[resource.Type][]*rules.Rule), acc: newAccumulator()}
	types := req.ResourceTypes
	if len(types) == 0 {
		types = set.Types()
	}
	for _, t := range dedup(types) {
		rs, err := rules.ApplyLookbackOverrides(set.ForType(t), req.LookbackOverrides)
		if err != nil {
			return nil, err
		}
		r.rules[t] = rs
	}

	for _, region := range dedup(req.Regions) {
		for _, t := range dedup(types) {
			r.jobs = append(r.jobs, &Job{
				Index:          len(r.jobs),
				Region:         region,
				ResourceType:   t,
				RuleSetVersion: set.Version,
			})
		}
	}

	result := &Result{ID: uuid.NewString(), RuleSetVersion: set.Version, StartedAt: o.now()}
	o.logger.Info("scan started", "scan_id", result.ID, "jobs", len(r.jobs), "rule_set_version", set.Version)

	pool := swarm.NewPool(o.cfg.MaxJobs)
	var wg sync.WaitGroup
	for _, job := range r.jobs {
		wg.Add(1)
		if err := pool.Submit(ctx, func(ctx context.Context) {
			defer wg.Done()
			r.runJob(ctx, job)
		}); err != nil {
			wg.Done()
			r.failJob(job, errs.E(errs.KindOf(err), op, err))
		}
	}
	wg.Wait()
	pool.Stop()

	result.Findings = r.acc.findings()
	result.Skips = r.acc.skipped()
	result.FinishedAt = o.now()
	r.mu.Lock()
	for _, j := range r.jobs {
		result.Jobs = append(result.Jobs, *j)
	}
	result.Failures = slices.Clone(r.failures)
	invariant := errors.Join(r.invariant...)
	r.mu.Unlock()

	slices.SortStableFunc(result.Failures, func(a, b Failure) int {
		return r.jobIndex(a) - r.jobIndex(b)
	})

	span.SetAttributes(attribute.Int("findings", len(result.Findings)), attribute.Int("failures", len(result.Failures)))
	o.logger.Info("scan finished",
		"scan_id", result.ID,
		"findings", len(result.Findings),
		"failures", len(result.Failures),
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)

	if invariant != nil {
		span.SetStatus(codes.Error, "invariant violation")
		return result, errs.E(errs.KindInvariantViolation, op, invariant)
	}
	return result, nil
}

func (r *run) jobIndex(f Failure) int {
	for _, j := range r.jobs {
		if j.Region == f.Region && j.ResourceType == f.ResourceType {
			return j.Index
		}
	}
	return len(r.jobs)
}

func (r *run) transition(job *Job, fn func(*Job) error) bool {
	r.mu.Lock()
	err := fn(job)
	snapshot := *job
	r.mu.Unlock()
	if err != nil {
		r.o.logger.Debug("ignored job transition", "job", job.String(), "error", err)
		return false
	}
	if r.o.observer != nil {
		r.o.observer(snapshot)
	}
	return true
}

func (r *run) failJob(job *Job, err error) {
	kind := errs.KindOf(err)
	ok := r.transition(job, func(j *Job) error { return j.fail(r.o.now(), kind, err.Error()) })
	if !ok {
		return
	}

	f := Failure{Region: job.Region, ResourceType: job.ResourceType, Kind: kind, Message: err.Error()}
	var e *errs.Error
	if errors.As(err, &e) {
		f.ResourceID = e.Resource
	}

	r.mu.Lock()
	r.failures = append(r.failures, f)
	if kind == errs.KindInvariantViolation {
		r.invariant = append(r.invariant, err)
	}
	r.mu.Unlock()

	r.o.jobs.Add(context.Background(), 1, metric.WithAttributes(attribute.String("state", "failed"), attribute.String("kind", string(kind))))
	if kind == errs.KindInvariantViolation {
		r.o.logger.Error("job failed", "job", job.String(), "kind", kind, "error", err)
		return
	}
	r.o.logger.Warn("job failed", "job", job.String(), "kind", kind, "error", err)
}

func (r *run) runJob(parent context.Context, job *Job) {
	const op = "scan.job"
	defer func() {
		if p := recover(); p != nil {
			r.failJob(job, r.panicError(op, p))
		}
	}()
	if err := parent.Err(); err != nil {
		r.failJob(job, errs.E(errs.KindOf(err), op, err))
		return
	}
	if !r.transition(job, func(j *Job) error { return j.start(r.o.now()) }) {
		return
	}

	ctx := parent
	if r.o.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.o.cfg.JobTimeout)
		defer cancel()
	}
	ctx, span := r.o.tracer.Start(ctx, "scan.job", trace.WithAttributes(
		attribute.String("region", job.Region),
		attribute.String("resource_type", string(job.ResourceType)),
	))
	defer span.End()

	err := r.executeJob(ctx, job)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		// Context errors surface as whatever the provider wrapped them in;
		// the context itself is authoritative.
		if parent.Err() != nil {
			err = errs.E(errs.KindCancelled, op, err)
		} else if ctx.Err() != nil {
			err = errs.E(errs.KindTimeout, op, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errs.KindOf(err)))
		r.failJob(job, err)
		return
	}

	if r.transition(job, func(j *Job) error { return j.complete(r.o.now()) }) {
		r.o.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("state", "completed")))
		r.o.logger.Info("job completed", "job", job.String(), "resources", job.Resources, "findings", job.Findings)
	}
}

func (r *run) executeJob(ctx context.Context, job *Job) error {
	const op = "scan.job"
	rs := r.rules[job.ResourceType]
	if len(rs) == 0 {
		return nil
	}

	adapter, err := r.o.provider.Adapter(job.ResourceType)
	if err != nil {
		return err
	}
	agg, err := r.o.provider.Aggregator(job.Region)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.o.cfg.ResourceConcurrency)

	var listErr error
	for desc, err := range adapter.List(gctx, job.Region) {
		if err != nil {
			listErr = err
			break
		}
		if gctx.Err() != nil {
			break
		}
		r.mu.Lock()
		job.Resources++
		r.mu.Unlock()

		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = r.panicError(op, p).WithResource(desc.Key())
				}
			}()
			batch, skips, err := r.processResource(gctx, agg, rs, desc)
			r.acc.addSkips(skips)
			if err != nil {
				return err
			}
			kept := r.acc.addBatch(job.Index, batch)
			r.mu.Lock()
			job.Findings += kept
			r.mu.Unlock()
			r.o.findings.Add(gctx, int64(kept), metric.WithAttributes(attribute.String("resource_type", string(job.ResourceType))))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if listErr != nil {
		var e *errs.Error
		if !errors.As(listErr, &e) {
			listErr = errs.E(errs.KindOf(listErr), op, listErr)
		}
		return listErr
	}
	return nil
}

// processResource fetches metrics once for all applicable rules, then
// evaluates, prices, scores and assembles each match.
func (r *run) processResource(ctx context.Context, agg metrics.Aggregator, rs []*rules.Rule, desc resource.Descriptor) ([]finding.Finding, []Skip, error) {
	const op = "scan.resource"
	age := desc.AgeDays()

	applicable := make([]*rules.Rule, 0, len(rs))
	for _, rule := range rs {
		if age >= rule.MinAgeDays {
			applicable = append(applicable, rule)
		}
	}
	if len(applicable) == 0 {
		return nil, nil, nil
	}

	var skips []Skip
	skip := func(ruleID, reason string) {
		skips = append(skips, Skip{
			Region:       desc.Region,
			ResourceType: desc.Type,
			ResourceID:   desc.ID,
			RuleID:       ruleID,
			Reason:       reason,
		})
	}

	set, err := r.fetch(ctx, agg, applicable, desc)
	if err != nil {
		if errs.KindOf(err) != errs.KindMetricsUnavailable {
			return nil, nil, err
		}
		r.o.logger.Warn("metrics unavailable", "resource", desc.Key(), "error", err)
		skip("", rules.ReasonMetricsUnavailable)
		set = nil
	}

	var (
		batch   []finding.Finding
		current *pricingResult
	)
	for _, res := range rules.EvaluateAll(applicable, desc, set) {
		switch res.Outcome {
		case rules.Indeterminate:
			skip(res.RuleID, res.Reason)
			continue
		case rules.Match:
		default:
			continue
		}

		if current == nil {
			cost, err := r.o.model.EstimateCurrentCost(desc)
			current = &pricingResult{cost: cost, err: err}
		}
		if current.err != nil {
			return nil, skips, wrapResource(op, current.err, desc)
		}
		optimized, err := r.o.model.EstimateOptimizedCost(desc, res.Recommendation)
		if err != nil {
			return nil, skips, wrapResource(op, err, desc)
		}

		tier := r.o.scorer.Score(age, res.SignalStrength)
		f, err := finding.Assemble(desc, finding.Classification{
			RuleID:         res.RuleID,
			Label:          res.Classification,
			Recommendation: res.Recommendation,
			Metadata:       r.metadata(desc, res),
		}, current.cost, optimized, tier)
		if err != nil {
			return nil, skips, err
		}
		batch = append(batch, f)
	}
	return batch, skips, nil
}

type pricingResult struct {
	cost decimal.Decimal
	err  error
}

func (r *run) fetch(ctx context.Context, agg metrics.Aggregator, rs []*rules.Rule, desc resource.Descriptor) (metrics.Set, error) {
	var (
		names       []string
		lookback    int
		granularity time.Duration
	)
	for _, rule := range rs {
		if len(rule.Metrics()) == 0 {
			continue
		}
		names = append(names, rule.Metrics()...)
		lookback = max(lookback, rule.LookbackDays)
		g := rule.Granularity
		if g <= 0 {
			g = metrics.DefaultGranularity
		}
		if granularity == 0 || g < granularity {
			granularity = g
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	slices.Sort(names)
	names = slices.Compact(names)

	w, err := metrics.Lookback(desc.ObservedAt, lookback)
	if err != nil {
		return nil, err
	}
	set, err := agg.Fetch(ctx, desc, names, w, granularity)
	if err == nil || len(names) == 1 || errs.KindOf(err) != errs.KindMetricsUnavailable {
		return set, err
	}

	// Retry one metric at a time so an unavailable metric only undecides
	// the rules that read it.
	set = make(metrics.Set, len(names))
	unavailable := err
	for _, name := range names {
		one, err := agg.Fetch(ctx, desc, []string{name}, w, granularity)
		if err != nil {
			if errs.KindOf(err) != errs.KindMetricsUnavailable {
				return nil, err
			}
			r.o.logger.Debug("metric unavailable", "resource", desc.Key(), "metric", name, "error", err)
			continue
		}
		maps.Copy(set, one)
	}
	if len(set) == 0 {
		return nil, unavailable
	}
	return set, nil
}

func (r *run) metadata(desc resource.Descriptor, res rules.Result) map[string]string {
	md := map[string]string{
		"rule_set_version":   r.set.Version,
		"price_book_version": r.o.model.BookVersion(desc),
		"signal_strength":    strconv.FormatFloat(res.SignalStrength, 'f', 2, 64),
		"provider":           r.o.provider.Name(),
	}
	if s := res.Recommendation.Summary; s != "" {
		md["recommendation"] = s
	}
	for k, v := range res.Evidence {
		md["evidence."+k] = v
	}
	return md
}

// panicError records a recovered panic as an invariant violation so it
// fails one job instead of the process.
func (r *run) panicError(op string, p any) *errs.Error {
	r.o.logger.Error("panic in scan job", "panic", p, "stack", string(debug.Stack()))
	return errs.Errorf(errs.KindInvariantViolation, op, "panic: %v", p)
}

func wrapResource(op string, err error, desc resource.Descriptor) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.WithResource(desc.Key())
	}
	return errs.E(errs.KindOf(err), op, err).WithResource(desc.Key())
}

func dedup[T comparable](in []T) []T {
	seen := make(map[T]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
