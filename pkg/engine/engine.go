package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DrSkyle/wastewatch/pkg/config"
	awsengine "github.com/DrSkyle/wastewatch/pkg/engine/aws"
	"github.com/DrSkyle/wastewatch/pkg/engine/confidence"
	"github.com/DrSkyle/wastewatch/pkg/engine/history"
	"github.com/DrSkyle/wastewatch/pkg/engine/pricing"
	"github.com/DrSkyle/wastewatch/pkg/engine/rules"
	"github.com/DrSkyle/wastewatch/pkg/engine/scan"
	"github.com/DrSkyle/wastewatch/pkg/engine/throttle"
	"github.com/DrSkyle/wastewatch/pkg/telemetry"
)

// ErrPartialResult indicates the scan completed but some jobs failed.
var ErrPartialResult = errors.New("scan completed with partial results")

// Engine is the runtime core: it owns the provider, the published rule sets,
// the pricing model and the scan history.
type Engine struct {
	Logger  *slog.Logger
	Tracer  trace.Tracer
	History *history.Client

	config       config.Config
	now          func() time.Time
	provider     scan.Provider
	awsClient    *awsengine.Client
	throttle     *throttle.Registry
	rules        *rules.Store
	initialRules *rules.Set
	watcher      *rules.Watcher
	pricing      *pricing.Config
	model        *pricing.Model
	scorer       *confidence.Scorer
	orchestrator *scan.Orchestrator
	closers      []func(context.Context) error
}

// Option defines a functional configuration override.
type Option func(*Engine)

// New initializes the Engine. Rules and prices fall back to the embedded
// defaults when neither an option nor a file supplies them.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	e := &Engine{
		Logger: NewLogger(os.Stdout, true, slog.LevelInfo),
		Tracer: otel.Tracer("wastewatch/engine"),
		config: config.DefaultConfig(),
		now:    time.Now,
		rules:  rules.NewStore(),
	}

	for _, opt := range opts {
		opt(e)
	}

	slog.SetDefault(e.Logger)

	if err := e.config.Validate(); err != nil {
		return nil, err
	}

	if !e.config.Telemetry.Disabled {
		shutdown, err := telemetry.Init(ctx, e.config.Telemetry.OtelEndpoint)
		if err != nil {
			e.Logger.Warn("Telemetry failed", "error", err)
		} else {
			e.closers = append(e.closers, shutdown)
		}
	}

	if err := e.initRules(ctx); err != nil {
		e.Close(ctx)
		return nil, err
	}
	if err := e.initPricing(); err != nil {
		e.Close(ctx)
		return nil, err
	}
	if err := e.initProvider(ctx); err != nil {
		e.Close(ctx)
		return nil, err
	}
	if err := e.initHistory(); err != nil {
		e.Close(ctx)
		return nil, err
	}

	discount := e.discountFactor(ctx)
	e.model = pricing.NewModel(e.pricing.Registry(), e.pricing.Catalog, pricing.WithDiscountFactor(discount))

	if e.scorer == nil {
		scorer, err := confidence.NewScorer(e.config.Confidence)
		if err != nil {
			e.Close(ctx)
			return nil, err
		}
		e.scorer = scorer
	}
	e.orchestrator = scan.NewOrchestrator(e.provider, e.model, e.scorer, e.config.Scan,
		scan.WithLogger(e.Logger),
		scan.WithClock(e.now),
	)

	e.Logger.Info("Engine ready",
		"provider", e.provider.Name(),
		"rule_set", e.rules.Current().Version,
		"discount_factor", discount,
	)
	return e, nil
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.Logger = l
		}
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithProvider scans p instead of the provider the configuration selects.
func WithProvider(p scan.Provider) Option {
	return func(e *Engine) {
		e.provider = p
	}
}

// WithRules publishes set instead of loading the configured rules file.
func WithRules(set *rules.Set) Option {
	return func(e *Engine) {
		e.initialRules = set
	}
}

// WithPricing sets the price books and formulas.
func WithPricing(p *pricing.Config) Option {
	return func(e *Engine) {
		e.pricing = p
	}
}

// WithScorer replaces the scorer built from the confidence configuration.
func WithScorer(s *confidence.Scorer) Option {
	return func(e *Engine) {
		e.scorer = s
	}
}

// WithClock overrides the scan clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() config.Config { return e.config }

// Rules returns the store of published rule sets.
func (e *Engine) Rules() *rules.Store { return e.rules }

// Model returns the pricing model scans use.
func (e *Engine) Model() *pricing.Model { return e.model }

// ThrottleStats reports per-API limiter state. It is empty for the mock provider.
func (e *Engine) ThrottleStats() []throttle.Stat {
	if e.throttle == nil {
		return nil
	}
	return e.throttle.Stats()
}

// RunScan executes one scan against the rule set req pins, or the current one.
// A completed scan is appended to the history. When some jobs failed the
// result is returned with ErrPartialResult if the configuration is strict.
func (e *Engine) RunScan(ctx context.Context, req scan.Request) (res *scan.Result, err error) {
	ctx, span := e.Tracer.Start(ctx, "Engine.RunScan")
	defer span.End()

	// Crash safety.
	defer e.recoverPanic(ctx, &err)

	set, err := e.rules.Get(req.RuleSetVersion)
	if err != nil {
		return nil, err
	}

	e.Logger.Info("Starting scan",
		"regions", req.Regions,
		"rule_set", set.Version,
		"provider", e.provider.Name(),
	)
	res, err = e.orchestrator.Run(ctx, set, req)
	if res == nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("scan.id", res.ID),
		attribute.Int("scan.findings", len(res.Findings)),
	)
	e.recordHistory(res)

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	if len(res.Failures) > 0 {
		span.SetAttributes(attribute.Bool("scan.partial", true))
		span.SetAttributes(attribute.Int("scan.failed_jobs", len(res.Failures)))

		if e.config.Strict {
			e.Logger.Error("Strict mode: failing due to partial scan results", "failures", len(res.Failures))
			return res, ErrPartialResult
		}
		e.Logger.Warn("Scan finished with partial errors", "failures", len(res.Failures))
	}
	return res, nil
}

// Close stops the rule watcher, closes the history store and flushes telemetry.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if e.watcher != nil {
		errs = append(errs, e.watcher.Close())
		e.watcher = nil
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i](ctx))
	}
	e.closers = nil
	return errors.Join(errs...)
}

// recoverPanic turns a panic during a scan into an error and a span event.
func (e *Engine) recoverPanic(ctx context.Context, errp *error) {
	if r := recover(); r != nil {
		tr := otel.Tracer("wastewatch/engine")
		_, span := tr.Start(ctx, "CriticalPanic")

		stack := debug.Stack()

		span.RecordError(fmt.Errorf("%v", r), trace.WithStackTrace(true))
		span.SetStatus(codes.Error, "CRITICAL FAILURE")
		span.SetAttributes(
			attribute.String("crash.stack", string(stack)),
			attribute.String("crash.reason", fmt.Sprintf("%v", r)),
		)
		span.End()

		e.Logger.Error("CRITICAL FAILURE", "error", r, "stack", string(stack))

		// The caller decides whether to exit; the engine may be embedded as a library.
		*errp = fmt.Errorf("scan panicked: %v", r)
	}
}

// NewLogger returns a JSON or text logger that redacts sensitive attributes.
func NewLogger(w io.Writer, json bool, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redactSensitiveData,
	}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// redactSensitiveData scrubs sensitive keys from logs.
func redactSensitiveData(groups []string, a slog.Attr) slog.Attr {
	sensitiveKeys := map[string]bool{
		"account": true, "password": true, "access_key": true, "token": true,
		"secret": true, "api_key": true, "private_key": true, "auth_token": true,
		"refresh_token": true, "certificate": true, "signature": true,
		"credential": true, "session_token": true, "connection_string": true,
	}

	if sensitiveKeys[a.Key] {
		return slog.Attr{
			Key:   a.Key,
			Value: slog.StringValue("[REDACTED]"),
		}
	}
	return a
}
