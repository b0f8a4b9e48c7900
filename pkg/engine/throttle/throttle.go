// Package throttle shares one rate limiter and one adaptive in-flight gate per
// (provider API, region) across every job of a scan.
package throttle

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"golang.org/x/time/rate"

	"github.com/DrSkyle/wastewatch/internal/swarm"
)

// Limits configures one (api, region) pair.
type Limits struct {
	RatePerSecond float64 `mapstructure:"rate_per_second" validate:"gt=0"`
	Burst         int     `mapstructure:"burst" validate:"gte=1"`
	MinInFlight   int     `mapstructure:"min_in_flight" validate:"gte=1"`
	MaxInFlight   int     `mapstructure:"max_in_flight" validate:"gtefield=MinInFlight"`
}

func DefaultLimits() Limits {
	return Limits{RatePerSecond: 10, Burst: 10, MinInFlight: 1, MaxInFlight: 16}
}

type key struct {
	api    string
	region string
}

type entry struct {
	limiter *rate.Limiter
	gate    *swarm.Gate
}

// Registry hands out the shared limiter for each (api, region).
type Registry struct {
	mu        sync.Mutex
	defaults  Limits
	overrides map[string]Limits
	entries   map[key]*entry
}

// NewRegistry builds a registry. overrides is keyed by API name, e.g. "CloudWatch".
func NewRegistry(defaults Limits, overrides map[string]Limits) *Registry {
	ov := make(map[string]Limits, len(overrides))
	for k, v := range overrides {
		ov[k] = v
	}
	return &Registry{
		defaults:  defaults,
		overrides: ov,
		entries:   make(map[key]*entry),
	}
}

func (r *Registry) get(api, region string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{api: api, region: region}
	if e, ok := r.entries[k]; ok {
		return e
	}
	l, ok := r.overrides[api]
	if !ok {
		l = r.defaults
	}
	start := max(l.MinInFlight, l.MaxInFlight/2)
	e := &entry{
		limiter: rate.NewLimiter(rate.Limit(l.RatePerSecond), max(l.Burst, 1)),
		gate:    swarm.NewGate(swarm.NewAIMD(start, l.MinInFlight, l.MaxInFlight)),
	}
	r.entries[k] = e
	return e
}

// Acquire waits for a token and an in-flight slot. The returned release must
// be called exactly once with the outcome of the call.
func (r *Registry) Acquire(ctx context.Context, api, region string) (func(err error), error) {
	e := r.get(api, region)
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if err := e.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	var once sync.Once
	return func(err error) {
		once.Do(func() { e.gate.Release(time.Since(start), IsThrottle(err)) })
	}, nil
}

// Do runs fn under the (api, region) limiter.
func (r *Registry) Do(ctx context.Context, api, region string, fn func(context.Context) error) error {
	release, err := r.Acquire(ctx, api, region)
	if err != nil {
		return err
	}
	err = fn(ctx)
	release(err)
	return err
}

// Stat is a point-in-time view of one limiter.
type Stat struct {
	API      string
	Region   string
	InFlight int
	Limit    int
}

func (r *Registry) Stats() []Stat {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Stat, 0, len(r.entries))
	for k, e := range r.entries {
		out = append(out, Stat{API: k.api, Region: k.region, InFlight: e.gate.InFlight(), Limit: e.gate.Limit()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].API != out[j].API {
			return out[i].API < out[j].API
		}
		return out[i].Region < out[j].Region
	})
	return out
}

// Middleware installs the registry on an AWS SDK client stack. Every
// operation waits on the limiter for its service and region.
func (r *Registry) Middleware() func(*middleware.Stack) error {
	return func(stack *middleware.Stack) error {
		return stack.Initialize.Add(middleware.InitializeMiddlewareFunc("WastewatchThrottle", func(ctx context.Context, in middleware.InitializeInput, next middleware.InitializeHandler) (
			middleware.InitializeOutput, middleware.Metadata, error,
		) {
			release, err := r.Acquire(ctx, awsmiddleware.GetServiceID(ctx), awsmiddleware.GetRegion(ctx))
			if err != nil {
				return middleware.InitializeOutput{}, middleware.Metadata{}, err
			}
			out, md, err := next.HandleInitialize(ctx, in)
			release(err)
			return out, md, err
		}), middleware.After)
	}
}

var throttleCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"RequestThrottled":                       true,
	"RequestThrottledException":              true,
	"RequestLimitExceeded":                   true,
	"TooManyRequestsException":               true,
	"ProvisionedThroughputExceededException": true,
	"LimitExceededException":                 true,
	"SlowDown":                               true,
}

// IsThrottle reports whether err is a provider-side rate limit rejection.
func IsThrottle(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && throttleCodes[apiErr.ErrorCode()] {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusTooManyRequests {
		return true
	}
	return false
}
