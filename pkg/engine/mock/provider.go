// Package mock is an in-memory provider used by tests and the --mock scan mode.
package mock

import (
	"context"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/engine/metrics"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

type stored struct {
	stat    metrics.Statistic
	samples []metrics.Sample
}

// Provider serves descriptors and metric samples from memory.
type Provider struct {
	mu        sync.RWMutex
	resources map[string][]resource.Descriptor
	samples   map[string]map[string]stored
	listErr   map[string]error
	fetchErr  map[string]error
	metricErr map[string]map[string]error

	// OnList runs before every listing; a non-nil error fails it.
	OnList func(ctx context.Context, region string, t resource.Type) error

	lists   atomic.Int64
	fetches atomic.Int64
}

func New() *Provider {
	return &Provider{
		resources: make(map[string][]resource.Descriptor),
		samples:   make(map[string]map[string]stored),
		listErr:   make(map[string]error),
		fetchErr:  make(map[string]error),
		metricErr: make(map[string]map[string]error),
	}
}

func (p *Provider) Name() string { return "mock" }

func listKey(region string, t resource.Type) string { return region + "|" + string(t) }

// AddResource registers desc under its region and type.
func (p *Provider) AddResource(desc resource.Descriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := listKey(desc.Region, desc.Type)
	p.resources[k] = append(p.resources[k], desc)
}

// AddSamples registers datapoints for one metric of the resource with key.
func (p *Provider) AddSamples(key, name string, stat metrics.Statistic, samples ...metrics.Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.samples[key] == nil {
		p.samples[key] = make(map[string]stored)
	}
	p.samples[key][name] = stored{stat: stat, samples: slices.Clone(samples)}
}

// AddDaily registers one sample per day ending at end.
func (p *Provider) AddDaily(key, name string, stat metrics.Statistic, end time.Time, values ...float64) {
	samples := make([]metrics.Sample, len(values))
	start := end.AddDate(0, 0, -len(values))
	for i, v := range values {
		samples[i] = metrics.Sample{Timestamp: start.AddDate(0, 0, i), Value: v}
	}
	p.AddSamples(key, name, stat, samples...)
}

// FailList makes listing (region, t) yield err after any registered resources.
func (p *Provider) FailList(region string, t resource.Type, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listErr[listKey(region, t)] = err
}

// FailFetch makes metric fetches for the resource with key return err.
func (p *Provider) FailFetch(key string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetchErr[key] = err
}

// FailMetric makes any fetch for the resource with key that asks for name
// return err, as a provider that queries every metric in one call would.
func (p *Provider) FailMetric(key, name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.metricErr[key] == nil {
		p.metricErr[key] = make(map[string]error)
	}
	p.metricErr[key][name] = err
}

// Lists and Fetches count calls made so far.
func (p *Provider) Lists() int   { return int(p.lists.Load()) }
func (p *Provider) Fetches() int { return int(p.fetches.Load()) }

func (p *Provider) Adapter(t resource.Type) (resource.Adapter, error) {
	return adapter{p: p, t: t}, nil
}

func (p *Provider) Aggregator(region string) (metrics.Aggregator, error) {
	return aggregator{p: p}, nil
}

type adapter struct {
	p *Provider
	t resource.Type
}

func (a adapter) Type() resource.Type { return a.t }

func (a adapter) List(ctx context.Context, region string) iter.Seq2[resource.Descriptor, error] {
	return func(yield func(resource.Descriptor, error) bool) {
		a.p.lists.Add(1)
		if a.p.OnList != nil {
			if err := a.p.OnList(ctx, region, a.t); err != nil {
				yield(resource.Descriptor{}, err)
				return
			}
		}

		a.p.mu.RLock()
		k := listKey(region, a.t)
		descs := slices.Clone(a.p.resources[k])
		listErr := a.p.listErr[k]
		a.p.mu.RUnlock()

		for _, d := range descs {
			if err := ctx.Err(); err != nil {
				yield(resource.Descriptor{}, errs.E(errs.KindOf(err), "mock.List", err))
				return
			}
			if !yield(d, nil) {
				return
			}
		}
		if listErr != nil {
			yield(resource.Descriptor{}, listErr)
		}
	}
}

type aggregator struct {
	p *Provider
}

func (a aggregator) Fetch(ctx context.Context, desc resource.Descriptor, names []string, w metrics.Window, granularity time.Duration) (metrics.Set, error) {
	const op = "mock.Fetch"
	a.p.fetches.Add(1)
	if err := w.Validate(granularity); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.E(errs.KindOf(err), op, err)
	}

	a.p.mu.RLock()
	defer a.p.mu.RUnlock()
	if err := a.p.fetchErr[desc.Key()]; err != nil {
		return nil, err
	}

	for _, name := range names {
		if err := a.p.metricErr[desc.Key()][name]; err != nil {
			return nil, err
		}
	}

	set := make(metrics.Set, len(names))
	for _, name := range names {
		s, ok := a.p.samples[desc.Key()][name]
		if !ok {
			s.stat = metrics.StatAverage
		}
		set[name] = metrics.NewSeries(desc.ID, name, s.stat, w, granularity, s.samples)
	}
	return set, nil
}
