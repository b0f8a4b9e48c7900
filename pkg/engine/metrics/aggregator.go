package metrics

import (
	"context"
	"time"

	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// Set maps metric names to series fetched together in one call.
// A metric the provider could not serve is absent from the set.
type Set map[string]Series

// View narrows every series in the set.
func (s Set) View(w Window, granularity time.Duration) Set {
	out := make(Set, len(s))
	for name, series := range s {
		out[name] = series.View(w, granularity)
	}
	return out
}

// Aggregator fetches utilization series for one resource.
//
// Fetch fails with MetricsUnavailable or InvalidWindow. Missing datapoints
// produce empty series; the caller decides what empty means.
type Aggregator interface {
	Fetch(ctx context.Context, desc resource.Descriptor, names []string, w Window, granularity time.Duration) (Set, error)
}
