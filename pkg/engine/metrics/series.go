// Package metrics holds read-only time series and the aggregator contract.
package metrics

import (
	"math"
	"slices"
	"time"
)

// Sample is one datapoint.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// Series is an ordered, read-only set of samples for one metric of one resource.
// A series with no samples means no data was published; it is never zero-filled.
type Series struct {
	resourceID  string
	name        string
	stat        Statistic
	window      Window
	granularity time.Duration
	samples     []Sample
}

// NewSeries copies samples, drops those outside w and sorts by timestamp.
func NewSeries(resourceID, name string, stat Statistic, w Window, granularity time.Duration, samples []Sample) Series {
	kept := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if w.Contains(s.Timestamp) && !math.IsNaN(s.Value) {
			kept = append(kept, s)
		}
	}
	slices.SortStableFunc(kept, func(a, b Sample) int { return a.Timestamp.Compare(b.Timestamp) })
	return Series{
		resourceID:  resourceID,
		name:        name,
		stat:        stat,
		window:      w,
		granularity: granularity,
		samples:     kept,
	}
}

func (s Series) ResourceID() string         { return s.resourceID }
func (s Series) Name() string               { return s.name }
func (s Series) Statistic() Statistic       { return s.stat }
func (s Series) Window() Window             { return s.window }
func (s Series) Granularity() time.Duration { return s.granularity }
func (s Series) Len() int                   { return len(s.samples) }
func (s Series) Empty() bool                { return len(s.samples) == 0 }
func (s Series) Samples() []Sample          { return slices.Clone(s.samples) }
func (s Series) ExpectedPoints() int        { return s.window.ExpectedPoints(s.granularity) }

// Coverage is the observed fraction of expected datapoints, capped at 1.
func (s Series) Coverage() float64 {
	exp := s.ExpectedPoints()
	if exp == 0 {
		return 0
	}
	return math.Min(1, float64(len(s.samples))/float64(exp))
}

// Sum returns 0 for an empty series, as do the other aggregates.
func (s Series) Sum() float64 {
	var total float64
	for _, p := range s.samples {
		total += p.Value
	}
	return total
}

func (s Series) Average() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	return s.Sum() / float64(len(s.samples))
}

func (s Series) Max() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	m := s.samples[0].Value
	for _, p := range s.samples[1:] {
		m = math.Max(m, p.Value)
	}
	return m
}

func (s Series) Min() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	m := s.samples[0].Value
	for _, p := range s.samples[1:] {
		m = math.Min(m, p.Value)
	}
	return m
}

// Percentile uses the nearest-rank method.
func (s Series) Percentile(p float64) float64 {
	n := len(s.samples)
	if n == 0 {
		return 0
	}
	vals := make([]float64, n)
	for i, smp := range s.samples {
		vals[i] = smp.Value
	}
	slices.Sort(vals)
	rank := int(math.Ceil(p / 100 * float64(n)))
	rank = max(1, min(rank, n))
	return vals[rank-1]
}

// Aggregate evaluates a parsed aggregation.
func (s Series) Aggregate(a Aggregation) float64 {
	switch a.Kind {
	case AggSum:
		return s.Sum()
	case AggAvg:
		return s.Average()
	case AggMax:
		return s.Max()
	case AggMin:
		return s.Min()
	case AggCount:
		return float64(s.Len())
	case AggPercentile:
		return s.Percentile(a.Percentile)
	}
	return 0
}

// View narrows the series to w and coarsens it to granularity. Buckets are
// aligned to w.Start and combined according to the series statistic.
func (s Series) View(w Window, granularity time.Duration) Series {
	if granularity < s.granularity {
		granularity = s.granularity
	}
	narrowed := NewSeries(s.resourceID, s.name, s.stat, w, granularity, s.samples)
	if granularity == s.granularity || narrowed.Empty() {
		return narrowed
	}

	type bucket struct {
		ts  time.Time
		acc float64
		n   int
	}
	var buckets []bucket
	for _, p := range narrowed.samples {
		idx := int(p.Timestamp.Sub(w.Start) / granularity)
		ts := w.Start.Add(time.Duration(idx) * granularity)
		if len(buckets) == 0 || !buckets[len(buckets)-1].ts.Equal(ts) {
			buckets = append(buckets, bucket{ts: ts, acc: p.Value, n: 1})
			continue
		}
		b := &buckets[len(buckets)-1]
		switch s.stat {
		case StatMaximum:
			b.acc = math.Max(b.acc, p.Value)
		case StatMinimum:
			b.acc = math.Min(b.acc, p.Value)
		default:
			b.acc += p.Value
		}
		b.n++
	}

	rolled := make([]Sample, len(buckets))
	for i, b := range buckets {
		v := b.acc
		if s.stat == StatAverage {
			v /= float64(b.n)
		}
		rolled[i] = Sample{Timestamp: b.ts, Value: v}
	}
	narrowed.samples = rolled
	return narrowed
}
