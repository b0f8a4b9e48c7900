package metrics

import (
	"fmt"
	"strconv"
	"strings"
)

// Statistic is how a provider reduced raw observations into one datapoint.
// It decides how datapoints combine when a series is rolled up.
type Statistic string

const (
	StatSum     Statistic = "Sum"
	StatAverage Statistic = "Average"
	StatMaximum Statistic = "Maximum"
	StatMinimum Statistic = "Minimum"
)

// AggKind selects a derived aggregate over a series.
type AggKind uint8

const (
	AggSum AggKind = iota + 1
	AggAvg
	AggMax
	AggMin
	AggCount
	AggPercentile
)

// Aggregation is a parsed aggregate such as "avg" or "p99".
type Aggregation struct {
	Kind       AggKind
	Percentile float64
}

// ParseAggregation accepts sum, avg, max, min, count and pNN (0 < NN <= 100).
func ParseAggregation(s string) (Aggregation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum":
		return Aggregation{Kind: AggSum}, nil
	case "avg", "average", "mean":
		return Aggregation{Kind: AggAvg}, nil
	case "max", "maximum":
		return Aggregation{Kind: AggMax}, nil
	case "min", "minimum":
		return Aggregation{Kind: AggMin}, nil
	case "count":
		return Aggregation{Kind: AggCount}, nil
	}
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "p"); ok {
		p, err := strconv.ParseFloat(rest, 64)
		if err == nil && p > 0 && p <= 100 {
			return Aggregation{Kind: AggPercentile, Percentile: p}, nil
		}
	}
	return Aggregation{}, fmt.Errorf("unknown aggregation %q", s)
}

func (a Aggregation) String() string {
	switch a.Kind {
	case AggSum:
		return "sum"
	case AggAvg:
		return "avg"
	case AggMax:
		return "max"
	case AggMin:
		return "min"
	case AggCount:
		return "count"
	case AggPercentile:
		return "p" + strconv.FormatFloat(a.Percentile, 'f', -1, 64)
	}
	return "unknown"
}
