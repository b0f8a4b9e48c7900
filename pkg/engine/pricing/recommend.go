package pricing

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/DrSkyle/wastewatch/pkg/engine/metrics"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// Action is what a recommendation asks the operator to do.
type Action string

const (
	ActionRemove Action = "remove"
	ActionModify Action = "modify"
	ActionReview Action = "review"
)

// Recommendation is the configuration a finding proposes instead of the current one.
type Recommendation struct {
	Action  Action                    `json:"action"`
	Config  map[string]resource.Value `json:"config,omitempty"`
	Summary string                    `json:"summary,omitempty"`
}

// Clone returns a deep copy.
func (r Recommendation) Clone() Recommendation {
	r.Config = maps.Clone(r.Config)
	return r
}

// RightSize sizes an attribute from observed peak usage.
type RightSize struct {
	Attribute string `yaml:"attribute" validate:"required"`
	Metric    string `yaml:"metric" validate:"required"`
	// Percentile of the metric series taken as peak usage. Defaults to 99.
	Percentile   float64 `yaml:"percentile" validate:"gte=0,lte=100"`
	SafetyMargin float64 `yaml:"safety_margin" validate:"gte=0"`
	// PercentOf treats the metric as a utilization percentage of this attribute.
	PercentOf string    `yaml:"percent_of"`
	Sizes     []float64 `yaml:"sizes" validate:"dive,gt=0"`
	Step      float64   `yaml:"step" validate:"gte=0"`
	Min       float64   `yaml:"min" validate:"gte=0"`
}

// Derive sets an attribute from a metric aggregate, e.g. monthly request volume.
type Derive struct {
	Attribute string  `yaml:"attribute" validate:"required"`
	Metric    string  `yaml:"metric" validate:"required"`
	Agg       string  `yaml:"agg" validate:"required"`
	Factor    float64 `yaml:"factor"`
}

// Plan is the declarative recommendation attached to a detection rule.
type Plan struct {
	Remove    bool           `yaml:"remove"`
	Set       map[string]any `yaml:"set"`
	RightSize []RightSize    `yaml:"rightsize" validate:"dive"`
	Derive    []Derive       `yaml:"derive" validate:"dive"`
	Summary   string         `yaml:"summary"`
}

// Validate checks semantic constraints the struct tags cannot express.
func (p Plan) Validate() error {
	if p.Remove && (len(p.Set) > 0 || len(p.RightSize) > 0) {
		return fmt.Errorf("recommend: remove cannot be combined with set or rightsize")
	}
	for k, v := range p.Set {
		if _, ok := resource.ValueOf(v); !ok {
			return fmt.Errorf("recommend: set.%s has unsupported value %v", k, v)
		}
	}
	for _, rs := range p.RightSize {
		if len(rs.Sizes) == 0 && rs.Step == 0 {
			return fmt.Errorf("recommend: rightsize %s needs sizes or step", rs.Attribute)
		}
		if rs.SafetyMargin != 0 && rs.SafetyMargin < 1 {
			return fmt.Errorf("recommend: rightsize %s safety_margin must be >= 1", rs.Attribute)
		}
	}
	for _, d := range p.Derive {
		if _, err := metrics.ParseAggregation(d.Agg); err != nil {
			return fmt.Errorf("recommend: derive %s: %w", d.Attribute, err)
		}
	}
	return nil
}

// Metrics lists the metric names the plan reads.
func (p Plan) Metrics() []string {
	var out []string
	for _, rs := range p.RightSize {
		out = append(out, rs.Metric)
	}
	for _, d := range p.Derive {
		out = append(out, d.Metric)
	}
	return out
}

// Build turns the plan into a concrete recommendation for desc.
// Missing metrics leave the corresponding attribute untouched.
func (p Plan) Build(desc resource.Descriptor, set metrics.Set) Recommendation {
	if p.Remove {
		return Recommendation{Action: ActionRemove, Summary: p.summary("delete the resource")}
	}

	cfg := make(map[string]resource.Value)
	var parts []string
	for _, k := range slices.Sorted(maps.Keys(p.Set)) {
		v, _ := resource.ValueOf(p.Set[k])
		cfg[k] = v
		parts = append(parts, fmt.Sprintf("%s=%s", k, v))
	}

	for _, rs := range p.RightSize {
		series, ok := set[rs.Metric]
		if !ok {
			continue
		}
		current, ok := desc.Number(rs.Attribute)
		if !ok {
			continue
		}
		pct := rs.Percentile
		if pct == 0 {
			pct = 99
		}
		usage := series.Percentile(pct)
		if rs.PercentOf != "" {
			base, ok := desc.Number(rs.PercentOf)
			if !ok {
				continue
			}
			usage = usage / 100 * base
		}
		margin := rs.SafetyMargin
		if margin == 0 {
			margin = 1
		}
		next := math.Min(current, RoundToSize(usage*margin, rs.Sizes, rs.Step, rs.Min))
		cfg[rs.Attribute] = resource.Number(next)
		parts = append(parts, fmt.Sprintf("%s %s -> %s", rs.Attribute, formatNumber(current), formatNumber(next)))
	}

	for _, d := range p.Derive {
		series, ok := set[d.Metric]
		if !ok {
			continue
		}
		agg, _ := metrics.ParseAggregation(d.Agg)
		factor := d.Factor
		if factor == 0 {
			factor = 1
		}
		cfg[d.Attribute] = resource.Number(series.Aggregate(agg) * factor)
	}

	action := ActionModify
	if len(cfg) == 0 {
		action = ActionReview
	}
	return Recommendation{Action: action, Config: cfg, Summary: p.summary(strings.Join(parts, ", "))}
}

func (p Plan) summary(fallback string) string {
	if p.Summary != "" {
		return p.Summary
	}
	return fallback
}

// RoundToSize rounds target up to the nearest valid size. With a size list the
// smallest size >= target wins, or the largest size if none is big enough. With
// a step the target is rounded up to a multiple of step. The result is never
// below minSize.
func RoundToSize(target float64, sizes []float64, step, minSize float64) float64 {
	out := target
	switch {
	case len(sizes) > 0:
		sorted := slices.Sorted(slices.Values(sizes))
		out = sorted[len(sorted)-1]
		for _, s := range sorted {
			if s >= target {
				out = s
				break
			}
		}
	case step > 0:
		out = math.Ceil(target/step) * step
	}
	return math.Max(out, minSize)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
