package rules

import (
	"math"

	"github.com/DrSkyle/wastewatch/pkg/engine/metrics"
	"github.com/DrSkyle/wastewatch/pkg/engine/pricing"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// Outcome is the result class of evaluating one rule against one resource.
type Outcome int

const (
	NoMatch Outcome = iota
	Match
	// NotApplicable means the rule was skipped, e.g. the resource is younger than min_age_days.
	NotApplicable
	// Indeterminate means the data could not decide the predicate.
	Indeterminate
)

func (o Outcome) String() string {
	switch o {
	case Match:
		return "match"
	case NotApplicable:
		return "not_applicable"
	case Indeterminate:
		return "indeterminate"
	}
	return "no_match"
}

// Skip reasons.
const (
	ReasonTypeMismatch       = "resource_type_mismatch"
	ReasonTooYoung           = "below_min_age"
	ReasonMetricsUnavailable = "metrics_unavailable"
	ReasonInvalidWindow      = "invalid_window"
	ReasonInsufficientData   = "insufficient_data"
)

// Result is the outcome of Evaluate.
type Result struct {
	RuleID         string
	Outcome        Outcome
	Classification string
	Reason         string
	// SignalStrength is the lowest datapoint coverage among the rule's metrics, in [0, 1].
	// Empty series under empty_series: zero count as full coverage.
	SignalStrength float64
	Recommendation pricing.Recommendation
	// Evidence records the attribute and aggregate values the predicate read.
	Evidence map[string]string
}

type evalContext struct {
	rule     *Rule
	desc     resource.Descriptor
	set      metrics.Set
	evidence map[string]string
	celVars  map[string]any
}

func (ec *evalContext) note(key, value string) {
	ec.evidence[key] = value
}

func (ec *evalContext) celActivation() map[string]any {
	if ec.celVars != nil {
		return ec.celVars
	}
	attrs := make(map[string]any)
	for _, name := range ec.desc.AttributeNames() {
		v, _ := ec.desc.Attr(name)
		attrs[name] = v.Interface()
	}
	series := make(map[string]map[string]float64, len(ec.set))
	for name, s := range ec.set {
		if s.Empty() && ec.rule.EmptySeries == EmptyIndeterminate {
			continue
		}
		series[name] = celMetricView(s)
	}
	ec.celVars = map[string]any{
		"id":            ec.desc.ID,
		"resource_type": string(ec.desc.Type),
		"region":        ec.desc.Region,
		"age_days":      ec.desc.AgeDays(),
		"attrs":         attrs,
		"thresholds":    ec.rule.Thresholds,
		"metrics":       series,
	}
	return ec.celVars
}

// Evaluate applies rule to one resource snapshot. It is pure: the descriptor's
// ObservedAt is the only clock, and set is narrowed to the rule's own window.
func Evaluate(rule *Rule, desc resource.Descriptor, set metrics.Set) Result {
	res := Result{RuleID: rule.ID, Classification: rule.Classification, SignalStrength: 1}

	if desc.Type != rule.ResourceType {
		res.Outcome, res.Reason = NotApplicable, ReasonTypeMismatch
		return res
	}
	if desc.AgeDays() < rule.MinAgeDays {
		res.Outcome, res.Reason = NotApplicable, ReasonTooYoung
		return res
	}

	var view metrics.Set
	if len(rule.metrics) > 0 {
		w, err := rule.Window(desc)
		if err != nil {
			res.Outcome, res.Reason = Indeterminate, ReasonInvalidWindow
			return res
		}
		view = make(metrics.Set, len(rule.metrics))
		for _, name := range rule.metrics {
			if s, ok := set[name]; ok {
				view[name] = s.View(w, rule.Granularity)
			}
		}
		res.SignalStrength = signalStrength(rule, view)
		if len(view) < len(rule.metrics) && !rule.TolerateMissing {
			res.Outcome, res.Reason = Indeterminate, ReasonMetricsUnavailable
			return res
		}
	}

	ec := &evalContext{rule: rule, desc: desc, set: view, evidence: make(map[string]string)}
	switch rule.when.eval(ec) {
	case tTrue:
		res.Outcome = Match
		res.Recommendation = rule.Recommend.Build(desc, view)
	case tFalse:
		res.Outcome = NoMatch
	default:
		res.Outcome, res.Reason = Indeterminate, ReasonInsufficientData
	}
	res.Evidence = ec.evidence
	return res
}

// EvaluateAll applies every rule in order and returns one result per rule.
func EvaluateAll(rules []*Rule, desc resource.Descriptor, set metrics.Set) []Result {
	out := make([]Result, 0, len(rules))
	for _, r := range rules {
		out = append(out, Evaluate(r, desc, set))
	}
	return out
}

// signalStrength is the lowest coverage among the rule's metrics. A series
// the rule declares empty-means-zero is a complete observation of no usage.
func signalStrength(rule *Rule, set metrics.Set) float64 {
	strength := 1.0
	for _, name := range rule.metrics {
		s, ok := set[name]
		if !ok {
			return 0
		}
		if s.Empty() && rule.EmptySeries == EmptyZero {
			continue
		}
		strength = math.Min(strength, s.Coverage())
	}
	return strength
}
