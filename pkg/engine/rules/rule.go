package rules

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/DrSkyle/wastewatch/pkg/engine/metrics"
	"github.com/DrSkyle/wastewatch/pkg/engine/pricing"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// Reserved threshold names.
const (
	ThresholdLookbackDays = "lookback_days"
	ThresholdMinAgeDays   = "min_age_days"
)

// DefaultLookbackDays applies when a rule names no lookback_days threshold.
const DefaultLookbackDays = 30

// EmptySeriesPolicy decides what a series without datapoints means.
type EmptySeriesPolicy string

const (
	// EmptyZero treats no data as no usage.
	EmptyZero EmptySeriesPolicy = "zero"
	// EmptyIndeterminate treats no data as unknown.
	EmptyIndeterminate EmptySeriesPolicy = "indeterminate"
)

// Rule is a compiled, immutable detection rule.
type Rule struct {
	ID             string
	ResourceType   resource.Type
	Classification string
	Description    string
	Granularity    time.Duration
	LookbackDays   int
	MinAgeDays     float64
	Thresholds     map[string]float64
	EmptySeries    EmptySeriesPolicy
	// TolerateMissing lets evaluation proceed when a metric is unavailable.
	TolerateMissing bool
	Recommend       pricing.Plan

	when    Expr
	metrics []string
}

// Metrics returns the metric names the rule reads, sorted.
func (r *Rule) Metrics() []string { return slices.Clone(r.metrics) }

// Predicate renders the compiled expression.
func (r *Rule) Predicate() string { return r.when.String() }

// WithLookback returns a copy of r using a different lookback window.
func (r *Rule) WithLookback(days int) *Rule {
	c := *r
	c.LookbackDays = days
	c.Thresholds = maps.Clone(r.Thresholds)
	c.Thresholds[ThresholdLookbackDays] = float64(days)
	return &c
}

// Window is the metrics window the rule evaluates for desc.
func (r *Rule) Window(desc resource.Descriptor) (metrics.Window, error) {
	return metrics.Lookback(desc.ObservedAt, r.LookbackDays)
}

// compiler turns RuleSpecs into Rules, collecting every problem it finds.
type compiler struct {
	env  *cel.Env
	errs []error
}

func (c *compiler) fail(ruleID, format string, args ...any) {
	c.errs = append(c.errs, fmt.Errorf("rule %s: %s", ruleID, fmt.Sprintf(format, args...)))
}

func (c *compiler) compileRule(spec RuleSpec) *Rule {
	r := &Rule{
		ID:              spec.ID,
		ResourceType:    resource.Type(spec.ResourceType),
		Classification:  spec.Classification,
		Description:     spec.Description,
		Granularity:     metrics.DefaultGranularity,
		LookbackDays:    DefaultLookbackDays,
		Thresholds:      maps.Clone(spec.Thresholds),
		EmptySeries:     EmptySeriesPolicy(spec.EmptySeries),
		TolerateMissing: spec.TolerateMissing,
		Recommend:       spec.Recommend,
	}
	if r.Thresholds == nil {
		r.Thresholds = make(map[string]float64)
	}

	if spec.Granularity != "" {
		g, err := time.ParseDuration(spec.Granularity)
		if err != nil || g <= 0 {
			c.fail(spec.ID, "invalid granularity %q", spec.Granularity)
		} else {
			r.Granularity = g
		}
	}
	if v, ok := r.Thresholds[ThresholdLookbackDays]; ok {
		if v < 1 || v != float64(int(v)) {
			c.fail(spec.ID, "lookback_days must be a positive whole number, got %v", v)
		}
		r.LookbackDays = int(v)
	}
	r.Thresholds[ThresholdLookbackDays] = float64(r.LookbackDays)
	if v, ok := r.Thresholds[ThresholdMinAgeDays]; ok {
		if v < 0 {
			c.fail(spec.ID, "min_age_days must not be negative")
		}
		r.MinAgeDays = v
	}
	if time.Duration(r.LookbackDays)*24*time.Hour < r.Granularity {
		c.fail(spec.ID, "granularity %s exceeds lookback of %d days", r.Granularity, r.LookbackDays)
	}

	names := make(map[string]struct{})
	r.when = c.compileExpr(spec.ID, spec.When, r, names)
	for _, m := range spec.Recommend.Metrics() {
		names[m] = struct{}{}
	}
	r.metrics = slices.Sorted(maps.Keys(names))

	if len(r.metrics) > 0 && r.EmptySeries == "" {
		c.fail(spec.ID, "reads metrics %v but declares no empty_series policy (zero or indeterminate)", r.metrics)
	}
	if err := spec.Recommend.Validate(); err != nil {
		c.fail(spec.ID, "%v", err)
	}
	return r
}

func (c *compiler) compileExpr(ruleID string, spec ExprSpec, r *Rule, names map[string]struct{}) Expr {
	set := 0
	for _, present := range []bool{spec.All != nil, spec.Any != nil, spec.Not != nil, spec.Compare != nil, spec.CEL != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		c.fail(ruleID, "expression must set exactly one of all, any, not, compare, cel (got %d)", set)
		return allExpr{}
	}

	switch {
	case spec.All != nil || spec.Any != nil:
		children := spec.All
		if spec.Any != nil {
			children = spec.Any
		}
		if len(children) == 0 {
			c.fail(ruleID, "all/any needs at least one child")
		}
		out := make([]Expr, len(children))
		for i, child := range children {
			out[i] = c.compileExpr(ruleID, child, r, names)
		}
		if spec.Any != nil {
			return anyExpr(out)
		}
		return allExpr(out)

	case spec.Not != nil:
		return notExpr{inner: c.compileExpr(ruleID, *spec.Not, r, names)}

	case spec.CEL != nil:
		expr, err := compileCEL(c.env, *spec.CEL)
		if err != nil {
			c.fail(ruleID, "%v", err)
			return allExpr{}
		}
		for _, m := range spec.CEL.Metrics {
			names[m] = struct{}{}
		}
		return expr
	}

	cmp := spec.Compare
	op := CompareOp(cmp.Op)
	if !op.valid() {
		c.fail(ruleID, "unknown comparison operator %q", cmp.Op)
	}
	left := c.compileOperand(ruleID, cmp.Left, r, names)
	right := c.compileOperand(ruleID, cmp.Right, r, names)
	if op.ordering() {
		for _, side := range []Operand{left, right} {
			if k, ok := side.(constOperand); ok && k.v.Kind() == resource.KindString {
				c.fail(ruleID, "operator %s cannot compare string constant %s", op, k)
			}
		}
	}
	return compareExpr{left: left, right: right, op: op}
}

func (c *compiler) compileOperand(ruleID string, spec OperandSpec, r *Rule, names map[string]struct{}) Operand {
	set := 0
	for _, present := range []bool{spec.Attr != "", spec.Metric != "", spec.Const != nil, spec.Threshold != "", spec.AgeDays, spec.Mul != nil, spec.Div != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		c.fail(ruleID, "operand must set exactly one of attr, metric, const, threshold, age_days, mul, div (got %d)", set)
		return constOperand{}
	}
	if spec.Agg != "" && spec.Metric == "" {
		c.fail(ruleID, "agg %q given without metric", spec.Agg)
	}

	switch {
	case spec.Attr != "":
		return attrOperand{name: spec.Attr}
	case spec.Metric != "":
		aggName := spec.Agg
		if aggName == "" {
			aggName = "avg"
		}
		agg, err := metrics.ParseAggregation(aggName)
		if err != nil {
			c.fail(ruleID, "metric %s: %v", spec.Metric, err)
		}
		names[spec.Metric] = struct{}{}
		return metricOperand{name: spec.Metric, agg: agg}
	case spec.Const != nil:
		v, ok := resource.ValueOf(spec.Const)
		if !ok {
			c.fail(ruleID, "unsupported constant %v", spec.Const)
		}
		return constOperand{v: v}
	case spec.Threshold != "":
		if _, ok := r.Thresholds[spec.Threshold]; !ok {
			c.fail(ruleID, "unknown threshold %q", spec.Threshold)
		}
		return thresholdOperand{name: spec.Threshold}
	case spec.AgeDays:
		return ageOperand{}
	}

	args := spec.Mul
	div := spec.Div != nil
	if div {
		args = spec.Div
		if len(args) != 2 {
			c.fail(ruleID, "div takes exactly two operands")
		}
	} else if len(args) < 2 {
		c.fail(ruleID, "mul takes at least two operands")
	}
	out := arithOperand{div: div, args: make([]Operand, len(args))}
	for i, a := range args {
		out.args[i] = c.compileOperand(ruleID, a, r, names)
	}
	return out
}

func (c *compiler) err() error {
	return errors.Join(c.errs...)
}
