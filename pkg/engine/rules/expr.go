package rules

import (
	"fmt"
	"strings"

	"github.com/DrSkyle/wastewatch/pkg/engine/metrics"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// truth is a three-valued result. unknown arises from missing or
// indeterminate data and propagates by Kleene logic.
type truth int8

const (
	tFalse truth = iota
	tTrue
	tUnknown
)

func truthOf(b bool) truth {
	if b {
		return tTrue
	}
	return tFalse
}

// Expr is a compiled predicate node.
type Expr interface {
	eval(ec *evalContext) truth
	String() string
}

type allExpr []Expr
type anyExpr []Expr
type notExpr struct{ inner Expr }

func (a allExpr) eval(ec *evalContext) truth {
	out := tTrue
	for _, e := range a {
		switch e.eval(ec) {
		case tFalse:
			return tFalse
		case tUnknown:
			out = tUnknown
		}
	}
	return out
}

func (a anyExpr) eval(ec *evalContext) truth {
	out := tFalse
	for _, e := range a {
		switch e.eval(ec) {
		case tTrue:
			return tTrue
		case tUnknown:
			out = tUnknown
		}
	}
	return out
}

func (n notExpr) eval(ec *evalContext) truth {
	switch n.inner.eval(ec) {
	case tTrue:
		return tFalse
	case tFalse:
		return tTrue
	}
	return tUnknown
}

func (a allExpr) String() string { return joinExprs("all", a) }
func (a anyExpr) String() string { return joinExprs("any", a) }
func (n notExpr) String() string { return "not(" + n.inner.String() + ")" }

func joinExprs(name string, exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpLT CompareOp = "<"
	OpLE CompareOp = "<="
	OpGT CompareOp = ">"
	OpGE CompareOp = ">="
	OpEQ CompareOp = "=="
	OpNE CompareOp = "!="
)

func (op CompareOp) valid() bool {
	switch op {
	case OpLT, OpLE, OpGT, OpGE, OpEQ, OpNE:
		return true
	}
	return false
}

func (op CompareOp) ordering() bool {
	return op != OpEQ && op != OpNE
}

type compareExpr struct {
	left, right Operand
	op          CompareOp
}

func (c compareExpr) eval(ec *evalContext) truth {
	l, lok := c.left.value(ec)
	r, rok := c.right.value(ec)
	if !lok || !rok {
		return tUnknown
	}

	if ls, ok := l.Text(); ok {
		rs, ok := r.Text()
		if !ok || c.op.ordering() {
			return tUnknown
		}
		if c.op == OpEQ {
			return truthOf(ls == rs)
		}
		return truthOf(ls != rs)
	}

	lf, lok := l.Float()
	rf, rok := r.Float()
	if !lok || !rok {
		return tUnknown
	}
	switch c.op {
	case OpLT:
		return truthOf(lf < rf)
	case OpLE:
		return truthOf(lf <= rf)
	case OpGT:
		return truthOf(lf > rf)
	case OpGE:
		return truthOf(lf >= rf)
	case OpEQ:
		return truthOf(lf == rf)
	case OpNE:
		return truthOf(lf != rf)
	}
	return tUnknown
}

func (c compareExpr) String() string {
	return fmt.Sprintf("%s %s %s", c.left, c.op, c.right)
}

// Operand yields a typed value, or false when the value is unknown.
type Operand interface {
	value(ec *evalContext) (resource.Value, bool)
	String() string
}

type attrOperand struct{ name string }

func (a attrOperand) value(ec *evalContext) (resource.Value, bool) {
	v, ok := ec.desc.Attr(a.name)
	if ok {
		ec.note(a.String(), v.String())
	}
	return v, ok
}

func (a attrOperand) String() string { return a.name }

type metricOperand struct {
	name string
	agg  metrics.Aggregation
}

func (m metricOperand) value(ec *evalContext) (resource.Value, bool) {
	series, ok := ec.set[m.name]
	if !ok {
		return resource.Value{}, false
	}
	if series.Empty() && ec.rule.EmptySeries == EmptyIndeterminate {
		return resource.Value{}, false
	}
	v := resource.Number(series.Aggregate(m.agg))
	ec.note(m.String(), v.String())
	return v, true
}

func (m metricOperand) String() string {
	return fmt.Sprintf("%s(%s)", m.agg, m.name)
}

type constOperand struct{ v resource.Value }

func (c constOperand) value(*evalContext) (resource.Value, bool) { return c.v, true }

func (c constOperand) String() string {
	if s, ok := c.v.Text(); ok {
		return fmt.Sprintf("%q", s)
	}
	return c.v.String()
}

type thresholdOperand struct{ name string }

func (t thresholdOperand) value(ec *evalContext) (resource.Value, bool) {
	v, ok := ec.rule.Thresholds[t.name]
	return resource.Number(v), ok
}

func (t thresholdOperand) String() string { return "threshold." + t.name }

type ageOperand struct{}

func (ageOperand) value(ec *evalContext) (resource.Value, bool) {
	return resource.Number(ec.desc.AgeDays()), true
}

func (ageOperand) String() string { return "age_days" }

type arithOperand struct {
	div  bool
	args []Operand
}

func (a arithOperand) value(ec *evalContext) (resource.Value, bool) {
	var acc float64
	for i, arg := range a.args {
		v, ok := arg.value(ec)
		if !ok {
			return resource.Value{}, false
		}
		f, ok := v.Float()
		if !ok {
			return resource.Value{}, false
		}
		switch {
		case i == 0:
			acc = f
		case a.div:
			if f == 0 {
				return resource.Value{}, false
			}
			acc /= f
		default:
			acc *= f
		}
	}
	return resource.Number(acc), true
}

func (a arithOperand) String() string {
	sep := " * "
	if a.div {
		sep = " / "
	}
	parts := make([]string, len(a.args))
	for i, arg := range a.args {
		parts[i] = arg.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
