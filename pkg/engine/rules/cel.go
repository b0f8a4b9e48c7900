package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/DrSkyle/wastewatch/pkg/engine/metrics"
)

// celAggregates are exposed per metric as metrics["Name"]["avg"] and so on.
var celAggregates = []string{"sum", "avg", "max", "min", "count", "p50", "p90", "p95", "p99"}

// newCELEnv declares the variables a CEL leaf can read.
func newCELEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("resource_type", cel.StringType),
		cel.Variable("region", cel.StringType),
		cel.Variable("age_days", cel.DoubleType),
		cel.Variable("attrs", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("thresholds", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("metrics", cel.MapType(cel.StringType, cel.MapType(cel.StringType, cel.DoubleType))),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}
	return env, nil
}

type celExpr struct {
	source  string
	metrics []string
	prg     cel.Program
}

func compileCEL(env *cel.Env, spec CELSpec) (celExpr, error) {
	ast, issues := env.Compile(spec.Expr)
	if issues != nil && issues.Err() != nil {
		return celExpr{}, fmt.Errorf("cel compilation error: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return celExpr{}, fmt.Errorf("cel expression %q must return bool, got %s", spec.Expr, out)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return celExpr{}, fmt.Errorf("cel program creation error: %w", err)
	}
	return celExpr{source: spec.Expr, metrics: spec.Metrics, prg: prg}, nil
}

// eval maps evaluation errors, such as a missing map key, to unknown.
func (c celExpr) eval(ec *evalContext) truth {
	out, _, err := c.prg.Eval(ec.celActivation())
	if err != nil {
		return tUnknown
	}
	match, ok := out.Value().(bool)
	if !ok {
		return tUnknown
	}
	return truthOf(match)
}

func (c celExpr) String() string { return "cel(" + c.source + ")" }

func celMetricView(series metrics.Series) map[string]float64 {
	view := make(map[string]float64, len(celAggregates))
	for _, name := range celAggregates {
		agg, _ := metrics.ParseAggregation(name)
		view[name] = series.Aggregate(agg)
	}
	return view
}
