package finding

import (
	"maps"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/DrSkyle/wastewatch/pkg/engine/confidence"
	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

var daysPerMonth = decimal.NewFromInt(30)

// Assemble merges a classification with its costs and confidence.
//
// Monthly waste is current minus optimized, floored at zero. Already-wasted is
// monthly waste × ageDays / 30. A negative cost is an invariant violation and
// is returned as an error, never clamped.
func Assemble(desc resource.Descriptor, cls Classification, current, optimized decimal.Decimal, tier confidence.Tier) (Finding, error) {
	const op = "finding.Assemble"
	if current.IsNegative() {
		return Finding{}, errs.Errorf(errs.KindInvariantViolation, op, "negative current cost %s", current).WithResource(desc.Key())
	}
	if optimized.IsNegative() {
		return Finding{}, errs.Errorf(errs.KindInvariantViolation, op, "negative optimized cost %s", optimized).WithResource(desc.Key())
	}

	waste := current.Sub(optimized)
	if waste.IsNegative() {
		waste = decimal.Zero
	}
	age := desc.AgeDays()
	already := waste.Mul(decimal.NewFromFloat(age)).Div(daysPerMonth).Round(4)

	meta := maps.Clone(cls.Metadata)
	if meta == nil {
		meta = make(map[string]string)
	}
	meta["age_days"] = strconv.FormatFloat(age, 'f', 2, 64)

	return Finding{
		ResourceID:           desc.ID,
		ResourceType:         desc.Type,
		Region:               desc.Region,
		RuleID:               cls.RuleID,
		Classification:       cls.Label,
		Confidence:           tier,
		AgeDays:              age,
		CurrentMonthlyCost:   current,
		OptimizedMonthlyCost: optimized,
		MonthlyWaste:         waste,
		AlreadyWasted:        already,
		Recommendation:       cls.Recommendation.Clone(),
		Metadata:             meta,
	}, nil
}
