package finding

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/wastewatch/pkg/engine/confidence"
	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/engine/pricing"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

var now = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

func desc(ageDays int) resource.Descriptor {
	return resource.NewDescriptor(resource.DynamoDBTable, "orders", "us-east-1", now.AddDate(0, 0, -ageDays), now, nil)
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestAssembleComputesWaste(t *testing.T) {
	cls := Classification{
		RuleID:         "ddb-never-used",
		Label:          "never_used",
		Recommendation: pricing.Recommendation{Action: pricing.ActionRemove},
		Metadata:       map[string]string{"rule_set_version": "v1"},
	}

	f, err := Assemble(desc(90), cls, money("120"), decimal.Zero, confidence.High)
	require.NoError(t, err)

	assert.Equal(t, "orders", f.ResourceID)
	assert.Equal(t, "never_used", f.Classification)
	assert.Equal(t, confidence.High, f.Confidence)
	assert.True(t, f.MonthlyWaste.Equal(money("120")))
	// 120 * 90 / 30
	assert.True(t, f.AlreadyWasted.Equal(money("360")), f.AlreadyWasted.String())
	assert.Equal(t, "90.00", f.Metadata["age_days"])
	assert.Equal(t, "v1", f.Metadata["rule_set_version"])
}

func TestAssembleFloorsWasteAtZero(t *testing.T) {
	f, err := Assemble(desc(10), Classification{Label: "x"}, money("5"), money("8"), confidence.Medium)
	require.NoError(t, err)
	assert.True(t, f.MonthlyWaste.IsZero())
	assert.True(t, f.AlreadyWasted.IsZero())
}

func TestAssembleRejectsNegativeCost(t *testing.T) {
	_, err := Assemble(desc(10), Classification{Label: "x"}, money("-1"), decimal.Zero, confidence.Medium)
	assert.ErrorIs(t, err, errs.ErrInvariantViolation)

	_, err = Assemble(desc(10), Classification{Label: "x"}, money("1"), money("-0.01"), confidence.Medium)
	assert.ErrorIs(t, err, errs.ErrInvariantViolation)
}

func TestAssembleCopiesInputs(t *testing.T) {
	meta := map[string]string{"k": "v"}
	cfg := map[string]resource.Value{"provisioned_read_capacity": resource.Number(5)}
	cls := Classification{Label: "x", Metadata: meta, Recommendation: pricing.Recommendation{Action: pricing.ActionModify, Config: cfg}}

	f, err := Assemble(desc(1), cls, money("1"), decimal.Zero, confidence.Medium)
	require.NoError(t, err)

	meta["k"] = "changed"
	cfg["provisioned_read_capacity"] = resource.Number(99)
	assert.Equal(t, "v", f.Metadata["k"])
	v, _ := f.Recommendation.Config["provisioned_read_capacity"].Float()
	assert.Equal(t, 5.0, v)
}

func TestFindingKey(t *testing.T) {
	f, _ := Assemble(desc(1), Classification{Label: "never_used"}, money("1"), decimal.Zero, confidence.Medium)
	assert.Equal(t, "aws_dynamodb_table/us-east-1/orders#never_used", f.Key())
}
