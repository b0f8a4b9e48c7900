package scan

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/wastewatch/pkg/engine/confidence"
	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/engine/finding"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

func TestJobTransitions(t *testing.T) {
	j := &Job{Region: "us-east-1", ResourceType: resource.DynamoDBTable}

	require.Error(t, j.complete(now))
	require.NoError(t, j.start(now))
	require.Error(t, j.start(now))
	require.NoError(t, j.complete(now))
	assert.True(t, j.State.Terminal())

	// terminal states are final
	assert.Error(t, j.fail(now, errs.KindCancelled, "late"))
	assert.Equal(t, Completed, j.State)
}

func TestPendingJobCanFail(t *testing.T) {
	j := &Job{}
	require.NoError(t, j.fail(now, errs.KindCancelled, "context canceled"))
	assert.Equal(t, Failed, j.State)
	assert.Equal(t, errs.KindCancelled, j.FailureKind)
	assert.Error(t, j.start(now))
}

func mustFinding(t *testing.T, id, label string) finding.Finding {
	t.Helper()
	d := resource.NewDescriptor(resource.DynamoDBTable, id, "us-east-1", now.AddDate(0, 0, -40), now, nil)
	f, err := finding.Assemble(d, finding.Classification{Label: label}, decimal.NewFromInt(1), decimal.Zero, confidence.Medium)
	require.NoError(t, err)
	return f
}

func TestAccumulatorOrdersAndDedups(t *testing.T) {
	acc := newAccumulator()

	assert.Equal(t, 2, acc.addBatch(1, []finding.Finding{mustFinding(t, "b", "x"), mustFinding(t, "b", "y")}))
	assert.Equal(t, 1, acc.addBatch(0, []finding.Finding{mustFinding(t, "z", "x")}))
	assert.Equal(t, 1, acc.addBatch(1, []finding.Finding{mustFinding(t, "a", "x")}))
	assert.Equal(t, 0, acc.addBatch(1, []finding.Finding{mustFinding(t, "b", "y")}))

	var got []string
	for _, f := range acc.findings() {
		got = append(got, f.ResourceID+"#"+f.Classification)
	}
	assert.Equal(t, []string{"z#x", "a#x", "b#x", "b#y"}, got)
}
