package history

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/wastewatch/pkg/engine/finding"
	"github.com/DrSkyle/wastewatch/pkg/engine/scan"
	"github.com/DrSkyle/wastewatch/pkg/storage"
)

var day0 = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

func snap(id string, day int, waste string) Snapshot {
	return Snapshot{
		ScanID:       id,
		Timestamp:    day0.AddDate(0, 0, day).Unix(),
		MonthlyWaste: decimal.RequireFromString(waste),
	}
}

func TestFromResult(t *testing.T) {
	res := &scan.Result{
		ID:             "scan-1",
		RuleSetVersion: "v1",
		FinishedAt:     day0,
		Jobs: []scan.Job{
			{Region: "us-east-1", State: scan.Completed},
			{Region: "eu-west-1", State: scan.Failed},
			{Region: "us-east-1", State: scan.Completed},
		},
		Findings: []finding.Finding{
			{Classification: "idle", MonthlyWaste: decimal.NewFromInt(10), AlreadyWasted: decimal.NewFromInt(30)},
			{Classification: "idle", MonthlyWaste: decimal.RequireFromString("2.5"), AlreadyWasted: decimal.Zero},
			{Classification: "never_used", MonthlyWaste: decimal.NewFromInt(1), AlreadyWasted: decimal.NewFromInt(4)},
		},
	}
	s := FromResult(res)
	assert.Equal(t, "scan-1", s.ScanID)
	assert.Equal(t, []string{"eu-west-1", "us-east-1"}, s.Regions)
	assert.Equal(t, 3, s.FindingCount)
	assert.Equal(t, 1, s.FailedJobs)
	assert.Equal(t, "13.5", s.MonthlyWaste.String())
	assert.Equal(t, "34", s.AlreadyWasted.String())
	assert.Equal(t, map[string]int{"idle": 2, "never_used": 1}, s.ByClassification)
}

func testBackend(t *testing.T, b Backend) {
	t.Helper()
	got, err := b.Load(10)
	require.NoError(t, err)
	assert.Empty(t, got)

	for i, w := range []string{"100", "120", "90"} {
		require.NoError(t, b.Append(snap(string(rune('a'+i)), i, w)))
	}

	got, err = b.Load(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ScanID)
	assert.Equal(t, "c", got[1].ScanID)
	assert.True(t, got[1].MonthlyWaste.Equal(decimal.NewFromInt(90)))

	got, err = b.Load(0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestFileBackend(t *testing.T) {
	testBackend(t, NewLocalBackend(t.TempDir()+"/ledger.jsonl"))
}

func TestBoltBackend(t *testing.T) {
	b, err := OpenBolt(t.TempDir())
	require.NoError(t, err)
	defer b.Close()
	testBackend(t, b)
}

func TestBlobBackend(t *testing.T) {
	store := storage.NewLocalStore(t.TempDir())
	b := &BlobBackend{Store: store, Key: "history/ledger.jsonl"}

	require.NoError(t, b.Append(snap("a", 0, "10")))
	require.NoError(t, b.Append(snap("b", 1, "20")))
	got, err := b.Load(5)
	require.NoError(t, err)
	require.Len(t, got, 2)

	raw, err := store.Get(context.Background(), "history/ledger.jsonl")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"scan_id":"b"`)
}

func TestAnalyze(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		r := Analyze(nil, 0)
		assert.Zero(t, r.CurrentWaste)
		assert.Equal(t, time.Duration(-1), r.TimeToBudget)
	})

	t.Run("growing waste", func(t *testing.T) {
		r := Analyze([]Snapshot{snap("a", 0, "100"), snap("b", 1, "110"), snap("c", 2, "140")}, 200)
		assert.Equal(t, 140.0, r.CurrentWaste)
		assert.InDelta(t, 30, r.Velocity, 1e-9)
		assert.InDelta(t, 20, r.Acceleration, 1e-9)
		assert.InDelta(t, 140+30*7+0.5*20*49, r.Projected7d, 1e-9)
		assert.Equal(t, 48*time.Hour, r.TimeToBudget)
		assert.Len(t, r.Alerts, 3)
	})

	t.Run("shrinking waste", func(t *testing.T) {
		r := Analyze([]Snapshot{snap("a", 0, "100"), snap("b", 7, "80")}, 50)
		assert.Less(t, r.Velocity, 0.0)
		assert.Zero(t, r.TimeToBudget)
		assert.Len(t, r.Alerts, 1, "already over budget")
	})
}
