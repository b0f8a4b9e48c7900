package scan

import (
	"cmp"
	"slices"
	"sync"

	"github.com/DrSkyle/wastewatch/pkg/engine/finding"
)

type entry struct {
	job      int
	resource string
	seq      int
	finding  finding.Finding
}

// accumulator collects findings from concurrent jobs. It is append-only.
type accumulator struct {
	mu      sync.Mutex
	entries []entry
	seen    map[string]struct{}
	skips   []Skip
}

func newAccumulator() *accumulator {
	return &accumulator{seen: make(map[string]struct{})}
}

// addBatch appends all findings of one resource at once, dropping
// (resource, classification) pairs already present. It returns how many were kept.
func (a *accumulator) addBatch(job int, batch []finding.Finding) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := 0
	for i, f := range batch {
		k := f.Key()
		if _, dup := a.seen[k]; dup {
			continue
		}
		a.seen[k] = struct{}{}
		a.entries = append(a.entries, entry{job: job, resource: f.ResourceID, seq: i, finding: f})
		kept++
	}
	return kept
}

func (a *accumulator) addSkips(skips []Skip) {
	if len(skips) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skips = append(a.skips, skips...)
}

// findings returns every finding ordered by job, then resource id, then rule order.
func (a *accumulator) findings() []finding.Finding {
	a.mu.Lock()
	entries := slices.Clone(a.entries)
	a.mu.Unlock()

	slices.SortStableFunc(entries, func(x, y entry) int {
		return cmp.Or(
			cmp.Compare(x.job, y.job),
			cmp.Compare(x.resource, y.resource),
			cmp.Compare(x.seq, y.seq),
		)
	})
	out := make([]finding.Finding, len(entries))
	for i, e := range entries {
		out[i] = e.finding
	}
	return out
}

func (a *accumulator) skipped() []Skip {
	a.mu.Lock()
	skips := slices.Clone(a.skips)
	a.mu.Unlock()

	slices.SortStableFunc(skips, func(x, y Skip) int {
		return cmp.Or(
			cmp.Compare(x.Region, y.Region),
			cmp.Compare(x.ResourceType, y.ResourceType),
			cmp.Compare(x.ResourceID, y.ResourceID),
			cmp.Compare(x.RuleID, y.RuleID),
		)
	})
	return skips
}
