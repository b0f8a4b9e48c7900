package scan

import (
	"time"

	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/engine/finding"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// Request selects what a scan covers.
type Request struct {
	Regions       []string
	ResourceTypes []resource.Type
	// RuleSetVersion pins a published rule set; empty means current.
	RuleSetVersion string
	// LookbackOverrides maps rule ids, or "*" for all rules, to lookback days.
	LookbackOverrides map[string]int
}

// Failure records why a job did not complete.
type Failure struct {
	Region       string        `json:"region"`
	ResourceType resource.Type `json:"resource_type"`
	ResourceID   string        `json:"resource_id,omitempty"`
	Kind         errs.Kind     `json:"kind"`
	Message      string        `json:"message"`
}

// Skip records a resource or rule that produced no verdict.
type Skip struct {
	Region       string        `json:"region"`
	ResourceType resource.Type `json:"resource_type"`
	ResourceID   string        `json:"resource_id"`
	RuleID       string        `json:"rule_id,omitempty"`
	Reason       string        `json:"reason"`
}

// Result is the outcome of one scan.
type Result struct {
	ID             string            `json:"id"`
	RuleSetVersion string            `json:"rule_set_version"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	Findings       []finding.Finding `json:"findings"`
	Failures       []Failure         `json:"failures"`
	Jobs           []Job             `json:"jobs"`
	Skips          []Skip            `json:"skips,omitempty"`
}

// Completed returns the jobs that finished successfully.
func (r *Result) Completed() []Job {
	var out []Job
	for _, j := range r.Jobs {
		if j.State == Completed {
			out = append(out, j)
		}
	}
	return out
}

// FindingsFor returns findings for one resource id.
func (r *Result) FindingsFor(resourceID string) []finding.Finding {
	var out []finding.Finding
	for _, f := range r.Findings {
		if f.ResourceID == resourceID {
			out = append(out, f)
		}
	}
	return out
}
