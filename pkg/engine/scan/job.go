package scan

import (
	"fmt"
	"time"

	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// State is a job's position in Pending → Running → {Completed, Failed}.
type State int

const (
	Pending State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return "pending"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool { return s == Completed || s == Failed }

// Job is one (region, resource type) unit of work. The orchestrator owns the
// live value; callers only ever see copies.
type Job struct {
	Index          int           `json:"index"`
	Region         string        `json:"region"`
	ResourceType   resource.Type `json:"resource_type"`
	RuleSetVersion string        `json:"rule_set_version"`
	State          State         `json:"state"`
	FailureKind    errs.Kind     `json:"failure_kind,omitempty"`
	Message        string        `json:"message,omitempty"`
	Resources      int           `json:"resources"`
	Findings       int           `json:"findings"`
	StartedAt      time.Time     `json:"started_at,omitzero"`
	FinishedAt     time.Time     `json:"finished_at,omitzero"`
}

func (j *Job) String() string {
	return fmt.Sprintf("%s/%s", j.Region, j.ResourceType)
}

func (j *Job) start(now time.Time) error {
	if j.State != Pending {
		return fmt.Errorf("job %s: cannot start from %s", j, j.State)
	}
	j.State = Running
	j.StartedAt = now
	return nil
}

func (j *Job) complete(now time.Time) error {
	if j.State != Running {
		return fmt.Errorf("job %s: cannot complete from %s", j, j.State)
	}
	j.State = Completed
	j.FinishedAt = now
	return nil
}

// fail is valid from Pending or Running.
func (j *Job) fail(now time.Time, kind errs.Kind, msg string) error {
	if j.State.Terminal() {
		return fmt.Errorf("job %s: already %s", j, j.State)
	}
	j.State = Failed
	j.FailureKind = kind
	j.Message = msg
	j.FinishedAt = now
	return nil
}
