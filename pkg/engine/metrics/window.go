package metrics

import (
	"time"

	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
)

// DefaultGranularity is one datapoint per day.
const DefaultGranularity = 24 * time.Hour

// Window is the closed interval [Start, End].
type Window struct {
	Start time.Time
	End   time.Time
}

// Lookback builds the window [end-days, end].
func Lookback(end time.Time, days int) (Window, error) {
	if days <= 0 {
		return Window{}, errs.Errorf(errs.KindInvalidWindow, "metrics.Lookback", "lookback must be positive, got %d days", days)
	}
	return Window{Start: end.AddDate(0, 0, -days), End: end}, nil
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Covers reports whether o lies entirely inside w.
func (w Window) Covers(o Window) bool {
	return w.Contains(o.Start) && w.Contains(o.End)
}

// Validate checks the window against a sampling granularity.
func (w Window) Validate(granularity time.Duration) error {
	switch {
	case w.Start.IsZero() || w.End.IsZero():
		return errs.Errorf(errs.KindInvalidWindow, "metrics.Window", "window bounds must be set")
	case !w.End.After(w.Start):
		return errs.Errorf(errs.KindInvalidWindow, "metrics.Window", "end %s is not after start %s", w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	case granularity <= 0:
		return errs.Errorf(errs.KindInvalidWindow, "metrics.Window", "granularity must be positive")
	case granularity > w.Duration():
		return errs.Errorf(errs.KindInvalidWindow, "metrics.Window", "granularity %s exceeds window %s", granularity, w.Duration())
	}
	return nil
}

// ExpectedPoints is the number of datapoints a fully populated series holds.
func (w Window) ExpectedPoints(granularity time.Duration) int {
	if granularity <= 0 {
		return 0
	}
	n := int(w.Duration() / granularity)
	if n < 1 {
		return 1
	}
	return n
}
