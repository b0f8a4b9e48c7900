// Package confidence maps resource age and data coverage to a confidence tier.
package confidence

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Tier is a coarse reliability label for a finding.
type Tier int

const (
	Medium Tier = iota
	High
	Critical
)

func (t Tier) String() string {
	switch t {
	case High:
		return "high"
	case Critical:
		return "critical"
	}
	return "medium"
}

func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	switch string(b) {
	case "medium":
		*t = Medium
	case "high":
		*t = High
	case "critical":
		*t = Critical
	default:
		return fmt.Errorf("unknown confidence tier %q", b)
	}
	return nil
}

// Config holds the age breakpoints and the thin-data cutoff.
type Config struct {
	HighAgeDays     float64 `mapstructure:"high_age_days" validate:"gt=0"`
	CriticalAgeDays float64 `mapstructure:"critical_age_days" validate:"gtfield=HighAgeDays"`
	// ThinSignalRatio is the coverage below which a tier drops by one. Zero disables it.
	ThinSignalRatio float64 `mapstructure:"thin_signal_ratio" validate:"gte=0,lte=1"`
}

// DefaultConfig is <90d medium, 90-180d high, >=180d critical, thin below 50% coverage.
func DefaultConfig() Config {
	return Config{
		HighAgeDays:     90,
		CriticalAgeDays: 180,
		ThinSignalRatio: 0.5,
	}
}

// Scorer is a pure lookup against Config.
type Scorer struct {
	cfg Config
}

func NewScorer(cfg Config) (*Scorer, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid confidence config: %w", err)
	}
	return &Scorer{cfg: cfg}, nil
}

// Score is non-decreasing in ageDays for a fixed signal strength.
func (s *Scorer) Score(ageDays, signalStrength float64) Tier {
	tier := Medium
	switch {
	case ageDays >= s.cfg.CriticalAgeDays:
		tier = Critical
	case ageDays >= s.cfg.HighAgeDays:
		tier = High
	}
	if signalStrength < s.cfg.ThinSignalRatio && tier > Medium {
		tier--
	}
	return tier
}
