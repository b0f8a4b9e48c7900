// Package config defines the wastewatch settings file and its defaults.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/DrSkyle/wastewatch/pkg/engine/confidence"
	"github.com/DrSkyle/wastewatch/pkg/engine/scan"
	"github.com/DrSkyle/wastewatch/pkg/engine/throttle"
)

// Defaults.
const (
	DefaultRegion     = "us-east-1"
	DefaultHistoryDir = ".wastewatch/history"
	DefaultCacheDir   = ".wastewatch/cache"
	DefaultOutputDir  = "wastewatch-out"
)

// Config is the full engine configuration, decoded by viper from
// ~/.wastewatch.yaml, WASTEWATCH_* variables and flags.
type Config struct {
	Regions       []string `mapstructure:"regions" validate:"required,min=1,dive,required"`
	ResourceTypes []string `mapstructure:"resource_types"`
	Profile       string   `mapstructure:"profile"`
	// Endpoint overrides every AWS service endpoint, e.g. for LocalStack.
	Endpoint string `mapstructure:"endpoint"`
	Mock     bool   `mapstructure:"mock"`

	RulesFile   string `mapstructure:"rules_file"`
	PricingFile string `mapstructure:"pricing_file"`
	// WatchRules reloads the rules file when it changes on disk.
	WatchRules bool `mapstructure:"watch_rules"`

	// LookbackOverrides replaces lookback_days per rule id, or for every rule under "*".
	LookbackOverrides map[string]int `mapstructure:"lookback_overrides" validate:"dive,gte=1"`
	// Strict turns a partial scan into an error.
	Strict bool `mapstructure:"strict"`

	Scan       scan.Config       `mapstructure:"scan"`
	Throttle   ThrottleConfig    `mapstructure:"throttle"`
	Confidence confidence.Config `mapstructure:"confidence"`
	Pricing    PricingConfig     `mapstructure:"pricing"`
	Report     ReportConfig      `mapstructure:"report"`
	History    HistoryConfig     `mapstructure:"history"`
	Telemetry  TelemetryConfig   `mapstructure:"telemetry"`
}

// ThrottleConfig sets rate and in-flight limits per API. Override keys are
// service ids such as "DynamoDB" or "CloudWatch".
type ThrottleConfig struct {
	Default   throttle.Limits            `mapstructure:"default"`
	Overrides map[string]throttle.Limits `mapstructure:"overrides" validate:"dive"`
}

type PricingConfig struct {
	// DiscountFactor scales list prices, e.g. 0.82 for an enterprise discount.
	// Zero calibrates from Cost Explorer when Calibrate is set.
	DiscountFactor float64       `mapstructure:"discount_factor" validate:"gte=0,lte=1"`
	Calibrate      bool          `mapstructure:"calibrate"`
	Hydrate        bool          `mapstructure:"hydrate"`
	CacheDir       string        `mapstructure:"cache_dir"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

type ReportConfig struct {
	Format string `mapstructure:"format" validate:"oneof=table json csv html"`
	// Output is a local directory or s3://bucket/prefix. Empty prints to stdout only.
	Output          string  `mapstructure:"output"`
	MinMonthlyWaste float64 `mapstructure:"min_monthly_waste" validate:"gte=0"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

type TelemetryConfig struct {
	Disabled     bool   `mapstructure:"disabled"`
	OtelEndpoint string `mapstructure:"otel_endpoint"`
}

// DefaultConfig returns a configuration with sensible default values.
func DefaultConfig() Config {
	return Config{
		Regions:    []string{DefaultRegion},
		Scan:       scan.DefaultConfig(),
		Confidence: confidence.DefaultConfig(),
		Throttle: ThrottleConfig{
			Default: throttle.DefaultLimits(),
			Overrides: map[string]throttle.Limits{
				// GetMetricData allows 50 TPS per account and region.
				"CloudWatch": {RatePerSecond: 40, Burst: 40, MinInFlight: 1, MaxInFlight: 16},
			},
		},
		Pricing: PricingConfig{
			CacheDir: DefaultCacheDir,
			CacheTTL: 24 * time.Hour,
		},
		Report: ReportConfig{
			Format: "table",
		},
		History: HistoryConfig{
			Enabled: true,
			Dir:     DefaultHistoryDir,
		},
	}
}

// Validate checks struct constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
