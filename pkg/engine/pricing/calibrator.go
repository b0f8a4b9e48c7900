package pricing

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/shopspring/decimal"
)

// CostAPI is the subset of Cost Explorer used for discount calibration.
type CostAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// CalibratedServices are the billing services the built-in formulas price.
var CalibratedServices = []string{
	"Amazon DynamoDB",
	"Amazon API Gateway",
	"Amazon Elastic Container Service",
}

type discountCache struct {
	Factor    float64 `json:"factor"`
	Timestamp int64   `json:"timestamp"`
}

// Calibrator derives an effective discount factor from amortized vs list spend.
type Calibrator struct {
	logger         *slog.Logger
	svc            CostAPI
	cachePath      string
	manualOverride float64
	now            func() time.Time
}

func NewCalibrator(logger *slog.Logger, svc CostAPI, cacheDir string, override float64) *Calibrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cacheDir == "" {
		cacheDir = os.TempDir()
	}
	return &Calibrator{
		logger:         logger,
		svc:            svc,
		cachePath:      filepath.Join(cacheDir, "discounts.json"),
		manualOverride: override,
		now:            time.Now,
	}
}

// DiscountFactor returns the cached factor, a fresh one from Cost Explorer, the
// manual override, or 1.0, in that order of preference.
func (c *Calibrator) DiscountFactor(ctx context.Context) float64 {
	if factor, ok := c.loadCache(); ok {
		return factor
	}

	factor, err := c.fetch(ctx)
	if err != nil {
		if c.manualOverride > 0 {
			c.logger.Warn("calibration failed, using manual override", "error", err, "override", c.manualOverride)
			return c.manualOverride
		}
		c.logger.Warn("calibration failed, using list prices", "error", err)
		return 1.0
	}

	c.saveCache(factor)
	return factor
}

func (c *Calibrator) loadCache() (float64, bool) {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		return 1.0, false
	}
	var cache discountCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return 1.0, false
	}
	if c.now().Sub(time.Unix(cache.Timestamp, 0)) > 24*time.Hour {
		return 1.0, false
	}
	return cache.Factor, true
}

func (c *Calibrator) saveCache(factor float64) {
	data, _ := json.MarshalIndent(discountCache{Factor: factor, Timestamp: c.now().Unix()}, "", "  ")
	_ = os.MkdirAll(filepath.Dir(c.cachePath), 0o755)
	_ = os.WriteFile(c.cachePath, data, 0o644)
}

func (c *Calibrator) fetch(ctx context.Context) (float64, error) {
	now := c.now()
	out, err := c.svc.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &types.DateInterval{
			Start: aws.String(now.AddDate(0, 0, -7).Format(time.DateOnly)),
			End:   aws.String(now.Format(time.DateOnly)),
		},
		Granularity: types.GranularityDaily,
		Metrics:     []string{"AmortizedCost", "UnblendedCost"},
		Filter: &types.Expression{
			Dimensions: &types.DimensionValues{
				Key:    types.DimensionService,
				Values: CalibratedServices,
			},
		},
	})
	if err != nil {
		return 1.0, err
	}

	amortized, unblended := decimal.Zero, decimal.Zero
	for _, byTime := range out.ResultsByTime {
		amortized = amortized.Add(amount(byTime.Total["AmortizedCost"]))
		unblended = unblended.Add(amount(byTime.Total["UnblendedCost"]))
	}
	if unblended.IsZero() {
		return 1.0, nil
	}

	factor, _ := amortized.Div(unblended).Float64()
	if factor > 1.5 || factor < 0.1 {
		return 1.0, nil
	}
	c.logger.Info("calibrated discount factor", "factor", factor, "source", "aws_cost_explorer")
	return factor, nil
}

func amount(m types.MetricValue) decimal.Decimal {
	if m.Amount == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(*m.Amount)
	if err != nil {
		return decimal.Zero
	}
	return d
}
