package engine

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/DrSkyle/wastewatch/pkg/config"
	"github.com/DrSkyle/wastewatch/pkg/engine/history"
	"github.com/DrSkyle/wastewatch/pkg/engine/mock"
	"github.com/DrSkyle/wastewatch/pkg/engine/report"
	"github.com/DrSkyle/wastewatch/pkg/engine/scan"
	"github.com/DrSkyle/wastewatch/pkg/resource"
	"github.com/DrSkyle/wastewatch/pkg/storage"
)

// trendWindow is how many past scans the waste trend considers.
const trendWindow = 10

// Request builds a scan request from the configuration. In mock mode the
// default region expands to every region the demo account populates.
func (e *Engine) Request() (scan.Request, error) {
	req := scan.Request{
		Regions:           slices.Clone(e.config.Regions),
		LookbackOverrides: e.config.LookbackOverrides,
	}
	if e.config.Mock && slices.Equal(req.Regions, []string{config.DefaultRegion}) {
		req.Regions = slices.Clone(mock.DemoRegions)
	}
	for _, name := range e.config.ResourceTypes {
		t := resource.Type(name)
		if !slices.Contains(resource.KnownTypes(), t) {
			return scan.Request{}, fmt.Errorf("unknown resource type %q", name)
		}
		req.ResourceTypes = append(req.ResourceTypes, t)
	}
	return req, nil
}

// Report writes res to w in the configured format, dropping findings below
// the minimum monthly waste. With an output target set, the JSON, CSV and
// HTML artifacts are also published there.
func (e *Engine) Report(ctx context.Context, w io.Writer, res *scan.Result) error {
	findings := report.Filter(res.Findings, decimal.NewFromFloat(e.config.Report.MinMonthlyWaste))
	if err := report.Write(w, e.config.Report.Format, res, findings); err != nil {
		return err
	}

	if e.config.Report.Output == "" {
		return nil
	}
	store, err := storage.Open(e.awsConfig(), e.config.Report.Output)
	if err != nil {
		return err
	}
	keys, err := report.Publish(ctx, store, res, findings)
	if err != nil {
		return err
	}
	e.Logger.Info("Artifacts published", "target", e.config.Report.Output, "files", len(keys))
	return nil
}

// Trend analyzes the recorded scans against a monthly waste budget.
func (e *Engine) Trend(budget float64) (history.AnalysisResult, []history.Snapshot, error) {
	if e.History == nil {
		return history.AnalysisResult{}, nil, fmt.Errorf("history is disabled")
	}
	window, err := e.History.LoadWindow(trendWindow)
	if err != nil {
		return history.AnalysisResult{}, nil, err
	}
	return history.Analyze(window, budget), window, nil
}

// recordHistory appends res to the ledger and logs any waste trend alerts.
// History is best effort and never fails a scan.
func (e *Engine) recordHistory(res *scan.Result) {
	if e.History == nil {
		return
	}
	if err := e.History.Append(history.FromResult(res)); err != nil {
		e.Logger.Warn("Failed to record scan history", "scan_id", res.ID, "error", err)
		return
	}

	trend, _, err := e.Trend(0)
	if err != nil {
		e.Logger.Debug("Trend analysis skipped", "error", err)
		return
	}
	for _, alert := range trend.Alerts {
		e.Logger.Warn("Waste trend alert",
			"alert", alert,
			"velocity_per_day", trend.Velocity,
			"acceleration", trend.Acceleration,
		)
	}
}
