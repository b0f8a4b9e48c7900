package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/DrSkyle/wastewatch/pkg/engine"
	"github.com/DrSkyle/wastewatch/pkg/engine/finding"
	"github.com/DrSkyle/wastewatch/pkg/engine/scan"
)

var (
	summaryStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#874BFD")).Padding(0, 2)
	wasteStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF3366"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB020"))
)

func newScanCmd(c *cli) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan regions for waste and report findings",
		Long: `Enumerates every supported resource in the selected regions, evaluates
the rule set against its usage metrics and prices each finding.

Reports go to stdout; --output also publishes JSON, CSV and HTML
artifacts to a directory or s3://bucket/prefix.`,
		Example: `  wastewatch scan --mock
  wastewatch scan --region us-east-1,eu-west-1 --format json
  wastewatch scan --rules ./rules.yaml --watch-rules --interval 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if noHistory, _ := cmd.Flags().GetBool("no-history"); noHistory {
				cfg.History.Enabled = false
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := engine.New(ctx,
				engine.WithConfig(cfg),
				engine.WithLogger(c.logger(cmd.ErrOrStderr())),
			)
			if err != nil {
				return fmt.Errorf("initialize engine: %w", err)
			}
			defer eng.Close(context.Background())

			for {
				if err := c.scanOnce(ctx, cmd, eng); err != nil {
					return err
				}
				if interval <= 0 {
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
		},
	}

	f := cmd.Flags()
	f.String("rules", "", "Rule set YAML (default: built-in rules)")
	f.String("pricing", "", "Pricing YAML (default: built-in price books)")
	f.Bool("watch-rules", false, "Reload the rules file when it changes (with --interval)")
	f.StringSlice("resource-types", nil, "Limit the scan to these resource types")
	f.String("format", "table", "Report format: table, json, csv or html")
	f.String("output", "", "Publish artifacts to a directory or s3://bucket/prefix")
	f.Float64("min-waste", 0, "Hide findings below this monthly waste")
	f.Bool("strict", false, "Exit non-zero when any scan job fails")
	f.Bool("no-history", false, "Do not record this scan in the history ledger")
	f.Float64("discount", 0, "Discount factor applied to list prices (e.g. 0.82)")
	f.Bool("calibrate", false, "Derive the discount factor from Cost Explorer")
	f.Bool("hydrate-prices", false, "Fill missing prices from the AWS Price List API")
	f.DurationVar(&interval, "interval", 0, "Repeat the scan on this interval until interrupted")

	c.bind(f, map[string]string{
		"rules_file":               "rules",
		"pricing_file":             "pricing",
		"watch_rules":              "watch-rules",
		"resource_types":           "resource-types",
		"report.format":            "format",
		"report.output":            "output",
		"report.min_monthly_waste": "min-waste",
		"strict":                   "strict",
		"pricing.discount_factor":  "discount",
		"pricing.calibrate":        "calibrate",
		"pricing.hydrate":          "hydrate-prices",
	})
	return cmd
}

func (c *cli) scanOnce(ctx context.Context, cmd *cobra.Command, eng *engine.Engine) error {
	req, err := eng.Request()
	if err != nil {
		return err
	}

	start := time.Now()
	res, scanErr := eng.RunScan(ctx, req)
	if res == nil {
		return scanErr
	}
	if err := eng.Report(ctx, cmd.OutOrStdout(), res); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	printSummary(cmd.ErrOrStderr(), res, time.Since(start))

	if c.verbose {
		printThrottleStats(cmd.ErrOrStderr(), eng)
	}
	if errors.Is(scanErr, engine.ErrPartialResult) {
		return fmt.Errorf("%d job(s) failed: %w", len(res.Failures), scanErr)
	}
	return scanErr
}

// wasteTotals sums monthly and accrued waste without leaving decimal.
func wasteTotals(findings []finding.Finding) (monthly, wasted decimal.Decimal) {
	for _, f := range findings {
		monthly = monthly.Add(f.MonthlyWaste)
		wasted = wasted.Add(f.AlreadyWasted)
	}
	return monthly, wasted
}

func printSummary(w io.Writer, res *scan.Result, took time.Duration) {
	total, wasted := wasteTotals(res.Findings)

	body := fmt.Sprintf("Scan %s  (rules %s, %s)\n%d findings  %s/mo waste  %s already wasted",
		res.ID, res.RuleSetVersion, took.Round(time.Millisecond),
		len(res.Findings),
		wasteStyle.Render("$"+total.StringFixed(2)),
		wasteStyle.Render("$"+wasted.StringFixed(2)),
	)
	if n := len(res.Failures); n > 0 {
		body += "\n" + warnStyle.Render(fmt.Sprintf("%d job(s) failed; results are partial", n))
	}
	fmt.Fprintln(w, summaryStyle.Render(body))
}

func printThrottleStats(w io.Writer, eng *engine.Engine) {
	stats := eng.ThrottleStats()
	if len(stats) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"API", "Region", "In Flight", "Limit"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	for _, s := range stats {
		table.Append([]string{s.API, s.Region, fmt.Sprint(s.InFlight), fmt.Sprint(s.Limit)})
	}
	table.Render()
}
