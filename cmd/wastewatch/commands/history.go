package commands

import (
	"fmt"
	"strings"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/DrSkyle/wastewatch/pkg/engine"
	awsengine "github.com/DrSkyle/wastewatch/pkg/engine/aws"
	"github.com/DrSkyle/wastewatch/pkg/engine/history"
)

func newHistoryCmd(c *cli) *cobra.Command {
	var (
		limit  int
		budget float64
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded scans and the waste trend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}

			var awsCfg sdkaws.Config
			if strings.HasPrefix(cfg.History.Dir, "s3://") {
				client, err := awsengine.NewClient(cmd.Context(), awsengine.SessionOptions{
					Region:   cfg.Regions[0],
					Profile:  cfg.Profile,
					Endpoint: cfg.Endpoint,
					Logger:   c.logger(cmd.ErrOrStderr()),
				})
				if err != nil {
					return err
				}
				awsCfg = client.Config
			}

			ledger, closeLedger, err := engine.OpenHistory(cfg.History.Dir, awsCfg)
			if err != nil {
				return err
			}
			defer closeLedger()

			window, err := ledger.LoadWindow(limit)
			if err != nil {
				return fmt.Errorf("load history: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(window) == 0 {
				fmt.Fprintf(out, "No scans recorded in %s.\n", cfg.History.Dir)
				return nil
			}

			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"Finished", "Scan", "Rules", "Findings", "Monthly Waste", "Already Wasted", "Failed Jobs"})
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
			for _, s := range window {
				table.Append([]string{
					time.Unix(s.Timestamp, 0).UTC().Format(time.DateTime),
					s.ScanID,
					s.RuleSetVersion,
					fmt.Sprint(s.FindingCount),
					"$" + s.MonthlyWaste.StringFixed(2),
					"$" + s.AlreadyWasted.StringFixed(2),
					fmt.Sprint(s.FailedJobs),
				})
			}
			table.Render()

			printTrend(cmd, history.Analyze(window, budget), budget)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of most recent scans to show")
	cmd.Flags().Float64Var(&budget, "budget", 0, "Monthly waste budget for exhaustion alerts")
	return cmd
}

func printTrend(cmd *cobra.Command, res history.AnalysisResult, budget float64) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, titleStyle.Render("TREND"))
	fmt.Fprintf(w, "  Current waste:  $%.2f/mo\n", res.CurrentWaste)
	fmt.Fprintf(w, "  Velocity:       %+.2f $/mo per day\n", res.Velocity)
	fmt.Fprintf(w, "  Acceleration:   %+.2f $/mo per day^2\n", res.Acceleration)
	fmt.Fprintf(w, "  Projected (7d): $%.2f/mo\n", res.Projected7d)
	if budget > 0 {
		switch {
		case res.TimeToBudget == 0:
			fmt.Fprintln(w, warnStyle.Render("  Budget exceeded"))
		case res.TimeToBudget > 0:
			fmt.Fprintf(w, "  Budget reached in %s\n", res.TimeToBudget.Round(time.Hour))
		}
	}
	for _, alert := range res.Alerts {
		fmt.Fprintln(w, warnStyle.Render("  ! "+alert))
	}
}
