package report

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/olekukonko/tablewriter"

	"github.com/DrSkyle/wastewatch/pkg/engine/finding"
	"github.com/DrSkyle/wastewatch/pkg/engine/scan"
)

// WriteTable prints findings and a per-classification summary for a terminal.
func WriteTable(w io.Writer, res *scan.Result, findings []finding.Finding) error {
	items := Items(findings)
	summary := Summarize(res, findings)

	if len(items) == 0 {
		fmt.Fprintf(w, "No waste found (scan %s, rules %s).\n", res.ID, res.RuleSetVersion)
	} else {
		table := tablewriter.NewWriter(w)
		table.SetHeader([]string{"Resource", "Type", "Region", "Classification", "Confidence", "Monthly Waste", "Already Wasted", "Action"})
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)
		table.SetAutoWrapText(false)
		for _, item := range items {
			table.Append([]string{
				item.ResourceID,
				item.ResourceType,
				item.Region,
				item.Classification,
				item.Confidence,
				"$" + item.MonthlyWaste.StringFixed(2),
				"$" + item.AlreadyWasted.StringFixed(2),
				item.Summary,
			})
		}
		table.SetFooter([]string{"", "", "", "", "Total", "$" + summary.MonthlyWaste.StringFixed(2), "$" + summary.AlreadyWasted.StringFixed(2), ""})
		table.Render()
	}

	if len(summary.ByClassification) > 0 {
		byClass := tablewriter.NewWriter(w)
		byClass.SetHeader([]string{"Classification", "Findings", "Monthly Waste"})
		byClass.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		for _, label := range slices.Sorted(maps.Keys(summary.ByClassification)) {
			b := summary.ByClassification[label]
			byClass.Append([]string{label, fmt.Sprint(b.Count), "$" + b.MonthlyWaste.StringFixed(2)})
		}
		byClass.Render()
	}

	if len(res.Failures) > 0 {
		fmt.Fprintf(w, "%d job(s) failed:\n", len(res.Failures))
		for _, f := range res.Failures {
			fmt.Fprintf(w, "  %s %s: %s (%s)\n", f.Region, f.ResourceType, f.Message, f.Kind)
		}
	}
	return nil
}
