// Package report renders scan results as tables, CSV, JSON and HTML.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DrSkyle/wastewatch/pkg/engine/finding"
	"github.com/DrSkyle/wastewatch/pkg/engine/scan"
)

// Item is one finding flattened for export.
type Item struct {
	ResourceID           string          `json:"resource_id"`
	ResourceType         string          `json:"resource_type"`
	Region               string          `json:"region"`
	RuleID               string          `json:"rule_id"`
	Classification       string          `json:"classification"`
	Confidence           string          `json:"confidence"`
	AgeDays              float64         `json:"age_days"`
	CurrentMonthlyCost   decimal.Decimal `json:"current_monthly_cost"`
	OptimizedMonthlyCost decimal.Decimal `json:"optimized_monthly_cost"`
	MonthlyWaste         decimal.Decimal `json:"monthly_waste"`
	AlreadyWasted        decimal.Decimal `json:"already_wasted"`
	Action               string          `json:"action"`
	Summary              string          `json:"summary"`
}

// Bucket aggregates findings sharing a label.
type Bucket struct {
	Count        int             `json:"count"`
	MonthlyWaste decimal.Decimal `json:"monthly_waste"`
}

// Summary totals a scan's findings.
type Summary struct {
	ScanID           string            `json:"scan_id"`
	RuleSetVersion   string            `json:"rule_set_version"`
	GeneratedAt      time.Time         `json:"generated_at"`
	Findings         int               `json:"findings"`
	MonthlyWaste     decimal.Decimal   `json:"monthly_waste"`
	AlreadyWasted    decimal.Decimal   `json:"already_wasted"`
	ByClassification map[string]Bucket `json:"by_classification"`
	ByConfidence     map[string]Bucket `json:"by_confidence"`
	FailedJobs       int               `json:"failed_jobs"`
}

// Document is the JSON export layout.
type Document struct {
	Summary  Summary        `json:"summary"`
	Findings []Item         `json:"findings"`
	Failures []scan.Failure `json:"failures,omitempty"`
}

// Filter keeps findings whose monthly waste is at least min.
func Filter(findings []finding.Finding, min decimal.Decimal) []finding.Finding {
	if min.IsZero() {
		return findings
	}
	out := make([]finding.Finding, 0, len(findings))
	for _, f := range findings {
		if f.MonthlyWaste.GreaterThanOrEqual(min) {
			out = append(out, f)
		}
	}
	return out
}

// Items flattens findings, highest monthly waste first.
func Items(findings []finding.Finding) []Item {
	sorted := slices.Clone(findings)
	slices.SortStableFunc(sorted, func(a, b finding.Finding) int {
		if c := b.MonthlyWaste.Cmp(a.MonthlyWaste); c != 0 {
			return c
		}
		return strings.Compare(a.Key(), b.Key())
	})

	items := make([]Item, 0, len(sorted))
	for _, f := range sorted {
		items = append(items, Item{
			ResourceID:           f.ResourceID,
			ResourceType:         string(f.ResourceType),
			Region:               f.Region,
			RuleID:               f.RuleID,
			Classification:       f.Classification,
			Confidence:           f.Confidence.String(),
			AgeDays:              f.AgeDays,
			CurrentMonthlyCost:   f.CurrentMonthlyCost,
			OptimizedMonthlyCost: f.OptimizedMonthlyCost,
			MonthlyWaste:         f.MonthlyWaste,
			AlreadyWasted:        f.AlreadyWasted,
			Action:               string(f.Recommendation.Action),
			Summary:              f.Recommendation.Summary,
		})
	}
	return items
}

// Summarize totals findings by classification and confidence.
func Summarize(res *scan.Result, findings []finding.Finding) Summary {
	s := Summary{
		ScanID:           res.ID,
		RuleSetVersion:   res.RuleSetVersion,
		GeneratedAt:      res.FinishedAt,
		Findings:         len(findings),
		ByClassification: make(map[string]Bucket),
		ByConfidence:     make(map[string]Bucket),
		FailedJobs:       len(res.Jobs) - len(res.Completed()),
	}
	for _, f := range findings {
		s.MonthlyWaste = s.MonthlyWaste.Add(f.MonthlyWaste)
		s.AlreadyWasted = s.AlreadyWasted.Add(f.AlreadyWasted)
		s.ByClassification[f.Classification] = s.ByClassification[f.Classification].add(f)
		tier := f.Confidence.String()
		s.ByConfidence[tier] = s.ByConfidence[tier].add(f)
	}
	return s
}

func (b Bucket) add(f finding.Finding) Bucket {
	b.Count++
	b.MonthlyWaste = b.MonthlyWaste.Add(f.MonthlyWaste)
	return b
}

var csvHeader = []string{
	"resource_id",
	"resource_type",
	"region",
	"rule_id",
	"classification",
	"confidence",
	"age_days",
	"current_monthly_cost",
	"optimized_monthly_cost",
	"monthly_waste",
	"already_wasted",
	"action",
	"summary",
}

// WriteCSV writes one row per finding.
func WriteCSV(w io.Writer, findings []finding.Finding) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, item := range Items(findings) {
		record := []string{
			item.ResourceID,
			item.ResourceType,
			item.Region,
			item.RuleID,
			item.Classification,
			item.Confidence,
			fmt.Sprintf("%.0f", item.AgeDays),
			item.CurrentMonthlyCost.StringFixed(2),
			item.OptimizedMonthlyCost.StringFixed(2),
			item.MonthlyWaste.StringFixed(2),
			item.AlreadyWasted.StringFixed(2),
			item.Action,
			item.Summary,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the summary, findings and failures as one document.
func WriteJSON(w io.Writer, res *scan.Result, findings []finding.Finding) error {
	doc := Document{
		Summary:  Summarize(res, findings),
		Findings: Items(findings),
		Failures: res.Failures,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
