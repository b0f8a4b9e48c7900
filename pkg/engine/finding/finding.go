// Package finding assembles classified, priced and scored waste records.
package finding

import (
	"maps"

	"github.com/shopspring/decimal"

	"github.com/DrSkyle/wastewatch/pkg/engine/confidence"
	"github.com/DrSkyle/wastewatch/pkg/engine/pricing"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// Finding is the engine's output record. Values are produced only by
// Assemble and hold their own copies of maps.
type Finding struct {
	ResourceID           string                 `json:"resource_id"`
	ResourceType         resource.Type          `json:"resource_type"`
	Region               string                 `json:"region"`
	RuleID               string                 `json:"rule_id"`
	Classification       string                 `json:"classification"`
	Confidence           confidence.Tier        `json:"confidence"`
	AgeDays              float64                `json:"age_days"`
	CurrentMonthlyCost   decimal.Decimal        `json:"current_monthly_cost"`
	OptimizedMonthlyCost decimal.Decimal        `json:"optimized_monthly_cost"`
	MonthlyWaste         decimal.Decimal        `json:"monthly_waste"`
	AlreadyWasted        decimal.Decimal        `json:"already_wasted"`
	Recommendation       pricing.Recommendation `json:"recommendation"`
	Metadata             map[string]string      `json:"metadata,omitempty"`
}

// Key identifies the (resource, classification) pair used for deduplication.
func (f Finding) Key() string {
	return string(f.ResourceType) + "/" + f.Region + "/" + f.ResourceID + "#" + f.Classification
}

// Clone returns a deep copy.
func (f Finding) Clone() Finding {
	f.Metadata = maps.Clone(f.Metadata)
	f.Recommendation = f.Recommendation.Clone()
	return f
}

// Classification is a matched rule's verdict for one resource.
type Classification struct {
	RuleID         string
	Label          string
	Recommendation pricing.Recommendation
	Metadata       map[string]string
}
