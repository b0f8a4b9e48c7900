// Package pricing prices resource configurations from versioned price books.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// Model estimates current and optimized monthly cost.
type Model struct {
	registry *Registry
	catalog  *Catalog
	discount decimal.Decimal
}

// ModelOption configures a Model.
type ModelOption func(*Model)

// WithDiscountFactor scales every estimate, e.g. 0.82 for an enterprise discount.
func WithDiscountFactor(f float64) ModelOption {
	return func(m *Model) {
		if f > 0 {
			m.discount = decimal.NewFromFloat(f)
		}
	}
}

func NewModel(registry *Registry, catalog *Catalog, opts ...ModelOption) *Model {
	m := &Model{
		registry: registry,
		catalog:  catalog,
		discount: decimal.NewFromInt(1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EstimateCurrentCost prices the descriptor as observed.
func (m *Model) EstimateCurrentCost(desc resource.Descriptor) (decimal.Decimal, error) {
	return m.estimate(desc)
}

// EstimateOptimizedCost prices the descriptor after applying rec.
func (m *Model) EstimateOptimizedCost(desc resource.Descriptor, rec Recommendation) (decimal.Decimal, error) {
	switch rec.Action {
	case ActionRemove:
		return decimal.Zero, nil
	case ActionModify:
		return m.estimate(desc.With(rec.Config))
	}
	return m.estimate(desc)
}

// BookVersion names the price book used for desc.
func (m *Model) BookVersion(desc resource.Descriptor) string {
	book, err := m.catalog.At(desc.ObservedAt)
	if err != nil {
		return ""
	}
	return book.Version
}

func (m *Model) estimate(desc resource.Descriptor) (decimal.Decimal, error) {
	formula, err := m.registry.Lookup(desc.Type)
	if err != nil {
		return decimal.Zero, err
	}
	book, err := m.catalog.At(desc.ObservedAt)
	if err != nil {
		return decimal.Zero, err
	}
	cost, err := formula.Monthly(desc, book)
	if err != nil {
		return decimal.Zero, err
	}
	if cost.IsNegative() {
		return decimal.Zero, errs.Errorf(errs.KindInvariantViolation, "pricing.Estimate",
			"negative monthly cost %s for %s", cost.String(), desc.Key())
	}
	return cost.Mul(m.discount).Round(4), nil
}
