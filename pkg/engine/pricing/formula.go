package pricing

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// Formula computes the monthly cost of a resource configuration.
// Implementations are pure: the descriptor and book are the only inputs.
type Formula interface {
	Monthly(desc resource.Descriptor, book *Book) (decimal.Decimal, error)
}

// FormulaFunc adapts a function to Formula.
type FormulaFunc func(desc resource.Descriptor, book *Book) (decimal.Decimal, error)

func (f FormulaFunc) Monthly(desc resource.Descriptor, book *Book) (decimal.Decimal, error) {
	return f(desc, book)
}

// Registry maps resource types to formulas.
type Registry struct {
	mu       sync.RWMutex
	formulas map[resource.Type]Formula
}

func NewRegistry() *Registry {
	return &Registry{formulas: make(map[resource.Type]Formula)}
}

// DefaultRegistry returns a registry holding the built-in AWS formulas.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(resource.DynamoDBTable, FormulaFunc(dynamoDBTableCost))
	r.Register(resource.DynamoDBGSI, FormulaFunc(dynamoDBIndexCost))
	r.Register(resource.APIGatewayStage, FormulaFunc(apiGatewayStageCost))
	r.Register(resource.FargateService, FormulaFunc(fargateServiceCost))
	return r
}

// Register replaces any formula already bound to t.
func (r *Registry) Register(t resource.Type, f Formula) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formulas[t] = f
}

func (r *Registry) Lookup(t resource.Type) (Formula, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formulas[t]
	if !ok {
		return nil, errs.Errorf(errs.KindPricingDataMissing, "pricing.Registry", "no pricing formula for resource type %s", t)
	}
	return f, nil
}

// meter accumulates cost terms and remembers the first lookup failure.
type meter struct {
	book   *Book
	region string
	total  decimal.Decimal
	err    error
}

func newMeter(book *Book, region string) *meter {
	return &meter{book: book, region: region, total: decimal.Zero}
}

// add charges quantity × unit price.
func (m *meter) add(quantity float64, key string) {
	if m.err != nil || quantity == 0 {
		return
	}
	price, err := m.book.Price(m.region, key)
	if err != nil {
		m.err = err
		return
	}
	m.total = m.total.Add(decimal.NewFromFloat(quantity).Mul(price))
}

// hourly charges quantity × unit price × HoursPerMonth.
func (m *meter) hourly(quantity float64, key string) {
	m.add(quantity*HoursPerMonth, key)
}

func (m *meter) result() (decimal.Decimal, error) {
	if m.err != nil {
		return decimal.Zero, m.err
	}
	return m.total, nil
}

func requireNumber(desc resource.Descriptor, attr string) (float64, error) {
	v, ok := desc.Number(attr)
	if !ok {
		return 0, errs.Errorf(errs.KindPricingDataMissing, "pricing.Formula", "%s %s lacks attribute %q", desc.Type, desc.ID, attr)
	}
	return v, nil
}

func gib(bytes float64) float64 {
	return bytes / (1 << 30)
}

func formulaError(desc resource.Descriptor, err error) error {
	return fmt.Errorf("price %s %s: %w", desc.Type, desc.ID, err)
}
