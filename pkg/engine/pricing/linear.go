package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/DrSkyle/wastewatch/pkg/resource"
)

// LinearTerm charges attribute × price, optionally per hour.
type LinearTerm struct {
	Attribute string `yaml:"attribute" validate:"required"`
	Price     string `yaml:"price" validate:"required"`
	Hourly    bool   `yaml:"hourly"`
	// Divisor scales the attribute before pricing, e.g. 1e6 for per-million rates.
	Divisor float64 `yaml:"divisor" validate:"gte=0"`
	// When names a boolean attribute that must be true for the term to apply.
	When string `yaml:"when"`
}

// LinearFormula prices resource types declared in configuration.
type LinearFormula struct {
	ResourceType resource.Type `yaml:"resource_type" validate:"required"`
	Terms        []LinearTerm  `yaml:"terms" validate:"required,min=1,dive"`
}

func (f LinearFormula) Monthly(desc resource.Descriptor, book *Book) (decimal.Decimal, error) {
	m := newMeter(book, desc.Region)
	for _, term := range f.Terms {
		if term.When != "" && !desc.Flag(term.When) {
			continue
		}
		qty, ok := desc.Number(term.Attribute)
		if !ok {
			continue
		}
		if term.Divisor > 0 {
			qty /= term.Divisor
		}
		if term.Hourly {
			m.hourly(qty, term.Price)
		} else {
			m.add(qty, term.Price)
		}
	}
	total, err := m.result()
	if err != nil {
		return total, fmt.Errorf("linear formula %s: %w", f.ResourceType, err)
	}
	return total, nil
}
