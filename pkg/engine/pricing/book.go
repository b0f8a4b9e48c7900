package pricing

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DrSkyle/wastewatch/pkg/engine/errs"
)

// AnyRegion holds prices that apply when a region has no specific entry.
const AnyRegion = "*"

// HoursPerMonth converts hourly rates into monthly ones.
const HoursPerMonth = 730

// Book is a set of unit prices valid from EffectiveFrom until the next book.
type Book struct {
	Version       string
	EffectiveFrom time.Time
	Currency      string

	prices map[string]map[string]decimal.Decimal
}

func NewBook(version string, effectiveFrom time.Time, currency string) *Book {
	if currency == "" {
		currency = "USD"
	}
	return &Book{
		Version:       version,
		EffectiveFrom: effectiveFrom,
		Currency:      currency,
		prices:        make(map[string]map[string]decimal.Decimal),
	}
}

// Set records a unit price. Books are populated before they are published to a Catalog.
func (b *Book) Set(region, key string, price decimal.Decimal) {
	if b.prices[region] == nil {
		b.prices[region] = make(map[string]decimal.Decimal)
	}
	b.prices[region][key] = price
}

// Has reports whether a region-specific price exists.
func (b *Book) Has(region, key string) bool {
	_, ok := b.prices[region][key]
	return ok
}

// Price resolves a unit price, falling back to AnyRegion.
func (b *Book) Price(region, key string) (decimal.Decimal, error) {
	if p, ok := b.prices[region][key]; ok {
		return p, nil
	}
	if p, ok := b.prices[AnyRegion][key]; ok {
		return p, nil
	}
	return decimal.Zero, errs.Errorf(errs.KindPricingDataMissing, "pricing.Price", "book %s has no price %q for region %s", b.Version, key, region)
}

// Keys returns every price key known to the book, sorted.
func (b *Book) Keys() []string {
	seen := make(map[string]struct{})
	for _, region := range b.prices {
		for k := range region {
			seen[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Catalog holds books ordered by effective date.
type Catalog struct {
	books []*Book
}

func NewCatalog(books ...*Book) (*Catalog, error) {
	sorted := slices.Clone(books)
	slices.SortFunc(sorted, func(a, b *Book) int { return a.EffectiveFrom.Compare(b.EffectiveFrom) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].EffectiveFrom.Equal(sorted[i-1].EffectiveFrom) {
			return nil, fmt.Errorf("price books %s and %s share effective date %s",
				sorted[i-1].Version, sorted[i].Version, sorted[i].EffectiveFrom.Format(time.DateOnly))
		}
	}
	return &Catalog{books: sorted}, nil
}

// At returns the book in effect at t.
func (c *Catalog) At(t time.Time) (*Book, error) {
	idx, found := slices.BinarySearchFunc(c.books, t, func(b *Book, t time.Time) int {
		return cmp.Compare(b.EffectiveFrom.UnixNano(), t.UnixNano())
	})
	if !found {
		idx--
	}
	if idx < 0 {
		return nil, errs.Errorf(errs.KindPricingDataMissing, "pricing.Catalog", "no price book effective at %s", t.Format(time.DateOnly))
	}
	return c.books[idx], nil
}

// Books returns the catalog contents, oldest first.
func (c *Catalog) Books() []*Book {
	return slices.Clone(c.books)
}
