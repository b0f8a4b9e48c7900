package pricing

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// File is the on-disk pricing configuration.
type File struct {
	Books    []BookSpec      `yaml:"books" validate:"required,min=1,dive"`
	Formulas []LinearFormula `yaml:"formulas" validate:"dive"`
}

// BookSpec is one versioned price book as written in YAML.
type BookSpec struct {
	Version       string                       `yaml:"version" validate:"required"`
	EffectiveFrom string                       `yaml:"effective_from" validate:"required"`
	Currency      string                       `yaml:"currency" validate:"omitempty,len=3"`
	Prices        map[string]map[string]string `yaml:"prices" validate:"required"`
}

// Config is a parsed pricing file ready to build a Model.
type Config struct {
	Catalog  *Catalog
	Formulas []LinearFormula
}

// LoadFile reads a pricing YAML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates pricing YAML.
func Parse(data []byte) (*Config, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode pricing file: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid pricing file: %w", err)
	}

	books := make([]*Book, 0, len(f.Books))
	for _, spec := range f.Books {
		effective, err := time.Parse(time.DateOnly, spec.EffectiveFrom)
		if err != nil {
			return nil, fmt.Errorf("book %s: effective_from: %w", spec.Version, err)
		}
		book := NewBook(spec.Version, effective, spec.Currency)
		for region, prices := range spec.Prices {
			for key, raw := range prices {
				price, err := decimal.NewFromString(raw)
				if err != nil {
					return nil, fmt.Errorf("book %s: %s/%s: %w", spec.Version, region, key, err)
				}
				if price.IsNegative() {
					return nil, fmt.Errorf("book %s: %s/%s: negative price %s", spec.Version, region, key, raw)
				}
				book.Set(region, key, price)
			}
		}
		books = append(books, book)
	}

	catalog, err := NewCatalog(books...)
	if err != nil {
		return nil, err
	}
	return &Config{Catalog: catalog, Formulas: f.Formulas}, nil
}

// Registry returns the default registry extended with the file's formulas.
func (c *Config) Registry() *Registry {
	r := DefaultRegistry()
	for _, f := range c.Formulas {
		r.Register(f.ResourceType, f)
	}
	return r
}
