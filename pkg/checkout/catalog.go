package checkout

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Product is a purchasable subscription plan.
type Product struct {
	ID       string `yaml:"id" validate:"required,max=128,excludesall=0x7C"`
	Name     string `yaml:"name" validate:"required"`
	PriceID  string `yaml:"price_id" validate:"required"` // provider price reference
	Amount   int64  `yaml:"amount" validate:"gte=0"`      // minor units
	Currency string `yaml:"currency" validate:"required,len=3,alpha"`
	Interval string `yaml:"interval" validate:"omitempty,oneof=day week month year"`
}

// Plan returns the plan string stored on orders for p.
func (p Product) Plan() string {
	return PlanID(p.ID, p.Amount, p.Currency)
}

// Catalog resolves product ids.
type Catalog interface {
	Product(ctx context.Context, id string) (Product, error)
}

// InMemCatalog is a fixed product list.
type InMemCatalog struct {
	products map[string]Product
}

var productValidator = validator.New(validator.WithRequiredStructEnabled())

// NewInMemCatalog validates products and indexes them by id.
func NewInMemCatalog(products ...Product) (*InMemCatalog, error) {
	if len(products) == 0 {
		return nil, errors.New("catalog: no products")
	}
	c := &InMemCatalog{products: make(map[string]Product, len(products))}
	for _, p := range products {
		p.Currency = strings.ToUpper(p.Currency)
		if err := productValidator.Struct(p); err != nil {
			return nil, fmt.Errorf("catalog: product %q: %w", p.ID, err)
		}
		if _, dup := c.products[p.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate product %q", p.ID)
		}
		c.products[p.ID] = p
	}
	return c, nil
}

// Product implements Catalog.
func (c *InMemCatalog) Product(_ context.Context, id string) (Product, error) {
	p, ok := c.products[id]
	if !ok {
		return Product{}, ErrUnknownProduct
	}
	return p, nil
}

type catalogFile struct {
	Products []Product `yaml:"products"`
}

// LoadCatalogFile reads a YAML product list:
//
//	products:
//	  - id: pro-monthly
//	    name: Pro
//	    price_id: price_123
//	    amount: 999
//	    currency: usd
//	    interval: month
func LoadCatalogFile(path string) (*InMemCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML product list.
func ParseCatalog(data []byte) (*InMemCatalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	return NewInMemCatalog(f.Products...)
}
