// Package product holds the read-mostly catalog model consumed by pricing,
// campaigns and checkout.
package product

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
	"github.com/xenking/promo-storefront/internal/domain/pricing"
)

// Product is a catalog item. StockCount is informational here; stock is only
// ever changed through the inventory ledger.
type Product struct {
	ID                      string
	Name                    string
	BasePrice               decimal.Decimal
	StandingDiscountPercent decimal.Decimal
	StockCount              int64
}

// StandingPercent returns the standing discount clamped to [0, 100].
func (p *Product) StandingPercent() decimal.Decimal {
	return pricing.ClampPercent(p.StandingDiscountPercent)
}

// RegularPrice is the price with only the standing discount applied.
func (p *Product) RegularPrice() int64 {
	return pricing.FinalPrice(p.BasePrice, p.StandingPercent(), decimal.Zero)
}

// NotFound returns the error repositories use for an unknown product id.
func NotFound(id string) error {
	return &apperr.NotFoundError{Entity: "product", ID: id}
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
