// Package memory provides mutex-guarded in-memory implementations of the
// storage interfaces. Every operation runs inside a single critical section,
// which gives the same atomicity the postgres implementations get from
// single-statement updates.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
	"github.com/xenking/promo-storefront/internal/domain/inventory"
	"github.com/xenking/promo-storefront/internal/domain/product"
)

var (
	_ product.Repository = (*Catalog)(nil)
	_ inventory.Ledger   = (*Catalog)(nil)
)

// Catalog stores products and their stock counts.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]*product.Product
}

// NewCatalog returns a catalog holding products.
func NewCatalog(products ...product.Product) *Catalog {
	c := &Catalog{products: make(map[string]*product.Product, len(products))}
	for _, p := range products {
		c.Put(p)
	}
	return c
}

// Put inserts or replaces a product, including its stock count.
func (c *Catalog) Put(p product.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = &p
}

// Remove deletes a product from the catalog.
func (c *Catalog) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}

// List returns all products ordered by id.
func (c *Catalog) List(_ context.Context) ([]product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]product.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetByID returns a single product by its identifier.
func (c *Catalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return nil, product.NotFound(id)
	}
	cp := *p
	return &cp, nil
}

// GetByIDs returns the products matching ids. Unknown ids are skipped.
func (c *Catalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// Reserve decrements stock if at least qty units are available.
func (c *Catalog) Reserve(_ context.Context, productID string, qty int64) error {
	if err := inventory.ValidateQuantity(qty); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return product.NotFound(productID)
	}
	if p.StockCount < qty {
		return &apperr.InsufficientStockError{ProductID: productID, Requested: qty}
	}
	p.StockCount -= qty
	return nil
}

// Release returns qty units to stock.
func (c *Catalog) Release(_ context.Context, productID string, qty int64) error {
	if err := inventory.ValidateQuantity(qty); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.products[productID]
	if !ok {
		return product.NotFound(productID)
	}
	p.StockCount += qty
	return nil
}

// Available returns the current stock of productID.
func (c *Catalog) Available(_ context.Context, productID string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[productID]
	if !ok {
		return 0, product.NotFound(productID)
	}
	return p.StockCount, nil
}

type seedProduct struct {
	ID                      string          `json:"id"`
	Name                    string          `json:"name"`
	BasePrice               decimal.Decimal `json:"basePrice"`
	StandingDiscountPercent decimal.Decimal `json:"standingDiscountPercent"`
	StockCount              int64           `json:"stockCount"`
}

// ParseSeed decodes a JSON array of products as used by the seed catalog.
func ParseSeed(data []byte) ([]product.Product, error) {
	var raw []seedProduct
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse products JSON: %w", err)
	}

	out := make([]product.Product, 0, len(raw))
	for i, r := range raw {
		switch {
		case r.ID == "":
			return nil, fmt.Errorf("product %d: missing id", i)
		case !r.BasePrice.IsPositive():
			return nil, fmt.Errorf("product %s: base price must be positive", r.ID)
		case r.StockCount < 0:
			return nil, fmt.Errorf("product %s: negative stock", r.ID)
		}
		out = append(out, product.Product{
			ID:                      r.ID,
			Name:                    r.Name,
			BasePrice:               r.BasePrice,
			StandingDiscountPercent: r.StandingDiscountPercent,
			StockCount:              r.StockCount,
		})
	}
	return out, nil
}
