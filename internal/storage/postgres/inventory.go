package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
	"github.com/xenking/promo-storefront/internal/domain/inventory"
	"github.com/xenking/promo-storefront/internal/domain/product"
)

const (
	reserveStockSQL = `UPDATE products SET stock_count = stock_count - $2
		WHERE id = $1 AND stock_count >= $2
		RETURNING stock_count`

	releaseStockSQL = `UPDATE products SET stock_count = stock_count + $2 WHERE id = $1`

	adjustStockSQL = `UPDATE products SET stock_count = stock_count + $2
		WHERE id = $1 AND stock_count + $2 >= 0
		RETURNING stock_count`

	getStockSQL = `SELECT stock_count FROM products WHERE id = $1`
)

var _ inventory.Ledger = (*InventoryLedger)(nil)

// InventoryLedger implements inventory.Ledger on the stock_count column.
type InventoryLedger struct {
	pool *pgxpool.Pool
}

// NewInventoryLedger returns an InventoryLedger that uses the given pool.
func NewInventoryLedger(pool *pgxpool.Pool) *InventoryLedger {
	return &InventoryLedger{pool: pool}
}

// Reserve decrements stock only if enough is available.
func (l *InventoryLedger) Reserve(ctx context.Context, productID string, qty int64) error {
	if err := inventory.ValidateQuantity(qty); err != nil {
		return err
	}

	var left int64
	err := l.pool.QueryRow(ctx, reserveStockSQL, productID, qty).Scan(&left)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("reserving %d of %q: %w", qty, productID, err)
	}

	found, err := exists(ctx, l.pool, "products", productID)
	if err != nil {
		return err
	}
	if !found {
		return product.NotFound(productID)
	}
	return &apperr.InsufficientStockError{ProductID: productID, Requested: qty}
}

// Release returns qty units of productID to stock.
func (l *InventoryLedger) Release(ctx context.Context, productID string, qty int64) error {
	if err := inventory.ValidateQuantity(qty); err != nil {
		return err
	}

	tag, err := l.pool.Exec(ctx, releaseStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("releasing %d of %q: %w", qty, productID, err)
	}
	if tag.RowsAffected() == 0 {
		return product.NotFound(productID)
	}
	return nil
}

// Available returns the current stock of productID.
func (l *InventoryLedger) Available(ctx context.Context, productID string) (int64, error) {
	var stock int64
	err := l.pool.QueryRow(ctx, getStockSQL, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, product.NotFound(productID)
		}
		return 0, fmt.Errorf("getting stock of %q: %w", productID, err)
	}
	return stock, nil
}

// Adjust adds delta (which may be negative) to the stock of productID and
// returns the new count. A delta that would make stock negative is
// rejected with an InsufficientStockError.
func (l *InventoryLedger) Adjust(ctx context.Context, productID string, delta int64) (int64, error) {
	var stock int64
	err := l.pool.QueryRow(ctx, adjustStockSQL, productID, delta).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("adjusting stock of %q by %d: %w", productID, delta, err)
	}

	found, err := exists(ctx, l.pool, "products", productID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, product.NotFound(productID)
	}
	return 0, &apperr.InsufficientStockError{ProductID: productID, Requested: -delta}
}
