// Package inventory defines the stock ledger. Stock is only ever changed
// through Reserve and Release, each of which is a single atomic operation in
// the backing store.
package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
)

// Ledger owns per-product available stock.
type Ledger interface {
	// Reserve atomically takes qty units of productID. It returns an
	// *apperr.InsufficientStockError when fewer than qty are available and
	// never lets stock go below zero.
	Reserve(ctx context.Context, productID string, qty int64) error
	// Release atomically returns qty units of productID. It is only used to
	// compensate an earlier successful Reserve.
	Release(ctx context.Context, productID string, qty int64) error
	// Available returns the current stock of productID.
	Available(ctx context.Context, productID string) (int64, error)
}

// ValidateQuantity rejects non-positive quantities.
func ValidateQuantity(qty int64) error {
	if qty <= 0 {
		return apperr.Invalid("quantity", "must be positive, got %d", qty)
	}
	return nil
}

// Reservation is one successful Reserve call.
type Reservation struct {
	ProductID string
	Quantity  int64
}

// Reservations tracks the reservations made by one checkout so they can be
// rolled back together.
type Reservations struct {
	ledger Ledger
	held   []Reservation
}

// NewReservations starts an empty reservation set against ledger.
func NewReservations(ledger Ledger) *Reservations {
	return &Reservations{ledger: ledger}
}

// Reserve reserves qty of productID and records it on success.
func (r *Reservations) Reserve(ctx context.Context, productID string, qty int64) error {
	if err := r.ledger.Reserve(ctx, productID, qty); err != nil {
		return err
	}
	r.held = append(r.held, Reservation{ProductID: productID, Quantity: qty})
	return nil
}

// Held returns the reservations made so far.
func (r *Reservations) Held() []Reservation {
	return r.held
}

// ReleaseAll releases every held reservation in reverse order. It attempts
// all of them even if some fail, and returns the joined failures.
func (r *Reservations) ReleaseAll(ctx context.Context) error {
	lg := zctx.From(ctx)

	var errs []error
	for i := len(r.held) - 1; i >= 0; i-- {
		h := r.held[i]
		if err := r.ledger.Release(ctx, h.ProductID, h.Quantity); err != nil {
			lg.Error("Release reservation",
				zap.String("product_id", h.ProductID),
				zap.Int64("quantity", h.Quantity),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("release %s x%d: %w", h.ProductID, h.Quantity, err))
		}
	}
	r.held = nil
	return errors.Join(errs...)
}
