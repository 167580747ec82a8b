package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
)

// --- Mock implementations ---

type call struct {
	op        string
	productID string
	qty       int64
}

type mockLedger struct {
	stock      map[string]int64
	releaseErr map[string]error
	calls      []call
}

func (m *mockLedger) Reserve(_ context.Context, productID string, qty int64) error {
	m.calls = append(m.calls, call{"reserve", productID, qty})
	if m.stock[productID] < qty {
		return &apperr.InsufficientStockError{ProductID: productID, Requested: qty}
	}
	m.stock[productID] -= qty
	return nil
}

func (m *mockLedger) Release(_ context.Context, productID string, qty int64) error {
	m.calls = append(m.calls, call{"release", productID, qty})
	if err := m.releaseErr[productID]; err != nil {
		return err
	}
	m.stock[productID] += qty
	return nil
}

func (m *mockLedger) Available(_ context.Context, productID string) (int64, error) {
	return m.stock[productID], nil
}

// --- Tests ---

func TestReservations_ReleaseAllInReverse(t *testing.T) {
	ledger := &mockLedger{stock: map[string]int64{"a": 5, "b": 5, "c": 1}}
	ctx := context.Background()
	r := NewReservations(ledger)

	require.NoError(t, r.Reserve(ctx, "a", 2))
	require.NoError(t, r.Reserve(ctx, "b", 3))

	err := r.Reserve(ctx, "c", 2)
	var stockErr *apperr.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "c", stockErr.ProductID)
	assert.Len(t, r.Held(), 2)

	require.NoError(t, r.ReleaseAll(ctx))
	assert.Equal(t, map[string]int64{"a": 5, "b": 5, "c": 1}, ledger.stock)
	assert.Empty(t, r.Held())

	assert.Equal(t, []call{
		{"reserve", "a", 2},
		{"reserve", "b", 3},
		{"reserve", "c", 2},
		{"release", "b", 3},
		{"release", "a", 2},
	}, ledger.calls)
}

func TestReservations_ReleaseAllContinuesOnFailure(t *testing.T) {
	boom := errors.New("connection reset")
	ledger := &mockLedger{
		stock:      map[string]int64{"a": 5, "b": 5},
		releaseErr: map[string]error{"b": boom},
	}
	ctx := context.Background()
	r := NewReservations(ledger)

	require.NoError(t, r.Reserve(ctx, "a", 1))
	require.NoError(t, r.Reserve(ctx, "b", 1))

	err := r.ReleaseAll(ctx)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(5), ledger.stock["a"])
	assert.Equal(t, int64(4), ledger.stock["b"])
}

func TestValidateQuantity(t *testing.T) {
	require.NoError(t, ValidateQuantity(1))

	var vErr *apperr.ValidationError
	require.ErrorAs(t, ValidateQuantity(0), &vErr)
	require.ErrorAs(t, ValidateQuantity(-3), &vErr)
}
