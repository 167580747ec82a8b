package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-storefront/db"
	"github.com/xenking/promo-storefront/internal/domain/apperr"
	"github.com/xenking/promo-storefront/internal/domain/campaign"
	"github.com/xenking/promo-storefront/internal/domain/order"
	"github.com/xenking/promo-storefront/internal/domain/product"
)

func newTestProduct(id string, stock int64) product.Product {
	return product.Product{
		ID:                      id,
		Name:                    "Product " + id,
		BasePrice:               decimal.NewFromInt(100),
		StandingDiscountPercent: decimal.Zero,
		StockCount:              stock,
	}
}

func TestCatalog_ReserveRelease(t *testing.T) {
	c := NewCatalog(newTestProduct("p1", 10))
	ctx := context.Background()

	require.NoError(t, c.Reserve(ctx, "p1", 4))
	n, err := c.Available(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	require.NoError(t, c.Release(ctx, "p1", 4))
	n, err = c.Available(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
}

func TestCatalog_ReserveNeverGoesNegative(t *testing.T) {
	c := NewCatalog(newTestProduct("p1", 2))
	ctx := context.Background()

	err := c.Reserve(ctx, "p1", 3)
	var stockErr *apperr.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "p1", stockErr.ProductID)
	assert.Equal(t, int64(3), stockErr.Requested)

	n, err := c.Available(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestCatalog_UnknownProductAndBadQuantity(t *testing.T) {
	c := NewCatalog()
	ctx := context.Background()

	var nfErr *apperr.NotFoundError
	require.ErrorAs(t, c.Reserve(ctx, "ghost", 1), &nfErr)
	require.ErrorAs(t, c.Release(ctx, "ghost", 1), &nfErr)

	var vErr *apperr.ValidationError
	require.ErrorAs(t, c.Reserve(ctx, "ghost", 0), &vErr)
	require.ErrorAs(t, c.Release(ctx, "ghost", -1), &vErr)
}

func TestCatalog_ConcurrentReserve(t *testing.T) {
	const (
		stock   = 7
		callers = 50
	)
	c := NewCatalog(newTestProduct("p1", stock))
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)
	start := make(chan struct{})
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := c.Reserve(ctx, "p1", 1)

			mu.Lock()
			defer mu.Unlock()
			var stockErr *apperr.InsufficientStockError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &stockErr):
				short++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, stock, succeeded)
	assert.Equal(t, callers-stock, short)
	n, err := c.Available(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestParseSeed(t *testing.T) {
	products, err := ParseSeed(db.SeedProducts)
	require.NoError(t, err)
	require.NotEmpty(t, products)
	for _, p := range products {
		assert.NotEmpty(t, p.ID)
		assert.True(t, p.BasePrice.IsPositive())
	}

	_, err = ParseSeed([]byte(`[{"id":"x","basePrice":"0"}]`))
	require.Error(t, err)
	_, err = ParseSeed([]byte(`{`))
	require.Error(t, err)
}

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestCampaignStore_OptimisticUpdate(t *testing.T) {
	s := NewCampaignStore()
	ctx := context.Background()

	c := &campaign.Campaign{ID: "c1", Name: "Sale", Status: campaign.StatusDraft, StartTime: t0, EndTime: t0.Add(time.Hour)}
	require.NoError(t, s.Create(ctx, c))
	assert.Equal(t, int64(1), c.Version)

	a, err := s.GetByID(ctx, "c1")
	require.NoError(t, err)
	b, err := s.GetByID(ctx, "c1")
	require.NoError(t, err)

	a.Name = "first"
	require.NoError(t, s.Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.Name = "second"
	require.ErrorIs(t, s.Update(ctx, b), campaign.ErrVersionConflict)

	got, err := s.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
}

func TestCampaignStore_Queries(t *testing.T) {
	s := NewCampaignStore()
	ctx := context.Background()
	li := []campaign.LineItem{{ProductID: "p1", IncludedInCampaign: true}}

	for _, c := range []campaign.Campaign{
		{ID: "active", Status: campaign.StatusActive, StartTime: t0, EndTime: t0.Add(time.Hour), LineItems: li, CreatedAt: t0},
		{ID: "later", Status: campaign.StatusActive, StartTime: t0.Add(time.Minute), EndTime: t0.Add(time.Hour), CreatedAt: t0.Add(time.Minute)},
		{ID: "expired", Status: campaign.StatusActive, StartTime: t0.Add(-2 * time.Hour), EndTime: t0.Add(-time.Hour), LineItems: li, CreatedAt: t0.Add(-2 * time.Hour)},
		{ID: "draft", Status: campaign.StatusDraft, StartTime: t0, EndTime: t0.Add(time.Hour), LineItems: li, CreatedAt: t0.Add(2 * time.Minute)},
	} {
		require.NoError(t, s.Create(ctx, &c))
	}
	now := t0.Add(30 * time.Minute)

	forProduct, err := s.ListActiveForProduct(ctx, "p1", now)
	require.NoError(t, err)
	require.Len(t, forProduct, 1)
	assert.Equal(t, "active", forProduct[0].ID)

	active, err := s.ListActive(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "later", active[0].ID)

	expired, err := s.ListExpired(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "expired", expired[0].ID)

	all, total, err := s.List(ctx, campaign.ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	require.Len(t, all, 2)
	assert.Equal(t, "draft", all[0].ID)

	require.NoError(t, s.Delete(ctx, "draft"))
	var nfErr *apperr.NotFoundError
	require.ErrorAs(t, s.Delete(ctx, "draft"), &nfErr)
}

func TestOrderStore_CompareAndSetStatus(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &order.Order{ID: "o1", Status: order.StatusPending, CreatedAt: t0}))

	const racers = 20
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CompareAndSetStatus(ctx, "o1", order.StatusPending, order.StatusCancelled, t0)
			if err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, order.ErrStatusConflict)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, won)

	o, err := s.GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)
}

func TestOrderStore_PaymentReferenceUnique(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &order.Order{ID: "o1", PaymentReference: "pi_1"}))
	require.ErrorIs(t, s.Create(ctx, &order.Order{ID: "o2", PaymentReference: "pi_1"}), order.ErrDuplicatePaymentReference)
	require.NoError(t, s.Create(ctx, &order.Order{ID: "o3"}))
	require.NoError(t, s.Create(ctx, &order.Order{ID: "o4"}))

	o, err := s.FindByPaymentReference(ctx, "pi_1")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
}

func TestOrderStore_ListingOrder(t *testing.T) {
	s := NewOrderStore()
	ctx := context.Background()
	cust := "cust-1"

	require.NoError(t, s.Create(ctx, &order.Order{ID: "old", CustomerRef: &cust, CreatedAt: t0}))
	require.NoError(t, s.Create(ctx, &order.Order{ID: "new", CustomerRef: &cust, CreatedAt: t0.Add(time.Hour)}))
	require.NoError(t, s.Create(ctx, &order.Order{ID: "guest", Delivery: order.DeliveryInfo{Phone: "017"}, CreatedAt: t0}))

	mine, err := s.ListByCustomer(ctx, cust)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "new", mine[0].ID)

	guests, err := s.ListGuestByPhone(ctx, "017")
	require.NoError(t, err)
	require.Len(t, guests, 1)
	assert.Equal(t, "guest", guests[0].ID)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
