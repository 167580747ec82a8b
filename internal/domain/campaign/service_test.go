package campaign

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
	"github.com/xenking/promo-storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID map[string]product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.NotFound(id)
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCampaignRepo struct {
	byID      map[string]Campaign
	updateErr error
}

func newMockCampaignRepo() *mockCampaignRepo {
	return &mockCampaignRepo{byID: make(map[string]Campaign)}
}

func (m *mockCampaignRepo) Create(_ context.Context, c *Campaign) error {
	c.Version = 1
	m.byID[c.ID] = *c
	return nil
}

func (m *mockCampaignRepo) Update(_ context.Context, c *Campaign) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.byID[c.ID]
	if !ok {
		return NotFound(c.ID)
	}
	if stored.Version != c.Version {
		return ErrVersionConflict
	}
	c.Version++
	m.byID[c.ID] = *c
	return nil
}

func (m *mockCampaignRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return NotFound(id)
	}
	delete(m.byID, id)
	return nil
}

func (m *mockCampaignRepo) GetByID(_ context.Context, id string) (*Campaign, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, NotFound(id)
	}
	return &c, nil
}

func (m *mockCampaignRepo) List(_ context.Context, f ListFilter) ([]Campaign, int, error) {
	var out []Campaign
	for _, c := range m.byID {
		if f.Status == "" || c.Status == f.Status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *mockCampaignRepo) ListActiveForProduct(_ context.Context, productID string, now time.Time) ([]Campaign, error) {
	var out []Campaign
	for _, c := range m.byID {
		if _, ok := c.LineItem(productID); ok && c.Status == StatusActive && c.InWindow(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCampaignRepo) ListActive(_ context.Context, now time.Time, limit int) ([]Campaign, error) {
	var out []Campaign
	for _, c := range m.byID {
		if c.Status == StatusActive && c.InWindow(now) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return precedes(&out[i], &out[j]) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockCampaignRepo) ListExpired(_ context.Context, now time.Time) ([]Campaign, error) {
	var out []Campaign
	for _, c := range m.byID {
		if c.Status == StatusActive && c.EndTime.Before(now) {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- Helpers ---

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(products ...product.Product) (*Service, *mockCampaignRepo, *mockProductRepo, *testClock) {
	clock := &testClock{now: t0}
	campaigns := newMockCampaignRepo()
	prods := &mockProductRepo{byID: catalogOf(products...)}
	return NewService(campaigns, prods, WithClock(clock.Now)), campaigns, prods, clock
}

func saleInput(extra string, ids ...string) Input {
	in := Input{Name: "Sale", ExtraDiscountPercent: dec(extra)}
	for _, id := range ids {
		in.Products = append(in.Products, Selection{ProductID: id})
	}
	return in
}

// --- Tests ---

func TestService_CreateAndGet(t *testing.T) {
	svc, _, _, _ := newTestService(newTestProduct("p1", "1000", "10"))
	ctx := context.Background()

	c, err := svc.Create(ctx, saleInput("20", "p1"))
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, StatusDraft, c.Status)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(720), got.LineItems[0].ComputedFinalPrice())
}

func TestService_CreateUnknownProduct(t *testing.T) {
	svc, repo, _, _ := newTestService()

	_, err := svc.Create(context.Background(), saleInput("20", "ghost"))

	var vErr *apperr.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Empty(t, repo.byID)
}

func TestService_LaunchStopLifecycle(t *testing.T) {
	svc, _, _, clock := newTestService(newTestProduct("p1", "1000", "10"))
	ctx := context.Background()

	c, err := svc.Create(ctx, saleInput("20", "p1"))
	require.NoError(t, err)

	clock.Advance(time.Hour)
	launched, err := svc.Launch(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, launched.Status)
	assert.Equal(t, clock.now, launched.StartTime)

	stopped, err := svc.Stop(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, stopped.Status)

	again, err := svc.Stop(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, again.Status)

	_, err = svc.Launch(ctx, c.ID)
	var sErr *apperr.InvalidStateError
	require.ErrorAs(t, err, &sErr)

	_, err = svc.Edit(ctx, c.ID, saleInput("30", "p1"))
	require.ErrorAs(t, err, &sErr)
}

func TestService_EditDeletedProduct(t *testing.T) {
	svc, _, prods, _ := newTestService(newTestProduct("p1", "1000", "10"), newTestProduct("p2", "500", "0"))
	ctx := context.Background()

	c, err := svc.Create(ctx, saleInput("20", "p1", "p2"))
	require.NoError(t, err)

	delete(prods.byID, "p2")

	_, err = svc.Edit(ctx, c.ID, saleInput("25", "p1", "p2"))
	var vErr *apperr.ValidationError
	require.ErrorAs(t, err, &vErr)

	stored, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, stored.LineItems, 2)
	assert.True(t, stored.ExtraDiscountPercent.Equal(dec("20")))
}

func TestService_EditVersionConflict(t *testing.T) {
	svc, repo, _, _ := newTestService(newTestProduct("p1", "1000", "10"))
	ctx := context.Background()

	c, err := svc.Create(ctx, saleInput("20", "p1"))
	require.NoError(t, err)

	repo.updateErr = ErrVersionConflict
	_, err = svc.Edit(ctx, c.ID, saleInput("30", "p1"))

	var sErr *apperr.InvalidStateError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "edit", sErr.Action)
}

func TestService_Delete(t *testing.T) {
	svc, _, _, _ := newTestService(newTestProduct("p1", "1000", "10"))
	ctx := context.Background()

	c, err := svc.Create(ctx, saleInput("20", "p1"))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, c.ID))

	var nfErr *apperr.NotFoundError
	_, err = svc.Get(ctx, c.ID)
	require.ErrorAs(t, err, &nfErr)
	require.ErrorAs(t, svc.Delete(ctx, c.ID), &nfErr)
}

func TestService_ResolveAndPreview(t *testing.T) {
	svc, _, _, clock := newTestService(newTestProduct("p1", "1000", "10"), newTestProduct("p2", "200", "0"))
	ctx := context.Background()

	first, err := svc.Create(ctx, saleInput("10", "p1"))
	require.NoError(t, err)
	_, err = svc.Launch(ctx, first.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	second, err := svc.Create(ctx, saleInput("20", "p1"))
	require.NoError(t, err)
	_, err = svc.Launch(ctx, second.ID)
	require.NoError(t, err)

	res, err := svc.ResolveForProduct(ctx, "p1", clock.now)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, second.ID, res.Campaign.ID)

	q, err := svc.PricePreview(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(720), q.UnitPrice)

	_, err = svc.Stop(ctx, second.ID)
	require.NoError(t, err)
	q, err = svc.PricePreview(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, q.Resolution.Campaign.ID)
	assert.Equal(t, int64(810), q.UnitPrice)

	q, err = svc.PricePreview(ctx, "p2")
	require.NoError(t, err)
	assert.Nil(t, q.Resolution)
	assert.Equal(t, int64(200), q.UnitPrice)

	_, err = svc.PricePreview(ctx, "ghost")
	var nfErr *apperr.NotFoundError
	require.ErrorAs(t, err, &nfErr)
}

func TestService_ListActiveMatchesCheckoutPrice(t *testing.T) {
	svc, _, prods, _ := newTestService(newTestProduct("p1", "1000", "10"), newTestProduct("p2", "500", "0"))
	ctx := context.Background()

	in := saleInput("20", "p1", "p2")
	in.Products[1].Excluded = true
	c, err := svc.Create(ctx, in)
	require.NoError(t, err)
	_, err = svc.Launch(ctx, c.ID)
	require.NoError(t, err)

	prods.byID["p1"] = newTestProduct("p1", "2000", "10")

	shows, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, shows, 1)
	require.Len(t, shows[0].Products, 1)
	assert.Equal(t, int64(1800), shows[0].Products[0].RegularPrice)
	assert.Equal(t, int64(720), shows[0].Products[0].FinalPrice)

	q, err := svc.PricePreview(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, q.UnitPrice, shows[0].Products[0].FinalPrice)
}

func TestService_ListActiveShowsWinningCampaign(t *testing.T) {
	svc, _, _, clock := newTestService(newTestProduct("p1", "1000", "10"))
	ctx := context.Background()

	older, err := svc.Create(ctx, saleInput("10", "p1"))
	require.NoError(t, err)
	_, err = svc.Launch(ctx, older.ID)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	newer, err := svc.Create(ctx, saleInput("20", "p1"))
	require.NoError(t, err)
	_, err = svc.Launch(ctx, newer.ID)
	require.NoError(t, err)

	shows, err := svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, shows, 2)
	for _, sc := range shows {
		require.Len(t, sc.Products, 1, sc.Campaign.ID)
		assert.Equal(t, int64(720), sc.Products[0].FinalPrice, sc.Campaign.ID)
	}
}

func TestService_AvailableProducts(t *testing.T) {
	kurti := newTestProduct("p3", "800", "0")
	kurti.Name = "Silk Kurti"
	svc, _, _, _ := newTestService(newTestProduct("p1", "1000", "10"), newTestProduct("p2", "500", "0"), kurti)
	ctx := context.Background()

	c, err := svc.Create(ctx, saleInput("20", "p1"))
	require.NoError(t, err)
	_, err = svc.Launch(ctx, c.ID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		query   ProductQuery
		wantIDs []string
		total   int
	}{
		{"all", ProductQuery{Limit: 10}, []string{"p1", "p2", "p3"}, 3},
		{"second page", ProductQuery{Limit: 2, Offset: 2}, []string{"p3"}, 3},
		{"past the end", ProductQuery{Limit: 2, Offset: 4}, nil, 3},
		{"by name", ProductQuery{Search: "kurti", Limit: 10}, []string{"p3"}, 1},
		{"by id", ProductQuery{Search: "P2", Limit: 10}, []string{"p2"}, 1},
		{"no match", ProductQuery{Search: "saree", Limit: 10}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.AvailableProducts(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.total, page.Total)

			var ids []string
			for _, p := range page.Products {
				ids = append(ids, p.Product.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	page, err := svc.AvailableProducts(ctx, ProductQuery{Search: "p1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Products, 1)
	assert.Equal(t, int64(900), page.Products[0].RegularPrice)
	assert.Equal(t, int64(720), page.Products[0].FinalPrice)
}

func TestService_ListActiveLimit(t *testing.T) {
	svc, _, _, clock := newTestService(newTestProduct("p1", "100", "0"))
	ctx := context.Background()

	for range 5 {
		c, err := svc.Create(ctx, saleInput("5", "p1"))
		require.NoError(t, err)
		_, err = svc.Launch(ctx, c.ID)
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	shows, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, shows, DefaultActiveLimit)
}

func TestService_ListByStatus(t *testing.T) {
	svc, _, _, _ := newTestService(newTestProduct("p1", "100", "0"))
	ctx := context.Background()

	for i := range 4 {
		c, err := svc.Create(ctx, saleInput("5", "p1"))
		require.NoError(t, err)
		if i%2 == 0 {
			_, err = svc.Launch(ctx, c.ID)
			require.NoError(t, err)
		}
	}

	page, err := svc.ListByStatus(ctx, ListFilter{Status: StatusActive, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	assert.Len(t, page.Campaigns, 1)

	page, err = svc.ListByStatus(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
}

func TestService_SweepExpired(t *testing.T) {
	svc, repo, _, clock := newTestService(newTestProduct("p1", "100", "0"))
	ctx := context.Background()

	end := t0.Add(time.Hour)
	in := saleInput("5", "p1")
	in.EndTime = &end
	short, err := svc.Create(ctx, in)
	require.NoError(t, err)
	_, err = svc.Launch(ctx, short.ID)
	require.NoError(t, err)

	long, err := svc.Create(ctx, saleInput("5", "p1"))
	require.NoError(t, err)
	_, err = svc.Launch(ctx, long.ID)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, StatusCompleted, repo.byID[short.ID].Status)
	assert.Equal(t, StatusActive, repo.byID[long.ID].Status)

	n, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
