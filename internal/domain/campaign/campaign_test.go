package campaign

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
	"github.com/xenking/promo-storefront/internal/domain/product"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestProduct(id, base, standing string) product.Product {
	return product.Product{
		ID:                      id,
		Name:                    "Product " + id,
		BasePrice:               dec(base),
		StandingDiscountPercent: dec(standing),
		StockCount:              10,
	}
}

func catalogOf(products ...product.Product) map[string]product.Product {
	m := make(map[string]product.Product, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return m
}

func ptr[T any](v T) *T { return &v }

func TestNew_Defaults(t *testing.T) {
	cat := catalogOf(newTestProduct("p1", "1000", "10"))

	c, err := New("c1", Input{
		Name:                 "Eid Sale",
		ExtraDiscountPercent: dec("20"),
		Products:             []Selection{{ProductID: "p1"}},
	}, cat, t0)
	require.NoError(t, err)

	assert.Equal(t, StatusDraft, c.Status)
	assert.Equal(t, t0, c.StartTime)
	assert.Equal(t, t0.Add(DefaultDuration), c.EndTime)
	require.Len(t, c.LineItems, 1)

	li := c.LineItems[0]
	assert.True(t, li.IncludedInCampaign)
	assert.True(t, li.CapturedBasePrice.Equal(dec("1000")))
	assert.True(t, li.CapturedStandingDiscountPercent.Equal(dec("10")))
	assert.True(t, li.CapturedExtraDiscountPercent.Equal(dec("20")))
	assert.Equal(t, int64(720), li.ComputedFinalPrice())
}

func TestNew_ClampsWindowAndPercent(t *testing.T) {
	cat := catalogOf(newTestProduct("p1", "100", "0"))
	start := t0.Add(time.Hour)

	c, err := New("c1", Input{
		Name:                 "Flash",
		ExtraDiscountPercent: dec("140"),
		StartTime:            &start,
		EndTime:              ptr(start.Add(-time.Minute)),
		Products:             []Selection{{ProductID: "p1"}},
	}, cat, t0)
	require.NoError(t, err)

	assert.Equal(t, start.Add(MinExtension), c.EndTime)
	assert.True(t, c.ExtraDiscountPercent.Equal(dec("100")))
	assert.Equal(t, int64(0), c.LineItems[0].ComputedFinalPrice())
}

func TestNew_EqualStartAndEndIsClamped(t *testing.T) {
	cat := catalogOf(newTestProduct("p1", "100", "0"))

	c, err := New("c1", Input{
		Name:      "Zero length",
		StartTime: ptr(t0),
		EndTime:   ptr(t0),
		Products:  []Selection{{ProductID: "p1"}},
	}, cat, t0)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(MinExtension), c.EndTime)
}

func TestNew_Validation(t *testing.T) {
	cat := catalogOf(newTestProduct("p1", "100", "0"))

	tests := []struct {
		name  string
		in    Input
		field string
	}{
		{"missing name", Input{Products: []Selection{{ProductID: "p1"}}}, "name"},
		{"no products", Input{Name: "x"}, "products"},
		{"unknown product", Input{Name: "x", Products: []Selection{{ProductID: "p1"}, {ProductID: "ghost"}}}, "products"},
		{"duplicate product", Input{Name: "x", Products: []Selection{{ProductID: "p1"}, {ProductID: "p1"}}}, "products"},
		{"blank product id", Input{Name: "x", Products: []Selection{{}}}, "products.productId"},
		{"completed status", Input{Name: "x", Status: StatusCompleted, Products: []Selection{{ProductID: "p1"}}}, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("c1", tt.in, cat, t0)

			var vErr *apperr.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestLaunch(t *testing.T) {
	t.Run("resets start and keeps future end", func(t *testing.T) {
		c := &Campaign{ID: "c1", Status: StatusDraft, StartTime: t0, EndTime: t0.Add(48 * time.Hour)}
		now := t0.Add(time.Hour)

		require.NoError(t, c.Launch(now))
		assert.Equal(t, StatusActive, c.Status)
		assert.Equal(t, now, c.StartTime)
		assert.Equal(t, t0.Add(48*time.Hour), c.EndTime)
	})

	t.Run("extends an elapsed window", func(t *testing.T) {
		c := &Campaign{ID: "c1", Status: StatusDraft, StartTime: t0, EndTime: t0.Add(time.Hour)}
		now := t0.Add(2 * time.Hour)

		require.NoError(t, c.Launch(now))
		assert.Equal(t, now.Add(MinExtension), c.EndTime)
	})

	t.Run("relaunching an active campaign", func(t *testing.T) {
		c := &Campaign{ID: "c1", Status: StatusActive, StartTime: t0, EndTime: t0.Add(48 * time.Hour)}
		require.NoError(t, c.Launch(t0.Add(time.Hour)))
		assert.Equal(t, StatusActive, c.Status)
	})

	t.Run("completed cannot be launched", func(t *testing.T) {
		c := &Campaign{ID: "c1", Status: StatusCompleted, StartTime: t0, EndTime: t0.Add(time.Hour)}

		err := c.Launch(t0)
		var sErr *apperr.InvalidStateError
		require.ErrorAs(t, err, &sErr)
		assert.Equal(t, "launch", sErr.Action)
		assert.Equal(t, StatusCompleted, c.Status)
	})
}

func TestStop_Idempotent(t *testing.T) {
	c := &Campaign{ID: "c1", Status: StatusActive}

	assert.True(t, c.Stop(t0))
	assert.Equal(t, StatusCompleted, c.Status)
	assert.False(t, c.Stop(t0.Add(time.Minute)))
	assert.Equal(t, StatusCompleted, c.Status)
	assert.Equal(t, t0, c.UpdatedAt)
}

func TestApply_ResnapshotsFromCurrentCatalog(t *testing.T) {
	cat := catalogOf(newTestProduct("p1", "1000", "10"), newTestProduct("p2", "500", "0"))
	c, err := New("c1", Input{
		Name:                 "Sale",
		ExtraDiscountPercent: dec("20"),
		Products:             []Selection{{ProductID: "p1"}},
	}, cat, t0)
	require.NoError(t, err)
	require.NoError(t, c.Launch(t0))

	// Catalog price changed since the campaign was created.
	cat["p1"] = newTestProduct("p1", "2000", "10")

	err = c.Apply(Input{
		Name:                 "Sale v2",
		ExtraDiscountPercent: dec("50"),
		Products:             []Selection{{ProductID: "p1", Excluded: true}, {ProductID: "p2"}},
	}, cat, t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, "Sale v2", c.Name)
	assert.Equal(t, StatusActive, c.Status)
	require.Len(t, c.LineItems, 2)
	assert.False(t, c.LineItems[0].IncludedInCampaign)
	assert.True(t, c.LineItems[0].CapturedBasePrice.Equal(dec("2000")))
	assert.Equal(t, int64(900), c.LineItems[0].ComputedFinalPrice())
	assert.Equal(t, int64(250), c.LineItems[1].ComputedFinalPrice())
}

func TestApply_StatusRoundTrip(t *testing.T) {
	cat := catalogOf(newTestProduct("p1", "100", "0"))
	c, err := New("c1", Input{Name: "x", Status: StatusActive, Products: []Selection{{ProductID: "p1"}}}, cat, t0)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, c.Status)

	require.NoError(t, c.Apply(Input{Name: "x", Status: StatusDraft, Products: []Selection{{ProductID: "p1"}}}, cat, t0))
	assert.Equal(t, StatusDraft, c.Status)

	require.NoError(t, c.Apply(Input{Name: "x", Status: StatusActive, Products: []Selection{{ProductID: "p1"}}}, cat, t0))
	assert.Equal(t, StatusActive, c.Status)
}

func TestApply_FailureLeavesCampaignUntouched(t *testing.T) {
	cat := catalogOf(newTestProduct("p1", "100", "0"))
	c, err := New("c1", Input{Name: "Original", Products: []Selection{{ProductID: "p1"}}}, cat, t0)
	require.NoError(t, err)
	before := *c

	err = c.Apply(Input{Name: "Changed", Products: []Selection{{ProductID: "deleted"}}}, cat, t0.Add(time.Hour))

	var vErr *apperr.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, before.Name, c.Name)
	assert.Equal(t, before.LineItems, c.LineItems)
	assert.Equal(t, before.UpdatedAt, c.UpdatedAt)
}

func TestApply_CompletedRejected(t *testing.T) {
	cat := catalogOf(newTestProduct("p1", "100", "0"))
	c := &Campaign{ID: "c1", Status: StatusCompleted}

	err := c.Apply(Input{Name: "x", Products: []Selection{{ProductID: "p1"}}}, cat, t0)

	var sErr *apperr.InvalidStateError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "edit", sErr.Action)
}

func TestAppliesTo(t *testing.T) {
	c := &Campaign{
		ID:        "c1",
		Status:    StatusActive,
		StartTime: t0,
		EndTime:   t0.Add(time.Hour),
		LineItems: []LineItem{
			{ProductID: "in", IncludedInCampaign: true},
			{ProductID: "out", IncludedInCampaign: false},
		},
	}

	_, ok := c.AppliesTo("in", t0)
	assert.True(t, ok, "start is inclusive")
	_, ok = c.AppliesTo("in", t0.Add(time.Hour))
	assert.True(t, ok, "end is inclusive")
	_, ok = c.AppliesTo("in", t0.Add(time.Hour+time.Nanosecond))
	assert.False(t, ok)
	_, ok = c.AppliesTo("in", t0.Add(-time.Nanosecond))
	assert.False(t, ok)
	_, ok = c.AppliesTo("out", t0)
	assert.False(t, ok)
	_, ok = c.AppliesTo("missing", t0)
	assert.False(t, ok)

	c.Status = StatusDraft
	_, ok = c.AppliesTo("in", t0)
	assert.False(t, ok)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("active")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, st)

	_, err = ParseStatus("paused")
	var vErr *apperr.ValidationError
	require.ErrorAs(t, err, &vErr)
}
