package campaign

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/promo-storefront/internal/domain/pricing"
	"github.com/xenking/promo-storefront/internal/domain/product"
)

// Resolution is the campaign chosen for one product at one instant.
type Resolution struct {
	Campaign Campaign
	LineItem LineItem
}

// ExtraDiscountPercent is the campaign discount applied on top of the
// standing discount.
func (r *Resolution) ExtraDiscountPercent() decimal.Decimal {
	return r.Campaign.ExtraDiscountPercent
}

// FinalPrice is the campaign unit price derived from the line item snapshot.
func (r *Resolution) FinalPrice() int64 {
	return pricing.FinalPrice(
		r.LineItem.CapturedBasePrice,
		r.LineItem.CapturedStandingDiscountPercent,
		r.Campaign.ExtraDiscountPercent,
	)
}

// Select picks the campaign that applies to productID at now among
// candidates. When several apply, the one with the latest start time wins
// and equal start times fall back to the lowest id. The order of candidates
// does not matter.
func Select(candidates []Campaign, productID string, now time.Time) (*Resolution, bool) {
	var best *Resolution
	for i := range candidates {
		c := &candidates[i]
		li, ok := c.AppliesTo(productID, now)
		if !ok {
			continue
		}
		if best == nil || precedes(c, &best.Campaign) {
			best = &Resolution{Campaign: *c, LineItem: li}
		}
	}
	return best, best != nil
}

func precedes(a, b *Campaign) bool {
	if !a.StartTime.Equal(b.StartTime) {
		return a.StartTime.After(b.StartTime)
	}
	return a.ID < b.ID
}

// UnitPrice is the price a shopper pays for p given the resolved campaign,
// or the standing-discount price when res is nil.
func UnitPrice(p *product.Product, res *Resolution) int64 {
	if res == nil {
		return p.RegularPrice()
	}
	return res.FinalPrice()
}
