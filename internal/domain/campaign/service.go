package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
	"github.com/xenking/promo-storefront/internal/domain/product"
)

// DefaultActiveLimit is the number of campaigns ListActive returns when no
// limit is configured.
const DefaultActiveLimit = 3

// Page is one page of a campaign listing.
type Page struct {
	Campaigns []Campaign
	Total     int
}

// PricedProduct is a catalog product with its current regular price and the
// price checkout would charge for it.
type PricedProduct struct {
	Product      product.Product
	RegularPrice int64
	FinalPrice   int64
}

// Showcase is an active campaign together with the current prices of its
// included products.
type Showcase struct {
	Campaign Campaign
	Products []PricedProduct
}

// Quote is the price a shopper would pay for a product right now.
type Quote struct {
	Product    product.Product
	Resolution *Resolution
	UnitPrice  int64
	QuotedAt   time.Time
}

// Service implements the campaign operations exposed to the API layer.
type Service struct {
	campaigns   Repository
	products    product.Repository
	now         func() time.Time
	activeLimit int
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithActiveLimit sets how many campaigns ListActive returns.
func WithActiveLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.activeLimit = n
		}
	}
}

// NewService creates a campaign Service.
func NewService(campaigns Repository, products product.Repository, opts ...Option) *Service {
	s := &Service{
		campaigns:   campaigns,
		products:    products,
		now:         time.Now,
		activeLimit: DefaultActiveLimit,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create validates in, snapshots its products and stores a new campaign.
func (s *Service) Create(ctx context.Context, in Input) (*Campaign, error) {
	catalog, err := s.lookup(ctx, in.ProductIDs())
	if err != nil {
		return nil, err
	}

	c, err := New(uuid.New().String(), in, catalog, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.campaigns.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}

	zctx.From(ctx).Info("Campaign created",
		zap.String("campaign_id", c.ID),
		zap.String("status", string(c.Status)),
		zap.Int("products", len(c.LineItems)),
	)
	return c, nil
}

// Edit replaces the editable fields of a draft or active campaign and
// re-snapshots its line items from the current catalog.
func (s *Service) Edit(ctx context.Context, id string, in Input) (*Campaign, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusCompleted {
		return nil, c.stateError("edit")
	}

	catalog, err := s.lookup(ctx, in.ProductIDs())
	if err != nil {
		return nil, err
	}
	if err := c.Apply(in, catalog, s.now()); err != nil {
		return nil, err
	}
	if err := s.update(ctx, c, "edit"); err != nil {
		return nil, err
	}
	return c, nil
}

// Launch activates a campaign from now on.
func (s *Service) Launch(ctx context.Context, id string) (*Campaign, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Launch(s.now()); err != nil {
		return nil, err
	}
	if err := s.update(ctx, c, "launch"); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Campaign launched",
		zap.String("campaign_id", c.ID),
		zap.Time("end_time", c.EndTime),
	)
	return c, nil
}

// Stop completes a campaign. Stopping a completed campaign is a no-op.
func (s *Service) Stop(ctx context.Context, id string) (*Campaign, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.Stop(s.now()) {
		return c, nil
	}
	if err := s.update(ctx, c, "stop"); err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Campaign stopped", zap.String("campaign_id", c.ID))
	return c, nil
}

// Delete removes a campaign. Orders keep their own price snapshot.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.campaigns.Delete(ctx, id); err != nil {
		return err
	}
	zctx.From(ctx).Info("Campaign deleted", zap.String("campaign_id", id))
	return nil
}

// Get returns a campaign by id.
func (s *Service) Get(ctx context.Context, id string) (*Campaign, error) {
	return s.campaigns.GetByID(ctx, id)
}

// ListByStatus returns one page of campaigns, newest first.
func (s *Service) ListByStatus(ctx context.Context, f ListFilter) (*Page, error) {
	if f.Limit <= 0 {
		f.Limit = 10
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	items, total, err := s.campaigns.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	return &Page{Campaigns: items, Total: total}, nil
}

// ListActive returns the currently running campaigns with the prices their
// included products sell at right now. Each product is priced through the
// same resolution checkout uses, so a product in several campaigns shows the
// winning campaign's price.
func (s *Service) ListActive(ctx context.Context) ([]Showcase, error) {
	now := s.now()
	active, err := s.campaigns.ListActive(ctx, now, s.activeLimit)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}

	var ids []string
	for _, c := range active {
		for _, li := range c.LineItems {
			if li.IncludedInCampaign {
				ids = append(ids, li.ProductID)
			}
		}
	}
	catalog, err := s.lookup(ctx, ids)
	if err != nil {
		return nil, err
	}

	resolved := make(map[string]*Resolution, len(catalog))
	out := make([]Showcase, 0, len(active))
	for _, c := range active {
		sc := Showcase{Campaign: c}
		for _, li := range c.LineItems {
			p, ok := catalog[li.ProductID]
			if !li.IncludedInCampaign || !ok {
				continue
			}
			res, seen := resolved[p.ID]
			if !seen {
				if res, err = s.ResolveForProduct(ctx, p.ID, now); err != nil {
					return nil, err
				}
				resolved[p.ID] = res
			}
			sc.Products = append(sc.Products, PricedProduct{
				Product:      p,
				RegularPrice: p.RegularPrice(),
				FinalPrice:   UnitPrice(&p, res),
			})
		}
		out = append(out, sc)
	}
	return out, nil
}

// ProductQuery selects a page of catalog products for the campaign editor.
// Search matches the product name or id case-insensitively.
type ProductQuery struct {
	Search string
	Limit  int
	Offset int
}

// ProductPage is one page of the campaign editor's product picker.
type ProductPage struct {
	Products []PricedProduct
	Total    int
}

// AvailableProducts lists catalog products that can be added to a campaign,
// with their regular and current prices.
func (s *Service) AvailableProducts(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	all, err := s.products.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(q.Search))
	var matched []product.Product
	for _, p := range all {
		if needle == "" ||
			strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(strings.ToLower(p.ID), needle) {
			matched = append(matched, p)
		}
	}

	page := &ProductPage{Total: len(matched)}
	if q.Offset >= len(matched) {
		return page, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	now := s.now()
	for i := range matched {
		p := &matched[i]
		res, err := s.ResolveForProduct(ctx, p.ID, now)
		if err != nil {
			return nil, err
		}
		page.Products = append(page.Products, PricedProduct{
			Product:      *p,
			RegularPrice: p.RegularPrice(),
			FinalPrice:   UnitPrice(p, res),
		})
	}
	return page, nil
}

// ResolveForProduct returns the campaign that applies to productID at now,
// or nil when none does.
func (s *Service) ResolveForProduct(ctx context.Context, productID string, now time.Time) (*Resolution, error) {
	candidates, err := s.campaigns.ListActiveForProduct(ctx, productID, now)
	if err != nil {
		return nil, fmt.Errorf("list campaigns for product %s: %w", productID, err)
	}
	res, ok := Select(candidates, productID, now)
	if !ok {
		return nil, nil
	}
	return res, nil
}

// PricePreview quotes the current unit price of a product.
func (s *Service) PricePreview(ctx context.Context, productID string) (*Quote, error) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	res, err := s.ResolveForProduct(ctx, productID, now)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Product:    *p,
		Resolution: res,
		UnitPrice:  UnitPrice(p, res),
		QuotedAt:   now,
	}, nil
}

// SweepExpired stops every active campaign whose window has ended and
// returns how many were stopped. A campaign changed concurrently is skipped
// and picked up by the next sweep.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	expired, err := s.campaigns.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired campaigns: %w", err)
	}

	lg := zctx.From(ctx)
	stopped := 0
	for i := range expired {
		c := &expired[i]
		if !c.Stop(now) {
			continue
		}
		if err := s.campaigns.Update(ctx, c); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				lg.Warn("Skipping concurrently modified campaign", zap.String("campaign_id", c.ID))
				continue
			}
			return stopped, fmt.Errorf("stop campaign %s: %w", c.ID, err)
		}
		stopped++
	}

	if stopped > 0 {
		lg.Info("Expired campaigns stopped", zap.Int("count", stopped))
	}
	return stopped, nil
}

func (s *Service) update(ctx context.Context, c *Campaign, action string) error {
	err := s.campaigns.Update(ctx, c)
	if errors.Is(err, ErrVersionConflict) {
		return &apperr.InvalidStateError{
			Entity: "campaign",
			ID:     c.ID,
			From:   "stale version",
			Action: action,
		}
	}
	if err != nil {
		return fmt.Errorf("%s campaign %s: %w", action, c.ID, err)
	}
	return nil
}

// lookup fetches products by id. Unknown ids are simply absent from the
// result; callers decide whether that is an error.
func (s *Service) lookup(ctx context.Context, ids []string) (map[string]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	m := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		m[p.ID] = p
	}
	return m, nil
}
