// Package campaign implements promotional campaigns: their lifecycle, the
// pricing snapshot they hold and the resolution of the campaign that applies
// to a product at a given instant.
package campaign

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
	"github.com/xenking/promo-storefront/internal/domain/pricing"
	"github.com/xenking/promo-storefront/internal/domain/product"
)

// Status is the lifecycle state of a campaign.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// ParseStatus converts s into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusActive, StatusCompleted:
		return st, nil
	default:
		return "", apperr.Invalid("status", "unknown campaign status %q", s)
	}
}

const (
	// DefaultDuration is the window length used when no end time is given.
	DefaultDuration = 7 * 24 * time.Hour
	// MinExtension is added to the start time when a window would otherwise
	// be empty or inverted.
	MinExtension = 24 * time.Hour
)

// ErrVersionConflict is returned by Repository.Update when the stored
// campaign changed since it was loaded.
var ErrVersionConflict = errors.New("campaign version conflict")

// LineItem is a frozen pricing snapshot of one product inside a campaign.
type LineItem struct {
	ProductID                       string
	CapturedBasePrice               decimal.Decimal
	CapturedStandingDiscountPercent decimal.Decimal
	CapturedExtraDiscountPercent    decimal.Decimal
	IncludedInCampaign              bool
}

// ComputedFinalPrice derives the campaign price from the snapshot.
func (li LineItem) ComputedFinalPrice() int64 {
	return pricing.FinalPrice(li.CapturedBasePrice, li.CapturedStandingDiscountPercent, li.CapturedExtraDiscountPercent)
}

// Campaign is a time-boxed promotion over a fixed set of products.
type Campaign struct {
	ID                   string
	Name                 string
	BannerRef            string
	ExtraDiscountPercent decimal.Decimal
	Status               Status
	StartTime            time.Time
	EndTime              time.Time
	LineItems            []LineItem
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Selection enrolls a product in a campaign. Excluded products keep their
// snapshot but receive no campaign price.
type Selection struct {
	ProductID string
	Excluded  bool
}

// Input carries the editable fields of a campaign. Nil times keep the
// current value on edit and fall back to defaults on create. An empty
// Status means draft on create and no change on edit.
type Input struct {
	Name                 string
	BannerRef            string
	ExtraDiscountPercent decimal.Decimal
	Status               Status
	StartTime            *time.Time
	EndTime              *time.Time
	Products             []Selection
}

// ProductIDs returns the ids of all selected products in input order.
func (in Input) ProductIDs() []string {
	ids := make([]string, len(in.Products))
	for i, s := range in.Products {
		ids[i] = s.ProductID
	}
	return ids
}

func (in Input) validate() error {
	if in.Name == "" {
		return apperr.Missing("name")
	}
	switch in.Status {
	case "", StatusDraft, StatusActive:
	default:
		return apperr.Invalid("status", "must be %s or %s, got %q", StatusDraft, StatusActive, in.Status)
	}
	if len(in.Products) == 0 {
		return apperr.Invalid("products", "at least one product is required")
	}
	seen := make(map[string]struct{}, len(in.Products))
	for _, s := range in.Products {
		if s.ProductID == "" {
			return apperr.Missing("products.productId")
		}
		if _, dup := seen[s.ProductID]; dup {
			return apperr.Invalid("products", "product %s listed more than once", s.ProductID)
		}
		seen[s.ProductID] = struct{}{}
	}
	return nil
}

// New builds a campaign from in, snapshotting every selected product from
// catalog.
func New(id string, in Input, catalog map[string]product.Product, now time.Time) (*Campaign, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	c := &Campaign{
		ID:        id,
		Status:    StatusDraft,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Status != "" {
		c.Status = in.Status
	}
	if in.StartTime != nil {
		c.StartTime = *in.StartTime
	}
	c.EndTime = c.StartTime.Add(DefaultDuration)
	if in.EndTime != nil {
		c.EndTime = *in.EndTime
	}
	c.assign(in)

	if err := c.snapshot(in.Products, catalog); err != nil {
		return nil, err
	}
	return c, nil
}

// Apply edits c in place and re-snapshots all line items. Completed
// campaigns cannot be edited. On error c is left unchanged.
func (c *Campaign) Apply(in Input, catalog map[string]product.Product, now time.Time) error {
	if c.Status == StatusCompleted {
		return c.stateError("edit")
	}
	if err := in.validate(); err != nil {
		return err
	}

	next := *c
	if in.Status != "" {
		next.Status = in.Status
	}
	if in.StartTime != nil {
		next.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		next.EndTime = *in.EndTime
	}
	next.assign(in)
	if err := next.snapshot(in.Products, catalog); err != nil {
		return err
	}
	next.UpdatedAt = now

	*c = next
	return nil
}

func (c *Campaign) assign(in Input) {
	c.Name = in.Name
	c.BannerRef = in.BannerRef
	c.ExtraDiscountPercent = pricing.ClampPercent(in.ExtraDiscountPercent)
	c.clampWindow()
}

// snapshot freezes the current catalog values for every selection.
func (c *Campaign) snapshot(selections []Selection, catalog map[string]product.Product) error {
	items := make([]LineItem, 0, len(selections))
	for _, s := range selections {
		p, ok := catalog[s.ProductID]
		if !ok {
			return apperr.Invalid("products", "product %s does not exist", s.ProductID)
		}
		items = append(items, LineItem{
			ProductID:                       p.ID,
			CapturedBasePrice:               p.BasePrice,
			CapturedStandingDiscountPercent: p.StandingPercent(),
			CapturedExtraDiscountPercent:    c.ExtraDiscountPercent,
			IncludedInCampaign:              !s.Excluded,
		})
	}
	c.LineItems = items
	return nil
}

func (c *Campaign) clampWindow() {
	if !c.EndTime.After(c.StartTime) {
		c.EndTime = c.StartTime.Add(MinExtension)
	}
}

// Launch activates the campaign starting at now.
func (c *Campaign) Launch(now time.Time) error {
	if c.Status == StatusCompleted {
		return c.stateError("launch")
	}
	c.Status = StatusActive
	c.StartTime = now
	if !c.EndTime.After(now) {
		c.EndTime = now.Add(MinExtension)
	}
	c.UpdatedAt = now
	return nil
}

// Stop completes the campaign. It reports whether the status changed.
func (c *Campaign) Stop(now time.Time) bool {
	if c.Status == StatusCompleted {
		return false
	}
	c.Status = StatusCompleted
	c.UpdatedAt = now
	return true
}

// InWindow reports whether now falls inside [StartTime, EndTime].
func (c *Campaign) InWindow(now time.Time) bool {
	return !now.Before(c.StartTime) && !now.After(c.EndTime)
}

// LineItem returns the snapshot for productID.
func (c *Campaign) LineItem(productID string) (LineItem, bool) {
	for _, li := range c.LineItems {
		if li.ProductID == productID {
			return li, true
		}
	}
	return LineItem{}, false
}

// AppliesTo returns the line item for productID when the campaign discounts
// that product at now.
func (c *Campaign) AppliesTo(productID string, now time.Time) (LineItem, bool) {
	if c.Status != StatusActive || !c.InWindow(now) {
		return LineItem{}, false
	}
	li, ok := c.LineItem(productID)
	if !ok || !li.IncludedInCampaign {
		return LineItem{}, false
	}
	return li, true
}

func (c *Campaign) stateError(action string) error {
	return &apperr.InvalidStateError{Entity: "campaign", ID: c.ID, From: string(c.Status), Action: action}
}

// NotFound returns the error repositories use for an unknown campaign id.
func NotFound(id string) error {
	return &apperr.NotFoundError{Entity: "campaign", ID: id}
}

// ListFilter selects a page of campaigns. An empty Status matches all.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Repository persists campaigns.
type Repository interface {
	Create(ctx context.Context, c *Campaign) error
	// Update stores c if the stored version equals c.Version and bumps
	// c.Version on success. It returns ErrVersionConflict otherwise.
	Update(ctx context.Context, c *Campaign) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Campaign, error)
	List(ctx context.Context, f ListFilter) ([]Campaign, int, error)
	// ListActiveForProduct returns active campaigns whose window contains
	// now and that reference productID. Results may be in any order.
	ListActiveForProduct(ctx context.Context, productID string, now time.Time) ([]Campaign, error)
	// ListActive returns active in-window campaigns, most recently started
	// first, at most limit of them.
	ListActive(ctx context.Context, now time.Time, limit int) ([]Campaign, error)
	// ListExpired returns active campaigns whose window ended before now.
	ListExpired(ctx context.Context, now time.Time) ([]Campaign, error)
}
