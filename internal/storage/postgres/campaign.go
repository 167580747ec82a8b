package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/promo-storefront/internal/domain/campaign"
)

const (
	campaignColumns = `id, name, banner_ref, extra_discount_percent, status,
		start_time, end_time, line_items, version, created_at, updated_at`

	createCampaignSQL = `INSERT INTO campaigns (` + campaignColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)`

	updateCampaignSQL = `UPDATE campaigns SET
			name = $2, banner_ref = $3, extra_discount_percent = $4, status = $5,
			start_time = $6, end_time = $7, line_items = $8, updated_at = $9,
			version = version + 1
		WHERE id = $1 AND version = $10
		RETURNING version`

	deleteCampaignSQL = `DELETE FROM campaigns WHERE id = $1`

	getCampaignByIDSQL = `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	listCampaignsSQL = `SELECT ` + campaignColumns + ` FROM campaigns
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	countCampaignsSQL = `SELECT count(*) FROM campaigns WHERE ($1 = '' OR status = $1)`

	listActiveForProductSQL = `SELECT ` + campaignColumns + ` FROM campaigns
		WHERE status = 'active' AND start_time <= $2 AND end_time >= $2
			AND line_items @> jsonb_build_array(jsonb_build_object('productId', $1::text))`

	listActiveSQL = `SELECT ` + campaignColumns + ` FROM campaigns
		WHERE status = 'active' AND start_time <= $1 AND end_time >= $1
		ORDER BY start_time DESC, id
		LIMIT $2`

	listExpiredSQL = `SELECT ` + campaignColumns + ` FROM campaigns
		WHERE status = 'active' AND end_time < $1
		ORDER BY end_time, id`
)

// lineItemRecord is the JSONB shape of a campaign line item.
type lineItemRecord struct {
	ProductID                       string          `json:"productId"`
	CapturedBasePrice               decimal.Decimal `json:"capturedBasePrice"`
	CapturedStandingDiscountPercent decimal.Decimal `json:"capturedStandingDiscountPercent"`
	CapturedExtraDiscountPercent    decimal.Decimal `json:"capturedExtraDiscountPercent"`
	IncludedInCampaign              bool            `json:"includedInCampaign"`
}

var _ campaign.Repository = (*CampaignRepository)(nil)

// CampaignRepository implements campaign.Repository backed by PostgreSQL.
// Line items are stored as a JSONB array on the campaign row.
type CampaignRepository struct {
	pool *pgxpool.Pool
}

// NewCampaignRepository returns a CampaignRepository that uses the given pool.
func NewCampaignRepository(pool *pgxpool.Pool) *CampaignRepository {
	return &CampaignRepository{pool: pool}
}

// Create inserts c with version 1.
func (r *CampaignRepository) Create(ctx context.Context, c *campaign.Campaign) error {
	items, err := marshalLineItems(c.LineItems)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, createCampaignSQL,
		c.ID, c.Name, c.BannerRef, c.ExtraDiscountPercent, string(c.Status),
		c.StartTime, c.EndTime, items, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating campaign %q: %w", c.ID, err)
	}
	c.Version = 1
	return nil
}

// Update overwrites c if its version still matches the stored one.
func (r *CampaignRepository) Update(ctx context.Context, c *campaign.Campaign) error {
	items, err := marshalLineItems(c.LineItems)
	if err != nil {
		return err
	}

	var version int64
	err = r.pool.QueryRow(ctx, updateCampaignSQL,
		c.ID, c.Name, c.BannerRef, c.ExtraDiscountPercent, string(c.Status),
		c.StartTime, c.EndTime, items, c.UpdatedAt, c.Version,
	).Scan(&version)
	if err == nil {
		c.Version = version
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("updating campaign %q: %w", c.ID, err)
	}

	found, err := exists(ctx, r.pool, "campaigns", c.ID)
	if err != nil {
		return err
	}
	if !found {
		return campaign.NotFound(c.ID)
	}
	return campaign.ErrVersionConflict
}

// Delete removes a campaign by id.
func (r *CampaignRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteCampaignSQL, id)
	if err != nil {
		return fmt.Errorf("deleting campaign %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return campaign.NotFound(id)
	}
	return nil
}

// GetByID returns a campaign by id.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*campaign.Campaign, error) {
	rows, err := r.pool.Query(ctx, getCampaignByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting campaign %q: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCampaign)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, campaign.NotFound(id)
		}
		return nil, fmt.Errorf("getting campaign %q: %w", id, err)
	}
	return &c, nil
}

// List returns one page of campaigns, newest first, and the total count.
func (r *CampaignRepository) List(ctx context.Context, f campaign.ListFilter) ([]campaign.Campaign, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, countCampaignsSQL, string(f.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting campaigns: %w", err)
	}

	rows, err := r.pool.Query(ctx, listCampaignsSQL, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing campaigns: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanCampaign)
	if err != nil {
		return nil, 0, fmt.Errorf("listing campaigns: %w", err)
	}
	return out, total, nil
}

// ListActiveForProduct returns in-window active campaigns that carry a line
// item for productID.
func (r *CampaignRepository) ListActiveForProduct(ctx context.Context, productID string, now time.Time) ([]campaign.Campaign, error) {
	rows, err := r.pool.Query(ctx, listActiveForProductSQL, productID, now)
	if err != nil {
		return nil, fmt.Errorf("listing active campaigns for %q: %w", productID, err)
	}
	return pgx.CollectRows(rows, scanCampaign)
}

// ListActive returns in-window active campaigns, most recently started first.
func (r *CampaignRepository) ListActive(ctx context.Context, now time.Time, limit int) ([]campaign.Campaign, error) {
	rows, err := r.pool.Query(ctx, listActiveSQL, now, limit)
	if err != nil {
		return nil, fmt.Errorf("listing active campaigns: %w", err)
	}
	return pgx.CollectRows(rows, scanCampaign)
}

// ListExpired returns active campaigns whose window has ended.
func (r *CampaignRepository) ListExpired(ctx context.Context, now time.Time) ([]campaign.Campaign, error) {
	rows, err := r.pool.Query(ctx, listExpiredSQL, now)
	if err != nil {
		return nil, fmt.Errorf("listing expired campaigns: %w", err)
	}
	return pgx.CollectRows(rows, scanCampaign)
}

func scanCampaign(row pgx.CollectableRow) (campaign.Campaign, error) {
	var (
		c      campaign.Campaign
		status string
		items  []byte
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.BannerRef, &c.ExtraDiscountPercent, &status,
		&c.StartTime, &c.EndTime, &items, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	c.Status = campaign.Status(status)
	c.LineItems, err = unmarshalLineItems(items)
	return c, err
}

func marshalLineItems(items []campaign.LineItem) ([]byte, error) {
	records := make([]lineItemRecord, len(items))
	for i, li := range items {
		records[i] = lineItemRecord(li)
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("marshaling line items: %w", err)
	}
	return data, nil
}

func unmarshalLineItems(data []byte) ([]campaign.LineItem, error) {
	var records []lineItemRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshaling line items: %w", err)
	}
	items := make([]campaign.LineItem, len(records))
	for i, rec := range records {
		items[i] = campaign.LineItem(rec)
	}
	return items, nil
}
