package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xenking/promo-storefront/internal/domain/campaign"
)

var _ campaign.Repository = (*CampaignStore)(nil)

// CampaignStore keeps campaigns in memory with optimistic versioning.
type CampaignStore struct {
	mu        sync.RWMutex
	campaigns map[string]campaign.Campaign
}

// NewCampaignStore returns an empty store.
func NewCampaignStore() *CampaignStore {
	return &CampaignStore{campaigns: make(map[string]campaign.Campaign)}
}

func (s *CampaignStore) Create(_ context.Context, c *campaign.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Version = 1
	s.campaigns[c.ID] = clone(*c)
	return nil
}

func (s *CampaignStore) Update(_ context.Context, c *campaign.Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.campaigns[c.ID]
	if !ok {
		return campaign.NotFound(c.ID)
	}
	if stored.Version != c.Version {
		return campaign.ErrVersionConflict
	}
	c.Version++
	s.campaigns[c.ID] = clone(*c)
	return nil
}

func (s *CampaignStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[id]; !ok {
		return campaign.NotFound(id)
	}
	delete(s.campaigns, id)
	return nil
}

func (s *CampaignStore) GetByID(_ context.Context, id string) (*campaign.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, campaign.NotFound(id)
	}
	c = clone(c)
	return &c, nil
}

// List returns campaigns newest first.
func (s *CampaignStore) List(_ context.Context, f campaign.ListFilter) ([]campaign.Campaign, int, error) {
	all := s.collect(func(c *campaign.Campaign) bool {
		return f.Status == "" || c.Status == f.Status
	})
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	return page(all, f.Offset, f.Limit), len(all), nil
}

func (s *CampaignStore) ListActiveForProduct(_ context.Context, productID string, now time.Time) ([]campaign.Campaign, error) {
	return s.collect(func(c *campaign.Campaign) bool {
		if c.Status != campaign.StatusActive || !c.InWindow(now) {
			return false
		}
		_, ok := c.LineItem(productID)
		return ok
	}), nil
}

func (s *CampaignStore) ListActive(_ context.Context, now time.Time, limit int) ([]campaign.Campaign, error) {
	active := s.collect(func(c *campaign.Campaign) bool {
		return c.Status == campaign.StatusActive && c.InWindow(now)
	})
	sort.Slice(active, func(i, j int) bool {
		if !active[i].StartTime.Equal(active[j].StartTime) {
			return active[i].StartTime.After(active[j].StartTime)
		}
		return active[i].ID < active[j].ID
	})
	return page(active, 0, limit), nil
}

func (s *CampaignStore) ListExpired(_ context.Context, now time.Time) ([]campaign.Campaign, error) {
	return s.collect(func(c *campaign.Campaign) bool {
		return c.Status == campaign.StatusActive && c.EndTime.Before(now)
	}), nil
}

func (s *CampaignStore) collect(keep func(*campaign.Campaign) bool) []campaign.Campaign {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []campaign.Campaign
	for _, c := range s.campaigns {
		if keep(&c) {
			out = append(out, clone(c))
		}
	}
	return out
}

func clone(c campaign.Campaign) campaign.Campaign {
	c.LineItems = append([]campaign.LineItem(nil), c.LineItems...)
	return c
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
