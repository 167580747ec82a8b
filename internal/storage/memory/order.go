package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xenking/promo-storefront/internal/domain/order"
)

var _ order.Repository = (*OrderStore)(nil)

// OrderStore keeps orders in memory.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]order.Order
	byRef  map[string]string
}

// NewOrderStore returns an empty store.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: make(map[string]order.Order),
		byRef:  make(map[string]string),
	}
}

func (s *OrderStore) Create(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.PaymentReference != "" {
		if _, taken := s.byRef[o.PaymentReference]; taken {
			return order.ErrDuplicatePaymentReference
		}
		s.byRef[o.PaymentReference] = o.ID
	}
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *OrderStore) GetByID(_ context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.NotFound(id)
	}
	o = cloneOrder(o)
	return &o, nil
}

func (s *OrderStore) FindByPaymentReference(_ context.Context, reference string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRef[reference]
	if !ok {
		return nil, order.NotFound(reference)
	}
	o := cloneOrder(s.orders[id])
	return &o, nil
}

func (s *OrderStore) ListByCustomer(_ context.Context, customerRef string) ([]order.Order, error) {
	return s.newestFirst(func(o *order.Order) bool {
		return o.CustomerRef != nil && *o.CustomerRef == customerRef
	}), nil
}

func (s *OrderStore) ListGuestByPhone(_ context.Context, phone string) ([]order.Order, error) {
	return s.newestFirst(func(o *order.Order) bool {
		return o.Guest() && o.Delivery.Phone == phone
	}), nil
}

func (s *OrderStore) List(_ context.Context, f order.ListFilter) ([]order.Order, int, error) {
	all := s.newestFirst(func(o *order.Order) bool {
		return f.Status == "" || o.Status == f.Status
	})
	return page(all, f.Offset, f.Limit), len(all), nil
}

func (s *OrderStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.orders)), nil
}

func (s *OrderStore) CompareAndSetStatus(_ context.Context, id string, from, to order.Status, at time.Time) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.NotFound(id)
	}
	if o.Status != from {
		return nil, order.ErrStatusConflict
	}
	o.Status = to
	o.UpdatedAt = at
	s.orders[id] = o

	o = cloneOrder(o)
	return &o, nil
}

func (s *OrderStore) newestFirst(keep func(*order.Order) bool) []order.Order {
	s.mu.RLock()
	var out []order.Order
	for _, o := range s.orders {
		if keep(&o) {
			out = append(out, cloneOrder(o))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func cloneOrder(o order.Order) order.Order {
	o.Items = append([]order.Item(nil), o.Items...)
	return o
}
