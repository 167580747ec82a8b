package order

import (
	"context"
	"errors"
	"time"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending               Status = "Pending"
	StatusProcessing            Status = "Processing"
	StatusConfirmed             Status = "Confirmed"
	StatusShipped               Status = "Shipped"
	StatusDelivered             Status = "Delivered"
	StatusCancellationRequested Status = "CancellationRequested"
	StatusCancelled             Status = "Cancelled"
	StatusPaymentFailed         Status = "PaymentFailed"
)

var transitions = map[Status][]Status{
	StatusPending: {
		StatusProcessing, StatusConfirmed, StatusCancellationRequested, StatusCancelled, StatusPaymentFailed,
	},
	StatusProcessing: {
		StatusConfirmed, StatusCancellationRequested, StatusCancelled, StatusPaymentFailed,
	},
	StatusConfirmed:             {StatusShipped, StatusCancellationRequested, StatusCancelled},
	StatusShipped:               {StatusDelivered},
	StatusCancellationRequested: {StatusCancelled},
}

// ParseStatus converts s into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusProcessing, StatusConfirmed, StatusShipped, StatusDelivered,
		StatusCancellationRequested, StatusCancelled, StatusPaymentFailed:
		return st, nil
	default:
		return "", apperr.Invalid("status", "unknown order status %q", s)
	}
}

// CanTransitionTo reports whether an order may move from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReleasesStock reports whether entering s returns the order's reserved
// units to the ledger. Every transition into these states starts from a
// status that still holds stock.
func (s Status) ReleasesStock() bool {
	return s == StatusCancelled || s == StatusPaymentFailed
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "CashOnDelivery"
	PaymentExternalCard   PaymentMethod = "ExternalCardPayment"
)

// Prepaid reports whether the order is paid before acceptance.
func (m PaymentMethod) Prepaid() bool {
	return m == PaymentExternalCard
}

func (m PaymentMethod) valid() bool {
	return m == PaymentCashOnDelivery || m == PaymentExternalCard
}

// MaxItemQuantity bounds the quantity of a single checkout line.
const MaxItemQuantity = 10_000

// DefaultSubDistrict fills an omitted sub-district in delivery info.
const DefaultSubDistrict = "Not Provided"

// Item is one priced line of an order. UnitPriceCharged is fixed at
// checkout and never recomputed.
type Item struct {
	ProductID        string  `json:"productId"`
	Quantity         int64   `json:"quantity"`
	UnitPriceCharged int64   `json:"unitPriceCharged"`
	CampaignRef      *string `json:"campaignRef,omitempty"`
}

// LineTotal is UnitPriceCharged × Quantity.
func (i Item) LineTotal() int64 {
	return i.UnitPriceCharged * i.Quantity
}

// DeliveryInfo is where the order ships.
type DeliveryInfo struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	District    string `json:"district"`
	SubDistrict string `json:"subDistrict"`
	Address     string `json:"address"`
	PostalCode  string `json:"postalCode,omitempty"`
}

// Order is a placed customer order.
type Order struct {
	ID                  string
	CustomerRef         *string
	Items               []Item
	Delivery            DeliveryInfo
	DeliveryCharge      int64
	TotalAmount         int64
	Status              Status
	PaymentMethod       PaymentMethod
	PaymentReference    string
	EstimatedDeliveryAt time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Guest reports whether the order was placed without a customer account.
func (o *Order) Guest() bool {
	return o.CustomerRef == nil
}

// Sentinel errors returned by repositories.
var (
	// ErrStatusConflict is returned by CompareAndSetStatus when the stored
	// status no longer equals the expected one.
	ErrStatusConflict = errors.New("order status changed concurrently")
	// ErrDuplicatePaymentReference is returned by Create when another order
	// already holds the payment reference.
	ErrDuplicatePaymentReference = errors.New("payment reference already used")
)

// NotFound returns the error repositories use for an unknown order.
func NotFound(id string) error {
	return &apperr.NotFoundError{Entity: "order", ID: id}
}

// ListFilter selects a page of orders. An empty Status matches all.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	FindByPaymentReference(ctx context.Context, reference string) (*Order, error)
	// ListByCustomer and ListGuestByPhone return newest orders first.
	ListByCustomer(ctx context.Context, customerRef string) ([]Order, error)
	ListGuestByPhone(ctx context.Context, phone string) ([]Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	Count(ctx context.Context) (int64, error)
	// CompareAndSetStatus atomically moves order id from status from to
	// status to and returns the updated order. It returns ErrStatusConflict
	// if the stored status is not from.
	CompareAndSetStatus(ctx context.Context, id string, from, to Status, at time.Time) (*Order, error)
}
