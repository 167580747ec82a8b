// Package order implements checkout and the order lifecycle: pricing each
// line through the campaign resolver, reserving stock all-or-nothing and
// releasing it exactly once on cancellation.
package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/promo-storefront/internal/domain/apperr"
	"github.com/xenking/promo-storefront/internal/domain/campaign"
	"github.com/xenking/promo-storefront/internal/domain/inventory"
	"github.com/xenking/promo-storefront/internal/domain/payment"
	"github.com/xenking/promo-storefront/internal/domain/product"
)

const instrumentationName = "github.com/xenking/promo-storefront/internal/domain/order"

// DefaultEstimatedDelivery is added to the checkout time to estimate delivery.
const DefaultEstimatedDelivery = 7 * 24 * time.Hour

// Resolver finds the campaign that applies to a product at an instant.
type Resolver interface {
	ResolveForProduct(ctx context.Context, productID string, now time.Time) (*campaign.Resolution, error)
}

// CheckoutItem is one requested product and quantity.
type CheckoutItem struct {
	ProductID string
	Quantity  int64
}

// CheckoutRequest holds the input for placing an order. Prices and totals
// are never taken from the client.
type CheckoutRequest struct {
	CustomerRef      *string
	Items            []CheckoutItem
	Delivery         DeliveryInfo
	DeliveryCharge   *int64
	PaymentMethod    PaymentMethod
	PaymentReference string
}

// Service encapsulates checkout and order lifecycle logic.
type Service struct {
	products  product.Repository
	campaigns Resolver
	ledger    inventory.Ledger
	payments  payment.Verifier
	orders    Repository

	now               func() time.Time
	estimatedDelivery time.Duration
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider

	tracer          trace.Tracer
	checkouts       metric.Int64Counter
	releaseFailures metric.Int64Counter
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEstimatedDelivery sets the delivery estimate added at checkout.
func WithEstimatedDelivery(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.estimatedDelivery = d
		}
	}
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider. Defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	campaigns Resolver,
	ledger inventory.Ledger,
	payments payment.Verifier,
	orders Repository,
	opts ...Option,
) *Service {
	s := &Service{
		products:          products,
		campaigns:         campaigns,
		ledger:            ledger,
		payments:          payments,
		orders:            orders,
		now:               time.Now,
		estimatedDelivery: DefaultEstimatedDelivery,
		tracerProvider:    otel.GetTracerProvider(),
		meterProvider:     otel.GetMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	meter := s.meterProvider.Meter(instrumentationName)

	var err error
	if s.checkouts, err = meter.Int64Counter("shop.order.checkouts",
		metric.WithDescription("Checkout attempts by outcome"),
	); err != nil {
		s.checkouts = noop.Int64Counter{}
	}
	if s.releaseFailures, err = meter.Int64Counter("shop.inventory.release_failures",
		metric.WithDescription("Stock releases that failed and need reconciliation"),
	); err != nil {
		s.releaseFailures = noop.Int64Counter{}
	}
	return s
}

// Checkout validates the request, verifies prepayment, prices and reserves
// every item and persists the order. Any failure after the first
// reservation releases all reservations made by this call.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.Checkout",
		trace.WithAttributes(
			attribute.Int("order.items", len(req.Items)),
			attribute.String("order.payment_method", string(req.PaymentMethod)),
		),
	)
	defer span.End()

	o, err := s.checkout(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = apperr.CodeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetAttributes(attribute.String("order.id", o.ID))
	}
	s.checkouts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return o, err
}

func (s *Service) checkout(ctx context.Context, req CheckoutRequest) (*Order, error) {
	if err := validateCheckout(&req); err != nil {
		return nil, err
	}

	if req.PaymentMethod.Prepaid() {
		if err := s.verifyPayment(ctx, req.PaymentReference); err != nil {
			return nil, err
		}
	}

	now := s.now()
	reservations := inventory.NewReservations(s.ledger)

	items, err := s.priceAndReserve(ctx, req.Items, reservations, now)
	if err != nil {
		s.rollback(ctx, reservations)
		return nil, err
	}

	o := &Order{
		ID:                  uuid.New().String(),
		CustomerRef:         req.CustomerRef,
		Items:               items,
		Delivery:            req.Delivery,
		DeliveryCharge:      *req.DeliveryCharge,
		Status:              StatusPending,
		PaymentMethod:       req.PaymentMethod,
		PaymentReference:    req.PaymentReference,
		EstimatedDeliveryAt: now.Add(s.estimatedDelivery),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if req.PaymentMethod.Prepaid() {
		o.Status = StatusProcessing
	}
	total, ok := orderTotal(o.DeliveryCharge, items)
	if !ok {
		s.rollback(ctx, reservations)
		return nil, apperr.Invalid("items", "order total exceeds the supported amount")
	}
	o.TotalAmount = total

	if err := s.orders.Create(ctx, o); err != nil {
		s.rollback(ctx, reservations)
		if errors.Is(err, ErrDuplicatePaymentReference) {
			return nil, &apperr.PaymentError{Reference: req.PaymentReference, Status: "already_used"}
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	zctx.From(ctx).Info("Order placed",
		zap.String("order_id", o.ID),
		zap.String("status", string(o.Status)),
		zap.Int64("total", o.TotalAmount),
		zap.Int("items", len(o.Items)),
	)
	return o, nil
}

// priceAndReserve prices each item at the single instant now and reserves
// its stock, in request order.
func (s *Service) priceAndReserve(
	ctx context.Context,
	req []CheckoutItem,
	reservations *inventory.Reservations,
	now time.Time,
) ([]Item, error) {
	items := make([]Item, 0, len(req))
	for _, it := range req {
		p, err := s.products.GetByID(ctx, it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("get product %s: %w", it.ProductID, err)
		}

		res, err := s.campaigns.ResolveForProduct(ctx, p.ID, now)
		if err != nil {
			return nil, fmt.Errorf("resolve campaign for %s: %w", p.ID, err)
		}

		item := Item{
			ProductID:        p.ID,
			Quantity:         it.Quantity,
			UnitPriceCharged: campaign.UnitPrice(p, res),
		}
		if res != nil {
			ref := res.Campaign.ID
			item.CampaignRef = &ref
		}

		if err := reservations.Reserve(ctx, p.ID, it.Quantity); err != nil {
			return nil, fmt.Errorf("reserve %s: %w", p.ID, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *Service) verifyPayment(ctx context.Context, reference string) error {
	existing, err := s.orders.FindByPaymentReference(ctx, reference)
	switch {
	case err == nil && existing != nil:
		return &apperr.PaymentError{Reference: reference, Status: "already_used"}
	case err != nil && apperr.CodeOf(err) != apperr.CodeNotFound:
		return fmt.Errorf("find order by payment reference: %w", err)
	}

	status, err := s.payments.Verify(ctx, reference)
	if err != nil {
		return fmt.Errorf("verify payment: %w", err)
	}
	if status != payment.StatusSucceeded {
		return &apperr.PaymentError{Reference: reference, Status: string(status)}
	}
	return nil
}

func (s *Service) rollback(ctx context.Context, reservations *inventory.Reservations) {
	held := len(reservations.Held())
	if held == 0 {
		return
	}
	if err := reservations.ReleaseAll(ctx); err != nil {
		s.releaseFailures.Add(ctx, 1)
		zctx.From(ctx).Error("Checkout rollback incomplete", zap.Error(err))
		return
	}
	zctx.From(ctx).Debug("Checkout rolled back", zap.Int("reservations", held))
}

// orderTotal sums the delivery charge and every line total. ok is false when
// the sum does not fit in an int64.
func orderTotal(deliveryCharge int64, items []Item) (total int64, ok bool) {
	total = deliveryCharge
	for _, it := range items {
		if it.Quantity > 0 && it.UnitPriceCharged > math.MaxInt64/it.Quantity {
			return 0, false
		}
		line := it.LineTotal()
		if total > math.MaxInt64-line {
			return 0, false
		}
		total += line
	}
	return total, true
}

func validateCheckout(req *CheckoutRequest) error {
	switch {
	case len(req.Items) == 0:
		return apperr.Missing("items")
	case req.DeliveryCharge == nil:
		return apperr.Missing("deliveryCharge")
	case req.Delivery.Name == "":
		return apperr.Missing("name")
	case req.Delivery.Phone == "":
		return apperr.Missing("phone")
	case req.Delivery.District == "":
		return apperr.Missing("district")
	case req.Delivery.Address == "":
		return apperr.Missing("address")
	case req.PaymentMethod == "":
		return apperr.Missing("paymentMethod")
	}

	if *req.DeliveryCharge < 0 {
		return apperr.Invalid("deliveryCharge", "must not be negative")
	}
	for i, it := range req.Items {
		if it.ProductID == "" {
			return apperr.Missing(fmt.Sprintf("items[%d].productId", i))
		}
		if it.Quantity <= 0 || it.Quantity > MaxItemQuantity {
			return apperr.Invalid(fmt.Sprintf("items[%d].quantity", i),
				"must be between 1 and %d, got %d", MaxItemQuantity, it.Quantity)
		}
	}
	if !req.PaymentMethod.valid() {
		return apperr.Invalid("paymentMethod", "unsupported payment method %q", req.PaymentMethod)
	}
	if req.PaymentMethod.Prepaid() && req.PaymentReference == "" {
		return apperr.Missing("paymentReference")
	}
	if !req.PaymentMethod.Prepaid() {
		req.PaymentReference = ""
	}
	if req.Delivery.SubDistrict == "" {
		req.Delivery.SubDistrict = DefaultSubDistrict
	}
	return nil
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// ListByCustomer returns a customer's orders, newest first.
func (s *Service) ListByCustomer(ctx context.Context, customerRef string) ([]Order, error) {
	if customerRef == "" {
		return nil, apperr.Missing("customerRef")
	}
	return s.orders.ListByCustomer(ctx, customerRef)
}

// ListGuestByPhone returns guest orders placed with phone, newest first.
func (s *Service) ListGuestByPhone(ctx context.Context, phone string) ([]Order, error) {
	if phone == "" {
		return nil, apperr.Missing("phone")
	}
	return s.orders.ListGuestByPhone(ctx, phone)
}

// List returns one page of orders for back-office views.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.orders.List(ctx, f)
}

// Count returns the number of orders.
func (s *Service) Count(ctx context.Context) (int64, error) {
	return s.orders.Count(ctx)
}

// UpdateStatus moves an order to status to. A transition into Cancelled or
// PaymentFailed returns the stock of every item to the ledger; the status
// change is an atomic latch so the release happens once.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, o, to)
}

// RequestCancellation marks an order as awaiting cancellation. Stock stays
// reserved until the order is actually cancelled.
func (s *Service) RequestCancellation(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch o.Status {
	case StatusPending, StatusProcessing, StatusConfirmed:
	default:
		return nil, stateError(o, StatusCancellationRequested)
	}
	return s.transition(ctx, o, StatusCancellationRequested)
}

// ApplyPaymentEvent updates the order holding ev.Reference after the
// payment provider reports an outcome. Events that do not change the order
// are ignored.
func (s *Service) ApplyPaymentEvent(ctx context.Context, ev payment.Event) (*Order, error) {
	o, err := s.orders.FindByPaymentReference(ctx, ev.Reference)
	if err != nil {
		return nil, err
	}

	var to Status
	switch {
	case ev.Status == payment.StatusSucceeded && o.Status == StatusPending:
		to = StatusProcessing
	case ev.Status == payment.StatusFailed && (o.Status == StatusPending || o.Status == StatusProcessing):
		to = StatusPaymentFailed
	default:
		zctx.From(ctx).Debug("Payment event ignored",
			zap.String("event_id", ev.ID),
			zap.String("order_id", o.ID),
			zap.String("order_status", string(o.Status)),
			zap.String("payment_status", string(ev.Status)),
		)
		return o, nil
	}
	return s.transition(ctx, o, to)
}

func (s *Service) transition(ctx context.Context, o *Order, to Status) (*Order, error) {
	if !o.Status.CanTransitionTo(to) {
		return nil, stateError(o, to)
	}

	updated, err := s.orders.CompareAndSetStatus(ctx, o.ID, o.Status, to, s.now())
	if errors.Is(err, ErrStatusConflict) {
		return nil, stateError(o, to)
	}
	if err != nil {
		return nil, fmt.Errorf("update order %s status: %w", o.ID, err)
	}

	lg := zctx.From(ctx)
	lg.Info("Order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
	)

	if to.ReleasesStock() {
		s.releaseItems(ctx, updated)
	}
	return updated, nil
}

// releaseItems returns the stock of a cancelled or failed order. Failures
// are logged and counted for reconciliation; the status change stands.
func (s *Service) releaseItems(ctx context.Context, o *Order) {
	lg := zctx.From(ctx)
	for _, it := range o.Items {
		if err := s.ledger.Release(ctx, it.ProductID, it.Quantity); err != nil {
			s.releaseFailures.Add(ctx, 1)
			lg.Error("Release stock for cancelled order",
				zap.String("order_id", o.ID),
				zap.String("product_id", it.ProductID),
				zap.Int64("quantity", it.Quantity),
				zap.Error(err),
			)
		}
	}
}

func stateError(o *Order, to Status) error {
	return &apperr.InvalidStateError{
		Entity: "order",
		ID:     o.ID,
		From:   string(o.Status),
		Action: "move to " + string(to),
	}
}
