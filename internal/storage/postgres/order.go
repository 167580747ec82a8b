package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/promo-storefront/internal/domain/order"
)

const (
	orderColumns = `id, customer_ref, items, delivery, delivery_charge, total_amount, status,
		payment_method, payment_reference, estimated_delivery_at, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (id, customer_ref, items, delivery, delivery_phone,
			delivery_charge, total_amount, status, payment_method, payment_reference,
			estimated_delivery_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByPaymentReferenceSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_reference = $1`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_ref = $1
		ORDER BY created_at DESC, id`

	listGuestOrdersByPhoneSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_ref IS NULL AND delivery_phone = $1
		ORDER BY created_at DESC, id`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	countFilteredOrdersSQL = `SELECT count(*) FROM orders WHERE ($1 = '' OR status = $1)`

	countOrdersSQL = `SELECT count(*) FROM orders`

	setOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns

	uniqueViolation            = "23505"
	paymentReferenceConstraint = "orders_payment_reference_key"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Items
// and delivery details are stored as JSONB.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. A second order carrying the same payment
// reference fails with order.ErrDuplicatePaymentReference.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	delivery, err := json.Marshal(o.Delivery)
	if err != nil {
		return fmt.Errorf("marshaling delivery info: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.CustomerRef, items, delivery, o.Delivery.Phone,
		o.DeliveryCharge, o.TotalAmount, string(o.Status), string(o.PaymentMethod),
		nullable(o.PaymentReference), o.EstimatedDeliveryAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == paymentReferenceConstraint {
			return order.ErrDuplicatePaymentReference
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns an order by id.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, id, getOrderByIDSQL, id)
}

// FindByPaymentReference returns the order holding reference.
func (r *OrderRepository) FindByPaymentReference(ctx context.Context, reference string) (*order.Order, error) {
	return r.one(ctx, reference, getOrderByPaymentReferenceSQL, reference)
}

// ListByCustomer returns a customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerRef string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByCustomerSQL, customerRef)
	if err != nil {
		return nil, fmt.Errorf("listing orders of customer %q: %w", customerRef, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListGuestByPhone returns guest orders placed with phone, newest first.
func (r *OrderRepository) ListGuestByPhone(ctx context.Context, phone string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listGuestOrdersByPhoneSQL, phone)
	if err != nil {
		return nil, fmt.Errorf("listing guest orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// List returns one page of orders, newest first, and the total count.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, countFilteredOrdersSQL, string(f.Status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	rows, err := r.pool.Query(ctx, listOrdersSQL, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return out, total, nil
}

// Count returns the number of orders.
func (r *OrderRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countOrdersSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders: %w", err)
	}
	return n, nil
}

// CompareAndSetStatus moves order id from status from to status to in a
// single conditional UPDATE.
func (r *OrderRepository) CompareAndSetStatus(ctx context.Context, id string, from, to order.Status, at time.Time) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, setOrderStatusSQL, id, string(from), string(to), at)
	if err != nil {
		return nil, fmt.Errorf("updating order %q status: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating order %q status: %w", id, err)
	}

	found, err := exists(ctx, r.pool, "orders", id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, order.NotFound(id)
	}
	return nil, order.ErrStatusConflict
}

func (r *OrderRepository) one(ctx context.Context, key, query string, args ...any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", key, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.NotFound(key)
		}
		return nil, fmt.Errorf("getting order %q: %w", key, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                order.Order
		items, delivery  []byte
		status, method   string
		paymentReference *string
	)
	err := row.Scan(
		&o.ID, &o.CustomerRef, &items, &delivery, &o.DeliveryCharge, &o.TotalAmount, &status,
		&method, &paymentReference, &o.EstimatedDeliveryAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	o.Status = order.Status(status)
	o.PaymentMethod = order.PaymentMethod(method)
	if paymentReference != nil {
		o.PaymentReference = *paymentReference
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(delivery, &o.Delivery); err != nil {
		return o, fmt.Errorf("unmarshaling delivery info: %w", err)
	}
	return o, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
