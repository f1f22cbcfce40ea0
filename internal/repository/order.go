package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dripmart/storefront/internal/domain/order"
)

const orderColumns = `id, user_id, number, items, subtotal, shipping_cost, discount, total,
	coupon_code, shipping_address, status, payment_status, payment_method,
	payment_intent_id, paid_at, shipped_at, delivered_at, created_at`

const (
	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE number = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC`

	updateOrderSQL = `UPDATE orders SET
		user_id = $2, shipping_address = $3, status = $4, payment_status = $5,
		shipped_at = $6, delivered_at = $7
		WHERE id = $1`

	countOrdersByStatusSQL = `SELECT status, COUNT(*) FROM orders GROUP BY status`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Line items and the shipping address are
// serialized to JSONB; the unique index on number rejects the (negligible)
// chance of an order-number collision.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, o.Number, items, o.Subtotal, o.ShippingCost, o.Discount, o.Total,
		o.CouponCode, address, o.Status, o.PaymentStatus, o.PaymentMethod,
		o.PaymentIntentID, o.PaidAt, o.ShippedAt, o.DeliveredAt, o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.Number, err)
	}
	return nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.findOne(ctx, getOrderByIDSQL, id)
}

// GetByNumber returns a single order by its human-readable number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.findOne(ctx, getOrderByNumberSQL, number)
}

func (r *OrderRepository) findOne(ctx context.Context, sql string, arg any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("finding order: %w", err)
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders for %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// Update persists the mutable fields of an order: status, payment status,
// fulfilment timestamps, and the user linkage (for redaction). Line items
// and amounts are immutable after creation and are not written here.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	address, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}
	tag, err := r.pool.Exec(ctx, updateOrderSQL,
		o.ID, o.UserID, address, o.Status, o.PaymentStatus, o.ShippedAt, o.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.Number, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// CountByStatus returns the number of orders per fulfilment status, for the
// admin dashboard.
func (r *OrderRepository) CountByStatus(ctx context.Context) (map[order.Status]int, error) {
	rows, err := r.pool.Query(ctx, countOrdersByStatusSQL)
	if err != nil {
		return nil, fmt.Errorf("counting orders by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[order.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("counting orders by status: %w", err)
		}
		counts[order.Status(status)] = n
	}
	return counts, rows.Err()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o       order.Order
		items   []byte
		address []byte
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.Number, &items, &o.Subtotal, &o.ShippingCost, &o.Discount, &o.Total,
		&o.CouponCode, &address, &o.Status, &o.PaymentStatus, &o.PaymentMethod,
		&o.PaymentIntentID, &o.PaidAt, &o.ShippedAt, &o.DeliveredAt, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items for order %q: %w", o.Number, err)
	}
	if err := json.Unmarshal(address, &o.ShippingAddress); err != nil {
		return o, fmt.Errorf("unmarshaling address for order %q: %w", o.Number, err)
	}
	return o, nil
}
