package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, external_id, status, customer_email, shipping_address, items, total, currency, error_message, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (external_id) DO NOTHING`

	selectOrderSQL = `SELECT id, external_id, status, customer_email, shipping_address, items, total, currency, error_message, created_at, updated_at
	FROM orders`

	// The update is guarded by the updated_at value the aggregate was
	// read with, so concurrent writers cannot silently overwrite each
	// other.
	updateOrderSQL = `UPDATE orders
	SET status = $2, error_message = $3, updated_at = now()
	WHERE id = $1 AND updated_at = $4
	RETURNING updated_at`
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
// serialized to JSON for storage in JSONB columns. A second ingest of
// the same external id returns order.ErrDuplicate without writing.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	addrJSON, err := json.Marshal(o.ShippingAddr)
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}

	tag, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.ExternalID, o.Status, o.CustomerEmail, addrJSON, itemsJSON,
		o.Total, o.Currency, o.ErrorMessage, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrDuplicate
	}
	return nil
}

// Get loads one order by id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	row := r.pool.QueryRow(ctx, selectOrderSQL+` WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return o, nil
}

// GetByExternalID loads one order by its storefront id.
func (r *OrderRepository) GetByExternalID(ctx context.Context, externalID string) (*order.Order, error) {
	row := r.pool.QueryRow(ctx, selectOrderSQL+` WHERE external_id = $1`, externalID)
	o, err := scanOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order by external id %q: %w", externalID, err)
	}
	return o, nil
}

// Update persists the mutable fields of an order, conditionally on the
// updated_at value the caller read. order.ErrStale signals a lost race.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	err := r.pool.QueryRow(ctx, updateOrderSQL,
		o.ID, o.Status, o.ErrorMessage, o.UpdatedAt,
	).Scan(&o.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return order.ErrStale
		}
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	return nil
}

// ListByStatus returns every order in the given status.
func (r *OrderRepository) ListByStatus(ctx context.Context, status order.Status) ([]*order.Order, error) {
	rows, err := r.pool.Query(ctx, selectOrderSQL+` WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("listing orders by status %q: %w", status, err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o         order.Order
		addrJSON  []byte
		itemsJSON []byte
	)
	err := row.Scan(
		&o.ID, &o.ExternalID, &o.Status, &o.CustomerEmail, &addrJSON, &itemsJSON,
		&o.Total, &o.Currency, &o.ErrorMessage, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addrJSON, &o.ShippingAddr); err != nil {
		return nil, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling order items: %w", err)
	}
	return &o, nil
}
