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
	createSupplierOrderSQL = `INSERT INTO supplier_orders (id, order_id, supplier, supplier_ref, status, items, shipping_address, tracking, error_log, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	selectSupplierOrderSQL = `SELECT id, order_id, supplier, supplier_ref, status, items, shipping_address, tracking, error_log, created_at, updated_at
	FROM supplier_orders`

	updateSupplierOrderSQL = `UPDATE supplier_orders
	SET supplier_ref = $2, status = $3, tracking = $4, error_log = $5, updated_at = now()
	WHERE id = $1
	RETURNING updated_at`
)

var _ order.SupplierOrderRepository = (*SupplierOrderRepository)(nil)

// SupplierOrderRepository implements order.SupplierOrderRepository
// backed by PostgreSQL.
type SupplierOrderRepository struct {
	pool *pgxpool.Pool
}

// NewSupplierOrderRepository returns a SupplierOrderRepository that uses
// the given pool.
func NewSupplierOrderRepository(pool *pgxpool.Pool) *SupplierOrderRepository {
	return &SupplierOrderRepository{pool: pool}
}

// CreateBatch persists the full set of children produced by one
// decomposition in a single transaction, so a partial split is never
// visible.
func (r *SupplierOrderRepository) CreateBatch(ctx context.Context, subs []*order.SupplierOrder) error {
	if len(subs) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, so := range subs {
		trackingJSON, logJSON, err := marshalSupplierOrder(so)
		if err != nil {
			return err
		}
		itemsJSON, err := json.Marshal(so.Items)
		if err != nil {
			return fmt.Errorf("marshaling supplier order items: %w", err)
		}
		addrJSON, err := json.Marshal(so.ShippingAddr)
		if err != nil {
			return fmt.Errorf("marshaling shipping address: %w", err)
		}

		_, err = tx.Exec(ctx, createSupplierOrderSQL,
			so.ID, so.OrderID, so.Supplier, so.SupplierRef, so.Status,
			itemsJSON, addrJSON, trackingJSON, logJSON, so.CreatedAt, so.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating supplier order %q: %w", so.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing supplier orders: %w", err)
	}
	return nil
}

// Get loads one supplier order by id.
func (r *SupplierOrderRepository) Get(ctx context.Context, id string) (*order.SupplierOrder, error) {
	row := r.pool.QueryRow(ctx, selectSupplierOrderSQL+` WHERE id = $1`, id)
	so, err := scanSupplierOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting supplier order %q: %w", id, err)
	}
	return so, nil
}

// Update persists the mutable fields of a supplier order. Items and
// address are immutable after decomposition and are not written back.
func (r *SupplierOrderRepository) Update(ctx context.Context, so *order.SupplierOrder) error {
	trackingJSON, logJSON, err := marshalSupplierOrder(so)
	if err != nil {
		return err
	}

	err = r.pool.QueryRow(ctx, updateSupplierOrderSQL,
		so.ID, so.SupplierRef, so.Status, trackingJSON, logJSON,
	).Scan(&so.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return order.ErrNotFound
		}
		return fmt.Errorf("updating supplier order %q: %w", so.ID, err)
	}
	return nil
}

// ListByOrder returns all children of the given parent order.
func (r *SupplierOrderRepository) ListByOrder(ctx context.Context, orderID string) ([]*order.SupplierOrder, error) {
	return r.list(ctx, selectSupplierOrderSQL+` WHERE order_id = $1 ORDER BY created_at, id`, orderID)
}

// ListByStatus returns every supplier order in the given status.
func (r *SupplierOrderRepository) ListByStatus(ctx context.Context, status order.SupplierStatus) ([]*order.SupplierOrder, error) {
	return r.list(ctx, selectSupplierOrderSQL+` WHERE status = $1 ORDER BY created_at, id`, status)
}

// ListActive returns every supplier order still in a non-terminal
// status, the working set for each polling sweep.
func (r *SupplierOrderRepository) ListActive(ctx context.Context) ([]*order.SupplierOrder, error) {
	return r.list(ctx, selectSupplierOrderSQL+` WHERE status NOT IN ('delivered', 'cancelled') ORDER BY created_at, id`)
}

func (r *SupplierOrderRepository) list(ctx context.Context, query string, args ...any) ([]*order.SupplierOrder, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing supplier orders: %w", err)
	}
	defer rows.Close()

	var out []*order.SupplierOrder
	for rows.Next() {
		so, err := scanSupplierOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning supplier order: %w", err)
		}
		out = append(out, so)
	}
	return out, rows.Err()
}

func marshalSupplierOrder(so *order.SupplierOrder) (tracking, errorLog []byte, err error) {
	if so.Tracking != nil {
		tracking, err = json.Marshal(so.Tracking)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling tracking: %w", err)
		}
	}
	if so.ErrorLog == nil {
		return tracking, []byte(`[]`), nil
	}
	errorLog, err = json.Marshal(so.ErrorLog)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling error log: %w", err)
	}
	return tracking, errorLog, nil
}

func scanSupplierOrder(row pgx.Row) (*order.SupplierOrder, error) {
	var (
		so           order.SupplierOrder
		itemsJSON    []byte
		addrJSON     []byte
		trackingJSON []byte
		logJSON      []byte
	)
	err := row.Scan(
		&so.ID, &so.OrderID, &so.Supplier, &so.SupplierRef, &so.Status,
		&itemsJSON, &addrJSON, &trackingJSON, &logJSON, &so.CreatedAt, &so.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &so.Items); err != nil {
		return nil, fmt.Errorf("unmarshaling supplier order items: %w", err)
	}
	if err := json.Unmarshal(addrJSON, &so.ShippingAddr); err != nil {
		return nil, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	if len(trackingJSON) > 0 {
		so.Tracking = new(order.Tracking)
		if err := json.Unmarshal(trackingJSON, so.Tracking); err != nil {
			return nil, fmt.Errorf("unmarshaling tracking: %w", err)
		}
	}
	if err := json.Unmarshal(logJSON, &so.ErrorLog); err != nil {
		return nil, fmt.Errorf("unmarshaling error log: %w", err)
	}
	return &so, nil
}
