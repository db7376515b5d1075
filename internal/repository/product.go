package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/dropship-fulfillment/internal/domain/supplier"
)

const (
	upsertProductSQL = `INSERT INTO supplier_products (supplier, sku, title, price, stock, updated_at)
	VALUES ($1, $2, $3, $4, $5, now())
	ON CONFLICT (supplier, sku) DO UPDATE
	SET title = EXCLUDED.title, price = EXCLUDED.price, stock = EXCLUDED.stock, updated_at = now()`

	getProductSQL = `SELECT supplier, sku, title, price, stock, updated_at
	FROM supplier_products WHERE supplier = $1 AND sku = $2`
)

var _ supplier.Catalog = (*ProductRepository)(nil)

// ProductRepository stores supplier catalog feed rows.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// UpsertBatch writes a chunk of catalog rows in one round trip.
func (r *ProductRepository) UpsertBatch(ctx context.Context, products []supplier.CatalogProduct) error {
	if len(products) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(upsertProductSQL, p.Supplier, p.SKU, p.Title, p.Price, p.Stock)
	}

	res := r.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range products {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("upserting supplier products: %w", err)
		}
	}
	return nil
}

// Get returns one catalog row.
func (r *ProductRepository) Get(ctx context.Context, sup supplier.Type, sku string) (*supplier.CatalogProduct, error) {
	var p supplier.CatalogProduct
	err := r.pool.QueryRow(ctx, getProductSQL, sup, sku).Scan(
		&p.Supplier, &p.SKU, &p.Title, &p.Price, &p.Stock, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("supplier product %s/%s not found", sup, sku)
		}
		return nil, fmt.Errorf("getting supplier product %s/%s: %w", sup, sku, err)
	}
	return &p, nil
}
