package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/dropship-fulfillment/internal/domain/order"
)

const (
	getWatermarkSQL = `SELECT last_external_id FROM fulfillment_watermark WHERE id = 1`
	setWatermarkSQL = `UPDATE fulfillment_watermark SET last_external_id = $1, updated_at = now() WHERE id = 1`
)

var _ order.WatermarkStore = (*WatermarkStore)(nil)

// WatermarkStore persists the ingest high-water mark in its single-row
// table.
type WatermarkStore struct {
	pool *pgxpool.Pool
}

// NewWatermarkStore returns a WatermarkStore that uses the given pool.
func NewWatermarkStore(pool *pgxpool.Pool) *WatermarkStore {
	return &WatermarkStore{pool: pool}
}

// Get returns the external id of the last ingested storefront order, or
// the empty string before the first ingest.
func (s *WatermarkStore) Get(ctx context.Context) (string, error) {
	var last string
	if err := s.pool.QueryRow(ctx, getWatermarkSQL).Scan(&last); err != nil {
		return "", fmt.Errorf("getting watermark: %w", err)
	}
	return last, nil
}

// Set advances the high-water mark.
func (s *WatermarkStore) Set(ctx context.Context, externalID string) error {
	if _, err := s.pool.Exec(ctx, setWatermarkSQL, externalID); err != nil {
		return fmt.Errorf("setting watermark: %w", err)
	}
	return nil
}
