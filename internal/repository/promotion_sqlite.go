package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"flashdeal-api/internal/model"
)

// SQLitePromotionRepository implements PromotionRepository using SQLite.
// Serializes writes in-process on top of the single-writer pool.
type SQLitePromotionRepository struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLitePromotionRepository creates a new SQLite promotion repository on
// a database opened with OpenSQLite.
func NewSQLitePromotionRepository(db *sql.DB) *SQLitePromotionRepository {
	return &SQLitePromotionRepository{db: db}
}

// GetByID returns the promotion or (nil, nil) if it does not exist.
func (r *SQLitePromotionRepository) GetByID(ctx context.Context, id int64) (*model.Promotion, error) {
	query := `SELECT id, title, stock, begin_at, end_at FROM promotions WHERE id = ? LIMIT 1`

	var p model.Promotion
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Title, &p.Stock, &p.BeginAt, &p.EndAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get promotion %d: %w", id, err)
	}

	return &p, nil
}

// DecrementStock takes one unit of durable stock, guarded by stock > 0.
func (r *SQLitePromotionRepository) DecrementStock(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `UPDATE promotions SET stock = stock - 1 WHERE id = ? AND stock > 0`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock for promotion %d: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// Close is a no-op; the shared *sql.DB is owned by main.
func (r *SQLitePromotionRepository) Close() error {
	return nil
}

// Seed inserts or replaces a promotion. Used by tests and local tooling; the
// production admin flow lives outside this service.
func (r *SQLitePromotionRepository) Seed(ctx context.Context, p *model.Promotion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `INSERT OR REPLACE INTO promotions (id, title, stock, begin_at, end_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.Title, p.Stock, p.BeginAt, p.EndAt)
	if err != nil {
		return fmt.Errorf("failed to seed promotion %d: %w", p.ID, err)
	}
	return nil
}
