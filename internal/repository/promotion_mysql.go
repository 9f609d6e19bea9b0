package repository

import (
	"context"
	"database/sql"
	"fmt"

	"flashdeal-api/internal/model"
)

// MySQLPromotionRepository implements PromotionRepository using MySQL.
type MySQLPromotionRepository struct {
	db *sql.DB
}

// NewMySQLPromotionRepository creates a new MySQL promotion repository.
func NewMySQLPromotionRepository(db *sql.DB) *MySQLPromotionRepository {
	return &MySQLPromotionRepository{db: db}
}

// GetByID returns the promotion or (nil, nil) if it does not exist.
func (r *MySQLPromotionRepository) GetByID(ctx context.Context, id int64) (*model.Promotion, error) {
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

// DecrementStock takes one unit of durable stock, guarded by stock > 0 so
// the counter can never go negative under concurrent writers.
func (r *MySQLPromotionRepository) DecrementStock(ctx context.Context, id int64) (bool, error) {
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
func (r *MySQLPromotionRepository) Close() error {
	return nil
}
