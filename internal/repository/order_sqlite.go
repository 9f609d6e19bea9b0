package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"flashdeal-api/internal/model"
)

// SQLiteOrderRepository implements OrderRepository using SQLite.
type SQLiteOrderRepository struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteOrderRepository creates a new SQLite order repository on a
// database opened with OpenSQLite.
func NewSQLiteOrderRepository(db *sql.DB) *SQLiteOrderRepository {
	return &SQLiteOrderRepository{db: db}
}

// Save durably persists an admitted order.
func (r *SQLiteOrderRepository) Save(ctx context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `INSERT INTO orders (id, user_id, promotion_id, created_at) VALUES (?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		order.ID, order.UserID, order.PromotionID, order.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save order %d: %w", order.ID, err)
	}
	return nil
}

// ExistsByUserAndPromotion reports whether the user already holds a
// persisted order for the promotion.
func (r *SQLiteOrderRepository) ExistsByUserAndPromotion(ctx context.Context, userID, promotionID int64) (bool, error) {
	query := `SELECT COUNT(*) FROM orders WHERE user_id = ? AND promotion_id = ?`

	var count int64
	err := r.db.QueryRowContext(ctx, query, userID, promotionID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count orders for user %d: %w", userID, err)
	}
	return count > 0, nil
}

// CountByPromotion returns the number of persisted orders for a promotion.
func (r *SQLiteOrderRepository) CountByPromotion(ctx context.Context, promotionID int64) (int64, error) {
	query := `SELECT COUNT(*) FROM orders WHERE promotion_id = ?`

	var count int64
	err := r.db.QueryRowContext(ctx, query, promotionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count orders for promotion %d: %w", promotionID, err)
	}
	return count, nil
}
