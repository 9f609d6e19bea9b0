package repository

import (
	"context"

	"flashdeal-api/internal/model"
)

// PromotionRepository defines promotion data access methods.
type PromotionRepository interface {
	// GetByID returns the promotion or (nil, nil) if it does not exist.
	GetByID(ctx context.Context, id int64) (*model.Promotion, error)

	// DecrementStock conditionally takes one unit of durable stock.
	// Returns false when no stock remains (no row changed).
	DecrementStock(ctx context.Context, id int64) (bool, error)

	// Close closes the repository connection.
	Close() error
}

// OrderRepository defines order data access methods.
type OrderRepository interface {
	// Save durably persists an admitted order.
	Save(ctx context.Context, order *model.Order) error

	// ExistsByUserAndPromotion reports whether the user already holds a
	// persisted order for the promotion.
	ExistsByUserAndPromotion(ctx context.Context, userID, promotionID int64) (bool, error)

	// CountByPromotion returns the number of persisted orders for a promotion.
	CountByPromotion(ctx context.Context, promotionID int64) (int64, error)
}
