package model

import "time"

// Order is a confirmed flash-sale purchase. Created logically at admission
// time and made durable by the persistence worker; immutable once persisted.
type Order struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	PromotionID int64     `json:"promotion_id"`
	CreatedAt   time.Time `json:"created_at"`
}
