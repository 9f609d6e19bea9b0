package model

import "time"

// Promotion is a time-boxed, stock-limited flash-sale offer.
// Stock is mutated only by the Redis admission script (the reserved copy)
// and by the persistence worker (the durable copy).
type Promotion struct {
	ID      int64     `json:"id"`
	Title   string    `json:"title"`
	Stock   int64     `json:"stock"`
	BeginAt time.Time `json:"begin_at"`
	EndAt   time.Time `json:"end_at"`
}
