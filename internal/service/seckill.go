package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"flashdeal-api/internal/cache"
	"flashdeal-api/internal/model"
	"flashdeal-api/internal/repository"
	"flashdeal-api/pkg/snowflake"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes for per-promotion admission state. The stock counter
// and buyers set are mutated only by the admission script.
const (
	StockKeyPrefix  = "flashdeal:promo:stock:"
	BuyersKeyPrefix = "flashdeal:promo:buyers:"
)

// orderIDTag partitions the snowflake id space for orders.
const orderIDTag = "order"

// Admission outcomes surfaced to callers. Terminal; never retried.
var (
	ErrPromotionNotFound = errors.New("promotion not found")
	ErrNotStarted        = errors.New("promotion has not started")
	ErrEnded             = errors.New("promotion has ended")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateOrder    = errors.New("user already ordered this promotion")
)

// admissionLua checks stock and per-user idempotency, reserves one unit and
// enqueues the order onto the stream, all in one indivisible server-side
// step. Evaluation order at Redis alone decides who wins the stock.
//
// KEYS[1] = stock counter, KEYS[2] = buyers set, KEYS[3] = order stream.
// ARGV[1] = userId, ARGV[2] = orderId, ARGV[3] = promotionId.
// Stream field names must match the queue package.
const admissionLua = `
local stock = tonumber(redis.call("GET", KEYS[1]))
if stock == nil or stock < 1 then
    return 1
end
if redis.call("SISMEMBER", KEYS[2], ARGV[1]) == 1 then
    return 2
end
redis.call("INCRBY", KEYS[1], -1)
redis.call("SADD", KEYS[2], ARGV[1])
redis.call("XADD", KEYS[3], "*", "orderId", ARGV[2], "userId", ARGV[1], "promotionId", ARGV[3])
return 0
`

// Script result codes.
const (
	admissionOK                = 0
	admissionInsufficientStock = 1
	admissionDuplicateOrder    = 2
)

// SeckillService runs the flash-sale admission pipeline: window check from
// the cached promotion, snowflake order id, then the atomic admission
// script. On success the order id is returned immediately; persistence
// happens asynchronously off the stream.
type SeckillService struct {
	rdb        *redis.Client
	promotions *PromotionService
	repo       repository.PromotionRepository
	idgen      *snowflake.Generator
	admission  *redis.Script
	streamKey  string
}

// NewSeckillService creates a seckill service. The admission script is
// constructed here, once, and owned by the service.
func NewSeckillService(rdb *redis.Client, promotions *PromotionService, repo repository.PromotionRepository, idgen *snowflake.Generator, streamKey string) *SeckillService {
	return &SeckillService{
		rdb:        rdb,
		promotions: promotions,
		repo:       repo,
		idgen:      idgen,
		admission:  redis.NewScript(admissionLua),
		streamKey:  streamKey,
	}
}

// Admit attempts to reserve one unit of stock for the user and returns the
// new order id. The request path is synchronous up to the script round trip
// and never touches the relational store.
func (s *SeckillService) Admit(ctx context.Context, promotionID, userID int64) (int64, error) {
	p, err := s.promotions.GetByID(ctx, promotionID)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return 0, ErrPromotionNotFound
		}
		return 0, err
	}

	now := time.Now()
	if now.Before(p.BeginAt) {
		return 0, ErrNotStarted
	}
	if !now.Before(p.EndAt) {
		return 0, ErrEnded
	}

	orderID := s.idgen.NextID(orderIDTag)

	keys := []string{
		StockKey(promotionID),
		BuyersKey(promotionID),
		s.streamKey,
	}
	res, err := s.admission.Run(ctx, s.rdb, keys, userID, orderID, promotionID).Int()
	if err != nil {
		return 0, fmt.Errorf("admission script for promotion %d failed: %w", promotionID, err)
	}

	switch res {
	case admissionOK:
		return orderID, nil
	case admissionInsufficientStock:
		return 0, ErrInsufficientStock
	case admissionDuplicateOrder:
		return 0, ErrDuplicateOrder
	default:
		return 0, fmt.Errorf("admission script returned unexpected code %d", res)
	}
}

// Warmup seeds the Redis stock counter from the durable store and warms the
// promotion cache entry with a logical expiry. Must run before the
// promotion's window opens (and before reads under the logical policy).
func (s *SeckillService) Warmup(ctx context.Context, promotionID int64) (*model.Promotion, error) {
	p, err := s.repo.GetByID(ctx, promotionID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPromotionNotFound
	}

	if err := s.rdb.Set(ctx, StockKey(promotionID), p.Stock, 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to seed stock for promotion %d: %w", promotionID, err)
	}
	if err := s.promotions.WarmCache(ctx, p); err != nil {
		return nil, err
	}

	log.Printf("[SeckillService] Warmed promotion %d with stock %d", promotionID, p.Stock)
	return p, nil
}

// StockKey returns the Redis key of a promotion's reserved-stock counter.
func StockKey(promotionID int64) string {
	return StockKeyPrefix + strconv.FormatInt(promotionID, 10)
}

// BuyersKey returns the Redis key of a promotion's admitted-users set.
func BuyersKey(promotionID int64) string {
	return BuyersKeyPrefix + strconv.FormatInt(promotionID, 10)
}
