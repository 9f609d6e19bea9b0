package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"flashdeal-api/internal/cache"
	"flashdeal-api/internal/model"
	"flashdeal-api/internal/repository"
)

// Cache read policies for promotion lookups.
const (
	PolicyPassThrough = "passthrough"
	PolicyMutex       = "mutex"
	PolicyLogical     = "logical"
)

// promoCachePrefix namespaces promotion entries inside the cache engine.
const promoCachePrefix = "promo:"

// PromotionService serves promotion reads through the cache-aside engine.
type PromotionService struct {
	engine *cache.Engine
	repo   repository.PromotionRepository

	policy     string
	ttl        time.Duration
	logicalTTL time.Duration
}

// PromotionConfig holds read-path settings.
type PromotionConfig struct {
	Policy     string        // passthrough, mutex or logical
	TTL        time.Duration // physical TTL for passthrough/mutex entries
	LogicalTTL time.Duration // logical expiry for the logical policy
}

// NewPromotionService creates a promotion service.
// Returns nil if either dependency is nil.
func NewPromotionService(engine *cache.Engine, repo repository.PromotionRepository, cfg PromotionConfig) *PromotionService {
	if engine == nil || repo == nil {
		return nil
	}
	return &PromotionService{
		engine:     engine,
		repo:       repo,
		policy:     cfg.Policy,
		ttl:        cfg.TTL,
		logicalTTL: cfg.LogicalTTL,
	}
}

// GetByID reads a promotion under the configured cache policy.
// Returns cache.ErrNotFound when the promotion does not exist (or, under the
// logical policy, was never warmed).
func (s *PromotionService) GetByID(ctx context.Context, id int64) (*model.Promotion, error) {
	idStr := strconv.FormatInt(id, 10)

	loader := func(ctx context.Context, idStr string) (*model.Promotion, error) {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid promotion id %q: %w", idStr, err)
		}
		return s.repo.GetByID(ctx, id)
	}

	switch s.policy {
	case PolicyPassThrough:
		return cache.PassThrough(ctx, s.engine, promoCachePrefix, idStr, loader, s.ttl)
	case PolicyLogical:
		return cache.WithLogicalExpire(ctx, s.engine, promoCachePrefix, idStr, loader, s.logicalTTL)
	default:
		return cache.WithMutex(ctx, s.engine, promoCachePrefix, idStr, loader, s.ttl)
	}
}

// WarmCache writes the promotion into the cache with a logical expiry.
// Required before reads under the logical policy; used by the warm-up path
// and rebuild workers only.
func (s *PromotionService) WarmCache(ctx context.Context, p *model.Promotion) error {
	key := promoCachePrefix + strconv.FormatInt(p.ID, 10)
	return s.engine.SetWithLogicalExpire(ctx, key, p, s.logicalTTL)
}
