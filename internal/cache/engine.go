package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"flashdeal-api/internal/lock"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix namespaces all cache entries in Redis. Lock claims for cache
	// rebuilds reuse the entry's un-prefixed key under the lock namespace.
	KeyPrefix = "flashdeal:cache:"

	// tombstone is cached for ids the loader reports absent, so repeated
	// lookups of a missing record stop at Redis instead of the database.
	tombstone = ""

	// rebuildTimeout bounds a single background rebuild.
	rebuildTimeout = 30 * time.Second

	mutexMaxAttempts = 10
	mutexRetryDelay  = 50 * time.Millisecond
	mutexRetryCap    = 1 * time.Second
)

var (
	// ErrNotFound means the record does not exist upstream (or, under the
	// logical-expiration policy, was never warmed into the cache).
	ErrNotFound = errors.New("record not found")

	// ErrLockTimeout means the rebuild lock stayed contended past the
	// bounded retry budget under the mutex policy.
	ErrLockTimeout = errors.New("cache rebuild lock timeout")
)

// Loader fetches a record from the backing store.
// Returning (nil, nil) means the record does not exist.
type Loader[T any] func(ctx context.Context, id string) (*T, error)

// envelope wraps a payload with its logical expiry for the
// logical-expiration policy. Entries under this policy never physically
// expire; staleness is decided by ExpireAt alone.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	ExpireAt time.Time       `json:"expire_at"`
}

// Engine is a read-through cache over Redis with three consistency
// strategies mitigating penetration (tombstones), breakdown (mutex rebuild)
// and avalanche (logical expiration). Rebuilds under the logical policy run
// on a bounded worker pool independent of request goroutines.
type Engine struct {
	client  *redis.Client
	locker  *lock.Locker
	lockTTL time.Duration
	nullTTL time.Duration

	jobs chan func()
	done chan struct{}
}

// Config holds engine tuning knobs.
type Config struct {
	LockTTL        time.Duration // lease for rebuild locks
	NullTTL        time.Duration // tombstone TTL, keep well below positive TTLs
	RebuildWorkers int           // size of the background rebuild pool
}

// New creates an Engine and starts its rebuild worker pool.
func New(client *redis.Client, locker *lock.Locker, cfg Config) *Engine {
	workers := cfg.RebuildWorkers
	if workers <= 0 {
		workers = 10
	}

	e := &Engine{
		client:  client,
		locker:  locker,
		lockTTL: cfg.LockTTL,
		nullTTL: cfg.NullTTL,
		jobs:    make(chan func(), workers*4),
		done:    make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		go e.rebuildWorker()
	}

	return e
}

func (e *Engine) rebuildWorker() {
	for {
		select {
		case job := <-e.jobs:
			job()
		case <-e.done:
			return
		}
	}
}

// dispatch hands a rebuild to the pool without blocking the caller.
// Returns false if the pool is saturated.
func (e *Engine) dispatch(job func()) bool {
	select {
	case e.jobs <- job:
		return true
	default:
		return false
	}
}

// Close stops the rebuild workers. Queued rebuilds are dropped; their locks
// expire by TTL.
func (e *Engine) Close() {
	close(e.done)
}

// Set caches a value under KeyPrefix+key with a physical TTL.
func (e *Engine) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value for %q: %w", key, err)
	}
	return e.client.Set(ctx, KeyPrefix+key, data, ttl).Err()
}

// SetWithLogicalExpire caches a value with a logical expiry and no physical
// TTL. This is the warm-up and rebuild write path for the logical-expiration
// policy; read paths never call it.
func (e *Engine) SetWithLogicalExpire(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value for %q: %w", key, err)
	}

	env, err := json.Marshal(envelope{
		Data:     data,
		ExpireAt: time.Now().Add(ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache envelope for %q: %w", key, err)
	}

	return e.client.Set(ctx, KeyPrefix+key, env, 0).Err()
}

// Delete removes a cache entry.
func (e *Engine) Delete(ctx context.Context, key string) error {
	return e.client.Del(ctx, KeyPrefix+key).Err()
}

// PassThrough reads prefix+id from the cache, falling through to the loader
// on a miss. Absent records are cached as short-TTL tombstones so repeated
// misses never reach the loader again until the tombstone expires.
func PassThrough[T any](ctx context.Context, e *Engine, prefix, id string, loader Loader[T], ttl time.Duration) (*T, error) {
	key := prefix + id

	val, err := e.client.Get(ctx, KeyPrefix+key).Result()
	if err == nil {
		return decodeHit[T](key, val)
	}
	if err != redis.Nil {
		return nil, fmt.Errorf("cache read for %q failed: %w", key, err)
	}

	return loadAndFill(ctx, e, key, id, loader, ttl)
}

// WithMutex behaves like PassThrough, but on a true miss only one caller
// per key rebuilds the cache; the rest retry the read with capped
// exponential backoff until the entry appears or the retry budget runs out.
func WithMutex[T any](ctx context.Context, e *Engine, prefix, id string, loader Loader[T], ttl time.Duration) (*T, error) {
	key := prefix + id
	delay := mutexRetryDelay

	for attempt := 0; attempt < mutexMaxAttempts; attempt++ {
		val, err := e.client.Get(ctx, KeyPrefix+key).Result()
		if err == nil {
			return decodeHit[T](key, val)
		}
		if err != redis.Nil {
			return nil, fmt.Errorf("cache read for %q failed: %w", key, err)
		}

		lease, ok, err := e.locker.TryAcquire(ctx, key, e.lockTTL)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Someone else is rebuilding; wait and re-read.
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
			if delay > mutexRetryCap {
				delay = mutexRetryCap
			}
			continue
		}

		result, err := func() (*T, error) {
			defer func() {
				if err := lease.Release(ctx); err != nil {
					log.Printf("[CacheEngine] Failed to release rebuild lock for %q: %v", key, err)
				}
			}()

			// The winner double-checks the cache: another holder may have
			// rebuilt it between our miss and our acquisition.
			val, err := e.client.Get(ctx, KeyPrefix+key).Result()
			if err == nil {
				return decodeHit[T](key, val)
			}
			if err != redis.Nil {
				return nil, fmt.Errorf("cache read for %q failed: %w", key, err)
			}

			return loadAndFill(ctx, e, key, id, loader, ttl)
		}()
		return result, err
	}

	return nil, ErrLockTimeout
}

// WithLogicalExpire serves prefix+id from a cache entry that never
// physically expires. A hit past its logical expiry is returned immediately
// and at most one background rebuild per key is dispatched to the worker
// pool.
//
// Precondition: the entry must have been warmed via SetWithLogicalExpire. A
// physical miss returns ErrNotFound without consulting the loader.
func WithLogicalExpire[T any](ctx context.Context, e *Engine, prefix, id string, loader Loader[T], ttl time.Duration) (*T, error) {
	key := prefix + id

	val, err := e.client.Get(ctx, KeyPrefix+key).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache read for %q failed: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(val), &env); err != nil {
		return nil, fmt.Errorf("corrupt cache envelope for %q: %w", key, err)
	}

	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return nil, fmt.Errorf("corrupt cache payload for %q: %w", key, err)
	}

	if time.Now().Before(env.ExpireAt) {
		return &out, nil
	}

	// Stale. Try to become the rebuilder; either way the stale value is the
	// caller's result.
	lease, ok, err := e.locker.TryAcquire(ctx, key, e.lockTTL)
	if err != nil {
		log.Printf("[CacheEngine] Rebuild lock attempt for %q failed: %v", key, err)
		return &out, nil
	}
	if !ok {
		return &out, nil
	}

	dispatched := e.dispatch(func() {
		rebuildCtx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
		defer cancel()
		defer func() {
			if err := lease.Release(rebuildCtx); err != nil {
				log.Printf("[CacheEngine] Failed to release rebuild lock for %q: %v", key, err)
			}
		}()

		rec, err := loader(rebuildCtx, id)
		if err != nil {
			log.Printf("[CacheEngine] Rebuild loader for %q failed: %v", key, err)
			return
		}
		if rec == nil {
			log.Printf("[CacheEngine] Rebuild loader for %q found no record, keeping stale entry", key)
			return
		}
		if err := e.SetWithLogicalExpire(rebuildCtx, key, rec, ttl); err != nil {
			log.Printf("[CacheEngine] Rebuild write for %q failed: %v", key, err)
		}
	})
	if !dispatched {
		// Pool saturated; give the lock back so a later reader can retry.
		if err := lease.Release(ctx); err != nil {
			log.Printf("[CacheEngine] Failed to release rebuild lock for %q: %v", key, err)
		}
	}

	return &out, nil
}

// loadAndFill consults the loader and repopulates the cache with either the
// record or a tombstone.
func loadAndFill[T any](ctx context.Context, e *Engine, key, id string, loader Loader[T], ttl time.Duration) (*T, error) {
	rec, err := loader(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loader for %q failed: %w", key, err)
	}

	if rec == nil {
		if err := e.client.Set(ctx, KeyPrefix+key, tombstone, e.nullTTL).Err(); err != nil {
			log.Printf("[CacheEngine] Failed to cache tombstone for %q: %v", key, err)
		}
		return nil, ErrNotFound
	}

	if err := e.Set(ctx, key, rec, ttl); err != nil {
		return nil, err
	}
	return rec, nil
}

func decodeHit[T any](key, val string) (*T, error) {
	if val == tombstone {
		return nil, ErrNotFound
	}
	var out T
	if err := json.Unmarshal([]byte(val), &out); err != nil {
		return nil, fmt.Errorf("corrupt cache payload for %q: %w", key, err)
	}
	return &out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
