package lock

import (
	"context"
	"fmt"
	"time"

	"flashdeal-api/pkg/uid"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces all lock claims in Redis.
const KeyPrefix = "flashdeal:lock:"

// unlockLua deletes the lock only if it is still owned by the caller.
// Without the ownership check a slow holder could delete a lock that
// already expired and was re-acquired by someone else.
var unlockLua = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker acquires distributed mutual-exclusion claims keyed by string.
// Acquisition is an atomic SET NX with a lease TTL, so a crashed holder
// self-heals once the lease elapses. There is no lease renewal: the critical
// section must finish within the TTL or risks concurrent entry.
type Locker struct {
	client *redis.Client
	unlock *redis.Script
}

// Lease represents a held lock. Release it on every exit path.
type Lease struct {
	locker *Locker
	key    string
	token  string
}

// New creates a Locker on the given Redis client.
func New(client *redis.Client) *Locker {
	return &Locker{
		client: client,
		unlock: redis.NewScript(unlockLua),
	}
}

// TryAcquire attempts to claim the lock for key with the given lease TTL.
// Returns (nil, false, nil) when the lock is held by someone else.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lease, bool, error) {
	token := uid.New()

	ok, err := l.client.SetNX(ctx, KeyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	return &Lease{locker: l, key: key, token: token}, true, nil
}

// Release frees the lock if the lease still owns it. A lease whose TTL
// already expired (and was possibly re-acquired) is released as a no-op.
func (le *Lease) Release(ctx context.Context) error {
	err := le.locker.unlock.Run(ctx, le.locker.client,
		[]string{KeyPrefix + le.key}, le.token).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %q: %w", le.key, err)
	}
	return nil
}
