package drawings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// SettleLock serializes settlement of one drawing. Acquire returns a
// release closure; a second acquisition before release fails with
// ErrSettlementLocked.
type SettleLock interface {
	Acquire(ctx context.Context, drawingID uint64) (func(), error)
}

// LocalLock guards settlements within a single process.
type LocalLock struct {
	mu   sync.Mutex
	held map[uint64]bool
}

var _ SettleLock = (*LocalLock)(nil)

// NewLocalLock constructs an in-process settlement lock.
func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[uint64]bool)}
}

// Acquire takes the per-drawing lock.
func (l *LocalLock) Acquire(_ context.Context, drawingID uint64) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[drawingID] {
		return nil, fmt.Errorf("%w: drawing %d", ErrSettlementLocked, drawingID)
	}
	l.held[drawingID] = true
	return func() {
		l.mu.Lock()
		delete(l.held, drawingID)
		l.mu.Unlock()
	}, nil
}

// releaseScript deletes the lease only when the caller still owns it,
// so a lease that expired and was re-taken is never removed.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisLock takes a SetNX lease so that exactly one engine instance
// settles a drawing. The TTL bounds how long a crashed owner can block
// its drawing.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
}

var _ SettleLock = (*RedisLock)(nil)

// NewRedisLock constructs a distributed settlement lock. A zero ttl
// defaults to one minute.
func NewRedisLock(client *redis.Client, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisLock{client: client, ttl: ttl}
}

// Acquire takes the lease for a drawing.
func (l *RedisLock) Acquire(ctx context.Context, drawingID uint64) (func(), error) {
	key := fmt.Sprintf("jackpot:settle:%d", drawingID)
	token := uuid.NewString()

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("settlement lease: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: drawing %d", ErrSettlementLocked, drawingID)
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = l.client.Eval(releaseCtx, releaseScript, []string{key}, token).Result()
	}, nil
}
