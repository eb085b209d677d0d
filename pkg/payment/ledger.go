package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"go.uber.org/zap"
)

// SettlementLedger remembers which payments this gate has settled or is
// settling. A key stays reserved while its outcome is unknown.
type SettlementLedger interface {
	// Settled reports whether key is reserved or committed.
	Settled(ctx context.Context, key string) (bool, error)
	// Reserve marks key as in flight. It returns false if key was already taken.
	Reserve(ctx context.Context, key string) (bool, error)
	// Commit records the settlement reference for a reserved key.
	Commit(ctx context.Context, key, txRef string) error
	// Release frees a reserved key after an explicit failure.
	Release(ctx context.Context, key string) error
}

const pendingMarker = "pending"

// RedisLedger stores settlement markers in Redis with SETNX.
type RedisLedger struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLedger connects to cfg.URL and pings it.
func NewRedisLedger(ctx context.Context, cfg config.Redis) (*RedisLedger, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, faults.New(faults.KindConfig, "ledger.connect", "check REDIS_URL", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, faults.New(faults.KindNetwork, "ledger.connect", "check REDIS_URL and that redis is reachable", fmt.Errorf("failed to connect to Redis: %w", err))
	}
	zap.L().Info("settlement ledger connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return NewRedisLedgerWithClient(client, cfg.KeyPrefix, cfg.SettlementTTL), nil
}

// NewRedisLedgerWithClient wraps an existing client.
func NewRedisLedgerWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisLedger {
	return &RedisLedger{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLedger) key(k string) string { return l.prefix + k }

func (l *RedisLedger) Settled(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(key)).Result()
	if err != nil {
		return false, faults.New(faults.KindNetwork, "ledger.settled", "", err)
	}
	return n > 0, nil
}

func (l *RedisLedger) Reserve(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(key), pendingMarker, l.ttl).Result()
	if err != nil {
		return false, faults.New(faults.KindNetwork, "ledger.reserve", "", err)
	}
	return ok, nil
}

func (l *RedisLedger) Commit(ctx context.Context, key, txRef string) error {
	if err := l.client.Set(ctx, l.key(key), txRef, l.ttl).Err(); err != nil {
		return faults.New(faults.KindNetwork, "ledger.commit", "", err)
	}
	return nil
}

func (l *RedisLedger) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return faults.New(faults.KindNetwork, "ledger.release", "", err)
	}
	return nil
}

// Close closes the redis client.
func (l *RedisLedger) Close() error { return l.client.Close() }

// MemoryLedger is a process-local ledger for single-instance deployments and tests.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: map[string]string{}}
}

func (l *MemoryLedger) Settled(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[key]
	return ok, nil
}

func (l *MemoryLedger) Reserve(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[key]; ok {
		return false, nil
	}
	l.entries[key] = pendingMarker
	return true, nil
}

func (l *MemoryLedger) Commit(_ context.Context, key, txRef string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[key] = txRef
	return nil
}

func (l *MemoryLedger) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

// Value returns the stored marker for key.
func (l *MemoryLedger) Value(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.entries[key]
	return v, ok
}
