package sessionstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedPrefix = "revoked:"

// MemoryRevocations はログアウト済みセッションIDをプロセス内に記録します。
// 単一インスタンス構成向けです。
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations は MemoryRevocations を作成します。
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke は sessionID を until まで無効として記録します。
func (m *MemoryRevocations) Revoke(_ context.Context, sessionID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, id)
		}
	}
	if now.Before(until) {
		m.entries[sessionID] = until
	}
	return nil
}

// Revoked は sessionID が無効化されているかを返します。
func (m *MemoryRevocations) Revoked(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	until, ok := m.entries[sessionID]
	return ok && m.now().Before(until), nil
}

// RedisRevocations はログアウト済みセッションIDを Redis に TTL 付きで記録します。
type RedisRevocations struct {
	rdb *redis.Client
}

// NewRedisRevocations は RedisRevocations を作成します。
func NewRedisRevocations(rdb *redis.Client) *RedisRevocations {
	return &RedisRevocations{rdb: rdb}
}

// Revoke は sessionID を until まで無効として記録します。期限が過去なら何もしません。
func (r *RedisRevocations) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := r.rdb.Set(ctx, revokedPrefix+sessionID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: revoke session: %w", ErrUnavailable, err)
	}
	return nil
}

// Revoked は sessionID が無効化されているかを返します。
func (r *RedisRevocations) Revoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: check revocation: %w", ErrUnavailable, err)
	}
	return n > 0, nil
}
