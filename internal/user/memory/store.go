// Package memory はプロセス内に保持する user.Store 実装です（開発・テスト用）。
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/member-gate/internal/user"
)

// Store はメールアドレスをキーにユーザーを保持します。
type Store struct {
	mu      sync.RWMutex
	byEmail map[string]*user.User
	byID    map[string]*user.User
}

// NewStore は空の Store を作成します。
func NewStore() *Store {
	return &Store{
		byEmail: make(map[string]*user.User),
		byID:    make(map[string]*user.User),
	}
}

// FindByEmail はメールアドレスでユーザーを検索します。
func (s *Store) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

// FindByID は ID でユーザーを検索します。
func (s *Store) FindByID(ctx context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

// Insert は存在確認と追加を同じロックの中で行います。
func (s *Store) Insert(ctx context.Context, u *user.User) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[u.Email]; exists {
		return nil, user.ErrConflict
	}

	stored := *u
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now().UTC()
	s.byEmail[stored.Email] = &stored
	s.byID[stored.ID] = &stored

	result := stored
	return &result, nil
}
