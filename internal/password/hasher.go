// Package password はソルト付き一方向ハッシュによるパスワードの保存と照合を提供します。
package password

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrHashFailed はハッシュ計算そのものに失敗したことを表します（乱数源の枯渇など）。
	ErrHashFailed = errors.New("password hashing failed")
	// ErrPasswordTooLong は bcrypt が扱えない長さのパスワードを表します。
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
)

// Hasher はパスワードのハッシュ化と照合を行います。
type Hasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, hashed string) (bool, error)
}

// Bcrypt は bcrypt による Hasher 実装です。
// CPU を占有する計算の同時実行数をセマフォで制限します。
type Bcrypt struct {
	cost int
	sem  *semaphore.Weighted
}

// NewBcrypt は Bcrypt を作成します。
// cost が範囲外の場合は bcrypt.DefaultCost、concurrency が 0 以下の場合は GOMAXPROCS を使います。
func NewBcrypt(cost, concurrency int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Bcrypt{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(concurrency)),
	}
}

// Cost は設定されたワークファクターを返します。
func (b *Bcrypt) Cost() int {
	return b.cost
}

// Hash はランダムなソルトを含むハッシュを返します。同じ平文でも毎回異なる値になります。
func (b *Bcrypt) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer b.sem.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", fmt.Errorf("%w: %v", ErrHashFailed, err)
	}
	return string(hashed), nil
}

// Verify は hashed に埋め込まれたソルトで平文を再計算し、定数時間で比較します。
// 不一致は (false, nil)、保存値が壊れている場合はエラーを返します。
func (b *Bcrypt) Verify(ctx context.Context, plaintext, hashed string) (bool, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer b.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify password: %w", err)
	}
}
