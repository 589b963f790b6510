// Package user はユーザーレコードと資格情報ストアの契約を定義します。
package user

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound は該当するユーザーが存在しないことを表します。
	ErrNotFound = errors.New("user not found")
	// ErrConflict は同じメールアドレスのユーザーが既に存在することを表します。
	ErrConflict = errors.New("email already exists")
	// ErrUnavailable はストアに到達できない、または応答が異常であることを表します。
	ErrUnavailable = errors.New("user store unavailable")
)

// User は認証に使うユーザーレコードです。
// Email はログイン識別子で、保存時の値のまま比較されます。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Store はユーザーレコードの永続化を担います。
// メールアドレスの一意性は Insert の中で原子的に保証しなければなりません。
type Store interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Insert(ctx context.Context, u *User) (*User, error)
}
