// Package pgstore は PostgreSQL を使った user.Store 実装です。
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/yourusername/member-gate/internal/user"
)

// Pool は Store が必要とする pgx の操作です。*pgxpool.Pool と pgxmock が満たします。
type Pool interface {
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

const (
	selectByEmail = `
		SELECT id, name, email, password_hash, created_at
		FROM users
		WHERE email = $1
	`
	selectByID = `
		SELECT id, name, email, password_hash, created_at
		FROM users
		WHERE id = $1
	`
	insertUser = `
		INSERT INTO users (id, name, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
)

// Connect は接続プールを作成し、疎通確認を行います。
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Store は users テーブルを扱います。
type Store struct {
	pool Pool
}

// NewStore は Store を作成します。
func NewStore(pool Pool) *Store {
	return &Store{pool: pool}
}

// FindByEmail はメールアドレスでユーザーを検索します。
func (s *Store) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	u, err := s.scan(s.pool.QueryRow(ctx, selectByEmail, email))
	if err != nil {
		return nil, s.mapReadError(err, "USER_GET_BY_EMAIL_FAILED")
	}
	return u, nil
}

// FindByID は ID でユーザーを検索します。UUID として解釈できない ID は未登録扱いです。
func (s *Store) FindByID(ctx context.Context, id string) (*user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, user.ErrNotFound
	}
	u, err := s.scan(s.pool.QueryRow(ctx, selectByID, id))
	if err != nil {
		return nil, s.mapReadError(err, "USER_GET_BY_ID_FAILED")
	}
	return u, nil
}

// Insert はユーザーを追加します。UNIQUE 制約違反は user.ErrConflict になります。
func (s *Store) Insert(ctx context.Context, u *user.User) (*user.User, error) {
	stored := *u
	stored.ID = uuid.NewString()

	err := s.pool.QueryRow(ctx, insertUser, stored.ID, stored.Name, stored.Email, stored.PasswordHash).
		Scan(&stored.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, user.ErrConflict
		}
		return nil, oops.Code("USER_INSERT_FAILED").
			With("operation", "insert user").
			Wrap(fmt.Errorf("%w: %w", user.ErrUnavailable, err))
	}
	return &stored, nil
}

// Close は接続プールを閉じます。
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) scan(row pgx.Row) (*user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) mapReadError(err error, code string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return user.ErrNotFound
	}
	return oops.Code(code).
		With("operation", "select user").
		Wrap(fmt.Errorf("%w: %w", user.ErrUnavailable, err))
}
