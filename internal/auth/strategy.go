// Package auth は資格情報の検証、セッションによる認証状態の保持、アクセス制御を提供します。
package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/yourusername/member-gate/internal/password"
	"github.com/yourusername/member-gate/internal/user"
)

// Principal はセッションに紐づく認証済みの利用者です。
type Principal struct {
	UserID string
	Name   string
	Email  string
}

func principalOf(u *user.User) *Principal {
	return &Principal{UserID: u.ID, Name: u.Name, Email: u.Email}
}

// Attempt は一回分のログイン試行です。保存されることはありません。
type Attempt struct {
	Identifier string
	Password   string
}

// Reason は認証失敗の理由です。
type Reason string

const (
	ReasonMissingCredentials Reason = "missing credentials"
	ReasonNoSuchUser         Reason = "no such user"
	ReasonIncorrectPassword  Reason = "incorrect password"
)

// Outcome は認証の結果です。成功時は Principal、失敗時は Reason が入ります。
type Outcome struct {
	Principal *Principal
	Reason    Reason
}

// Succeeded は認証に成功したかどうかを返します。
func (o Outcome) Succeeded() bool {
	return o.Principal != nil
}

// Strategy は認証方式の共通インターフェースです。
// 実装はセッションを変更してはいけません。結果を受け取った呼び出し側が行います。
type Strategy interface {
	Name() string
	Authenticate(ctx context.Context, attempt Attempt) (Outcome, error)
}

// EmailPassword はメールアドレスとパスワードによる Strategy です。
type EmailPassword struct {
	users  user.Store
	hasher password.Hasher

	dummyOnce sync.Once
	dummyHash string
}

// NewEmailPassword は EmailPassword を作成します。
func NewEmailPassword(users user.Store, hasher password.Hasher) *EmailPassword {
	return &EmailPassword{users: users, hasher: hasher}
}

// Name は Strategy の識別名を返します。
func (s *EmailPassword) Name() string {
	return "email-password"
}

// Authenticate はメールアドレスでユーザーを引き、パスワードを照合します。
// ストア障害は失敗理由ではなくエラーとして返します。
func (s *EmailPassword) Authenticate(ctx context.Context, attempt Attempt) (Outcome, error) {
	if attempt.Identifier == "" || attempt.Password == "" {
		return Outcome{Reason: ReasonMissingCredentials}, nil
	}

	u, err := s.users.FindByEmail(ctx, attempt.Identifier)
	if errors.Is(err, user.ErrNotFound) {
		// 未登録でも照合一回分の時間をかける
		s.burnVerify(ctx, attempt.Password)
		return Outcome{Reason: ReasonNoSuchUser}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	ok, err := s.hasher.Verify(ctx, attempt.Password, u.PasswordHash)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Reason: ReasonIncorrectPassword}, nil
	}
	return Outcome{Principal: principalOf(u)}, nil
}

func (s *EmailPassword) burnVerify(ctx context.Context, plaintext string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(context.Background(), "member-gate/timing-equalizer")
	})
	if s.dummyHash == "" {
		return
	}
	_, _ = s.hasher.Verify(ctx, plaintext, s.dummyHash)
}
