package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gsessions "github.com/gorilla/sessions"
	"github.com/rs/zerolog"

	"github.com/yourusername/member-gate/internal/sessionstore"
	"github.com/yourusername/member-gate/internal/user"
)

const (
	SessionCookieName    = "mg_session"
	sessionKeyUser       = "auth_user"
	sessionKeyID         = "session_id"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
)

// ContextPrincipalKey は、ハンドラー間でログイン済みの Principal を共有するためのキーです。
const ContextPrincipalKey = "auth.principal"

// Revocations はログアウト済みセッションの記録です。
// 破棄前に複製されたクッキーが再送されても受け付けないために使います。
type Revocations interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	Revoked(ctx context.Context, sessionID string) (bool, error)
}

// SessionOptions はセッションの寿命とクッキー属性の設定です。
// Cookie.MaxAge が 0 の場合は MaxLifetime から求めます。
// Revocations が nil の場合はプロセス内の記録を使います。
type SessionOptions struct {
	MaxLifetime time.Duration
	IdleTimeout time.Duration
	Cookie      sessions.Options
	Revocations Revocations
}

// renewer はログイン時にセッションIDを振り直せるストアです。
type renewer interface {
	Renew(r *http.Request, session *gsessions.Session) error
}

// SessionManager はセッションと Principal の対応付けを管理します。
type SessionManager struct {
	store sessions.Store
	users user.Store
	opts  SessionOptions
	log   zerolog.Logger
	now   func() time.Time
}

// NewSessionManager はセッションマネージャーを作成します。
func NewSessionManager(store sessions.Store, users user.Store, opts SessionOptions, log zerolog.Logger) *SessionManager {
	if opts.Cookie.Path == "" {
		opts.Cookie.Path = "/"
	}
	if opts.Cookie.MaxAge == 0 {
		opts.Cookie.MaxAge = int(opts.MaxLifetime.Seconds())
	}
	if opts.Revocations == nil {
		opts.Revocations = sessionstore.NewMemoryRevocations()
	}
	store.Options(opts.Cookie)

	return &SessionManager{
		store: store,
		users: users,
		opts:  opts,
		log:   log,
		now:   time.Now,
	}
}

// Middleware はリクエストごとにセッションを読み込む gin ミドルウェアを返します。
func (m *SessionManager) Middleware() gin.HandlerFunc {
	return sessions.Sessions(SessionCookieName, m.store)
}

// Establish は認証済みの Principal をセッションに結び付けます。
// 既存のセッション内容は破棄し、ストアが対応していればIDも振り直します。
func (m *SessionManager) Establish(c *gin.Context, p Principal) error {
	if r, ok := m.store.(renewer); ok {
		raw, err := m.load(c)
		if err != nil {
			return err
		}
		if raw != nil {
			if err := r.Renew(c.Request, raw); err != nil {
				return mapSessionError(err)
			}
		}
	}

	session := sessions.Default(c)
	session.Clear()
	session.Options(m.opts.Cookie)
	now := m.now()
	session.Set(sessionKeyUser, p.UserID)
	session.Set(sessionKeyID, uuid.NewString())
	session.Set(sessionKeyIssuedAt, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	if err := session.Save(); err != nil {
		return mapSessionError(err)
	}

	c.Set(ContextPrincipalKey, &p)
	return nil
}

// Current はリクエストに結び付いた Principal を返します。未ログインなら nil です。
// セッションストアやユーザーストアの障害はエラーとして返します。
func (m *SessionManager) Current(c *gin.Context) (*Principal, error) {
	if v, ok := c.Get(ContextPrincipalKey); ok {
		p, _ := v.(*Principal)
		return p, nil
	}

	p, err := m.resolve(c)
	if err != nil {
		return nil, err
	}
	c.Set(ContextPrincipalKey, p)
	return p, nil
}

func (m *SessionManager) resolve(c *gin.Context) (*Principal, error) {
	raw, err := m.load(c)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	userID, ok := raw.Values[sessionKeyUser].(string)
	if !ok || userID == "" {
		return nil, nil
	}
	sessionID, _ := raw.Values[sessionKeyID].(string)
	if sessionID == "" {
		return nil, m.Destroy(c)
	}

	now := m.now()
	issuedAt := readUnix(raw.Values[sessionKeyIssuedAt])
	lastActive := readUnix(raw.Values[sessionKeyLastActive])

	if issuedAt.IsZero() || now.Sub(issuedAt) > m.opts.MaxLifetime {
		m.log.Debug().Str("user_id", userID).Msg("session exceeded max lifetime")
		return nil, m.Destroy(c)
	}
	if lastActive.IsZero() || now.Sub(lastActive) > m.opts.IdleTimeout {
		m.log.Debug().Str("user_id", userID).Msg("session idle timeout")
		return nil, m.Destroy(c)
	}

	revoked, err := m.opts.Revocations.Revoked(c.Request.Context(), sessionID)
	if err != nil {
		return nil, mapSessionError(err)
	}
	if revoked {
		m.log.Debug().Str("user_id", userID).Msg("session was logged out")
		return nil, m.Destroy(c)
	}

	u, err := m.users.FindByID(c.Request.Context(), userID)
	if errors.Is(err, user.ErrNotFound) {
		// 削除済みユーザーのセッションは無効
		return nil, m.Destroy(c)
	}
	if err != nil {
		return nil, err
	}

	session := sessions.Default(c)
	session.Set(sessionKeyLastActive, now.Unix())
	if err := session.Save(); err != nil {
		return nil, mapSessionError(err)
	}
	return principalOf(u), nil
}

// Destroy はセッションを破棄します。既に無い場合も成功として扱います。
// セッションIDは寿命が尽きるまで無効として記録します。
func (m *SessionManager) Destroy(c *gin.Context) error {
	raw, err := m.load(c)
	if err != nil {
		return err
	}
	if raw != nil {
		if sessionID, _ := raw.Values[sessionKeyID].(string); sessionID != "" {
			issuedAt := readUnix(raw.Values[sessionKeyIssuedAt])
			if issuedAt.IsZero() {
				issuedAt = m.now()
			}
			if err := m.opts.Revocations.Revoke(c.Request.Context(), sessionID, issuedAt.Add(m.opts.MaxLifetime)); err != nil {
				return mapSessionError(err)
			}
		}
	}

	session := sessions.Default(c)
	session.Clear()
	expired := m.opts.Cookie
	expired.MaxAge = -1
	session.Options(expired)
	if err := session.Save(); err != nil {
		return mapSessionError(err)
	}
	c.Set(ContextPrincipalKey, (*Principal)(nil))
	return nil
}

// AddFlash は次のリクエストで一度だけ表示するメッセージを保存します。
func (m *SessionManager) AddFlash(c *gin.Context, message string) error {
	if _, err := m.load(c); err != nil {
		return err
	}
	session := sessions.Default(c)
	session.Options(m.opts.Cookie)
	session.AddFlash(message)
	return mapSessionError(session.Save())
}

// Flashes は保存されたメッセージを取り出して消去します。
func (m *SessionManager) Flashes(c *gin.Context) ([]string, error) {
	if _, err := m.load(c); err != nil {
		return nil, err
	}
	session := sessions.Default(c)
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil, nil
	}
	if err := session.Save(); err != nil {
		return nil, mapSessionError(err)
	}

	messages := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			messages = append(messages, s)
		}
	}
	return messages, nil
}

// load はストアのエラーを握りつぶさずにセッションを取得します。
// 署名不一致など復元できないクッキーは未ログインとして nil を返します。
func (m *SessionManager) load(c *gin.Context) (*gsessions.Session, error) {
	raw, err := gsessions.GetRegistry(c.Request).Get(m.store, SessionCookieName)
	if err != nil {
		if errors.Is(err, sessionstore.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
		}
		m.log.Debug().Err(err).Msg("discarding undecodable session")
		return nil, nil
	}
	return raw, nil
}

func mapSessionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sessionstore.ErrUnavailable) {
		return fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	return fmt.Errorf("session: %w", err)
}

// PrincipalFrom は RequireAuthenticated が設定した Principal を取り出します。
func PrincipalFrom(c *gin.Context) *Principal {
	v, ok := c.Get(ContextPrincipalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*Principal)
	return p
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
