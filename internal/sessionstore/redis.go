// Package sessionstore は Redis にセッション内容を保存する gin-contrib/sessions 用ストアを提供します。
// クッキーには署名付きのセッションIDだけを載せます。
package sessionstore

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/google/uuid"
	gsessions "github.com/gorilla/sessions"
	"github.com/gorilla/securecookie"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix     = "session:"
	defaultMaxAge = 60 * 60 * 24
)

// ErrUnavailable は Redis への読み書きに失敗したことを表します。
// 「未ログイン」とは区別して扱う必要があります。
var ErrUnavailable = errors.New("session store unavailable")

func init() {
	gob.Register([]interface{}{})
}

// RedisStore は sessions.Store の Redis 実装です。
type RedisStore struct {
	rdb     *redis.Client
	codecs  []securecookie.Codec
	options *gsessions.Options
}

var _ sessions.Store = (*RedisStore)(nil)

// NewRedisStore は RedisStore を作成します。keyPairs はクッキー署名用の鍵です。
func NewRedisStore(rdb *redis.Client, keyPairs ...[]byte) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		codecs: securecookie.CodecsFromPairs(keyPairs...),
		options: &gsessions.Options{
			Path:   "/",
			MaxAge: defaultMaxAge,
		},
	}
}

// Options はクッキー属性を設定します。
func (s *RedisStore) Options(opts sessions.Options) {
	s.options = opts.ToGorillaOptions()
}

// Get はリクエスト単位でキャッシュされたセッションを返します。
func (s *RedisStore) Get(r *http.Request, name string) (*gsessions.Session, error) {
	return gsessions.GetRegistry(r).Get(s, name)
}

// New はクッキーのセッションIDから Redis の内容を復元します。
// クッキーが無い・署名が合わない場合は空のセッションを返し、Redis の障害は ErrUnavailable を返します。
func (s *RedisStore) New(r *http.Request, name string) (*gsessions.Session, error) {
	session := gsessions.NewSession(s, name)
	opts := *s.options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &session.ID, s.codecs...); err != nil {
		session.ID = ""
		return session, nil
	}

	found, err := s.load(r.Context(), session)
	if err != nil {
		return session, err
	}
	if !found {
		// 期限切れ・削除済みのIDは再利用しない
		session.ID = ""
		return session, nil
	}
	session.IsNew = false
	return session, nil
}

// Save はセッション内容を Redis に書き込み、署名付きIDをクッキーに設定します。
// MaxAge が負の場合は Redis から削除し、クッキーを失効させます。
func (s *RedisStore) Save(r *http.Request, w http.ResponseWriter, session *gsessions.Session) error {
	if session.Options == nil {
		opts := *s.options
		session.Options = &opts
	}

	if session.Options.MaxAge < 0 {
		if err := s.delete(r.Context(), session.ID); err != nil {
			return err
		}
		// 同じリクエストで再度 Save されても破棄したIDは復活させない
		session.ID = ""
		session.IsNew = true
		http.SetCookie(w, gsessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if err := s.save(r.Context(), session); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}
	http.SetCookie(w, gsessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Renew は現在のIDのデータを破棄し、次回の Save で新しいIDを発行させます。
// ログイン直後に呼び出してセッション固定を防ぎます。
func (s *RedisStore) Renew(r *http.Request, session *gsessions.Session) error {
	if session.ID != "" {
		if err := s.delete(r.Context(), session.ID); err != nil {
			return err
		}
	}
	session.ID = ""
	session.IsNew = true
	return nil
}

func (s *RedisStore) load(ctx context.Context, session *gsessions.Session) (bool, error) {
	data, err := s.rdb.Get(ctx, sessionKey(session.ID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: load session: %w", ErrUnavailable, err)
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&session.Values); err != nil {
		// 壊れたデータは無効なセッションとして扱う
		return false, nil
	}
	return true, nil
}

func (s *RedisStore) save(ctx context.Context, session *gsessions.Session) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(session.Values); err != nil {
		return fmt.Errorf("encode session values: %w", err)
	}

	maxAge := session.Options.MaxAge
	if maxAge == 0 {
		maxAge = defaultMaxAge
	}
	ttl := time.Duration(maxAge) * time.Second
	if err := s.rdb.Set(ctx, sessionKey(session.ID), buf.Bytes(), ttl).Err(); err != nil {
		return fmt.Errorf("%w: save session: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("%w: delete session: %w", ErrUnavailable, err)
	}
	return nil
}

func sessionKey(id string) string {
	return keyPrefix + id
}
