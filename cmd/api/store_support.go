package main

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yourusername/member-gate/internal/auth"
	"github.com/yourusername/member-gate/internal/config"
	"github.com/yourusername/member-gate/internal/sessionstore"
	"github.com/yourusername/member-gate/internal/user"
	"github.com/yourusername/member-gate/internal/user/memory"
	"github.com/yourusername/member-gate/internal/user/mongostore"
	"github.com/yourusername/member-gate/internal/user/pgstore"
)

// closer は終了時に呼び出す後始末です。
type closer func(context.Context) error

func setupUserStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (user.Store, closer, error) {
	switch cfg.UserStore {
	case config.UserStoreMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		store := mongostore.NewStore(client.Database(cfg.MongoDatabase).Collection(mongostore.CollectionName))
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		log.Info().Str("database", cfg.MongoDatabase).Msg("using mongodb user store")
		return store, client.Disconnect, nil

	case config.UserStorePostgres:
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, err
		}
		pool, err := pgstore.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := pgstore.NewStore(pool)
		log.Info().Msg("using postgres user store")
		return store, func(context.Context) error {
			store.Close()
			return nil
		}, nil

	default:
		log.Warn().Msg("using in-memory user store; registered users are lost on restart")
		return memory.NewStore(), func(context.Context) error { return nil }, nil
	}
}

// setupSessionStore はセッションの保存先とログアウト済みセッションの記録先を返します。
func setupSessionStore(ctx context.Context, cfg *config.Config, secret []byte, log zerolog.Logger) (sessions.Store, auth.Revocations, closer, error) {
	switch cfg.SessionStore {
	case config.SessionStoreRedis:
		opt, err := redis.ParseURL(cfg.SessionRedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse SESSION_REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			// 起動後に復旧する可能性があるので警告にとどめる
			log.Warn().Err(err).Msg("redis session store is not reachable yet")
		}
		log.Info().Str("addr", opt.Addr).Msg("using redis session store")
		return sessionstore.NewRedisStore(rdb, secret), sessionstore.NewRedisRevocations(rdb),
			func(context.Context) error { return rdb.Close() }, nil

	default:
		// クッキーストアではログアウトの記録がプロセス内に限られる
		log.Info().Msg("using cookie session store")
		return cookie.NewStore(secret), sessionstore.NewMemoryRevocations(),
			func(context.Context) error { return nil }, nil
	}
}

// sessionSecret は設定された署名鍵を返します。未設定の場合は起動ごとの一時鍵を生成します。
func sessionSecret(cfg *config.Config, log zerolog.Logger) ([]byte, error) {
	if cfg.SessionSecret != "" {
		return []byte(cfg.SessionSecret), nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate session secret: %w", err)
	}
	log.Warn().Msg("SESSION_SECRET is not set; using an ephemeral key, sessions will not survive restarts")
	return buf, nil
}
