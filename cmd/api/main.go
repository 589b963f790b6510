// Package main はWebサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yourusername/member-gate/internal/auth"
	"github.com/yourusername/member-gate/internal/config"
	"github.com/yourusername/member-gate/internal/logger"
	"github.com/yourusername/member-gate/internal/metrics"
	"github.com/yourusername/member-gate/internal/password"
	"github.com/yourusername/member-gate/internal/user"
	"github.com/yourusername/member-gate/internal/web"
)

const (
	serviceName     = "member-gate"
	serviceVersion  = "0.1.0"
	shutdownTimeout = 10 * time.Second
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log := logger.New(serviceName, "info", true)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(serviceName, cfg.LogLevel, cfg.GinMode != gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	users, closeUsers, err := setupUserStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeUsers(context.Background()) }()

	secret, err := sessionSecret(cfg, log)
	if err != nil {
		return err
	}
	store, revocations, closeSessions, err := setupSessionStore(ctx, cfg, secret, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeSessions(context.Background()) }()

	m := metrics.New("member_gate")
	router, err := newRouter(cfg, log, m, users, store, revocations)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           web.MethodOverride(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("mode", cfg.GinMode).Msg("starting web server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRouter はミドルウェアとルーティングを組み立てたエンジンを返します。
func newRouter(cfg *config.Config, log zerolog.Logger, m *metrics.Metrics, users user.Store, store sessions.Store, revocations auth.Revocations) (*gin.Engine, error) {
	// gin.Default の Logger は zerolog のミドルウェアに置き換える
	router := gin.New()
	router.Use(gin.Recovery(), logger.Middleware(log))

	if err := web.Install(router); err != nil {
		return nil, err
	}

	sessionManager := auth.NewSessionManager(store, users, auth.SessionOptions{
		MaxLifetime: cfg.SessionMaxLifetime,
		IdleTimeout: cfg.SessionIdleTimeout,
		Cookie: sessions.Options{
			Path:     "/",
			HttpOnly: true,
			Secure:   cfg.GinMode == gin.ReleaseMode,
			SameSite: http.SameSiteStrictMode,
		},
		Revocations: revocations,
	}, log)
	router.Use(sessionManager.Middleware())

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	corsConfig.AllowOrigins = strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"X-HTTP-Method-Override",
	}
	router.Use(cors.New(corsConfig))

	hasher := password.WithObserver(password.NewBcrypt(cfg.BcryptCost, cfg.HashConcurrency), m.ObserveHash)

	handler := auth.NewHandler(
		auth.NewEmailPassword(users, hasher),
		auth.NewRegistrar(users, hasher),
		sessionManager,
		web.HTMLRenderer{},
		auth.HandlerOptions{
			UniformFailures: cfg.UniformAuthFailures,
			Metrics:         m,
			Logger:          log,
		},
	)

	setupRoutes(router, handler, m)
	return router, nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": serviceName,
		"version": serviceVersion,
	})
}

// setupRoutes は公開エンドポイントと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, handler *auth.Handler, m *metrics.Metrics) {
	// まずは誰でも叩けるヘルスチェックとメトリクスを登録
	router.GET("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	handler.Routes(router)
}
