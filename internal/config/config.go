// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// セッションストアの種別
const (
	SessionStoreCookie = "cookie"
	SessionStoreRedis  = "redis"
)

// ユーザーストアの種別
const (
	UserStoreMemory   = "memory"
	UserStoreMongo    = "mongo"
	UserStorePostgres = "postgres"
)

// minSessionSecretLength はクッキー署名鍵として許容する最小バイト数です。
const minSessionSecretLength = 32

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port     string // APIサーバーのポート番号
	GinMode  string // Ginの実行モード (debug, release, test)
	LogLevel string // ログレベル (debug, info, warn, error)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// セッション設定
	SessionSecret      string        // セッション署名用の秘密鍵
	SessionStore       string        // cookie または redis
	SessionRedisURL    string        // redis セッションストアの接続URL
	SessionMaxLifetime time.Duration // ログインからの最大有効期間
	SessionIdleTimeout time.Duration // 無操作で失効するまでの時間

	// ユーザーストア設定
	UserStore     string // memory, mongo, postgres
	MongoURI      string // MongoDB 接続URI
	MongoDatabase string // MongoDB データベース名
	DatabaseURL   string // PostgreSQL 接続URL

	// パスワードハッシュ設定
	BcryptCost      int // bcrypt のコスト
	HashConcurrency int // 同時に実行するハッシュ計算の上限（0 は GOMAXPROCS）

	// ログイン失敗時に理由を区別しないメッセージを返すかどうか
	UniformAuthFailures bool
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:8080"),

		// セッション設定
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		SessionStore:       strings.ToLower(getEnv("SESSION_STORE", SessionStoreCookie)),
		SessionRedisURL:    getEnv("SESSION_REDIS_URL", "redis://127.0.0.1:6379/0"),
		SessionMaxLifetime: time.Duration(getEnvAsInt("SESSION_MAX_LIFETIME_MINUTES", 720)) * time.Minute,
		SessionIdleTimeout: time.Duration(getEnvAsInt("SESSION_IDLE_TIMEOUT_MINUTES", 30)) * time.Minute,

		// ユーザーストア設定
		UserStore:     strings.ToLower(getEnv("USER_STORE", UserStoreMemory)),
		MongoURI:      getEnv("MONGO_URI", "mongodb://127.0.0.1:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "member_gate"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		// パスワードハッシュ設定
		BcryptCost:      getEnvAsInt("BCRYPT_COST", 10),
		HashConcurrency: getEnvAsInt("HASH_CONCURRENCY", 0),

		UniformAuthFailures: getEnvAsBool("AUTH_UNIFORM_FAILURES", false),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.SessionStore {
	case SessionStoreCookie:
	case SessionStoreRedis:
		if c.SessionRedisURL == "" {
			return fmt.Errorf("SESSION_REDIS_URL is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("unsupported SESSION_STORE: %q", c.SessionStore)
	}

	switch c.UserStore {
	case UserStoreMemory:
	case UserStoreMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("MONGO_URI and MONGO_DATABASE are required when USER_STORE=mongo")
		}
	case UserStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when USER_STORE=postgres")
		}
	default:
		return fmt.Errorf("unsupported USER_STORE: %q", c.UserStore)
	}

	if c.SessionMaxLifetime <= 0 || c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("session lifetime and idle timeout must be positive")
	}
	if c.HashConcurrency < 0 {
		return fmt.Errorf("HASH_CONCURRENCY must not be negative")
	}

	// 署名鍵が短いとクッキー改ざんに耐えられない
	if c.SessionSecret != "" && len(c.SessionSecret) < minSessionSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", minSessionSecretLength)
	}

	// ローカル開発では秘密鍵は任意（起動時に一時鍵を生成する）
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.UserStore == UserStoreMemory {
			return fmt.Errorf("USER_STORE=memory is not allowed in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
