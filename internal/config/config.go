// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFile はENV_FILE未指定時に読み込むdotenvファイルのパス。
// シークレットをファイルでマウントするホスティング環境の既定位置。
const DefaultEnvFile = "/etc/secrets/.env"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Seats
	SeatLockTimeout      time.Duration
	TableDefaultCapacity int

	// Guestbook (Google Sheets)
	SheetsSpreadsheetID string
	GCPServiceAccount   string
	SheetsWishesTab     string
	SheetsSinglesTab    string
	SheetsFeedbackTab   string
	SheetsTimeout       time.Duration

	// Cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Events
	RabbitMQURL string

	// Rate Limit (requests per minute)
	RateLimitGeneral   int
	RateLimitGuestbook int

	// Server
	ServerPort string
	StaticDir  string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 読み込み前にENV_FILEのdotenvファイルがあれば環境変数に反映する（既存の値は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadEnvFile(getEnvString("ENV_FILE", DefaultEnvFile)); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SeatLockTimeout = getEnvDuration("SEAT_LOCK_TIMEOUT", 5*time.Second)
	cfg.TableDefaultCapacity = getEnvInt("TABLE_DEFAULT_CAPACITY", 12)
	cfg.SheetsSpreadsheetID = getEnvString("SHEETS_SPREADSHEET_ID", "")
	cfg.GCPServiceAccount = getEnvString("GCP_SA_JSON", "")
	cfg.SheetsWishesTab = getEnvString("SHEETS_WISHES_TAB", "")
	cfg.SheetsSinglesTab = getEnvString("SHEETS_SINGLES_TAB", "")
	cfg.SheetsFeedbackTab = getEnvString("SHEETS_FEEDBACK_TAB", "")
	cfg.SheetsTimeout = getEnvDuration("SHEETS_TIMEOUT", 10*time.Second)
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", 60*time.Second)
	cfg.RabbitMQURL = getEnvString("RABBITMQ_URL", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 300)
	cfg.RateLimitGuestbook = getEnvInt("RATE_LIMIT_GUESTBOOK", 20)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.StaticDir = getEnvString("STATIC_DIR", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	return cfg, nil
}

// GuestbookEnabled はスプレッドシート連携に必要な設定が揃っているかを返す。
func (c *Config) GuestbookEnabled() bool {
	return c.SheetsSpreadsheetID != "" && c.GCPServiceAccount != ""
}

// loadEnvFile はdotenvファイルを読み込む。ファイルが存在しない場合は何もしない。
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
