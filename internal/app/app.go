// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/guestseat/internal/config"
	"github.com/hitoshi/guestseat/internal/database"
	"github.com/hitoshi/guestseat/internal/event"
	"github.com/hitoshi/guestseat/internal/guestbook"
	"github.com/hitoshi/guestseat/internal/handler"
	"github.com/hitoshi/guestseat/internal/logger"
	"github.com/hitoshi/guestseat/internal/metrics"
	"github.com/hitoshi/guestseat/internal/middleware"
	"github.com/hitoshi/guestseat/internal/repository"
	"github.com/hitoshi/guestseat/internal/seat"
	"github.com/hitoshi/guestseat/internal/security"
	"github.com/hitoshi/guestseat/internal/user"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間の上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数（とENV_FILE）からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	router, cleanup := buildRouter(ctx, cfg, db, slog.Default())
	defer cleanup()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// buildRouter はリポジトリ・サービス・外部連携を組み立ててHTTPハンドラーを返す。
// 返されるcleanupはレートリミッターの停止、イベント発行の停止、Redis接続のクローズを行う。
// スプレッドシートやRedisに接続できない場合も起動は継続し、該当機能を縮退させる。
func buildRouter(ctx context.Context, cfg *config.Config, db *sql.DB, log *slog.Logger) (http.Handler, func()) {
	var closers []func()

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. リポジトリ
	seatRepo := repository.NewPostgresSeatRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)

	// 3. ドメインサービス
	publisher := event.New(cfg.RabbitMQURL, log)
	if c, ok := publisher.(io.Closer); ok {
		closers = append(closers, func() { _ = c.Close() })
	}
	seatService := seat.NewService(seatRepo, publisher, collector, log, seat.Config{
		LockTimeout:     cfg.SeatLockTimeout,
		DefaultCapacity: cfg.TableDefaultCapacity,
	})
	userService := user.NewService(userRepo, seatService)

	// 4. ゲストブック
	store := newSheetStore(ctx, cfg, log)
	cache, closeCache := newGuestbookCache(ctx, cfg, log)
	closers = append(closers, closeCache)
	guestbookService := guestbook.NewService(store, cache, security.NewTextSanitizer(), collector, log, guestbook.Config{
		WishesSheet:   cfg.SheetsWishesTab,
		SinglesSheet:  cfg.SheetsSinglesTab,
		FeedbackSheet: cfg.SheetsFeedbackTab,
		Timeout:       cfg.SheetsTimeout,
		CacheTTL:      cfg.CacheTTL,
	})

	// 5. ルーター
	limiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitGuestbook))
	closers = append(closers, limiter.Stop)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		Metrics:           collector,
		MetricsGatherer:   reg,
		HealthChecker:     db,
		SeatService:       seatService,
		UserService:       userService,
		GuestbookService:  guestbookService,
		StaticDir:         cfg.StaticDir,
	})

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return router, cleanup
}

// newSheetStore はスプレッドシートクライアントを生成する。
// 未設定または初期化に失敗した場合はnilを返し、ゲストブックは読み取り空・書き込み503で動作する。
func newSheetStore(ctx context.Context, cfg *config.Config, log *slog.Logger) guestbook.SheetStore {
	client, err := guestbook.NewSheetsClient(ctx, cfg.SheetsSpreadsheetID, cfg.GCPServiceAccount, log)
	if errors.Is(err, guestbook.ErrNotConfigured) {
		log.Info("guestbook spreadsheet is not configured")
		return nil
	}
	if err != nil {
		log.Error("failed to initialize guestbook spreadsheet", slog.String("error", err.Error()))
		return nil
	}
	return client
}

// newGuestbookCache はREDIS_ADDRが設定されていればRedisキャッシュを返す。
// 接続できない場合はキャッシュなしで動作する。
func newGuestbookCache(ctx context.Context, cfg *config.Config, log *slog.Logger) (guestbook.Cache, func()) {
	if cfg.RedisAddr == "" {
		return guestbook.NopCache{}, func() {}
	}

	rdb, err := guestbook.NewRedisClient(ctx, guestbook.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Warn("guestbook cache disabled", slog.String("error", err.Error()))
		return guestbook.NopCache{}, func() {}
	}

	log.Info("guestbook cache enabled", slog.String("addr", cfg.RedisAddr))
	return guestbook.NewRedisCache(rdb, "guestseat:guestbook:"), func() { rdb.Close() }
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用し、適用後のバージョンをログに残す。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.MigrationStatus(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration status check failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
