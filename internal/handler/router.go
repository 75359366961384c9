package handler

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/guestseat/internal/metrics"
	"github.com/hitoshi/guestseat/internal/middleware"
	"github.com/hitoshi/guestseat/internal/model"
)

// healthCheckTimeout は/healthでのDB疎通確認のタイムアウト。
const healthCheckTimeout = 2 * time.Second

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	MetricsGatherer   prometheus.Gatherer

	// ヘルスチェック
	HealthChecker HealthChecker

	// ドメインサービス
	SeatService      SeatServiceInterface
	UserService      UserServiceInterface
	GuestbookService GuestbookServiceInterface

	// StaticDir が空でない場合、/api以外のパスでSPAの静的ファイルを配信する。
	StaticDir string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Metrics → Recovery → SecurityHeaders → CORS → RateLimit(General)
//
// ゲストブックへの書き込みには専用のレート制限を追加で適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.NotFound(notFound)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	seatHandler := NewSeatHandler(deps.SeatService)
	userHandler := NewUserHandler(deps.UserService)
	guestbookHandler := NewGuestbookHandler(deps.GuestbookService)

	generalLimit := passThrough
	guestbookLimit := passThrough
	if deps.RateLimiter != nil {
		generalLimit = deps.RateLimiter.GeneralMiddleware()
		guestbookLimit = deps.RateLimiter.GuestbookMiddleware()
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(generalLimit)

		// 席
		r.Route("/seats", func(r chi.Router) {
			r.Get("/", seatHandler.ListSeats)
			r.Get("/user/{uid}", seatHandler.ListSeatsByUser)
			r.Get("/by-user/{uid}", seatHandler.ListSeatsByUser)
			r.Put("/assign", seatHandler.AssignSeats)
		})
		r.Post("/tables", seatHandler.CreateTable)

		// ユーザー
		r.Route("/users", func(r chi.Router) {
			r.Get("/", userHandler.ListUsers)
			r.Post("/", userHandler.CreateUser)
			r.Post("/login", userHandler.Login)
			r.Get("/areas", userHandler.ListAreas)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.GetUser)
				r.Put("/", userHandler.UpdateUser)
				r.Put("/coming", userHandler.SetComing)
			})
		})

		// ゲストブック
		r.With(guestbookLimit).Post("/blessing", guestbookHandler.AddBlessing)
		r.Get("/blessings", guestbookHandler.ListBlessings)
		r.Get("/singles", guestbookHandler.ListSingles)
		r.With(guestbookLimit).Post("/singles", guestbookHandler.AddSingle)
		r.With(guestbookLimit).Post("/feedback", guestbookHandler.AddFeedback)

		r.NotFound(notFound)
	})

	if deps.StaticDir != "" {
		spa := newSPAHandler(deps.StaticDir)
		r.Get("/*", spa)
		r.Head("/*", spa)
	}

	return r
}

func passThrough(next http.Handler) http.Handler { return next }

// notFound は統一エラーフォーマットの404を返す。
func notFound(w http.ResponseWriter, r *http.Request) {
	middleware.WriteAPIError(w, model.NewRouteNotFoundError())
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// newSPAHandler はdir配下の静的ファイルを配信し、存在しないパスにはindex.htmlを返すハンドラーを生成する。
// /api 配下のパスは静的ファイルとして扱わず404を返す。
func newSPAHandler(dir string) http.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)
		if p == "/api" || strings.HasPrefix(p, "/api/") {
			notFound(w, r)
			return
		}

		if p != "/" {
			info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p)))
			if err == nil && !info.IsDir() {
				files.ServeHTTP(w, r)
				return
			}
		}
		http.ServeFile(w, r, index)
	}
}
