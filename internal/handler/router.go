package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sogebot/sogebot.dev/internal/middleware"
)

// Pinger はヘルスチェックが必要とするデータベース疎通確認インターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス
	RegistrationService RegistrationServiceInterface
	PollService         PollServiceInterface
	IngestService       IngestServiceInterface

	// コールバック署名検証
	EventSubSecret string

	// ヘルスチェックとメトリクス
	DB             Pinger
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → RecoveryMiddleware → LoggingMiddleware
//
// POST /user のみ登録専用レート制限を追加する。
// POST /callback はEventSubからの受信のためCORSの対象外でも害はなく、
// 署名検証がハンドラー内で行われる。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	userHandler := NewUserHandler(deps.RegistrationService, deps.PollService, deps.Logger)
	callbackHandler := NewCallbackHandler(deps.IngestService, deps.EventSubSecret, deps.Logger)
	healthHandler := NewHealthHandler(deps.DB)

	r.Route("/user", func(r chi.Router) {
		r.With(deps.RateLimiter.RegistrationMiddleware()).Post("/", userHandler.Register)
		r.Get("/", userHandler.PollEvent)
	})

	r.Post("/callback", callbackHandler.Handle)

	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", deps.MetricsHandler)

	return r
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check はデータベース疎通を確認して結果を返す。
// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"reason": "database unreachable",
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
