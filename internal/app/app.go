// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/sogebot/sogebot.dev/internal/config"
	"github.com/sogebot/sogebot.dev/internal/database"
	"github.com/sogebot/sogebot.dev/internal/delivery"
	"github.com/sogebot/sogebot.dev/internal/handler"
	"github.com/sogebot/sogebot.dev/internal/ingest"
	"github.com/sogebot/sogebot.dev/internal/logger"
	"github.com/sogebot/sogebot.dev/internal/metrics"
	"github.com/sogebot/sogebot.dev/internal/middleware"
	"github.com/sogebot/sogebot.dev/internal/registration"
	"github.com/sogebot/sogebot.dev/internal/repository"
	"github.com/sogebot/sogebot.dev/internal/twitch"
	"github.com/sogebot/sogebot.dev/internal/worker"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

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
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// newTwitchClient はTwitchクライアントを構築する。
// EVENTSUB_CALLBACK_URLはベースURLのため、受信パスをここで付ける。
func newTwitchClient(cfg *config.Config) *twitch.Client {
	return twitch.NewClient(twitch.Config{
		ClientID:      cfg.TwitchClientID,
		ClientSecret:  cfg.TwitchClientSecret,
		WebhookSecret: cfg.EventSubSecret,
		CallbackURL:   strings.TrimSuffix(cfg.CallbackBaseURL, "/") + "/callback",
	})
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)

	// 3. メトリクスとTwitchクライアントの初期化
	collector := metrics.NewPrometheusCollector()
	twitchClient := newTwitchClient(cfg)

	// 4. ドメインサービスの初期化
	registrationService := registration.NewService(twitchClient, userRepo, slog.Default())
	deliveryService := delivery.NewService(
		eventRepo, slog.Default(), collector, cfg.PollInterval, cfg.PollMaxWait,
	)
	ingestService := ingest.NewService(eventRepo, slog.Default(), collector)

	// 5. レート制限の構築（configはreq/min単位、rate.Limitはreq/sec単位）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.RegistrationRate = rate.Limit(float64(cfg.RateLimitRegistration) / 60.0)
	rateLimiterCfg.RegistrationBurst = cfg.RateLimitRegistration
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		RegistrationService: registrationService,
		PollService:         deliveryService,
		IngestService:       ingestService,

		EventSubSecret: cfg.EventSubSecret,

		DB:             db,
		MetricsHandler: collector.Handler(),
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	// WriteTimeoutはロングポーリングの待機上限より長くとる
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.PollMaxWait + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は再同期ワーカーモードで起動する。
// 起動時に既存購読を全削除してから、レジストリとEventSub購読状態を
// 定期的に一致させる。SIGINTまたはSIGTERMシグナルでシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. 依存関係の初期化
	userRepo := repository.NewPostgresUserRepo(db)
	twitchClient := newTwitchClient(cfg)
	collector := metrics.NewPrometheusCollector()

	reconciler := worker.NewReconciler(
		userRepo, twitchClient, slog.Default(), collector, cfg.ReconcileMaxConcurrent,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("reconcile_interval", cfg.ReconcileInterval),
		slog.Int("max_concurrent", cfg.ReconcileMaxConcurrent),
	)

	// 再同期ループをメインgoroutineで実行（ブロッキング）
	reconciler.Start(ctx, cfg.ReconcileInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
