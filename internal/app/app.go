package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"

	"github.com/hitoshi/podscribe/internal/config"
	"github.com/hitoshi/podscribe/internal/database"
	"github.com/hitoshi/podscribe/internal/handler"
	"github.com/hitoshi/podscribe/internal/logger"
	"github.com/hitoshi/podscribe/internal/metrics"
	"github.com/hitoshi/podscribe/internal/middleware"
)

// shutdownTimeout はHTTPサーバーのグレースフルシャットダウンの上限。
const shutdownTimeout = 30 * time.Second

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
		return runHealthcheck(fmt.Sprintf("http://localhost:%s/health", port))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandIndex:
		return runIndex(cfg)
	case CommandSeed:
		return runSeed(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// ServeBackgroundが有効な場合はジョブランナー、インデクサ、フィード同期、クリーンアップも同じプロセスで動かす。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx := context.Background()
	log := slog.Default()

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.close()

	sessions, err := middleware.NewSessionManager(middleware.SessionConfig{
		HashKey:  cfg.SessionHashKey,
		BlockKey: cfg.SessionBlockKey,
		Secure:   cfg.CookieSecure,
		MaxAge:   cfg.SessionMaxAge,
	})
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}

	rateLimiter := middleware.NewRateLimiter(middleware.PerMinuteConfig(cfg.RateLimitGeneral, cfg.RateLimitAI))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             log,
		Sessions:           sessions,
		CSRFConfig:         middleware.CSRFConfig{CookieSecure: cfg.CookieSecure, CookieDomain: cfg.CookieDomain},
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rateLimiter,
		StatusMetrics:      c.metrics,
		HealthChecker:      c.db,
		MetricsHandler:     metrics.Handler(c.registry),
		AuthService:        c.auth,
		PodcastService:     c.podcasts,
		FollowService:      c.users,
		Searcher:           c.searcher,
		JobService:         c.jobs,
		AIService:          c.ai,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// チャットはLLMの応答を待つため長めに取る
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	addHTTPServer(&g, server, log)
	if cfg.ServeBackground {
		addBackgroundActors(&g, c, cfg)
	}
	return runGroup(&g, log)
}

// runWorker はワーカーモードで起動する。
// HTTP APIは提供せず、バックグラウンド処理と/metricsのみを動かす。
func runWorker(cfg *config.Config) error {
	ctx := context.Background()
	log := slog.Default()

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(c.registry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("worker starting",
		slog.Duration("feed_refresh_interval", cfg.FeedRefreshInterval),
		slog.Int("fetch_max_concurrent", cfg.FetchMaxConcurrent),
		slog.Int("job_max_concurrent", cfg.JobMaxConcurrent),
	)

	var g run.Group
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))
	addHTTPServer(&g, metricsServer, log)
	addBackgroundActors(&g, c, cfg)
	return runGroup(&g, log)
}

// addBackgroundActors はジョブランナー、インデクサ、フィード同期、クリーンアップをグループに追加する。
func addBackgroundActors(g *run.Group, c *components, cfg *config.Config) {
	addContextActor(g, c.runner.Start)
	addContextActor(g, func(ctx context.Context) {
		c.indexer.Start(ctx, cfg.IndexStartDelay, cfg.IndexInterval)
	})
	addContextActor(g, func(ctx context.Context) {
		c.scheduler.Start(ctx, cfg.FeedRefreshInterval)
	})
	addContextActor(g, func(ctx context.Context) {
		c.cleanup.Start(ctx, cfg.CleanupInterval)
	})
}

// addContextActor はコンテキストのキャンセルで停止する処理をグループに追加する。
// 処理が先に戻ってもグループは止めず、割り込みまで待つ。
func addContextActor(g *run.Group, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	g.Add(func() error {
		fn(ctx)
		<-ctx.Done()
		return nil
	}, func(error) {
		cancel()
	})
}

// addHTTPServer はHTTPサーバーをグループに追加する。
func addHTTPServer(g *run.Group, server *http.Server, log *slog.Logger) {
	g.Add(func() error {
		log.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error("server shutdown failed", slog.String("error", err.Error()))
		}
	})
}

// runGroup はグループを実行し、シグナルによる終了は正常終了として扱う。
func runGroup(g *run.Group, log *slog.Logger) error {
	err := g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		log.Info("shutting down", slog.String("signal", sigErr.Signal.String()))
		return nil
	}
	return err
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

	version, dirty, err := database.CurrentVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runIndex は検索インデックスを1回だけ構築して終了する。
func runIndex(cfg *config.Config) error {
	ctx := context.Background()
	c, err := buildComponents(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer c.close()

	start := time.Now()
	if err := c.indexer.BuildAll(ctx); err != nil {
		return fmt.Errorf("index build failed: %w", err)
	}
	slog.Info("search index built", slog.Duration("duration", time.Since(start)))
	return nil
}

// runSeed は初期ポッドキャスト一覧を登録して終了する。
func runSeed(cfg *config.Config) error {
	ctx := context.Background()
	c, err := buildComponents(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer c.close()

	added := c.podcasts.SeedStarterFeeds(ctx, cfg.StarterFeeds)
	slog.Info("starter podcasts seeded",
		slog.Int("requested", len(cfg.StarterFeeds)),
		slog.Int("added", added),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(url string) error {
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
