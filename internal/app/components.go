package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/podscribe/internal/ai"
	"github.com/hitoshi/podscribe/internal/assemblyai"
	"github.com/hitoshi/podscribe/internal/auth"
	"github.com/hitoshi/podscribe/internal/config"
	"github.com/hitoshi/podscribe/internal/database"
	"github.com/hitoshi/podscribe/internal/feed"
	"github.com/hitoshi/podscribe/internal/job"
	"github.com/hitoshi/podscribe/internal/llm"
	"github.com/hitoshi/podscribe/internal/metrics"
	"github.com/hitoshi/podscribe/internal/repository"
	"github.com/hitoshi/podscribe/internal/search"
	"github.com/hitoshi/podscribe/internal/security"
	"github.com/hitoshi/podscribe/internal/user"
	"github.com/hitoshi/podscribe/internal/worker/cleanup"
	"github.com/hitoshi/podscribe/internal/worker/fetch"
	"github.com/hitoshi/podscribe/internal/worker/jobrunner"
)

// dbReadyTimeout はDB起動待ちの上限。
const dbReadyTimeout = 30 * time.Second

// components はserve/worker/index/seedで共有する依存関係の集合。
type components struct {
	db       *sql.DB
	registry *prometheus.Registry
	metrics  *metrics.Collector

	podcasts *feed.PodcastService
	images   *feed.ImageStore
	indexer  *search.Indexer
	searcher *search.Searcher
	jobs     *job.Service
	ai       *ai.Service
	auth     *auth.Service
	users    *user.Service

	scheduler *fetch.Scheduler
	runner    *jobrunner.Runner
	cleanup   *cleanup.CleanupJob
}

// buildComponents はDB接続を確立し、リポジトリからワーカーまでを組み立てる。
// 戻り値のcomponentsは呼び出し側でcloseすること。
func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.WaitForReady(ctx, db, dbReadyTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("database connection established")

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 3. リポジトリの初期化
	podcastRepo := repository.NewPostgresPodcastRepo(db)
	episodeRepo := repository.NewPostgresEpisodeRepo(db)
	transcriptRepo := repository.NewPostgresTranscriptRepo(db)
	chatRepo := repository.NewPostgresChatRepo(db)
	jobRepo := repository.NewPostgresJobRepo(db)
	imageRepo := repository.NewPostgresImageRepo(db)
	searchRepo := repository.NewPostgresSearchRecordRepo(db)
	userRepo := repository.NewPostgresUserRepo(db)

	// 4. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard(security.DefaultGuardConfig())
	sanitizer := security.NewContentSanitizer()

	// 5. 検索
	tokenizer := search.NewTokenizer(cfg.SearchLanguage)
	indexer := search.NewIndexer(podcastRepo, episodeRepo, transcriptRepo, searchRepo, tokenizer, sanitizer, collector, logger)
	searcher := search.NewSearcher(searchRepo, podcastRepo, episodeRepo, tokenizer, logger)

	// 6. ポッドキャスト
	images, err := feed.NewImageStore(imageRepo, ssrfGuard, logger, cfg.ImageCacheSize, cfg.ImageMaxAge)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create image store: %w", err)
	}
	resolver := feed.NewResolver(podcastRepo, ssrfGuard, feed.NewNormalizer(logger), logger, feed.ResolverConfig{
		Timeout:     cfg.FetchTimeout,
		MaxBodySize: cfg.FetchMaxSize,
		MaxDepth:    cfg.FeedMaxDepth,
	})
	podcastService := feed.NewPodcastService(podcastRepo, episodeRepo, resolver, images, indexer, logger)

	// 7. AI
	if !cfg.TranscriptionEnabled() {
		logger.Warn("ASSEMBLYAI_API_KEY is not set; transcription jobs will fail")
	}
	if !cfg.LLMEnabled() {
		logger.Warn("ANTHROPIC_API_KEY is not set; summaries and chat will fail")
	}
	transcriber := assemblyai.NewClient(&http.Client{Timeout: 30 * time.Second}, logger, assemblyai.Config{
		APIKey:       cfg.AssemblyAIAPIKey,
		BaseURL:      cfg.AssemblyAIBaseURL,
		PollInterval: cfg.AssemblyAIPollInterval,
		Timeout:      cfg.AssemblyAITimeout,
	})
	completer := llm.NewClient(llm.Config{
		APIKey:       cfg.AnthropicAPIKey,
		BasicModel:   cfg.LLMModelBasic,
		DefaultModel: cfg.LLMModelDefault,
	}, logger)
	aiService := ai.NewService(podcastRepo, episodeRepo, transcriptRepo, chatRepo, transcriber, completer, ssrfGuard, indexer, logger)

	// 8. ジョブとユーザー
	jobService := job.NewService(jobRepo, episodeRepo, aiService, logger)
	authService := auth.NewService(userRepo, auth.NewPasswordHasher(auth.DefaultHashParams()), logger)
	userService := user.NewService(userRepo, podcastRepo, logger)

	// 9. バックグラウンドワーカー
	scheduler := fetch.NewScheduler(podcastRepo, podcastService, collector, logger, cfg.FetchMaxConcurrent)
	runner := jobrunner.NewRunner(jobService, episodeRepo, aiService, collector, logger, jobrunner.Config{
		StartDelay:    cfg.JobStartDelay,
		PollInterval:  cfg.JobPollInterval,
		MaxConcurrent: cfg.JobMaxConcurrent,
	})
	cleanupJob := cleanup.NewCleanupJob(db, jobService, images, logger)
	cleanupJob.JobRetention = cfg.JobRetention
	cleanupJob.ImageMaxAge = cfg.ImageMaxAge

	return &components{
		db:        db,
		registry:  reg,
		metrics:   collector,
		podcasts:  podcastService,
		images:    images,
		indexer:   indexer,
		searcher:  searcher,
		jobs:      jobService,
		ai:        aiService,
		auth:      authService,
		users:     userService,
		scheduler: scheduler,
		runner:    runner,
		cleanup:   cleanupJob,
	}, nil
}

// close はDB接続を閉じる。
func (c *components) close() {
	if err := c.db.Close(); err != nil {
		slog.Warn("failed to close database", slog.String("error", err.Error()))
	}
}
