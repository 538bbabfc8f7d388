package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/podscribe/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Sessions           *middleware.SessionManager
	CSRFConfig         middleware.CSRFConfig
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	StatusMetrics      middleware.StatusRecorder

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// サービス
	AuthService    AuthServiceInterface
	PodcastService PodcastServiceInterface
	FollowService  FollowServiceInterface
	Searcher       SearcherInterface
	JobService     JobServiceInterface
	AIService      AIServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → LoadUser → CSRF → RateLimit(General)
//
// /health と /metrics はセッションとレート制限の外に配置する。
// 参照系のAPIは未ログインでも利用でき、更新系とチャットはログインを必須とする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusMetrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins...))

	r.Get("/health", NewHealthHandler(deps.HealthChecker, deps.Logger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Sessions, deps.Logger)
	podcastHandler := NewPodcastHandler(deps.PodcastService, deps.Logger)
	userHandler := NewUserHandler(deps.FollowService, deps.Logger)
	searchHandler := NewSearchHandler(deps.Searcher, deps.Logger)
	jobHandler := NewJobHandler(deps.JobService, deps.Logger)
	aiHandler := NewAIHandler(deps.AIService, deps.AuthService, deps.Logger)

	requireUser := middleware.RequireUser()
	aiLimit := deps.RateLimiter.AIMiddleware()

	r.Group(func(r chi.Router) {
		r.Use(deps.Sessions.LoadUser())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.With(requireUser).Get("/me", authHandler.Me)
		})

		// ポッドキャスト
		r.Route("/api/podcasts", func(r chi.Router) {
			r.Get("/", podcastHandler.ListPodcasts)
			r.With(requireUser).Post("/", podcastHandler.AddPodcast)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", podcastHandler.GetPodcast)
				r.With(requireUser).Delete("/", podcastHandler.DeletePodcast)
				r.Get("/image", podcastHandler.GetImage)
				r.Get("/episodes", podcastHandler.ListEpisodes)

				r.With(requireUser).Post("/follow", userHandler.Follow)
				r.With(requireUser).Delete("/follow", userHandler.Unfollow)

				r.Route("/episodes/{number}", func(r chi.Router) {
					r.Get("/transcript", aiHandler.GetTranscript)
					r.Get("/summary", aiHandler.GetSummary)
					r.With(requireUser, aiLimit).Post("/chat", aiHandler.Chat)
				})
			})
		})

		r.With(requireUser).Get("/api/followed", userHandler.Followed)
		r.Get("/api/search", searchHandler.Search)

		// ジョブ
		r.Route("/api/jobs", func(r chi.Router) {
			r.With(requireUser, aiLimit).Post("/", jobHandler.CreateJob)
			r.Get("/{id}", jobHandler.GetJob)
		})
	})

	return r
}
