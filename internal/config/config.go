package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// defaultStarterFeeds はSTARTER_FEEDS未設定時にseedコマンドで登録するフィード。
var defaultStarterFeeds = []string{
	"https://talkpython.fm/rss",
	"https://pythonbytes.fm/rss",
	"https://feeds.megaphone.fm/darknetdiaries",
	"https://atp.fm/episodes?format=rss",
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionHashKey  []byte
	SessionBlockKey []byte
	SessionMaxAge   time.Duration

	// Logging
	LogLevel string

	// Fetch
	FetchTimeout        time.Duration
	FetchMaxSize        int64
	FetchMaxConcurrent  int
	FeedRefreshInterval time.Duration
	FeedMaxDepth        int

	// Jobs
	JobStartDelay    time.Duration
	JobPollInterval  time.Duration
	JobMaxConcurrent int
	JobRetention     time.Duration
	CleanupInterval  time.Duration

	// Search
	IndexStartDelay time.Duration
	IndexInterval   time.Duration
	SearchLanguage  string

	// AssemblyAI
	AssemblyAIAPIKey       string
	AssemblyAIBaseURL      string
	AssemblyAIPollInterval time.Duration
	AssemblyAITimeout      time.Duration

	// LLM
	AnthropicAPIKey string
	LLMModelBasic   string
	LLMModelDefault string

	// Rate Limit (1分あたりのリクエスト数)
	RateLimitGeneral int
	RateLimitAI      int

	// Image cache
	ImageCacheSize int
	ImageMaxAge    time.Duration

	// Seed
	StarterFeeds []string

	// Server
	ServerPort string
	BaseURL    string
	// ServeBackground がfalseの場合、serveはHTTPのみを提供しバックグラウンド処理をworkerに任せる。
	ServeBackground bool
	// MetricsPort はworkerが/metricsを公開するポート。
	MetricsPort string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins []string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	hashKey := os.Getenv("SESSION_HASH_KEY")
	if hashKey == "" {
		missing = append(missing, "SESSION_HASH_KEY")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.SessionHashKey = []byte(hashKey)
	if len(cfg.SessionHashKey) < 32 {
		return nil, fmt.Errorf("SESSION_HASH_KEY must be at least 32 bytes, got %d", len(cfg.SessionHashKey))
	}
	if blockKey := os.Getenv("SESSION_BLOCK_KEY"); blockKey != "" {
		switch len(blockKey) {
		case 16, 24, 32:
			cfg.SessionBlockKey = []byte(blockKey)
		default:
			return nil, fmt.Errorf("SESSION_BLOCK_KEY must be 16, 24 or 32 bytes, got %d", len(blockKey))
		}
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvDuration("SESSION_MAX_AGE", 30*24*time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 15*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 20<<20)
	cfg.FetchMaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", 4)
	cfg.FeedRefreshInterval = getEnvDuration("FEED_REFRESH_INTERVAL", time.Hour)
	cfg.FeedMaxDepth = getEnvInt("FEED_MAX_DEPTH", 5)
	cfg.JobStartDelay = getEnvDuration("JOB_START_DELAY", time.Second)
	cfg.JobPollInterval = getEnvDuration("JOB_POLL_INTERVAL", time.Second)
	cfg.JobMaxConcurrent = getEnvInt("JOB_MAX_CONCURRENT", 2)
	cfg.JobRetention = getEnvDuration("JOB_RETENTION", 7*24*time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.IndexStartDelay = getEnvDuration("INDEX_START_DELAY", 5*time.Second)
	cfg.IndexInterval = getEnvDuration("INDEX_INTERVAL", 60*time.Second)
	cfg.SearchLanguage = getEnvString("SEARCH_LANGUAGE", "english")
	cfg.AssemblyAIAPIKey = os.Getenv("ASSEMBLYAI_API_KEY")
	cfg.AssemblyAIBaseURL = getEnvString("ASSEMBLYAI_BASE_URL", "")
	cfg.AssemblyAIPollInterval = getEnvDuration("ASSEMBLYAI_POLL_INTERVAL", 3*time.Second)
	cfg.AssemblyAITimeout = getEnvDuration("ASSEMBLYAI_TIMEOUT", 2*time.Hour)
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.LLMModelBasic = getEnvString("LLM_MODEL_BASIC", "")
	cfg.LLMModelDefault = getEnvString("LLM_MODEL_DEFAULT", "")
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAI = getEnvInt("RATE_LIMIT_AI", 10)
	cfg.ImageCacheSize = getEnvInt("IMAGE_CACHE_SIZE", 256)
	cfg.ImageMaxAge = getEnvDuration("IMAGE_MAX_AGE", 7*24*time.Hour)
	cfg.StarterFeeds = getEnvList("STARTER_FEEDS", defaultStarterFeeds)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ServeBackground = getEnvBool("SERVE_BACKGROUND", true)
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", strings.HasPrefix(cfg.BaseURL, "https://"))
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{strings.TrimRight(cfg.BaseURL, "/")})

	return cfg, nil
}

// TranscriptionEnabled はAssemblyAIのAPIキーが設定されているかを返す。
func (c *Config) TranscriptionEnabled() bool {
	return c.AssemblyAIAPIKey != ""
}

// LLMEnabled はAnthropicのAPIキーが設定されているかを返す。
func (c *Config) LLMEnabled() bool {
	return c.AnthropicAPIKey != ""
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
