// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordSyncSuccess(podcastID string, added int)
	RecordSyncFailure(podcastID string, reason string)
	RecordHTTPStatus(statusCode int)
	RecordSyncLatency(duration time.Duration)
	RecordJobStarted(action string)
	RecordJobFinished(action, status string, duration time.Duration)
	RecordIndexBuild(duration time.Duration, episodes int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess     prometheus.Counter
	syncFail        *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	syncLatency     prometheus.Histogram
	episodesAdded   prometheus.Counter
	jobsRunning     *prometheus.GaugeVec
	jobsFinished    *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	indexBuilds     prometheus.Counter
	indexDuration   prometheus.Histogram
	indexedEpisodes prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_feed_sync_success_total",
			Help: "フィード同期成功の合計数",
		}),
		syncFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podscribe_feed_sync_fail_total",
			Help: "フィード同期失敗の合計数",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podscribe_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "podscribe_feed_sync_latency_seconds",
			Help:    "フィード同期のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		episodesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_episodes_added_total",
			Help: "追加されたエピソードの合計数",
		}),
		jobsRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "podscribe_jobs_running",
			Help: "実行中のジョブ数",
		}, []string{"action"}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "podscribe_jobs_finished_total",
			Help: "終了したジョブの合計数",
		}, []string{"action", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "podscribe_job_duration_seconds",
			Help:    "ジョブの処理時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"action"}),
		indexBuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_index_builds_total",
			Help: "検索インデックス構築の合計回数",
		}),
		indexDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "podscribe_index_build_duration_seconds",
			Help:    "検索インデックス構築の所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		indexedEpisodes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_indexed_episodes_total",
			Help: "索引を再構築したエピソードの合計数",
		}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.httpStatus,
		c.syncLatency,
		c.episodesAdded,
		c.jobsRunning,
		c.jobsFinished,
		c.jobDuration,
		c.indexBuilds,
		c.indexDuration,
		c.indexedEpisodes,
	)

	return c
}

// RecordSyncSuccess はフィード同期成功と追加エピソード数を記録する。
func (c *Collector) RecordSyncSuccess(podcastID string, added int) {
	c.syncSuccess.Inc()
	c.episodesAdded.Add(float64(added))
}

// RecordSyncFailure はフィード同期失敗を記録する。
func (c *Collector) RecordSyncFailure(podcastID string, reason string) {
	c.syncFail.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSyncLatency はフィード同期のレイテンシを記録する。
func (c *Collector) RecordSyncLatency(duration time.Duration) {
	c.syncLatency.Observe(duration.Seconds())
}

// RecordJobStarted は実行中ジョブ数を増やす。
func (c *Collector) RecordJobStarted(action string) {
	c.jobsRunning.WithLabelValues(action).Inc()
}

// RecordJobFinished はジョブの終了を記録し、実行中ジョブ数を減らす。
func (c *Collector) RecordJobFinished(action, status string, duration time.Duration) {
	c.jobsRunning.WithLabelValues(action).Dec()
	c.jobsFinished.WithLabelValues(action, status).Inc()
	c.jobDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordIndexBuild は検索インデックス構築を記録する。
func (c *Collector) RecordIndexBuild(duration time.Duration, episodes int) {
	c.indexBuilds.Inc()
	c.indexDuration.Observe(duration.Seconds())
	c.indexedEpisodes.Add(float64(episodes))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
