// Package jobrunner は待機中のジョブを取り出してAI処理を実行するバックグラウンドループを提供する。
// ジョブの選択は単一のループで古い順に行い、実行はsemaphoreで並列数を制限したgoroutineで行う。
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/podscribe/internal/job"
	"github.com/hitoshi/podscribe/internal/logger"
	"github.com/hitoshi/podscribe/internal/model"
)

// JobQueue はジョブの取得と状態遷移のインターフェース。
// job.Serviceが実装する。
type JobQueue interface {
	NextAwaiting(ctx context.Context) (*model.Job, error)
	Start(ctx context.Context, id string) (*model.Job, error)
	Complete(ctx context.Context, id string, status model.JobStatus) (*model.Job, error)
}

// EpisodeFinder は処理対象のエピソードを取得するインターフェース。
type EpisodeFinder interface {
	FindByNumber(ctx context.Context, podcastID string, episodeNumber int) (*model.Episode, error)
}

// Worker はジョブ種別ごとの処理を行うインターフェース。
// ai.Serviceが実装する。
type Worker interface {
	Transcribe(ctx context.Context, podcastID string, episodeNumber int) (*model.Transcript, error)
	Summarize(ctx context.Context, podcastID string, episodeNumber int) (*model.Transcript, error)
	EnableChat(ctx context.Context, podcastID string, episodeNumber int) (*model.Transcript, error)
}

// Metrics はジョブ実行のメトリクス記録インターフェース。
type Metrics interface {
	RecordJobStarted(action string)
	RecordJobFinished(action, status string, duration time.Duration)
}

// Config はRunnerの設定。
type Config struct {
	StartDelay    time.Duration
	PollInterval  time.Duration
	MaxConcurrent int
}

// DefaultConfig はデフォルト設定を返す。
func DefaultConfig() Config {
	return Config{
		StartDelay:    time.Second,
		PollInterval:  time.Second,
		MaxConcurrent: 2,
	}
}

// Runner はジョブキューのポーリングとディスパッチを行う。
type Runner struct {
	jobs     JobQueue
	episodes EpisodeFinder
	worker   Worker
	metrics  Metrics
	logger   *slog.Logger
	cfg      Config

	sem chan struct{}
	wg  sync.WaitGroup
}

// NewRunner はRunnerの新しいインスタンスを生成する。metricsはnilでもよい。
// 設定値が0以下の項目はデフォルト値を使用する。
func NewRunner(jobs JobQueue, episodes EpisodeFinder, worker Worker, metrics Metrics, logger *slog.Logger, cfg Config) *Runner {
	def := DefaultConfig()
	if cfg.StartDelay < 0 {
		cfg.StartDelay = def.StartDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	return &Runner{
		jobs:     jobs,
		episodes: episodes,
		worker:   worker,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Start は開始遅延の後、コンテキストがキャンセルされるまでジョブのポーリングを続ける。
// ジョブを取り出せた場合は待たずに次のジョブを探し、キューが空の場合はPollIntervalだけ待つ。
// 戻る前に実行中のジョブの終了を待つ。
func (r *Runner) Start(ctx context.Context) {
	defer r.wg.Wait()

	r.logger.Info("ジョブランナーを開始しました",
		slog.Duration("start_delay", r.cfg.StartDelay),
		slog.Duration("poll_interval", r.cfg.PollInterval),
		slog.Int("max_concurrent", r.cfg.MaxConcurrent),
	)

	if !sleep(ctx, r.cfg.StartDelay) {
		r.logger.Info("ジョブランナーを停止しました")
		return
	}

	for {
		dispatched, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("ジョブの取得に失敗しました",
				slog.String("error", err.Error()),
			)
		}
		if dispatched {
			continue
		}
		if !sleep(ctx, r.cfg.PollInterval) {
			r.logger.Info("ジョブランナーを停止しました")
			return
		}
	}
}

// RunOnce は最も古い待機中ジョブを1件取り出し、processingに遷移させてからgoroutineで実行する。
// 実行枠が空くまでブロックする。ジョブを取り出した場合はtrueを返す。
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	j, err := r.claim(ctx)
	if err != nil || j == nil {
		<-r.sem
		return false, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.sem }()
		r.execute(ctx, j)
	}()
	return true, nil
}

// Wait は実行中のジョブがすべて終了するまで待つ。
func (r *Runner) Wait() {
	r.wg.Wait()
}

// claim は待機中ジョブを取り出してprocessingにする。
// 他の消費者が先に開始していた場合は二重処理の兆候としてエラーを返す。
func (r *Runner) claim(ctx context.Context) (*model.Job, error) {
	next, err := r.jobs.NextAwaiting(ctx)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, nil
	}

	started, err := r.jobs.Start(ctx, next.ID)
	if errors.Is(err, job.ErrInvalidTransition) {
		return nil, fmt.Errorf("ジョブ %s (%s) の開始が他の消費者と競合しました: %w", next.ID, next.Status, err)
	}
	if err != nil {
		return nil, err
	}
	return started, nil
}

// execute はジョブを実行し、結果に応じてsuccessまたはfailedで完了させる。
func (r *Runner) execute(ctx context.Context, j *model.Job) {
	ctx = logger.Ctx(ctx,
		slog.String("job_id", j.ID),
		slog.String("action", string(j.Action)),
		slog.String("podcast_id", j.PodcastID),
		slog.Int("episode_number", j.EpisodeNumber),
	)
	start := time.Now()
	if r.metrics != nil {
		r.metrics.RecordJobStarted(string(j.Action))
	}
	r.logger.InfoContext(ctx, "ジョブを開始しました")

	status := model.JobStatusSuccess
	if err := r.dispatch(ctx, j); err != nil {
		status = model.JobStatusFailed
		r.logger.ErrorContext(ctx, "ジョブが失敗しました",
			slog.String("error", err.Error()),
		)
	}

	// シャットダウン中でも最終状態は記録する
	if _, err := r.jobs.Complete(context.WithoutCancel(ctx), j.ID, status); err != nil {
		r.logger.ErrorContext(ctx, "ジョブの完了に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	duration := time.Since(start)
	if r.metrics != nil {
		r.metrics.RecordJobFinished(string(j.Action), string(status), duration)
	}
	r.logger.InfoContext(ctx, "ジョブが終了しました",
		slog.String("status", string(status)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
}

func (r *Runner) dispatch(ctx context.Context, j *model.Job) error {
	ep, err := r.episodes.FindByNumber(ctx, j.PodcastID, j.EpisodeNumber)
	if err != nil {
		return fmt.Errorf("エピソードの取得に失敗しました: %w", err)
	}
	if ep == nil {
		return model.NewEpisodeNotFoundError(j.PodcastID, j.EpisodeNumber)
	}

	switch j.Action {
	case model.JobActionTranscribe:
		_, err = r.worker.Transcribe(ctx, j.PodcastID, j.EpisodeNumber)
	case model.JobActionSummarize:
		_, err = r.worker.Summarize(ctx, j.PodcastID, j.EpisodeNumber)
	case model.JobActionChat:
		_, err = r.worker.EnableChat(ctx, j.PodcastID, j.EpisodeNumber)
	default:
		err = model.NewInvalidJobActionError(string(j.Action))
	}
	return err
}

// sleep はdだけ待つ。コンテキストがキャンセルされた場合はfalseを返す。
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
