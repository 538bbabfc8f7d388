// Package cleanup は保持期間を過ぎたデータの自動削除ジョブを提供する。
// 終了済みかどうかに関わらず作成から保持期間を超えたジョブと、
// 期限切れのカバー画像キャッシュを日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// JobPurger は期限切れジョブを削除するインターフェース。job.Serviceが実装する。
type JobPurger interface {
	PurgeExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// ImageCachePurger はメモリ上の画像キャッシュを破棄するインターフェース。
type ImageCachePurger interface {
	Purge()
}

// CleanupJob は保持期間を超過したジョブと画像キャッシュの自動削除ジョブ。
// 冪等で、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	db     Executor
	jobs   JobPurger
	images ImageCachePurger
	logger *slog.Logger

	JobRetention time.Duration // ジョブの保持期間（デフォルト: 7日）
	ImageMaxAge  time.Duration // カバー画像の保持期間（デフォルト: 7日）
}

// NewCleanupJob は新しいCleanupJobを生成する。imagesはnilでもよい。
func NewCleanupJob(db Executor, jobs JobPurger, images ImageCachePurger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:           db,
		jobs:         jobs,
		images:       images,
		logger:       logger,
		JobRetention: 7 * 24 * time.Hour,
		ImageMaxAge:  7 * 24 * time.Hour,
	}
}

// Start は指定間隔でRunを実行する。起動直後に1回実行する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := j.Run(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("クリーンアップの実行に失敗しました",
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Run は期限切れのジョブとカバー画像を削除する。
// 片方が失敗してももう片方は実行し、失敗をまとめて返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	jobsDeleted, jobErr := j.jobs.PurgeExpired(ctx, j.JobRetention)
	if jobErr != nil {
		j.logger.Error("ジョブのクリーンアップに失敗しました",
			slog.String("error", jobErr.Error()),
			slog.Duration("retention", j.JobRetention),
		)
	}

	imagesDeleted, imageErr := j.purgeImages(ctx)
	if imageErr != nil {
		j.logger.Error("カバー画像のクリーンアップに失敗しました",
			slog.String("error", imageErr.Error()),
			slog.Duration("max_age", j.ImageMaxAge),
		)
	}

	if err := errors.Join(jobErr, imageErr); err != nil {
		return err
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_jobs", jobsDeleted),
		slog.Int64("deleted_images", imagesDeleted),
		slog.Int("retention_days", int(j.JobRetention/(24*time.Hour))),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

func (j *CleanupJob) purgeImages(ctx context.Context) (int64, error) {
	interval := fmt.Sprintf("%d seconds", int64(j.ImageMaxAge.Seconds()))

	query := `DELETE FROM podcast_images WHERE created_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		return 0, fmt.Errorf("カバー画像の削除に失敗しました: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}

	if j.images != nil {
		j.images.Purge()
	}
	return deleted, nil
}
