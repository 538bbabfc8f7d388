package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/podscribe/internal/model"
)

const jobColumns = `id, action, podcast_id, episode_number, status, is_finished, created_at, started_at, finished_at`

// PostgresJobRepo はPostgreSQLを使用したジョブリポジトリ。
type PostgresJobRepo struct {
	db *sql.DB
}

// NewPostgresJobRepo はPostgresJobRepoを生成する。
func NewPostgresJobRepo(db *sql.DB) *PostgresJobRepo {
	return &PostgresJobRepo{db: db}
}

func scanJob(row rowScanner) (*model.Job, error) {
	j := &model.Job{}
	var action, status string
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&j.ID, &action, &j.PodcastID, &j.EpisodeNumber, &status, &j.IsFinished,
		&j.CreatedAt, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}

	j.Action = model.JobAction(action)
	j.Status = model.JobStatus(status)
	j.StartedAt = nullTimePtr(startedAt)
	j.FinishedAt = nullTimePtr(finishedAt)
	return j, nil
}

// Create はジョブを作成する。
func (r *PostgresJobRepo) Create(ctx context.Context, job *model.Job) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, string(job.Action), job.PodcastID, job.EpisodeNumber, string(job.Status),
		job.IsFinished, job.CreatedAt, job.StartedAt, job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("ジョブの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDのジョブを取得する。見つからない場合はnilを返す。
func (r *PostgresJobRepo) FindByID(ctx context.Context, id string) (*model.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ジョブの取得に失敗しました: %w", err)
	}
	return j, nil
}

// OldestAwaiting は作成日時が最も古いawaitingのジョブを返す。ない場合はnilを返す。
func (r *PostgresJobRepo) OldestAwaiting(ctx context.Context) (*model.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY created_at, id LIMIT 1`,
		string(model.JobStatusAwaiting),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("待機中ジョブの取得に失敗しました: %w", err)
	}
	return j, nil
}

// Transition は現在の状態がfromの場合のみtoへ遷移させる。
// processingへの遷移ではstarted_atを、終端状態への遷移ではfinished_atとis_finishedを設定する。
// 状態が一致せず更新されなかった場合はnilを返す。
func (r *PostgresJobRepo) Transition(ctx context.Context, id string, from, to model.JobStatus, at time.Time) (*model.Job, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx,
		`UPDATE jobs SET
		    status = $3,
		    started_at = CASE WHEN $3 = 'processing' THEN $4 ELSE started_at END,
		    finished_at = CASE WHEN $5 THEN $4 ELSE finished_at END,
		    is_finished = $5
		 WHERE id = $1 AND status = $2
		 RETURNING `+jobColumns,
		id, string(from), string(to), at, to.IsTerminal(),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ジョブの状態更新に失敗しました: %w", err)
	}
	return j, nil
}

// DeleteCreatedBefore は指定日時より前に作成されたジョブを削除する。
func (r *PostgresJobRepo) DeleteCreatedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("期限切れジョブの削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// nullTimePtr はsql.NullTimeを*time.Timeに変換する。
func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

var _ JobRepository = (*PostgresJobRepo)(nil)
