package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/podscribe/internal/model"
)

// PostgresSearchRecordRepo はPostgreSQLを使用した検索インデックスリポジトリ。
// キーワードはTEXT[]列に保存し、GINインデックスで包含検索する。
type PostgresSearchRecordRepo struct {
	db *sql.DB
}

// NewPostgresSearchRecordRepo はPostgresSearchRecordRepoを生成する。
func NewPostgresSearchRecordRepo(db *sql.DB) *PostgresSearchRecordRepo {
	return &PostgresSearchRecordRepo{db: db}
}

// BuildDates はポッドキャストのエピソード番号ごとのインデックス構築日時を返す。
func (r *PostgresSearchRecordRepo) BuildDates(ctx context.Context, podcastID string) (map[int]time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT episode_number, created_at FROM search_records WHERE podcast_id = $1`, podcastID,
	)
	if err != nil {
		return nil, fmt.Errorf("インデックス構築日時の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	dates := make(map[int]time.Time)
	for rows.Next() {
		var n int
		var at time.Time
		if err := rows.Scan(&n, &at); err != nil {
			return nil, fmt.Errorf("インデックス構築日時のスキャンに失敗しました: %w", err)
		}
		dates[n] = at
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("インデックス構築日時の走査に失敗しました: %w", err)
	}
	return dates, nil
}

func scanSearchRecord(row rowScanner) (*model.SearchRecord, error) {
	rec := &model.SearchRecord{}
	var keywords []string
	if err := row.Scan(&rec.PodcastID, &rec.EpisodeNumber, pq.Array(&keywords), &rec.CreatedAt, &rec.EpisodeDate); err != nil {
		return nil, err
	}
	rec.Keywords = keywords
	return rec, nil
}

// Find は検索レコードを取得する。見つからない場合はnilを返す。
func (r *PostgresSearchRecordRepo) Find(ctx context.Context, podcastID string, episodeNumber int) (*model.SearchRecord, error) {
	rec, err := scanSearchRecord(r.db.QueryRowContext(ctx,
		`SELECT podcast_id, episode_number, keywords, created_at, episode_date
		 FROM search_records WHERE podcast_id = $1 AND episode_number = $2`,
		podcastID, episodeNumber,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("検索レコードの取得に失敗しました: %w", err)
	}
	return rec, nil
}

// Save は検索レコードを丸ごと置き換える。
func (r *PostgresSearchRecordRepo) Save(ctx context.Context, rec *model.SearchRecord) error {
	keywords := rec.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO search_records (podcast_id, episode_number, keywords, created_at, episode_date)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (podcast_id, episode_number) DO UPDATE SET
		    keywords = EXCLUDED.keywords,
		    created_at = EXCLUDED.created_at,
		    episode_date = EXCLUDED.episode_date`,
		rec.PodcastID, rec.EpisodeNumber, pq.Array(keywords), rec.CreatedAt, rec.EpisodeDate,
	)
	if err != nil {
		return fmt.Errorf("検索レコードの保存に失敗しました: %w", err)
	}
	return nil
}

// FindContainingAll は全キーワードを含むレコードをエピソード日時の降順で最大limit件返す。
func (r *PostgresSearchRecordRepo) FindContainingAll(ctx context.Context, keywords []string, limit int) ([]*model.SearchRecord, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT podcast_id, episode_number, keywords, created_at, episode_date
		 FROM search_records WHERE keywords @> $1
		 ORDER BY episode_date DESC LIMIT $2`,
		pq.Array(keywords), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("キーワード検索に失敗しました: %w", err)
	}
	defer rows.Close()

	var records []*model.SearchRecord
	for rows.Next() {
		rec, err := scanSearchRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("検索レコードのスキャンに失敗しました: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("検索レコードの走査に失敗しました: %w", err)
	}
	return records, nil
}

var _ SearchRecordRepository = (*PostgresSearchRecordRepo)(nil)
