package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/podscribe/internal/model"
)

const episodeColumns = `podcast_id, episode_number, guid, title, published_at, episode_url,
	enclosure_url, enclosure_type, enclosure_length_bytes, description, summary,
	tags, explicit, duration_seconds, duration_text, created_at`

// PostgresEpisodeRepo はPostgreSQLを使用したエピソードリポジトリ。
type PostgresEpisodeRepo struct {
	db *sql.DB
}

// NewPostgresEpisodeRepo はPostgresEpisodeRepoを生成する。
func NewPostgresEpisodeRepo(db *sql.DB) *PostgresEpisodeRepo {
	return &PostgresEpisodeRepo{db: db}
}

func scanEpisode(row rowScanner) (*model.Episode, error) {
	e := &model.Episode{}
	var episodeURL, description, summary, durationText sql.NullString
	var tags []string

	err := row.Scan(
		&e.PodcastID, &e.EpisodeNumber, &e.GUID, &e.Title, &e.PublishedAt, &episodeURL,
		&e.EnclosureURL, &e.EnclosureType, &e.EnclosureLengthBytes, &description, &summary,
		pq.Array(&tags), &e.Explicit, &e.DurationSeconds, &durationText, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.EpisodeURL = nullStringValue(episodeURL)
	e.Description = nullStringValue(description)
	e.Summary = nullStringValue(summary)
	e.DurationText = nullStringValue(durationText)
	e.Tags = tags
	return e, nil
}

// FindByNumber は (podcastID, episodeNumber) でエピソードを取得する。見つからない場合はnilを返す。
func (r *PostgresEpisodeRepo) FindByNumber(ctx context.Context, podcastID string, episodeNumber int) (*model.Episode, error) {
	e, err := scanEpisode(r.db.QueryRowContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE podcast_id = $1 AND episode_number = $2`,
		podcastID, episodeNumber,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("エピソードの取得に失敗しました: %w", err)
	}
	return e, nil
}

// FindByGUID はGUIDでエピソードを取得する。見つからない場合はnilを返す。
func (r *PostgresEpisodeRepo) FindByGUID(ctx context.Context, podcastID, guid string) (*model.Episode, error) {
	e, err := scanEpisode(r.db.QueryRowContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE podcast_id = $1 AND guid = $2`,
		podcastID, guid,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GUIDによるエピソードの取得に失敗しました: %w", err)
	}
	return e, nil
}

// FindByNumbers は指定番号のエピソードを公開日時の降順で返す。
func (r *PostgresEpisodeRepo) FindByNumbers(ctx context.Context, podcastID string, numbers []int) ([]*model.Episode, error) {
	if len(numbers) == 0 {
		return nil, nil
	}

	nums := make([]int64, len(numbers))
	for i, n := range numbers {
		nums[i] = int64(n)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes
		 WHERE podcast_id = $1 AND episode_number = ANY($2)
		 ORDER BY published_at DESC`,
		podcastID, pq.Array(nums),
	)
	if err != nil {
		return nil, fmt.Errorf("エピソードの一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectEpisodes(rows)
}

// ListByPodcast はポッドキャストのエピソードを公開日時の降順で返す。
func (r *PostgresEpisodeRepo) ListByPodcast(ctx context.Context, podcastID string, limit int) ([]*model.Episode, error) {
	query := `SELECT ` + episodeColumns + ` FROM episodes WHERE podcast_id = $1 ORDER BY published_at DESC`
	args := []any{podcastID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("エピソード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectEpisodes(rows)
}

func collectEpisodes(rows *sql.Rows) ([]*model.Episode, error) {
	var episodes []*model.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("エピソード行のスキャンに失敗しました: %w", err)
		}
		episodes = append(episodes, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("エピソード行の走査に失敗しました: %w", err)
	}
	return episodes, nil
}

// ExistingKeys は登録済みのGUIDとエピソード番号の集合を返す。
func (r *PostgresEpisodeRepo) ExistingKeys(ctx context.Context, podcastID string) (map[string]struct{}, map[int]struct{}, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT guid, episode_number FROM episodes WHERE podcast_id = $1`, podcastID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("登録済みエピソードキーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	guids := make(map[string]struct{})
	numbers := make(map[int]struct{})
	for rows.Next() {
		var guid string
		var n int
		if err := rows.Scan(&guid, &n); err != nil {
			return nil, nil, fmt.Errorf("エピソードキーのスキャンに失敗しました: %w", err)
		}
		guids[guid] = struct{}{}
		numbers[n] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("エピソードキーの走査に失敗しました: %w", err)
	}
	return guids, numbers, nil
}

// InsertBatch はエピソードを1トランザクションで一括挿入する。
// 重複キーを含む場合は全体がロールバックされる。
func (r *PostgresEpisodeRepo) InsertBatch(ctx context.Context, episodes []*model.Episode) error {
	if len(episodes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO episodes (`+episodeColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
	)
	if err != nil {
		return fmt.Errorf("エピソード挿入文の準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	for _, e := range episodes {
		tags := e.Tags
		if tags == nil {
			tags = []string{}
		}
		_, err := stmt.ExecContext(ctx,
			e.PodcastID, e.EpisodeNumber, e.GUID, e.Title, e.PublishedAt, nullString(e.EpisodeURL),
			e.EnclosureURL, e.EnclosureType, e.EnclosureLengthBytes,
			nullString(e.Description), nullString(e.Summary),
			pq.Array(tags), e.Explicit, e.DurationSeconds, nullString(e.DurationText), e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("エピソード %d の挿入に失敗しました: %w", e.EpisodeNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("エピソード一括挿入のコミットに失敗しました: %w", err)
	}
	return nil
}

var _ EpisodeRepository = (*PostgresEpisodeRepo)(nil)
