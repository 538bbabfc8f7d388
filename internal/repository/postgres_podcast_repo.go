package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/podscribe/internal/model"
)

const podcastColumns = `id, title, description, subtitle, category, image_url, website_url,
	rss_url, latest_rss_etag, latest_rss_modified, created_at, updated_at`

// PostgresPodcastRepo はPostgreSQLを使用したポッドキャストリポジトリ。
type PostgresPodcastRepo struct {
	db *sql.DB
}

// NewPostgresPodcastRepo はPostgresPodcastRepoを生成する。
func NewPostgresPodcastRepo(db *sql.DB) *PostgresPodcastRepo {
	return &PostgresPodcastRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPodcast(row rowScanner) (*model.Podcast, error) {
	p := &model.Podcast{}
	var description, subtitle, category, imageURL, websiteURL, etag, modified sql.NullString

	err := row.Scan(
		&p.ID, &p.Title, &description, &subtitle, &category, &imageURL, &websiteURL,
		&p.RSSURL, &etag, &modified, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Description = nullStringValue(description)
	p.Subtitle = nullStringValue(subtitle)
	p.Category = nullStringValue(category)
	p.ImageURL = nullStringValue(imageURL)
	p.WebsiteURL = nullStringValue(websiteURL)
	p.LatestRSSETag = nullStringValue(etag)
	p.LatestRSSModified = nullStringValue(modified)
	return p, nil
}

// FindByID は指定IDのポッドキャストを取得する。見つからない場合はnilを返す。
func (r *PostgresPodcastRepo) FindByID(ctx context.Context, id string) (*model.Podcast, error) {
	p, err := scanPodcast(r.db.QueryRowContext(ctx,
		`SELECT `+podcastColumns+` FROM podcasts WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ポッドキャストの取得に失敗しました: %w", err)
	}
	return p, nil
}

// FindByIDs は複数IDのポッドキャストをまとめて取得する。
func (r *PostgresPodcastRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Podcast, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+podcastColumns+` FROM podcasts WHERE id = ANY($1) ORDER BY title`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("ポッドキャストの一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectPodcasts(rows)
}

// FindByURL はWebサイトURLまたはRSS URLが一致するポッドキャストを取得する。
// 末尾のスラッシュは無視して比較する。
func (r *PostgresPodcastRepo) FindByURL(ctx context.Context, url string) (*model.Podcast, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(url), "/")

	p, err := scanPodcast(r.db.QueryRowContext(ctx,
		`SELECT `+podcastColumns+` FROM podcasts
		 WHERE website_url = $1 OR rss_url = $1
		 ORDER BY created_at LIMIT 1`,
		trimmed,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("URLによるポッドキャストの検索に失敗しました: %w", err)
	}
	return p, nil
}

// ListAll は全ポッドキャストをタイトル順で返す。
func (r *PostgresPodcastRepo) ListAll(ctx context.Context, limit int) ([]*model.Podcast, error) {
	if limit <= 0 {
		limit = 10000
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+podcastColumns+` FROM podcasts ORDER BY title LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ポッドキャスト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectPodcasts(rows)
}

func collectPodcasts(rows *sql.Rows) ([]*model.Podcast, error) {
	var podcasts []*model.Podcast
	for rows.Next() {
		p, err := scanPodcast(rows)
		if err != nil {
			return nil, fmt.Errorf("ポッドキャスト行のスキャンに失敗しました: %w", err)
		}
		podcasts = append(podcasts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ポッドキャスト行の走査に失敗しました: %w", err)
	}
	return podcasts, nil
}

// Upsert はIDをキーにポッドキャストを作成または更新する。
// created_atは初回作成時の値を維持する。
func (r *PostgresPodcastRepo) Upsert(ctx context.Context, p *model.Podcast) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO podcasts (`+podcastColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		    title = EXCLUDED.title,
		    description = EXCLUDED.description,
		    subtitle = EXCLUDED.subtitle,
		    category = EXCLUDED.category,
		    image_url = EXCLUDED.image_url,
		    website_url = EXCLUDED.website_url,
		    rss_url = EXCLUDED.rss_url,
		    latest_rss_etag = EXCLUDED.latest_rss_etag,
		    latest_rss_modified = EXCLUDED.latest_rss_modified,
		    updated_at = EXCLUDED.updated_at`,
		p.ID, p.Title, nullString(p.Description), nullString(p.Subtitle),
		nullString(p.Category), nullString(p.ImageURL), nullString(p.WebsiteURL),
		p.RSSURL, nullString(p.LatestRSSETag), nullString(p.LatestRSSModified),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ポッドキャストの保存に失敗しました: %w", err)
	}
	return nil
}

// UpdateFeedMarkers はフィードのETag/Last-Modifiedマーカーを更新する。
func (r *PostgresPodcastRepo) UpdateFeedMarkers(ctx context.Context, id, etag, modified string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE podcasts SET latest_rss_etag = $2, latest_rss_modified = $3, updated_at = now()
		 WHERE id = $1`,
		id, nullString(etag), nullString(modified),
	)
	if err != nil {
		return fmt.Errorf("フィードマーカーの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete はポッドキャストを削除する。
func (r *PostgresPodcastRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM podcasts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ポッドキャストの削除に失敗しました: %w", err)
	}
	return nil
}

// nullString は空文字列をNULLとして扱うsql.NullStringを返す。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

var _ PodcastRepository = (*PostgresPodcastRepo)(nil)
