package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/podscribe/internal/model"
)

// PostgresImageRepo はPostgreSQLを使用したポッドキャスト画像キャッシュリポジトリ。
type PostgresImageRepo struct {
	db *sql.DB
}

// NewPostgresImageRepo はPostgresImageRepoを生成する。
func NewPostgresImageRepo(db *sql.DB) *PostgresImageRepo {
	return &PostgresImageRepo{db: db}
}

// FindByPodcastID は画像を取得する。見つからない場合はnilを返す。
func (r *PostgresImageRepo) FindByPodcastID(ctx context.Context, podcastID string) (*model.PodcastImage, error) {
	img := &model.PodcastImage{}
	err := r.db.QueryRowContext(ctx,
		`SELECT podcast_id, image_url, content, mime_type, created_at
		 FROM podcast_images WHERE podcast_id = $1`,
		podcastID,
	).Scan(&img.PodcastID, &img.ImageURL, &img.Content, &img.MimeType, &img.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("画像の取得に失敗しました: %w", err)
	}
	return img, nil
}

// Save は画像を保存する。既存の画像は置き換える。
func (r *PostgresImageRepo) Save(ctx context.Context, img *model.PodcastImage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO podcast_images (podcast_id, image_url, content, mime_type, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (podcast_id) DO UPDATE SET
		    image_url = EXCLUDED.image_url,
		    content = EXCLUDED.content,
		    mime_type = EXCLUDED.mime_type,
		    created_at = EXCLUDED.created_at`,
		img.PodcastID, img.ImageURL, img.Content, img.MimeType, img.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("画像の保存に失敗しました: %w", err)
	}
	return nil
}

// DeleteCreatedBefore は指定日時より前にキャッシュされた画像を削除する。
func (r *PostgresImageRepo) DeleteCreatedBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM podcast_images WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("期限切れ画像の削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

var _ ImageRepository = (*PostgresImageRepo)(nil)
