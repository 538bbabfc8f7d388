package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/podscribe/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where string, arg any) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at, last_login FROM users WHERE `+where,
		arg,
	).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.LastLogin)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `id = $1`, id)
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, `email = $1`, email)
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at, last_login)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt, user.LastLogin,
	)
	if err != nil {
		return fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	return nil
}

// TouchLastLogin は最終ログイン日時を更新する。
func (r *PostgresUserRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("最終ログイン日時の更新に失敗しました: %w", err)
	}
	return nil
}

// Follow はポッドキャストをフォローする。既にフォロー済みの場合は何もしない。
func (r *PostgresUserRepo) Follow(ctx context.Context, userID, podcastID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_follows (user_id, podcast_id) VALUES ($1, $2)
		 ON CONFLICT (user_id, podcast_id) DO NOTHING`,
		userID, podcastID,
	)
	if err != nil {
		return fmt.Errorf("フォローに失敗しました: %w", err)
	}
	return nil
}

// Unfollow はフォローを解除する。
func (r *PostgresUserRepo) Unfollow(ctx context.Context, userID, podcastID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_follows WHERE user_id = $1 AND podcast_id = $2`,
		userID, podcastID,
	)
	if err != nil {
		return fmt.Errorf("フォロー解除に失敗しました: %w", err)
	}
	return nil
}

// FollowedPodcastIDs はフォロー中のポッドキャストIDをフォロー日時順で返す。
func (r *PostgresUserRepo) FollowedPodcastIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT podcast_id FROM user_follows WHERE user_id = $1 ORDER BY created_at`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("フォロー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("フォロー行のスキャンに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フォロー行の走査に失敗しました: %w", err)
	}
	return ids, nil
}

var _ UserRepository = (*PostgresUserRepo)(nil)
