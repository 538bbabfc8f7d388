package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/podscribe/internal/model"
)

const chatColumns = `id, podcast_id, episode_number, email, prompt, question, answer, created_at`

// PostgresChatRepo はPostgreSQLを使用したチャット履歴リポジトリ。
type PostgresChatRepo struct {
	db *sql.DB
}

// NewPostgresChatRepo はPostgresChatRepoを生成する。
func NewPostgresChatRepo(db *sql.DB) *PostgresChatRepo {
	return &PostgresChatRepo{db: db}
}

func scanChat(row rowScanner) (*model.ChatQA, error) {
	c := &model.ChatQA{}
	var answer sql.NullString
	if err := row.Scan(&c.ID, &c.PodcastID, &c.EpisodeNumber, &c.Email, &c.Prompt, &c.Question, &answer, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Answer = nullStringValue(answer)
	return c, nil
}

// FindForUser は同一ユーザーの同一質問を取得する。見つからない場合はnilを返す。
func (r *PostgresChatRepo) FindForUser(ctx context.Context, podcastID string, episodeNumber int, prompt, question, email string) (*model.ChatQA, error) {
	c, err := scanChat(r.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats
		 WHERE podcast_id = $1 AND episode_number = $2 AND prompt = $3 AND question = $4 AND email = $5
		 ORDER BY created_at DESC LIMIT 1`,
		podcastID, episodeNumber, prompt, question, email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チャット履歴の取得に失敗しました: %w", err)
	}
	return c, nil
}

// FindAnswered は他ユーザーを含め、回答済みの同一質問を取得する。見つからない場合はnilを返す。
func (r *PostgresChatRepo) FindAnswered(ctx context.Context, podcastID string, episodeNumber int, prompt, question string) (*model.ChatQA, error) {
	c, err := scanChat(r.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats
		 WHERE podcast_id = $1 AND episode_number = $2 AND prompt = $3 AND question = $4
		   AND answer IS NOT NULL AND answer <> ''
		 ORDER BY created_at DESC LIMIT 1`,
		podcastID, episodeNumber, prompt, question,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("回答済みチャットの取得に失敗しました: %w", err)
	}
	return c, nil
}

// Save はチャットを作成または更新する。
func (r *PostgresChatRepo) Save(ctx context.Context, c *model.ChatQA) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chats (`+chatColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET answer = EXCLUDED.answer`,
		c.ID, c.PodcastID, c.EpisodeNumber, c.Email, c.Prompt, c.Question,
		nullString(c.Answer), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("チャットの保存に失敗しました: %w", err)
	}
	return nil
}

var _ ChatRepository = (*PostgresChatRepo)(nil)
