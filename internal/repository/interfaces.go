// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
// 見つからない場合の検索系メソッドは (nil, nil) を返す。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/podscribe/internal/model"
)

// PodcastRepository はポッドキャストの永続化インターフェース。
type PodcastRepository interface {
	// FindByID は指定IDのポッドキャストを取得する。
	FindByID(ctx context.Context, id string) (*model.Podcast, error)
	// FindByIDs は複数IDのポッドキャストをまとめて取得する。
	FindByIDs(ctx context.Context, ids []string) ([]*model.Podcast, error)
	// FindByURL はWebサイトURLまたはRSS URLが一致するポッドキャストを取得する。
	FindByURL(ctx context.Context, url string) (*model.Podcast, error)
	// ListAll は全ポッドキャストをタイトル順で返す。
	ListAll(ctx context.Context, limit int) ([]*model.Podcast, error)
	// Upsert はIDをキーにポッドキャストを作成または更新する。
	Upsert(ctx context.Context, podcast *model.Podcast) error
	// UpdateFeedMarkers はフィードのETag/Last-Modifiedマーカーを更新する。
	UpdateFeedMarkers(ctx context.Context, id, etag, modified string) error
	// Delete はポッドキャストを削除する。エピソード等はCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// EpisodeRepository はエピソードの永続化インターフェース。
type EpisodeRepository interface {
	// FindByNumber は (podcastID, episodeNumber) でエピソードを取得する。
	FindByNumber(ctx context.Context, podcastID string, episodeNumber int) (*model.Episode, error)
	// FindByGUID はGUIDでエピソードを取得する。
	FindByGUID(ctx context.Context, podcastID, guid string) (*model.Episode, error)
	// FindByNumbers は指定番号のエピソードを公開日時の降順で返す。
	FindByNumbers(ctx context.Context, podcastID string, numbers []int) ([]*model.Episode, error)
	// ListByPodcast はポッドキャストのエピソードを公開日時の降順で返す。limitが0以下の場合は全件。
	ListByPodcast(ctx context.Context, podcastID string, limit int) ([]*model.Episode, error)
	// ExistingKeys は登録済みのGUIDとエピソード番号の集合を返す。
	ExistingKeys(ctx context.Context, podcastID string) (map[string]struct{}, map[int]struct{}, error)
	// InsertBatch はエピソードを一括挿入する。失敗時は単一のエラーを返す。
	InsertBatch(ctx context.Context, episodes []*model.Episode) error
}

// ImageRepository はポッドキャスト画像キャッシュの永続化インターフェース。
type ImageRepository interface {
	// FindByPodcastID は画像を取得する。
	FindByPodcastID(ctx context.Context, podcastID string) (*model.PodcastImage, error)
	// Save は画像を保存する（既存の場合は置き換え）。
	Save(ctx context.Context, image *model.PodcastImage) error
}

// JobRepository はバックグラウンドジョブの永続化インターフェース。
type JobRepository interface {
	// Create はジョブを作成する。
	Create(ctx context.Context, job *model.Job) error
	// FindByID は指定IDのジョブを取得する。
	FindByID(ctx context.Context, id string) (*model.Job, error)
	// OldestAwaiting は作成日時が最も古いawaitingのジョブを返す。
	OldestAwaiting(ctx context.Context) (*model.Job, error)
	// Transition は現在の状態がfromの場合のみtoへ遷移させる。
	// 遷移できた場合は更新後のジョブを、状態が一致しなかった場合はnilを返す。
	Transition(ctx context.Context, id string, from, to model.JobStatus, at time.Time) (*model.Job, error)
	// DeleteCreatedBefore は指定日時より前に作成されたジョブを削除する。
	DeleteCreatedBefore(ctx context.Context, before time.Time) (int64, error)
}

// TranscriptRepository は文字起こしの永続化インターフェース。
type TranscriptRepository interface {
	// FindByEpisode は文字起こしを単語列込みで取得する。
	FindByEpisode(ctx context.Context, podcastID string, episodeNumber int) (*model.Transcript, error)
	// UpdatedAt は文字起こしの更新日時のみを取得する。存在しない場合はnilを返す。
	UpdatedAt(ctx context.Context, podcastID string, episodeNumber int) (*time.Time, error)
	// Create は文字起こしを作成する。
	Create(ctx context.Context, transcript *model.Transcript) error
	// UpdateSummary は要約と更新日時を保存する。
	UpdateSummary(ctx context.Context, podcastID string, episodeNumber int, tldr, bullets string, at time.Time) error
}

// SearchRecordRepository は検索インデックスの永続化インターフェース。
type SearchRecordRepository interface {
	// BuildDates はポッドキャストのエピソード番号ごとのインデックス構築日時を返す。
	BuildDates(ctx context.Context, podcastID string) (map[int]time.Time, error)
	// Find は検索レコードを取得する。
	Find(ctx context.Context, podcastID string, episodeNumber int) (*model.SearchRecord, error)
	// Save は検索レコードを丸ごと置き換える。
	Save(ctx context.Context, record *model.SearchRecord) error
	// FindContainingAll は全キーワードを含むレコードをエピソード日時の降順で最大limit件返す。
	FindContainingAll(ctx context.Context, keywords []string, limit int) ([]*model.SearchRecord, error)
}

// ChatRepository はチャット履歴の永続化インターフェース。
type ChatRepository interface {
	// FindForUser は同一ユーザーの同一質問を取得する。
	FindForUser(ctx context.Context, podcastID string, episodeNumber int, prompt, question, email string) (*model.ChatQA, error)
	// FindAnswered は他ユーザーを含め、回答済みの同一質問を取得する。
	FindAnswered(ctx context.Context, podcastID string, episodeNumber int, prompt, question string) (*model.ChatQA, error)
	// Save はチャットを作成または更新する。
	Save(ctx context.Context, chat *model.ChatQA) error
}

// UserRepository はユーザーの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。
	FindByID(ctx context.Context, id string) (*model.User, error)
	// FindByEmail はメールアドレスでユーザーを取得する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error
	// TouchLastLogin は最終ログイン日時を更新する。
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
	// Follow はポッドキャストをフォローする。既にフォロー済みの場合は何もしない。
	Follow(ctx context.Context, userID, podcastID string) error
	// Unfollow はフォローを解除する。
	Unfollow(ctx context.Context, userID, podcastID string) error
	// FollowedPodcastIDs はフォロー中のポッドキャストIDを返す。
	FollowedPodcastIDs(ctx context.Context, userID string) ([]string, error)
}
