// Package job はバックグラウンドジョブのライフサイクル管理を提供する。
//
// 状態遷移は awaiting -> processing -> success|failed のみで、
// unneeded は作成時に処理不要と判明した場合の終端状態。
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/podscribe/internal/model"
	"github.com/hitoshi/podscribe/internal/repository"
)

var (
	// ErrJobNotFound は指定IDのジョブが存在しない場合のエラー。
	ErrJobNotFound = errors.New("ジョブが見つかりません")
	// ErrInvalidTransition は現在の状態から要求された状態へ遷移できない場合のエラー。
	ErrInvalidTransition = errors.New("ジョブの状態遷移が不正です")
)

// CompletionChecker はジョブの処理対象が既に完了しているかを判定する。
type CompletionChecker interface {
	AlreadyDone(ctx context.Context, action model.JobAction, podcastID string, episodeNumber int) (bool, error)
}

// Service はジョブの作成と状態遷移を扱う。
type Service struct {
	jobs     repository.JobRepository
	episodes repository.EpisodeRepository
	checker  CompletionChecker
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。checkerはnilでもよい。
func NewService(
	jobs repository.JobRepository,
	episodes repository.EpisodeRepository,
	checker CompletionChecker,
	logger *slog.Logger,
) *Service {
	return &Service{
		jobs:     jobs,
		episodes: episodes,
		checker:  checker,
		logger:   logger,
		now:      time.Now,
	}
}

// Create はawaiting状態のジョブを作成する。
// 対象が既に処理済みの場合はunneededとして作成し、ワーカーには渡さない。
func (s *Service) Create(ctx context.Context, action model.JobAction, podcastID string, episodeNumber int) (*model.Job, error) {
	if !action.Valid() {
		return nil, model.NewInvalidJobActionError(string(action))
	}

	ep, err := s.episodes.FindByNumber(ctx, podcastID, episodeNumber)
	if err != nil {
		return nil, fmt.Errorf("エピソードの取得に失敗しました: %w", err)
	}
	if ep == nil {
		return nil, model.NewEpisodeNotFoundError(podcastID, episodeNumber)
	}

	j := &model.Job{
		ID:            uuid.New().String(),
		Action:        action,
		PodcastID:     podcastID,
		EpisodeNumber: episodeNumber,
		Status:        model.JobStatusAwaiting,
		CreatedAt:     s.now(),
	}
	if err := s.jobs.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("ジョブの作成に失敗しました: %w", err)
	}

	s.logger.Info("ジョブを作成しました",
		slog.String("job_id", j.ID),
		slog.String("action", string(action)),
		slog.String("podcast_id", podcastID),
		slog.Int("episode_number", episodeNumber),
	)

	if s.checker == nil {
		return j, nil
	}
	done, err := s.checker.AlreadyDone(ctx, action, podcastID, episodeNumber)
	if err != nil {
		s.logger.Warn("処理済みかどうかの確認に失敗しました",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return j, nil
	}
	if !done {
		return j, nil
	}
	return s.transition(ctx, j.ID, model.JobStatusAwaiting, model.JobStatusUnneeded)
}

// Get は指定IDのジョブを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Job, error) {
	j, err := s.jobs.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ジョブの取得に失敗しました: %w", err)
	}
	if j == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j, nil
}

// IsFinished はジョブが終端状態に到達したかを返す。存在しないジョブはfalse。
func (s *Service) IsFinished(ctx context.Context, id string) (bool, error) {
	j, err := s.Get(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return j.IsFinished, nil
}

// NextAwaiting は最も古いawaitingのジョブを返す。ない場合はnil。
func (s *Service) NextAwaiting(ctx context.Context) (*model.Job, error) {
	j, err := s.jobs.OldestAwaiting(ctx)
	if err != nil {
		return nil, fmt.Errorf("待機中ジョブの取得に失敗しました: %w", err)
	}
	return j, nil
}

// Start はawaitingのジョブをprocessingへ遷移させ、開始日時を記録する。
func (s *Service) Start(ctx context.Context, id string) (*model.Job, error) {
	return s.transition(ctx, id, model.JobStatusAwaiting, model.JobStatusProcessing)
}

// Complete はprocessingのジョブをsuccessまたはfailedへ遷移させ、完了日時を記録する。
func (s *Service) Complete(ctx context.Context, id string, status model.JobStatus) (*model.Job, error) {
	if status != model.JobStatusSuccess && status != model.JobStatusFailed {
		return nil, fmt.Errorf("%w: 完了状態として %s は指定できません", ErrInvalidTransition, status)
	}
	return s.transition(ctx, id, model.JobStatusProcessing, status)
}

// transition は現在の状態がfromの場合のみtoへ遷移させる。
// 比較と更新は1つのUPDATE文で行われるため、同じジョブを2つのワーカーが開始することはない。
func (s *Service) transition(ctx context.Context, id string, from, to model.JobStatus) (*model.Job, error) {
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	j, err := s.jobs.Transition(ctx, id, from, to, s.now())
	if err != nil {
		return nil, fmt.Errorf("ジョブ状態の更新に失敗しました: %w", err)
	}
	if j != nil {
		return j, nil
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: ジョブ %s は %s のため %s にできません", ErrInvalidTransition, id, current.Status, to)
}

// PurgeExpired はretentionより前に作成されたジョブを削除し、削除件数を返す。
func (s *Service) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.jobs.DeleteCreatedBefore(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("期限切れジョブの削除に失敗しました: %w", err)
	}
	return n, nil
}
