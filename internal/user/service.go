// Package user はユーザーごとのポッドキャストのフォロー管理を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hitoshi/podscribe/internal/model"
	"github.com/hitoshi/podscribe/internal/repository"
)

// Service はフォロー管理のサービス層。
type Service struct {
	userRepo    repository.UserRepository
	podcastRepo repository.PodcastRepository
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	podcastRepo repository.PodcastRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		userRepo:    userRepo,
		podcastRepo: podcastRepo,
		logger:      logger,
	}
}

// Follow はポッドキャストをフォローする。既にフォロー済みの場合も成功する。
func (s *Service) Follow(ctx context.Context, userID, podcastID string) error {
	if err := s.requireUser(ctx, userID); err != nil {
		return err
	}
	p, err := s.podcastRepo.FindByID(ctx, podcastID)
	if err != nil {
		return fmt.Errorf("ポッドキャストの取得に失敗しました: %w", err)
	}
	if p == nil {
		return model.NewPodcastNotFoundError(podcastID)
	}

	if err := s.userRepo.Follow(ctx, userID, podcastID); err != nil {
		return err
	}
	s.logger.Info("ポッドキャストをフォローしました",
		slog.String("user_id", userID),
		slog.String("podcast_id", podcastID),
	)
	return nil
}

// Unfollow はフォローを解除する。フォローしていない場合も成功する。
func (s *Service) Unfollow(ctx context.Context, userID, podcastID string) error {
	if err := s.requireUser(ctx, userID); err != nil {
		return err
	}
	if err := s.userRepo.Unfollow(ctx, userID, podcastID); err != nil {
		return err
	}
	s.logger.Info("ポッドキャストのフォローを解除しました",
		slog.String("user_id", userID),
		slog.String("podcast_id", podcastID),
	)
	return nil
}

// Followed はフォロー中のポッドキャストをタイトル順で返す。
// 削除済みのポッドキャストは含まない。
func (s *Service) Followed(ctx context.Context, userID string) ([]*model.Podcast, error) {
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	ids, err := s.userRepo.FollowedPodcastIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*model.Podcast{}, nil
	}

	podcasts, err := s.podcastRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("ポッドキャストの取得に失敗しました: %w", err)
	}
	sort.SliceStable(podcasts, func(i, j int) bool {
		return strings.ToLower(podcasts[i].Title) < strings.ToLower(podcasts[j].Title)
	})
	return podcasts, nil
}

// IsFollowing はユーザーがポッドキャストをフォローしているかを返す。
func (s *Service) IsFollowing(ctx context.Context, userID, podcastID string) (bool, error) {
	ids, err := s.userRepo.FollowedPodcastIDs(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == podcastID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) requireUser(ctx context.Context, userID string) error {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return model.NewUserNotFoundError()
	}
	return nil
}
