// Package auth はメールアドレスとパスワードによるユーザー登録と認証を提供する。
// セッションは署名付きCookieで保持するため、サーバー側にセッションの状態は持たない。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/podscribe/internal/model"
	"github.com/hitoshi/podscribe/internal/repository"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 8

// Hasher はパスワードのハッシュ化と検証のインターフェース。
type Hasher interface {
	Hash(password string) (string, error)
	Verify(encoded, password string) (bool, error)
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	hasher   Hasher
	logger   *slog.Logger
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, hasher Hasher, logger *slog.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		hasher:   hasher,
		logger:   logger,
		now:      time.Now,
	}
}

// NormalizeEmail はメールアドレスを小文字化し前後の空白を除去する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register はユーザーを登録する。
// メールアドレスが登録済みの場合はEMAIL_ALREADY_TAKENエラーを返す。
func (s *Service) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)

	if name == "" {
		return nil, model.NewInvalidRequestError("名前を入力してください")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, model.NewInvalidRequestError("メールアドレスの形式が正しくありません")
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("パスワードは%d文字以上にしてください", MinPasswordLength))
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailAlreadyTakenError()
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		LastLogin:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("ユーザーを登録しました",
		slog.String("user_id", user.ID),
	)
	return user, nil
}

// Authenticate はメールアドレスとパスワードでユーザーを認証し、最終ログイン日時を更新する。
// ユーザーが存在しない場合もパスワード不一致と同じエラーを返す。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.hasher.Verify(user.PasswordHash, password)
	if err != nil {
		s.logger.Error("パスワードハッシュの検証に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewInvalidCredentialsError()
	}
	if !ok {
		return nil, model.NewInvalidCredentialsError()
	}

	now := s.now()
	if err := s.userRepo.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("最終ログイン日時の更新に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		user.LastLogin = now
	}

	s.logger.Info("ユーザーがログインしました", slog.String("user_id", user.ID))
	return user, nil
}

// GetCurrentUser はセッションのユーザーIDからユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, model.NewUnauthorizedError()
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}
