// Package profile はプロフィール管理とオンボーディングのドメインロジックを提供する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hkawano/voicedojo/internal/model"
	"github.com/hkawano/voicedojo/internal/repository"
	"github.com/hkawano/voicedojo/internal/security"
	"github.com/hkawano/voicedojo/internal/storage"
)

// UpdateInput はプロフィール更新の入力。
// CompanyWebsiteがnilの場合は既存値を維持し、空文字列の場合はクリアする。
type UpdateInput struct {
	Role           string
	FirstName      string
	LastName       string
	CompanyWebsite *string
}

// OnboardingInput はオンボーディング完了の入力。
type OnboardingInput struct {
	Role           string
	FirstName      string
	LastName       string
	CompanyWebsite *string
	AccountName    string
}

// OnboardingResult はオンボーディング完了の結果。
type OnboardingResult struct {
	Profile *model.Profile
	Account *model.Account
}

// ServiceConfig はプロフィールサービスの設定。
type ServiceConfig struct {
	AvatarMaxSize int64 // アバター画像の最大バイト数
}

// Service はプロフィール管理のサービス層。
// プロフィールの取得・更新、オンボーディング完了、アバターアップロードを提供する。
type Service struct {
	profileRepo repository.ProfileRepository
	accountRepo repository.AccountRepository
	urlGuard    security.URLGuardService
	store       storage.AvatarStoreService
	config      ServiceConfig
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	profileRepo repository.ProfileRepository,
	accountRepo repository.AccountRepository,
	urlGuard security.URLGuardService,
	store storage.AvatarStoreService,
	config ServiceConfig,
) *Service {
	return &Service{
		profileRepo: profileRepo,
		accountRepo: accountRepo,
		urlGuard:    urlGuard,
		store:       store,
		config:      config,
	}
}

// Get はユーザーのプロフィールを取得する。
func (s *Service) Get(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewSessionExpiredError()
	}
	return profile, nil
}

// Update はプロフィールを更新する。
// 会社ウェブサイトURLは保存前に検証され、不正なURLや内部ネットワークを
// 指すURLは拒否される。
func (s *Service) Update(ctx context.Context, userID string, input UpdateInput) (*model.Profile, error) {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	website, err := s.resolveWebsite(profile.CompanyWebsite, input.CompanyWebsite)
	if err != nil {
		return nil, err
	}

	profile.Role = input.Role
	profile.FirstName = input.FirstName
	profile.LastName = input.LastName
	profile.CompanyWebsite = website

	if err := s.profileRepo.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	return s.Get(ctx, userID)
}

// CompleteOnboarding はオンボーディングを完了させる。
// 処理順序は固定: プロフィール更新 → アカウント作成（本人が管理者）→ 完了フラグ設定。
// 完了フラグの設定は最後に行い、途中で失敗した場合は未完了のまま残る。
func (s *Service) CompleteOnboarding(ctx context.Context, userID string, input OnboardingInput) (*OnboardingResult, error) {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.OnboardingCompleted {
		// 完了済みの再実行は現在の状態をそのまま返す
		result := &OnboardingResult{Profile: profile}
		if profile.CurrentAccountID != nil {
			account, err := s.accountRepo.FindByID(ctx, *profile.CurrentAccountID)
			if err != nil {
				return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
			}
			result.Account = account
		}
		return result, nil
	}

	website, err := s.resolveWebsite(profile.CompanyWebsite, input.CompanyWebsite)
	if err != nil {
		return nil, err
	}

	profile.Role = input.Role
	profile.FirstName = input.FirstName
	profile.LastName = input.LastName
	profile.CompanyWebsite = website

	if err := s.profileRepo.Update(ctx, profile); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	now := time.Now()
	account := &model.Account{
		ID:        uuid.New().String(),
		Name:      input.AccountName,
		CreatedAt: now,
	}
	if err := s.accountRepo.CreateWithAdmin(ctx, account, userID); err != nil {
		return nil, fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}

	if err := s.profileRepo.CompleteOnboarding(ctx, userID, account.ID); err != nil {
		return nil, fmt.Errorf("オンボーディング完了フラグの設定に失敗しました: %w", err)
	}

	slog.Info("オンボーディングが完了しました",
		slog.String("user_id", userID),
		slog.String("account_id", account.ID),
	)

	updated, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &OnboardingResult{Profile: updated, Account: account}, nil
}

// UploadAvatar はアバター画像を保存し、プロフィールのアバターURLを更新する。
// 旧ファイルは削除しない（孤児ファイルとして残ることを許容し、ログのみ残す）。
func (s *Service) UploadAvatar(ctx context.Context, userID, ext string, r io.Reader) (string, error) {
	profile, err := s.Get(ctx, userID)
	if err != nil {
		return "", err
	}

	filename, err := s.store.Save(userID, ext, r)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrExtensionNotAllowed):
			return "", model.NewAvatarInvalidError()
		case errors.Is(err, storage.ErrFileTooLarge):
			return "", model.NewAvatarTooLargeError(s.config.AvatarMaxSize)
		default:
			return "", fmt.Errorf("アバターの保存に失敗しました: %w", err)
		}
	}

	avatarURL := s.store.PublicURL(filename)
	if err := s.profileRepo.UpdateAvatarURL(ctx, userID, avatarURL); err != nil {
		return "", fmt.Errorf("アバターURLの更新に失敗しました: %w", err)
	}

	if profile.AvatarURL != nil {
		slog.Info("旧アバターファイルは孤児として残ります",
			slog.String("user_id", userID),
			slog.String("old_avatar_url", *profile.AvatarURL),
		)
	}

	return avatarURL, nil
}

// resolveWebsite は会社ウェブサイトURLの入力を解決し検証する。
// input=nil: 既存値を維持。input=空文字列: クリア。それ以外: 検証して採用。
func (s *Service) resolveWebsite(current *string, input *string) (*string, error) {
	if input == nil {
		return current, nil
	}
	if *input == "" {
		return nil, nil
	}

	if err := s.urlGuard.ValidateWebsiteURL(*input); err != nil {
		if errors.Is(err, security.ErrURLBlocked) {
			return nil, model.NewWebsiteURLBlockedError()
		}
		return nil, model.NewWebsiteURLInvalidError(err.Error())
	}
	return input, nil
}
