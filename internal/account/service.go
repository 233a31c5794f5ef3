// Package account はマルチテナントのアカウント管理と招待のドメインロジックを提供する。
package account

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hkawano/voicedojo/internal/mailer"
	"github.com/hkawano/voicedojo/internal/metrics"
	"github.com/hkawano/voicedojo/internal/model"
	"github.com/hkawano/voicedojo/internal/repository"
)

// InvitationSender は招待メールの送信インターフェース。
type InvitationSender interface {
	SendInvitation(ctx context.Context, inv mailer.Invitation) error
}

// ServiceConfig はアカウントサービスの設定。
type ServiceConfig struct {
	InvitationTTL time.Duration // 招待の有効期間
}

// Service はアカウント管理のサービス層。
// アカウントの一覧・作成・切り替え、招待の発行・受諾を提供する。
type Service struct {
	accountRepo    repository.AccountRepository
	invitationRepo repository.InvitationRepository
	profileRepo    repository.ProfileRepository
	sender         InvitationSender
	collector      metrics.MetricsCollector
	config         ServiceConfig
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	accountRepo repository.AccountRepository,
	invitationRepo repository.InvitationRepository,
	profileRepo repository.ProfileRepository,
	sender InvitationSender,
	collector metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	return &Service{
		accountRepo:    accountRepo,
		invitationRepo: invitationRepo,
		profileRepo:    profileRepo,
		sender:         sender,
		collector:      collector,
		config:         config,
	}
}

// List はユーザーが所属するアカウントの一覧を役割付きで返す。
func (s *Service) List(ctx context.Context, userID string) ([]model.AccountWithRole, error) {
	accounts, err := s.accountRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("アカウント一覧の取得に失敗しました: %w", err)
	}
	return accounts, nil
}

// Create は新しいアカウントを作成し、作成者を管理者として登録する。
func (s *Service) Create(ctx context.Context, userID, name string) (*model.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("account name is required")
	}

	now := time.Now()
	account := &model.Account{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
	}
	if err := s.accountRepo.CreateWithAdmin(ctx, account, userID); err != nil {
		return nil, fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}

	slog.Info("アカウントを作成しました",
		slog.String("account_id", account.ID),
		slog.String("user_id", userID),
	)
	return account, nil
}

// Switch は現在のアカウントを切り替える。
// 非メンバーのアカウントへの切り替えは拒否され、現在のアカウントは変更されない。
func (s *Service) Switch(ctx context.Context, userID, accountID string) error {
	_, isMember, err := s.accountRepo.MemberRole(ctx, accountID, userID)
	if err != nil {
		return fmt.Errorf("メンバーシップの確認に失敗しました: %w", err)
	}
	if !isMember {
		return model.NewNotAMemberError()
	}

	if err := s.profileRepo.UpdateCurrentAccount(ctx, userID, accountID); err != nil {
		return fmt.Errorf("現在のアカウントの更新に失敗しました: %w", err)
	}
	return nil
}

// CreateInvitation は招待を発行し、招待メールを送信する。
// 招待の発行は管理者のみ可能。メール送信に失敗した場合でも招待レコードは
// 残り、エラーを返す（再送は呼び出し元の明示的な操作による）。
func (s *Service) CreateInvitation(ctx context.Context, userID, accountID, email string) (*model.Invitation, error) {
	role, isMember, err := s.accountRepo.MemberRole(ctx, accountID, userID)
	if err != nil {
		return nil, fmt.Errorf("メンバーシップの確認に失敗しました: %w", err)
	}
	if !isMember {
		return nil, model.NewNotAMemberError()
	}
	if role != model.MemberRoleAdmin {
		return nil, model.NewAdminRequiredError()
	}

	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError(accountID)
	}

	now := time.Now()
	invitation := &model.Invitation{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		InvitedBy: userID,
		Status:    model.InvitationStatusPending,
		ExpiresAt: now.Add(s.config.InvitationTTL),
		CreatedAt: now,
	}
	if err := s.invitationRepo.Create(ctx, invitation); err != nil {
		return nil, fmt.Errorf("招待の作成に失敗しました: %w", err)
	}

	if err := s.sender.SendInvitation(ctx, mailer.Invitation{
		InvitationID: invitation.ID,
		AccountName:  account.Name,
		InviteeEmail: invitation.Email,
	}); err != nil {
		slog.Error("招待メールの送信に失敗しました",
			slog.String("invitation_id", invitation.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewEmailSendFailedError()
	}

	s.collector.RecordInvitationSent()
	slog.Info("招待を発行しました",
		slog.String("invitation_id", invitation.ID),
		slog.String("account_id", accountID),
	)
	return invitation, nil
}

// AcceptInvitation は招待を受諾し、ユーザーをアカウントのメンバーに追加する。
// 受諾処理は単一トランザクションで行われ、期限切れ・受諾済みの招待は拒否される。
func (s *Service) AcceptInvitation(ctx context.Context, userID, invitationID string) (*model.Invitation, error) {
	invitation, err := s.invitationRepo.FindByID(ctx, invitationID)
	if err != nil {
		return nil, fmt.Errorf("招待の検索に失敗しました: %w", err)
	}
	if invitation == nil {
		return nil, model.NewInvitationNotFoundError(invitationID)
	}

	ok, err := s.invitationRepo.Accept(ctx, invitationID, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("招待の受諾に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewInvitationInvalidError()
	}

	slog.Info("招待が受諾されました",
		slog.String("invitation_id", invitationID),
		slog.String("user_id", userID),
	)

	return s.invitationRepo.FindByID(ctx, invitationID)
}
