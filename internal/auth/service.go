// Package auth はパスワード認証とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/hkawano/voicedojo/internal/model"
	"github.com/hkawano/voicedojo/internal/repository"
)

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 8

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// CurrentUserInfo はセッションから解決した現在のユーザー情報。
type CurrentUserInfo struct {
	User    *model.User
	Profile *model.Profile
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	profileRepo repository.ProfileRepository
	sessionRepo repository.AuthSessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	profileRepo repository.ProfileRepository,
	sessionRepo repository.AuthSessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		profileRepo: profileRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// Register は新規ユーザーを登録し、セッションを発行する。
// usersレコードとprofilesレコードは同一トランザクションで作成される。
func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string) (*model.AuthSession, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, model.NewInvalidCredentialsError()
	}
	if len(password) < minPasswordLength {
		return nil, model.NewWeakPasswordError()
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewEmailTakenError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("パスワードハッシュの生成に失敗しました: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	profile := &model.Profile{
		UserID:    user.ID,
		FirstName: firstName,
		LastName:  lastName,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.userRepo.CreateWithProfile(ctx, user, profile); err != nil {
		// 事前チェック後に同一メールで登録が割り込んだ場合は一意制約違反になる
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("新規ユーザーを登録しました",
		slog.String("user_id", user.ID),
	)

	return s.createSession(ctx, user.ID)
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
// ユーザー不存在とパスワード不一致は同一のエラーを返す（列挙攻撃対策）。
func (s *Service) Login(ctx context.Context, email, password string) (*model.AuthSession, error) {
	email = normalizeEmail(email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}
	if user == nil {
		// ユーザー不存在でも処理時間を揃えるためハッシュ比較を実行する
		bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	slog.Info("ユーザーがログインしました",
		slog.String("user_id", user.ID),
	)

	return s.createSession(ctx, user.ID)
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	slog.Info("ユーザーがログアウトしました", slog.String("session_id", sessionID))
	return nil
}

// CurrentUser はセッションから現在のユーザーとプロフィールを取得する。
// セッションは有効だがユーザーまたはプロフィールが存在しない場合は
// 回復不能な不整合としてセッションを破棄し、セッション切れエラーを返す。
// この状態をオンボーディング未完了と解釈してはならない。
func (s *Service) CurrentUser(ctx context.Context, sessionID string) (*CurrentUserInfo, error) {
	if sessionID == "" {
		return nil, model.NewSessionExpiredError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("セッションの検索に失敗しました: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionExpiredError()
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}

	var profile *model.Profile
	if user != nil {
		profile, err = s.profileRepo.FindByUserID(ctx, session.UserID)
		if err != nil {
			return nil, fmt.Errorf("プロフィールの検索に失敗しました: %w", err)
		}
	}

	if user == nil || profile == nil {
		slog.Warn("セッションに対応するユーザーまたはプロフィールが存在しないため強制ログアウトします",
			slog.String("session_id", sessionID),
			slog.String("user_id", session.UserID),
		)
		if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
			slog.Error("不整合セッションの削除に失敗しました",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
		return nil, model.NewSessionExpiredError()
	}

	return &CurrentUserInfo{User: user, Profile: profile}, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.AuthSession, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("セッションIDの生成に失敗しました: %w", err)
	}

	session := &model.AuthSession{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("セッションの保存に失敗しました: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// normalizeEmail はメールアドレスを小文字化・トリムして正規化する。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// dummyHash はユーザー不存在時のタイミング揃え用のbcryptハッシュ。
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"
