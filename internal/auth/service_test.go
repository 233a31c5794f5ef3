package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hkawano/voicedojo/internal/model"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn          func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn       func(ctx context.Context, email string) (*model.User, error)
	createWithProfileFn func(ctx context.Context, user *model.User, profile *model.Profile) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}
func (m *mockUserRepo) CreateWithProfile(ctx context.Context, user *model.User, profile *model.Profile) error {
	if m.createWithProfileFn != nil {
		return m.createWithProfileFn(ctx, user, profile)
	}
	return nil
}

type mockProfileRepo struct {
	findByUserIDFn func(ctx context.Context, userID string) (*model.Profile, error)
}

func (m *mockProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return nil, nil
}
func (m *mockProfileRepo) Update(ctx context.Context, profile *model.Profile) error { return nil }
func (m *mockProfileRepo) UpdateAvatarURL(ctx context.Context, userID, avatarURL string) error {
	return nil
}
func (m *mockProfileRepo) CompleteOnboarding(ctx context.Context, userID, accountID string) error {
	return nil
}
func (m *mockProfileRepo) UpdateCurrentAccount(ctx context.Context, userID, accountID string) error {
	return nil
}

type mockSessionRepo struct {
	createFn         func(ctx context.Context, session *model.AuthSession) error
	findByIDFn       func(ctx context.Context, id string) (*model.AuthSession, error)
	deleteByIDFn     func(ctx context.Context, id string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.AuthSession) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.AuthSession, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

func newTestService(userRepo *mockUserRepo, profileRepo *mockProfileRepo, sessionRepo *mockSessionRepo) *Service {
	return NewService(userRepo, profileRepo, sessionRepo, ServiceConfig{SessionMaxAge: 3600})
}

// --- Register ---

func TestRegister(t *testing.T) {
	var createdUser *model.User
	var createdProfile *model.Profile
	var createdSession *model.AuthSession

	userRepo := &mockUserRepo{
		createWithProfileFn: func(ctx context.Context, user *model.User, profile *model.Profile) error {
			createdUser = user
			createdProfile = profile
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.AuthSession) error {
			createdSession = session
			return nil
		},
	}

	svc := newTestService(userRepo, &mockProfileRepo{}, sessionRepo)

	session, err := svc.Register(context.Background(), "Taro@Example.com", "correct-horse", "太郎", "山田")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if createdUser == nil || createdProfile == nil {
		t.Fatal("user and profile were not created")
	}
	if createdUser.Email != "taro@example.com" {
		t.Errorf("email = %q, want normalized %q", createdUser.Email, "taro@example.com")
	}
	if createdUser.PasswordHash == "correct-horse" {
		t.Error("password was stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(createdUser.PasswordHash), []byte("correct-horse")); err != nil {
		t.Errorf("stored hash does not match password: %v", err)
	}
	if createdProfile.UserID != createdUser.ID {
		t.Errorf("profile.UserID = %q, want %q", createdProfile.UserID, createdUser.ID)
	}
	if createdProfile.OnboardingCompleted {
		t.Error("OnboardingCompleted = true, want false for new user")
	}
	if session == nil || createdSession == nil {
		t.Fatal("session was not issued")
	}
	if len(session.ID) != 64 {
		t.Errorf("len(session.ID) = %d, want 64 hex chars", len(session.ID))
	}
	if session.UserID != createdUser.ID {
		t.Errorf("session.UserID = %q, want %q", session.UserID, createdUser.ID)
	}
}

func TestRegister_WeakPassword(t *testing.T) {
	svc := newTestService(&mockUserRepo{}, &mockProfileRepo{}, &mockSessionRepo{})

	_, err := svc.Register(context.Background(), "taro@example.com", "short", "太郎", "山田")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeWeakPassword {
		t.Errorf("Register() error = %v, want code %s", err, model.ErrCodeWeakPassword)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "existing", Email: email}, nil
		},
	}
	svc := newTestService(userRepo, &mockProfileRepo{}, &mockSessionRepo{})

	_, err := svc.Register(context.Background(), "taro@example.com", "correct-horse", "太郎", "山田")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmailTaken {
		t.Errorf("Register() error = %v, want code %s", err, model.ErrCodeEmailTaken)
	}
}

// --- Login ---

func TestLogin(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "user-1", Email: email, PasswordHash: string(hash)}, nil
		},
	}
	svc := newTestService(userRepo, &mockProfileRepo{}, &mockSessionRepo{})

	session, err := svc.Login(context.Background(), "taro@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if session.UserID != "user-1" {
		t.Errorf("session.UserID = %q, want %q", session.UserID, "user-1")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)

	tests := []struct {
		name     string
		user     *model.User
		password string
	}{
		{
			name:     "ユーザーが存在しない",
			user:     nil,
			password: "correct-horse",
		},
		{
			name:     "パスワードが一致しない",
			user:     &model.User{ID: "user-1", PasswordHash: string(hash)},
			password: "wrong-password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userRepo := &mockUserRepo{
				findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
					return tt.user, nil
				},
			}
			svc := newTestService(userRepo, &mockProfileRepo{}, &mockSessionRepo{})

			_, err := svc.Login(context.Background(), "taro@example.com", tt.password)

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidCredentials {
				t.Errorf("Login() error = %v, want code %s", err, model.ErrCodeInvalidCredentials)
			}
		})
	}
}

// --- CurrentUser ---

func TestCurrentUser(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.AuthSession, error) {
			return &model.AuthSession{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "taro@example.com"}, nil
		},
	}
	profileRepo := &mockProfileRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.Profile, error) {
			return &model.Profile{UserID: userID, OnboardingCompleted: true}, nil
		},
	}
	svc := newTestService(userRepo, profileRepo, sessionRepo)

	info, err := svc.CurrentUser(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if info.User.ID != "user-1" {
		t.Errorf("User.ID = %q, want %q", info.User.ID, "user-1")
	}
	if !info.Profile.OnboardingCompleted {
		t.Error("Profile.OnboardingCompleted = false, want true")
	}
}

func TestCurrentUser_ExpiredSession(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.AuthSession, error) {
			return nil, nil // 期限切れはリポジトリがnilを返す
		},
	}
	svc := newTestService(&mockUserRepo{}, &mockProfileRepo{}, sessionRepo)

	_, err := svc.CurrentUser(context.Background(), "session-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeSessionExpired {
		t.Errorf("CurrentUser() error = %v, want code %s", err, model.ErrCodeSessionExpired)
	}
}

// プロフィール行が存在しないセッションは回復不能としてセッション自体を破棄し、
// オンボーディング未完了と混同しないことを検証する。
func TestCurrentUser_MissingProfileForcesSignOut(t *testing.T) {
	deleted := false
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.AuthSession, error) {
			return &model.AuthSession{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleted = true
			return nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id}, nil
		},
	}
	profileRepo := &mockProfileRepo{
		findByUserIDFn: func(ctx context.Context, userID string) (*model.Profile, error) {
			return nil, nil // プロフィール行なし
		},
	}
	svc := newTestService(userRepo, profileRepo, sessionRepo)

	_, err := svc.CurrentUser(context.Background(), "session-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeSessionExpired {
		t.Fatalf("CurrentUser() error = %v, want code %s", err, model.ErrCodeSessionExpired)
	}
	if !deleted {
		t.Error("inconsistent session was not deleted")
	}
}

// --- Logout ---

func TestLogout(t *testing.T) {
	var deletedID string
	sessionRepo := &mockSessionRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	svc := newTestService(&mockUserRepo{}, &mockProfileRepo{}, sessionRepo)

	if err := svc.Logout(context.Background(), "session-1"); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if deletedID != "session-1" {
		t.Errorf("deleted session = %q, want %q", deletedID, "session-1")
	}
}
