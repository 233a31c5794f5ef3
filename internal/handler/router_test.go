package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hkawano/voicedojo/internal/middleware"
	"github.com/hkawano/voicedojo/internal/model"
	"github.com/hkawano/voicedojo/internal/profile"
)

// --- モック定義 ---

type mockSessionFinder struct {
	sessions map[string]*model.AuthSession
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.AuthSession, error) {
	return m.sessions[id], nil
}

type mockProfileFinder struct {
	profiles map[string]*model.Profile
}

func (m *mockProfileFinder) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	return m.profiles[userID], nil
}

func newTestRouter(t *testing.T, sessions *mockSessionFinder, profiles *mockProfileFinder) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	hub := newTestHub()
	t.Cleanup(hub.Close)

	return NewRouter(&RouterDeps{
		SessionFinder:     sessions,
		ProfileFinder:     profiles,
		CORSAllowedOrigin: "http://localhost:3000",
		CSRFConfig:        middleware.CSRFConfig{CookieSecure: false},
		RateLimiter:       rl,
		Logger:            newTestLogger(),
		AuthService:       &mockAuthService{},
		AuthConfig:        testAuthConfig(),
		ProfileService: &mockProfileService{
			getFn: func(ctx context.Context, userID string) (*model.Profile, error) {
				return &model.Profile{UserID: userID}, nil
			},
			updateFn: func(ctx context.Context, userID string, input profile.UpdateInput) (*model.Profile, error) {
				return &model.Profile{UserID: userID, Role: input.Role}, nil
			},
		},
		AccountService: &mockAccountService{
			listFn: func(ctx context.Context, userID string) ([]model.AccountWithRole, error) {
				return []model.AccountWithRole{}, nil
			},
		},
		RoleplayService: &mockRoleplayService{},
		FavoriteService: &mockFavoriteService{},
		Hub:             hub,
		AvatarStore:     newTestAvatarStore(t),
	})
}

func validSession(userID string) *model.AuthSession {
	return &model.AuthSession{
		ID:        "valid-session",
		UserID:    userID,
		ExpiresAt: time.Now().Add(1 * time.Hour),
	}
}

// --- テスト ---

func TestRouter_Health_IsPublic(t *testing.T) {
	router := newTestRouter(t,
		&mockSessionFinder{sessions: map[string]*model.AuthSession{}},
		&mockProfileFinder{profiles: map[string]*model.Profile{}},
	)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_CSRFToken_IsPublic(t *testing.T) {
	router := newTestRouter(t,
		&mockSessionFinder{sessions: map[string]*model.AuthSession{}},
		&mockProfileFinder{profiles: map[string]*model.Profile{}},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_Profile_RequiresSession(t *testing.T) {
	router := newTestRouter(t,
		&mockSessionFinder{sessions: map[string]*model.AuthSession{}},
		&mockProfileFinder{profiles: map[string]*model.Profile{}},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRouter_Profile_AccessibleBeforeOnboarding(t *testing.T) {
	router := newTestRouter(t,
		&mockSessionFinder{sessions: map[string]*model.AuthSession{
			"valid-session": validSession("user-1"),
		}},
		&mockProfileFinder{profiles: map[string]*model.Profile{
			"user-1": {UserID: "user-1", OnboardingCompleted: false},
		}},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRouter_Accounts_BlockedBeforeOnboarding(t *testing.T) {
	router := newTestRouter(t,
		&mockSessionFinder{sessions: map[string]*model.AuthSession{
			"valid-session": validSession("user-1"),
		}},
		&mockProfileFinder{profiles: map[string]*model.Profile{
			"user-1": {UserID: "user-1", OnboardingCompleted: false},
		}},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if !strings.Contains(w.Body.String(), model.ErrCodeOnboardingRequired) {
		t.Errorf("expected %s in body, got %s", model.ErrCodeOnboardingRequired, w.Body.String())
	}
}

func TestRouter_Accounts_AllowedAfterOnboarding(t *testing.T) {
	router := newTestRouter(t,
		&mockSessionFinder{sessions: map[string]*model.AuthSession{
			"valid-session": validSession("user-1"),
		}},
		&mockProfileFinder{profiles: map[string]*model.Profile{
			"user-1": {UserID: "user-1", OnboardingCompleted: true},
		}},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRouter_MutatingRequest_RequiresCSRFToken(t *testing.T) {
	router := newTestRouter(t,
		&mockSessionFinder{sessions: map[string]*model.AuthSession{
			"valid-session": validSession("user-1"),
		}},
		&mockProfileFinder{profiles: map[string]*model.Profile{
			"user-1": {UserID: "user-1", OnboardingCompleted: true},
		}},
	)

	// CSRFトークンなしのPOSTは拒否される
	req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{"name":"x"}`))
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRouter_MutatingRequest_WithCSRFToken_Succeeds(t *testing.T) {
	router := newTestRouter(t,
		&mockSessionFinder{sessions: map[string]*model.AuthSession{
			"valid-session": validSession("user-1"),
		}},
		&mockProfileFinder{profiles: map[string]*model.Profile{
			"user-1": {UserID: "user-1", OnboardingCompleted: true},
		}},
	)

	body := strings.NewReader(`{"role":"営業","first_name":"太郎","last_name":"山田"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/profile", body)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "test-csrf-token"})
	req.Header.Set("X-CSRF-Token", "test-csrf-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRouter_UnknownRoute_Returns404(t *testing.T) {
	router := newTestRouter(t,
		&mockSessionFinder{sessions: map[string]*model.AuthSession{}},
		&mockProfileFinder{profiles: map[string]*model.Profile{}},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/unknown", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
