package roleplay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hkawano/voicedojo/internal/metrics"
	"github.com/hkawano/voicedojo/internal/model"
	"github.com/hkawano/voicedojo/internal/security"
	"github.com/hkawano/voicedojo/internal/voice"
)

// --- モック ---

type mockRoleplayRepo struct {
	createFn                 func(ctx context.Context, session *model.RoleplaySession) error
	findByIDForUserFn        func(ctx context.Context, sessionID, userID string) (*model.RoleplaySession, error)
	completeFn               func(ctx context.Context, session *model.RoleplaySession) (bool, error)
	listByUserIDFn           func(ctx context.Context, userID string) ([]model.RoleplaySessionWithFavorite, error)
	findByIDForUserWithFavFn func(ctx context.Context, sessionID, userID string) (*model.RoleplaySessionWithFavorite, error)
	sweepAbandonedFn         func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *mockRoleplayRepo) Create(ctx context.Context, session *model.RoleplaySession) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}
func (m *mockRoleplayRepo) FindByIDForUser(ctx context.Context, sessionID, userID string) (*model.RoleplaySession, error) {
	if m.findByIDForUserFn != nil {
		return m.findByIDForUserFn(ctx, sessionID, userID)
	}
	return nil, nil
}
func (m *mockRoleplayRepo) Complete(ctx context.Context, session *model.RoleplaySession) (bool, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, session)
	}
	return true, nil
}
func (m *mockRoleplayRepo) ListByUserID(ctx context.Context, userID string) ([]model.RoleplaySessionWithFavorite, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return nil, nil
}
func (m *mockRoleplayRepo) FindByIDForUserWithFavorite(ctx context.Context, sessionID, userID string) (*model.RoleplaySessionWithFavorite, error) {
	if m.findByIDForUserWithFavFn != nil {
		return m.findByIDForUserWithFavFn(ctx, sessionID, userID)
	}
	return nil, nil
}
func (m *mockRoleplayRepo) SweepAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.sweepAbandonedFn != nil {
		return m.sweepAbandonedFn(ctx, cutoff)
	}
	return 0, nil
}

type mockProvider struct {
	getTokenFn          func(ctx context.Context) (string, error)
	startConversationFn func(ctx context.Context, agentID string) (string, error)
	endConversationFn   func(ctx context.Context, conversationID string) error
	getConversationFn   func(ctx context.Context, conversationID string) (*voice.Conversation, error)
}

func (m *mockProvider) GetConversationToken(ctx context.Context) (string, error) {
	if m.getTokenFn != nil {
		return m.getTokenFn(ctx)
	}
	return "tok", nil
}
func (m *mockProvider) StartConversation(ctx context.Context, agentID string) (string, error) {
	if m.startConversationFn != nil {
		return m.startConversationFn(ctx, agentID)
	}
	return "conv-1", nil
}
func (m *mockProvider) EndConversation(ctx context.Context, conversationID string) error {
	if m.endConversationFn != nil {
		return m.endConversationFn(ctx, conversationID)
	}
	return nil
}
func (m *mockProvider) GetConversation(ctx context.Context, conversationID string) (*voice.Conversation, error) {
	if m.getConversationFn != nil {
		return m.getConversationFn(ctx, conversationID)
	}
	return nil, errors.New("not configured")
}

func newTestService(repo *mockRoleplayRepo, provider *mockProvider) *Service {
	collector := metrics.NewCollector(prometheus.NewRegistry())
	return NewService(repo, provider, security.NewTextSanitizer(), collector, ServiceConfig{
		AgentID:      "agent-1",
		PollInterval: time.Millisecond,
		PollMaxWait:  50 * time.Millisecond,
	})
}

func doneConversation() *voice.Conversation {
	return &voice.Conversation{
		ConversationID: "conv-1",
		Status:         voice.ConversationStatusDone,
		Transcript: []voice.Turn{
			{Role: "agent", Message: "ご用件をお伺いします", TimeInCallSecs: 1.0},
			{Role: "user", Message: "<script>x</script>新製品のご提案です", TimeInCallSecs: 3.5},
		},
		Metadata: voice.Metadata{CallDurationSecs: 120},
		Analysis: &voice.Analysis{
			TranscriptSummary: "新製品の提案。",
			Topic:             "新製品提案",
			CallSuccessful:    "success",
		},
	}
}

func activeSession(sessionID, userID string) *model.RoleplaySession {
	return &model.RoleplaySession{
		ID:             sessionID,
		UserID:         userID,
		ConversationID: "conv-1",
		Status:         model.RoleplayStatusActive,
	}
}

// --- Start ---

func TestStart(t *testing.T) {
	var created *model.RoleplaySession
	repo := &mockRoleplayRepo{
		createFn: func(ctx context.Context, session *model.RoleplaySession) error {
			created = session
			return nil
		},
	}
	provider := &mockProvider{
		startConversationFn: func(ctx context.Context, agentID string) (string, error) {
			if agentID != "agent-1" {
				t.Errorf("agentID = %q, want agent-1", agentID)
			}
			return "conv-99", nil
		},
	}
	svc := newTestService(repo, provider)

	session, err := svc.Start(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if created == nil {
		t.Fatal("session record was not created")
	}
	if session.ConversationID != "conv-99" {
		t.Errorf("ConversationID = %q, want conv-99", session.ConversationID)
	}
	if session.Status != model.RoleplayStatusActive {
		t.Errorf("Status = %q, want active", session.Status)
	}
}

// プロバイダが失敗した場合、セッションレコードは一切作られない。
func TestStart_ProviderFailureCreatesNothing(t *testing.T) {
	created := false
	repo := &mockRoleplayRepo{
		createFn: func(ctx context.Context, session *model.RoleplaySession) error {
			created = true
			return nil
		},
	}
	provider := &mockProvider{
		startConversationFn: func(ctx context.Context, agentID string) (string, error) {
			return "", errors.New("provider down")
		},
	}
	svc := newTestService(repo, provider)

	_, err := svc.Start(context.Background(), "user-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProviderError {
		t.Fatalf("Start() error = %v, want code %s", err, model.ErrCodeProviderError)
	}
	if created {
		t.Error("session record was created despite provider failure")
	}
}

// --- End ---

func TestEnd(t *testing.T) {
	var completed *model.RoleplaySession
	repo := &mockRoleplayRepo{
		findByIDForUserFn: func(ctx context.Context, sessionID, userID string) (*model.RoleplaySession, error) {
			if completed != nil {
				return completed, nil
			}
			return activeSession(sessionID, userID), nil
		},
		completeFn: func(ctx context.Context, session *model.RoleplaySession) (bool, error) {
			session.Status = model.RoleplayStatusCompleted
			completed = session
			return true, nil
		},
	}
	ended := false
	provider := &mockProvider{
		endConversationFn: func(ctx context.Context, conversationID string) error {
			ended = true
			return nil
		},
		getConversationFn: func(ctx context.Context, conversationID string) (*voice.Conversation, error) {
			return doneConversation(), nil
		},
	}
	svc := newTestService(repo, provider)

	session, err := svc.End(context.Background(), "user-1", "session-1")
	if err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if !ended {
		t.Error("provider conversation was not ended")
	}
	if session.Status != model.RoleplayStatusCompleted {
		t.Errorf("Status = %q, want completed", session.Status)
	}
	if session.DurationSecs != 120 {
		t.Errorf("DurationSecs = %d, want 120", session.DurationSecs)
	}
	if session.Summary != "新製品の提案。" {
		t.Errorf("Summary = %q", session.Summary)
	}
	if len(session.Transcript) != 2 {
		t.Fatalf("len(Transcript) = %d, want 2", len(session.Transcript))
	}
	// トランスクリプトはサニタイズ済みで保存される
	if session.Transcript[1].Message != "新製品のご提案です" {
		t.Errorf("Transcript[1].Message = %q, want sanitized", session.Transcript[1].Message)
	}
}

// 分析がポーリング中に完了するケース。
func TestEnd_WaitsForAnalysis(t *testing.T) {
	calls := 0
	repo := &mockRoleplayRepo{
		findByIDForUserFn: func(ctx context.Context, sessionID, userID string) (*model.RoleplaySession, error) {
			return activeSession(sessionID, userID), nil
		},
	}
	provider := &mockProvider{
		getConversationFn: func(ctx context.Context, conversationID string) (*voice.Conversation, error) {
			calls++
			if calls < 3 {
				return &voice.Conversation{ConversationID: conversationID, Status: voice.ConversationStatusProcessing}, nil
			}
			return doneConversation(), nil
		},
	}
	svc := newTestService(repo, provider)

	if _, err := svc.End(context.Background(), "user-1", "session-1"); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if calls < 3 {
		t.Errorf("GetConversation calls = %d, want >= 3", calls)
	}
}

func TestEnd_AnalysisTimeout(t *testing.T) {
	repo := &mockRoleplayRepo{
		findByIDForUserFn: func(ctx context.Context, sessionID, userID string) (*model.RoleplaySession, error) {
			return activeSession(sessionID, userID), nil
		},
	}
	provider := &mockProvider{
		getConversationFn: func(ctx context.Context, conversationID string) (*voice.Conversation, error) {
			return &voice.Conversation{ConversationID: conversationID, Status: voice.ConversationStatusProcessing}, nil
		},
	}
	svc := newTestService(repo, provider)

	_, err := svc.End(context.Background(), "user-1", "session-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProviderTimeout {
		t.Errorf("End() error = %v, want code %s", err, model.ErrCodeProviderTimeout)
	}
}

// 完了済みセッションの再終了は競合エラーになり、状態は巻き戻らない。
func TestEnd_AlreadyCompleted(t *testing.T) {
	endCalled := false
	repo := &mockRoleplayRepo{
		findByIDForUserFn: func(ctx context.Context, sessionID, userID string) (*model.RoleplaySession, error) {
			s := activeSession(sessionID, userID)
			s.Status = model.RoleplayStatusCompleted
			return s, nil
		},
	}
	provider := &mockProvider{
		endConversationFn: func(ctx context.Context, conversationID string) error {
			endCalled = true
			return nil
		},
	}
	svc := newTestService(repo, provider)

	_, err := svc.End(context.Background(), "user-1", "session-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeRoleplayCompleted {
		t.Fatalf("End() error = %v, want code %s", err, model.ErrCodeRoleplayCompleted)
	}
	if endCalled {
		t.Error("provider EndConversation was called for a completed session")
	}
}

func TestEnd_NotFound(t *testing.T) {
	svc := newTestService(&mockRoleplayRepo{}, &mockProvider{})

	_, err := svc.End(context.Background(), "user-1", "missing")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeRoleplayNotFound {
		t.Errorf("End() error = %v, want code %s", err, model.ErrCodeRoleplayNotFound)
	}
}

// プロバイダの終了呼び出しが失敗した場合、エラーを返しレコードはactiveのまま残る。
func TestEnd_ProviderEndFails(t *testing.T) {
	completeCalled := false
	repo := &mockRoleplayRepo{
		findByIDForUserFn: func(ctx context.Context, sessionID, userID string) (*model.RoleplaySession, error) {
			return activeSession(sessionID, userID), nil
		},
		completeFn: func(ctx context.Context, session *model.RoleplaySession) (bool, error) {
			completeCalled = true
			return true, nil
		},
	}
	provider := &mockProvider{
		endConversationFn: func(ctx context.Context, conversationID string) error {
			return errors.New("provider down")
		},
	}
	svc := newTestService(repo, provider)

	_, err := svc.End(context.Background(), "user-1", "session-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProviderError {
		t.Fatalf("End() error = %v, want code %s", err, model.ErrCodeProviderError)
	}
	if completeCalled {
		t.Error("Complete was called despite provider failure")
	}
}

// --- Token ---

func TestToken(t *testing.T) {
	provider := &mockProvider{
		getTokenFn: func(ctx context.Context) (string, error) {
			return "tok_xyz", nil
		},
	}
	svc := newTestService(&mockRoleplayRepo{}, provider)

	token, err := svc.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if token != "tok_xyz" {
		t.Errorf("token = %q, want tok_xyz", token)
	}
}

// --- Get ---

func TestGet_CrossUserIsNotFound(t *testing.T) {
	repo := &mockRoleplayRepo{
		findByIDForUserWithFavFn: func(ctx context.Context, sessionID, userID string) (*model.RoleplaySessionWithFavorite, error) {
			return nil, nil // 他ユーザーのセッションはリポジトリがnilを返す
		},
	}
	svc := newTestService(repo, &mockProvider{})

	_, err := svc.Get(context.Background(), "user-2", "session-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeRoleplayNotFound {
		t.Errorf("Get() error = %v, want code %s", err, model.ErrCodeRoleplayNotFound)
	}
}
