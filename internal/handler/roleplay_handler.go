package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hkawano/voicedojo/internal/middleware"
	"github.com/hkawano/voicedojo/internal/model"
)

// RoleplayServiceInterface はロールプレイハンドラーが必要とするサービスインターフェース。
type RoleplayServiceInterface interface {
	Token(ctx context.Context) (string, error)
	Start(ctx context.Context, userID string) (*model.RoleplaySession, error)
	End(ctx context.Context, userID, sessionID string) (*model.RoleplaySession, error)
	List(ctx context.Context, userID string) ([]model.RoleplaySessionWithFavorite, error)
	Get(ctx context.Context, userID, sessionID string) (*model.RoleplaySessionWithFavorite, error)
}

// RoleplayHandler は音声ロールプレイセッションのHTTPハンドラー。
type RoleplayHandler struct {
	service RoleplayServiceInterface
}

// NewRoleplayHandler はRoleplayHandlerを生成する。
func NewRoleplayHandler(service RoleplayServiceInterface) *RoleplayHandler {
	return &RoleplayHandler{service: service}
}

// tokenResponse は会話トークンのAPIレスポンス。
type tokenResponse struct {
	Token string `json:"token"`
}

// transcriptTurnResponse はトランスクリプト1発話のAPIレスポンス。
type transcriptTurnResponse struct {
	Role           string  `json:"role"`
	Message        string  `json:"message"`
	TimeInCallSecs float64 `json:"time_in_call_secs"`
}

// roleplaySessionResponse はロールプレイセッションのAPIレスポンス。
// 未完了セッションではtranscript以降のフィールドは空。
type roleplaySessionResponse struct {
	ID           string                   `json:"id"`
	Status       string                   `json:"status"`
	Transcript   []transcriptTurnResponse `json:"transcript"`
	DurationSecs int                      `json:"duration_secs"`
	Summary      string                   `json:"summary"`
	Topic        string                   `json:"topic"`
	Outcome      string                   `json:"outcome"`
	Favorited    bool                     `json:"favorited"`
	CreatedAt    string                   `json:"created_at"`
}

func toRoleplaySessionResponse(s *model.RoleplaySession, favorited bool) roleplaySessionResponse {
	transcript := make([]transcriptTurnResponse, 0, len(s.Transcript))
	for _, turn := range s.Transcript {
		transcript = append(transcript, transcriptTurnResponse{
			Role:           turn.Role,
			Message:        turn.Message,
			TimeInCallSecs: turn.TimeInCallSecs,
		})
	}
	return roleplaySessionResponse{
		ID:           s.ID,
		Status:       string(s.Status),
		Transcript:   transcript,
		DurationSecs: s.DurationSecs,
		Summary:      s.Summary,
		Topic:        s.Topic,
		Outcome:      s.Outcome,
		Favorited:    favorited,
		CreatedAt:    s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// GetToken は音声プロバイダーへの接続トークンを取得する。
// GET /api/roleplay/token
func (h *RoleplayHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.service.Token(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokenResponse{Token: token})
}

// StartSession は新しいロールプレイセッションを開始する。
// POST /api/roleplay/sessions
func (h *RoleplayHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	session, err := h.service.Start(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toRoleplaySessionResponse(session, false))
}

// EndSession はセッションを終了し会話結果を保存する。
// POST /api/roleplay/sessions/{id}/end
func (h *RoleplayHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	sessionID := chi.URLParam(r, "id")
	session, err := h.service.End(r.Context(), userID, sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toRoleplaySessionResponse(session, false))
}

// ListSessions は自分のセッション一覧を新しい順で返す。
// GET /api/roleplay/sessions
func (h *RoleplayHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	sessions, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]roleplaySessionResponse, 0, len(sessions))
	for i := range sessions {
		resp = append(resp, toRoleplaySessionResponse(&sessions[i].RoleplaySession, sessions[i].Favorited))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetSession はセッション詳細を返す。
// GET /api/roleplay/sessions/{id}
func (h *RoleplayHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	sessionID := chi.URLParam(r, "id")
	session, err := h.service.Get(r.Context(), userID, sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toRoleplaySessionResponse(&session.RoleplaySession, session.Favorited))
}
