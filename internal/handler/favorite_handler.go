package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hkawano/voicedojo/internal/middleware"
)

// FavoriteServiceInterface はお気に入りハンドラーが必要とするサービスインターフェース。
type FavoriteServiceInterface interface {
	Toggle(ctx context.Context, userID, sessionID string) (bool, error)
}

// FavoriteHandler はセッションお気に入りのHTTPハンドラー。
type FavoriteHandler struct {
	service FavoriteServiceInterface
}

// NewFavoriteHandler はFavoriteHandlerを生成する。
func NewFavoriteHandler(service FavoriteServiceInterface) *FavoriteHandler {
	return &FavoriteHandler{service: service}
}

// favoriteResponse はお気に入りトグルのAPIレスポンス。
type favoriteResponse struct {
	SessionID string `json:"session_id"`
	Favorited bool   `json:"favorited"`
}

// ToggleFavorite はセッションのお気に入り状態を反転する。
// POST /api/roleplay/sessions/{id}/favorite
func (h *FavoriteHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	sessionID := chi.URLParam(r, "id")
	favorited, err := h.service.Toggle(r.Context(), userID, sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(favoriteResponse{
		SessionID: sessionID,
		Favorited: favorited,
	})
}
