package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hkawano/voicedojo/internal/storage"
)

// AvatarHandler はアバター画像配信のHTTPハンドラー。
type AvatarHandler struct {
	store storage.AvatarStoreService
}

// NewAvatarHandler はAvatarHandlerを生成する。
func NewAvatarHandler(store storage.AvatarStoreService) *AvatarHandler {
	return &AvatarHandler{store: store}
}

// ServeAvatar は保存済みアバター画像を返す。
// GET /avatars/{name}
func (h *AvatarHandler) ServeAvatar(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	f, contentType, err := h.store.Open(name)
	if err != nil {
		// 不正なファイル名も存在しないファイルも区別せず404を返す
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, f); err != nil {
		slog.Debug("アバター配信が中断されました", slog.String("error", err.Error()))
	}
}
