package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hkawano/voicedojo/internal/middleware"
	"github.com/hkawano/voicedojo/internal/realtime"
)

// heartbeatInterval はSSE接続維持のためのコメント送信間隔。
// プロキシのアイドルタイムアウトより短く設定する。
const heartbeatInterval = 25 * time.Second

// EventsHandler は変更ストリームのSSEハンドラー。
type EventsHandler struct {
	hub    *realtime.Hub
	logger *slog.Logger
}

// NewEventsHandler はEventsHandlerを生成する。
func NewEventsHandler(hub *realtime.Hub, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		hub:    hub,
		logger: logger,
	}
}

// eventPayload はSSEのdata行として送信するイベント本体。
type eventPayload struct {
	Channel   string `json:"channel"`
	SessionID string `json:"session_id,omitempty"`
	UpdatedAt string `json:"updated_at"`
}

// Stream は認証済みユーザーの変更イベントをServer-Sent Eventsで配信する。
// GET /api/events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := h.hub.Subscribe(userID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// 接続確立を即座にクライアントに伝える
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	h.logger.Info("SSE接続を開始しました", slog.String("user_id", userID))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Info("SSE接続を終了しました", slog.String("user_id", userID))
			return

		case evt, ok := <-events:
			if !ok {
				// Hubがクローズされた（シャットダウン中）
				return
			}
			data, err := json.Marshal(eventPayload{
				Channel:   evt.Channel,
				SessionID: evt.SessionID,
				UpdatedAt: evt.UpdatedAt.UTC().Format(time.RFC3339Nano),
			})
			if err != nil {
				h.logger.Error("イベントのシリアライズに失敗しました",
					slog.String("error", err.Error()),
				)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Channel, data)
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
