package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

const (
	// minReconnectInterval は接続断からの再接続試行の最小間隔。
	minReconnectInterval = 10 * time.Second
	// maxReconnectInterval は再接続試行の最大間隔。
	maxReconnectInterval = time.Minute
	// pingInterval は通知が途絶えた場合の接続確認の間隔。
	pingInterval = 90 * time.Second
)

// Listener はPostgreSQLのLISTEN/NOTIFYを購読し、通知をHubに流す。
type Listener struct {
	pql    *pq.Listener
	hub    *Hub
	logger *slog.Logger
}

// NewListener はListenerの新しいインスタンスを生成する。
func NewListener(databaseURL string, hub *Hub, logger *slog.Logger) *Listener {
	pql := pq.NewListener(databaseURL, minReconnectInterval, maxReconnectInterval,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				logger.Error("LISTEN接続でエラーが発生しました",
					slog.Int("event", int(event)),
					slog.String("error", err.Error()),
				)
			}
		})
	return &Listener{
		pql:    pql,
		hub:    hub,
		logger: logger,
	}
}

// Run は通知の受信ループを実行する。コンテキストの終了まで戻らない。
func (l *Listener) Run(ctx context.Context) error {
	defer l.pql.Close()

	for _, channel := range []string{ChannelProfileChanged, ChannelRoleplayChanged} {
		if err := l.pql.Listen(channel); err != nil {
			return fmt.Errorf("チャネル %s のLISTENに失敗しました: %w", channel, err)
		}
	}

	l.logger.Info("リアルタイムリスナーを開始しました")

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("リアルタイムリスナーを停止します")
			return ctx.Err()

		case notification := <-l.pql.Notify:
			// 再接続直後はnilが届く。再接続中の通知は失われるが、
			// 購読者は次のスナップショット取得で最新状態に追いつく。
			if notification == nil {
				continue
			}
			evt, err := parseNotification(notification.Channel, notification.Extra)
			if err != nil {
				l.logger.Error("通知ペイロードのパースに失敗しました",
					slog.String("channel", notification.Channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			l.hub.Publish(evt)

		case <-time.After(pingInterval):
			if err := l.pql.Ping(); err != nil {
				l.logger.Error("LISTEN接続の確認に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// parseNotification はpg_notifyのJSONペイロードをEventに変換する。
func parseNotification(channel, payload string) (Event, error) {
	var p struct {
		UserID    string `json:"user_id"`
		SessionID string `json:"session_id"`
		UpdatedAt string `json:"updated_at"`
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return Event{}, fmt.Errorf("invalid payload: %w", err)
	}
	if p.UserID == "" {
		return Event{}, fmt.Errorf("payload has no user_id")
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, p.UpdatedAt)
	if err != nil {
		return Event{}, fmt.Errorf("invalid updated_at %q: %w", p.UpdatedAt, err)
	}

	return Event{
		Channel:   channel,
		UserID:    p.UserID,
		SessionID: p.SessionID,
		UpdatedAt: updatedAt,
		Payload:   json.RawMessage(payload),
	}, nil
}
