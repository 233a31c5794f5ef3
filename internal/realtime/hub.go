// Package realtime はPostgreSQLのNOTIFYを起点とするユーザー単位の
// 変更イベント配信を提供する。
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/hkawano/voicedojo/internal/metrics"
)

// 配信チャネル名。DBトリガーのpg_notifyチャネルと一致する。
const (
	ChannelProfileChanged  = "profile_changed"
	ChannelRoleplayChanged = "roleplay_changed"
)

// Event はユーザー単位の変更イベント。
type Event struct {
	Channel   string          `json:"channel"`
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id,omitempty"` // roleplay_changedのみ
	UpdatedAt time.Time       `json:"updated_at"`
	Payload   json.RawMessage `json:"payload"`
}

// dedupeKey は同一エンティティのイベントを識別するキー。
// プロフィールはユーザーにつき1行、ロールプレイはセッション単位で比較する。
func (e Event) dedupeKey() string {
	if e.SessionID != "" {
		return e.Channel + ":" + e.SessionID
	}
	return e.Channel
}

// subscriber は1つの購読を表す。
type subscriber struct {
	userID string
	ch     chan Event
}

// subscriberBuffer は購読チャネルのバッファ長。
// 受信が追いつかない購読者へのイベントは破棄される（後続のスナップショット取得で回復する）。
const subscriberBuffer = 16

// Hub はイベントの購読者管理と配信を行う。
// DBトリガー由来のプッシュとハンドラが流すスナップショットの2系統の入力を
// 1つのリデューサで統合し、updated_atが新しい書き込みが勝つ。
// 古いイベントは破棄されるため、配信順序が入れ替わっても購読者は
// 最新の状態だけを観測する。
type Hub struct {
	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
	lastSeen    map[string]time.Time // key: userID + "\x00" + dedupeKey
	closed      bool
	collector   metrics.MetricsCollector
}

// NewHub はHubの新しいインスタンスを生成する。
func NewHub(collector metrics.MetricsCollector) *Hub {
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		lastSeen:    make(map[string]time.Time),
		collector:   collector,
	}
}

// Subscribe はユーザー単位のイベント購読を開始する。
// 返却された解除関数は複数回呼んでも安全で、解除は正確に1回だけ行われる。
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	sub := &subscriber{
		userID: userID,
		ch:     make(chan Event, subscriberBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.ch)
			}
			h.mu.Unlock()
		})
	}
	return sub.ch, unsubscribe
}

// Publish はイベントを該当ユーザーの購読者に配信する。
// 既に観測済みのupdated_atより古いイベントは破棄する（最後の書き込みが勝つ）。
func (h *Hub) Publish(evt Event) {
	key := evt.UserID + "\x00" + evt.dedupeKey()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	if last, ok := h.lastSeen[key]; ok && !evt.UpdatedAt.After(last) {
		return
	}
	h.lastSeen[key] = evt.UpdatedAt

	h.collector.RecordRealtimeEvent(evt.Channel)

	for sub := range h.subscribers {
		if sub.userID != evt.UserID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// 滞留している購読者には配信しない
		}
	}
}

// Close は全購読を終了する。以降のSubscribeは即座に閉じたチャネルを返す。
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		close(sub.ch)
	}
	h.subscribers = make(map[*subscriber]struct{})
}
