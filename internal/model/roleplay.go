// Package model はドメインモデルを定義する。
package model

import "time"

// RoleplayStatus はロールプレイセッションの状態を表す。
// 状態は前方にのみ遷移する: active → completed。
// completedに到達しなかった放置セッションはワーカーがabandonedへ遷移させる。
type RoleplayStatus string

const (
	// RoleplayStatusActive は会話進行中のセッションを示す。
	RoleplayStatusActive RoleplayStatus = "active"
	// RoleplayStatusCompleted はトランスクリプト保存済みの完了セッションを示す。
	RoleplayStatusCompleted RoleplayStatus = "completed"
	// RoleplayStatusAbandoned は終了処理が行われないまま放置されたセッションを示す。
	RoleplayStatusAbandoned RoleplayStatus = "abandoned"
)

// TranscriptTurn はロールプレイ会話の1発話を表す。
type TranscriptTurn struct {
	Role           string  `json:"role"` // "user" または "agent"
	Message        string  `json:"message"`
	TimeInCallSecs float64 `json:"time_in_call_secs"`
}

// RoleplaySession は1回の音声ロールプレイ訓練とその結果を表す。
// 完了時に1回だけ結果が書き込まれ、以降はお気に入り以外不変。
type RoleplaySession struct {
	ID             string
	UserID         string
	ConversationID string
	Status         RoleplayStatus
	Transcript     []TranscriptTurn
	DurationSecs   int
	Summary        string
	Topic          string
	Outcome        string // 会話分析による成否ラベル（success/failure/unknown）
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RoleplaySessionWithFavorite はセッションと照会ユーザーのお気に入り状態を結合した構造体。
type RoleplaySessionWithFavorite struct {
	RoleplaySession
	Favorited bool
}

// Favorite はユーザーとセッションのお気に入り関係を表す。
// (user_id, session_id)の組につき最大1件。一意性はDBが強制する。
type Favorite struct {
	UserID    string
	SessionID string
	CreatedAt time.Time
}
