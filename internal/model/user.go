// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 認証情報のみを持ち、表示用の属性はProfileが持つ。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile はユーザーと1:1で対応するプロフィールを表す。
// ユーザー作成と同一トランザクションで必ず作成される。
// OnboardingCompletedがメインアプリケーションへの到達可否を決定する。
type Profile struct {
	UserID              string
	Role                string // 営業/CS等の職種ラベル。権限とは無関係。
	FirstName           string
	LastName            string
	AvatarURL           *string
	CompanyWebsite      *string
	OnboardingCompleted bool
	CurrentAccountID    *string // 現在選択中のアカウント。参考情報であり権限の根拠にはならない。
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AuthSession はユーザーのログインセッションを表す。
type AuthSession struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
