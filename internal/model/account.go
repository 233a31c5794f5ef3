// Package model はドメインモデルを定義する。
package model

import "time"

// MemberRole はアカウント内の権限ロールを表す。
type MemberRole string

const (
	// MemberRoleAdmin はアカウントの管理者を示す。招待の作成が可能。
	MemberRoleAdmin MemberRole = "admin"
	// MemberRoleMember はアカウントの一般メンバーを示す。
	MemberRoleMember MemberRole = "member"
)

// Account はテナント（組織）を表す。
type Account struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// AccountMember はユーザーとアカウントの所属関係を表す。
// アカウント内権限の唯一の真実源であり、キャッシュされたロールは信用しない。
type AccountMember struct {
	AccountID string
	UserID    string
	Role      MemberRole
	CreatedAt time.Time
}

// AccountWithRole はアカウント情報と照会ユーザー自身のロールを結合した構造体。
// アカウント一覧APIのために使用する。
type AccountWithRole struct {
	Account
	Role MemberRole
}

// InvitationStatus は招待の状態を表す。
type InvitationStatus string

const (
	// InvitationStatusPending は未承諾の招待を示す。
	InvitationStatusPending InvitationStatus = "pending"
	// InvitationStatusAccepted は承諾済みの招待を示す。1回のみ遷移可能。
	InvitationStatusAccepted InvitationStatus = "accepted"
	// InvitationStatusExpired は期限切れの招待を示す。
	InvitationStatusExpired InvitationStatus = "expired"
)

// Invitation はアカウントへの招待を表す。
// ちょうど1回だけ消費される。
type Invitation struct {
	ID        string
	AccountID string
	Email     string
	InvitedBy string
	Status    InvitationStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired は招待が期限切れかどうかを判定する。
func (i *Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
