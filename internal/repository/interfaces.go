// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hkawano/voicedojo/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateWithProfile はユーザーとプロフィールを同一トランザクションで作成する。
	// プロフィール行はユーザーと1:1であり、単独で作成されることはない。
	CreateWithProfile(ctx context.Context, user *model.User, profile *model.Profile) error
}

// AuthSessionRepository はログインセッションの永続化インターフェース。
type AuthSessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.AuthSession) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.AuthSession, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProfileRepository はプロフィールデータの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
	// プロフィール行の不在はセッション不整合を意味する（呼び出し元が強制サインアウトを判断する）。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// Update はプロフィールの編集可能フィールドを更新する。
	Update(ctx context.Context, profile *model.Profile) error

	// UpdateAvatarURL はアバターURLのみを更新する。
	UpdateAvatarURL(ctx context.Context, userID, avatarURL string) error

	// CompleteOnboarding はオンボーディング完了フラグを立て、現在のアカウントを設定する。
	CompleteOnboarding(ctx context.Context, userID, accountID string) error

	// UpdateCurrentAccount は現在選択中のアカウントを更新する。
	// 選択は参考情報であり、権限の根拠にはならない。
	UpdateCurrentAccount(ctx context.Context, userID, accountID string) error
}

// AccountRepository はアカウントとメンバーシップの永続化インターフェース。
type AccountRepository interface {
	// CreateWithAdmin はアカウントと作成者のadminメンバーシップを同一トランザクションで作成する。
	CreateWithAdmin(ctx context.Context, account *model.Account, userID string) error

	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// ListByUserID はユーザーが所属する全アカウントを自身のロール付きで返す。
	ListByUserID(ctx context.Context, userID string) ([]model.AccountWithRole, error)

	// MemberRole はアカウント内でのユーザーのロールを返す。
	// 非メンバーの場合は第2戻り値がfalseになる。
	MemberRole(ctx context.Context, accountID, userID string) (model.MemberRole, bool, error)
}

// InvitationRepository は招待データの永続化インターフェース。
type InvitationRepository interface {
	// Create は招待を作成する。
	Create(ctx context.Context, invitation *model.Invitation) error

	// FindByID は指定IDの招待を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Invitation, error)

	// Accept は招待を原子的に消費する。
	// 単一トランザクションで status=pending かつ未失効を検証し、acceptedへ遷移させ、
	// メンバーシップを作成する。すべて成功した場合のみtrueを返す。
	// 消費済み・期限切れ・未検出の場合はfalseを返し、メンバーシップは作成されない。
	Accept(ctx context.Context, invitationID, userID string, now time.Time) (bool, error)

	// ExpireStale は有効期限を過ぎたpendingの招待をexpiredへ遷移させ、件数を返す。
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// RoleplayRepository はロールプレイセッションの永続化インターフェース。
type RoleplayRepository interface {
	// Create は新規セッションをstatus=activeで作成する。
	Create(ctx context.Context, session *model.RoleplaySession) error

	// FindByIDForUser は指定ユーザーのセッションを取得する。
	// 他ユーザーのセッションや未検出の場合はnilを返す。
	FindByIDForUser(ctx context.Context, id, userID string) (*model.RoleplaySession, error)

	// Complete はセッションにトランスクリプト・解析結果を書き込みcompletedへ遷移させる。
	// activeのセッションのみ遷移可能で、対象がactiveでない場合はfalseを返す（前方遷移のみ）。
	Complete(ctx context.Context, session *model.RoleplaySession) (bool, error)

	// ListByUserID はユーザーのセッション履歴をお気に入り状態付きで新しい順に返す。
	ListByUserID(ctx context.Context, userID string) ([]model.RoleplaySessionWithFavorite, error)

	// FindByIDForUserWithFavorite はセッション詳細をお気に入り状態付きで取得する。
	// 見つからない場合はnilを返す。
	FindByIDForUserWithFavorite(ctx context.Context, id, userID string) (*model.RoleplaySessionWithFavorite, error)

	// SweepAbandoned はcutoffより前に更新が止まったactiveセッションをabandonedへ遷移させ、件数を返す。
	SweepAbandoned(ctx context.Context, cutoff time.Time) (int64, error)
}

// FavoriteRepository はお気に入りの永続化インターフェース。
type FavoriteRepository interface {
	// Exists は(user, session)のお気に入りが存在するかを返す。
	Exists(ctx context.Context, userID, sessionID string) (bool, error)

	// Create はお気に入りを作成する。既に存在する場合は何もしない（ON CONFLICT DO NOTHING）。
	Create(ctx context.Context, userID, sessionID string) error

	// Delete はお気に入りを削除する。存在しない場合でもエラーにならない。
	Delete(ctx context.Context, userID, sessionID string) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
