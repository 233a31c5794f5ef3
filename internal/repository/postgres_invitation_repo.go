package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hkawano/voicedojo/internal/model"
)

// PostgresInvitationRepo はPostgreSQLを使用した招待リポジトリ。
type PostgresInvitationRepo struct {
	db *sql.DB
}

// NewPostgresInvitationRepo はPostgresInvitationRepoを生成する。
func NewPostgresInvitationRepo(db *sql.DB) *PostgresInvitationRepo {
	return &PostgresInvitationRepo{db: db}
}

// Create は招待を作成する。
func (r *PostgresInvitationRepo) Create(ctx context.Context, invitation *model.Invitation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invitations (id, account_id, email, invited_by, status, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		invitation.ID, invitation.AccountID, invitation.Email, invitation.InvitedBy,
		invitation.Status, invitation.ExpiresAt, invitation.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("招待の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの招待を取得する。見つからない場合はnilを返す。
func (r *PostgresInvitationRepo) FindByID(ctx context.Context, id string) (*model.Invitation, error) {
	invitation := &model.Invitation{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, account_id, email, invited_by, status, expires_at, created_at
		 FROM invitations WHERE id = $1`,
		id,
	).Scan(
		&invitation.ID, &invitation.AccountID, &invitation.Email, &invitation.InvitedBy,
		&invitation.Status, &invitation.ExpiresAt, &invitation.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("招待の取得に失敗しました: %w", err)
	}

	return invitation, nil
}

// Accept は招待を原子的に消費する。
// 行ロック（FOR UPDATE）で同一招待の並行承諾を直列化し、
// 検証 → accepted遷移 → メンバーシップ作成を単一トランザクションで行う。
// 1回目の呼び出しのみtrueを返し、2回目以降はstatusがpendingでないためfalseを返す。
func (r *PostgresInvitationRepo) Accept(ctx context.Context, invitationID, userID string, now time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var accountID string
	var status model.InvitationStatus
	var expiresAt time.Time

	err = tx.QueryRowContext(ctx,
		`SELECT account_id, status, expires_at FROM invitations WHERE id = $1 FOR UPDATE`,
		invitationID,
	).Scan(&accountID, &status, &expiresAt)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("招待のロック取得に失敗しました: %w", err)
	}

	// pending以外（承諾済み・期限切れ遷移済み）は消費不可
	if status != model.InvitationStatusPending {
		return false, nil
	}

	// 期限切れはexpiredへ遷移させた上で消費不可とする
	if now.After(expiresAt) {
		if _, err := tx.ExecContext(ctx,
			`UPDATE invitations SET status = $2 WHERE id = $1`,
			invitationID, model.InvitationStatusExpired,
		); err != nil {
			return false, fmt.Errorf("招待の期限切れ遷移に失敗しました: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE invitations SET status = $2 WHERE id = $1`,
		invitationID, model.InvitationStatusAccepted,
	); err != nil {
		return false, fmt.Errorf("招待の承諾遷移に失敗しました: %w", err)
	}

	// 既にメンバーの場合もトランザクション全体は成功させる（冪等な所属）
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO account_members (account_id, user_id, role, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account_id, user_id) DO NOTHING`,
		accountID, userID, model.MemberRoleMember, now,
	); err != nil {
		return false, fmt.Errorf("メンバーシップの作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// ExpireStale は有効期限を過ぎたpendingの招待をexpiredへ遷移させ、件数を返す。
// 冪等: 対象がない場合は0を返す。
func (r *PostgresInvitationRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE invitations SET status = $2 WHERE status = $1 AND expires_at < $3`,
		model.InvitationStatusPending, model.InvitationStatusExpired, now,
	)
	if err != nil {
		return 0, fmt.Errorf("招待の期限切れ処理に失敗しました: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}

// compile-time interface check
var _ InvitationRepository = (*PostgresInvitationRepo)(nil)
