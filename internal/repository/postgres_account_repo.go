package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hkawano/voicedojo/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// CreateWithAdmin はアカウントと作成者のadminメンバーシップを同一トランザクションで作成する。
func (r *PostgresAccountRepo) CreateWithAdmin(ctx context.Context, account *model.Account, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO accounts (id, name, created_at) VALUES ($1, $2, $3)`,
		account.ID, account.Name, account.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}

	// 作成者はadminとして所属する
	_, err = tx.ExecContext(ctx,
		`INSERT INTO account_members (account_id, user_id, role, created_at)
		 VALUES ($1, $2, $3, $4)`,
		account.ID, userID, model.MemberRoleAdmin, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("メンバーシップの作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	account := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM accounts WHERE id = $1`,
		id,
	).Scan(&account.ID, &account.Name, &account.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}

	return account, nil
}

// ListByUserID はユーザーが所属する全アカウントを自身のロール付きで返す。
// メンバーシップテーブルを唯一の真実源として結合する。
func (r *PostgresAccountRepo) ListByUserID(ctx context.Context, userID string) ([]model.AccountWithRole, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.name, a.created_at, m.role
		 FROM accounts a
		 JOIN account_members m ON m.account_id = a.id
		 WHERE m.user_id = $1
		 ORDER BY a.created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("アカウント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var accounts []model.AccountWithRole
	for rows.Next() {
		var a model.AccountWithRole
		if err := rows.Scan(&a.ID, &a.Name, &a.CreatedAt, &a.Role); err != nil {
			return nil, fmt.Errorf("アカウント行の読み取りに失敗しました: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アカウント一覧の走査に失敗しました: %w", err)
	}

	return accounts, nil
}

// MemberRole はアカウント内でのユーザーのロールを返す。
// 非メンバーの場合は第2戻り値がfalseになる。
func (r *PostgresAccountRepo) MemberRole(ctx context.Context, accountID, userID string) (model.MemberRole, bool, error) {
	var role model.MemberRole
	err := r.db.QueryRowContext(ctx,
		`SELECT role FROM account_members WHERE account_id = $1 AND user_id = $2`,
		accountID, userID,
	).Scan(&role)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("メンバーシップの確認に失敗しました: %w", err)
	}

	return role, true, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
