package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresFavoriteRepo はPostgreSQLを使用したお気に入りリポジトリ。
// (user_id, session_id)の一意性は主キーが強制する。
// 並行トグルの競合はlast-write-winsで解決する（直列化はしない）。
type PostgresFavoriteRepo struct {
	db *sql.DB
}

// NewPostgresFavoriteRepo はPostgresFavoriteRepoを生成する。
func NewPostgresFavoriteRepo(db *sql.DB) *PostgresFavoriteRepo {
	return &PostgresFavoriteRepo{db: db}
}

// Exists は(user, session)のお気に入りが存在するかを返す。
func (r *PostgresFavoriteRepo) Exists(ctx context.Context, userID, sessionID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM favorites WHERE user_id = $1 AND session_id = $2)`,
		userID, sessionID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("お気に入りの確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Create はお気に入りを作成する。既に存在する場合は何もしない。
func (r *PostgresFavoriteRepo) Create(ctx context.Context, userID, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO favorites (user_id, session_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, session_id) DO NOTHING`,
		userID, sessionID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("お気に入りの作成に失敗しました: %w", err)
	}
	return nil
}

// Delete はお気に入りを削除する。存在しない場合でもエラーにならない。
func (r *PostgresFavoriteRepo) Delete(ctx context.Context, userID, sessionID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = $1 AND session_id = $2`,
		userID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("お気に入りの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ FavoriteRepository = (*PostgresFavoriteRepo)(nil)
