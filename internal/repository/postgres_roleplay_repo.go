package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hkawano/voicedojo/internal/model"
)

// PostgresRoleplayRepo はPostgreSQLを使用したロールプレイセッションリポジトリ。
// トランスクリプトはJSONBカラムに保存する。
type PostgresRoleplayRepo struct {
	db *sql.DB
}

// NewPostgresRoleplayRepo はPostgresRoleplayRepoを生成する。
func NewPostgresRoleplayRepo(db *sql.DB) *PostgresRoleplayRepo {
	return &PostgresRoleplayRepo{db: db}
}

// Create は新規セッションをstatus=activeで作成する。
func (r *PostgresRoleplayRepo) Create(ctx context.Context, session *model.RoleplaySession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO roleplay_sessions (id, user_id, conversation_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID, session.UserID, session.ConversationID, session.Status,
		session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByIDForUser は指定ユーザーのセッションを取得する。
// 他ユーザーのセッションや未検出の場合はnilを返す。
func (r *PostgresRoleplayRepo) FindByIDForUser(ctx context.Context, id, userID string) (*model.RoleplaySession, error) {
	session := &model.RoleplaySession{}
	var transcript []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, conversation_id, status, transcript, duration_secs,
		        summary, topic, outcome, created_at, updated_at
		 FROM roleplay_sessions WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(
		&session.ID, &session.UserID, &session.ConversationID, &session.Status,
		&transcript, &session.DurationSecs,
		&session.Summary, &session.Topic, &session.Outcome,
		&session.CreatedAt, &session.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}

	if err := unmarshalTranscript(transcript, session); err != nil {
		return nil, err
	}

	return session, nil
}

// Complete はセッションにトランスクリプト・解析結果を書き込みcompletedへ遷移させる。
// WHERE句でstatus='active'を条件にすることで前方遷移のみを保証する。
// 対象がactiveでない（既にcompleted/abandoned）の場合はfalseを返す。
func (r *PostgresRoleplayRepo) Complete(ctx context.Context, session *model.RoleplaySession) (bool, error) {
	transcript, err := json.Marshal(session.Transcript)
	if err != nil {
		return false, fmt.Errorf("トランスクリプトのエンコードに失敗しました: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE roleplay_sessions
		 SET status = $3, transcript = $4, duration_secs = $5,
		     summary = $6, topic = $7, outcome = $8, updated_at = $9
		 WHERE id = $1 AND user_id = $2 AND status = $10`,
		session.ID, session.UserID,
		model.RoleplayStatusCompleted, transcript, session.DurationSecs,
		session.Summary, session.Topic, session.Outcome, time.Now(),
		model.RoleplayStatusActive,
	)
	if err != nil {
		return false, fmt.Errorf("セッションの完了記録に失敗しました: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// ListByUserID はユーザーのセッション履歴をお気に入り状態付きで新しい順に返す。
func (r *PostgresRoleplayRepo) ListByUserID(ctx context.Context, userID string) ([]model.RoleplaySessionWithFavorite, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.conversation_id, s.status, s.transcript, s.duration_secs,
		        s.summary, s.topic, s.outcome, s.created_at, s.updated_at,
		        (f.session_id IS NOT NULL) AS favorited
		 FROM roleplay_sessions s
		 LEFT JOIN favorites f ON f.session_id = s.id AND f.user_id = s.user_id
		 WHERE s.user_id = $1
		 ORDER BY s.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("セッション履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sessions []model.RoleplaySessionWithFavorite
	for rows.Next() {
		var s model.RoleplaySessionWithFavorite
		var transcript []byte
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.ConversationID, &s.Status,
			&transcript, &s.DurationSecs,
			&s.Summary, &s.Topic, &s.Outcome,
			&s.CreatedAt, &s.UpdatedAt,
			&s.Favorited,
		); err != nil {
			return nil, fmt.Errorf("セッション行の読み取りに失敗しました: %w", err)
		}
		if err := unmarshalTranscript(transcript, &s.RoleplaySession); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("セッション履歴の走査に失敗しました: %w", err)
	}

	return sessions, nil
}

// FindByIDForUserWithFavorite はセッション詳細をお気に入り状態付きで取得する。
// 見つからない場合はnilを返す。
func (r *PostgresRoleplayRepo) FindByIDForUserWithFavorite(ctx context.Context, id, userID string) (*model.RoleplaySessionWithFavorite, error) {
	s := &model.RoleplaySessionWithFavorite{}
	var transcript []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT s.id, s.user_id, s.conversation_id, s.status, s.transcript, s.duration_secs,
		        s.summary, s.topic, s.outcome, s.created_at, s.updated_at,
		        (f.session_id IS NOT NULL) AS favorited
		 FROM roleplay_sessions s
		 LEFT JOIN favorites f ON f.session_id = s.id AND f.user_id = s.user_id
		 WHERE s.id = $1 AND s.user_id = $2`,
		id, userID,
	).Scan(
		&s.ID, &s.UserID, &s.ConversationID, &s.Status,
		&transcript, &s.DurationSecs,
		&s.Summary, &s.Topic, &s.Outcome,
		&s.CreatedAt, &s.UpdatedAt,
		&s.Favorited,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}

	if err := unmarshalTranscript(transcript, &s.RoleplaySession); err != nil {
		return nil, err
	}

	return s, nil
}

// SweepAbandoned はcutoffより前に更新が止まったactiveセッションをabandonedへ遷移させ、件数を返す。
// 冪等: 対象がない場合は0を返す。
func (r *PostgresRoleplayRepo) SweepAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE roleplay_sessions
		 SET status = $2, updated_at = now()
		 WHERE status = $1 AND updated_at < $3`,
		model.RoleplayStatusActive, model.RoleplayStatusAbandoned, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("放置セッションの回収に失敗しました: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return count, nil
}

// unmarshalTranscript はJSONBカラムの値をTranscriptTurnスライスへ復元する。
// NULL（未完了セッション）の場合はnilのままにする。
func unmarshalTranscript(data []byte, session *model.RoleplaySession) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &session.Transcript); err != nil {
		return fmt.Errorf("トランスクリプトのデコードに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RoleplayRepository = (*PostgresRoleplayRepo)(nil)
