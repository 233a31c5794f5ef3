package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hkawano/voicedojo/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	profile := &model.Profile{}
	var avatarURL, companyWebsite, currentAccountID sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, role, first_name, last_name, avatar_url, company_website,
		        onboarding_completed, current_account_id, created_at, updated_at
		 FROM profiles WHERE user_id = $1`,
		userID,
	).Scan(
		&profile.UserID, &profile.Role, &profile.FirstName, &profile.LastName,
		&avatarURL, &companyWebsite,
		&profile.OnboardingCompleted, &currentAccountID,
		&profile.CreatedAt, &profile.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}

	if avatarURL.Valid {
		profile.AvatarURL = &avatarURL.String
	}
	if companyWebsite.Valid {
		profile.CompanyWebsite = &companyWebsite.String
	}
	if currentAccountID.Valid {
		profile.CurrentAccountID = &currentAccountID.String
	}

	return profile, nil
}

// Update はプロフィールの編集可能フィールド（職種・氏名・会社サイト）を更新する。
func (r *PostgresProfileRepo) Update(ctx context.Context, profile *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET role = $2, first_name = $3, last_name = $4, company_website = $5, updated_at = $6
		 WHERE user_id = $1`,
		profile.UserID, profile.Role, profile.FirstName, profile.LastName,
		profile.CompanyWebsite, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateAvatarURL はアバターURLのみを更新する。
func (r *PostgresProfileRepo) UpdateAvatarURL(ctx context.Context, userID, avatarURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET avatar_url = $2, updated_at = $3 WHERE user_id = $1`,
		userID, avatarURL, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("アバターURLの更新に失敗しました: %w", err)
	}
	return nil
}

// CompleteOnboarding はオンボーディング完了フラグを立て、現在のアカウントを設定する。
func (r *PostgresProfileRepo) CompleteOnboarding(ctx context.Context, userID, accountID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET onboarding_completed = TRUE, current_account_id = $2, updated_at = $3
		 WHERE user_id = $1`,
		userID, accountID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("オンボーディング完了の記録に失敗しました: %w", err)
	}
	return nil
}

// UpdateCurrentAccount は現在選択中のアカウントを更新する。
func (r *PostgresProfileRepo) UpdateCurrentAccount(ctx context.Context, userID, accountID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET current_account_id = $2, updated_at = $3 WHERE user_id = $1`,
		userID, accountID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("現在アカウントの更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
