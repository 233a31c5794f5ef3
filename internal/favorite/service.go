// Package favorite はロールプレイセッションのお気に入り管理を提供する。
package favorite

import (
	"context"
	"fmt"

	"github.com/hkawano/voicedojo/internal/model"
	"github.com/hkawano/voicedojo/internal/repository"
)

// Service はお気に入りのサービス層。
type Service struct {
	favoriteRepo repository.FavoriteRepository
	roleplayRepo repository.RoleplayRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(favoriteRepo repository.FavoriteRepository, roleplayRepo repository.RoleplayRepository) *Service {
	return &Service{
		favoriteRepo: favoriteRepo,
		roleplayRepo: roleplayRepo,
	}
}

// Toggle はお気に入り状態を反転し、反転後の状態を返す。
// 登録済みなら解除、未登録なら登録する。2回連続で実行すると元の状態に戻る。
// 同時実行時はDBへの最後の書き込みが勝つ。
func (s *Service) Toggle(ctx context.Context, userID, sessionID string) (bool, error) {
	session, err := s.roleplayRepo.FindByIDForUser(ctx, sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return false, model.NewRoleplayNotFoundError(sessionID)
	}

	exists, err := s.favoriteRepo.Exists(ctx, userID, sessionID)
	if err != nil {
		return false, fmt.Errorf("お気に入り状態の取得に失敗しました: %w", err)
	}

	if exists {
		if err := s.favoriteRepo.Delete(ctx, userID, sessionID); err != nil {
			return false, fmt.Errorf("お気に入りの解除に失敗しました: %w", err)
		}
		return false, nil
	}

	if err := s.favoriteRepo.Create(ctx, userID, sessionID); err != nil {
		return false, fmt.Errorf("お気に入りの登録に失敗しました: %w", err)
	}
	return true, nil
}
