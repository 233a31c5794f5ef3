package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hkawano/voicedojo/internal/model"
)

// ProfileFinder はプロフィールの検索に必要なインターフェース。
// repository.ProfileRepositoryの部分集合として定義する。
type ProfileFinder interface {
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)
}

// NewOnboardingGateMiddleware はオンボーディング完了を要求するミドルウェアを返す。
// セッションミドルウェアの後に配置する。
// プロフィール行が存在しない場合は回復不能な不整合として401を返す
// （オンボーディング未完了の403と混同してはならない）。
// オンボーディング未完了の場合は403とONBOARDING_REQUIREDを返す。
func NewOnboardingGateMiddleware(profileFinder ProfileFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			profile, err := profileFinder.FindByUserID(r.Context(), userID)
			if err != nil {
				slog.Error("プロフィールの検索に失敗しました",
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}
			if profile == nil {
				// セッションは有効だがプロフィール行がない: 強制サインアウト対象
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError())
				return
			}
			if !profile.OnboardingCompleted {
				WriteErrorResponse(w, http.StatusForbidden, model.NewOnboardingRequiredError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
