package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hkawano/voicedojo/internal/middleware"
	"github.com/hkawano/voicedojo/internal/realtime"
	"github.com/hkawano/voicedojo/internal/storage"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	ProfileFinder     middleware.ProfileFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// プロフィール
	ProfileService ProfileServiceInterface

	// アカウント
	AccountService AccountServiceInterface

	// ロールプレイ
	RoleplayService RoleplayServiceInterface
	FavoriteService FavoriteServiceInterface

	// リアルタイム配信
	Hub *realtime.Hub

	// アバター配信
	AvatarStore storage.AvatarStoreService
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ルートは3層に分かれる:
//
//	公開ルート（認証不要）: /auth/*、/api/csrf-token、/health、/avatars/*
//	セッション必須ルート: /api/profile、/api/onboarding/complete、/api/invitations/accept
//	オンボーディング完了必須ルート: /api/accounts/*、/api/roleplay/*、/api/events
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging →
//	  Session → RateLimit(General) → CSRF → [OnboardingGate]
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService)
	accountHandler := NewAccountHandler(deps.AccountService)
	roleplayHandler := NewRoleplayHandler(deps.RoleplayService)
	favoriteHandler := NewFavoriteHandler(deps.FavoriteService)
	eventsHandler := NewEventsHandler(deps.Hub, deps.Logger)
	avatarHandler := NewAvatarHandler(deps.AvatarStore)

	// --- 認証不要のルート ---

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/avatars/{name}", avatarHandler.ServeAvatar)

	// --- セッションが必要なルート（オンボーディング未完了でも到達可能） ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.GetProfile)
			r.Patch("/", profileHandler.UpdateProfile)
			r.Post("/avatar", profileHandler.UploadAvatar)
		})

		r.Post("/api/onboarding/complete", profileHandler.CompleteOnboarding)

		// 招待承諾はオンボーディング完了前でも可能
		r.Post("/api/invitations/accept", accountHandler.AcceptInvitation)
	})

	// --- オンボーディング完了が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF → OnboardingGate
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(middleware.NewOnboardingGateMiddleware(deps.ProfileFinder))

		// アカウント管理
		r.Route("/api/accounts", func(r chi.Router) {
			r.Get("/", accountHandler.ListAccounts)
			r.Post("/", accountHandler.CreateAccount)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/switch", accountHandler.SwitchAccount)
				r.Post("/invitations", accountHandler.CreateInvitation)
			})
		})

		// ロールプレイ
		r.Route("/api/roleplay", func(r chi.Router) {
			r.Get("/token", roleplayHandler.GetToken)

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", roleplayHandler.ListSessions)

				// POST /api/roleplay/sessions - 開始専用レート制限を追加
				r.With(deps.RateLimiter.RoleplayStartMiddleware()).Post("/", roleplayHandler.StartSession)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", roleplayHandler.GetSession)
					r.Post("/end", roleplayHandler.EndSession)
					r.Post("/favorite", favoriteHandler.ToggleFavorite)
				})
			})
		})

		// 変更ストリーム
		r.Get("/api/events", eventsHandler.Stream)
	})

	return r
}
