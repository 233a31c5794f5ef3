package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/hkawano/voicedojo/internal/middleware"
	"github.com/hkawano/voicedojo/internal/model"
	"github.com/hkawano/voicedojo/internal/profile"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
	Update(ctx context.Context, userID string, input profile.UpdateInput) (*model.Profile, error)
	CompleteOnboarding(ctx context.Context, userID string, input profile.OnboardingInput) (*profile.OnboardingResult, error)
	UploadAvatar(ctx context.Context, userID, ext string, r io.Reader) (string, error)
}

// ProfileHandler はプロフィール管理のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
// company_websiteを省略した場合は既存値を維持し、空文字列の場合はクリアする。
type updateProfileRequest struct {
	Role           string  `json:"role"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	CompanyWebsite *string `json:"company_website"`
}

// completeOnboardingRequest はオンボーディング完了リクエストのボディ。
type completeOnboardingRequest struct {
	Role           string  `json:"role"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	CompanyWebsite *string `json:"company_website"`
	AccountName    string  `json:"account_name"`
}

// profileResponse はプロフィール情報のAPIレスポンス。
type profileResponse struct {
	UserID              string  `json:"user_id"`
	Role                string  `json:"role"`
	FirstName           string  `json:"first_name"`
	LastName            string  `json:"last_name"`
	AvatarURL           *string `json:"avatar_url"`
	CompanyWebsite      *string `json:"company_website"`
	OnboardingCompleted bool    `json:"onboarding_completed"`
	CurrentAccountID    *string `json:"current_account_id"`
}

// onboardingResponse はオンボーディング完了のAPIレスポンス。
type onboardingResponse struct {
	Profile profileResponse `json:"profile"`
	Account accountResponse `json:"account"`
}

// avatarResponse はアバターアップロードのAPIレスポンス。
type avatarResponse struct {
	AvatarURL string `json:"avatar_url"`
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		UserID:              p.UserID,
		Role:                p.Role,
		FirstName:           p.FirstName,
		LastName:            p.LastName,
		AvatarURL:           p.AvatarURL,
		CompanyWebsite:      p.CompanyWebsite,
		OnboardingCompleted: p.OnboardingCompleted,
		CurrentAccountID:    p.CurrentAccountID,
	}
}

// GetProfile は自分のプロフィールを取得する。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	p, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProfileResponse(p))
}

// UpdateProfile はプロフィールを更新する。
// PATCH /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	p, err := h.service.Update(r.Context(), userID, profile.UpdateInput{
		Role:           req.Role,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		CompanyWebsite: req.CompanyWebsite,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProfileResponse(p))
}

// CompleteOnboarding はオンボーディングを完了する。
// POST /api/onboarding/complete
func (h *ProfileHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req completeOnboardingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if strings.TrimSpace(req.AccountName) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "アカウント名は必須です。",
			Category: "validation",
			Action:   "アカウント名を入力してください。",
		})
		return
	}

	result, err := h.service.CompleteOnboarding(r.Context(), userID, profile.OnboardingInput{
		Role:           req.Role,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		CompanyWebsite: req.CompanyWebsite,
		AccountName:    req.AccountName,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(onboardingResponse{
		Profile: toProfileResponse(result.Profile),
		Account: toAccountResponse(result.Account),
	})
}

// UploadAvatar はアバター画像をアップロードする。
// POST /api/profile/avatar (multipart/form-data, フィールド名 "avatar")
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewAvatarInvalidError())
		return
	}
	defer file.Close()

	ext := strings.TrimPrefix(filepath.Ext(header.Filename), ".")
	avatarURL, err := h.service.UploadAvatar(r.Context(), userID, ext, file)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(avatarResponse{AvatarURL: avatarURL})
}
