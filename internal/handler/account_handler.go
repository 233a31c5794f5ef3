package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hkawano/voicedojo/internal/middleware"
	"github.com/hkawano/voicedojo/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	List(ctx context.Context, userID string) ([]model.AccountWithRole, error)
	Create(ctx context.Context, userID, name string) (*model.Account, error)
	Switch(ctx context.Context, userID, accountID string) error
	CreateInvitation(ctx context.Context, userID, accountID, email string) (*model.Invitation, error)
	AcceptInvitation(ctx context.Context, userID, invitationID string) (*model.Invitation, error)
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// createAccountRequest はアカウント作成リクエストのボディ。
type createAccountRequest struct {
	Name string `json:"name"`
}

// createInvitationRequest は招待作成リクエストのボディ。
type createInvitationRequest struct {
	Email string `json:"email"`
}

// acceptInvitationRequest は招待承諾リクエストのボディ。
type acceptInvitationRequest struct {
	InvitationID string `json:"invitation_id"`
}

// accountResponse はアカウント情報のAPIレスポンス。
type accountResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// accountWithRoleResponse はアカウント情報と自分のロールのAPIレスポンス。
type accountWithRoleResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// invitationResponse は招待情報のAPIレスポンス。
type invitationResponse struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	ExpiresAt string `json:"expires_at"`
}

func toAccountResponse(a *model.Account) accountResponse {
	return accountResponse{ID: a.ID, Name: a.Name}
}

func toInvitationResponse(inv *model.Invitation) invitationResponse {
	return invitationResponse{
		ID:        inv.ID,
		AccountID: inv.AccountID,
		Email:     inv.Email,
		Status:    string(inv.Status),
		ExpiresAt: inv.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// ListAccounts は所属アカウントの一覧を返す。
// GET /api/accounts
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	accounts, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]accountWithRoleResponse, 0, len(accounts))
	for _, a := range accounts {
		resp = append(resp, accountWithRoleResponse{
			ID:   a.ID,
			Name: a.Name,
			Role: string(a.Role),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// CreateAccount は新しいアカウントを作成する。作成者は管理者になる。
// POST /api/accounts
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "アカウント名は必須です。",
			Category: "validation",
			Action:   "アカウント名を入力してください。",
		})
		return
	}

	account, err := h.service.Create(r.Context(), userID, req.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toAccountResponse(account))
}

// SwitchAccount は現在のアカウントを切り替える。
// POST /api/accounts/{id}/switch
func (h *AccountHandler) SwitchAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	accountID := chi.URLParam(r, "id")
	if err := h.service.Switch(r.Context(), userID, accountID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateInvitation はアカウントへの招待を作成しメールを送信する。
// POST /api/accounts/{id}/invitations
func (h *AccountHandler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req createInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if !strings.Contains(req.Email, "@") {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "メールアドレスの形式が不正です。",
			Category: "validation",
			Action:   "正しいメールアドレスを入力してください。",
		})
		return
	}

	accountID := chi.URLParam(r, "id")
	inv, err := h.service.CreateInvitation(r.Context(), userID, accountID, req.Email)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toInvitationResponse(inv))
}

// AcceptInvitation は招待を承諾しアカウントに参加する。
// POST /api/invitations/accept
func (h *AccountHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req acceptInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	inv, err := h.service.AcceptInvitation(r.Context(), userID, req.InvitationID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toInvitationResponse(inv))
}
