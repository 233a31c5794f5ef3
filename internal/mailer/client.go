// Package mailer はメール配信APIとの連携機能を提供する。
// 招待メールの本文組み立てと配信APIへの送信を行う。
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

const (
	// defaultEndpoint はメール配信APIのエンドポイント。
	defaultEndpoint = "https://api.resend.com/emails"
	// maxErrorBodyBytes はエラーレスポンスの最大読み取りサイズ。
	maxErrorBodyBytes = 4096
)

// Invitation は招待メールの送信に必要な情報。
type Invitation struct {
	InvitationID string
	AccountName  string
	InviteeEmail string
}

// MailerService はメール送信機能のインターフェースを定義する。
type MailerService interface {
	// SendInvitation は招待メールを送信する。
	// 送信失敗時はエラーを返す（招待レコード自体は作成済みのまま残る）。
	SendInvitation(ctx context.Context, inv Invitation) error
}

// Client はメール配信APIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	from       string
	baseURL    string // 招待受諾URLの組み立てに使用するアプリのベースURL
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClient の新しいインスタンスを生成する。
// baseURLはアプリケーション自体の公開URLで、招待受諾リンクの組み立てに使用する。
func NewClient(httpClient *http.Client, logger *slog.Logger, apiKey, from, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		from:       from,
		baseURL:    baseURL,
		endpoint:   defaultEndpoint,
	}
}

// SetEndpoint は配信APIのエンドポイントを差し替える。テスト専用。
func (c *Client) SetEndpoint(endpoint string) {
	c.endpoint = endpoint
}

// AcceptURL は招待受諾ページのURLを組み立てる。
func (c *Client) AcceptURL(invitationID string) string {
	return fmt.Sprintf("%s/accept-invitation?id=%s", c.baseURL, url.QueryEscape(invitationID))
}

// sendRequest は配信APIへのリクエストボディ。
type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

// SendInvitation は招待メールを送信する。
func (c *Client) SendInvitation(ctx context.Context, inv Invitation) error {
	subject := fmt.Sprintf("%s への招待が届いています", inv.AccountName)
	text := fmt.Sprintf(
		"%s のメンバーとして招待されました。\n\n以下のリンクから招待を受諾してください:\n%s\n\nこのリンクには有効期限があります。心当たりのない場合はこのメールを破棄してください。\n",
		inv.AccountName,
		c.AcceptURL(inv.InvitationID),
	)

	payload, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{inv.InviteeEmail},
		Subject: subject,
		Text:    text,
	})
	if err != nil {
		return fmt.Errorf("リクエストボディの作成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("メール配信APIの呼び出しに失敗しました",
			slog.String("invitation_id", inv.InvitationID),
			slog.String("error", err.Error()),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		c.logger.Error("メール配信APIがエラーステータスを返しました",
			slog.String("invitation_id", inv.InvitationID),
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return fmt.Errorf("メール配信APIがステータス %d を返しました", resp.StatusCode)
	}

	c.logger.Info("招待メールを送信しました",
		slog.String("invitation_id", inv.InvitationID),
	)
	return nil
}

// compile-time interface check
var _ MailerService = (*Client)(nil)
