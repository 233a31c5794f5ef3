// Package voice は音声会話プロバイダとの連携機能を提供する。
// 会話トークンの取得、会話の開始・終了、分析結果の取得を行う。
// 静的APIキーはサーバー内に留め、クライアントには短命トークンのみを渡す。
package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	// defaultBaseURL は音声会話プロバイダAPIのベースURL。
	defaultBaseURL = "https://api.elevenlabs.io"
	// maxResponseBytes はレスポンスボディの最大読み取りサイズ。
	// トランスクリプトが長大な場合でも読み切れる余裕を持たせている。
	maxResponseBytes = 4 << 20
)

// 会話分析の処理状態。
const (
	ConversationStatusProcessing = "processing"
	ConversationStatusDone       = "done"
	ConversationStatusFailed     = "failed"
)

// Turn はトランスクリプトの1発話。
type Turn struct {
	Role           string  `json:"role"`
	Message        string  `json:"message"`
	TimeInCallSecs float64 `json:"time_in_call_secs"`
}

// Metadata は会話のメタデータ。
type Metadata struct {
	CallDurationSecs int `json:"call_duration_secs"`
}

// Analysis は会話終了後にプロバイダが生成する分析結果。
// 分析が完了するまでは空の場合がある。
type Analysis struct {
	TranscriptSummary string `json:"transcript_summary"`
	Topic             string `json:"topic"`
	CallSuccessful    string `json:"call_successful"`
}

// Conversation はプロバイダ側の会話の状態と分析結果。
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	Status         string    `json:"status"`
	Transcript     []Turn    `json:"transcript"`
	Metadata       Metadata  `json:"metadata"`
	Analysis       *Analysis `json:"analysis"`
}

// ProviderService は音声会話プロバイダのクライアントのインターフェースを定義する。
// ロールプレイセッションのライフサイクル管理で使用される。
type ProviderService interface {
	// GetConversationToken はクライアント接続用の短命トークンを取得する。
	GetConversationToken(ctx context.Context) (string, error)

	// StartConversation は指定エージェントとの会話をプロバイダ側に作成し、
	// 会話IDを返す。
	StartConversation(ctx context.Context, agentID string) (string, error)

	// EndConversation は会話を終了させる。冪等ではなく、呼び出しは1回のみ。
	EndConversation(ctx context.Context, conversationID string) error

	// GetConversation は会話の現在の状態と分析結果を取得する。
	// 分析中の場合はStatusがprocessingのまま返る（呼び出し元がポーリングを判断する）。
	GetConversation(ctx context.Context, conversationID string) (*Conversation, error)
}

// Client は音声会話プロバイダAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	baseURL    string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClient の新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, apiKey string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
	}
}

// SetBaseURL はAPIのベースURLを差し替える。テスト専用。
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
}

// GetConversationToken はクライアント接続用の短命トークンを取得する。
func (c *Client) GetConversationToken(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/convai/conversation/token", nil)
	if err != nil {
		return "", err
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("トークンレスポンスのパースに失敗しました: %w", err)
	}
	if result.Token == "" {
		return "", fmt.Errorf("プロバイダが空のトークンを返しました")
	}
	return result.Token, nil
}

// StartConversation は指定エージェントとの会話をプロバイダ側に作成する。
func (c *Client) StartConversation(ctx context.Context, agentID string) (string, error) {
	payload, err := json.Marshal(map[string]string{"agent_id": agentID})
	if err != nil {
		return "", fmt.Errorf("リクエストボディの作成に失敗しました: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/v1/convai/conversations", payload)
	if err != nil {
		return "", err
	}

	var result struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("会話作成レスポンスのパースに失敗しました: %w", err)
	}
	if result.ConversationID == "" {
		return "", fmt.Errorf("プロバイダが空の会話IDを返しました")
	}
	return result.ConversationID, nil
}

// EndConversation は会話を終了させる。
func (c *Client) EndConversation(ctx context.Context, conversationID string) error {
	path := "/v1/convai/conversations/" + url.PathEscape(conversationID) + "/end"
	_, err := c.do(ctx, http.MethodPost, path, nil)
	return err
}

// GetConversation は会話の現在の状態と分析結果を取得する。
func (c *Client) GetConversation(ctx context.Context, conversationID string) (*Conversation, error) {
	path := "/v1/convai/conversations/" + url.PathEscape(conversationID)
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var conv Conversation
	if err := json.Unmarshal(body, &conv); err != nil {
		return nil, fmt.Errorf("会話レスポンスのパースに失敗しました: %w", err)
	}
	if conv.Status == "" {
		return nil, fmt.Errorf("プロバイダがステータスを持たない会話を返しました")
	}
	return &conv, nil
}

// do はプロバイダAPIへのHTTPリクエストを実行し、レスポンスボディを返す。
// 認証ヘッダの付与、ステータス検証、構造化ログを共通化する。
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = strings.NewReader(string(payload))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("音声プロバイダAPIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("音声プロバイダAPIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("音声プロバイダAPIがステータス %d を返しました", resp.StatusCode)
	}

	return body, nil
}

// compile-time interface check
var _ ProviderService = (*Client)(nil)
