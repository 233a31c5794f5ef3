// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, account, roleplay, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSessionExpired       = "SESSION_EXPIRED"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken           = "EMAIL_TAKEN"
	ErrCodeWeakPassword         = "WEAK_PASSWORD"
	ErrCodeOnboardingRequired   = "ONBOARDING_REQUIRED"
	ErrCodeWebsiteURLInvalid    = "WEBSITE_URL_INVALID"
	ErrCodeWebsiteURLBlocked    = "WEBSITE_URL_BLOCKED"
	ErrCodeAccountNotFound      = "ACCOUNT_NOT_FOUND"
	ErrCodeNotAMember           = "NOT_A_MEMBER"
	ErrCodeAdminRequired        = "ADMIN_REQUIRED"
	ErrCodeInvitationNotFound   = "INVITATION_NOT_FOUND"
	ErrCodeInvitationInvalid    = "INVITATION_INVALID"
	ErrCodeEmailSendFailed      = "EMAIL_SEND_FAILED"
	ErrCodeRoleplayNotFound     = "ROLEPLAY_NOT_FOUND"
	ErrCodeRoleplayCompleted    = "ROLEPLAY_ALREADY_COMPLETED"
	ErrCodeProviderError        = "PROVIDER_ERROR"
	ErrCodeProviderTimeout      = "PROVIDER_TIMEOUT"
	ErrCodeAvatarInvalid        = "AVATAR_INVALID"
	ErrCodeAvatarTooLarge       = "AVATAR_TOO_LARGE"
)

// NewSessionExpiredError はセッション無効エラーを生成する。
// プロフィール行が存在しない不整合セッションの強制サインアウトにも使用する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "もう一度ログインしてください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// メールアドレス未登録とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewWeakPasswordError はパスワード強度不足エラーを生成する。
func NewWeakPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  "パスワードは8文字以上で入力してください。",
		Category: "validation",
		Action:   "より長いパスワードを設定してください。",
	}
}

// NewOnboardingRequiredError はオンボーディング未完了エラーを生成する。
func NewOnboardingRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeOnboardingRequired,
		Message:  "初期設定が完了していません。",
		Category: "auth",
		Action:   "オンボーディングを完了してください。",
	}
}

// NewWebsiteURLInvalidError は会社サイトURL形式エラーを生成する。
func NewWebsiteURLInvalidError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeWebsiteURLInvalid,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewWebsiteURLBlockedError は会社サイトURLのブロックエラーを生成する。
func NewWebsiteURLBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeWebsiteURLBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLは登録できません。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。",
	}
}

// NewAccountNotFoundError はアカウント未検出エラーを生成する。
func NewAccountNotFoundError(accountID string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  fmt.Sprintf("指定されたアカウントが見つかりません: %s", accountID),
		Category: "account",
		Action:   "アカウントIDを確認してください。",
	}
}

// NewNotAMemberError は非メンバーエラーを生成する。
func NewNotAMemberError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAMember,
		Message:  "このアカウントのメンバーではありません。",
		Category: "account",
		Action:   "アカウントの管理者に招待を依頼してください。",
	}
}

// NewAdminRequiredError は管理者権限不足エラーを生成する。
func NewAdminRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminRequired,
		Message:  "この操作にはアカウントの管理者権限が必要です。",
		Category: "account",
		Action:   "アカウントの管理者に操作を依頼してください。",
	}
}

// NewInvitationNotFoundError は招待未検出エラーを生成する。
func NewInvitationNotFoundError(invitationID string) *APIError {
	return &APIError{
		Code:     ErrCodeInvitationNotFound,
		Message:  fmt.Sprintf("指定された招待が見つかりません: %s", invitationID),
		Category: "account",
		Action:   "招待リンクを確認してください。",
	}
}

// NewInvitationInvalidError は承諾不可能な招待のエラーを生成する。
// 承諾済み・期限切れの招待を再度承諾しようとした場合に使用する。
func NewInvitationInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeInvitationInvalid,
		Message:  "この招待は既に使用済みか、有効期限が切れています。",
		Category: "account",
		Action:   "アカウントの管理者に新しい招待を依頼してください。",
	}
}

// NewEmailSendFailedError は招待メール送信失敗エラーを生成する。
func NewEmailSendFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailSendFailed,
		Message:  "招待メールの送信に失敗しました。",
		Category: "system",
		Action:   "招待は作成されています。しばらく待ってからメールを再送してください。",
	}
}

// NewRoleplayNotFoundError はロールプレイセッション未検出エラーを生成する。
func NewRoleplayNotFoundError(sessionID string) *APIError {
	return &APIError{
		Code:     ErrCodeRoleplayNotFound,
		Message:  fmt.Sprintf("指定されたセッションが見つかりません: %s", sessionID),
		Category: "roleplay",
		Action:   "セッションIDを確認してください。",
	}
}

// NewRoleplayCompletedError は完了済みセッションへの操作エラーを生成する。
// ステータスは前方にのみ遷移し、逆戻りは許可しない。
func NewRoleplayCompletedError() *APIError {
	return &APIError{
		Code:     ErrCodeRoleplayCompleted,
		Message:  "このセッションは既に終了しています。",
		Category: "roleplay",
		Action:   "新しいセッションを開始してください。",
	}
}

// NewProviderError は音声会話プロバイダーのエラーを生成する。
func NewProviderError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderError,
		Message:  "音声会話サービスとの通信に失敗しました。",
		Category: "roleplay",
		Action:   "しばらく待ってから新しいセッションを開始してください。",
	}
}

// NewProviderTimeoutError はプロバイダーの解析待ちタイムアウトエラーを生成する。
func NewProviderTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderTimeout,
		Message:  "会話の解析結果の取得がタイムアウトしました。",
		Category: "roleplay",
		Action:   "セッション履歴をしばらく待ってから確認してください。",
	}
}

// NewAvatarInvalidError はアバター画像の形式エラーを生成する。
func NewAvatarInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeAvatarInvalid,
		Message:  "アップロードできない画像形式です。",
		Category: "validation",
		Action:   "JPEG、PNG、WebP、GIFのいずれかの画像を選択してください。",
	}
}

// NewAvatarTooLargeError はアバター画像のサイズ超過エラーを生成する。
func NewAvatarTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeAvatarTooLarge,
		Message:  fmt.Sprintf("画像サイズが上限（%dバイト）を超えています。", maxBytes),
		Category: "validation",
		Action:   "より小さい画像を選択してください。",
	}
}
