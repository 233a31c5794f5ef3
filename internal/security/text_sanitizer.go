// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService は音声プロバイダから受信したトランスクリプトや
// 分析サマリーのテキストをサニタイズし、HTMLタグの混入による
// XSS攻撃からユーザーを保護する。
// bluemondayライブラリのStrictPolicyを使用し、全てのタグを除去して
// プレーンテキストのみを通過させる。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキストのサニタイズ機能のインターフェースを定義する。
// ロールプレイセッションのトランスクリプトとサマリーの保存前に使用される。
type TextSanitizerService interface {
	// SanitizeText はテキストをサニタイズしてプレーンテキストを返す。
	// HTMLタグは全て除去され、HTMLエンティティはデコードされる。
	// 前後の空白文字はトリムされる。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは許可タグを一切持たないため、script、iframe、style等の
// 危険なタグを含む全てのHTMLタグが除去される。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText はテキストをサニタイズしてプレーンテキストを返す。
// bluemondayはタグ除去後のテキストをHTMLエスケープして返すため、
// プレーンテキストとして保存できるようエンティティをデコードする。
func (s *textSanitizer) SanitizeText(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}

// compile-time interface check
var _ TextSanitizerService = (*textSanitizer)(nil)
