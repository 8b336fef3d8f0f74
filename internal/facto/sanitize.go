package facto

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は事実の自由記述テキストからマークアップを除去する。
// 保存前に適用する。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// plainTextSanitizer はbluemondayのStrictPolicyでタグをすべて除去する実装。
// ポリシーはスレッドセーフに共有できる。
type plainTextSanitizer struct {
	policy *bluemonday.Policy
}

// NewPlainTextSanitizer はタグを一切許可しないサニタイザーを生成する。
func NewPlainTextSanitizer() TextSanitizer {
	return &plainTextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
// StrictPolicyはテキスト中の記号をエスケープするため、保存用に元に戻す。
func (s *plainTextSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
