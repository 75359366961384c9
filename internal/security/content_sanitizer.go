// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はゲストブックに書き込まれる自由記述テキストから
// HTMLを取り除き、プレーンテキストとして保存できる形にする。
// bluemondayのStrictPolicyを使用し、全てのタグと属性を除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由記述テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// Sanitize は入力から全てのHTMLタグを除去したプレーンテキストを返す。
	// script, style 要素は中身ごと除去する。
	// 文字実体参照はデコードし、前後の空白を取り除く。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// StrictPolicyは残したテキストをHTMLエスケープして返すため、シートにはデコードして保存する
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
