// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: seat, user, validation, guestbook, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSeatConflict         = "SEAT_CONFLICT"
	ErrCodeSeatBusy             = "SEAT_BUSY"
	ErrCodeSeatNotFound         = "SEAT_NOT_FOUND"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeDuplicatePhone       = "DUPLICATE_PHONE"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeGuestbookUnavailable = "GUESTBOOK_UNAVAILABLE"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewSeatConflictError は他のユーザーが保持している席を要求した場合のエラーを生成する。
func NewSeatConflictError(seatIDs []int64) *APIError {
	return &APIError{
		Code:     ErrCodeSeatConflict,
		Message:  fmt.Sprintf("選択した席のうち一部は既に他の方に割り当てられています: %s", joinIDs(seatIDs)),
		Category: "seat",
		Action:   "座席表を更新し、別の席を選択してください。",
	}
}

// NewSeatBusyError は席のロック待ちがタイムアウトした場合のエラーを生成する。
func NewSeatBusyError() *APIError {
	return &APIError{
		Code:     ErrCodeSeatBusy,
		Message:  "選択した席は現在ほかの端末で処理中です。",
		Category: "seat",
		Action:   "数秒待ってから再度お試しください。",
	}
}

// NewSeatNotFoundError は存在しない席IDが指定された場合のエラーを生成する。
func NewSeatNotFoundError(seatIDs []int64) *APIError {
	return &APIError{
		Code:     ErrCodeSeatNotFound,
		Message:  fmt.Sprintf("指定された席が見つかりません: %s", joinIDs(seatIDs)),
		Category: "seat",
		Action:   "座席表を更新してから再度選択してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "user",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewDuplicatePhoneError は登録済みの電話番号で新規登録しようとした場合のエラーを生成する。
func NewDuplicatePhoneError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicatePhone,
		Message:  "この電話番号は既に登録されています。",
		Category: "user",
		Action:   "電話番号でログインしてください。",
	}
}

// NewInvalidRequestError はリクエスト内容が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewGuestbookUnavailableError は外部シートへの書き込みに失敗した場合のエラーを生成する。
func NewGuestbookUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeGuestbookUnavailable,
		Message:  "メッセージの保存に一時的に失敗しました。",
		Category: "guestbook",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRouteNotFoundError は存在しないAPIパスへの要求に対するエラーを生成する。
func NewRouteNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  "指定されたパスは存在しません。",
		Category: "system",
		Action:   "URLを確認してください。",
	}
}

// NewRateLimitedError はレート制限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーの利用者向け表現を生成する。詳細は含めない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
