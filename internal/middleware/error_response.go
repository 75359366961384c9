package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hitoshi/guestseat/internal/model"
)

// seatBusyRetryAfterSec はSEAT_BUSY応答で案内する再試行までの秒数。
const seatBusyRetryAfterSec = 1

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// StatusFor はエラーコードに対応するHTTPステータスを返す。未知のコードは500。
func StatusFor(code string) int {
	switch code {
	case model.ErrCodeSeatConflict, model.ErrCodeSeatBusy, model.ErrCodeDuplicatePhone:
		return http.StatusConflict
	case model.ErrCodeSeatNotFound, model.ErrCodeUserNotFound, model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeGuestbookUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteAPIError はエラーコードから決まるステータスでエラーレスポンスを書き込む。
// SEAT_BUSY にはRetry-Afterを付ける。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	if apiErr.Code == model.ErrCodeSeatBusy {
		setRetryAfter(w, seatBusyRetryAfterSec)
	}
	WriteErrorResponse(w, StatusFor(apiErr.Code), apiErr)
}

// WriteErrorResponse は指定ステータスで統一エラーフォーマットのレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は詳細を伏せた500レスポンスを書き込む。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

func setRetryAfter(w http.ResponseWriter, seconds int) {
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
}
