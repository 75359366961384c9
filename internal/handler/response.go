// Package handler はHTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/guestseat/internal/middleware"
	"github.com/hitoshi/guestseat/internal/model"
)

// maxBodyBytes はリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator はエラーメッセージにJSONフィールド名を使うバリデーターを生成する。
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// okResponse は書き込み系エンドポイントの成功レスポンス。
type okResponse struct {
	OK bool `json:"ok"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeOK は {"ok": true} を書き込む。
func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// decodeJSON はリクエストボディをdstにデコードし、validateタグで検証する。
// 失敗した場合は400のエラーレスポンスを書き込んでfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		middleware.WriteAPIError(w, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}

	if err := validate.Struct(dst); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidRequestError(describeValidationError(err)))
		return false
	}
	return true
}

// describeValidationError はバリデーションエラーを利用者向けの短い文に変換する。
func describeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s は必須です", fe.Field()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s は%s以下にしてください", fe.Field(), fe.Param()))
		case "min", "gte":
			parts = append(parts, fmt.Sprintf("%s は%s以上にしてください", fe.Field(), fe.Param()))
		case "gt":
			parts = append(parts, fmt.Sprintf("%s は%sより大きい値にしてください", fe.Field(), fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s は %s のいずれかにしてください", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s が不正です", fe.Field()))
		}
	}
	return strings.Join(parts, ", ")
}

// parseIDParam はURLパラメータを正の整数IDとして解析する。
// 失敗した場合は400のエラーレスポンスを書き込んでfalseを返す。
func parseIDParam(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteAPIError(w, model.NewInvalidRequestError(key+" は正の整数で指定してください"))
		return 0, false
	}
	return id, true
}
