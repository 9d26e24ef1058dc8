// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/blog/internal/middleware"
	"github.com/hitoshi/blog/internal/model"
)

// maxBodyBytes はJSONリクエストボディの上限サイズ。
const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// messageResponse はメッセージのみを返すレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// errInvalidBody はJSONとして解釈できないリクエストボディを表す。
var errInvalidBody = errors.New("invalid request body")

// decodeJSON はリクエストボディをdstにデコードし、validateタグで検証する。
// JSONが不正な場合はerrInvalidBody、検証に失敗した場合はvalidator.ValidationErrorsを返す。
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return errInvalidBody
	}
	return validate.Struct(dst)
}

// writeDecodeError はdecodeJSONのエラーを400レスポンスに変換する。
// 検証エラーの場合はmissingMessageを返す。
func writeDecodeError(w http.ResponseWriter, err error, missingMessage string) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(missingMessage))
		return
	}
	middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("Invalid request body"))
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外のエラーはログに記録し、internalMessageを500として返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error, internalMessage string) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	middleware.WriteInternalServerError(w, internalMessage)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodePostNotFound:
		return http.StatusNotFound
	case model.ErrCodeUsernameTaken:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
