package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/blog/internal/metrics"
	"github.com/hitoshi/blog/internal/middleware"
	"github.com/hitoshi/blog/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, username, password string) (*model.User, error)
	Login(ctx context.Context, username, password string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// CookieSigner はセッションCookie値の署名と検証を行う。
type CookieSigner interface {
	Sign(token string) (string, error)
	Verify(value string) (string, bool)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はユーザー登録とログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	signer  CookieSigner
	metrics metrics.MetricsCollector
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, signer CookieSigner, collector metrics.MetricsCollector, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		signer:  signer,
		metrics: collector,
		config:  config,
	}
}

// credentialsRequest は登録・ログインリクエストのボディ。
type credentialsRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// loginRequest はログインリクエストのボディ。
// 未入力も資格情報不一致として扱うため必須検証は行わない。
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse はログイン成功時のレスポンス。
type loginResponse struct {
	Message string            `json:"message"`
	User    model.SessionUser `json:"user"`
}

// statusResponse は認証状態のレスポンス。
type statusResponse struct {
	LoggedIn bool               `json:"loggedIn"`
	User     *model.SessionUser `json:"user,omitempty"`
}

// Register は一般ユーザーを登録する。
// POST /api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err, "Username and password are required")
		return
	}

	if _, err := h.service.Register(r.Context(), req.Username, req.Password); err != nil {
		handleServiceError(w, r, err, "Server error during registration")
		return
	}

	writeJSON(w, http.StatusCreated, messageResponse{Message: "User registered successfully"})
}

// Login は資格情報を検証し、署名付きセッションCookieを発行する。
// POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err, "Username and password are required")
		return
	}

	session, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeInvalidCredentials {
			h.metrics.RecordLoginAttempt(metrics.LoginFailure)
		}
		handleServiceError(w, r, err, "Server error during login")
		return
	}
	value, err := h.signer.Sign(session.ID)
	if err != nil {
		// Cookieを渡せないセッションは残さない
		if logoutErr := h.service.Logout(r.Context(), session.ID); logoutErr != nil {
			slog.Error("failed to discard unsigned session", slog.String("error", logoutErr.Error()))
		}
		handleServiceError(w, r, err, "Server error during login")
		return
	}
	h.metrics.RecordLoginAttempt(metrics.LoginSuccess)

	// 以前のセッションCookieは新しいトークンで置き換える
	h.setSessionCookie(w, value, h.config.SessionMaxAge)

	writeJSON(w, http.StatusOK, loginResponse{
		Message: "Login successful",
		User:    session.User,
	})
}

// Logout はセッションを破棄し、Cookieをクリアする。
// POST /api/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if token, ok := h.signer.Verify(cookie.Value); ok {
			if err := h.service.Logout(r.Context(), token); err != nil {
				slog.Error("failed to logout", slog.String("error", err.Error()))
				middleware.WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
					Code:     model.ErrCodeLogoutFailed,
					Message:  "Could not log out.",
					Category: "system",
				})
				return
			}
		}
	}

	h.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logout successful"})
}

// Status は現在の認証状態を返す。セッションの解決に失敗しても未ログインとして200を返す。
// GET /api/auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFromContext(r.Context())
	if session == nil {
		writeJSON(w, http.StatusOK, statusResponse{LoggedIn: false})
		return
	}

	user := session.User
	writeJSON(w, http.StatusOK, statusResponse{LoggedIn: true, User: &user})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
