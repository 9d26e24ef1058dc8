// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/blog/internal/model"
)

// SessionCookieName はセッショントークンを運ぶCookie名。
const SessionCookieName = "blog_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey   = contextKey("session")
	requestIDContextKey = contextKey("request_id")
)

// SessionFinder はセッションの検索に必要なインターフェース。
// 未登録または期限切れの場合はnilを返す。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// TokenVerifier は署名付きCookie値を検証し、セッショントークンを取り出す。
type TokenVerifier interface {
	Verify(value string) (string, bool)
}

// NewSessionMiddleware は署名付きCookieからセッションを解決し、
// 認証済みセッションをリクエストコンテキストに注入するミドルウェアを返す。
// Cookieがない、署名が不正、セッションが無効のいずれでも匿名として処理を続行する。
func NewSessionMiddleware(finder SessionFinder, verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := verifier.Verify(cookie.Value)
			if !ok {
				slog.Debug("session cookie signature mismatch")
				next.ServeHTTP(w, r)
				return
			}

			session, err := finder.FindByID(r.Context(), token)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if session == nil {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// RequireAdmin は管理者セッションのみを通過させるガード。
// それ以外は403を返し、後続のハンドラーは実行されない。
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := SessionFromContext(r.Context())
		if session == nil || !session.User.IsAdmin() {
			WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// 匿名リクエストではnilを返す。
func SessionFromContext(ctx context.Context) *model.Session {
	session, _ := ctx.Value(sessionContextKey).(*model.Session)
	return session
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	if holder, ok := ctx.Value(requestInfoContextKey).(*requestInfo); ok {
		holder.userID = session.User.ID
	}
	return context.WithValue(ctx, sessionContextKey, session)
}
