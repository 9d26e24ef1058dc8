package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/blog/internal/auth"
	"github.com/hitoshi/blog/internal/metrics"
	"github.com/hitoshi/blog/internal/middleware"
	"github.com/hitoshi/blog/internal/model"
	"github.com/hitoshi/blog/internal/post"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn func(ctx context.Context, username, password string) (*model.User, error)
	loginFn    func(ctx context.Context, username, password string) (*model.Session, error)
	logoutFn   func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) Register(ctx context.Context, username, password string) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, username, password)
	}
	return &model.User{ID: 1, Username: username, Role: model.RoleUser}, nil
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

type mockPostService struct {
	listFn   func(ctx context.Context) ([]post.View, error)
	getFn    func(ctx context.Context, id int64) (*post.View, error)
	createFn func(ctx context.Context, title, content string) (*post.View, error)
	updateFn func(ctx context.Context, id int64, title, content string) error
	deleteFn func(ctx context.Context, id int64) error
}

func (m *mockPostService) List(ctx context.Context) ([]post.View, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []post.View{}, nil
}

func (m *mockPostService) Get(ctx context.Context, id int64) (*post.View, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, model.NewPostNotFoundError()
}

func (m *mockPostService) Create(ctx context.Context, title, content string) (*post.View, error) {
	if m.createFn != nil {
		return m.createFn(ctx, title, content)
	}
	return &post.View{ID: 1, Title: title, Content: content}, nil
}

func (m *mockPostService) Update(ctx context.Context, id int64, title, content string) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, title, content)
	}
	return nil
}

func (m *mockPostService) Delete(ctx context.Context, id int64) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// mockCollector は記録されたメトリクスを保持する。
type mockCollector struct {
	mu            sync.Mutex
	loginAttempts map[string]int
	mutations     map[string]int
	requests      int
}

func newMockCollector() *mockCollector {
	return &mockCollector{
		loginAttempts: map[string]int{},
		mutations:     map[string]int{},
	}
}

func (m *mockCollector) RecordHTTPRequest(_, _ string, _ int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
}

func (m *mockCollector) RecordLoginAttempt(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loginAttempts[result]++
}

func (m *mockCollector) RecordPostMutation(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations[op]++
}

type mockSessionFinder struct {
	sessions map[string]*model.Session
}

func (m *mockSessionFinder) FindByID(_ context.Context, id string) (*model.Session, error) {
	return m.sessions[id], nil
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(_ context.Context) error {
	return m.err
}

// --- compile-time interface checks ---
var (
	_ AuthServiceInterface     = (*mockAuthService)(nil)
	_ PostServiceInterface     = (*mockPostService)(nil)
	_ metrics.MetricsCollector = (*mockCollector)(nil)
	_ middleware.SessionFinder = (*mockSessionFinder)(nil)
	_ HealthChecker            = (*mockHealthChecker)(nil)
	_ CookieSigner             = (*auth.CookieSigner)(nil)
)

// --- ヘルパー ---

const testSecret = "handler-test-secret"

var testSigner = auth.NewCookieSigner(middleware.SessionCookieName, testSecret, 86400)

// signedCookie はtestSignerで署名したCookie値を返す。
func signedCookie(t *testing.T, token string) string {
	t.Helper()
	value, err := testSigner.Sign(token)
	if err != nil {
		t.Fatalf("failed to sign cookie: %v", err)
	}
	return value
}

// failingSigner は署名に常に失敗するCookieSigner。
type failingSigner struct{}

func (failingSigner) Sign(string) (string, error) { return "", errors.New("signing key unavailable") }
func (failingSigner) Verify(string) (string, bool) { return "", false }

// withURLParam はchiのURLパラメータをリクエストコンテキストに設定する。
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest はJSONボディ付きのリクエストを生成する。
func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withSession はリクエストコンテキストにセッションを注入する。
func withSession(r *http.Request, user model.SessionUser) *http.Request {
	session := &model.Session{ID: "sess-" + user.Username, User: user, ExpiresAt: time.Now().Add(time.Hour)}
	return r.WithContext(middleware.ContextWithSession(r.Context(), session))
}

// sessionCookie はレスポンスからセッションCookieを取り出す。
func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	return nil
}
