package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/blog/internal/metrics"
	"github.com/hitoshi/blog/internal/middleware"
	"github.com/hitoshi/blog/internal/model"
	"github.com/hitoshi/blog/internal/post"
)

// PostServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	List(ctx context.Context) ([]post.View, error)
	Get(ctx context.Context, id int64) (*post.View, error)
	Create(ctx context.Context, title, content string) (*post.View, error)
	Update(ctx context.Context, id int64, title, content string) error
	Delete(ctx context.Context, id int64) error
}

// PostHandler は記事のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
	metrics metrics.MetricsCollector
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface, collector metrics.MetricsCollector) *PostHandler {
	return &PostHandler{
		service: service,
		metrics: collector,
	}
}

// postRequest は記事作成・更新リクエストのボディ。
type postRequest struct {
	Title   string `json:"title" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// postResponse は記事のAPIレスポンス。
type postResponse struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"content_html"`
	CreatedAt   time.Time `json:"created_at"`
}

// List は全記事を新しい順に返す。
// GET /api/posts
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err, "Database query failed")
		return
	}

	resp := make([]postResponse, len(views))
	for i, v := range views {
		resp[i] = toPostResponse(v)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get は記事を1件返す。
// GET /api/posts/{id}
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePostID(w, r)
	if !ok {
		return
	}

	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err, "Database query failed")
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(*v))
}

// Create は記事を作成する。管理者のみ。
// POST /api/posts
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err, "Title and content are required")
		return
	}

	v, err := h.service.Create(r.Context(), req.Title, req.Content)
	if err != nil {
		handleServiceError(w, r, err, "Failed to create post")
		return
	}
	h.metrics.RecordPostMutation(metrics.OpCreate)

	writeJSON(w, http.StatusCreated, toPostResponse(*v))
}

// Update は記事のタイトルと本文を置き換える。管理者のみ。
// PUT /api/posts/{id}
func (h *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePostID(w, r)
	if !ok {
		return
	}

	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err, "Title and content are required")
		return
	}

	if err := h.service.Update(r.Context(), id, req.Title, req.Content); err != nil {
		handleServiceError(w, r, err, "Failed to update post")
		return
	}
	h.metrics.RecordPostMutation(metrics.OpUpdate)

	writeJSON(w, http.StatusOK, messageResponse{Message: "Post updated successfully"})
}

// Delete は記事を削除する。管理者のみ。
// DELETE /api/posts/{id}
func (h *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePostID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, r, err, "Failed to delete post")
		return
	}
	h.metrics.RecordPostMutation(metrics.OpDelete)

	writeJSON(w, http.StatusOK, messageResponse{Message: "Post deleted successfully"})
}

// parsePostID はURLパラメータの記事IDを解析する。
// 数値として解釈できないIDは存在しない記事として404を返す。
func parsePostID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewPostNotFoundError())
		return 0, false
	}
	return id, true
}

func toPostResponse(v post.View) postResponse {
	return postResponse{
		ID:          v.ID,
		Title:       v.Title,
		Content:     v.Content,
		ContentHTML: v.ContentHTML,
		CreatedAt:   v.CreatedAt,
	}
}
