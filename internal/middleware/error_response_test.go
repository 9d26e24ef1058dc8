package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/blog/internal/model"
)

func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusNotFound, model.NewPostNotFoundError())

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, map[string]any{
		"error":    "Post not found",
		"code":     model.ErrCodePostNotFound,
		"category": "post",
	}, raw)
}

func TestWriteInternalServerError_UsesGivenMessage(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w, "Database query failed")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body ErrorResponseBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "Database query failed", body.Error)
	assert.Equal(t, model.ErrCodeInternal, body.Code)
}
