package post

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/blog/internal/model"
	"github.com/hitoshi/blog/internal/repository"
	"github.com/hitoshi/blog/internal/security"
)

// --- モック ---

type mockPostRepo struct {
	listFn     func(ctx context.Context) ([]*model.Post, error)
	findByIDFn func(ctx context.Context, id int64) (*model.Post, error)
	createFn   func(ctx context.Context, p *model.Post) error
	updateFn   func(ctx context.Context, p *model.Post) (bool, error)
	deleteFn   func(ctx context.Context, id int64) (bool, error)
}

func (m *mockPostRepo) List(ctx context.Context) ([]*model.Post, error) {
	return m.listFn(ctx)
}
func (m *mockPostRepo) FindByID(ctx context.Context, id int64) (*model.Post, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockPostRepo) Create(ctx context.Context, p *model.Post) error {
	return m.createFn(ctx, p)
}
func (m *mockPostRepo) Update(ctx context.Context, p *model.Post) (bool, error) {
	return m.updateFn(ctx, p)
}
func (m *mockPostRepo) Delete(ctx context.Context, id int64) (bool, error) {
	return m.deleteFn(ctx, id)
}

var _ repository.PostRepository = (*mockPostRepo)(nil)

func newService(repo *mockPostRepo) *Service {
	return NewService(repo, security.NewContentSanitizer())
}

func requireAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, code, apiErr.Code)
}

func TestService_List(t *testing.T) {
	now := time.Now()
	repo := &mockPostRepo{
		listFn: func(_ context.Context) ([]*model.Post, error) {
			return []*model.Post{
				{ID: 2, Title: "新しい記事", Content: "<p>b</p><script>x()</script>", CreatedAt: now},
				{ID: 1, Title: "古い記事", Content: "a", CreatedAt: now.Add(-time.Hour)},
			}, nil
		},
	}

	views, err := newService(repo).List(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)

	assert.Equal(t, int64(2), views[0].ID)
	assert.Equal(t, int64(1), views[1].ID)
	// 保存された本文はそのまま返し、HTMLはサニタイズ済みの派生値になる
	assert.Equal(t, "<p>b</p><script>x()</script>", views[0].Content)
	assert.Equal(t, "<p>b</p>", views[0].ContentHTML)
}

func TestService_List_Empty_ReturnsEmptySlice(t *testing.T) {
	repo := &mockPostRepo{
		listFn: func(_ context.Context) ([]*model.Post, error) { return []*model.Post{}, nil },
	}

	views, err := newService(repo).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, views)
	assert.Empty(t, views)
}

func TestService_List_RepositoryError(t *testing.T) {
	dbErr := errors.New("db down")
	repo := &mockPostRepo{
		listFn: func(_ context.Context) ([]*model.Post, error) { return nil, dbErr },
	}

	_, err := newService(repo).List(context.Background())
	assert.ErrorIs(t, err, dbErr)
}

func TestService_Get(t *testing.T) {
	repo := &mockPostRepo{
		findByIDFn: func(_ context.Context, id int64) (*model.Post, error) {
			if id == 1 {
				return &model.Post{ID: 1, Title: "T", Content: "C"}, nil
			}
			return nil, nil
		},
	}
	svc := newService(repo)

	v, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "T", v.Title)
	assert.Equal(t, "C", v.Content)

	_, err = svc.Get(context.Background(), 999)
	requireAPIErrorCode(t, err, model.ErrCodePostNotFound)
}

func TestService_Create(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var saved *model.Post
	repo := &mockPostRepo{
		createFn: func(_ context.Context, p *model.Post) error {
			p.ID = 10
			p.CreatedAt = created
			saved = p
			return nil
		},
	}

	v, err := newService(repo).Create(context.Background(), "Hello", "World")
	require.NoError(t, err)

	require.NotNil(t, saved)
	assert.Equal(t, "Hello", saved.Title)
	assert.Equal(t, "World", saved.Content)
	assert.Equal(t, int64(10), v.ID)
	assert.Equal(t, created, v.CreatedAt)
	assert.Equal(t, "World", v.ContentHTML)
}

func TestService_Create_Validation(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		content string
	}{
		{"タイトルが空", "", "body"},
		{"本文が空", "title", ""},
		{"タイトルが空白のみ", "   ", "body"},
		{"本文が空白のみ", "title", "\n\t"},
		{"タイトルが長すぎる", strings.Repeat("あ", MaxTitleLength+1), "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockPostRepo{
				createFn: func(_ context.Context, _ *model.Post) error {
					t.Error("repository should not be called")
					return nil
				},
			}

			_, err := newService(repo).Create(context.Background(), tt.title, tt.content)
			requireAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
		})
	}
}

func TestService_Create_MaxLengthTitleIsAccepted(t *testing.T) {
	repo := &mockPostRepo{
		createFn: func(_ context.Context, p *model.Post) error {
			p.ID = 1
			return nil
		},
	}

	_, err := newService(repo).Create(context.Background(), strings.Repeat("あ", MaxTitleLength), "body")
	assert.NoError(t, err)
}

func TestService_Update(t *testing.T) {
	tests := []struct {
		name     string
		updated  bool
		repoErr  error
		wantCode string
		wantErr  bool
	}{
		{"更新成功", true, nil, "", false},
		{"存在しない記事", false, nil, model.ErrCodePostNotFound, true},
		{"DBエラー", false, errors.New("db down"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *model.Post
			repo := &mockPostRepo{
				updateFn: func(_ context.Context, p *model.Post) (bool, error) {
					got = p
					return tt.updated, tt.repoErr
				},
			}

			err := newService(repo).Update(context.Background(), 5, "New", "Body")
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, &model.Post{ID: 5, Title: "New", Content: "Body"}, got)
				return
			}
			require.Error(t, err)
			if tt.wantCode != "" {
				requireAPIErrorCode(t, err, tt.wantCode)
			} else {
				assert.ErrorIs(t, err, tt.repoErr)
			}
		})
	}
}

func TestService_Update_Validation(t *testing.T) {
	repo := &mockPostRepo{
		updateFn: func(_ context.Context, _ *model.Post) (bool, error) {
			t.Error("repository should not be called")
			return true, nil
		},
	}

	err := newService(repo).Update(context.Background(), 1, "", "body")
	requireAPIErrorCode(t, err, model.ErrCodeInvalidRequest)
}

func TestService_Delete(t *testing.T) {
	repo := &mockPostRepo{
		deleteFn: func(_ context.Context, id int64) (bool, error) {
			return id == 1, nil
		},
	}
	svc := newService(repo)

	require.NoError(t, svc.Delete(context.Background(), 1))

	err := svc.Delete(context.Background(), 2)
	requireAPIErrorCode(t, err, model.ErrCodePostNotFound)
}

func TestService_Delete_RepositoryError(t *testing.T) {
	dbErr := errors.New("db down")
	repo := &mockPostRepo{
		deleteFn: func(_ context.Context, _ int64) (bool, error) { return false, dbErr },
	}

	err := newService(repo).Delete(context.Background(), 1)
	assert.ErrorIs(t, err, dbErr)
}
