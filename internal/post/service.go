// Package post は記事管理のドメインロジックを提供する。
package post

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/blog/internal/model"
	"github.com/hitoshi/blog/internal/repository"
	"github.com/hitoshi/blog/internal/security"
)

// MaxTitleLength はタイトルの最大文字数。postsテーブルのVARCHAR(255)に合わせる。
const MaxTitleLength = 255

// View は記事と、表示用にサニタイズしたHTML本文を結合したドメインオブジェクト。
// Contentは保存された値をそのまま保持する。
type View struct {
	ID          int64
	Title       string
	Content     string
	ContentHTML string
	CreatedAt   time.Time
}

// Service は記事管理のサービス層。
type Service struct {
	postRepo  repository.PostRepository
	sanitizer security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(postRepo repository.PostRepository, sanitizer security.ContentSanitizerService) *Service {
	return &Service{
		postRepo:  postRepo,
		sanitizer: sanitizer,
	}
}

// List は全記事を新しい順に返す。記事がない場合は空スライスを返す。
func (s *Service) List(ctx context.Context) ([]View, error) {
	posts, err := s.postRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	views := make([]View, 0, len(posts))
	for _, p := range posts {
		views = append(views, s.toView(p))
	}
	return views, nil
}

// Get は指定IDの記事を返す。存在しない場合はPOST_NOT_FOUNDエラーを返す。
func (s *Service) Get(ctx context.Context, id int64) (*View, error) {
	p, err := s.postRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	if p == nil {
		return nil, model.NewPostNotFoundError()
	}

	v := s.toView(p)
	return &v, nil
}

// Create は記事を作成する。IDと作成日時はデータストアが採番する。
func (s *Service) Create(ctx context.Context, title, content string) (*View, error) {
	if err := validate(title, content); err != nil {
		return nil, err
	}

	p := &model.Post{Title: title, Content: content}
	if err := s.postRepo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	slog.Info("post created", slog.Int64("post_id", p.ID))

	v := s.toView(p)
	return &v, nil
}

// Update は記事のタイトルと本文を置き換える。作成日時は変更しない。
func (s *Service) Update(ctx context.Context, id int64, title, content string) error {
	if err := validate(title, content); err != nil {
		return err
	}

	updated, err := s.postRepo.Update(ctx, &model.Post{ID: id, Title: title, Content: content})
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	if !updated {
		return model.NewPostNotFoundError()
	}

	slog.Info("post updated", slog.Int64("post_id", id))
	return nil
}

// Delete は記事を削除する。存在しない場合はPOST_NOT_FOUNDエラーを返す。
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.postRepo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	if !deleted {
		return model.NewPostNotFoundError()
	}

	slog.Info("post deleted", slog.Int64("post_id", id))
	return nil
}

func (s *Service) toView(p *model.Post) View {
	return View{
		ID:          p.ID,
		Title:       p.Title,
		Content:     p.Content,
		ContentHTML: s.sanitizer.Sanitize(p.Content),
		CreatedAt:   p.CreatedAt,
	}
}

func validate(title, content string) error {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
		return model.NewValidationError("Title and content are required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return model.NewValidationError(fmt.Sprintf("Title must be at most %d characters", MaxTitleLength))
	}
	return nil
}
