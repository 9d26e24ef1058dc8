package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/blog/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// List は全記事を新しい順に返す。
// created_atが同一の場合はIDの降順で安定させる。
func (r *PostgresPostRepo) List(ctx context.Context) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, content, created_at
		 FROM posts
		 ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]*model.Post, 0)
	for rows.Next() {
		p := &model.Post{}
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id int64) (*model.Post, error) {
	p := &model.Post{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, content, created_at FROM posts WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Title, &p.Content, &p.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}

	return p, nil
}

// Create は記事を作成する。IDとcreated_atはデータベースが採番する。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO posts (title, content)
		 VALUES ($1, $2)
		 RETURNING id, created_at`,
		post.Title, post.Content,
	).Scan(&post.ID, &post.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// Update は記事のタイトルと本文を更新する。
func (r *PostgresPostRepo) Update(ctx context.Context, post *model.Post) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET title = $1, content = $2 WHERE id = $3`,
		post.Title, post.Content, post.ID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update post: %w", err)
	}
	return affected(result)
}

// Delete は指定IDの記事を削除する。
func (r *PostgresPostRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM posts WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete post: %w", err)
	}
	return affected(result)
}

func affected(result sql.Result) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
