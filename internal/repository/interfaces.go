// Package repository はデータ永続化のインターフェースと実装を提供する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/blog/internal/model"
)

// ErrDuplicateUsername はusernameの一意制約違反を表す。
var ErrDuplicateUsername = errors.New("username already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成し、採番したIDをuser.IDに設定する。
	// usernameが既に存在する場合はErrDuplicateUsernameを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByUsername はusernameでユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)
}

// PostRepository は記事データの永続化インターフェース。
type PostRepository interface {
	// List は全記事をcreated_atの降順で返す。
	List(ctx context.Context) ([]*model.Post, error)

	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Post, error)

	// Create は記事を作成し、採番したIDとcreated_atをpostに設定する。
	Create(ctx context.Context, post *model.Post) error

	// Update は記事のタイトルと本文を更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, post *model.Post) (bool, error)

	// Delete は指定IDの記事を削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id int64) (bool, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。未登録または期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
