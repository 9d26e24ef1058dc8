// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限区分を表す。
// admin と user の2種類のみで、登録後に変更されることはない。
type Role string

const (
	// RoleAdmin は記事の作成・更新・削除が可能な管理者ロール。
	RoleAdmin Role = "admin"
	// RoleUser は閲覧のみ可能な一般ユーザーロール。
	RoleUser Role = "user"
)

// Valid はロールが既知の値かどうかを返す。
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// User はブログの利用ユーザーを表す。
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
}

// SessionUser はセッションに埋め込まれる認証済みユーザー情報。
// ログイン時点のロールのスナップショットであり、以後のユーザー変更は反映されない。
type SessionUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// IsAdmin はセッションユーザーが管理者かどうかを返す。
func (u SessionUser) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Session はユーザーのログインセッションを表す。
// IDはCookieで運ばれる不透明なトークン。
type Session struct {
	ID        string
	User      SessionUser
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired は指定時刻においてセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
