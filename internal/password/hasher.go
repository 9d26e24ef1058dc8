// Package password はパスワードのハッシュ化と照合を提供する。
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost はbcryptのデフォルトコスト。
const DefaultCost = 10

// MaxLength はbcryptが扱えるパスワードの最大バイト長。
const MaxLength = 72

// ErrTooLong はパスワードがbcryptの上限を超えている場合のエラー。
var ErrTooLong = errors.New("password exceeds 72 bytes")

// Hasher はソルト付き一方向ハッシュでパスワードを扱う。
// 同じ平文でも呼び出しごとに異なるダイジェストを生成する。
type Hasher struct {
	cost int
}

// NewHasher はHasherを生成する。
// costがbcryptの許容範囲外の場合は範囲内に丸める。
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Cost は使用中のコストを返す。
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash は平文パスワードのダイジェストを生成する。
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxLength {
		return "", ErrTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify は平文がダイジェストの元になった値かどうかを返す。
// 不正な形式のダイジェストはfalseとして扱う。
// bcryptは72バイト目以降を無視するため、上限を超える平文は照合せずに不一致とする。
func (h *Hasher) Verify(plaintext, digest string) bool {
	if len(plaintext) > MaxLength {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
