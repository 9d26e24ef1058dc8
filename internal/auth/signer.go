package auth

import (
	"fmt"

	"github.com/gorilla/securecookie"
)

// CookieSigner はセッションCookieの値にHMAC署名とタイムスタンプを付与・検証する。
// トークン自体は秘匿情報ではないため暗号化は行わない。
type CookieSigner struct {
	name  string
	codec *securecookie.SecureCookie
}

// NewCookieSigner はCookieSignerを生成する。
// nameはCookie名で、署名対象に含まれるため別名のCookieへの転用を防ぐ。
// maxAgeは署名タイムスタンプの有効期間（秒）で、0以下の場合は期限を設けない。
func NewCookieSigner(name, secret string, maxAge int) *CookieSigner {
	// 空の鍵では署名できないようnilを渡し、Signでエラーにする
	var hashKey []byte
	if secret != "" {
		hashKey = []byte(secret)
	}
	codec := securecookie.New(hashKey, nil)
	codec.SetSerializer(securecookie.JSONEncoder{})
	if maxAge < 0 {
		maxAge = 0
	}
	codec.MaxAge(maxAge)

	return &CookieSigner{name: name, codec: codec}
}

// Sign はトークンに署名を付与したCookie値を返す。
func (s *CookieSigner) Sign(token string) (string, error) {
	value, err := s.codec.Encode(s.name, token)
	if err != nil {
		return "", fmt.Errorf("failed to sign session cookie: %w", err)
	}
	return value, nil
}

// Verify はCookie値の署名と有効期間を検証し、元のトークンを返す。
// 署名が一致しない場合や期限切れの場合はokがfalseになる。
func (s *CookieSigner) Verify(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	var token string
	if err := s.codec.Decode(s.name, value, &token); err != nil {
		return "", false
	}
	if token == "" {
		return "", false
	}
	return token, true
}
