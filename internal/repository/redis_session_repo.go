package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/blog/internal/model"
	"github.com/redis/go-redis/v9"
)

const redisSessionKeyPrefix = "session:"

// redisSessionPayload はRedisに保存するセッションのJSON表現。
type redisSessionPayload struct {
	User      model.SessionUser `json:"user"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
}

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// キーのTTLはセッションの残り有効期間に合わせ、読み取り時にも期限を再確認する。
type RedisSessionRepo struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(client redis.Cmdable) *RedisSessionRepo {
	return &RedisSessionRepo{client: client, now: time.Now}
}

// Create はセッションを作成する。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return fmt.Errorf("failed to create session: already expired at %s", session.ExpiresAt.Format(time.RFC3339))
	}

	data, err := json.Marshal(redisSessionPayload{
		User:      session.User,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	if err := r.client.Set(ctx, redisSessionKey(session.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。未登録または期限切れの場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	data, err := r.client.Get(ctx, redisSessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var payload redisSessionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if !payload.User.Role.Valid() {
		return nil, fmt.Errorf("failed to decode session: unknown role %q", payload.User.Role)
	}

	session := &model.Session{
		ID:        id,
		User:      payload.User,
		ExpiresAt: payload.ExpiresAt,
		CreatedAt: payload.CreatedAt,
	}
	if session.Expired(r.now()) {
		return nil, nil
	}
	return session, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, redisSessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired はRedisのTTLで期限切れキーが消えるため常に0を返す。
func (r *RedisSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func redisSessionKey(id string) string {
	return redisSessionKeyPrefix + id
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
