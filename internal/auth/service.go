// Package auth はユーザー登録、ログイン、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hitoshi/blog/internal/model"
	"github.com/hitoshi/blog/internal/password"
	"github.com/hitoshi/blog/internal/repository"
)

// dummyPassword はユーザー不在時の照合に使うダイジェストの元になる値。
// 照合処理を必ず1回行い、応答時間からユーザーの存在が推測されないようにする。
const dummyPassword = "blog-timing-equalizer"

// MaxUsernameLength はusers.usernameカラムに収まる最大文字数。
const MaxUsernameLength = 255

// PasswordHasher はパスワードのハッシュ化と照合のインターフェース。
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	hasher      PasswordHasher
	config      ServiceConfig
	dummyDigest string
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	hasher PasswordHasher,
	config ServiceConfig,
) *Service {
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = 86400
	}

	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		slog.Warn("failed to prepare dummy password digest", slog.String("error", err.Error()))
	}

	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		hasher:      hasher,
		config:      config,
		dummyDigest: dummy,
		now:         time.Now,
	}
}

// SessionMaxAge はセッションの有効期間（秒）を返す。
func (s *Service) SessionMaxAge() int {
	return s.config.SessionMaxAge
}

// Register は一般ユーザーを登録する。
// usernameが既に存在する場合はUSERNAME_TAKENエラーを返す。
func (s *Service) Register(ctx context.Context, username, plaintext string) (*model.User, error) {
	user, err := s.createUser(ctx, username, plaintext, model.RoleUser)
	if err != nil {
		return nil, err
	}

	slog.Info("user registered",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// EnsureAdmin は管理者ユーザーを登録する。
// 管理者の作成はCLIからのみ行い、HTTP APIには公開しない。
func (s *Service) EnsureAdmin(ctx context.Context, username, plaintext string) (*model.User, error) {
	user, err := s.createUser(ctx, username, plaintext, model.RoleAdmin)
	if err != nil {
		return nil, err
	}

	slog.Info("admin user created",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Login は資格情報を検証し、セッションを発行する。
// ユーザー不在とパスワード不一致は同一のINVALID_CREDENTIALSエラーを返す。
func (s *Service) Login(ctx context.Context, username, plaintext string) (*model.Session, error) {
	// 保存できない形式のusernameは問い合わせずに不一致として扱う
	if validateUsername(username) != nil {
		s.hasher.Verify(plaintext, s.dummyDigest)
		return nil, model.NewInvalidCredentialsError()
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		s.hasher.Verify(plaintext, s.dummyDigest)
		return nil, model.NewInvalidCredentialsError()
	}

	if !s.hasher.Verify(plaintext, user.PasswordHash) {
		return nil, model.NewInvalidCredentialsError()
	}

	session, err := s.createSession(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return session, nil
}

// Logout はセッションを破棄する。存在しないセッションに対してもエラーにしない。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// CurrentSession は有効なセッションを返す。未登録または期限切れの場合はnilを返す。
func (s *Service) CurrentSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.Expired(s.now()) {
		return nil, nil
	}
	return session, nil
}

// FindByID はSessionFinderとしてCurrentSessionを公開する。
func (s *Service) FindByID(ctx context.Context, sessionID string) (*model.Session, error) {
	return s.CurrentSession(ctx, sessionID)
}

func (s *Service) createUser(ctx context.Context, username, plaintext string, role model.Role) (*model.User, error) {
	if username == "" || plaintext == "" {
		return nil, model.NewValidationError("Username and password are required")
	}
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(plaintext)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return nil, model.NewValidationError("Password must be at most 72 bytes")
		}
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username:     username,
		PasswordHash: digest,
		Role:         role,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, model.NewUsernameTakenError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// validateUsername はusernameがusersテーブルに保存できる形式かを検証する。
// PostgreSQLのテキスト型はNUL文字と不正なUTF-8を受け付けない。
func validateUsername(username string) error {
	if !utf8.ValidString(username) || strings.ContainsRune(username, 0) {
		return model.NewValidationError("Username contains invalid characters")
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return model.NewValidationError(fmt.Sprintf("Username must be at most %d characters", MaxUsernameLength))
	}
	return nil
}

// createSession はセッションを作成し永続化する。
// ロールはログイン時点の値を複製し、以後のユーザー変更は反映しない。
func (s *Service) createSession(ctx context.Context, user *model.User) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID: sessionID,
		User: model.SessionUser{
			ID:       user.ID,
			Username: user.Username,
			Role:     user.Role,
		},
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
