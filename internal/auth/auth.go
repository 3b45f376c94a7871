// Package auth authenticates operators with username and password and
// tracks their sessions.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/rentaldesk/rentals/internal/apperror"
	"github.com/rentaldesk/rentals/internal/model"
	"github.com/rentaldesk/rentals/internal/store"
	"github.com/rentaldesk/rentals/internal/types"
)

// Password bounds. bcrypt only accepts passwords up to 72 bytes.
const (
	MinPasswordLength = 6
	MaxPasswordLength = 72
)

func validatePassword(password string) error {
	switch {
	case len(password) < MinPasswordLength:
		return apperror.Validation("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	case len(password) > MaxPasswordLength:
		return apperror.Validation("password", fmt.Sprintf("must be at most %d bytes", MaxPasswordLength))
	}
	return nil
}

// HashPassword hashes a password with bcrypt at the default cost.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}

// CheckPassword reports whether password matches hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NewUser is the input for creating an operator.
type NewUser struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     model.Role `json:"role"`
}

// Service logs users in and out and resolves sessions.
type Service struct {
	users    store.Store
	sessions SessionStore
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates a Service issuing sessions valid for ttl.
func NewService(users store.Store, sessions SessionStore, ttl time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{users: users, sessions: sessions, ttl: ttl, now: time.Now, logger: logger.Named("auth")}
}

var errBadCredentials = apperror.Unauthorized("invalid username or password")

// Login checks the credentials and opens a session. Unknown users, wrong
// passwords and inactive users all fail with the same UNAUTHORIZED error.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, *model.User, error) {
	u, err := s.users.GetUserByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		if apperror.Is(err, apperror.CodeNotFound) {
			return nil, nil, errBadCredentials
		}
		return nil, nil, err
	}
	if !CheckPassword(password, u.PasswordHash) || u.Status != types.StatusActive {
		s.logger.Info("login rejected", zap.String("username", u.Username))
		return nil, nil, errBadCredentials
	}

	now := s.now().UTC()
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, nil, apperror.Wrap(err, apperror.CodeInternal, "saving session")
	}
	if err := s.users.TouchLogin(ctx, u.ID, now); err != nil {
		return nil, nil, err
	}
	u.LastLogin = &now
	s.logger.Info("login", zap.Int64("user_id", u.ID), zap.String("role", string(u.Role)))
	return sess, u, nil
}

// Logout ends the session. Unknown ids are ignored.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "deleting session")
	}
	return nil
}

// Authenticate resolves a session id to its user. The user must still
// exist and be active.
func (s *Service) Authenticate(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, apperror.Unauthorized("authentication required")
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, apperror.Unauthorized("session expired or unknown")
		}
		return nil, apperror.Wrap(err, apperror.CodeInternal, "loading session")
	}
	u, err := s.users.GetUser(ctx, sess.UserID)
	if err != nil {
		if apperror.Is(err, apperror.CodeNotFound) {
			return nil, apperror.Unauthorized("session user no longer exists")
		}
		return nil, err
	}
	if u.Status != types.StatusActive {
		return nil, apperror.Unauthorized("user is inactive")
	}
	return u, nil
}

// CreateUser hashes the password and stores the user.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*model.User, error) {
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "hashing password")
	}
	u := &model.User{
		Username:     in.Username,
		PasswordHash: hash,
		Name:         in.Name,
		Email:        in.Email,
		Role:         in.Role,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SetPassword replaces the stored hash of u. The caller persists u.
func SetPassword(u *model.User, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "hashing password")
	}
	u.PasswordHash = hash
	return nil
}

// Bootstrap creates an admin from the given credentials when no user
// exists yet. It reports whether a user was created.
func (s *Service) Bootstrap(ctx context.Context, username, password string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}
	n, err := s.users.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	u, err := s.CreateUser(ctx, NewUser{Username: username, Password: password, Name: "Administrator", Role: model.RoleAdmin})
	if err != nil {
		return false, err
	}
	s.logger.Info("bootstrap admin created", zap.String("username", u.Username))
	return true, nil
}
