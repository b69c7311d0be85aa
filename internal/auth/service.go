package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-access/internal/shared"
	"github.com/meridian-erp/meridian-access/internal/users"
)

// UserFinder is the slice of the users repository the login flow needs.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (users.User, error)
	GetUser(ctx context.Context, id int64) (users.User, error)
}

// Service wraps authentication business rules.
type Service struct {
	finder   UserFinder
	sessions *SessionStore
}

// NewService constructs a new Service.
func NewService(finder UserFinder, sessions *SessionStore) *Service {
	return &Service{finder: finder, sessions: sessions}
}

// Login validates email/password credentials and opens a session. Every
// failure mode collapses to ErrInvalidCredentials so callers cannot probe
// which accounts exist.
func (s *Service) Login(ctx context.Context, email, password string) (string, users.User, error) {
	user, err := s.finder.FindByEmail(ctx, email)
	if err != nil {
		return "", users.User{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", users.User{}, shared.ErrInvalidCredentials
	}
	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return "", users.User{}, err
	}
	return token, user, nil
}

// Logout closes the session behind the token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Destroy(ctx, token)
}

// ResolveToken maps a session token to the user it belongs to. Sessions of
// deactivated users resolve but the account check fails, closing the window
// between deactivation and session expiry.
func (s *Service) ResolveToken(ctx context.Context, token string) (users.User, error) {
	userID, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return users.User{}, err
	}
	user, err := s.finder.GetUser(ctx, userID)
	if err != nil {
		return users.User{}, ErrSessionExpired
	}
	if !user.IsActive {
		return users.User{}, ErrSessionExpired
	}
	return user, nil
}
