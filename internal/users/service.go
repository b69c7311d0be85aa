package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-access/internal/audit"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	GetUser(ctx context.Context, id int64) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, name, email, passwordHash string) (User, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// Service handles user account logic.
type Service struct {
	repo     RepositoryPort
	recorder audit.Recorder
	logger   *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, recorder audit.Recorder, logger *slog.Logger) *Service {
	return &Service{repo: repo, recorder: recorder, logger: logger}
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// CreateUser registers a new account with a bcrypt-hashed password.
func (s *Service) CreateUser(ctx context.Context, name, email, password string) (User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return User{}, fmt.Errorf("users: name and email required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	user, err := s.repo.CreateUser(ctx, name, email, string(hash))
	if err != nil {
		return User{}, err
	}
	s.record(ctx, audit.Entry{
		Event:         audit.EventCreated,
		AuditableType: "user",
		AuditableID:   user.ID,
		NewValues:     map[string]any{"name": user.Name, "email": user.Email, "is_active": true},
		Tags:          []string{"users"},
	})
	return user, nil
}

// SetActive enables or disables an account.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if user.IsActive == active {
		return nil
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.record(ctx, audit.Entry{
		Event:         audit.EventUpdated,
		AuditableType: "user",
		AuditableID:   id,
		OldValues:     map[string]any{"is_active": user.IsActive},
		NewValues:     map[string]any{"is_active": active},
		Tags:          []string{"users"},
	})
	return nil
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if err := s.recorder.Record(ctx, entry); err != nil {
		s.logger.Warn("audit record failed", slog.String("event", entry.Event), slog.Any("error", err))
	}
}
