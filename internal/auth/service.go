package auth

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// RepositoryPort abstracts account lookup for tests.
type RepositoryPort interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	Get(ctx context.Context, id int64) (*User, error)
}

// Service authenticates operators.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Login verifies credentials and returns the operator account. Lookup and
// compare failures collapse into ErrInvalidCredentials so responses leak
// nothing about which part failed.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.Active {
		return nil, ErrInactive
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	s.logger.Info("operator logged in", "user_id", user.ID)
	return user, nil
}

// Profile returns the account for an authenticated operator.
func (s *Service) Profile(ctx context.Context, id int64) (*User, error) {
	return s.repo.Get(ctx, id)
}

// HashPassword produces a bcrypt hash for seeding and account creation.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
