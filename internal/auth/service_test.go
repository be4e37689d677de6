package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubUserRepo struct {
	user *User
}

func (s *stubUserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, ErrInvalidCredentials
	}
	out := *s.user
	return &out, nil
}

func (s *stubUserRepo) Get(ctx context.Context, id int64) (*User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, ErrInvalidCredentials
	}
	out := *s.user
	return &out, nil
}

func newTestUser(t *testing.T, password string, active bool) *User {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	return &User{
		ID:           7,
		Name:         "Siti Kasir",
		Email:        "siti@example.com",
		PasswordHash: hash,
		Role:         RoleCashier,
		Active:       active,
	}
}

func TestLogin(t *testing.T) {
	repo := &stubUserRepo{user: newTestUser(t, "rahasia-123", true)}
	svc := NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	user, err := svc.Login(ctx, "siti@example.com", "rahasia-123")
	require.NoError(t, err)
	require.Equal(t, int64(7), user.ID)

	_, err = svc.Login(ctx, "siti@example.com", "salah")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "rahasia-123")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginInactiveAccount(t *testing.T) {
	repo := &stubUserRepo{user: newTestUser(t, "rahasia-123", false)}
	svc := NewService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.Login(context.Background(), "siti@example.com", "rahasia-123")
	require.ErrorIs(t, err, ErrInactive)
}
