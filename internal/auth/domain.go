package auth

import (
	"errors"
	"time"
)

// Role enumerates operator roles. Cashiers run the register, admins also
// manage catalog and purchasing.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleCashier Role = "cashier"
)

// User is an operator account.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
}

var (
	// ErrInvalidCredentials hides whether the account or the password was wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInactive indicates a disabled account.
	ErrInactive = errors.New("auth: account disabled")
)
