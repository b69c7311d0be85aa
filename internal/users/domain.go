// Package users manages user accounts.
package users

import (
	"errors"
	"time"
)

// User represents a user account for management.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ErrEmailTaken indicates an email collision on create or update.
var ErrEmailTaken = errors.New("users: email already in use")
