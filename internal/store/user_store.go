package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/orgdir/internal/models"
)

// Errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

// UserStore manages directory users
type UserStore interface {
	// CreateUser creates a new user.
	// Returns ErrUserAlreadyExists if the ID or email is already taken.
	CreateUser(ctx context.Context, user *models.User) error
}
