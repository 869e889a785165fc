// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/cems/internal/model"
)

// UserRepository provides access to user accounts.
type UserRepository interface {
	// Create inserts a new user and assigns its ID and CreatedAt.
	Create(ctx context.Context, u *model.User) error
	// GetByEmail loads a user by their unique login email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// Existing returns the subset of ids that belong to existing users.
	Existing(ctx context.Context, ids []int64) ([]int64, error)
}
