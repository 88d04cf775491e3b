package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"codeberg.org/tinyurl/server/internal/storage"
)

// creates a new user repository
func NewRepository(db storage.DBTX) *Repository {
	return &Repository{db: db}
}

// finds a user by email or creates a new one
func (r *Repository) FindOrCreateByEmail(ctx context.Context, email, name string) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, queryFindOrCreateByEmail, email, name))
	if err != nil {
		return nil, fmt.Errorf("failed to find or create user: %w", err)
	}

	return u, nil
}

// finds a user by their ID
func (r *Repository) FindByID(ctx context.Context, userID int64) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, queryFindByID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	return u, nil
}

// updates a user's name and avatar URL
func (r *Repository) UpdateProfile(ctx context.Context, userID int64, name, avatarURL string) (*User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, queryUpdateProfile, name, avatarURL, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to update user %d: %w", userID, err)
	}

	return u, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &u, nil
}
