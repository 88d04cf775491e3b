package owners

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"codeberg.org/tinyurl/server/internal/storage"
)

// the url -> owning user relation
type Repository struct {
	db storage.DBTX
}

func NewRepository(db storage.DBTX) *Repository {
	return &Repository{db: db}
}

const (
	queryAssign = `
		INSERT INTO url_owners (url_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (url_id) DO NOTHING
	`

	queryOwnerOf = `
		SELECT user_id
		FROM url_owners
		WHERE url_id = $1
	`

	queryURLsOf = `
		SELECT url_id
		FROM url_owners
		WHERE user_id = $1
		ORDER BY url_id
	`
)

// records userID as the owner of urlID. a URL has at most one owner: a
// repeated call is a no-op and never replaces an existing owner.
func (r *Repository) Assign(ctx context.Context, urlID, userID int64) error {
	if _, err := r.db.Exec(ctx, queryAssign, urlID, userID); err != nil {
		return fmt.Errorf("failed to assign owner of url %d: %w", urlID, err)
	}

	return nil
}

// returns the owner of urlID; found is false when no owner is recorded
func (r *Repository) OwnerOf(ctx context.Context, urlID int64) (userID int64, found bool, err error) {
	err = r.db.QueryRow(ctx, queryOwnerOf, urlID).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("failed to look up owner of url %d: %w", urlID, err)
	}

	return userID, true, nil
}

// ids of every URL owned by userID
func (r *Repository) URLsOf(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, queryURLsOf, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list urls of user %d: %w", userID, err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan url ids: %w", err)
	}

	return ids, nil
}
