package urls

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"codeberg.org/tinyurl/server/internal/storage"
)

// creates a new url repository
func NewRepository(db storage.DBTX) *Repository {
	return &Repository{db: db}
}

// reserves the next url id, so the short code can be derived from it
func (r *Repository) NextID(ctx context.Context) (int64, error) {
	var id int64
	if err := r.db.QueryRow(ctx, queryNextID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to reserve url id: %w", err)
	}

	return id, nil
}

// inserts a URL. a zero id lets the database assign one.
func (r *Repository) Create(ctx context.Context, id int64, p CreateParams) (*URL, error) {
	var row pgx.Row

	if id == 0 {
		row = r.db.QueryRow(ctx, queryCreate,
			p.ShortCode, p.OriginalURL, p.Title, p.IsPrivate, p.CreatedBy, p.ExpiresAt)
	} else {
		row = r.db.QueryRow(ctx, queryCreateWithID,
			id, p.ShortCode, p.OriginalURL, p.Title, p.IsPrivate, p.CreatedBy, p.ExpiresAt)
	}

	u, err := scanURL(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create url: %w", err)
	}

	return u, nil
}

// finds a URL by its short code
func (r *Repository) FindByCode(ctx context.Context, code string) (*URL, error) {
	return r.findOne(ctx, queryFindByCode, code)
}

// finds a URL by id
func (r *Repository) FindByID(ctx context.Context, id int64) (*URL, error) {
	return r.findOne(ctx, queryFindByID, id)
}

// writes the mutable fields of u
func (r *Repository) Update(ctx context.Context, u *URL) (*URL, error) {
	row := r.db.QueryRow(ctx, queryUpdate, u.OriginalURL, u.Title, u.IsPrivate, u.ExpiresAt, u.ID)

	updated, err := scanURL(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to update url %d: %w", u.ID, err)
	}

	return updated, nil
}

func (r *Repository) findOne(ctx context.Context, query string, arg any) (*URL, error) {
	u, err := scanURL(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load url: %w", err)
	}

	return u, nil
}

func scanURL(row pgx.Row) (*URL, error) {
	var u URL

	err := row.Scan(
		&u.ID,
		&u.ShortCode,
		&u.OriginalURL,
		&u.Title,
		&u.IsPrivate,
		&u.CreatedBy,
		&u.ExpiresAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &u, nil
}
