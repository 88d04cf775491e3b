package clicks

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"codeberg.org/tinyurl/server/internal/storage"
)

var eventColumns = []string{
	"id", "url_id", "short_code", "user_id", "clicked_at",
	"ip_address", "user_agent", "referrer", "country", "city", "region", "processed",
}

// creates a new click repository
func NewRepository(db storage.DBTX) *Repository {
	return &Repository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// stores a click message. a message whose correlation id was already stored
// is ignored and reported with inserted=false.
func (r *Repository) Insert(ctx context.Context, m Message) (inserted bool, err error) {
	loc := Location{}
	if m.Location != nil {
		loc = *m.Location
	}

	query, args, err := r.sb.
		Insert("click_events").
		Columns("url_id", "short_code", "user_id", "clicked_at", "ip_address", "user_agent",
			"referrer", "country", "city", "region", "correlation_id").
		Values(m.URLID, m.ShortCode, m.UserID, m.Timestamp, m.IPAddress, m.UserAgent,
			m.Referrer, loc.Country, loc.City, loc.Region, m.CorrelationID).
		Suffix("ON CONFLICT (correlation_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build click insert: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to insert click for url %d: %w", m.URLID, err)
	}

	return tag.RowsAffected() == 1, nil
}

// clicks that happened on the UTC day of date with an id above afterID, in
// id order. limit 0 returns them all.
func (r *Repository) ListByDate(ctx context.Context, date time.Time, afterID int64, limit uint64) ([]Event, error) {
	y, m, d := date.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	b := r.sb.
		Select(eventColumns...).
		From("click_events").
		Where(sq.GtOrEq{"clicked_at": start}).
		Where(sq.Lt{"clicked_at": start.AddDate(0, 0, 1)}).
		Where(sq.Gt{"id": afterID}).
		OrderBy("id")

	if limit > 0 {
		b = b.Limit(limit)
	}

	return r.list(ctx, b)
}

// the most recent clicks of a URL, newest first
func (r *Repository) Recent(ctx context.Context, urlID int64, limit uint64) ([]Event, error) {
	return r.list(ctx, r.sb.
		Select(eventColumns...).
		From("click_events").
		Where(sq.Eq{"url_id": urlID}).
		OrderBy("id DESC").
		Limit(limit))
}

func (r *Repository) list(ctx context.Context, b sq.SelectBuilder) ([]Event, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build click query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clicks: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID,
			&e.URLID,
			&e.ShortCode,
			&e.UserID,
			&e.ClickedAt,
			&e.IPAddress,
			&e.UserAgent,
			&e.Referrer,
			&e.Location.Country,
			&e.Location.City,
			&e.Location.Region,
			&e.Processed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan click: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}
