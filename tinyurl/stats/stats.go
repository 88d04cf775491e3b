package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"codeberg.org/tinyurl/server/internal/storage"
)

// creates a new stats repository
func NewRepository(db storage.DBTX) *Repository {
	return &Repository{db: db}
}

// loads the row for (urlID, date), creating it with zero count and
// watermark when missing
func (r *Repository) GetOrCreate(ctx context.Context, urlID int64, date time.Time) (*DailyStat, error) {
	s, err := scanStat(r.db.QueryRow(ctx, queryGetOrCreate, urlID, dateOnly(date)))
	if err != nil {
		return nil, fmt.Errorf("failed to load daily stat for url %d: %w", urlID, err)
	}

	return s, nil
}

// returns the row for (urlID, date) or nil when none exists
func (r *Repository) Find(ctx context.Context, urlID int64, date time.Time) (*DailyStat, error) {
	s, err := scanStat(r.db.QueryRow(ctx, queryFind, urlID, dateOnly(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load daily stat for url %d: %w", urlID, err)
	}

	return s, nil
}

// adds added to the click count and moves the watermark from expected to
// watermark in one statement. reports false when the stored watermark is no
// longer expected (another run got there first).
func (r *Repository) Advance(ctx context.Context, statID int64, expected, watermark, added uint64, at time.Time) (bool, error) {
	if watermark <= expected {
		return false, fmt.Errorf("watermark must increase: %d -> %d", expected, watermark)
	}

	tag, err := r.db.Exec(ctx, queryAdvance,
		int64(added),     //nolint:gosec // counts fit in BIGINT
		int64(watermark), //nolint:gosec // event ids fit in BIGINT
		at,
		statID,
		int64(expected), //nolint:gosec // event ids fit in BIGINT
	)
	if err != nil {
		return false, fmt.Errorf("failed to advance daily stat %d: %w", statID, err)
	}

	return tag.RowsAffected() == 1, nil
}

// rows of urlID between from and to inclusive, oldest first
func (r *Repository) ListRange(ctx context.Context, urlID int64, from, to time.Time) ([]DailyStat, error) {
	rows, err := r.db.Query(ctx, queryListRange, urlID, dateOnly(from), dateOnly(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list daily stats for url %d: %w", urlID, err)
	}
	defer rows.Close()

	var out []DailyStat
	for rows.Next() {
		s, err := scanStat(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		out = append(out, *s)
	}

	return out, rows.Err()
}

// totals for urlID across all days
func (r *Repository) Summary(ctx context.Context, urlID int64) (*Summary, error) {
	var (
		total int64
		days  int64
	)

	s := Summary{URLID: urlID}

	err := r.db.QueryRow(ctx, querySummary, urlID).Scan(&total, &days, &s.FirstDate, &s.LastDate)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize url %d: %w", urlID, err)
	}

	s.TotalClicks = uint64(total) //nolint:gosec // click_count is CHECKed non-negative
	s.Days = int(days)

	return &s, nil
}

// URLs with stats on or after since, at most limit of them
func (r *Repository) ActiveURLs(ctx context.Context, since time.Time, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, queryActiveURLs, dateOnly(since), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active urls: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan active urls: %w", err)
	}

	return ids, nil
}

func scanStat(row pgx.Row) (*DailyStat, error) {
	var (
		s         DailyStat
		count     int64
		watermark int64
	)

	if err := row.Scan(&s.ID, &s.URLID, &s.Date, &count, &watermark, &s.LastProcessedAt); err != nil {
		return nil, err
	}

	s.ClickCount = uint64(count)               //nolint:gosec // CHECK (click_count >= 0)
	s.LastProcessedClickID = uint64(watermark) //nolint:gosec // CHECK (last_processed_click_id >= 0)

	return &s, nil
}

// truncates t to its UTC calendar day
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
