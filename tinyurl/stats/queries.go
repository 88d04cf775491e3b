package stats

const (
	statColumns = `id, url_id, date, click_count, last_processed_click_id, last_processed_at`

	// the no-op DO UPDATE makes RETURNING yield the existing row on conflict
	queryGetOrCreate = `
		INSERT INTO url_daily_stats (url_id, date)
		VALUES ($1, $2)
		ON CONFLICT (url_id, date)
		DO UPDATE SET url_id = EXCLUDED.url_id
		RETURNING ` + statColumns

	queryFind = `
		SELECT ` + statColumns + `
		FROM url_daily_stats
		WHERE url_id = $1 AND date = $2
	`

	// count and watermark move together, and only from the expected watermark
	queryAdvance = `
		UPDATE url_daily_stats
		SET click_count = click_count + $1,
			last_processed_click_id = $2,
			last_processed_at = $3
		WHERE id = $4
			AND last_processed_click_id = $5
			AND $2 > last_processed_click_id
	`

	queryListRange = `
		SELECT ` + statColumns + `
		FROM url_daily_stats
		WHERE url_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date
	`

	querySummary = `
		SELECT COALESCE(SUM(click_count), 0), COUNT(*), MIN(date), MAX(date)
		FROM url_daily_stats
		WHERE url_id = $1
	`

	queryActiveURLs = `
		SELECT DISTINCT url_id
		FROM url_daily_stats
		WHERE date >= $1
		ORDER BY url_id
		LIMIT $2
	`
)
