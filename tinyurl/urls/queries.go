package urls

const (
	urlColumns = `id, short_code, original_url, title, is_private, created_by, expires_at, created_at, updated_at`

	queryCreate = `
		INSERT INTO urls (short_code, original_url, title, is_private, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + urlColumns

	queryFindByCode = `
		SELECT ` + urlColumns + `
		FROM urls
		WHERE short_code = $1
	`

	queryFindByID = `
		SELECT ` + urlColumns + `
		FROM urls
		WHERE id = $1
	`

	queryUpdate = `
		UPDATE urls
		SET original_url = $1, title = $2, is_private = $3, expires_at = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING ` + urlColumns

	queryNextID = `SELECT nextval(pg_get_serial_sequence('urls', 'id'))`

	queryCreateWithID = `
		INSERT INTO urls (id, short_code, original_url, title, is_private, created_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + urlColumns
)
