package users

const (
	userColumns = `id, email, name, avatar_url, created_at, updated_at`

	queryFindOrCreateByEmail = `
		INSERT INTO users (email, name)
		VALUES ($1, $2)
		ON CONFLICT (email)
		DO UPDATE SET updated_at = users.updated_at
		RETURNING ` + userColumns

	queryFindByID = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`

	queryUpdateProfile = `
		UPDATE users
		SET name = $1, avatar_url = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING ` + userColumns
)
