package owners

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerOf(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)

	mock.ExpectQuery(`SELECT user_id\s+FROM url_owners`).
		WithArgs(int64(10)).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow(int64(7)))

	userID, found, err := repo.OwnerOf(context.Background(), 10)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(7), userID)

	mock.ExpectQuery(`SELECT user_id\s+FROM url_owners`).
		WithArgs(int64(11)).
		WillReturnError(pgx.ErrNoRows)

	_, found, err = repo.OwnerOf(context.Background(), 11)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssign(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)

	mock.ExpectExec(`INSERT INTO url_owners`).
		WithArgs(int64(10), int64(7)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Assign(context.Background(), 10, 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestURLsOf(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewRepository(mock)

	mock.ExpectQuery(`SELECT url_id\s+FROM url_owners`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"url_id"}).AddRow(int64(1)).AddRow(int64(4)))

	ids, err := repo.URLsOf(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
