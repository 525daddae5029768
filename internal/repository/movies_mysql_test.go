package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockMySQL(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

var movieRowColumns = []string{"id", "title", "description", "rating"}

func TestMySQLMovies_List(t *testing.T) {
	repo, mock := newMockMySQL(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, description, rating FROM movies ORDER BY id")).
		WillReturnRows(sqlmock.NewRows(movieRowColumns).
			AddRow(1, "Dune", "Sci-fi", 5).
			AddRow(2, "Alien", "Horror", nil))

	movies, err := repo.Movies.List(context.Background())
	require.NoError(t, err)
	require.Len(t, movies, 2)
	assert.Equal(t, int64(1), movies[0].ID)
	require.NotNil(t, movies[0].Rating)
	assert.Equal(t, 5, *movies[0].Rating)
	assert.Equal(t, "Alien", movies[1].Title)
	assert.Nil(t, movies[1].Rating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLMovies_ListEmpty(t *testing.T) {
	repo, mock := newMockMySQL(t)

	mock.ExpectQuery("SELECT .* FROM movies").WillReturnRows(sqlmock.NewRows(movieRowColumns))

	movies, err := repo.Movies.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, movies)
	assert.Empty(t, movies)
}

func TestMySQLMovies_Create(t *testing.T) {
	repo, mock := newMockMySQL(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO movies (title, description) VALUES (?, ?)")).
		WithArgs("Dune", "Sci-fi").
		WillReturnResult(sqlmock.NewResult(7, 1))

	movie, err := repo.Movies.Create(context.Background(), MovieCreateParams{Title: "Dune", Description: "Sci-fi"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), movie.ID)
	assert.Equal(t, "Dune", movie.Title)
	assert.Nil(t, movie.Rating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLMovies_SearchEscapesPattern(t *testing.T) {
	repo, mock := newMockMySQL(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE title LIKE ? ORDER BY id")).
		WithArgs(`%100\%%`).
		WillReturnRows(sqlmock.NewRows(movieRowColumns).AddRow(3, "100% Wolf", "Animated", nil))

	movies, err := repo.Movies.SearchByTitle(context.Background(), "100%")
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "100% Wolf", movies[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLMovies_DeleteAndRate(t *testing.T) {
	repo, mock := newMockMySQL(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM movies WHERE id = ?")).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM movies WHERE id = ?")).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE movies SET rating = ? WHERE id = ?")).
		WithArgs(4, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE movies SET rating = ? WHERE id = ?")).
		WithArgs(4, int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	found, err := repo.Movies.Delete(ctx, 1)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.Movies.Delete(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)

	found, err = repo.Movies.UpdateRating(ctx, 2, 4)
	require.NoError(t, err)
	assert.True(t, found)

	found, err = repo.Movies.UpdateRating(ctx, 99, 4)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLMovies_DriverErrorsBecomeStoreErrors(t *testing.T) {
	repo, mock := newMockMySQL(t)
	ctx := context.Background()
	driverErr := errors.New("connection reset")

	mock.ExpectQuery("SELECT").WillReturnError(driverErr)
	mock.ExpectExec("INSERT").WillReturnError(driverErr)
	mock.ExpectExec("DELETE").WillReturnError(driverErr)
	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewErrorResult(driverErr))

	_, err := repo.Movies.List(ctx)
	assertStoreError(t, err, "list movies", driverErr)

	_, err = repo.Movies.Create(ctx, MovieCreateParams{Title: "x", Description: "y"})
	assertStoreError(t, err, "create movie", driverErr)

	_, err = repo.Movies.Delete(ctx, 1)
	assertStoreError(t, err, "delete movie", driverErr)

	_, err = repo.Movies.UpdateRating(ctx, 1, 3)
	assertStoreError(t, err, "update rating", driverErr)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLMovies_ScanFailure(t *testing.T) {
	repo, mock := newMockMySQL(t)

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows(movieRowColumns).AddRow("not-a-number", "Dune", "Sci-fi", nil))

	_, err := repo.Movies.SearchByTitle(context.Background(), "dune")
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "search movies", storeErr.Op)
}

func assertStoreError(t *testing.T, err error, op string, cause error) {
	t.Helper()
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, op, storeErr.Op)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, sql.ErrNoRows)
}
