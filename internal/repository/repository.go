package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/Clark-Hu/movie-catalog/internal/domain"
	"github.com/Clark-Hu/movie-catalog/internal/store"
)

// StoreError wraps a failure reported by the database driver.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("repository: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// MovieCreateParams bundles the fields required to create a movie.
type MovieCreateParams struct {
	Title       string
	Description string
}

// Movies is the persistence contract for the movies table. Every method issues
// a single parameterized statement.
type Movies interface {
	// List returns every movie ordered by id.
	List(ctx context.Context) ([]domain.Movie, error)
	// Create inserts a movie with no rating and returns it with its assigned id.
	Create(ctx context.Context, params MovieCreateParams) (domain.Movie, error)
	// SearchByTitle returns movies whose title contains term, ignoring case.
	SearchByTitle(ctx context.Context, term string) ([]domain.Movie, error)
	// Delete removes the movie with id and reports whether a row existed.
	Delete(ctx context.Context, id int64) (bool, error)
	// UpdateRating sets the rating of movie id and reports whether a row existed.
	UpdateRating(ctx context.Context, id int64, rating int) (bool, error)
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Movies Movies
}

// New constructs a Repository backed by the provided store, picking the SQL
// dialect from the store's driver.
func New(st *store.Store) *Repository {
	if st.Driver() == store.DriverMySQL {
		return NewWithDB(st.DB())
	}
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		Movies: &MoviesRepository{pool: pool},
	}
}

// NewWithDB constructs MySQL-backed repositories from a database/sql handle.
func NewWithDB(db *sql.DB) *Repository {
	return &Repository{
		Movies: &MySQLMoviesRepository{db: sqlx.NewDb(db, "mysql")},
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns term into a LIKE pattern matching it literally anywhere.
// Both dialects use backslash as the default LIKE escape character.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
