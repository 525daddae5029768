package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/Clark-Hu/movie-catalog/internal/domain"
)

// MySQLMoviesRepository implements Movies over sqlx with the MySQL driver.
type MySQLMoviesRepository struct {
	db *sqlx.DB
}

type movieRow struct {
	ID          int64         `db:"id"`
	Title       string        `db:"title"`
	Description string        `db:"description"`
	Rating      sql.NullInt32 `db:"rating"`
}

// List returns all movies.
func (r *MySQLMoviesRepository) List(ctx context.Context) ([]domain.Movie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies ORDER BY id`, movieColumns)
	var rows []movieRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, storeErr("list movies", err)
	}
	return toMovies(rows), nil
}

// Create inserts a new movie row and returns it with the auto-increment id.
func (r *MySQLMoviesRepository) Create(ctx context.Context, params MovieCreateParams) (domain.Movie, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO movies (title, description) VALUES (?, ?)`, params.Title, params.Description)
	if err != nil {
		return domain.Movie{}, storeErr("create movie", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Movie{}, storeErr("create movie", err)
	}
	return domain.Movie{ID: id, Title: params.Title, Description: params.Description}, nil
}

// SearchByTitle returns movies whose title contains term.
func (r *MySQLMoviesRepository) SearchByTitle(ctx context.Context, term string) ([]domain.Movie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies WHERE title LIKE ? ORDER BY id`, movieColumns)
	var rows []movieRow
	if err := r.db.SelectContext(ctx, &rows, query, containsPattern(term)); err != nil {
		return nil, storeErr("search movies", err)
	}
	return toMovies(rows), nil
}

// Delete removes a movie. Deleting a missing id is not an error.
func (r *MySQLMoviesRepository) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM movies WHERE id = ?`, id)
	if err != nil {
		return false, storeErr("delete movie", err)
	}
	return rowsAffected(res, "delete movie")
}

// UpdateRating sets the rating in place. The store opens MySQL with
// clientFoundRows so re-applying the same rating still counts as a match.
func (r *MySQLMoviesRepository) UpdateRating(ctx context.Context, id int64, rating int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE movies SET rating = ? WHERE id = ?`, rating, id)
	if err != nil {
		return false, storeErr("update rating", err)
	}
	return rowsAffected(res, "update rating")
}

func rowsAffected(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(op, err)
	}
	return n > 0, nil
}

func toMovies(rows []movieRow) []domain.Movie {
	items := make([]domain.Movie, 0, len(rows))
	for _, row := range rows {
		movie := domain.Movie{ID: row.ID, Title: row.Title, Description: row.Description}
		if row.Rating.Valid {
			v := int(row.Rating.Int32)
			movie.Rating = &v
		}
		items = append(items, movie)
	}
	return items
}
