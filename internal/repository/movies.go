package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/movie-catalog/internal/domain"
)

// MoviesRepository provides persistence helpers for movie entities on PostgreSQL.
type MoviesRepository struct {
	pool *pgxpool.Pool
}

const movieColumns = `id, title, description, rating`

// List returns all movies.
func (r *MoviesRepository) List(ctx context.Context) ([]domain.Movie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies ORDER BY id`, movieColumns)
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, storeErr("list movies", err)
	}
	movies, err := collectMovies(rows)
	if err != nil {
		return nil, storeErr("list movies", err)
	}
	return movies, nil
}

// Create inserts a new movie row and returns the stored entity.
func (r *MoviesRepository) Create(ctx context.Context, params MovieCreateParams) (domain.Movie, error) {
	const query = `
        INSERT INTO movies (title, description)
        VALUES ($1, $2)
        RETURNING id
    `

	movie := domain.Movie{Title: params.Title, Description: params.Description}
	if err := r.pool.QueryRow(ctx, query, params.Title, params.Description).Scan(&movie.ID); err != nil {
		return domain.Movie{}, storeErr("create movie", err)
	}
	return movie, nil
}

// SearchByTitle returns movies whose title contains term. ILIKE keeps matching
// case-insensitive like the MySQL dialect's default collation.
func (r *MoviesRepository) SearchByTitle(ctx context.Context, term string) ([]domain.Movie, error) {
	query := fmt.Sprintf(`SELECT %s FROM movies WHERE title ILIKE $1 ORDER BY id`, movieColumns)
	rows, err := r.pool.Query(ctx, query, containsPattern(term))
	if err != nil {
		return nil, storeErr("search movies", err)
	}
	movies, err := collectMovies(rows)
	if err != nil {
		return nil, storeErr("search movies", err)
	}
	return movies, nil
}

// Delete removes a movie. Deleting a missing id is not an error.
func (r *MoviesRepository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM movies WHERE id = $1`, id)
	if err != nil {
		return false, storeErr("delete movie", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateRating sets the rating in place. Rating a missing id is not an error.
func (r *MoviesRepository) UpdateRating(ctx context.Context, id int64, rating int) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE movies SET rating = $2 WHERE id = $1`, id, rating)
	if err != nil {
		return false, storeErr("update rating", err)
	}
	return tag.RowsAffected() > 0, nil
}

func collectMovies(rows pgx.Rows) ([]domain.Movie, error) {
	defer rows.Close()

	items := make([]domain.Movie, 0)
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, movie)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanMovie(row pgx.Row) (domain.Movie, error) {
	var (
		movie  domain.Movie
		rating *int32
	)
	if err := row.Scan(&movie.ID, &movie.Title, &movie.Description, &rating); err != nil {
		return domain.Movie{}, err
	}
	if rating != nil {
		v := int(*rating)
		movie.Rating = &v
	}
	return movie, nil
}
