package domain

// Rating bounds accepted by the catalog.
const (
	MinRating = 1
	MaxRating = 5
)

// Movie represents the canonical movie row stored in the movies table.
type Movie struct {
	ID          int64
	Title       string
	Description string
	// Rating stays nil until a rating has been set.
	Rating *int
}
