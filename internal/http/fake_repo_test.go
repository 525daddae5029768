package httpserver

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movie-catalog/internal/config"
	"github.com/Clark-Hu/movie-catalog/internal/domain"
	"github.com/Clark-Hu/movie-catalog/internal/repository"
)

var errStoreDown = errors.New("connection refused")

// memoryMovies is an in-process stand-in for the movies table.
type memoryMovies struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]domain.Movie
	fail   bool
}

func newMemoryMovies() *memoryMovies {
	return &memoryMovies{nextID: 1, rows: make(map[int64]domain.Movie)}
}

func (m *memoryMovies) err(op string) error {
	if m.fail {
		return &repository.StoreError{Op: op, Err: errStoreDown}
	}
	return nil
}

func (m *memoryMovies) sorted(filter func(domain.Movie) bool) []domain.Movie {
	out := make([]domain.Movie, 0, len(m.rows))
	for _, mv := range m.rows {
		if filter(mv) {
			out = append(out, mv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memoryMovies) List(ctx context.Context) ([]domain.Movie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("list movies"); err != nil {
		return nil, err
	}
	return m.sorted(func(domain.Movie) bool { return true }), nil
}

func (m *memoryMovies) Create(ctx context.Context, params repository.MovieCreateParams) (domain.Movie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("create movie"); err != nil {
		return domain.Movie{}, err
	}
	mv := domain.Movie{ID: m.nextID, Title: params.Title, Description: params.Description}
	m.rows[mv.ID] = mv
	m.nextID++
	return mv, nil
}

func (m *memoryMovies) SearchByTitle(ctx context.Context, term string) ([]domain.Movie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("search movies"); err != nil {
		return nil, err
	}
	needle := strings.ToLower(term)
	return m.sorted(func(mv domain.Movie) bool {
		return strings.Contains(strings.ToLower(mv.Title), needle)
	}), nil
}

func (m *memoryMovies) Delete(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("delete movie"); err != nil {
		return false, err
	}
	_, ok := m.rows[id]
	delete(m.rows, id)
	return ok, nil
}

func (m *memoryMovies) UpdateRating(ctx context.Context, id int64, rating int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.err("update rating"); err != nil {
		return false, err
	}
	mv, ok := m.rows[id]
	if !ok {
		return false, nil
	}
	mv.Rating = &rating
	m.rows[id] = mv
	return true, nil
}

type stubHealth struct{ err error }

func (h stubHealth) HealthCheck(context.Context) error { return h.err }

func testConfig() config.Config {
	return config.Config{
		Port:               "0",
		ReadTimeoutSecs:    15,
		WriteTimeoutSecs:   15,
		IdleTimeoutSecs:    60,
		CORSAllowedOrigins: []string{"*"},
	}
}

func newMemoryServer(movies repository.Movies) *Server {
	repo := &repository.Repository{Movies: movies}
	return New(testConfig(), stubHealth{}, repo, nil, zerolog.New(io.Discard))
}
