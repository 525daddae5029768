package httpserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movie-catalog/internal/domain"
	"github.com/Clark-Hu/movie-catalog/internal/repository"
)

const maxRequestBody = 1 << 20 // 1 MiB

const (
	minRating = domain.MinRating
	maxRating = domain.MaxRating
)

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type movieCreateRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"required,max=4096"`
}

// movieResponse is a full row as returned by list and search.
type movieResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Rating      *int   `json:"rating"`
}

// movieCreatedResponse echoes the created row without a rating key.
type movieCreatedResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type ratingRequest struct {
	Rating *int `json:"rating" validate:"required,min=1,max=5"`
}

// ratingPayload keeps the raw rating so that any non-integer number is
// reported as a validation failure rather than a decoder error.
type ratingPayload struct {
	Rating json.RawMessage `json:"rating"`
}

func (p ratingPayload) toRequest() (ratingRequest, error) {
	raw := bytes.TrimSpace(p.Rating)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ratingRequest{}, nil
	}
	n, err := strconv.ParseInt(string(raw), 10, 32)
	if err != nil {
		return ratingRequest{}, &ValidationError{
			Field:   "rating",
			Message: fmt.Sprintf("rating must be an integer between %d and %d", minRating, maxRating),
		}
	}
	v := int(n)
	return ratingRequest{Rating: &v}, nil
}

func (s *Server) handleListMovies(w http.ResponseWriter, r *http.Request) {
	movies, err := s.repo.Movies.List(r.Context())
	if err != nil {
		s.requestLogger(r).Error().Err(err).Msg("list movies failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list movies")
		return
	}
	s.respondJSON(w, http.StatusOK, toMovieResponses(movies))
}

func (s *Server) handleCreateMovie(w http.ResponseWriter, r *http.Request) {
	var req movieCreateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err, req)
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	if err := validateStruct(req); err != nil {
		s.respondValidationError(w, err)
		return
	}

	movie, err := s.repo.Movies.Create(r.Context(), repository.MovieCreateParams{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		s.requestLogger(r).Error().Err(err).Msg("create movie failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create movie")
		return
	}

	s.respondJSON(w, http.StatusOK, movieCreatedResponse{
		ID:          movie.ID,
		Title:       movie.Title,
		Description: movie.Description,
	})
}

func (s *Server) handleSearchMovies(w http.ResponseWriter, r *http.Request) {
	// An absent q is the empty string, which matches every title.
	term := r.URL.Query().Get("q")

	movies, err := s.repo.Movies.SearchByTitle(r.Context(), term)
	if err != nil {
		s.requestLogger(r).Error().Err(err).Str("q", term).Msg("search movies failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to search movies")
		return
	}
	s.respondJSON(w, http.StatusOK, toMovieResponses(movies))
}

func (s *Server) handleDeleteMovie(w http.ResponseWriter, r *http.Request) {
	id, err := parseMovieID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondValidationError(w, err)
		return
	}

	found, err := s.repo.Movies.Delete(r.Context(), id)
	if err != nil {
		s.requestLogger(r).Error().Err(err).Int64("id", id).Msg("delete movie failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete movie")
		return
	}
	if !found {
		s.requestLogger(r).Debug().Int64("id", id).Msg("delete: no such movie")
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRateMovie(w http.ResponseWriter, r *http.Request) {
	id, err := parseMovieID(chi.URLParam(r, "id"))
	if err != nil {
		s.respondValidationError(w, err)
		return
	}

	var payload ratingPayload
	if err := decodeJSONBody(w, r, &payload); err != nil {
		s.respondDecodeError(w, err, payload)
		return
	}
	req, err := payload.toRequest()
	if err != nil {
		s.respondValidationError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		s.respondValidationError(w, err)
		return
	}

	found, err := s.repo.Movies.UpdateRating(r.Context(), id, *req.Rating)
	if err != nil {
		s.requestLogger(r).Error().Err(err).Int64("id", id).Msg("rate movie failed")
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to rate movie")
		return
	}
	if !found {
		s.requestLogger(r).Debug().Int64("id", id).Msg("rate: no such movie")
	}
	w.WriteHeader(http.StatusOK)
}

// cappedBody remembers when the MaxBytesReader limit was hit, since the
// decoder replaces the underlying read error with its own.
type cappedBody struct {
	io.ReadCloser
	tooLarge *http.MaxBytesError
}

func (b *cappedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var maxBytesError *http.MaxBytesError
	if errors.As(err, &maxBytesError) {
		b.tooLarge = maxBytesError
	}
	return n, err
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := &cappedBody{ReadCloser: http.MaxBytesReader(w, r.Body, maxRequestBody)}
	r.Body = body
	defer r.Body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if body.tooLarge != nil {
			return body.tooLarge
		}
		return err
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Error().Err(err).Msg("failed to encode response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondValidationError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}
	resp := errorResponse{Code: "VALIDATION_ERROR", Message: verr.Message}
	if verr.Field != "" {
		resp.Details = map[string]string{"field": verr.Field}
	}
	s.respondJSON(w, http.StatusBadRequest, resp)
}

// respondDecodeError maps decoder failures onto 4xx answers. dst is the
// request type being decoded, used to report fields by their JSON name.
func (s *Server) respondDecodeError(w http.ResponseWriter, err error, dst interface{}) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusRequestEntityTooLarge, "BAD_REQUEST", "Request body too large")
	case errors.As(err, &typeError):
		field := jsonFieldName(dst, typeError.Field)
		s.respondValidationError(w, &ValidationError{Field: field, Message: fmt.Sprintf("Invalid value for field %s", field)})
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON payload")
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Request body cannot be empty")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

// jsonFieldName resolves a Go struct field name (possibly a dotted path) on
// dst to its json tag name. Unknown names are returned lowercased.
func jsonFieldName(dst interface{}, goField string) string {
	name := goField
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	t := reflect.TypeOf(dst)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t != nil && t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Name != name && !strings.EqualFold(f.Name, name) {
				continue
			}
			if tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]; tag != "" && tag != "-" {
				return tag
			}
			return f.Name
		}
	}
	return strings.ToLower(name)
}

// requestLogger tags the server logger with the chi request id.
func (s *Server) requestLogger(r *http.Request) *zerolog.Logger {
	l := s.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
	return &l
}

func toMovieResponses(movies []domain.Movie) []movieResponse {
	items := make([]movieResponse, 0, len(movies))
	for _, movie := range movies {
		items = append(items, movieResponse{
			ID:          movie.ID,
			Title:       movie.Title,
			Description: movie.Description,
			Rating:      movie.Rating,
		})
	}
	return items
}
