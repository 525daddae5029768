// Package client is a typed HTTP client for the movies API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Breaker thresholds: consecutive server-side failures before the client stops
// calling the API, and how long it waits before probing again.
const (
	breakerFailures = 5
	breakerCooldown = 30 * time.Second
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("movies api: circuit open")

// Movie mirrors a row returned by list and search. Rating is nil until set.
type Movie struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Rating      *int   `json:"rating"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("movies api: status %d", e.Status)
	}
	return fmt.Sprintf("movies api: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// IsValidation reports whether err is a 400 answer from the API.
func IsValidation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest
}

// HTTPClient talks to a running movies API.
type HTTPClient struct {
	baseURL *url.URL
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  zerolog.Logger
}

// New constructs a client rooted at baseURL, e.g. http://localhost:3000.
func New(baseURL string, timeout time.Duration, logger zerolog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse api url: %q must be absolute", baseURL)
	}
	logger = logger.With().Str("component", "client").Logger()
	return &HTTPClient{
		baseURL: parsed,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "movies-api",
			MaxRequests: 1,
			Timeout:     breakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailures
			},
			IsSuccessful: isBreakerSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit state change")
			},
		}),
		logger: logger,
	}, nil
}

// isBreakerSuccess counts client-side rejections (4xx) and calls the caller
// cancelled as healthy answers.
func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError
}

// List fetches every movie.
func (c *HTTPClient) List(ctx context.Context) ([]Movie, error) {
	var out []Movie
	if err := c.do(ctx, http.MethodGet, "/api/movies", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create adds a movie and returns it with its assigned id.
func (c *HTTPClient) Create(ctx context.Context, title, description string) (Movie, error) {
	body := map[string]string{"title": title, "description": description}
	var out Movie
	if err := c.do(ctx, http.MethodPost, "/api/movies", nil, body, &out); err != nil {
		return Movie{}, err
	}
	return out, nil
}

// Search returns movies whose title contains term.
func (c *HTTPClient) Search(ctx context.Context, term string) ([]Movie, error) {
	q := url.Values{}
	q.Set("q", term)
	var out []Movie
	if err := c.do(ctx, http.MethodGet, "/api/movies/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a movie. Deleting an unknown id succeeds.
func (c *HTTPClient) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/api/movies/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// Rate sets the rating of a movie. Rating an unknown id succeeds.
func (c *HTTPClient) Rate(ctx context.Context, id int64, rating int) error {
	body := map[string]int{"rating": rating}
	return c.do(ctx, http.MethodPost, "/api/movies/"+strconv.FormatInt(id, 10)+"/rate", nil, body, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.roundTrip(ctx, method, path, query, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	rel := &url.URL{Path: c.baseURL.Path + path}
	if query != nil {
		rel.RawQuery = query.Encode()
	}
	endpoint := c.baseURL.ResolveReference(rel)

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Message
		}
		c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("api error")
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
