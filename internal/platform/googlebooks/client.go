package googlebooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://www.googleapis.com/books/v1"

const (
	searchAttempts = 3
	fetchAttempts  = 2
	maxPageSize    = 40
)

// ErrNotFound is returned when the provider answers 404 for a volume.
var ErrNotFound = errors.New("volume not found")

// TransientError reports a provider call that kept failing after all retries.
type TransientError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("google books %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	userAgent   string
	limiter     *rate.Limiter
	searchDelay time.Duration
	fetchDelay  time.Duration
	logger      *slog.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit paces outgoing requests. rps <= 0 disables pacing.
func WithRateLimit(rps int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), 1)
	}
}

// WithBackoff sets the base retry delays. Search retries wait
// search*2^(n-1); volume lookups wait fetch*n.
func WithBackoff(search, fetch time.Duration) Option {
	return func(c *Client) {
		c.searchDelay = search
		c.fetchDelay = fetch
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{},
		baseURL:     DefaultBaseURL,
		apiKey:      apiKey,
		userAgent:   "booklookup/1.0",
		limiter:     rate.NewLimiter(rate.Every(time.Second/5), 1),
		searchDelay: time.Second,
		fetchDelay:  500 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type IndustryIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

type ImageLinks struct {
	SmallThumbnail string `json:"smallThumbnail"`
	Thumbnail      string `json:"thumbnail"`
}

// VolumeInfo matches the volumeInfo object of the volumes API.
type VolumeInfo struct {
	Title               string               `json:"title"`
	Authors             []string             `json:"authors"`
	Publisher           string               `json:"publisher"`
	PublishedDate       string               `json:"publishedDate"`
	Description         string               `json:"description"`
	IndustryIdentifiers []IndustryIdentifier `json:"industryIdentifiers"`
	PageCount           *int                 `json:"pageCount"`
	Categories          []string             `json:"categories"`
	ImageLinks          *ImageLinks          `json:"imageLinks"`
	Language            string               `json:"language"`
}

type Volume struct {
	ID         string     `json:"id"`
	VolumeInfo VolumeInfo `json:"volumeInfo"`
}

type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []Volume `json:"items"`
}

// SearchVolumes runs a relevance-ordered search. It asks for twice maxResults
// (capped at 40) so callers have room to filter.
func (c *Client) SearchVolumes(ctx context.Context, expr string, maxResults int, lang string) ([]Volume, error) {
	page := maxResults * 2
	if page > maxPageSize {
		page = maxPageSize
	}
	if page < 1 {
		page = 1
	}

	params := url.Values{}
	params.Set("q", expr)
	params.Set("maxResults", strconv.Itoa(page))
	params.Set("orderBy", "relevance")
	params.Set("printType", "books")
	if lang != "" {
		params.Set("langRestrict", lang)
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	u := c.baseURL + "/volumes?" + params.Encode()

	c.logger.Info("google books search", "q", expr, "lang", lang, "max_results", page)

	var res volumesResponse
	err := c.do(ctx, "search", u, retryPolicy{
		attempts: searchAttempts,
		timeout:  func(attempt int) time.Duration { return 10*time.Second + time.Duration(attempt)*2*time.Second },
		backoff:  func(attempt int) time.Duration { return time.Duration(1<<uint(attempt-1)) * c.searchDelay },
	}, &res)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// GetVolume fetches one volume. A 404 is returned as ErrNotFound without retrying.
func (c *Client) GetVolume(ctx context.Context, id string) (*Volume, error) {
	u := c.baseURL + "/volumes/" + url.PathEscape(id)
	if c.apiKey != "" {
		u += "?key=" + url.QueryEscape(c.apiKey)
	}

	var v Volume
	err := c.do(ctx, "get volume", u, retryPolicy{
		attempts:        fetchAttempts,
		timeout:         func(attempt int) time.Duration { return 8*time.Second + time.Duration(attempt)*time.Second },
		backoff:         func(attempt int) time.Duration { return time.Duration(attempt) * c.fetchDelay },
		notFoundIsFinal: true,
	}, &v)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type retryPolicy struct {
	attempts int
	timeout  func(attempt int) time.Duration
	backoff  func(attempt int) time.Duration

	// notFoundIsFinal stops at the first 404 and returns ErrNotFound.
	notFoundIsFinal bool
}

func (c *Client) do(ctx context.Context, op, u string, p retryPolicy, target any) error {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 {
			delay := p.backoff(attempt - 1)
			c.logger.Warn("google books retry", "op", op, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := c.getOnce(ctx, u, p.timeout(attempt), target)
		if err == nil {
			return nil
		}
		if p.notFoundIsFinal && errors.Is(err, ErrNotFound) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}
	c.logger.Error("google books gave up", "op", op, "attempts", p.attempts, "error", lastErr)
	return &TransientError{Op: op, Attempts: p.attempts, Err: lastErr}
}

func (c *Client) getOnce(ctx context.Context, u string, timeout time.Duration, target any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return &StatusError{StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
