// Package bsky searches Bluesky posts over the public XRPC API.
package bsky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/gamepulse/internal/logging"
)

const (
	searchEndpoint  = "/xrpc/app.bsky.feed.searchPosts"
	sessionEndpoint = "/xrpc/com.atproto.server.createSession"

	// MaxPageLimit is the largest page size searchPosts accepts.
	MaxPageLimit = 100
)

// ErrUnauthorized is returned when login fails or a session expires.
var ErrUnauthorized = errors.New("bsky: unauthorized")

// APIError is a non-2xx XRPC response.
type APIError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("bsky API error (status %d): %s: %s", e.Status, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("bsky API error (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("bsky API error (status %d)", e.Status)
}

// Options configures a Client. Zero fields take defaults.
type Options struct {
	BaseURL string        // public AppView, default https://api.bsky.app
	PDSURL  string        // session host, default https://bsky.social
	Timeout time.Duration // per-request HTTP timeout, default 30s
	Delay   time.Duration // minimum spacing between calls; 0 disables limiting
}

// Client calls the Bluesky search API with rate limiting and retries.
type Client struct {
	baseURL string
	pdsURL  string
	client  *http.Client
	limiter *rate.Limiter

	// backoffs between retries of 429/5xx responses
	backoffs []time.Duration

	mu     sync.RWMutex
	token  string
	handle string
}

// NewClient creates a search client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.bsky.app"
	}
	if opts.PDSURL == "" {
		opts.PDSURL = "https://bsky.social"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	limit := rate.Inf
	if opts.Delay > 0 {
		limit = rate.Every(opts.Delay)
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		pdsURL:   strings.TrimRight(opts.PDSURL, "/"),
		client:   &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, 1),
		backoffs: []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
	}
}

// LoggedIn reports whether Login succeeded.
func (c *Client) LoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// Handle returns the logged-in handle, if any.
func (c *Client) Handle() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handle
}

// Login creates a session with an app password. Later searches go to the
// PDS with the session's access token.
func (c *Client) Login(ctx context.Context, handle, appPassword string) error {
	if handle == "" || appPassword == "" {
		return fmt.Errorf("%w: handle and app password required", ErrUnauthorized)
	}

	body, err := json.Marshal(map[string]string{
		"identifier": handle,
		"password":   appPassword,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pdsURL+sessionEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := decodeAPIError(resp.StatusCode, data)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
			return fmt.Errorf("%w: %v", ErrUnauthorized, apiErr)
		}
		return apiErr
	}

	var session struct {
		AccessJwt string `json:"accessJwt"`
		Handle    string `json:"handle"`
	}
	if err := json.Unmarshal(data, &session); err != nil {
		return fmt.Errorf("parse session: %w", err)
	}
	if session.AccessJwt == "" {
		return fmt.Errorf("%w: empty access token", ErrUnauthorized)
	}

	c.mu.Lock()
	c.token = session.AccessJwt
	c.handle = session.Handle
	c.mu.Unlock()

	logging.Info("bsky: logged in", "handle", session.Handle)
	return nil
}

// SearchParams are the searchPosts query parameters.
type SearchParams struct {
	Query  string
	Since  time.Time // inclusive; zero means unbounded
	Until  time.Time // exclusive; zero means unbounded
	Limit  int       // 1-100, default 25
	Cursor string
	Sort   string // "latest" or "top"; empty uses the server default
}

// SearchPage is one page of search results.
type SearchPage struct {
	Posts  []PostView `json:"posts"`
	Cursor string     `json:"cursor"`
	Hits   int        `json:"hitsTotal,omitempty"`
}

// SearchPosts fetches one page of posts. Each call waits on the rate limiter.
func (c *Client) SearchPosts(ctx context.Context, p SearchParams) (*SearchPage, error) {
	if strings.TrimSpace(p.Query) == "" {
		return nil, fmt.Errorf("search: empty query")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("q", p.Query)
	if !p.Since.IsZero() {
		q.Set("since", p.Since.UTC().Format(time.RFC3339))
	}
	if !p.Until.IsZero() {
		q.Set("until", p.Until.UTC().Format(time.RFC3339))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(min(p.Limit, MaxPageLimit)))
	}
	if p.Cursor != "" {
		q.Set("cursor", p.Cursor)
	}
	if p.Sort != "" {
		q.Set("sort", p.Sort)
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	host := c.baseURL
	if token != "" {
		host = c.pdsURL
	}

	body, err := c.doWithRetry(ctx, host+searchEndpoint+"?"+q.Encode(), token)
	if err != nil {
		return nil, err
	}

	var page SearchPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &page, nil
}

// SearchAll follows cursors until the server stops returning one or maxPages
// pages have been read (maxPages <= 0 means no cap). onPage, if non-nil, is
// called after each page. Posts read before an error are returned with it.
func (c *Client) SearchAll(ctx context.Context, p SearchParams, maxPages int, onPage func(page int, got []PostView)) ([]PostView, error) {
	var all []PostView
	seen := make(map[string]bool)

	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		res, err := c.SearchPosts(ctx, p)
		if err != nil {
			return all, err
		}

		for _, pv := range res.Posts {
			// Cursor pagination can repeat posts at page boundaries
			if pv.URI != "" && seen[pv.URI] {
				continue
			}
			seen[pv.URI] = true
			all = append(all, pv)
		}
		if onPage != nil {
			onPage(page, res.Posts)
		}

		if res.Cursor == "" || res.Cursor == p.Cursor || len(res.Posts) == 0 {
			break
		}
		p.Cursor = res.Cursor
	}
	return all, nil
}

// doWithRetry executes a GET with retry logic for transient errors.
// Retries on HTTP 429 or 5xx with the client's backoffs.
// Honors the Retry-After header on 429 responses.
func (c *Client) doWithRetry(ctx context.Context, rawURL, token string) ([]byte, error) {
	maxRetries := len(c.backoffs)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "gamepulse/1.0")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			if err := c.sleep(ctx, attempt, 0); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			if err := c.sleep(ctx, attempt, 0); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return body, nil
		}

		apiErr := decodeAPIError(resp.StatusCode, body)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = apiErr
			var retryAfter time.Duration
			if resp.StatusCode == http.StatusTooManyRequests {
				if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && seconds > 0 {
					retryAfter = min(time.Duration(seconds)*time.Second, 60*time.Second)
				}
			}
			logging.Warn("bsky: retrying", "status", resp.StatusCode, "attempt", attempt+1)
			if err := c.sleep(ctx, attempt, retryAfter); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %v", ErrUnauthorized, apiErr)
		}
		return nil, apiErr
	}

	return nil, fmt.Errorf("bsky request failed after %d retries: %w", maxRetries, lastErr)
}

// sleep waits before the next attempt. The final attempt does not wait.
func (c *Client) sleep(ctx context.Context, attempt int, override time.Duration) error {
	if attempt >= len(c.backoffs) {
		return nil
	}
	delay := c.backoffs[attempt]
	if override > 0 {
		delay = override
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if json.Unmarshal(body, apiErr) != nil || (apiErr.Code == "" && apiErr.Message == "") {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	apiErr.Status = status
	return apiErr
}
