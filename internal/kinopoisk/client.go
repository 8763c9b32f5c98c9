// Package kinopoisk wraps the kinopoisk.dev movie API for random and title
// lookups.
package kinopoisk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/handsomefox/kinochat/internal/filter"
	"github.com/handsomefox/kinochat/internal/logger"
)

const (
	DefaultBaseURL = "https://api.kinopoisk.dev/v1.4"

	// QuotaMessage is shown to users when the API key ran out of requests.
	QuotaMessage = "Ошибка: вы израсходовали лимит запросов. Обновите тариф в @kinopoiskdev_bot 😢"

	maxBodySize = 4 << 20
)

var (
	ErrQuotaExceeded = errors.New("kinopoisk: request quota exceeded")
	ErrRequestFailed = errors.New("kinopoisk: request failed")
	ErrBadFormat     = errors.New("kinopoisk: unexpected response format")
	ErrEmpty         = errors.New("kinopoisk: empty response")
	ErrTransport     = errors.New("kinopoisk: transport error")
)

type Client struct {
	token   string
	baseURL string
	http    *http.Client
	log     *slog.Logger
	now     func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root (tests, mirrors).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithClock sets the time source used for open-ended year ranges.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a client. The API serves a certificate chain that does not
// always verify, so certificate checks are off.
func New(token string, opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // see doc comment.

	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
		log: slog.Default(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RandomURL is the random movie endpoint for the given filters.
func (c *Client) RandomURL(s filter.Set) string {
	return filter.BuildURL(c.baseURL+"/movie/random?", s, c.now())
}

// SearchURL is the title search endpoint for query.
func (c *Client) SearchURL(query string) string {
	return c.baseURL + "/movie/search?query=" + url.QueryEscape(query)
}

// Random fetches one random movie matching s.
func (c *Client) Random(ctx context.Context, s filter.Set) (*Movie, error) {
	endpoint := c.RandomURL(s)
	raw, err := c.Fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var movie Movie
	if err := json.Unmarshal(raw, &movie); err != nil {
		c.log.Error("kinopoisk: decode movie", slog.String("url", endpoint), logger.Error(err))
		return nil, fmt.Errorf("%w: decode movie: %w", ErrBadFormat, err)
	}
	return &movie, nil
}

// Search looks movies up by title.
func (c *Client) Search(ctx context.Context, query string) (*SearchResult, error) {
	endpoint := c.SearchURL(query)
	raw, err := c.Fetch(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var res SearchResult
	if err := json.Unmarshal(raw, &res); err != nil {
		c.log.Error("kinopoisk: decode search", slog.String("url", endpoint), logger.Error(err))
		return nil, fmt.Errorf("%w: decode search: %w", ErrBadFormat, err)
	}
	return &res, nil
}

// Fetch GETs rawURL and returns the JSON body. Failures are reported as one
// of the package's sentinel errors.
func (c *Client) Fetch(ctx context.Context, rawURL string) (json.RawMessage, error) {
	log := c.log.With(slog.String("url", rawURL))
	log.Info("kinopoisk: request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		log.Error("kinopoisk: build request", logger.Error(err))
		return nil, fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	req.URL.RawQuery = escapeQuery(req.URL.RawQuery)
	req.Header.Set("X-API-KEY", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		log.Error("kinopoisk: request failed", logger.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Warn("kinopoisk: close body", logger.Error(cerr))
		}
	}()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		log.Error("kinopoisk: request quota exceeded")
		return nil, ErrQuotaExceeded
	case resp.StatusCode != http.StatusOK:
		log.Error("kinopoisk: unexpected status", slog.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Status)
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		log.Error("kinopoisk: response is not json", slog.String("content_type", ct))
		return nil, fmt.Errorf("%w: content type %q", ErrBadFormat, ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		log.Error("kinopoisk: read body", logger.Error(err))
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	body = bytes.TrimSpace(body)
	if isEmptyJSON(body) {
		log.Error("kinopoisk: empty response")
		return nil, ErrEmpty
	}
	if !json.Valid(body) {
		log.Error("kinopoisk: invalid json")
		return nil, fmt.Errorf("%w: invalid json", ErrBadFormat)
	}
	return json.RawMessage(body), nil
}

func isEmptyJSON(body []byte) bool {
	switch string(body) {
	case "", "null", "{}", "[]", `""`, "0", "false":
		return true
	}
	return false
}

// escapeQuery percent-encodes bytes that may not appear raw in a query
// (non-ASCII, controls, space and the unsafe punctuation). Existing escapes
// and the '&', '=' and '+' separators are left as they are.
func escapeQuery(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !mustEscape(ch) {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[ch>>4])
		b.WriteByte(hex[ch&0x0f])
	}
	return b.String()
}

func mustEscape(ch byte) bool {
	if ch <= ' ' || ch >= 0x7f {
		return true
	}
	return strings.IndexByte(`"#<>\^`+"`"+`{|}`, ch) >= 0
}
