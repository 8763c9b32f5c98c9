// Package tenor wraps the Tenor v2 search API for random GIF lookups.
package tenor

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/handsomefox/kinochat/internal/logger"
)

const DefaultBaseURL = "https://tenor.googleapis.com/v2"

var ErrNoResults = errors.New("tenor: no results")

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

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

type searchResponse struct {
	Results []struct {
		ID           string `json:"id"`
		MediaFormats map[string]struct {
			URL string `json:"url"`
		} `json:"media_formats"`
	} `json:"results"`
}

// New creates a client. Like the movie API client it does not verify
// certificates.
func New(apiKey string, opts ...Option) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // matches the movie client.
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Random returns the URL of a random GIF matching query.
func (c *Client) Random(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", ErrNoResults
	}
	values := url.Values{}
	values.Set("q", query)
	values.Set("random", "True")
	values.Set("limit", "1")
	// The key stays out of the logged URL.
	log := c.log.With(slog.String("url", c.baseURL+"/search?"+values.Encode()))
	values.Set("key", c.apiKey)
	endpoint := c.baseURL + "/search?" + values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		log.Error("tenor: build request", logger.Error(err))
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Error("tenor: request failed", logger.Error(err))
		return "", fmt.Errorf("tenor search: %w", err)
	}
	if resp.StatusCode >= 400 {
		log.Error("tenor: unexpected status", slog.Int("status", resp.StatusCode))
		statusErr := fmt.Errorf("tenor search failed: %s", resp.Status)
		if cerr := resp.Body.Close(); cerr != nil {
			return "", errors.Join(statusErr, cerr)
		}
		return "", statusErr
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		log.Error("tenor: decode", logger.Error(err))
		if cerr := resp.Body.Close(); cerr != nil {
			return "", errors.Join(err, cerr)
		}
		return "", fmt.Errorf("tenor decode: %w", err)
	}
	if err := resp.Body.Close(); err != nil {
		return "", err
	}

	for _, r := range payload.Results {
		if gif, ok := r.MediaFormats["gif"]; ok && gif.URL != "" {
			return gif.URL, nil
		}
	}
	log.Info("tenor: no results")
	return "", ErrNoResults
}
