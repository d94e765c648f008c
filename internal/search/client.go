// Package search wraps the web-search collaborator. A scope id selects the
// search collection: the trusted collection is restricted server-side to the
// configured allow-list of medical domains, the broad collection is
// unscoped.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/clinika/medanswer/internal/circuitbreaker"
)

// Result is one web search hit. Rank is the 1-based position within its
// tier's result list.
type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
	Rank    int    `json:"rank"`
}

// Service is the search capability the retrieval cascade consumes.
type Service interface {
	Search(ctx context.Context, query string, count int, scopeID string) ([]Result, error)
}

// Client calls a programmable-search REST endpoint.
type Client struct {
	endpoint string
	apiKey   string
	timeout  time.Duration
	client   *circuitbreaker.HTTPWrapper
	logger   *zap.Logger
}

// Options configures the search client.
type Options struct {
	Endpoint  string
	APIKeyEnv string
	Timeout   time.Duration
}

// NewClient creates a search client. The API key is resolved from the
// configured environment variable.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 6 * time.Second
	}
	return &Client{
		endpoint: opts.Endpoint,
		apiKey:   os.Getenv(opts.APIKeyEnv),
		timeout:  opts.Timeout,
		client:   circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: opts.Timeout}, "search", logger),
		logger:   logger,
	}
}

type searchResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"items"`
}

// Search runs one query against the collection selected by scopeID and
// returns results in rank order. An empty result list is not an error.
func (c *Client) Search(ctx context.Context, query string, count int, scopeID string) ([]Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(count))
	if scopeID != "" {
		params.Set("cx", scopeID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search call: HTTP %d", resp.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]Result, 0, len(out.Items))
	for i, item := range out.Items {
		if item.Link == "" {
			continue
		}
		results = append(results, Result{
			Title:   item.Title,
			Snippet: item.Snippet,
			Link:    item.Link,
			Rank:    i + 1,
		})
	}
	return results, nil
}
