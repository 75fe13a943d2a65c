// Package paperless integrates a Paperless-ngx document archive: an API
// client and a periodic sync that feeds new documents into the knowledge
// base.
package paperless

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/donnabot/donna/internal/log"
)

// Client is a Paperless-ngx API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     log.Logger
}

// NewClient creates a Paperless client. Both baseURL and token are
// required.
func NewClient(baseURL, token string, logger log.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("paperless base URL is required")
	}
	if token == "" {
		return nil, fmt.Errorf("paperless token is required")
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}, nil
}

// Documents lists documents modified after the given time, oldest first.
// Pagination is followed until exhausted. A zero time lists everything.
func (c *Client) Documents(ctx context.Context, modifiedAfter time.Time) ([]Document, error) {
	query := url.Values{}
	query.Set("ordering", "modified")
	if !modifiedAfter.IsZero() {
		query.Set("modified__gt", modifiedAfter.UTC().Format(time.RFC3339))
	}

	var all []Document
	next := c.baseURL + "/api/documents/?" + query.Encode()

	for next != "" {
		var page documentsResponse
		if err := c.get(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("list documents failed: %w", err)
		}
		all = append(all, page.Results...)
		next = page.Next
	}

	return all, nil
}

// Tags lists all tags.
func (c *Client) Tags(ctx context.Context) ([]Tag, error) {
	var all []Tag
	next := c.baseURL + "/api/tags/"

	for next != "" {
		var page tagsResponse
		if err := c.get(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("list tags failed: %w", err)
		}
		all = append(all, page.Results...)
		next = page.Next
	}

	return all, nil
}

// get performs one authenticated GET and decodes the JSON response.
func (c *Client) get(ctx context.Context, fullURL string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("paperless API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
