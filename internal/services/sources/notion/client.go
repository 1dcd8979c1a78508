package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public Notion API root
	DefaultBaseURL = "https://api.notion.com"
	// APIVersion pins the Notion-Version header
	APIVersion = "2022-06-28"
)

// Client is a thin JSON client for the Notion REST API. It retries HTTP 429
// with Retry-After or exponential backoff.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int
}

// NewClient creates a Notion client for an integration or OAuth token
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		maxRetries: 3,
	}
}

// SearchRequest is the body of POST /v1/search
type SearchRequest struct {
	Sort        *SearchSort `json:"sort,omitempty"`
	PageSize    int         `json:"page_size,omitempty"`
	StartCursor string      `json:"start_cursor,omitempty"`
}

// SearchSort orders search results
type SearchSort struct {
	Direction string `json:"direction"`
	Timestamp string `json:"timestamp"`
}

// SearchResponse is one page of search results
type SearchResponse struct {
	Results    []Object `json:"results"`
	HasMore    bool     `json:"has_more"`
	NextCursor string   `json:"next_cursor"`
}

// Object is a page or database returned by search
type Object struct {
	Object         string              `json:"object"`
	ID             string              `json:"id"`
	URL            string              `json:"url"`
	LastEditedTime string              `json:"last_edited_time"`
	Icon           *Icon               `json:"icon"`
	Parent         Parent              `json:"parent"`
	Title          []RichText          `json:"title"`
	Properties     map[string]Property `json:"properties"`
}

// Icon is a page or database icon
type Icon struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

// Parent is the container of a page or database
type Parent struct {
	Type       string `json:"type"`
	PageID     string `json:"page_id"`
	DatabaseID string `json:"database_id"`
	Workspace  bool   `json:"workspace"`
}

// ID returns the parent's identifier, empty for workspace parents
func (p Parent) ID() string {
	switch p.Type {
	case "page_id":
		return p.PageID
	case "database_id":
		return p.DatabaseID
	default:
		return ""
	}
}

// RichText is one rich-text run
type RichText struct {
	PlainText string `json:"plain_text"`
}

// Property is a page property value. Only the fields used by the fetcher are decoded.
type Property struct {
	Type     string       `json:"type"`
	Title    []RichText   `json:"title"`
	Date     *DateValue   `json:"date"`
	Status   *SelectValue `json:"status"`
	Select   *SelectValue `json:"select"`
	Checkbox *bool        `json:"checkbox"`
}

// DateValue is a date property value
type DateValue struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// SelectValue is a select or status option
type SelectValue struct {
	Name string `json:"name"`
}

// ErrorResponse is the Notion error body
type ErrorResponse struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Search returns recently edited pages and databases, newest first
func (c *Client) Search(ctx context.Context, pageSize int) (*SearchResponse, error) {
	req := SearchRequest{
		Sort:     &SearchSort{Direction: "descending", Timestamp: "last_edited_time"},
		PageSize: pageSize,
	}
	var resp SearchResponse
	if err := c.do(ctx, http.MethodPost, "/v1/search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", APIVersion)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}
		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429) on %s %s", method, path)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfter(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			var apiErr ErrorResponse
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Code != "" {
				return fmt.Errorf("notion API error (%d %s) on %s %s: %s",
					resp.StatusCode, apiErr.Code, method, path, apiErr.Message)
			}
			return fmt.Errorf("unexpected status %d on %s %s", resp.StatusCode, method, path)
		}

		if result == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
		}
		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfter reads Retry-After seconds, falling back to 1s, 2s, 4s capped at 30s
func retryAfter(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	return min(backoff, 30*time.Second)
}
