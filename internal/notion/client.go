package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

const (
	// BaseURL is the Notion REST API root.
	BaseURL = "https://api.notion.com/v1"
	// APIVersion is sent as the Notion-Version header.
	APIVersion = "2022-06-28"
)

// Client is an authenticated Notion API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithTimeout bounds every request made by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client that authenticates with an integration token.
// Integration tokens never expire, so a static token source suffices.
func NewClient(ctx context.Context, token string, opts ...Option) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	c := &Client{
		httpClient: oauth2.NewClient(ctx, ts),
		baseURL:    BaseURL,
	}
	c.httpClient.Timeout = 15 * time.Second
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the Notion API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion API error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("notion API error %d (%s): %s", e.Status, e.Code, e.Message)
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Notion-Version", APIVersion)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notion API request failed: %w", err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(data)
		}
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding notion response: %w", err)
	}
	return nil
}

// Database is the subset of a Notion database object used here.
type Database struct {
	ID         string     `json:"id"`
	Properties Properties `json:"properties"`
}

// RetrieveDatabase fetches the database object including its property schema.
func (c *Client) RetrieveDatabase(ctx context.Context, databaseID string) (Database, error) {
	var db Database
	if err := c.do(ctx, http.MethodGet, "/databases/"+url.PathEscape(databaseID), nil, &db); err != nil {
		return Database{}, err
	}
	return db, nil
}

// Page is the subset of a Notion page object used here.
type Page struct {
	ID         string                     `json:"id"`
	Properties map[string]json.RawMessage `json:"properties"`
}

type createPageRequest struct {
	Parent     parent         `json:"parent"`
	Properties map[string]any `json:"properties"`
}

type parent struct {
	DatabaseID string `json:"database_id"`
}

// CreatePage creates a page in the database and returns its id.
func (c *Client) CreatePage(ctx context.Context, databaseID string, properties map[string]any) (string, error) {
	var page Page
	req := createPageRequest{Parent: parent{DatabaseID: databaseID}, Properties: properties}
	if err := c.do(ctx, http.MethodPost, "/pages", req, &page); err != nil {
		return "", err
	}
	return page.ID, nil
}

type queryRequest struct {
	Filter   any `json:"filter,omitempty"`
	PageSize int `json:"page_size,omitempty"`
}

type queryResponse struct {
	Results []Page `json:"results"`
}

// QueryDatabase returns the first page of results matching filter.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, filter any, pageSize int) ([]Page, error) {
	var resp queryResponse
	req := queryRequest{Filter: filter, PageSize: pageSize}
	if err := c.do(ctx, http.MethodPost, "/databases/"+url.PathEscape(databaseID)+"/query", req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// FindPageByTitle returns the id of the first page in the database whose
// title equals title, or "" if there is none.
func (c *Client) FindPageByTitle(ctx context.Context, databaseID, title string) (string, error) {
	db, err := c.RetrieveDatabase(ctx, databaseID)
	if err != nil {
		return "", err
	}
	titleProp := ""
	for _, p := range db.Properties {
		if p.Type == "title" {
			titleProp = p.Name
			break
		}
	}
	if titleProp == "" {
		return "", fmt.Errorf("database %s has no title property", databaseID)
	}

	pages, err := c.QueryDatabase(ctx, databaseID, TitleFilter(titleProp, title), 1)
	if err != nil {
		return "", err
	}
	if len(pages) == 0 {
		return "", nil
	}
	return pages[0].ID, nil
}
