package boardapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/boardsync/boardsync/pkg/logger"
)

const (
	// DefaultEndpoint is the external board GraphQL endpoint.
	DefaultEndpoint = "https://api.monday.com/v2"

	defaultTimeout = 30 * time.Second
)

var (
	// ErrRateLimited signals the caller should back off and retry.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrNotFound signals the requested board or item does not exist.
	ErrNotFound = errors.New("not found")
)

// IsRateLimit reports whether an error is a rate-limit signal. The
// external API reports throttling in the error message body, so the
// text is inspected in addition to the sentinel.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "rate limit")
}

// API is the surface the sync engine consumes. Implemented by Client
// and by test fakes.
type API interface {
	TestConnection(ctx context.Context) (*Account, error)
	ListWorkspaces(ctx context.Context) ([]Workspace, error)
	ListBoards(ctx context.Context, workspaceID string) ([]Board, error)
	ListColumns(ctx context.Context, boardID string) ([]Column, error)
	CountItems(ctx context.Context, boardID string) (int, error)
	ListItems(ctx context.Context, boardID string, page, pageSize int, updatedSince *time.Time) (*ItemPage, error)
	GetItem(ctx context.Context, itemID string) (*Item, error)
	ListSubitems(ctx context.Context, parentItemID string) ([]Item, error)
	CreateItem(ctx context.Context, boardID, name string, columnValues map[string]interface{}) (*Item, error)
	CreateSubitem(ctx context.Context, parentItemID, name string, columnValues map[string]interface{}) (*Item, error)
	UpdateItem(ctx context.Context, itemID, boardID string, columnValues map[string]interface{}) (*Item, error)
}

// Client talks to the external board GraphQL API.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the API endpoint, used by tests.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRequestsPerMinute sets the client-side pacing budget.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(float64(n)/60.0), n/10+1)
		}
	}
}

// WithLogger attaches a logger for request tracing.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client authenticated with the given API key.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint:   DefaultEndpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(100.0/60.0), 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors,omitempty"`
}

// request executes one GraphQL call and decodes the data payload into out.
func (c *Client) request(ctx context.Context, query string, variables map[string]interface{}, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("request pacing aborted: %w", err)
		}
	}

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		msg := gqlResp.Errors[0].Message
		if strings.Contains(strings.ToLower(msg), "rate limit") {
			return fmt.Errorf("%w: %s", ErrRateLimited, msg)
		}
		return fmt.Errorf("API error: %s", msg)
	}

	if out != nil {
		if err := json.Unmarshal(gqlResp.Data, out); err != nil {
			return fmt.Errorf("failed to decode data: %w", err)
		}
	}
	return nil
}

// TestConnection verifies the API key by fetching the account identity.
func (c *Client) TestConnection(ctx context.Context) (*Account, error) {
	var data struct {
		Me Account `json:"me"`
	}
	query := `query { me { id name email } }`
	if err := c.request(ctx, query, nil, &data); err != nil {
		return nil, fmt.Errorf("connection test failed: %w", err)
	}
	return &data.Me, nil
}

// ListWorkspaces returns all workspaces visible to the account.
func (c *Client) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	var data struct {
		Workspaces []Workspace `json:"workspaces"`
	}
	query := `query { workspaces { id name description } }`
	if err := c.request(ctx, query, nil, &data); err != nil {
		return nil, err
	}
	return data.Workspaces, nil
}

// ListBoards returns the boards in one workspace.
func (c *Client) ListBoards(ctx context.Context, workspaceID string) ([]Board, error) {
	var data struct {
		Boards []Board `json:"boards"`
	}
	query := `query ($workspaceID: [ID!]) {
		boards (workspace_ids: $workspaceID, limit: 100) { id name description items_count }
	}`
	vars := map[string]interface{}{"workspaceID": []string{workspaceID}}
	if err := c.request(ctx, query, vars, &data); err != nil {
		return nil, err
	}
	return data.Boards, nil
}

// ListColumns returns the column definitions of one board.
func (c *Client) ListColumns(ctx context.Context, boardID string) ([]Column, error) {
	var data struct {
		Boards []struct {
			Columns []Column `json:"columns"`
		} `json:"boards"`
	}
	query := `query ($boardID: [ID!]) {
		boards (ids: $boardID) { columns { id title type } }
	}`
	vars := map[string]interface{}{"boardID": []string{boardID}}
	if err := c.request(ctx, query, vars, &data); err != nil {
		return nil, err
	}
	if len(data.Boards) == 0 {
		return nil, fmt.Errorf("board %s: %w", boardID, ErrNotFound)
	}
	return data.Boards[0].Columns, nil
}

// CountItems returns the number of items on one board.
func (c *Client) CountItems(ctx context.Context, boardID string) (int, error) {
	var data struct {
		Boards []struct {
			ItemsCount int `json:"items_count"`
		} `json:"boards"`
	}
	query := `query ($boardID: [ID!]) {
		boards (ids: $boardID) { items_count }
	}`
	vars := map[string]interface{}{"boardID": []string{boardID}}
	if err := c.request(ctx, query, vars, &data); err != nil {
		return 0, err
	}
	if len(data.Boards) == 0 {
		return 0, fmt.Errorf("board %s: %w", boardID, ErrNotFound)
	}
	return data.Boards[0].ItemsCount, nil
}

type itemPayload struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	UpdatedAt    string        `json:"updated_at"`
	ColumnValues []ColumnValue `json:"column_values"`
	Board        *struct {
		ID string `json:"id"`
	} `json:"board,omitempty"`
	ParentItem *struct {
		ID string `json:"id"`
	} `json:"parent_item,omitempty"`
}

func (p itemPayload) toItem() Item {
	it := Item{
		ID:           p.ID,
		Name:         p.Name,
		ColumnValues: p.ColumnValues,
	}
	if t, err := time.Parse(time.RFC3339, p.UpdatedAt); err == nil {
		it.UpdatedAt = t
	}
	if p.Board != nil {
		it.BoardID = p.Board.ID
	}
	if p.ParentItem != nil {
		it.ParentItemID = p.ParentItem.ID
	}
	return it
}

// ListItems returns one page of a board's items. When updatedSince is
// set, items untouched since that time are filtered out after the
// fetch; the page cursor still advances by raw page.
func (c *Client) ListItems(ctx context.Context, boardID string, page, pageSize int, updatedSince *time.Time) (*ItemPage, error) {
	var data struct {
		Boards []struct {
			Items []itemPayload `json:"items"`
		} `json:"boards"`
	}
	query := `query ($boardID: [ID!], $limit: Int!, $page: Int!) {
		boards (ids: $boardID) {
			items (limit: $limit, page: $page) {
				id name updated_at
				column_values { id type text value }
			}
		}
	}`
	vars := map[string]interface{}{
		"boardID": []string{boardID},
		"limit":   pageSize,
		"page":    page,
	}
	if err := c.request(ctx, query, vars, &data); err != nil {
		return nil, err
	}
	if len(data.Boards) == 0 {
		return nil, fmt.Errorf("board %s: %w", boardID, ErrNotFound)
	}

	raw := data.Boards[0].Items
	items := make([]Item, 0, len(raw))
	for _, p := range raw {
		it := p.toItem()
		it.BoardID = boardID
		if updatedSince != nil && !it.UpdatedAt.After(*updatedSince) {
			continue
		}
		items = append(items, it)
	}

	return &ItemPage{
		Items:   items,
		HasMore: len(raw) == pageSize,
	}, nil
}

// GetItem fetches one item by id.
func (c *Client) GetItem(ctx context.Context, itemID string) (*Item, error) {
	var data struct {
		Items []itemPayload `json:"items"`
	}
	query := `query ($itemID: [ID!]) {
		items (ids: $itemID) {
			id name updated_at
			board { id }
			column_values { id type text value }
		}
	}`
	vars := map[string]interface{}{"itemID": []string{itemID}}
	if err := c.request(ctx, query, vars, &data); err != nil {
		return nil, err
	}
	if len(data.Items) == 0 {
		return nil, fmt.Errorf("item %s: %w", itemID, ErrNotFound)
	}
	it := data.Items[0].toItem()
	return &it, nil
}

// ListSubitems returns the subitems of one parent item.
func (c *Client) ListSubitems(ctx context.Context, parentItemID string) ([]Item, error) {
	var data struct {
		Items []struct {
			Subitems []itemPayload `json:"subitems"`
		} `json:"items"`
	}
	query := `query ($itemID: [ID!]) {
		items (ids: $itemID) {
			subitems {
				id name updated_at
				board { id }
				column_values { id type text value }
			}
		}
	}`
	vars := map[string]interface{}{"itemID": []string{parentItemID}}
	if err := c.request(ctx, query, vars, &data); err != nil {
		return nil, err
	}
	if len(data.Items) == 0 {
		return nil, nil
	}
	subs := make([]Item, 0, len(data.Items[0].Subitems))
	for _, p := range data.Items[0].Subitems {
		it := p.toItem()
		it.ParentItemID = parentItemID
		subs = append(subs, it)
	}
	return subs, nil
}

func encodeColumnValues(columnValues map[string]interface{}) (string, error) {
	if columnValues == nil {
		columnValues = map[string]interface{}{}
	}
	encoded, err := json.Marshal(columnValues)
	if err != nil {
		return "", fmt.Errorf("failed to encode column values: %w", err)
	}
	return string(encoded), nil
}

// CreateItem creates one item on a board and returns it with its new id.
func (c *Client) CreateItem(ctx context.Context, boardID, name string, columnValues map[string]interface{}) (*Item, error) {
	encoded, err := encodeColumnValues(columnValues)
	if err != nil {
		return nil, err
	}

	var data struct {
		CreateItem itemPayload `json:"create_item"`
	}
	query := `mutation ($boardID: ID!, $name: String!, $columnValues: JSON) {
		create_item (board_id: $boardID, item_name: $name, column_values: $columnValues) {
			id name updated_at
		}
	}`
	vars := map[string]interface{}{
		"boardID":      boardID,
		"name":         name,
		"columnValues": encoded,
	}
	if err := c.request(ctx, query, vars, &data); err != nil {
		return nil, err
	}
	it := data.CreateItem.toItem()
	it.BoardID = boardID
	return &it, nil
}

// CreateSubitem creates one subitem under a parent item.
func (c *Client) CreateSubitem(ctx context.Context, parentItemID, name string, columnValues map[string]interface{}) (*Item, error) {
	encoded, err := encodeColumnValues(columnValues)
	if err != nil {
		return nil, err
	}

	var data struct {
		CreateSubitem itemPayload `json:"create_subitem"`
	}
	query := `mutation ($parentID: ID!, $name: String!, $columnValues: JSON) {
		create_subitem (parent_item_id: $parentID, item_name: $name, column_values: $columnValues) {
			id name updated_at
			board { id }
		}
	}`
	vars := map[string]interface{}{
		"parentID":     parentItemID,
		"name":         name,
		"columnValues": encoded,
	}
	if err := c.request(ctx, query, vars, &data); err != nil {
		return nil, err
	}
	it := data.CreateSubitem.toItem()
	it.ParentItemID = parentItemID
	return &it, nil
}

// UpdateItem overwrites the given column values of one item.
func (c *Client) UpdateItem(ctx context.Context, itemID, boardID string, columnValues map[string]interface{}) (*Item, error) {
	encoded, err := encodeColumnValues(columnValues)
	if err != nil {
		return nil, err
	}

	var data struct {
		UpdateItem itemPayload `json:"change_multiple_column_values"`
	}
	query := `mutation ($itemID: ID!, $boardID: ID!, $columnValues: JSON!) {
		change_multiple_column_values (item_id: $itemID, board_id: $boardID, column_values: $columnValues) {
			id name updated_at
		}
	}`
	vars := map[string]interface{}{
		"itemID":       itemID,
		"boardID":      boardID,
		"columnValues": encoded,
	}
	if err := c.request(ctx, query, vars, &data); err != nil {
		return nil, err
	}
	it := data.UpdateItem.toItem()
	it.BoardID = boardID
	return &it, nil
}
