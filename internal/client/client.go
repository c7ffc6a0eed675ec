// Package client talks to the list backend over HTTP and follows its change
// feed over websocket.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/shoplist/internal/auth"
	"github.com/vyrodovalexey/shoplist/internal/model"
	"github.com/vyrodovalexey/shoplist/internal/store"
)

// DefaultTimeout bounds a single backend request.
const DefaultTimeout = 15 * time.Second

// Client errors. Not-found responses map onto the store sentinels so callers
// classify remote and local failures the same way.
var (
	ErrUnauthorized     = errors.New("backend rejected credentials")
	ErrBadRequest       = errors.New("backend rejected request")
	ErrUnexpectedStatus = errors.New("unexpected backend status")
)

// Client is an HTTP implementation of the list store contract.
type Client struct {
	baseURL    string
	apiKey     string
	username   string
	password   string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey authenticates requests with the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithBasicAuth authenticates requests with HTTP Basic credentials.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the backend at baseURL.
func New(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping verifies that the backend is reachable and accepts the credentials.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.List(ctx)
	return err
}

// List returns the summaries of all lists in display order.
func (c *Client) List(ctx context.Context) ([]model.ShoppingList, error) {
	var lists []model.ShoppingList
	if err := c.do(ctx, http.MethodGet, "/api/v1/lists", nil, &lists); err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	return lists, nil
}

// Get fetches the remote document of a list.
func (c *Client) Get(ctx context.Context, id string) (*model.ListDocument, error) {
	if id == "" {
		return nil, store.ErrInvalidID
	}
	var doc model.ListDocument
	if err := c.doRaw(ctx, http.MethodGet, model.DocumentPath(url.PathEscape(id)), nil, &doc); err != nil {
		return nil, fmt.Errorf("get list %s: %w", id, err)
	}
	return &doc, nil
}

// Create creates a list.
func (c *Client) Create(ctx context.Context, req *model.CreateListRequest) (*model.ShoppingList, error) {
	if req == nil {
		return nil, store.ErrNilRequest
	}
	var list model.ShoppingList
	if err := c.do(ctx, http.MethodPost, "/api/v1/lists", req, &list); err != nil {
		return nil, fmt.Errorf("create list: %w", err)
	}
	return &list, nil
}

// Delete removes a list.
func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return store.ErrInvalidID
	}
	if err := c.do(ctx, http.MethodDelete, listPath(id), nil, nil); err != nil {
		return fmt.Errorf("delete list %s: %w", id, err)
	}
	return nil
}

// AddItem appends an item to a list.
func (c *Client) AddItem(ctx context.Context, req *model.AddItemRequest) (*model.ShoppingListItem, error) {
	if req == nil {
		return nil, store.ErrNilRequest
	}
	var item model.ShoppingListItem
	if err := c.do(ctx, http.MethodPost, listPath(req.ListID)+"/items", req, &item); err != nil {
		return nil, fmt.Errorf("add item to %s: %w", req.ListID, err)
	}
	return &item, nil
}

// RemoveItem deletes an item from a list.
func (c *Client) RemoveItem(ctx context.Context, listID, clientItemID string) error {
	path := listPath(listID) + "/items/" + url.PathEscape(clientItemID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("remove item %s from %s: %w", clientItemID, listID, err)
	}
	return nil
}

// Reorder sends the full display order of lists.
func (c *Client) Reorder(ctx context.Context, orderedIDs []string) error {
	body := model.ReorderRequest{ListIDs: orderedIDs}
	if err := c.do(ctx, http.MethodPut, "/api/v1/lists/order", body, nil); err != nil {
		return fmt.Errorf("reorder lists: %w", err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func listPath(id string) string {
	return "/api/v1/lists/" + url.PathEscape(id)
}

// do performs a request against an enveloped endpoint and unwraps the
// APIResponse data into dest.
func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	if dest == nil {
		return c.doRaw(ctx, method, path, body, nil)
	}
	envelope := model.APIResponse[json.RawMessage]{}
	if err := c.doRaw(ctx, method, path, body, &envelope); err != nil {
		return err
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req.Header)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(resp)
	}
	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// authorize adds the configured credentials to h.
func (c *Client) authorize(h http.Header) {
	if c.apiKey != "" {
		h.Set(auth.APIKeyHeader, c.apiKey)
	}
	if c.username != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(c.username + ":" + c.password))
		h.Set("Authorization", "Basic "+credentials)
	}
}

func statusError(resp *http.Response) error {
	var payload model.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
	message := payload.Message
	if message == "" {
		message = payload.Details
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		if message == "item not found" {
			return store.ErrItemNotFound
		}
		return store.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusBadRequest:
		if strings.Contains(message, store.ErrIncompleteOrder.Error()) {
			return fmt.Errorf("%w: %w", ErrBadRequest, store.ErrIncompleteOrder)
		}
		return fmt.Errorf("%w: %s", ErrBadRequest, message)
	default:
		return fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, message)
	}
}
