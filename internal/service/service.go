// Package service is the single path from the list core to the remote list
// backend. Every operation reports success as a plain value: failures are
// logged and converted, never returned as errors or panics.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/shoplist/internal/auth"
	"github.com/vyrodovalexey/shoplist/internal/cache"
	"github.com/vyrodovalexey/shoplist/internal/keylock"
	"github.com/vyrodovalexey/shoplist/internal/model"
)

// Backend is the remote list store. Both the HTTP client and the backend's
// own stores satisfy it.
type Backend interface {
	List(ctx context.Context) ([]model.ShoppingList, error)
	Get(ctx context.Context, id string) (*model.ListDocument, error)
	Create(ctx context.Context, req *model.CreateListRequest) (*model.ShoppingList, error)
	Delete(ctx context.Context, id string) error
	AddItem(ctx context.Context, req *model.AddItemRequest) (*model.ShoppingListItem, error)
	RemoveItem(ctx context.Context, listID, clientItemID string) error
	Reorder(ctx context.Context, orderedIDs []string) error
}

var errNotAuthenticated = errors.New("session is not authenticated")

// Service performs remote list operations.
type Service struct {
	backend Backend
	cache   *cache.Cache
	locks   *keylock.Map
	session auth.StateProvider
	metrics *Metrics
	logger  *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records operation outcomes into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a Service. Remote calls are only made while session reports
// AUTHENTICATED.
func New(backend Backend, c *cache.Cache, session auth.StateProvider, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		cache:   c,
		locks:   keylock.New(),
		session: session,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddItemToList appends one item to a list. Writes to the same list are
// serialized; the list's cache entries are invalidated on success.
func (s *Service) AddItemToList(ctx context.Context, req model.AddItemRequest) bool {
	const op = "add_item"
	started := time.Now()

	req.Normalize()
	if err := req.Validate(); err != nil {
		s.reject(op, err, zap.String("list_id", req.ListID))
		return false
	}
	if !s.authenticated(op) {
		return false
	}

	unlock := s.locks.Lock(req.ListID)
	item, err := s.backend.AddItem(ctx, &req)
	if err == nil {
		s.cache.InvalidateList(req.ListID)
	}
	unlock()
	if err != nil {
		s.fail(op, started, err, zap.String("list_id", req.ListID), zap.String("item_name", req.ItemName))
		return false
	}

	s.succeed(op, started,
		zap.String("list_id", req.ListID),
		zap.String("client_item_id", item.ClientItemID),
	)
	return true
}

// RemoveItemFromList deletes one item by its client ID.
func (s *Service) RemoveItemFromList(ctx context.Context, listID, clientItemID string) bool {
	const op = "remove_item"
	started := time.Now()

	listID = strings.TrimSpace(listID)
	if listID == "" || clientItemID == "" {
		s.reject(op, model.ErrEmptyListID, zap.String("client_item_id", clientItemID))
		return false
	}
	if !s.authenticated(op) {
		return false
	}

	unlock := s.locks.Lock(listID)
	err := s.backend.RemoveItem(ctx, listID, clientItemID)
	if err == nil {
		s.cache.InvalidateList(listID)
	}
	unlock()
	if err != nil {
		s.fail(op, started, err, zap.String("list_id", listID), zap.String("client_item_id", clientItemID))
		return false
	}

	s.succeed(op, started, zap.String("list_id", listID), zap.String("client_item_id", clientItemID))
	return true
}

// CreateList creates a list and returns its ID, or "" on failure.
func (s *Service) CreateList(ctx context.Context, name, description string) string {
	const op = "create_list"
	started := time.Now()

	req := model.CreateListRequest{Name: name, Description: description}
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.reject(op, err)
		return ""
	}
	if !s.authenticated(op) {
		return ""
	}

	list, err := s.backend.Create(ctx, &req)
	if err != nil {
		s.fail(op, started, err, zap.String("name", req.Name))
		return ""
	}

	s.succeed(op, started, zap.String("list_id", list.ID), zap.String("name", list.Name))
	return list.ID
}

// DeleteList deletes a list. Unknown IDs are a failure.
func (s *Service) DeleteList(ctx context.Context, listID string) bool {
	const op = "delete_list"
	started := time.Now()

	listID = strings.TrimSpace(listID)
	if listID == "" {
		s.reject(op, model.ErrEmptyListID)
		return false
	}
	if !s.authenticated(op) {
		return false
	}

	unlock := s.locks.Lock(listID)
	err := s.backend.Delete(ctx, listID)
	if err == nil {
		s.cache.InvalidateList(listID)
	}
	unlock()
	if err != nil {
		s.fail(op, started, err, zap.String("list_id", listID))
		return false
	}

	s.succeed(op, started, zap.String("list_id", listID))
	return true
}

// ReorderLists persists the full display order of lists.
func (s *Service) ReorderLists(ctx context.Context, orderedIDs []string) bool {
	const op = "reorder_lists"
	started := time.Now()

	if len(orderedIDs) == 0 {
		s.reject(op, errors.New("empty order"))
		return false
	}
	if !s.authenticated(op) {
		return false
	}

	if err := s.backend.Reorder(ctx, orderedIDs); err != nil {
		s.fail(op, started, err, zap.Strings("list_ids", orderedIDs))
		return false
	}

	for _, id := range orderedIDs {
		s.invalidate(id)
	}
	s.succeed(op, started, zap.Int("lists", len(orderedIDs)))
	return true
}

// FetchLists returns the remote list summaries and refreshes their local
// snapshots.
func (s *Service) FetchLists(ctx context.Context) ([]model.ShoppingList, bool) {
	const op = "fetch_lists"
	started := time.Now()

	if !s.authenticated(op) {
		return nil, false
	}

	lists, err := s.backend.List(ctx)
	if err != nil {
		s.fail(op, started, err)
		return nil, false
	}

	for _, list := range lists {
		if err := s.cache.PutList(cache.KindLocal, list.ID, list); err != nil {
			s.logger.Warn("failed to cache list snapshot", zap.String("list_id", list.ID), zap.Error(err))
		}
	}
	s.succeed(op, started, zap.Int("lists", len(lists)))
	return lists, true
}

// CachedLists returns the list summaries stored by earlier FetchLists calls.
// It reads only the cache, so it works while the backend is unreachable.
func (s *Service) CachedLists() []model.ShoppingList {
	ids := s.cache.ListIDs()
	lists := make([]model.ShoppingList, 0, len(ids))
	for _, id := range ids {
		var l model.ShoppingList
		if s.cache.GetList(cache.KindLocal, id, &l) {
			lists = append(lists, l)
		}
	}
	return lists
}

// GetList returns the remote document of a list, served from the cache while
// it is fresh.
func (s *Service) GetList(ctx context.Context, listID string) (*model.ListDocument, bool) {
	const op = "get_list"
	started := time.Now()

	if listID == "" {
		s.reject(op, model.ErrEmptyListID)
		return nil, false
	}
	if !s.authenticated(op) {
		return nil, false
	}

	// Held until the fetched document is cached, so an invalidation made by
	// a concurrent write cannot be overwritten with an older document.
	unlock := s.locks.Lock(listID)
	defer unlock()

	var cached model.ListDocument
	if s.cache.GetList(cache.KindRemote, listID, &cached) {
		s.logger.Debug("list document served from cache", zap.String("list_id", listID))
		return &cached, true
	}

	doc, err := s.backend.Get(ctx, listID)
	if err != nil {
		s.fail(op, started, err, zap.String("list_id", listID))
		return nil, false
	}

	if err := s.cache.PutList(cache.KindRemote, listID, doc); err != nil {
		s.logger.Warn("failed to cache list document", zap.String("list_id", listID), zap.Error(err))
	}
	s.succeed(op, started, zap.String("list_id", listID))
	return doc, true
}

// invalidate evicts a list once no cache fill for it is in flight.
func (s *Service) invalidate(listID string) {
	unlock := s.locks.Lock(listID)
	defer unlock()
	s.cache.InvalidateList(listID)
}

func (s *Service) authenticated(op string) bool {
	if state := s.session.State(); state != auth.StateAuthenticated {
		s.reject(op, errNotAuthenticated, zap.String("session_state", string(state)))
		return false
	}
	return true
}

func (s *Service) reject(op string, err error, fields ...zap.Field) {
	s.metrics.observe(op, resultRejected, time.Time{})
	s.logger.Warn("list operation rejected", append(fields, zap.String("operation", op), zap.Error(err))...)
}

func (s *Service) fail(op string, started time.Time, err error, fields ...zap.Field) {
	s.metrics.observe(op, resultFailure, started)
	s.logger.Error("list operation failed", append(fields, zap.String("operation", op), zap.Error(err))...)
}

func (s *Service) succeed(op string, started time.Time, fields ...zap.Field) {
	s.metrics.observe(op, resultSuccess, started)
	s.logger.Info("list operation completed", append(fields, zap.String("operation", op))...)
}
