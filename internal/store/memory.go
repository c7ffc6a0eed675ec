package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vyrodovalexey/shoplist/internal/model"
)

// MemoryStore implements Store interface with in-memory storage.
type MemoryStore struct {
	mu    sync.RWMutex
	lists map[string]*model.ListDocument
	now   func() time.Time
}

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists: make(map[string]*model.ListDocument),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// List returns the summaries of all lists in display order.
func (s *MemoryStore) List(ctx context.Context) ([]model.ShoppingList, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("list lists: %w", ctx.Err())
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	lists := make([]model.ShoppingList, 0, len(s.lists))
	for _, doc := range s.lists {
		lists = append(lists, doc.Summary())
	}
	model.SortLists(lists)

	return lists, nil
}

// Get returns the full document of a list.
func (s *MemoryStore) Get(ctx context.Context, id string) (*model.ListDocument, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get list: %w", ctx.Err())
	default:
	}

	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, exists := s.lists[id]
	if !exists {
		return nil, ErrNotFound
	}

	return doc.Clone(), nil
}

// Create adds a new empty list.
func (s *MemoryStore) Create(ctx context.Context, req *model.CreateListRequest) (*model.ShoppingList, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("create list: %w", ctx.Err())
	default:
	}

	if err := prepareCreate(req); err != nil {
		return nil, fmt.Errorf("create list: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc := newDocument(req, s.now())
	s.lists[doc.ID] = doc

	summary := doc.Summary()
	return &summary, nil
}

// Delete removes a list by its ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("delete list: %w", ctx.Err())
	default:
	}

	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lists[id]; !exists {
		return ErrNotFound
	}

	delete(s.lists, id)

	return nil
}

// AddItem appends an item to a list, deduplicating by client item ID.
func (s *MemoryStore) AddItem(ctx context.Context, req *model.AddItemRequest) (*model.ShoppingListItem, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("add item: %w", ctx.Err())
	default:
	}

	if err := prepareAdd(req); err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.lists[req.ListID]
	if !exists {
		return nil, ErrNotFound
	}

	item, _ := applyAddItem(doc, req, s.now())

	return &item, nil
}

// RemoveItem deletes an item from a list.
func (s *MemoryStore) RemoveItem(ctx context.Context, listID, clientItemID string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("remove item: %w", ctx.Err())
	default:
	}

	if listID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.lists[listID]
	if !exists {
		return ErrNotFound
	}

	return applyRemoveItem(doc, clientItemID, s.now())
}

// Reorder assigns display positions to every list.
func (s *MemoryStore) Reorder(ctx context.Context, orderedIDs []string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("reorder lists: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]bool, len(s.lists))
	for id := range s.lists {
		known[id] = true
	}
	if err := validateOrder(known, orderedIDs); err != nil {
		return err
	}

	now := s.now()
	for position, id := range orderedIDs {
		doc := s.lists[id]
		doc.Order = model.IntPtr(position)
		touch(doc, now)
	}

	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
