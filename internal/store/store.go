// Package store provides storage for remote shopping-list documents.
package store

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/shoplist/internal/model"
)

// Store errors.
var (
	ErrNotFound        = errors.New("list not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrInvalidID       = errors.New("invalid list ID")
	ErrNilRequest      = errors.New("request cannot be nil")
	ErrIncompleteOrder = errors.New("order must list every known list exactly once")
)

// Store defines the persistence contract for list documents. Every list is
// kept as one document; summaries are derived from it.
type Store interface {
	// List returns the summaries of all lists in display order.
	List(ctx context.Context) ([]model.ShoppingList, error)

	// Get returns the full document of a list.
	Get(ctx context.Context, id string) (*model.ListDocument, error)

	// Create adds a new empty list and returns its summary with generated ID.
	Create(ctx context.Context, req *model.CreateListRequest) (*model.ShoppingList, error)

	// Delete removes a list. Unknown IDs yield ErrNotFound.
	Delete(ctx context.Context, id string) error

	// AddItem appends an item. Adding a ClientItemID that is already present
	// returns the stored item without inserting a duplicate.
	AddItem(ctx context.Context, req *model.AddItemRequest) (*model.ShoppingListItem, error)

	// RemoveItem deletes the item with the given client ID from a list.
	RemoveItem(ctx context.Context, listID, clientItemID string) error

	// Reorder assigns Order = position for the full ordered sequence of IDs.
	Reorder(ctx context.Context, orderedIDs []string) error

	// Close releases resources held by the storage backend.
	Close() error
}
