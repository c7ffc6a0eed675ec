package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/shoplist/internal/model"
)

// newDocument builds an empty list document for req.
func newDocument(req *model.CreateListRequest, now time.Time) *model.ListDocument {
	doc := &model.ListDocument{
		ShoppingList: model.ShoppingList{
			ID:          uuid.New().String(),
			Name:        req.Name,
			Description: req.Description,
			UpdatedAt:   now,
		},
		Items: []model.ShoppingListItem{},
	}
	doc.Recount()
	return doc
}

// touch advances UpdatedAt without ever moving it backwards.
func touch(doc *model.ListDocument, now time.Time) {
	if now.After(doc.UpdatedAt) {
		doc.UpdatedAt = now
	}
}

// applyAddItem appends the requested item unless its client ID is already
// present. It reports whether the document changed.
func applyAddItem(doc *model.ListDocument, req *model.AddItemRequest, now time.Time) (model.ShoppingListItem, bool) {
	if idx := doc.FindItem(req.ClientItemID); idx >= 0 {
		return doc.Items[idx], false
	}

	item := req.ToItem(now)
	doc.Items = append(doc.Items, item)
	doc.Recount()
	touch(doc, now)
	return item, true
}

func applyRemoveItem(doc *model.ListDocument, clientItemID string, now time.Time) error {
	idx := doc.FindItem(clientItemID)
	if idx < 0 {
		return ErrItemNotFound
	}

	doc.Items = append(doc.Items[:idx], doc.Items[idx+1:]...)
	doc.Recount()
	touch(doc, now)
	return nil
}

// validateOrder checks that ordered is a permutation of known.
func validateOrder(known map[string]bool, ordered []string) error {
	if len(ordered) != len(known) {
		return fmt.Errorf("%w: got %d ids for %d lists", ErrIncompleteOrder, len(ordered), len(known))
	}

	seen := make(map[string]bool, len(ordered))
	for _, id := range ordered {
		if !known[id] {
			return fmt.Errorf("%w: unknown id %q", ErrIncompleteOrder, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate id %q", ErrIncompleteOrder, id)
		}
		seen[id] = true
	}
	return nil
}

func prepareCreate(req *model.CreateListRequest) error {
	if req == nil {
		return ErrNilRequest
	}
	req.Normalize()
	return req.Validate()
}

func prepareAdd(req *model.AddItemRequest) error {
	if req == nil {
		return ErrNilRequest
	}
	req.Normalize()
	return req.Validate()
}
