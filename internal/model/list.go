// Package model defines data structures used throughout the application.
package model

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Validation errors for lists and items.
var (
	ErrEmptyName             = errors.New("name cannot be empty")
	ErrNameTooLong           = errors.New("name cannot exceed 255 characters")
	ErrDescriptionLimit      = errors.New("description cannot exceed 1000 characters")
	ErrEmptyListID           = errors.New("list ID cannot be empty")
	ErrEmptyItemName         = errors.New("item name cannot be empty")
	ErrEmptyClientItemID     = errors.New("client item ID cannot be empty")
	ErrNegativeQuantity      = errors.New("quantity cannot be negative")
	ErrCompletedExceedsItems = errors.New("completed count cannot exceed item count")
)

// Validation constants.
const (
	MaxNameLength        = 255
	MaxDescriptionLength = 1000
	DefaultQuantity      = 1
)

// ShoppingList is the summary view of a named list.
// Order, ItemCount and CompletedCount are optional; nil means absent.
type ShoppingList struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Order          *int      `json:"order,omitempty"`
	ItemCount      *int      `json:"itemCount,omitempty"`
	CompletedCount *int      `json:"completedCount,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Validate checks if the ShoppingList has valid field values.
func (l *ShoppingList) Validate() error {
	if err := validateName(l.Name); err != nil {
		return err
	}

	if len(l.Description) > MaxDescriptionLength {
		return ErrDescriptionLimit
	}

	if l.ItemCount != nil && l.CompletedCount != nil && *l.CompletedCount > *l.ItemCount {
		return ErrCompletedExceedsItems
	}

	return nil
}

// Clone returns a copy that shares no pointers with l.
func (l ShoppingList) Clone() ShoppingList {
	l.Order = cloneInt(l.Order)
	l.ItemCount = cloneInt(l.ItemCount)
	l.CompletedCount = cloneInt(l.CompletedCount)
	return l
}

// ShoppingListItem is a single entry owned by exactly one list.
type ShoppingListItem struct {
	ListID       string    `json:"listId"`
	ClientItemID string    `json:"clientItemId"`
	ItemName     string    `json:"itemName"`
	Quantity     float64   `json:"quantity"`
	Unit         string    `json:"unit,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Completed    bool      `json:"completed"`
	AddedAt      time.Time `json:"addedAt"`
}

// ListDocument is the persisted remote representation of one list,
// addressed by DocumentPath.
type ListDocument struct {
	ShoppingList
	Items []ShoppingListItem `json:"items"`
}

// Recount recomputes the denormalized item counters from Items.
func (d *ListDocument) Recount() {
	total := len(d.Items)
	completed := 0
	for _, item := range d.Items {
		if item.Completed {
			completed++
		}
	}
	d.ItemCount = &total
	d.CompletedCount = &completed
}

// FindItem returns the index of the item with the given client ID, or -1.
func (d *ListDocument) FindItem(clientItemID string) int {
	for i := range d.Items {
		if d.Items[i].ClientItemID == clientItemID {
			return i
		}
	}
	return -1
}

// Summary returns a detached copy of the list header.
func (d *ListDocument) Summary() ShoppingList {
	return d.ShoppingList.Clone()
}

// Clone returns a deep copy of the document.
func (d *ListDocument) Clone() *ListDocument {
	dup := &ListDocument{ShoppingList: d.ShoppingList.Clone()}
	if d.Items != nil {
		dup.Items = make([]ShoppingListItem, len(d.Items))
		copy(dup.Items, d.Items)
	}
	return dup
}

// DocumentPath returns the remote resource path of a list document.
func DocumentPath(listID string) string {
	return "/shopping-list-" + listID + ".json"
}

// CreateListRequest is the input for creating a list.
type CreateListRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Normalize trims surrounding whitespace from the request fields.
func (r *CreateListRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
}

// Validate checks the request after normalization.
func (r *CreateListRequest) Validate() error {
	if err := validateName(r.Name); err != nil {
		return err
	}
	if len(r.Description) > MaxDescriptionLength {
		return ErrDescriptionLimit
	}
	return nil
}

// AddItemRequest is the input for appending an item to a list.
type AddItemRequest struct {
	ListID       string  `json:"listId"`
	ItemName     string  `json:"itemName"`
	ClientItemID string  `json:"clientItemId"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit,omitempty"`
	Notes        string  `json:"notes,omitempty"`
}

// Normalize trims text fields and applies the default quantity.
func (r *AddItemRequest) Normalize() {
	r.ListID = strings.TrimSpace(r.ListID)
	r.ItemName = strings.TrimSpace(r.ItemName)
	r.ClientItemID = strings.TrimSpace(r.ClientItemID)
	r.Unit = strings.TrimSpace(r.Unit)
	r.Notes = strings.TrimSpace(r.Notes)
	if r.Quantity == 0 {
		r.Quantity = DefaultQuantity
	}
}

// Validate checks the request after normalization.
func (r *AddItemRequest) Validate() error {
	if r.ListID == "" {
		return ErrEmptyListID
	}
	if r.ItemName == "" {
		return ErrEmptyItemName
	}
	if len(r.ItemName) > MaxNameLength {
		return ErrNameTooLong
	}
	if r.ClientItemID == "" {
		return ErrEmptyClientItemID
	}
	if r.Quantity < 0 {
		return ErrNegativeQuantity
	}
	return nil
}

// ToItem builds the stored item for this request.
func (r *AddItemRequest) ToItem(addedAt time.Time) ShoppingListItem {
	return ShoppingListItem{
		ListID:       r.ListID,
		ClientItemID: r.ClientItemID,
		ItemName:     r.ItemName,
		Quantity:     r.Quantity,
		Unit:         r.Unit,
		Notes:        r.Notes,
		AddedAt:      addedAt,
	}
}

// ReorderRequest carries the full desired display order of lists.
type ReorderRequest struct {
	ListIDs []string `json:"listIds"`
}

// SortLists orders lists for display. Lists with an Order come first, by
// Order ascending; the rest follow, most recently updated first. Ties fall
// back to ID so the result does not depend on the input order.
func SortLists(lists []ShoppingList) {
	sort.SliceStable(lists, func(i, j int) bool {
		a, b := lists[i], lists[j]
		if (a.Order == nil) != (b.Order == nil) {
			return a.Order != nil
		}
		if a.Order != nil {
			if *a.Order != *b.Order {
				return *a.Order < *b.Order
			}
			return a.ID < b.ID
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
