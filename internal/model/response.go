package model

import "time"

// DataState describes what the list store as a whole is doing.
type DataState string

// Data states.
const (
	DataStateIdle       DataState = "idle"
	DataStateLoading    DataState = "loading"
	DataStateProcessing DataState = "processing"
)

// APIResponse is a generic wrapper for API responses.
type APIResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSuccessResponse creates a successful API response.
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error API response.
func NewErrorResponse[T any](errMsg string) APIResponse[T] {
	return APIResponse[T]{
		Success: false,
		Error:   errMsg,
	}
}

// ErrorResponse represents an error response structure.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ListEvent is pushed over the change feed whenever a list changes remotely.
type ListEvent struct {
	Type      string    `json:"type"`
	ListID    string    `json:"listId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// List event types.
const (
	EventListCreated    = "list_created"
	EventListDeleted    = "list_deleted"
	EventListsReordered = "lists_reordered"
	EventItemAdded      = "item_added"
	EventItemRemoved    = "item_removed"
)

// NewListEvent creates a change event stamped with the current time.
func NewListEvent(eventType, listID string) ListEvent {
	return ListEvent{
		Type:      eventType,
		ListID:    listID,
		Timestamp: time.Now().UTC(),
	}
}
