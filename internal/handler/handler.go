// Package handler provides the HTTP and websocket handlers of the list backend.
package handler

import "github.com/vyrodovalexey/shoplist/internal/model"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// EventPublisher receives list change events produced by the REST handlers.
type EventPublisher interface {
	Broadcast(event model.ListEvent)
}

type noopPublisher struct{}

func (noopPublisher) Broadcast(model.ListEvent) {}
