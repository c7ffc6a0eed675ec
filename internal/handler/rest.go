package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/shoplist/internal/model"
	"github.com/vyrodovalexey/shoplist/internal/store"
)

// Version is the application version.
const Version = "1.0.0"

// RESTHandler serves the list API backed by a Store.
type RESTHandler struct {
	store  store.Store
	events EventPublisher
	logger *zap.Logger
}

// NewRESTHandler creates a new RESTHandler. A nil publisher disables change
// events.
func NewRESTHandler(s store.Store, events EventPublisher, logger *zap.Logger) *RESTHandler {
	if events == nil {
		events = noopPublisher{}
	}
	return &RESTHandler{
		store:  s,
		events: events,
		logger: logger,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *RESTHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/lists", h.ListLists).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/lists", h.CreateList).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/lists/order", h.ReorderLists).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/lists/{id}", h.GetList).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/lists/{id}", h.DeleteList).Methods(http.MethodDelete)
	router.HandleFunc("/api/v1/lists/{id}/items", h.AddItem).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/lists/{id}/items/{clientItemId}", h.RemoveItem).Methods(http.MethodDelete)
	router.HandleFunc("/shopping-list-{id}.json", h.GetDocument).Methods(http.MethodGet)
}

// HealthCheck handles GET /health requests.
func (h *RESTHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(HealthResponse{
		Status:  "healthy",
		Version: Version,
	}))
}

// ListLists handles GET /api/v1/lists requests.
func (h *RESTHandler) ListLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.store.List(r.Context())
	if err != nil {
		h.handleStoreError(w, err, "list lists")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(lists))
}

// GetList handles GET /api/v1/lists/{id} requests.
func (h *RESTHandler) GetList(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleStoreError(w, err, "get list")
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(doc))
}

// GetDocument handles GET /shopping-list-{id}.json requests. The document is
// served bare, the way it is addressed in the client cache.
func (h *RESTHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.handleStoreError(w, err, "get document")
		return
	}

	h.writeJSON(w, http.StatusOK, doc)
}

// CreateList handles POST /api/v1/lists requests.
func (h *RESTHandler) CreateList(w http.ResponseWriter, r *http.Request) {
	var req model.CreateListRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.store.Create(r.Context(), &req)
	if err != nil {
		h.handleStoreError(w, err, "create list")
		return
	}

	h.events.Broadcast(model.NewListEvent(model.EventListCreated, list.ID))
	h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(list))
}

// DeleteList handles DELETE /api/v1/lists/{id} requests.
func (h *RESTHandler) DeleteList(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.store.Delete(r.Context(), id); err != nil {
		h.handleStoreError(w, err, "delete list")
		return
	}

	h.events.Broadcast(model.NewListEvent(model.EventListDeleted, id))
	h.writeJSON(w, http.StatusNoContent, nil)
}

// ReorderLists handles PUT /api/v1/lists/order requests.
func (h *RESTHandler) ReorderLists(w http.ResponseWriter, r *http.Request) {
	var req model.ReorderRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.store.Reorder(r.Context(), req.ListIDs); err != nil {
		h.handleStoreError(w, err, "reorder lists")
		return
	}

	h.events.Broadcast(model.NewListEvent(model.EventListsReordered, ""))
	h.writeJSON(w, http.StatusNoContent, nil)
}

// AddItem handles POST /api/v1/lists/{id}/items requests.
func (h *RESTHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req model.AddItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.ListID = mux.Vars(r)["id"]
	req.Normalize()
	if err := req.Validate(); err != nil {
		h.logger.Warn("validation failed", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.store.AddItem(r.Context(), &req)
	if err != nil {
		h.handleStoreError(w, err, "add item")
		return
	}

	h.events.Broadcast(model.NewListEvent(model.EventItemAdded, req.ListID))
	h.writeJSON(w, http.StatusCreated, model.NewSuccessResponse(item))
}

// RemoveItem handles DELETE /api/v1/lists/{id}/items/{clientItemId} requests.
func (h *RESTHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	listID := vars["id"]

	if err := h.store.RemoveItem(r.Context(), listID, vars["clientItemId"]); err != nil {
		h.handleStoreError(w, err, "remove item")
		return
	}

	h.events.Broadcast(model.NewListEvent(model.EventItemRemoved, listID))
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *RESTHandler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		h.logger.Warn("invalid request body", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// handleStoreError maps store errors onto HTTP responses.
func (h *RESTHandler) handleStoreError(w http.ResponseWriter, err error, operation string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "list not found")
	case errors.Is(err, store.ErrItemNotFound):
		h.writeError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, store.ErrInvalidID):
		h.writeError(w, http.StatusBadRequest, "invalid list ID")
	case errors.Is(err, store.ErrIncompleteOrder):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("store operation failed", zap.String("operation", operation), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *RESTHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *RESTHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, model.ErrorResponse{
		Code:    status,
		Message: message,
	})
}
