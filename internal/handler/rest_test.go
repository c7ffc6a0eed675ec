package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/shoplist/internal/model"
	"github.com/vyrodovalexey/shoplist/internal/store"
)

// recordingPublisher captures broadcast events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []model.ListEvent
}

func (p *recordingPublisher) Broadcast(event model.ListEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// failingStore fails every operation with err.
type failingStore struct {
	store.MemoryStore
	err error
}

func (f *failingStore) List(context.Context) ([]model.ShoppingList, error) { return nil, f.err }

func (f *failingStore) Create(context.Context, *model.CreateListRequest) (*model.ShoppingList, error) {
	return nil, f.err
}

type testEnv struct {
	router *mux.Router
	store  *store.MemoryStore
	events *recordingPublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		router: mux.NewRouter(),
		store:  store.NewMemoryStore(),
		events: &recordingPublisher{},
	}
	NewRESTHandler(env.store, env.events, zap.NewNop()).RegisterRoutes(env.router)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) createList(t *testing.T, name string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/v1/lists", model.CreateListRequest{Name: name})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create %s: status = %d, body = %s", name, rr.Code, rr.Body.String())
	}
	var resp model.APIResponse[model.ShoppingList]
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	return resp.Data.ID
}

func TestRESTHandler_HealthCheck(t *testing.T) {
	// Arrange
	env := newTestEnv(t)

	// Act
	rr := env.do(t, http.MethodGet, "/health", nil)

	// Assert
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp model.APIResponse[HealthResponse]
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Status != "healthy" || resp.Data.Version != Version {
		t.Errorf("unexpected health %+v", resp.Data)
	}
}

func TestRESTHandler_CreateList(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{name: "valid", body: model.CreateListRequest{Name: "  Dinner  ", Description: "Tonight"}, wantStatus: http.StatusCreated},
		{name: "blank name", body: model.CreateListRequest{Name: "   "}, wantStatus: http.StatusBadRequest},
		{name: "malformed json", body: "{", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			env := newTestEnv(t)

			// Act
			rr := env.do(t, http.MethodPost, "/api/v1/lists", tt.body)

			// Assert
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
			if tt.wantStatus != http.StatusCreated {
				if len(env.events.types()) != 0 {
					t.Error("failed create must not publish events")
				}
				return
			}
			var resp model.APIResponse[model.ShoppingList]
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Data.Name != "Dinner" || resp.Data.ID == "" {
				t.Errorf("created list = %+v", resp.Data)
			}
			if got := env.events.types(); len(got) != 1 || got[0] != model.EventListCreated {
				t.Errorf("events = %v", got)
			}
		})
	}
}

func TestRESTHandler_ListLists(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	id := env.createList(t, "Weekly")

	// Act
	rr := env.do(t, http.MethodGet, "/api/v1/lists", nil)

	// Assert
	var resp model.APIResponse[[]model.ShoppingList]
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != id {
		t.Errorf("lists = %+v", resp.Data)
	}
}

func TestRESTHandler_DeleteList(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	id := env.createList(t, "Weekly")

	// Act
	first := env.do(t, http.MethodDelete, "/api/v1/lists/"+id, nil)
	second := env.do(t, http.MethodDelete, "/api/v1/lists/"+id, nil)

	// Assert
	if first.Code != http.StatusNoContent {
		t.Errorf("first delete status = %d, want %d", first.Code, http.StatusNoContent)
	}
	if second.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", second.Code, http.StatusNotFound)
	}
}

func TestRESTHandler_AddItemAndDocument(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	id := env.createList(t, "Dinner")

	// Act
	for i, name := range []string{"pasta", "sauce"} {
		rr := env.do(t, http.MethodPost, "/api/v1/lists/"+id+"/items", model.AddItemRequest{
			ItemName:     name,
			ClientItemID: "item_" + name,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("add %d: status = %d, body = %s", i, rr.Code, rr.Body.String())
		}
	}
	rr := env.do(t, http.MethodGet, "/shopping-list-"+id+".json", nil)

	// Assert
	if rr.Code != http.StatusOK {
		t.Fatalf("document status = %d", rr.Code)
	}
	var doc model.ListDocument
	if err := json.NewDecoder(rr.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.ItemCount == nil || *doc.ItemCount != 2 {
		t.Errorf("itemCount = %v, want 2", doc.ItemCount)
	}
	if doc.Items[0].ItemName != "pasta" || doc.Items[1].ItemName != "sauce" {
		t.Errorf("items out of order: %+v", doc.Items)
	}
}

func TestRESTHandler_AddItemErrors(t *testing.T) {
	env := newTestEnv(t)
	id := env.createList(t, "Dinner")

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{
			name:       "unknown list",
			path:       "/api/v1/lists/missing/items",
			body:       model.AddItemRequest{ItemName: "milk", ClientItemID: "c1"},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "missing client id",
			path:       "/api/v1/lists/" + id + "/items",
			body:       model.AddItemRequest{ItemName: "milk"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed body",
			path:       "/api/v1/lists/" + id + "/items",
			body:       "[",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, tt.path, tt.body)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}

func TestRESTHandler_RemoveItem(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	id := env.createList(t, "Dinner")
	env.do(t, http.MethodPost, "/api/v1/lists/"+id+"/items", model.AddItemRequest{ItemName: "flour", ClientItemID: "c1"})

	// Act
	removed := env.do(t, http.MethodDelete, "/api/v1/lists/"+id+"/items/c1", nil)
	again := env.do(t, http.MethodDelete, "/api/v1/lists/"+id+"/items/c1", nil)

	// Assert
	if removed.Code != http.StatusNoContent {
		t.Errorf("remove status = %d", removed.Code)
	}
	if again.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want %d", again.Code, http.StatusNotFound)
	}
}

func TestRESTHandler_ReorderLists(t *testing.T) {
	// Arrange
	env := newTestEnv(t)
	a := env.createList(t, "a")
	b := env.createList(t, "b")
	c := env.createList(t, "c")

	// Act
	rr := env.do(t, http.MethodPut, "/api/v1/lists/order", model.ReorderRequest{ListIDs: []string{b, a, c}})
	partial := env.do(t, http.MethodPut, "/api/v1/lists/order", model.ReorderRequest{ListIDs: []string{a}})
	list := env.do(t, http.MethodGet, "/api/v1/lists", nil)

	// Assert
	if rr.Code != http.StatusNoContent {
		t.Fatalf("reorder status = %d, body = %s", rr.Code, rr.Body.String())
	}
	if partial.Code != http.StatusBadRequest {
		t.Errorf("partial reorder status = %d, want %d", partial.Code, http.StatusBadRequest)
	}
	var resp model.APIResponse[[]model.ShoppingList]
	if err := json.NewDecoder(list.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{b, a, c}
	for i, l := range resp.Data {
		if l.ID != want[i] {
			t.Errorf("position %d = %s, want %s", i, l.ID, want[i])
		}
	}
}

func TestRESTHandler_StoreFailure(t *testing.T) {
	// Arrange
	router := mux.NewRouter()
	failing := &failingStore{err: errors.New("disk on fire")}
	NewRESTHandler(failing, nil, zap.NewNop()).RegisterRoutes(router)

	tests := []struct {
		method string
		body   string
	}{
		{method: http.MethodGet},
		{method: http.MethodPost, body: `{"name":"Dinner"}`},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			// Act
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(tt.method, "/api/v1/lists", bytes.NewBufferString(tt.body)))

			// Assert
			if rr.Code != http.StatusInternalServerError {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
			}
			var resp model.ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Message != "internal server error" {
				t.Errorf("message = %q", resp.Message)
			}
		})
	}
}
