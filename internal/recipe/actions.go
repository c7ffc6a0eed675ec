// Package recipe turns recipe ingredients into shopping list items.
package recipe

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/shoplist/internal/idgen"
	"github.com/vyrodovalexey/shoplist/internal/keylock"
	"github.com/vyrodovalexey/shoplist/internal/model"
)

// Policy decides what happens to the items already added when a batch fails.
type Policy string

// Partial failure policies.
const (
	// PolicyLeave keeps items added before the failure.
	PolicyLeave Policy = "leave"
	// PolicyCompensate removes them again, newest first.
	PolicyCompensate Policy = "compensate"
)

// ParsePolicy maps a configuration value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyLeave:
		return PolicyLeave, nil
	case PolicyCompensate:
		return p, nil
	default:
		return "", fmt.Errorf("unknown partial failure policy %q", s)
	}
}

// ListService performs the item writes.
type ListService interface {
	AddItemToList(ctx context.Context, req model.AddItemRequest) bool
	RemoveItemFromList(ctx context.Context, listID, clientItemID string) bool
}

// ListStore is the list state the bridge creates lists in and keeps fresh.
type ListStore interface {
	CreateList(ctx context.Context, name, description string) string
	Track(listID string) (release func(), ok bool)
	Refresh(ctx context.Context, listID string) bool
}

// Options configures Actions.
type Options struct {
	Policy Policy
	// NewID mints client item IDs. Defaults to idgen.NewItemID.
	NewID idgen.Generator
}

// Actions adds ingredient batches to lists.
type Actions struct {
	svc    ListService
	lists  ListStore
	policy Policy
	newID  idgen.Generator
	logger *zap.Logger

	batches    *keylock.Map
	processing atomic.Int32
}

// New creates Actions writing through svc and updating lists.
func New(svc ListService, lists ListStore, opts Options, logger *zap.Logger) *Actions {
	if opts.Policy == "" {
		opts.Policy = PolicyLeave
	}
	if opts.NewID == nil {
		opts.NewID = idgen.NewItemID
	}
	return &Actions{
		svc:     svc,
		lists:   lists,
		policy:  opts.Policy,
		newID:   opts.NewID,
		logger:  logger,
		batches: keylock.New(),
	}
}

// IsProcessing reports whether any batch or list creation is running.
func (a *Actions) IsProcessing() bool {
	return a.processing.Load() > 0
}

// AddIngredientsToList adds each ingredient as one item, in order, stopping
// at the first failure. It returns true only if every add succeeded. Batches
// for the same list never interleave.
func (a *Actions) AddIngredientsToList(ctx context.Context, listID string, ingredients []string) bool {
	a.processing.Add(1)
	defer a.processing.Add(-1)

	return a.addBatch(ctx, listID, ingredients)
}

// CreateListWithIngredients creates a list and fills it. The ID is returned
// whenever the list was created; complete is false if any add failed.
func (a *Actions) CreateListWithIngredients(ctx context.Context, name, description string, ingredients []string) (listID string, complete bool) {
	a.processing.Add(1)
	defer a.processing.Add(-1)

	listID = a.lists.CreateList(ctx, name, description)
	if listID == "" {
		a.logger.Warn("list creation failed, no ingredients added", zap.String("name", name))
		return "", false
	}

	complete = a.addBatch(ctx, listID, ingredients)
	if !complete {
		a.logger.Warn("list created with missing ingredients", zap.String("list_id", listID))
	}
	return listID, complete
}

// AddRecipeToList adds the recipe's ingredients scaled to servings. A
// non-positive servings value keeps the recipe's own amounts.
func (a *Actions) AddRecipeToList(ctx context.Context, listID string, r Recipe, servings int) bool {
	return a.AddIngredientsToList(ctx, listID, r.ScaledIngredients(servings))
}

func (a *Actions) addBatch(ctx context.Context, listID string, ingredients []string) bool {
	release, ok := a.lists.Track(listID)
	if !ok {
		a.logger.Warn("ingredient batch refused, list is being deleted", zap.String("list_id", listID))
		return false
	}
	defer release()

	unlock := a.batches.Lock(listID)
	defer unlock()

	added := make([]string, 0, len(ingredients))
	for i, ingredient := range ingredients {
		req := model.AddItemRequest{
			ListID:       listID,
			ItemName:     ingredient,
			ClientItemID: a.newID(),
			Quantity:     model.DefaultQuantity,
		}
		if !a.svc.AddItemToList(ctx, req) {
			a.logger.Warn("ingredient batch aborted",
				zap.String("list_id", listID),
				zap.String("ingredient", ingredient),
				zap.Int("position", i),
				zap.Int("added", len(added)),
				zap.String("policy", string(a.policy)),
			)
			if a.policy == PolicyCompensate {
				a.compensate(ctx, listID, added)
			}
			a.lists.Refresh(ctx, listID)
			return false
		}
		added = append(added, req.ClientItemID)
	}

	if len(ingredients) > 0 {
		a.lists.Refresh(ctx, listID)
	}
	a.logger.Info("ingredients added",
		zap.String("list_id", listID),
		zap.Int("count", len(added)),
	)
	return true
}

func (a *Actions) compensate(ctx context.Context, listID string, added []string) {
	for i := len(added) - 1; i >= 0; i-- {
		if !a.svc.RemoveItemFromList(ctx, listID, added[i]) {
			a.logger.Error("compensation failed, item left on list",
				zap.String("list_id", listID),
				zap.String("client_item_id", added[i]),
			)
		}
	}
}
