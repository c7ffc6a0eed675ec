// Package lists holds the in-memory state of the user's shopping lists and
// reconciles local mutations with the remote backend.
package lists

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/shoplist/internal/model"
)

// Remote is the part of the list service the store depends on.
type Remote interface {
	FetchLists(ctx context.Context) ([]model.ShoppingList, bool)
	GetList(ctx context.Context, listID string) (*model.ListDocument, bool)
	CreateList(ctx context.Context, name, description string) string
	DeleteList(ctx context.Context, listID string) bool
	ReorderLists(ctx context.Context, orderedIDs []string) bool
	// CachedLists returns the summaries kept from the last successful fetch.
	CachedLists() []model.ShoppingList
}

// Options configures a Store.
type Options struct {
	// ReorderRollback restores the previous order when the remote reorder
	// fails. Off by default: the optimistic order is kept.
	ReorderRollback bool
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store is the observable list state. All methods are safe for concurrent use.
type Store struct {
	remote Remote
	opts   Options
	logger *zap.Logger

	mu         sync.RWMutex
	lists      map[string]model.ShoppingList
	loading    int
	processing int
	syncing    int
	pending    map[string]int
	deleting   map[string]bool
	reorderGen uint64
	reordering int

	// epoch counts local creates and deletes. A fetch remembers the epoch it
	// started at so that replace keeps the mutations made while it ran.
	epoch     uint64
	createdAt map[string]uint64
	deletedAt map[string]uint64

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int

	wg sync.WaitGroup
}

// New creates an empty, idle store.
func New(remote Remote, opts Options, logger *zap.Logger) *Store {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		remote:  remote,
		opts:    opts,
		logger:  logger,
		lists:     make(map[string]model.ShoppingList),
		pending:   make(map[string]int),
		deleting:  make(map[string]bool),
		createdAt: make(map[string]uint64),
		deletedAt: make(map[string]uint64),
		subs:      make(map[int]chan struct{}),
	}
}

// State returns the current data state. Overlapping mutations share one
// PROCESSING window that ends when the last of them finishes.
func (s *Store) State() model.DataState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Store) stateLocked() model.DataState {
	switch {
	case s.processing > 0:
		return model.DataStateProcessing
	case s.loading > 0:
		return model.DataStateLoading
	default:
		return model.DataStateIdle
	}
}

// IsSyncing reports whether a background synchronization is running.
func (s *Store) IsSyncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.syncing > 0
}

// Lists returns a snapshot of all lists in display order.
func (s *Store) Lists() []model.ShoppingList {
	s.mu.RLock()
	out := make([]model.ShoppingList, 0, len(s.lists))
	for _, l := range s.lists {
		out = append(out, l.Clone())
	}
	s.mu.RUnlock()

	model.SortLists(out)
	return out
}

// Get returns a snapshot of one list.
func (s *Store) Get(listID string) (model.ShoppingList, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[listID]
	if !ok {
		return model.ShoppingList{}, false
	}
	return l.Clone(), true
}

// fetchMark records the mutation counters at the start of a fetch.
type fetchMark struct {
	epoch      uint64
	reorderGen uint64
}

func (s *Store) markLocked() fetchMark {
	return fetchMark{epoch: s.epoch, reorderGen: s.reorderGen}
}

// Load replaces the local state with the remote lists. When the fetch fails
// and nothing is loaded yet, the cached summaries of the last successful
// fetch are shown instead; Load still reports false.
func (s *Store) Load(ctx context.Context) bool {
	var mark fetchMark
	s.update(func() {
		s.loading++
		mark = s.markLocked()
	})
	defer s.update(func() { s.loading-- })

	lists, ok := s.remote.FetchLists(ctx)
	if !ok {
		s.logger.Warn("failed to load lists")
		s.restoreCached()
		return false
	}

	s.replace(lists, mark)
	s.logger.Info("lists loaded", zap.Int("count", len(lists)))
	return true
}

// Sync refreshes the local state in the background, e.g. after a remote
// change notification. The data state is untouched; IsSyncing is set instead.
func (s *Store) Sync(ctx context.Context) bool {
	var mark fetchMark
	s.update(func() {
		s.syncing++
		mark = s.markLocked()
	})
	defer s.update(func() { s.syncing-- })

	lists, ok := s.remote.FetchLists(ctx)
	if !ok {
		s.logger.Warn("background sync failed")
		return false
	}

	s.replace(lists, mark)
	s.logger.Debug("lists synchronized", zap.Int("count", len(lists)))
	return true
}

// CreateList creates a list remotely and inserts a minimal local record on
// success. It returns the new ID, or "" on failure.
func (s *Store) CreateList(ctx context.Context, name, description string) string {
	s.beginProcessing()
	defer s.endProcessing()

	id := s.remote.CreateList(ctx, name, description)
	if id == "" {
		return ""
	}

	s.update(func() {
		s.lists[id] = model.ShoppingList{
			ID:          id,
			Name:        strings.TrimSpace(name),
			Description: strings.TrimSpace(description),
			UpdatedAt:   s.opts.Now(),
		}
		s.epoch++
		s.createdAt[id] = s.epoch
	})
	s.logger.Info("list created", zap.String("list_id", id))
	return id
}

// DeleteList deletes a known list. Unknown IDs, lists with bridge operations
// in flight and remote failures leave the state unchanged and return false.
func (s *Store) DeleteList(ctx context.Context, listID string) bool {
	s.mu.Lock()
	_, known := s.lists[listID]
	busy := s.pending[listID] > 0 || s.deleting[listID]
	if known && !busy {
		// Track is refused from here until the remote call returns.
		s.deleting[listID] = true
		s.processing++
	}
	s.mu.Unlock()

	if !known {
		s.logger.Warn("delete of unknown list", zap.String("list_id", listID))
		return false
	}
	if busy {
		s.logger.Warn("delete refused while the list is in use", zap.String("list_id", listID))
		return false
	}
	s.notify()
	defer s.endProcessing()

	ok := s.remote.DeleteList(ctx, listID)
	s.update(func() {
		delete(s.deleting, listID)
		if !ok {
			return
		}
		delete(s.lists, listID)
		delete(s.createdAt, listID)
		s.epoch++
		s.deletedAt[listID] = s.epoch
	})
	if !ok {
		return false
	}
	s.logger.Info("list deleted", zap.String("list_id", listID))
	return true
}

// ReorderLists applies orderedIDs locally at once and persists it in the
// background. orderedIDs must name every known list exactly once. Use Wait to
// join the background persistence.
func (s *Store) ReorderLists(ctx context.Context, orderedIDs []string) bool {
	s.mu.Lock()
	if !s.validOrderLocked(orderedIDs) {
		s.mu.Unlock()
		s.logger.Warn("invalid list order", zap.Strings("list_ids", orderedIDs))
		return false
	}

	previous := make(map[string]*int, len(orderedIDs))
	for position, id := range orderedIDs {
		l := s.lists[id]
		previous[id] = l.Order
		l.Order = model.IntPtr(position)
		s.lists[id] = l
	}
	s.reorderGen++
	gen := s.reorderGen
	s.syncing++
	s.reordering++
	s.mu.Unlock()
	s.notify()

	ids := append([]string(nil), orderedIDs...)
	bg := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.update(func() {
			s.syncing--
			s.reordering--
		})

		if s.remote.ReorderLists(bg, ids) {
			return
		}
		if !s.opts.ReorderRollback {
			s.logger.Warn("remote reorder failed, keeping local order")
			return
		}
		s.update(func() {
			if s.reorderGen != gen {
				return
			}
			for id, order := range previous {
				if l, ok := s.lists[id]; ok {
					l.Order = order
					s.lists[id] = l
				}
			}
		})
		s.logger.Warn("remote reorder failed, previous order restored")
	}()

	return true
}

// Wait blocks until background reorders have finished.
func (s *Store) Wait() {
	s.wg.Wait()
}

// Refresh patches the counts of one list from its remote document.
func (s *Store) Refresh(ctx context.Context, listID string) bool {
	doc, ok := s.remote.GetList(ctx, listID)
	if !ok {
		return false
	}

	patched := false
	s.update(func() {
		l, exists := s.lists[listID]
		if !exists {
			return
		}
		l.ItemCount = model.IntPtr(len(doc.Items))
		if doc.CompletedCount != nil {
			l.CompletedCount = model.IntPtr(*doc.CompletedCount)
		}
		if doc.UpdatedAt.After(l.UpdatedAt) {
			l.UpdatedAt = doc.UpdatedAt
		}
		s.lists[listID] = l
		patched = true
	})
	return patched
}

// Track marks an operation on listID as in flight until release is called.
// DeleteList refuses lists with tracked operations, and Track refuses lists
// being deleted: ok is false and release is a no-op.
func (s *Store) Track(listID string) (release func(), ok bool) {
	s.mu.Lock()
	if s.deleting[listID] {
		s.mu.Unlock()
		return func() {}, false
	}
	s.pending[listID]++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.pending[listID]--
			if s.pending[listID] <= 0 {
				delete(s.pending, listID)
			}
			s.mu.Unlock()
		})
	}, true
}

// Subscribe returns a channel that receives a signal after every state
// change. Signals are coalesced; subscribers re-read the state. Call cancel to
// unsubscribe.
func (s *Store) Subscribe() (changes <-chan struct{}, cancel func()) {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// update applies fn under the write lock and notifies subscribers.
func (s *Store) update(fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
	s.notify()
}

func (s *Store) beginProcessing() {
	s.update(func() { s.processing++ })
}

func (s *Store) endProcessing() {
	s.update(func() { s.processing-- })
}

// replace swaps in a fetched snapshot. Creates and deletes made after mark
// are kept, and while a reorder is newer than the snapshot or still
// persisting the local order wins.
func (s *Store) replace(lists []model.ShoppingList, mark fetchMark) {
	fresh := make(map[string]model.ShoppingList, len(lists))
	for _, l := range lists {
		fresh[l.ID] = l.Clone()
	}

	s.update(func() {
		for id, epoch := range s.createdAt {
			if _, fetched := fresh[id]; fetched || epoch <= mark.epoch {
				delete(s.createdAt, id)
				continue
			}
			if l, ok := s.lists[id]; ok {
				fresh[id] = l
			}
		}
		for id, epoch := range s.deletedAt {
			if epoch <= mark.epoch {
				delete(s.deletedAt, id)
				continue
			}
			delete(fresh, id)
		}
		if s.reorderGen != mark.reorderGen || s.reordering > 0 {
			for id, l := range fresh {
				if local, ok := s.lists[id]; ok {
					l.Order = local.Order
					fresh[id] = l
				}
			}
		}
		s.lists = fresh
	})
}

// restoreCached fills an empty store from the cached summaries.
func (s *Store) restoreCached() {
	cached := s.remote.CachedLists()
	if len(cached) == 0 {
		return
	}

	restored := false
	s.update(func() {
		if len(s.lists) > 0 {
			return
		}
		for _, l := range cached {
			s.lists[l.ID] = l.Clone()
		}
		restored = true
	})
	if restored {
		s.logger.Info("showing cached lists", zap.Int("count", len(cached)))
	}
}

func (s *Store) validOrderLocked(orderedIDs []string) bool {
	if len(orderedIDs) == 0 || len(orderedIDs) != len(s.lists) {
		return false
	}
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if _, ok := s.lists[id]; !ok || seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}
