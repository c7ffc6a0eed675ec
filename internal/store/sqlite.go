package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vyrodovalexey/shoplist/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS lists (
	id TEXT PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	updated_at INTEGER NOT NULL,
	document TEXT NOT NULL
);
`

// SQLiteStore is a SQLite-backed implementation of Store. Each list is one
// row holding its JSON document, keyed by ID and by document path.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (without initializing) a SQLite store at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Init prepares the schema.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("enable wal: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// List returns the summaries of all lists in display order.
func (s *SQLiteStore) List(ctx context.Context) ([]model.ShoppingList, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT document FROM lists`)
	if err != nil {
		return nil, fmt.Errorf("query lists: %w", err)
	}
	defer rows.Close()

	lists := make([]model.ShoppingList, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		lists = append(lists, doc.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lists: %w", err)
	}

	model.SortLists(lists)
	return lists, nil
}

// Get returns the full document of a list.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.ListDocument, error) {
	if id == "" {
		return nil, ErrInvalidID
	}
	return loadDocument(ctx, s.db, id)
}

// Create adds a new empty list.
func (s *SQLiteStore) Create(ctx context.Context, req *model.CreateListRequest) (*model.ShoppingList, error) {
	if err := prepareCreate(req); err != nil {
		return nil, fmt.Errorf("create list: %w", err)
	}

	doc := newDocument(req, s.now())
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO lists (id, path, updated_at, document)
		VALUES (?, ?, ?, ?)
	`, doc.ID, model.DocumentPath(doc.ID), doc.UpdatedAt.UnixNano(), string(raw))
	if err != nil {
		return nil, fmt.Errorf("insert list: %w", err)
	}

	summary := doc.Summary()
	return &summary, nil
}

// Delete removes a list by its ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM lists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete list: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddItem appends an item to a list, deduplicating by client item ID.
func (s *SQLiteStore) AddItem(ctx context.Context, req *model.AddItemRequest) (*model.ShoppingListItem, error) {
	if err := prepareAdd(req); err != nil {
		return nil, fmt.Errorf("add item: %w", err)
	}

	var item model.ShoppingListItem
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := loadDocument(ctx, tx, req.ListID)
		if err != nil {
			return err
		}
		var changed bool
		item, changed = applyAddItem(doc, req, s.now())
		if !changed {
			return nil
		}
		return saveDocument(ctx, tx, doc)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// RemoveItem deletes an item from a list.
func (s *SQLiteStore) RemoveItem(ctx context.Context, listID, clientItemID string) error {
	if listID == "" {
		return ErrInvalidID
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		doc, err := loadDocument(ctx, tx, listID)
		if err != nil {
			return err
		}
		if err := applyRemoveItem(doc, clientItemID, s.now()); err != nil {
			return err
		}
		return saveDocument(ctx, tx, doc)
	})
}

// Reorder assigns display positions to every list.
func (s *SQLiteStore) Reorder(ctx context.Context, orderedIDs []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM lists`)
		if err != nil {
			return fmt.Errorf("query list ids: %w", err)
		}
		known := make(map[string]bool)
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("scan list id: %w", err)
			}
			known[id] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate list ids: %w", err)
		}

		if err := validateOrder(known, orderedIDs); err != nil {
			return err
		}

		now := s.now()
		for position, id := range orderedIDs {
			doc, err := loadDocument(ctx, tx, id)
			if err != nil {
				return err
			}
			doc.Order = model.IntPtr(position)
			touch(doc, now)
			if err := saveDocument(ctx, tx, doc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadDocument(ctx context.Context, q queryer, id string) (*model.ListDocument, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT document FROM lists WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load list %s: %w", id, err)
	}
	return decodeDocument(raw)
}

func saveDocument(ctx context.Context, tx *sql.Tx, doc *model.ListDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode list %s: %w", doc.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE lists SET updated_at = ?, document = ? WHERE id = ?
	`, doc.UpdatedAt.UnixNano(), string(raw), doc.ID)
	if err != nil {
		return fmt.Errorf("save list %s: %w", doc.ID, err)
	}
	return nil
}

func decodeDocument(raw string) (*model.ListDocument, error) {
	var doc model.ListDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if doc.Items == nil {
		doc.Items = []model.ShoppingListItem{}
	}
	if err := doc.ShoppingList.Validate(); err != nil {
		return nil, fmt.Errorf("decode list %s: %w", doc.ID, err)
	}
	return &doc, nil
}
