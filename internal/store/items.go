package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/quietfold/retain/internal/lifecycle"
)

// MemoryItem is a stored knowledge unit under decay management.
// Timestamps are unix milliseconds; LastAccessedAt and ArchivedAt are nil
// when unset.
type MemoryItem struct {
	ID       string
	Category string
	Content  string

	Importance      float64
	Confidence      float64
	NeedsReview     bool
	NeedsReclassify bool

	Stability  float64
	DecayScore float64
	State      lifecycle.State
	ArchivedAt *int64

	LastAccessedAt    *int64
	AccessCount       int
	ReactivationCount int

	CreatedAt int64
}

const itemColumns = `id, category, content, importance, confidence, needs_review, needs_reclassify,
	stability, decay_score, state, archived_at, last_accessed_at, access_count, reactivation_count, created_at`

// NewItemID returns a fresh ULID for an item or run.
func NewItemID() string {
	return ulid.Make().String()
}

// CreateItem inserts a new item. Items start fully fresh in the active state.
// ID and CreatedAt are assigned here when unset.
func (db *DB) CreateItem(item *MemoryItem) error {
	if item.ID == "" {
		item.ID = NewItemID()
	}
	if item.CreatedAt == 0 {
		item.CreatedAt = time.Now().UnixMilli()
	}
	if item.Category == "" {
		item.Category = "general"
	}
	item.DecayScore = 1.0
	item.State = lifecycle.Active

	_, err := db.Exec(`
		INSERT INTO mem_items (id, category, content, importance, confidence, needs_review, needs_reclassify,
			stability, decay_score, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.Category, item.Content, item.Importance, item.Confidence,
		boolInt(item.NeedsReview), boolInt(item.NeedsReclassify),
		item.Stability, item.DecayScore, item.State.String(), item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	return nil
}

// GetItem returns an item by id, or ErrNotFound.
func (db *DB) GetItem(id string) (*MemoryItem, error) {
	row := db.QueryRow(`SELECT `+itemColumns+` FROM mem_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return item, nil
}

// ListCandidates returns one page of items eligible for maintenance (every
// state except purged), ordered by id. afterID is the keyset token from the
// previous page ("" for the first). The returned token is "" when the page
// set is exhausted.
func (db *DB) ListCandidates(afterID string, limit int) ([]MemoryItem, string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT `+itemColumns+`
		FROM mem_items
		WHERE state != 'purged' AND id > ?
		ORDER BY id
		LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, "", fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(items) == limit {
		next = items[len(items)-1].ID
	}
	return items, next, nil
}

// CountCandidates returns the number of items eligible for maintenance.
func (db *DB) CountCandidates() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM mem_items WHERE state != 'purged'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count candidates: %w", err)
	}
	return n, nil
}

// WriteDecayAndState persists the maintenance outcome for one item as a
// single atomic update: score, state, and reactivation count always land
// together. archived_at is stamped on entry to the archived state and
// cleared when the item leaves it.
func (db *DB) WriteDecayAndState(id string, decayScore float64, state lifecycle.State, reactivationCount int) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		UPDATE mem_items
		SET decay_score = ?,
		    state = ?,
		    reactivation_count = ?,
		    archived_at = CASE
		        WHEN ? = 'archived' THEN COALESCE(archived_at, ?)
		        WHEN ? = 'purged'   THEN archived_at
		        ELSE NULL
		    END
		WHERE id = ?
	`, decayScore, state.String(), reactivationCount, state.String(), now, state.String(), id)
	if err != nil {
		return fmt.Errorf("write decay/state for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("write decay/state for %s: %w", id, ErrNotFound)
	}
	return nil
}

// TouchItem records an access event: updates last_accessed_at and bumps
// access_count. Purged items are not revivable and are left untouched.
func (db *DB) TouchItem(id string) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		UPDATE mem_items
		SET last_accessed_at = ?, access_count = access_count + 1
		WHERE id = ? AND state != 'purged'
	`, now, id)
	if err != nil {
		return fmt.Errorf("touch item %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("touch item %s: %w", id, ErrNotFound)
	}
	return nil
}

// ApplyClassification folds a classification result into the item's
// importance fields. Only the classification caller writes these columns;
// maintenance never does.
func (db *DB) ApplyClassification(id string, importance, confidence float64, needsReview, needsReclassify bool) error {
	res, err := db.Exec(`
		UPDATE mem_items
		SET importance = ?, confidence = ?, needs_review = ?, needs_reclassify = ?
		WHERE id = ?
	`, importance, confidence, boolInt(needsReview), boolInt(needsReclassify), id)
	if err != nil {
		return fmt.Errorf("apply classification for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("apply classification for %s: %w", id, ErrNotFound)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*MemoryItem, error) {
	var item MemoryItem
	var content sql.NullString
	var stateName string
	var lastAccessed, archivedAt sql.NullInt64
	var needsReview, needsReclassify int

	err := row.Scan(&item.ID, &item.Category, &content,
		&item.Importance, &item.Confidence, &needsReview, &needsReclassify,
		&item.Stability, &item.DecayScore, &stateName, &archivedAt,
		&lastAccessed, &item.AccessCount, &item.ReactivationCount, &item.CreatedAt)
	if err != nil {
		return nil, err
	}

	item.Content = content.String
	item.NeedsReview = needsReview != 0
	item.NeedsReclassify = needsReclassify != 0
	if lastAccessed.Valid {
		item.LastAccessedAt = &lastAccessed.Int64
	}
	if archivedAt.Valid {
		item.ArchivedAt = &archivedAt.Int64
	}

	state, err := lifecycle.ParseState(stateName)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", item.ID, err)
	}
	item.State = state
	return &item, nil
}

func scanItems(rows *sql.Rows) ([]MemoryItem, error) {
	var items []MemoryItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
