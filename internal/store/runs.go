package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Run is one persisted aggregation.
type Run struct {
	ID        string
	CreatedAt time.Time
	Label     string // free-form, usually the query
	Posts     int
	Mentions  int
	Buckets   int
}

// CatalogEntry is one ranked bucket of a run.
type CatalogEntry struct {
	RunID        string
	Rank         int // 1-based
	CanonicalKey string
	Label        string
	Variants     []string
	Mentions     int
	Engagement   int
	ItemIDs      []string
	Suspect      bool
}

// SaveRun stores a run and its entries in a single transaction.
// Thread-safe: acquires write lock.
func (s *Store) SaveRun(run Run, entries []CatalogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		return fmt.Errorf("save run: empty id")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	run.CreatedAt = run.CreatedAt.UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, created_at, label, posts, mentions, buckets)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt, run.Label, run.Posts, run.Mentions, run.Buckets)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO catalog_entries (
			run_id, rank, canonical_key, label, variants, mentions,
			engagement, item_ids, suspect
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		suspect := 0
		if e.Suspect {
			suspect = 1
		}
		_, err := stmt.Exec(
			run.ID,
			e.Rank,
			e.CanonicalKey,
			e.Label,
			encodeList(e.Variants),
			e.Mentions,
			e.Engagement,
			encodeList(e.ItemIDs),
			suspect,
		)
		if err != nil {
			return fmt.Errorf("insert entry %d of run %s: %w", e.Rank, run.ID, err)
		}
	}

	return tx.Commit()
}

// GetRun returns a run by id, or nil if it does not exist.
func (s *Store) GetRun(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, created_at, label, posts, mentions, buckets FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LatestRun returns the most recent run, or nil when none exist.
func (s *Store) LatestRun() (*Run, error) {
	runs, err := s.ListRuns(1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, created_at, label, posts, mentions, buckets FROM runs
		ORDER BY created_at DESC, id ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunEntries returns a run's catalog entries in rank order.
func (s *Store) RunEntries(runID string) ([]CatalogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT run_id, rank, canonical_key, label, variants, mentions,
			engagement, item_ids, suspect
		FROM catalog_entries WHERE run_id = ? ORDER BY rank ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		var variants, ids string
		var suspect int
		if err := rows.Scan(&e.RunID, &e.Rank, &e.CanonicalKey, &e.Label, &variants,
			&e.Mentions, &e.Engagement, &ids, &suspect); err != nil {
			return nil, err
		}
		e.Variants = decodeList(variants)
		e.ItemIDs = decodeList(ids)
		e.Suspect = suspect != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanRun(row scanner) (Run, error) {
	var r Run
	var label sql.NullString
	if err := row.Scan(&r.ID, &r.CreatedAt, &label, &r.Posts, &r.Mentions, &r.Buckets); err != nil {
		return Run{}, err
	}
	r.Label = label.String
	return r, nil
}
