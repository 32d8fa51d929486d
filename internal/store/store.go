// Package store provides SQLite persistence for gamepulse.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Post is one flattened social-media post.
type Post struct {
	URI         string // at:// URI, primary key
	CID         string
	Handle      string
	Text        string
	Tags        []string
	ImageAlts   []string
	LikeCount   int
	RepostCount int
	ReplyCount  int
	CreatedAt   time.Time
	IndexedAt   time.Time
	Query       string // search query, "feed:<handle>" or source file name
	Fetched     time.Time
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		uri TEXT PRIMARY KEY,
		cid TEXT,
		handle TEXT NOT NULL,
		text TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		image_alts TEXT NOT NULL DEFAULT '[]',
		like_count INTEGER NOT NULL DEFAULT 0,
		repost_count INTEGER NOT NULL DEFAULT 0,
		reply_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		indexed_at DATETIME,
		query TEXT,
		fetched_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at);
	CREATE INDEX IF NOT EXISTS idx_posts_query ON posts(query);

	CREATE TABLE IF NOT EXISTS classifications (
		post_uri TEXT PRIMARY KEY REFERENCES posts(uri),
		title TEXT NOT NULL,
		release_year TEXT,
		developer TEXT,
		provider TEXT NOT NULL,
		model TEXT,
		raw_response TEXT,
		error TEXT,
		classified_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		label TEXT,
		posts INTEGER NOT NULL,
		mentions INTEGER NOT NULL,
		buckets INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at DESC);

	CREATE TABLE IF NOT EXISTS catalog_entries (
		run_id TEXT NOT NULL REFERENCES runs(id),
		rank INTEGER NOT NULL,
		canonical_key TEXT NOT NULL,
		label TEXT NOT NULL,
		variants TEXT NOT NULL,
		mentions INTEGER NOT NULL,
		engagement INTEGER NOT NULL,
		item_ids TEXT NOT NULL,
		suspect INTEGER DEFAULT 0,
		PRIMARY KEY (run_id, rank)
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SavePosts stores posts, returning count of new posts inserted.
// Timestamps are stored in UTC so they sort as text.
// Posts already stored keep their text. Engagement counts only move up, so
// a source without counts (RSS) cannot zero the ones a search stored.
// Thread-safe: acquires write lock.
func (s *Store) SavePosts(posts []Post) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(posts) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	insert, err := tx.Prepare(`
		INSERT OR IGNORE INTO posts (
			uri, cid, handle, text, tags, image_alts, like_count, repost_count,
			reply_count, created_at, indexed_at, query, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer insert.Close()

	refresh, err := tx.Prepare(`
		UPDATE posts SET like_count = MAX(like_count, ?), repost_count = MAX(repost_count, ?),
			reply_count = MAX(reply_count, ?), fetched_at = ?
		WHERE uri = ?
	`)
	if err != nil {
		return 0, err
	}
	defer refresh.Close()

	newCount := 0
	for _, p := range posts {
		result, err := insert.Exec(
			p.URI,
			p.CID,
			p.Handle,
			p.Text,
			encodeList(p.Tags),
			encodeList(p.ImageAlts),
			p.LikeCount,
			p.RepostCount,
			p.ReplyCount,
			p.CreatedAt.UTC(),
			p.IndexedAt.UTC(),
			p.Query,
			p.Fetched.UTC(),
		)
		if err != nil {
			return 0, fmt.Errorf("insert post %s: %w", p.URI, err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected > 0 {
			newCount++
			continue
		}

		if _, err := refresh.Exec(p.LikeCount, p.RepostCount, p.ReplyCount, p.Fetched.UTC(), p.URI); err != nil {
			return 0, fmt.Errorf("refresh post %s: %w", p.URI, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newCount, nil
}

// PostFilter narrows GetPosts. Zero fields match everything.
type PostFilter struct {
	Query string    // exact match on the stored query
	Since time.Time // created_at >= Since
	Until time.Time // created_at < Until
	Limit int
}

const postColumns = `uri, cid, handle, text, tags, image_alts, like_count, repost_count,
	reply_count, created_at, indexed_at, query, fetched_at`

// GetPosts retrieves posts ordered by created_at, oldest first.
// Thread-safe: acquires read lock.
func (s *Store) GetPosts(f PostFilter) ([]Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + postColumns + ` FROM posts WHERE 1 = 1`
	var args []any
	if f.Query != "" {
		query += ` AND query = ?`
		args = append(args, f.Query)
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		query += ` AND created_at < ?`
		args = append(args, f.Until.UTC())
	}
	query += ` ORDER BY created_at ASC, uri ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	return s.queryPosts(query, args...)
}

// PostsNeedingClassification returns posts without a classification.
// With retryFailed, posts whose last classification errored are included.
// Thread-safe: acquires read lock.
func (s *Store) PostsNeedingClassification(limit int, retryFailed bool) ([]Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + prefixed("p", postColumns) + `
		FROM posts p
		LEFT JOIN classifications c ON c.post_uri = p.uri
		WHERE c.post_uri IS NULL`
	if retryFailed {
		query += ` OR (c.error IS NOT NULL AND c.error != '')`
	}
	query += ` ORDER BY p.created_at ASC, p.uri ASC`

	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryPosts(query, args...)
}

// CountPosts returns the total number of stored posts.
func (s *Store) CountPosts() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM posts`).Scan(&n)
	return n, err
}

// DayCount is the number of posts created on one UTC day.
type DayCount struct {
	Day   string // YYYY-MM-DD
	Count int
}

// PostsPerDay groups stored posts by UTC creation day.
func (s *Store) PostsPerDay() ([]DayCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT created_at FROM posts ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var created time.Time
		if err := rows.Scan(&created); err != nil {
			return nil, err
		}
		day := created.UTC().Format("2006-01-02")
		if n := len(out); n > 0 && out[n-1].Day == day {
			out[n-1].Count++
			continue
		}
		out = append(out, DayCount{Day: day, Count: 1})
	}
	return out, rows.Err()
}

// queryPosts executes a query and scans results into Posts.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryPosts(query string, args ...any) ([]Post, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return posts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner, extra ...any) (Post, error) {
	var p Post
	var cid, query sql.NullString
	var tags, alts string
	var indexed sql.NullTime

	dest := []any{
		&p.URI,
		&cid,
		&p.Handle,
		&p.Text,
		&tags,
		&alts,
		&p.LikeCount,
		&p.RepostCount,
		&p.ReplyCount,
		&p.CreatedAt,
		&indexed,
		&query,
		&p.Fetched,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return Post{}, err
	}
	p.CID = cid.String
	p.Query = query.String
	p.IndexedAt = indexed.Time
	p.Tags = decodeList(tags)
	p.ImageAlts = decodeList(alts)
	return p, nil
}

// encodeList stores string slices as JSON arrays.
func encodeList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeList(s string) []string {
	var v []string
	if s == "" || json.Unmarshal([]byte(s), &v) != nil {
		return nil
	}
	if len(v) == 0 {
		return nil
	}
	return v
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	var out []byte
	start := true
	for i := 0; i < len(columns); i++ {
		c := columns[i]
		if start && c != ' ' && c != '\n' && c != '\t' {
			out = append(out, alias...)
			out = append(out, '.')
			start = false
		}
		out = append(out, c)
		if c == ',' {
			start = true
		}
	}
	return string(out)
}
