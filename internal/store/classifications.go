package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// NoTitleLabel is stored when a post names no game or classification failed.
const NoTitleLabel = "None"

// Classification is the classifier's guess for one post.
type Classification struct {
	PostURI      string
	Title        string
	ReleaseYear  string
	Developer    string
	Provider     string
	Model        string
	RawResponse  string
	Error        string
	ClassifiedAt time.Time
}

// Failed reports whether the classifier errored for this post.
func (c Classification) Failed() bool {
	return c.Error != ""
}

// ClassifiedPost joins a post with its classification.
type ClassifiedPost struct {
	Post
	Classification
}

// SaveClassification upserts the classification for a post.
// Thread-safe: acquires write lock.
func (s *Store) SaveClassification(c Classification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.Title == "" {
		c.Title = NoTitleLabel
	}
	if c.ClassifiedAt.IsZero() {
		c.ClassifiedAt = time.Now()
	}
	c.ClassifiedAt = c.ClassifiedAt.UTC()

	_, err := s.db.Exec(`
		INSERT INTO classifications (
			post_uri, title, release_year, developer, provider, model,
			raw_response, error, classified_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(post_uri) DO UPDATE SET
			title = excluded.title,
			release_year = excluded.release_year,
			developer = excluded.developer,
			provider = excluded.provider,
			model = excluded.model,
			raw_response = excluded.raw_response,
			error = excluded.error,
			classified_at = excluded.classified_at
	`,
		c.PostURI,
		c.Title,
		c.ReleaseYear,
		c.Developer,
		c.Provider,
		c.Model,
		c.RawResponse,
		c.Error,
		c.ClassifiedAt,
	)
	if err != nil {
		return fmt.Errorf("save classification %s: %w", c.PostURI, err)
	}
	return nil
}

// GetClassification returns the classification for a post, or nil if none.
func (s *Store) GetClassification(postURI string) (*Classification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT post_uri, title, release_year, developer, provider, model,
			raw_response, error, classified_at
		FROM classifications WHERE post_uri = ?
	`, postURI)

	var c Classification
	var year, dev, model, raw, errText sql.NullString
	err := row.Scan(&c.PostURI, &c.Title, &year, &dev, &c.Provider, &model, &raw, &errText, &c.ClassifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.ReleaseYear = year.String
	c.Developer = dev.String
	c.Model = model.String
	c.RawResponse = raw.String
	c.Error = errText.String
	return &c, nil
}

// ClassifiedPosts returns every classified post, optionally restricted to
// one stored query, oldest first.
// Thread-safe: acquires read lock.
func (s *Store) ClassifiedPosts(query string) ([]ClassifiedPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `
		SELECT ` + prefixed("p", postColumns) + `,
			c.title, c.release_year, c.developer, c.provider, c.model,
			c.raw_response, c.error, c.classified_at
		FROM posts p
		JOIN classifications c ON c.post_uri = p.uri`
	var args []any
	if query != "" {
		q += ` WHERE p.query = ?`
		args = append(args, query)
	}
	q += ` ORDER BY p.created_at ASC, p.uri ASC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClassifiedPost
	for rows.Next() {
		var cp ClassifiedPost
		var year, dev, model, raw, errText sql.NullString
		p, err := scanPost(rows,
			&cp.Title, &year, &dev, &cp.Provider, &model, &raw, &errText, &cp.ClassifiedAt)
		if err != nil {
			return nil, err
		}
		cp.Post = p
		cp.PostURI = p.URI
		cp.ReleaseYear = year.String
		cp.Developer = dev.String
		cp.Model = model.String
		cp.RawResponse = raw.String
		cp.Error = errText.String
		out = append(out, cp)
	}
	return out, rows.Err()
}

// CountClassified returns the number of posts with a classification.
func (s *Store) CountClassified() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM classifications`).Scan(&n)
	return n, err
}

// CountFailed returns the number of classifications that errored.
func (s *Store) CountFailed() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM classifications WHERE error IS NOT NULL AND error != ''`).Scan(&n)
	return n, err
}

// CountMatched returns the number of classifications that named a game.
// A title counts as unmatched when it is empty or "none" in any case.
func (s *Store) CountMatched() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT title FROM classifications`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return 0, err
		}
		t := strings.TrimSpace(title)
		if t != "" && !strings.EqualFold(t, NoTitleLabel) {
			n++
		}
	}
	return n, rows.Err()
}
