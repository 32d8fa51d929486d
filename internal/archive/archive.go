// Package archive reads and writes flat post files.
//
// JSON files hold {"posts": [...]} indented four spaces. CSV files have the
// header id, author, text, posted_at, likes, hashtags.
package archive

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/abelbrown/gamepulse/internal/bsky"
	"github.com/abelbrown/gamepulse/internal/store"
)

// ErrNoFiles is returned by Load when the pattern matches nothing.
var ErrNoFiles = errors.New("archive: no files match pattern")

// CSVHeader is the column order of post CSV files.
var CSVHeader = []string{"id", "author", "text", "posted_at", "likes", "hashtags"}

// jsonPost is the on-disk JSON shape of one post.
type jsonPost struct {
	URI       string   `json:"uri"`
	Handle    string   `json:"handle"`
	CreatedAt string   `json:"created_at"`
	Text      string   `json:"text"`
	Tags      []string `json:"tags"`
	LikeCount int      `json:"like_count"`
	ImageAlts []string `json:"image_alts"`
}

type jsonFile struct {
	Posts []jsonPost `json:"posts"`
}

// DefaultName returns posts_YYYYMMDD_HHMMSS.<ext> for t.
func DefaultName(t time.Time, ext string) string {
	return fmt.Sprintf("posts_%s.%s", t.Format("20060102_150405"), ext)
}

// DayName returns posts_<tag>_<YYYYMMDD>.json for a per-day search file.
func DayName(tag string, day time.Time) string {
	tag = strings.TrimPrefix(tag, "#")
	tag = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '_'
		}
		return r
	}, tag)
	return fmt.Sprintf("posts_%s_%s.json", tag, day.UTC().Format("20060102"))
}

// WriteJSON writes posts to dir/name and returns the full path. An empty
// name uses DefaultName.
func WriteJSON(dir, name string, posts []store.Post) (string, error) {
	if name == "" {
		name = DefaultName(time.Now(), "json")
	}

	out := jsonFile{Posts: make([]jsonPost, 0, len(posts))}
	for _, p := range posts {
		out.Posts = append(out.Posts, jsonPost{
			URI:       p.URI,
			Handle:    p.Handle,
			CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339Nano),
			Text:      p.Text,
			Tags:      nonNil(p.Tags),
			LikeCount: p.LikeCount,
			ImageAlts: nonNil(p.ImageAlts),
		})
	}

	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal posts: %w", err)
	}
	return writeFile(dir, name, append(data, '\n'))
}

// WriteCSV writes posts to dir/name as CSV and returns the full path. An
// empty name uses DefaultName.
func WriteCSV(dir, name string, posts []store.Post) (string, error) {
	if name == "" {
		name = DefaultName(time.Now(), "csv")
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(CSVHeader); err != nil {
		return "", err
	}
	for _, p := range posts {
		posted := p.IndexedAt
		if posted.IsZero() {
			posted = p.CreatedAt
		}
		record := []string{
			p.URI,
			p.Handle,
			p.Text,
			posted.UTC().Format(time.RFC3339Nano),
			strconv.Itoa(p.LikeCount),
			hashtagWords(p.Text),
		}
		if err := w.Write(record); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("write csv: %w", err)
	}
	return writeFile(dir, name, []byte(sb.String()))
}

// Load reads every JSON and CSV file in dir matching pattern, in file-name
// order. Each post's Query is set to "file:<name>".
func Load(dir, pattern string) ([]store.Post, error) {
	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	sort.Strings(files)

	var posts []store.Post
	matched := 0
	for _, path := range files {
		var got []store.Post
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			got, err = loadJSON(path)
		case ".csv":
			got, err = loadCSV(path)
		default:
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
		}
		matched++

		source := "file:" + filepath.Base(path)
		for i := range got {
			got[i].Query = source
		}
		posts = append(posts, got...)
	}

	if matched == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, pattern)
	}
	return posts, nil
}

func loadJSON(path string) ([]store.Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f jsonFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	fetched := modTime(path)
	posts := make([]store.Post, 0, len(f.Posts))
	for _, jp := range f.Posts {
		created, _ := parseTime(jp.CreatedAt)
		posts = append(posts, store.Post{
			URI:       jp.URI,
			Handle:    jp.Handle,
			Text:      jp.Text,
			Tags:      emptyToNil(jp.Tags),
			ImageAlts: emptyToNil(jp.ImageAlts),
			LikeCount: jp.LikeCount,
			CreatedAt: created,
			Fetched:   fetched,
		})
	}
	return posts, nil
}

func loadCSV(path string) ([]store.Post, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.ToLower(h))] = i
	}
	get := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	fetched := modTime(path)
	var posts []store.Post
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		posted, _ := parseTime(get(rec, "posted_at"))
		likes, _ := strconv.Atoi(get(rec, "likes"))
		text := get(rec, "text")
		posts = append(posts, store.Post{
			URI:       get(rec, "id"),
			Handle:    get(rec, "author"),
			Text:      text,
			Tags:      bsky.ExtractHashtags(get(rec, "hashtags")),
			LikeCount: likes,
			CreatedAt: posted,
			IndexedAt: posted,
			Fetched:   fetched,
		})
	}
	return posts, nil
}

func writeFile(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// hashtagWords keeps the '#' words of text, space separated.
func hashtagWords(text string) string {
	var words []string
	for _, w := range strings.Fields(text) {
		if strings.HasPrefix(w, "#") {
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return bsky.ParseDate(s, time.Now())
}

func modTime(path string) time.Time {
	if info, err := os.Stat(path); err == nil {
		return info.ModTime().UTC()
	}
	return time.Now().UTC()
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func emptyToNil(v []string) []string {
	if len(v) == 0 {
		return nil
	}
	return v
}
