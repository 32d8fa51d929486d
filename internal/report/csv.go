package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abelbrown/gamepulse/internal/store"
	"github.com/abelbrown/gamepulse/internal/titles"
)

// CatalogHeader is the column order of the ranked catalog file.
var CatalogHeader = []string{"rank", "title", "mentions", "total_likes", "variants", "suspect", "urls"}

// Paths lists the files written by WriteAnalysis.
type Paths struct {
	Matched   string
	Unmatched string
	Catalog   string
}

// DefaultName returns game_analysis_YYYYMMDD_HHMMSS.
func DefaultName(t time.Time) string {
	return "game_analysis_" + t.Format("20060102_150405")
}

// EntriesFromCatalog ranks a catalog into storable entries.
func EntriesFromCatalog(runID string, cat *titles.Catalog) []store.CatalogEntry {
	ranked := cat.Ranked()
	entries := make([]store.CatalogEntry, 0, len(ranked))
	for i, b := range ranked {
		entries = append(entries, store.CatalogEntry{
			RunID:        runID,
			Rank:         i + 1,
			CanonicalKey: b.Key.String(),
			Label:        b.Representative,
			Variants:     b.Variants(),
			Mentions:     b.Mentions,
			Engagement:   b.Engagement,
			ItemIDs:      b.ItemIDs,
			Suspect:      b.Suspect(),
		})
	}
	return entries
}

// WriteAnalysis writes <name>_matched.csv, <name>_unmatched.csv and
// <name>_catalog.csv into dir. An empty name uses DefaultName.
func WriteAnalysis(dir, name string, rows []Row, entries []store.CatalogEntry) (Paths, error) {
	if name == "" {
		name = DefaultName(time.Now())
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Paths{}, fmt.Errorf("create %s: %w", dir, err)
	}

	matched, unmatched := Split(rows)
	paths := Paths{
		Matched:   filepath.Join(dir, name+"_matched.csv"),
		Unmatched: filepath.Join(dir, name+"_unmatched.csv"),
		Catalog:   filepath.Join(dir, name+"_catalog.csv"),
	}

	if err := writeCSV(paths.Matched, RowHeader, rowRecords(matched)); err != nil {
		return Paths{}, err
	}
	if err := writeCSV(paths.Unmatched, RowHeader, rowRecords(unmatched)); err != nil {
		return Paths{}, err
	}
	if err := writeCSV(paths.Catalog, CatalogHeader, catalogRecords(entries)); err != nil {
		return Paths{}, err
	}
	return paths, nil
}

// WriteCatalog writes only the ranked catalog file to path.
func WriteCatalog(path string, entries []store.CatalogEntry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return writeCSV(path, CatalogHeader, catalogRecords(entries))
}

func rowRecords(rows []Row) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, []string{
			r.GameTitle,
			r.ReleaseYear,
			r.Developer,
			strconv.Itoa(r.TotalLikes),
			strconv.Itoa(r.Mentions),
			r.URI,
			r.WebURL,
			r.AllURIs,
			r.AllURLs,
		})
	}
	return out
}

func catalogRecords(entries []store.CatalogEntry) [][]string {
	out := make([][]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, []string{
			strconv.Itoa(e.Rank),
			e.Label,
			strconv.Itoa(e.Mentions),
			strconv.Itoa(e.Engagement),
			strings.Join(e.Variants, " | "),
			strconv.FormatBool(e.Suspect),
			joinURLs(e.ItemIDs),
		})
	}
	return out
}

func writeCSV(path string, header []string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := w.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
