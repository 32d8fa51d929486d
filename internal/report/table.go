package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/abelbrown/gamepulse/internal/store"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	numberStyle  = cellStyle.Align(lipgloss.Right)
	suspectStyle = cellStyle.Foreground(lipgloss.Color("214"))
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// RenderTable renders the top limit entries (all when limit <= 0).
func RenderTable(entries []store.CatalogEntry, limit int) string {
	if len(entries) == 0 {
		return "No games found.\n"
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("#", "TITLE", "MENTIONS", "LIKES", "VARIANTS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			switch {
			case col == 2 || col == 3 || col == 0:
				return numberStyle
			case col == 1 && row >= 0 && row < len(entries) && entries[row].Suspect:
				return suspectStyle
			}
			return cellStyle
		})

	for _, e := range entries {
		label := e.Label
		if e.Suspect {
			label += " ?"
		}
		t.Row(
			fmt.Sprint(e.Rank),
			label,
			humanize.Comma(int64(e.Mentions)),
			humanize.Comma(int64(e.Engagement)),
			variantSummary(e.Variants, e.Label),
		)
	}
	return t.String() + "\n"
}

// variantSummary lists spellings other than the label, at most three.
func variantSummary(variants []string, label string) string {
	var others []string
	for _, v := range variants {
		if v != label {
			others = append(others, v)
		}
	}
	if len(others) == 0 {
		return ""
	}
	if len(others) > 3 {
		return strings.Join(others[:3], ", ") + fmt.Sprintf(" +%d", len(others)-3)
	}
	return strings.Join(others, ", ")
}

// RenderRuns renders stored runs newest first.
func RenderRuns(runs []store.Run) string {
	if len(runs) == 0 {
		return "No runs yet.\n"
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("RUN", "WHEN", "LABEL", "POSTS", "MENTIONS", "GAMES").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col >= 3 {
				return numberStyle
			}
			return cellStyle
		})

	for _, r := range runs {
		t.Row(
			shortID(r.ID),
			humanize.Time(r.CreatedAt),
			r.Label,
			humanize.Comma(int64(r.Posts)),
			humanize.Comma(int64(r.Mentions)),
			humanize.Comma(int64(r.Buckets)),
		)
	}
	return t.String() + "\n"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
