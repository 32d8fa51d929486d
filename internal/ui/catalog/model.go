// Package catalog is the interactive browser for a ranked run.
package catalog

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/abelbrown/gamepulse/internal/bsky"
	"github.com/abelbrown/gamepulse/internal/store"
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#484f58"))
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#58a6ff"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	suspectStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	detailBox    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// maxDetailLinks caps the post links shown in the detail pane.
const maxDetailLinks = 10

// Model browses the entries of one run.
type Model struct {
	list          list.Model
	run           store.Run
	entries       []store.CatalogEntry
	suspectOnly   bool
	detail        *store.CatalogEntry
	width, height int
	quitting      bool
}

type entryItem struct {
	entry store.CatalogEntry
}

func (i entryItem) Title() string {
	flag := ""
	if i.entry.Suspect {
		flag = " " + suspectStyle.Render("?")
	}
	return fmt.Sprintf("#%d %s%s", i.entry.Rank, i.entry.Label, flag)
}

func (i entryItem) Description() string {
	return fmt.Sprintf("%s mentions · %s likes · %d spellings",
		humanize.Comma(int64(i.entry.Mentions)),
		humanize.Comma(int64(i.entry.Engagement)),
		len(i.entry.Variants))
}

func (i entryItem) FilterValue() string {
	return i.entry.Label + " " + strings.Join(i.entry.Variants, " ")
}

// New creates a browser for run and its ranked entries.
func New(run store.Run, entries []store.CatalogEntry) Model {
	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = delegate.Styles.SelectedTitle.
		Foreground(lipgloss.Color("#58a6ff"))

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = "Games"
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)

	m := Model{list: l, run: run, entries: entries}
	m.refresh()
	return m
}

func (m *Model) refresh() {
	var items []list.Item
	for _, e := range m.entries {
		if m.suspectOnly && !e.Suspect {
			continue
		}
		items = append(items, entryItem{entry: e})
	}
	m.list.SetItems(items)
}

// SetSize resizes the list to the terminal.
func (m *Model) SetSize(w, h int) {
	m.width, m.height = w, h
	m.list.SetSize(w-4, h-4)
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}

		if m.detail != nil {
			switch msg.String() {
			case "esc", "enter", "backspace":
				m.detail = nil
			case "q":
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}

		if m.list.FilterState() != list.Filtering {
			switch msg.String() {
			case "enter":
				if item, ok := m.list.SelectedItem().(entryItem); ok {
					e := item.entry
					m.detail = &e
				}
				return m, nil
			case "s":
				m.suspectOnly = !m.suspectOnly
				m.refresh()
				return m, nil
			case "q":
				m.quitting = true
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.detail != nil {
		return m.detailView(*m.detail)
	}

	suspects := 0
	for _, e := range m.entries {
		if e.Suspect {
			suspects++
		}
	}
	label := m.run.Label
	if label == "" {
		label = "all posts"
	}
	header := headerStyle.Render(fmt.Sprintf("  %s · %s posts · %s games · %d suspect · %s",
		label,
		humanize.Comma(int64(m.run.Posts)),
		humanize.Comma(int64(len(m.entries))),
		suspects,
		humanize.Time(m.run.CreatedAt)))

	filter := ""
	if m.suspectOnly {
		filter = "  (suspect only)"
	}
	help := helpStyle.Render("  [enter]details  [s]uspect filter  [/]search  [q]uit" + filter)

	return strings.Join([]string{header, "", m.list.View(), help}, "\n")
}

func (m Model) detailView(e store.CatalogEntry) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("#%d %s", e.Rank, e.Label)))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("mentions:"), humanize.Comma(int64(e.Mentions)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("likes:   "), humanize.Comma(int64(e.Engagement)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("key:     "), e.CanonicalKey)
	if e.Suspect {
		b.WriteString(suspectStyle.Render("spellings differ beyond case and word order; may merge different games"))
		b.WriteString("\n")
	}

	b.WriteString("\n" + labelStyle.Render("spellings:") + "\n")
	for _, v := range e.Variants {
		b.WriteString("  " + v + "\n")
	}

	b.WriteString("\n" + labelStyle.Render("posts:") + "\n")
	for i, uri := range e.ItemIDs {
		if i == maxDetailLinks {
			fmt.Fprintf(&b, "  … %d more\n", len(e.ItemIDs)-maxDetailLinks)
			break
		}
		link, err := bsky.WebURL(uri)
		if err != nil {
			link = uri
		}
		b.WriteString("  " + link + "\n")
	}

	help := helpStyle.Render("  [esc]back  [q]uit")
	return detailBox.Render(strings.TrimRight(b.String(), "\n")) + "\n" + help
}

// IsQuitting reports whether the user asked to leave.
func (m Model) IsQuitting() bool { return m.quitting }

// Detail returns the entry being inspected, if any.
func (m Model) Detail() (store.CatalogEntry, bool) {
	if m.detail == nil {
		return store.CatalogEntry{}, false
	}
	return *m.detail, true
}

// Visible returns the number of entries passing the suspect filter.
func (m Model) Visible() int {
	return len(m.list.Items())
}
