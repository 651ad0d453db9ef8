package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/glimpse/internal/domain"
	"github.com/mmcdole/glimpse/internal/search"
	"github.com/mmcdole/glimpse/internal/tui/styles"
)

// AlbumItem implements list.Item for albums and the all-assets entry
type AlbumItem struct {
	Album   domain.Album
	All     bool  // The synthetic all-assets source
	Current bool  // Currently browsed
	Editing bool  // Show a visibility checkbox
	Visible bool  // Checkbox state while editing
	Matched []int // Byte offsets in the title matched by the filter
}

// SourceID returns the catalog source ID this item selects
func (i AlbumItem) SourceID() string {
	if i.All {
		return domain.AllAssetsID
	}
	return i.Album.ID
}

func (i AlbumItem) FilterValue() string { return i.Album.DisplayTitle() }

func (i AlbumItem) Title() string {
	marker := "  "
	if i.Current {
		marker = "● "
	}
	if i.All {
		return marker + "All Photos"
	}
	title := highlight(i.Album.DisplayTitle(), i.Matched)
	if i.Editing {
		box := styles.UncheckedBox
		if i.Visible {
			box = styles.CheckedBox
		}
		return fmt.Sprintf("%s%s %s", marker, box, title)
	}
	return fmt.Sprintf("%s%s (%d)", marker, title, i.Album.AssetCount)
}

func (i AlbumItem) Description() string { return "" }

// highlight styles the runes of s starting at the matched byte offsets
func highlight(s string, matched []int) string {
	if len(matched) == 0 {
		return s
	}
	hit := make(map[int]bool, len(matched))
	for _, m := range matched {
		hit[m] = true
	}
	var b strings.Builder
	for i, r := range s {
		if hit[i] {
			b.WriteString(styles.MatchStyle.Render(string(r)))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Border overhead for the sidebar panel
const BorderSize = 2

// Sidebar is the album selection sidebar component
type Sidebar struct {
	list      list.Model
	filter    textinput.Model
	filtering bool
	editing   bool
	focused   bool
	width     int
	height    int
	albums    []domain.Album
	visible   map[string]bool
	current   string
}

// NewSidebar creates a new sidebar component
func NewSidebar() Sidebar {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	delegate.Styles.SelectedTitle = lipgloss.NewStyle().
		Foreground(styles.White).
		Background(styles.SlateLight).
		Padding(0, 1)
	delegate.Styles.NormalTitle = lipgloss.NewStyle().
		Foreground(styles.LightGray).
		Padding(0, 1)

	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = "Albums"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowPagination(false)
	l.Styles.Title = lipgloss.NewStyle().
		Foreground(styles.Amber).
		Bold(true).
		Padding(0, 1)

	ti := textinput.New()
	ti.Placeholder = "filter albums..."
	ti.CharLimit = 64
	ti.Prompt = "/ "
	ti.TextStyle = lipgloss.NewStyle().Foreground(styles.White)
	ti.PlaceholderStyle = styles.DimStyle

	return Sidebar{
		list:    l,
		filter:  ti,
		visible: make(map[string]bool),
		current: domain.AllAssetsID,
	}
}

// SetAlbums replaces the album list. While editing, albums includes hidden
// ones and visibility holds the stored flags.
func (s *Sidebar) SetAlbums(albums []domain.Album, editing bool, visibility map[string]bool) {
	s.albums = albums
	s.editing = editing
	s.visible = visibility
	if s.editing {
		s.list.Title = "Visible Albums"
	} else {
		s.list.Title = "Albums"
	}
	s.refreshItems()
}

// SetCurrent marks the browsed source
func (s *Sidebar) SetCurrent(sourceID string) {
	s.current = sourceID
	s.refreshItems()
}

// Editing reports whether visibility checkboxes are shown
func (s Sidebar) Editing() bool { return s.editing }

// Filtering reports whether the filter input has focus
func (s Sidebar) Filtering() bool { return s.filtering }

// StartFilter focuses the filter input
func (s *Sidebar) StartFilter() tea.Cmd {
	s.filtering = true
	return s.filter.Focus()
}

// StopFilter blurs the input; clear also drops the query
func (s *Sidebar) StopFilter(clear bool) {
	s.filtering = false
	s.filter.Blur()
	if clear {
		s.filter.SetValue("")
		s.refreshItems()
	}
}

func (s *Sidebar) isVisible(albumID string) bool {
	v, ok := s.visible[albumID]
	return !ok || v
}

// refreshItems rebuilds the list items with current state
func (s *Sidebar) refreshItems() {
	query := strings.TrimSpace(s.filter.Value())
	matches := search.NewIndex(s.albums).Filter(query)

	items := make([]list.Item, 0, len(matches)+1)
	if query == "" && !s.editing {
		items = append(items, AlbumItem{All: true, Current: s.current == domain.AllAssetsID})
	}
	for _, m := range matches {
		items = append(items, AlbumItem{
			Album:   m.Album,
			Current: !s.editing && s.current == m.Album.ID,
			Editing: s.editing,
			Visible: s.isVisible(m.Album.ID),
			Matched: m.MatchedIndexes,
		})
	}
	s.list.SetItems(items)
	if s.list.Index() >= len(items) && len(items) > 0 {
		s.list.Select(len(items) - 1)
	}
}

// SetSize updates the component dimensions
func (s *Sidebar) SetSize(width, height int) {
	s.width = width
	s.height = height
	s.filter.Width = width - BorderSize - 4
	s.list.SetSize(width-BorderSize, height-BorderSize-1)
}

// SetFocused sets the focus state
func (s *Sidebar) SetFocused(focused bool) {
	s.focused = focused
}

// IsFocused returns the focus state
func (s Sidebar) IsFocused() bool {
	return s.focused
}

// SelectedItem returns the highlighted entry
func (s Sidebar) SelectedItem() (AlbumItem, bool) {
	item := s.list.SelectedItem()
	if item == nil {
		return AlbumItem{}, false
	}
	albumItem, ok := item.(AlbumItem)
	return albumItem, ok
}

// Update handles messages
func (s Sidebar) Update(msg tea.Msg) (Sidebar, tea.Cmd) {
	if !s.focused {
		return s, nil
	}

	if s.filtering {
		var cmd tea.Cmd
		before := s.filter.Value()
		s.filter, cmd = s.filter.Update(msg)
		if s.filter.Value() != before {
			s.list.Select(0)
			s.refreshItems()
		}
		return s, cmd
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "j", "down":
			s.list.CursorDown()
		case "k", "up":
			s.list.CursorUp()
		case "g", "home":
			s.list.Select(0)
		case "G", "end":
			s.list.Select(len(s.list.Items()) - 1)
		}
	}

	return s, nil
}

// View renders the component
func (s Sidebar) View() string {
	style := styles.InactiveBorder
	if s.focused {
		style = styles.ActiveBorder
	}

	// Subtract frame (border) size so total rendered size equals s.width x s.height
	frameW, frameH := style.GetFrameSize()

	filterLine := styles.DimStyle.Render("/ to filter")
	if s.filtering || s.filter.Value() != "" {
		filterLine = s.filter.View()
	}

	return style.
		Width(s.width - frameW).
		Height(s.height - frameH).
		Render(lipgloss.JoinVertical(lipgloss.Left, s.list.View(), filterLine))
}
