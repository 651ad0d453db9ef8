package components

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/glimpse/internal/domain"
	"github.com/mmcdole/glimpse/internal/tui/styles"
)

// CellWidth is the width of one grid cell including its gap
const CellWidth = 18

// cellHeight is the number of lines per grid row
const cellHeight = 3

// Grid shows the loaded assets of the browsed source, newest first
type Grid struct {
	assets    []domain.Asset
	title     string
	total     int
	exhausted bool
	cursor    int
	offset    int // First visible row
	focused   bool
	width     int
	height    int
}

// NewGrid creates an empty grid
func NewGrid() Grid {
	return Grid{}
}

// SetAssets replaces the sequence, keeping the cursor on the same asset when
// it is still present
func (g *Grid) SetAssets(assets []domain.Asset, total int, exhausted bool) {
	var selectedID string
	if g.cursor < len(g.assets) {
		selectedID = g.assets[g.cursor].ID
	}

	g.assets = assets
	g.total = total
	g.exhausted = exhausted

	g.cursor = 0
	for i, a := range assets {
		if a.ID == selectedID {
			g.cursor = i
			break
		}
	}
	g.scrollToCursor()
}

// Reset clears the grid for a new source
func (g *Grid) Reset(title string) {
	g.assets = nil
	g.title = title
	g.total = 0
	g.exhausted = false
	g.cursor = 0
	g.offset = 0
}

// Len returns the number of loaded assets
func (g Grid) Len() int { return len(g.assets) }

// Cursor returns the selected index
func (g Grid) Cursor() int { return g.cursor }

// Selected returns the asset under the cursor
func (g Grid) Selected() (domain.Asset, bool) {
	if g.cursor < 0 || g.cursor >= len(g.assets) {
		return domain.Asset{}, false
	}
	return g.assets[g.cursor], true
}

// Select moves the cursor to the asset with id
func (g *Grid) Select(id string) {
	for i, a := range g.assets {
		if a.ID == id {
			g.cursor = i
			g.scrollToCursor()
			return
		}
	}
}

// SetSize updates the component dimensions
func (g *Grid) SetSize(width, height int) {
	g.width = width
	g.height = height
	g.scrollToCursor()
}

// SetFocused sets the focus state
func (g *Grid) SetFocused(focused bool) {
	g.focused = focused
}

func (g Grid) columns() int {
	cols := (g.width - BorderSize) / CellWidth
	if cols < 1 {
		return 1
	}
	return cols
}

func (g Grid) visibleRows() int {
	rows := (g.height - BorderSize - 1) / cellHeight
	if rows < 1 {
		return 1
	}
	return rows
}

func (g *Grid) move(delta int) {
	if len(g.assets) == 0 {
		return
	}
	g.cursor += delta
	if g.cursor < 0 {
		g.cursor = 0
	}
	if g.cursor >= len(g.assets) {
		g.cursor = len(g.assets) - 1
	}
	g.scrollToCursor()
}

func (g *Grid) scrollToCursor() {
	cols, rows := g.columns(), g.visibleRows()
	row := g.cursor / cols
	if row < g.offset {
		g.offset = row
	}
	if row >= g.offset+rows {
		g.offset = row - rows + 1
	}
	if g.offset < 0 {
		g.offset = 0
	}
}

// Update handles messages
func (g Grid) Update(msg tea.Msg) (Grid, tea.Cmd) {
	if !g.focused {
		return g, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		cols := g.columns()
		switch msg.String() {
		case "h", "left":
			g.move(-1)
		case "l", "right":
			g.move(1)
		case "k", "up":
			g.move(-cols)
		case "j", "down":
			g.move(cols)
		case "pgup", "ctrl+u":
			g.move(-cols * g.visibleRows())
		case "pgdown", "ctrl+d":
			g.move(cols * g.visibleRows())
		case "g", "home":
			g.move(-len(g.assets))
		case "G", "end":
			g.move(len(g.assets))
		}
	}
	return g, nil
}

// View renders the component
func (g Grid) View() string {
	style := styles.InactiveBorder
	if g.focused {
		style = styles.ActiveBorder
	}
	frameW, frameH := style.GetFrameSize()

	header := styles.TitleStyle.Render(g.title) + " " + styles.DimStyle.Render(g.countLabel())

	var body string
	if len(g.assets) == 0 {
		body = styles.DimStyle.Render("No photos")
	} else {
		body = g.renderRows()
	}

	return style.
		Width(g.width - frameW).
		Height(g.height - frameH).
		Render(lipgloss.JoinVertical(lipgloss.Left, header, body))
}

func (g Grid) countLabel() string {
	if g.exhausted || len(g.assets) >= g.total {
		return fmt.Sprintf("(%d)", len(g.assets))
	}
	return fmt.Sprintf("(%d of %d)", len(g.assets), g.total)
}

func (g Grid) renderRows() string {
	cols, rows := g.columns(), g.visibleRows()
	var lines []string
	for r := g.offset; r < g.offset+rows; r++ {
		start := r * cols
		if start >= len(g.assets) {
			break
		}
		end := start + cols
		if end > len(g.assets) {
			end = len(g.assets)
		}
		cells := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			cells = append(cells, g.renderCell(i))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return strings.Join(lines, "\n")
}

func (g Grid) renderCell(i int) string {
	a := g.assets[i]
	name := truncate(baseName(a.ID), CellWidth-3)
	date := "undated"
	if a.CreatedAt != nil {
		date = a.CreatedAt.Local().Format("2006-01-02")
	}
	badge := a.Badge()

	style := styles.NormalItemStyle
	if i == g.cursor && g.focused {
		style = styles.SelectedItemStyle
	}
	return style.Width(CellWidth - 1).Render(strings.Join([]string{name, date, badge}, "\n"))
}

func baseName(id string) string {
	if i := strings.LastIndex(id, "/"); i >= 0 {
		return id[i+1:]
	}
	return id
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return string(r[:max-1]) + "…"
}
