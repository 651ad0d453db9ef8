package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/glimpse/internal/catalog"
	"github.com/mmcdole/glimpse/internal/domain"
	"github.com/mmcdole/glimpse/internal/session"
	"github.com/mmcdole/glimpse/internal/tui/components"
	"github.com/mmcdole/glimpse/internal/tui/styles"
	"github.com/mmcdole/glimpse/internal/viewer"
)

// Focus identifies the pane receiving keys in the browser
type Focus int

const (
	FocusSidebar Focus = iota
	FocusGrid
)

// Keyboard stand-ins for touch gestures, in viewport units
const (
	SwipeDistance = 150.0 // Well past the default threshold
	PanStep       = 40.0
	ZoomStep      = 1.25
)

// Layout
const (
	SidebarPercent  = 28
	MinSidebarWidth = 20

	// Vertical layout: single footer line
	ChromeHeight = 1
)

// Opener launches media in an external application. *player.Launcher
// implements it.
type Opener interface {
	Open(location string, video bool) error
}

// Model is the main Bubble Tea model for the application
type Model struct {
	ctx       context.Context
	Session   *session.Session
	events    <-chan tea.Msg
	opener    Opener
	lookahead int

	// UI Components
	Sidebar components.Sidebar
	Grid    components.Grid
	Pane    components.ViewerPane
	Viewer  *viewer.Controller // Non-nil while the full-screen viewer is open

	// Album titles by ID, for the grid header
	titles map[string]string

	// Dimensions
	Width  int
	Height int
	Ready  bool

	// UI state
	Focus        Focus
	StatusMsg    string
	StatusIsErr  bool
	ShowHelp     bool
	SpinnerFrame int
	loadingMore  bool
}

// NewModel creates the application model. events must be the channel the
// session's ChannelObserver writes to. opener may be nil.
func NewModel(ctx context.Context, s *session.Session, events <-chan tea.Msg, opts session.Options, opener Opener) Model {
	lookahead := opts.Lookahead
	if lookahead <= 0 {
		lookahead = 10
	}
	m := Model{
		ctx:       ctx,
		Session:   s,
		events:    events,
		opener:    opener,
		lookahead: lookahead,
		Sidebar:   components.NewSidebar(),
		Grid:      components.NewGrid(),
		Pane:      components.NewViewerPane(opts.Viewport),
		titles:    map[string]string{domain.AllAssetsID: "All Photos"},
		Focus:     FocusGrid,
	}
	m.applyFocus()
	return m
}

// Init initializes the application
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		StartCmd(m.ctx, m.Session),
		listenCmd(m.events),
		TickCmd(100*time.Millisecond),
	)
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Ready = true
		m.updateLayout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case TickMsg:
		m.SpinnerFrame++
		m.Pane.SetSpinnerFrame(m.SpinnerFrame)
		return m, TickCmd(100 * time.Millisecond)

	case StartedMsg:
		m.setAlbums(msg.Albums, false, nil)
		return m, nil

	case AlbumsLoadedMsg:
		m.setAlbums(msg.Albums, msg.WithHidden, msg.VisibleByID)
		return m, nil

	case SourceSelectedMsg:
		return m, nil

	case PageLoadedMsg:
		m.loadingMore = false
		return m, nil

	case RefreshedMsg:
		status := fmt.Sprintf("%d new", msg.Result.Prepended)
		if msg.Result.FellBack {
			status = "Album no longer exists, showing " + m.titleFor(msg.Result.Source)
		}
		statusCmd := m.setStatus(status, false)
		return m, tea.Batch(statusCmd, LoadAlbumsCmd(m.ctx, m.Session, m.Sidebar.Editing()))

	case VisibilityChangedMsg:
		return m, LoadAlbumsCmd(m.ctx, m.Session, m.Sidebar.Editing())

	case CatalogEventMsg:
		m.applyCatalogEvent(msg.Event)
		return m, listenCmd(m.events)

	case ViewerStateMsg:
		m.syncViewer()
		return m, listenCmd(m.events)

	case ErrMsg:
		m.loadingMore = false
		statusCmd := m.setStatus(msg.Error(), true)
		return m, statusCmd

	case ClearStatusMsg:
		m.StatusMsg = ""
		m.StatusIsErr = false
		return m, nil
	}

	return m, nil
}

func (m *Model) setAlbums(albums []domain.Album, editing bool, visibility map[string]bool) {
	for _, a := range albums {
		m.titles[a.ID] = a.DisplayTitle()
	}
	m.Sidebar.SetAlbums(albums, editing, visibility)
	if src, ok := m.Session.Catalog().Source(); ok {
		m.Sidebar.SetCurrent(src.ID())
	}
}

func (m Model) titleFor(src domain.Source) string {
	if t, ok := m.titles[src.ID()]; ok {
		return t
	}
	return src.ID()
}

// applyCatalogEvent mirrors the catalog into the grid. A reset means the
// session already closed any open viewer.
func (m *Model) applyCatalogEvent(ev catalog.Event) {
	if ev.Kind == catalog.EventReset {
		m.Grid.Reset(m.titleFor(ev.Source))
		m.Sidebar.SetCurrent(ev.Source.ID())
		m.Viewer = nil
		m.loadingMore = false
	}
	m.Grid.SetAssets(ev.Assets, ev.Total, m.Session.Catalog().Exhausted())
}

// syncViewer re-reads the open viewer; snapshots on the channel may be stale
func (m *Model) syncViewer() {
	if m.Viewer == nil {
		return
	}
	st := m.Viewer.State()
	if st.Closed {
		m.Viewer = nil
		return
	}
	m.Pane.SetState(st)
	m.Grid.Select(st.Asset.ID)
}

func (m *Model) setStatus(msg string, isErr bool) tea.Cmd {
	m.StatusMsg = msg
	m.StatusIsErr = isErr
	return ClearStatusCmd(4 * time.Second)
}

func (m *Model) applyFocus() {
	m.Sidebar.SetFocused(m.Focus == FocusSidebar)
	m.Grid.SetFocused(m.Focus == FocusGrid)
}

// handleKeyMsg routes keys to the viewer, the filter input or the browser
func (m Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.Viewer != nil {
		return m.handleViewerKey(msg)
	}
	if m.Sidebar.Filtering() {
		return m.handleFilterKey(msg)
	}

	switch {
	case key.Matches(msg, Keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, Keys.Help):
		m.ShowHelp = !m.ShowHelp
		return m, nil
	case key.Matches(msg, Keys.Tab):
		if m.Focus == FocusGrid {
			m.Focus = FocusSidebar
		} else {
			m.Focus = FocusGrid
		}
		m.applyFocus()
		return m, nil
	case key.Matches(msg, Keys.Filter):
		m.Focus = FocusSidebar
		m.applyFocus()
		focusCmd := m.Sidebar.StartFilter()
		return m, focusCmd
	case key.Matches(msg, Keys.EditVisibility):
		m.Focus = FocusSidebar
		m.applyFocus()
		return m, LoadAlbumsCmd(m.ctx, m.Session, !m.Sidebar.Editing())
	case key.Matches(msg, Keys.Refresh):
		statusCmd := m.setStatus("Refreshing...", false)
		return m, tea.Batch(statusCmd, RefreshCmd(m.ctx, m.Session))
	case key.Matches(msg, Keys.Escape):
		if m.ShowHelp {
			m.ShowHelp = false
			return m, nil
		}
		m.Sidebar.StopFilter(true)
		return m, nil
	}

	if m.Focus == FocusSidebar {
		return m.handleSidebarKey(msg)
	}
	return m.handleGridKey(msg)
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.Sidebar.StopFilter(true)
		return m, nil
	case "enter":
		m.Sidebar.StopFilter(false)
		return m.activateSidebarItem()
	}
	var cmd tea.Cmd
	m.Sidebar, cmd = m.Sidebar.Update(msg)
	return m, cmd
}

func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, Keys.Enter):
		return m.activateSidebarItem()
	case key.Matches(msg, Keys.Toggle) && m.Sidebar.Editing():
		return m.toggleVisibility()
	}
	var cmd tea.Cmd
	m.Sidebar, cmd = m.Sidebar.Update(msg)
	return m, cmd
}

// activateSidebarItem browses the highlighted source, or toggles it while
// editing visibility
func (m Model) activateSidebarItem() (tea.Model, tea.Cmd) {
	if m.Sidebar.Editing() {
		return m.toggleVisibility()
	}
	item, ok := m.Sidebar.SelectedItem()
	if !ok {
		return m, nil
	}
	m.Focus = FocusGrid
	m.applyFocus()
	if item.All {
		return m, SelectAlbumCmd(m.ctx, m.Session, "")
	}
	return m, SelectAlbumCmd(m.ctx, m.Session, item.Album.ID)
}

func (m Model) toggleVisibility() (tea.Model, tea.Cmd) {
	item, ok := m.Sidebar.SelectedItem()
	if !ok || item.All {
		return m, nil
	}
	return m, SetVisibilityCmd(m.ctx, m.Session, item.Album.ID, !item.Visible)
}

func (m Model) handleGridKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, Keys.Enter) {
		asset, ok := m.Grid.Selected()
		if !ok {
			return m, nil
		}
		v, err := m.Session.OpenViewer(asset.ID)
		if err != nil {
			statusCmd := m.setStatus("open: "+err.Error(), true)
			return m, statusCmd
		}
		m.Viewer = v
		m.Pane.SetState(v.State())
		return m, nil
	}

	var cmd tea.Cmd
	m.Grid, cmd = m.Grid.Update(msg)
	loadCmd := m.maybeLoadMore()
	return m, tea.Batch(cmd, loadCmd)
}

// maybeLoadMore requests the next page when the grid cursor nears the end
func (m *Model) maybeLoadMore() tea.Cmd {
	if m.loadingMore || !m.Session.Catalog().NearEnd(m.Grid.Cursor(), m.lookahead) {
		return nil
	}
	m.loadingMore = true
	return LoadMoreCmd(m.ctx, m.Session)
}

// handleViewerKey translates keys into viewer gestures
func (m Model) handleViewerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	v := m.Viewer
	zoomed := v.State().ZoomScale > 1

	switch {
	case key.Matches(msg, Keys.Escape), key.Matches(msg, Keys.Quit):
		m.Session.CloseViewer()
		m.Viewer = nil
		return m, nil
	case key.Matches(msg, Keys.Left):
		v.Swipe(SwipeDistance)
	case key.Matches(msg, Keys.Right):
		v.Swipe(-SwipeDistance)
	case zoomed && key.Matches(msg, Keys.PanUp):
		v.Pan(0, PanStep)
	case zoomed && key.Matches(msg, Keys.PanDown):
		v.Pan(0, -PanStep)
	case key.Matches(msg, Keys.ZoomIn):
		v.Pinch(ZoomStep)
		v.EndPinch()
	case key.Matches(msg, Keys.ZoomOut):
		v.Pinch(1 / ZoomStep)
		v.EndPinch()
	case key.Matches(msg, Keys.ResetZoom):
		v.DoubleTap()
	case key.Matches(msg, Keys.Retry):
		v.Retry()
	case key.Matches(msg, Keys.Open):
		return m, m.openExternal(v.State())
	}
	m.syncViewer()
	return m, nil
}

// openExternal launches resolved media; videos open in a player
func (m Model) openExternal(st viewer.State) tea.Cmd {
	if m.opener == nil {
		return nil
	}
	switch media := st.Media.(type) {
	case domain.PlayableVideo:
		return OpenExternalCmd(m.opener, media.Handle.Location(), true)
	case domain.DecodedImage:
		if st.Asset.Path != "" {
			return OpenExternalCmd(m.opener, st.Asset.Path, false)
		}
	}
	return nil
}

// updateLayout sizes the panes to the terminal
func (m *Model) updateLayout() {
	bodyH := m.Height - ChromeHeight
	if bodyH < 1 {
		bodyH = 1
	}
	sidebarW := m.Width * SidebarPercent / 100
	if sidebarW < MinSidebarWidth {
		sidebarW = MinSidebarWidth
	}
	if sidebarW > m.Width {
		sidebarW = m.Width
	}
	m.Sidebar.SetSize(sidebarW, bodyH)
	m.Grid.SetSize(m.Width-sidebarW, bodyH)
	m.Pane.SetSize(m.Width, bodyH)
}

// View renders the application
func (m Model) View() string {
	if !m.Ready {
		return "Loading..."
	}

	var body string
	switch {
	case m.Viewer != nil:
		body = m.Pane.View()
	case m.ShowHelp:
		body = lipgloss.Place(m.Width, m.Height-ChromeHeight, lipgloss.Center, lipgloss.Center, m.helpView())
	default:
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.Sidebar.View(), m.Grid.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, m.statusBar())
}

func (m Model) statusBar() string {
	bindings := BrowserHelp()
	if m.Viewer != nil {
		bindings = ViewerHelp()
	}
	hints := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		hints = append(hints, styles.HelpKeyStyle.Render(h.Key)+" "+styles.HelpDescStyle.Render(h.Desc))
	}
	right := strings.Join(hints, "  ")

	left := m.StatusMsg
	switch {
	case m.StatusIsErr:
		left = styles.ErrorStyle.Render(left)
	case m.loadingMore:
		left = styles.DimStyle.Render("loading more...")
	}

	gap := m.Width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return styles.StatusBarStyle.Render(left)
	}
	return styles.StatusBarStyle.Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) helpView() string {
	groups := [][]key.Binding{
		{Keys.Up, Keys.Down, Keys.Left, Keys.Right, Keys.Tab, Keys.Enter, Keys.Home, Keys.End},
		{Keys.Filter, Keys.EditVisibility, Keys.Toggle, Keys.Refresh, Keys.Quit},
		{Keys.ZoomIn, Keys.ZoomOut, Keys.ResetZoom, Keys.PanUp, Keys.PanDown, Keys.Retry, Keys.Open, Keys.Escape},
	}
	titles := []string{"Browse", "Albums", "Viewer"}

	var sections []string
	for i, g := range groups {
		lines := []string{styles.TitleStyle.Render(titles[i])}
		for _, b := range g {
			h := b.Help()
			lines = append(lines, fmt.Sprintf("%-8s %s", styles.HelpKeyStyle.Render(h.Key), styles.HelpDescStyle.Render(h.Desc)))
		}
		sections = append(sections, lipgloss.NewStyle().Padding(0, 2).Render(strings.Join(lines, "\n")))
	}
	return styles.ActiveBorder.Padding(1, 2).Render(lipgloss.JoinHorizontal(lipgloss.Top, sections...))
}
