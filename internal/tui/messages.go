package tui

import (
	"github.com/mmcdole/glimpse/internal/catalog"
	"github.com/mmcdole/glimpse/internal/domain"
	"github.com/mmcdole/glimpse/internal/viewer"
)

// Message types for the TUI

// ErrMsg represents an error
type ErrMsg struct {
	Err     error
	Context string
}

// Error implements the error interface
func (e ErrMsg) Error() string {
	if e.Context != "" {
		return e.Context + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// StartedMsg carries the visible albums once the session has selected its
// initial source
type StartedMsg struct {
	Albums []domain.Album
}

// AlbumsLoadedMsg carries the album list for the sidebar
type AlbumsLoadedMsg struct {
	Albums      []domain.Album
	WithHidden  bool
	VisibleByID map[string]bool
}

// SourceSelectedMsg signals that a source's first page has loaded
type SourceSelectedMsg struct {
	Result catalog.PageResult
}

// PageLoadedMsg signals that another page was appended
type PageLoadedMsg struct {
	Result catalog.PageResult
}

// RefreshedMsg signals a completed manual refresh
type RefreshedMsg struct {
	Result catalog.RefreshResult
}

// VisibilityChangedMsg signals a saved visibility toggle
type VisibilityChangedMsg struct {
	AlbumID string
	Visible bool
}

// CatalogEventMsg wraps a catalog event delivered from another goroutine
type CatalogEventMsg struct {
	Event catalog.Event
}

// ViewerStateMsg wraps a viewer snapshot delivered from another goroutine
type ViewerStateMsg struct {
	State viewer.State
}

// ClearStatusMsg clears the status line
type ClearStatusMsg struct{}

// TickMsg advances the loading spinner
type TickMsg struct{}
