package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/glimpse/internal/catalog"
	"github.com/mmcdole/glimpse/internal/session"
)

// Command factories for async operations

// StartCmd selects the initial source
func StartCmd(ctx context.Context, s *session.Session) tea.Cmd {
	return func() tea.Msg {
		albums, err := s.Start(ctx)
		if err != nil {
			return ErrMsg{Err: err, Context: "loading library"}
		}
		return StartedMsg{Albums: albums}
	}
}

// LoadAlbumsCmd lists albums for the sidebar; withHidden is used while
// editing visibility
func LoadAlbumsCmd(ctx context.Context, s *session.Session, withHidden bool) tea.Cmd {
	return func() tea.Msg {
		albums, err := s.Albums().ListAlbums(ctx, withHidden)
		if err != nil {
			return ErrMsg{Err: err, Context: "loading albums"}
		}
		return AlbumsLoadedMsg{
			Albums:      albums,
			WithHidden:  withHidden,
			VisibleByID: s.Albums().Visibility(),
		}
	}
}

// SelectAlbumCmd switches the browsed source to an album, or to all assets
// when albumID is empty
func SelectAlbumCmd(ctx context.Context, s *session.Session, albumID string) tea.Cmd {
	return func() tea.Msg {
		var (
			res catalog.PageResult
			err error
		)
		if albumID == "" {
			res, err = s.SelectAll(ctx)
		} else {
			res, err = s.SelectAlbum(ctx, albumID)
		}
		if err != nil {
			return ErrMsg{Err: err, Context: "opening album"}
		}
		return SourceSelectedMsg{Result: res}
	}
}

// LoadMoreCmd appends the next page
func LoadMoreCmd(ctx context.Context, s *session.Session) tea.Cmd {
	return func() tea.Msg {
		res, err := s.LoadMore(ctx)
		if err != nil {
			return ErrMsg{Err: err, Context: "loading more"}
		}
		return PageLoadedMsg{Result: res}
	}
}

// RefreshCmd merges newer assets into the catalog
func RefreshCmd(ctx context.Context, s *session.Session) tea.Cmd {
	return func() tea.Msg {
		res, err := s.Refresh(ctx)
		if err != nil {
			return ErrMsg{Err: err, Context: "refreshing"}
		}
		return RefreshedMsg{Result: res}
	}
}

// SetVisibilityCmd persists an album's visibility
func SetVisibilityCmd(ctx context.Context, s *session.Session, albumID string, visible bool) tea.Cmd {
	return func() tea.Msg {
		if err := s.SetAlbumVisibility(ctx, albumID, visible); err != nil {
			return ErrMsg{Err: err, Context: "saving visibility"}
		}
		return VisibilityChangedMsg{AlbumID: albumID, Visible: visible}
	}
}

// OpenExternalCmd hands the media to an external application
func OpenExternalCmd(o Opener, location string, video bool) tea.Cmd {
	return func() tea.Msg {
		if err := o.Open(location, video); err != nil {
			return ErrMsg{Err: err, Context: "opening " + location}
		}
		return nil
	}
}

// listenCmd reads the next observer message; the model re-issues it after
// every delivery
func listenCmd(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// TickCmd returns a command that sends a tick after a delay
func TickCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// ClearStatusCmd returns a command that clears status after a delay
func ClearStatusCmd(delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return ClearStatusMsg{}
	})
}
