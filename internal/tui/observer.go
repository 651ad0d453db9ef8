package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/glimpse/internal/catalog"
	"github.com/mmcdole/glimpse/internal/viewer"
)

// ChannelObserver adapts catalog and viewer observers to a channel for
// Bubble Tea.
type ChannelObserver struct {
	ch chan<- tea.Msg
}

// NewChannelObserver creates a new channel-based observer.
func NewChannelObserver(ch chan<- tea.Msg) *ChannelObserver {
	return &ChannelObserver{ch: ch}
}

// OnCatalogChanged forwards the event (non-blocking if full).
func (o *ChannelObserver) OnCatalogChanged(ev catalog.Event) {
	o.send(CatalogEventMsg{Event: ev})
}

// OnViewerChanged forwards the snapshot (non-blocking if full). The viewer
// calls this with its lock held.
func (o *ChannelObserver) OnViewerChanged(s viewer.State) {
	o.send(ViewerStateMsg{State: s})
}

func (o *ChannelObserver) send(msg tea.Msg) {
	select {
	case o.ch <- msg:
	default: // Non-blocking if channel full; the model re-reads state on the next event
	}
}
