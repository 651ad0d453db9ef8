package catalog

import "github.com/mmcdole/glimpse/internal/domain"

// EventKind identifies how the sequence changed
type EventKind int

const (
	EventReset    EventKind = iota // New source selected; sequence emptied
	EventAppended                  // Page appended at the tail
	EventMerged                    // Refresh reconciled the loaded prefix
)

func (k EventKind) String() string {
	switch k {
	case EventReset:
		return "reset"
	case EventAppended:
		return "appended"
	case EventMerged:
		return "merged"
	default:
		return "unknown"
	}
}

// Event is published after every sequence mutation.
type Event struct {
	Kind    EventKind
	Source  domain.Source
	Epoch   uint64
	Cursor  domain.Cursor
	Total   int
	Added   int
	Removed int
	Assets  []domain.Asset // Copy of the sequence after the change
}

// Observer receives catalog events. Called outside the catalog's lock.
type Observer interface {
	OnCatalogChanged(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) OnCatalogChanged(ev Event) { f(ev) }

// NoOpObserver discards events.
type NoOpObserver struct{}

func (NoOpObserver) OnCatalogChanged(Event) {}

func (c *Catalog) eventLocked(kind EventKind, added int) Event {
	return Event{
		Kind:   kind,
		Source: c.source,
		Epoch:  c.epoch,
		Cursor: c.cursor,
		Total:  c.total,
		Added:  added,
		Assets: c.snapshotLocked(),
	}
}
