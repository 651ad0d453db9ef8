package viewer

import (
	"github.com/mmcdole/glimpse/internal/domain"
)

// MaxZoom is the largest zoom scale a pinch can reach.
const MaxZoom = 10.0

// DefaultSwipeThreshold is the horizontal travel, in device-independent
// units, a released swipe must exceed to navigate.
const DefaultSwipeThreshold = 100.0

// Phase is the controller's state machine position
type Phase int

const (
	PhaseLoading       Phase = iota // Media for the current index is pending
	PhaseIdle                       // Media resolved (or failed) at zoom 1
	PhaseZoomed                     // Media resolved and zoomed in
	PhaseTransitioning              // Navigated; media for the new index is pending
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseIdle:
		return "idle"
	case PhaseZoomed:
		return "zoomed"
	case PhaseTransitioning:
		return "transitioning"
	default:
		return "unknown"
	}
}

// Direction of the last navigation, for presentation
type Direction int

const (
	DirectionNone Direction = iota
	DirectionForward
	DirectionBackward
)

func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "forward"
	case DirectionBackward:
		return "backward"
	default:
		return "none"
	}
}

// Point is a pan offset in device-independent units
type Point struct {
	X, Y float64
}

// Size is a viewport size in device-independent units
type Size struct {
	Width, Height float64
}

// State is a snapshot of the viewer. ZoomScale == 1 implies Pan == (0,0).
type State struct {
	CurrentIndex int
	Count        int
	Asset        domain.Asset
	ZoomScale    float64
	Pan          Point
	Direction    Direction
	Phase        Phase
	Media        domain.MediaPayload // nil while pending or after a failure
	Failure      error               // Set when the fetch resolved Failed
	Closed       bool
}

// Pending reports whether media for the current index is outstanding
func (s State) Pending() bool {
	return s.Phase == PhaseLoading || s.Phase == PhaseTransitioning
}

// SwipeOutcome reports how a released swipe was interpreted
type SwipeOutcome int

const (
	SwipeIgnored   SwipeOutcome = iota // Closed, or navigation disabled while loading
	SwipePanned                        // Zoomed in: the swipe moved the image
	SwipeNavigated                     // Moved to the adjacent asset
	SwipeSnapBack                      // Below threshold or out of range
)

func (o SwipeOutcome) String() string {
	switch o {
	case SwipePanned:
		return "panned"
	case SwipeNavigated:
		return "navigated"
	case SwipeSnapBack:
		return "snap-back"
	default:
		return "ignored"
	}
}

// Observer receives a snapshot after every state change. It is called with
// the controller locked and must not call back into it.
type Observer interface {
	OnViewerChanged(State)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(State)

func (f ObserverFunc) OnViewerChanged(s State) { f(s) }

type noOpObserver struct{}

func (noOpObserver) OnViewerChanged(State) {}
