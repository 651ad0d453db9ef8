package viewer

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/mmcdole/glimpse/internal/broker"
	"github.com/mmcdole/glimpse/internal/domain"
)

// MediaBroker is the subset of the request broker the viewer drives
type MediaBroker interface {
	Fetch(asset domain.Asset) *broker.Request
	Prefetch(asset domain.Asset) *broker.Token
	Cancel(token *broker.Token)
	CancelAll()
}

// Controller is the viewer's navigation state machine over an asset sequence.
type Controller struct {
	broker    MediaBroker
	observer  Observer
	logger    *slog.Logger
	threshold float64

	mu        sync.Mutex
	assets    []domain.Asset
	state     State
	viewport  Size
	pinching  bool
	pinchBase float64
	current   *broker.Request
	closed    bool
}

// Option configures a Controller
type Option func(*Controller)

// WithSwipeThreshold overrides DefaultSwipeThreshold
func WithSwipeThreshold(t float64) Option {
	return func(c *Controller) {
		if t > 0 {
			c.threshold = t
		}
	}
}

// WithViewport sets the viewport used to bound panning
func WithViewport(width, height float64) Option {
	return func(c *Controller) { c.viewport = Size{Width: width, Height: height} }
}

// WithObserver registers the receiver of state snapshots
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observer = o
		}
	}
}

// New opens the viewer on the asset with startID and starts fetching it.
func New(assets []domain.Asset, startID string, b MediaBroker, logger *slog.Logger, opts ...Option) (*Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := indexOf(assets, startID)
	if start < 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrAssetNotFound, startID)
	}

	c := &Controller{
		broker:    b,
		observer:  noOpObserver{},
		logger:    logger,
		threshold: DefaultSwipeThreshold,
		assets:    append([]domain.Asset(nil), assets...),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = State{
		CurrentIndex: start,
		Count:        len(c.assets),
		Asset:        c.assets[start],
		ZoomScale:    1,
		Phase:        PhaseLoading,
	}
	c.fetchLocked(DirectionForward)
	c.logger.Info("viewer opened", "assetID", startID, "index", start, "count", len(c.assets))
	c.emitLocked()
	return c, nil
}

func indexOf(assets []domain.Asset, id string) int {
	for i, a := range assets {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// State returns a snapshot of the viewer
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Assets returns a copy of the sequence
func (c *Controller) Assets() []domain.Asset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Asset(nil), c.assets...)
}

// === Gestures ===

// Swipe interprets a released horizontal drag. Zoomed in, it pans. At zoom 1
// it navigates when |deltaX| exceeds the threshold and the target is in range:
// positive deltaX goes backward, negative goes forward.
func (c *Controller) Swipe(deltaX float64) SwipeOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || math.IsNaN(deltaX) {
		return SwipeIgnored
	}
	if c.state.ZoomScale > 1 {
		c.panLocked(deltaX, 0)
		c.emitLocked()
		return SwipePanned
	}
	if c.state.Pending() {
		c.logger.Debug("swipe ignored while loading", "index", c.state.CurrentIndex)
		return SwipeIgnored
	}

	idx := c.state.CurrentIndex
	switch {
	case deltaX > c.threshold && idx > 0:
		c.navigateLocked(DirectionBackward, idx-1)
	case deltaX < -c.threshold && idx < len(c.assets)-1:
		c.navigateLocked(DirectionForward, idx+1)
	default:
		return SwipeSnapBack
	}
	c.emitLocked()
	return SwipeNavigated
}

func (c *Controller) navigateLocked(dir Direction, index int) {
	if c.current != nil {
		c.broker.Cancel(c.current.Token)
		c.current = nil
	}
	c.state.CurrentIndex = index
	c.state.Asset = c.assets[index]
	c.state.Direction = dir
	c.state.Phase = PhaseTransitioning
	c.resetZoomLocked()
	c.fetchLocked(dir)
	c.logger.Debug("navigated", "direction", dir.String(), "index", index, "assetID", c.state.Asset.ID)
}

// fetchLocked fetches the current asset and prefetches its neighbour in dir
func (c *Controller) fetchLocked(dir Direction) {
	c.state.Media = nil
	c.state.Failure = nil

	req := c.broker.Fetch(c.state.Asset)
	c.current = req
	go c.await(req)

	next := c.state.CurrentIndex + 1
	if dir == DirectionBackward {
		next = c.state.CurrentIndex - 1
	}
	if next >= 0 && next < len(c.assets) {
		c.broker.Prefetch(c.assets[next])
	}
}

// await applies req's result if it is still the current request
func (c *Controller) await(req *broker.Request) {
	<-req.Done()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.current != req {
		return
	}

	switch p := req.Payload().(type) {
	case domain.Failed:
		if errors.Is(p.Reason, domain.ErrCancelled) {
			return
		}
		c.state.Failure = p.Reason
		c.logger.Warn("media unavailable", "assetID", req.Asset.ID, "error", p.Reason)
	default:
		c.state.Media = p
	}
	c.state.Phase = PhaseIdle
	c.emitLocked()
}

// Pinch applies a gesture scale factor relative to the zoom captured when
// the gesture began. Ignored until media is resolved, and on a failed asset.
func (c *Controller) Pinch(factor float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state.Pending() || c.state.Media == nil || factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return
	}
	if !c.pinching {
		c.pinching = true
		c.pinchBase = c.state.ZoomScale
	}

	c.state.ZoomScale = clamp(c.pinchBase*factor, 1, MaxZoom)
	if c.state.ZoomScale == 1 {
		c.state.Pan = Point{}
		c.state.Phase = PhaseIdle
	} else {
		c.state.Phase = PhaseZoomed
		c.state.Pan = c.clampPanLocked(c.state.Pan)
	}
	c.emitLocked()
}

// EndPinch ends the current pinch gesture
func (c *Controller) EndPinch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinching = false
}

// Pan moves a zoomed image, keeping its bounds within the viewport
func (c *Controller) Pan(dx, dy float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state.ZoomScale <= 1 {
		return
	}
	c.panLocked(dx, dy)
	c.emitLocked()
}

// DoubleTap resets zoom and pan
func (c *Controller) DoubleTap() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.resetZoomLocked()
	if c.state.Phase == PhaseZoomed {
		c.state.Phase = PhaseIdle
	}
	c.emitLocked()
}

func (c *Controller) resetZoomLocked() {
	c.pinching = false
	c.state.ZoomScale = 1
	c.state.Pan = Point{}
}

func (c *Controller) panLocked(dx, dy float64) {
	c.state.Pan = c.clampPanLocked(Point{X: c.state.Pan.X + dx, Y: c.state.Pan.Y + dy})
}

// clampPanLocked bounds the offset so the scaled image still covers the
// viewport: at most (zoom-1)*size/2 in each direction.
func (c *Controller) clampPanLocked(p Point) Point {
	maxX := (c.state.ZoomScale - 1) * c.viewport.Width / 2
	maxY := (c.state.ZoomScale - 1) * c.viewport.Height / 2
	return Point{X: clamp(p.X, -maxX, maxX), Y: clamp(p.Y, -maxY, maxY)}
}

// SetViewport updates the viewport and re-bounds the pan offset
func (c *Controller) SetViewport(width, height float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = Size{Width: width, Height: height}
	c.state.Pan = c.clampPanLocked(c.state.Pan)
	c.emitLocked()
}

// === Sequence mutation ===

// SetSequence replaces the sequence, e.g. after a page load or refresh. The
// current asset is located by identity, else the index is clamped. No
// transition direction is set; if the displayed asset changed it is fetched.
func (c *Controller) SetSequence(assets []domain.Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	previous := c.state.Asset
	c.assets = append([]domain.Asset(nil), assets...)
	c.state.Count = len(c.assets)

	if len(c.assets) == 0 {
		if c.current != nil {
			c.broker.Cancel(c.current.Token)
			c.current = nil
		}
		c.state.CurrentIndex = 0
		c.state.Asset = domain.Asset{}
		c.state.Media = nil
		c.state.Phase = PhaseLoading
		c.resetZoomLocked()
		c.emitLocked()
		return
	}

	if i := indexOf(c.assets, previous.ID); i >= 0 {
		c.state.CurrentIndex = i
		c.emitLocked()
		return
	}

	c.state.CurrentIndex = int(clamp(float64(c.state.CurrentIndex), 0, float64(len(c.assets)-1)))
	c.state.Asset = c.assets[c.state.CurrentIndex]
	c.state.Direction = DirectionNone
	c.state.Phase = PhaseLoading
	c.resetZoomLocked()
	if c.current != nil {
		c.broker.Cancel(c.current.Token)
		c.current = nil
	}
	c.fetchLocked(DirectionForward)
	c.logger.Debug("current asset removed, showing neighbour", "previous", previous.ID, "assetID", c.state.Asset.ID)
	c.emitLocked()
}

// Retry issues a new fetch after a failure. It never happens implicitly.
func (c *Controller) Retry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state.Failure == nil || len(c.assets) == 0 {
		return false
	}
	c.state.Phase = PhaseLoading
	c.fetchLocked(DirectionForward)
	c.emitLocked()
	return true
}

// Close cancels every outstanding request. Gestures afterwards are no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.current = nil
	c.broker.CancelAll()
	c.state.Closed = true
	c.logger.Info("viewer closed", "assetID", c.state.Asset.ID)
	c.emitLocked()
}

func (c *Controller) emitLocked() {
	c.observer.OnViewerChanged(c.state)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
