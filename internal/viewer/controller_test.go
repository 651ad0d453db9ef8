package viewer

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/glimpse/internal/broker"
	"github.com/mmcdole/glimpse/internal/domain"
	"github.com/mmcdole/glimpse/internal/log"
	"github.com/mmcdole/glimpse/internal/source/memory"
)

func testAssets(n int) []domain.Asset {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	assets := make([]domain.Asset, n)
	for i := range assets {
		ts := base.Add(-time.Duration(i) * time.Hour)
		assets[i] = domain.Asset{ID: fmt.Sprintf("a%d", i), AlbumID: "trip", CreatedAt: &ts, Width: 8, Height: 6}
	}
	return assets
}

func newTestController(t *testing.T, n int, start string, opts ...Option) (*Controller, *memory.Provider, *broker.Broker) {
	t.Helper()
	provider := memory.New()
	provider.AddAlbum("trip", "Trip")
	assets := testAssets(n)
	provider.AddAssets(assets...)
	b := broker.New(provider, 2, log.NullLogger())

	opts = append([]Option{WithViewport(390, 844)}, opts...)
	c, err := New(assets, start, b, log.NullLogger(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c, provider, b
}

func waitFor(t *testing.T, c *Controller, what string, cond func(State) bool) State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := c.State(); cond(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; state %+v", what, c.State())
	return State{}
}

func idle(s State) bool { return s.Phase == PhaseIdle }

func TestNewUnknownStart(t *testing.T) {
	b := broker.New(memory.New(), 1, log.NullLogger())
	_, err := New(testAssets(2), "missing", b, log.NullLogger())
	if !errors.Is(err, domain.ErrAssetNotFound) {
		t.Fatalf("err = %v, want ErrAssetNotFound", err)
	}
}

func TestOpenResolvesMedia(t *testing.T) {
	c, _, _ := newTestController(t, 3, "a1")

	s := c.State()
	if s.CurrentIndex != 1 || s.Count != 3 || s.ZoomScale != 1 {
		t.Fatalf("initial state %+v", s)
	}

	s = waitFor(t, c, "media", idle)
	img, ok := s.Media.(domain.DecodedImage)
	if !ok {
		t.Fatalf("media = %T, want DecodedImage", s.Media)
	}
	if img.Width != 8 || img.Height != 6 {
		t.Errorf("dimensions = %dx%d, want 8x6", img.Width, img.Height)
	}
}

func TestSwipeThreshold(t *testing.T) {
	c, _, _ := newTestController(t, 3, "a1")
	waitFor(t, c, "media", idle)

	if got := c.Swipe(-99); got != SwipeSnapBack {
		t.Errorf("Swipe(-99) = %v, want snap-back", got)
	}
	if got := c.Swipe(100); got != SwipeSnapBack {
		t.Errorf("Swipe(100) = %v, want snap-back at exactly the threshold", got)
	}
	if c.State().CurrentIndex != 1 {
		t.Fatalf("index moved on a short swipe")
	}

	if got := c.Swipe(-101); got != SwipeNavigated {
		t.Fatalf("Swipe(-101) = %v, want navigated", got)
	}
	s := c.State()
	if s.CurrentIndex != 2 || s.Direction != DirectionForward {
		t.Errorf("after forward swipe: index %d direction %v", s.CurrentIndex, s.Direction)
	}
	waitFor(t, c, "media", idle)

	if got := c.Swipe(150); got != SwipeNavigated {
		t.Fatalf("Swipe(150) = %v, want navigated", got)
	}
	if s := c.State(); s.CurrentIndex != 1 || s.Direction != DirectionBackward {
		t.Errorf("after backward swipe: index %d direction %v", s.CurrentIndex, s.Direction)
	}
}

func TestSwipeAtEdges(t *testing.T) {
	c, _, _ := newTestController(t, 2, "a0")
	waitFor(t, c, "media", idle)

	if got := c.Swipe(500); got != SwipeSnapBack {
		t.Errorf("backward at first asset = %v, want snap-back", got)
	}
	if got := c.Swipe(-500); got != SwipeNavigated {
		t.Fatalf("forward = %v, want navigated", got)
	}
	waitFor(t, c, "media", idle)
	if got := c.Swipe(-500); got != SwipeSnapBack {
		t.Errorf("forward at last asset = %v, want snap-back", got)
	}
	if c.State().CurrentIndex != 1 {
		t.Errorf("index = %d, want 1", c.State().CurrentIndex)
	}
}

func TestNavigationDisabledWhileLoading(t *testing.T) {
	provider := memory.New()
	provider.AddAlbum("trip", "Trip")
	assets := testAssets(3)
	provider.AddAssets(assets...)
	provider.HoldResolves()
	b := broker.New(provider, 2, log.NullLogger())

	c, err := New(assets, "a1", b, log.NullLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if got := c.Swipe(-200); got != SwipeIgnored {
		t.Errorf("swipe while loading = %v, want ignored", got)
	}
	c.Pinch(3)
	if z := c.State().ZoomScale; z != 1 {
		t.Errorf("pinch while loading zoomed to %v", z)
	}

	provider.Release("a1")
	waitFor(t, c, "media", idle)
	if got := c.Swipe(-200); got != SwipeNavigated {
		t.Errorf("swipe after load = %v, want navigated", got)
	}
}

func TestZoomAndPan(t *testing.T) {
	c, _, _ := newTestController(t, 3, "a1")
	waitFor(t, c, "media", idle)

	c.Pinch(2)
	s := c.State()
	if s.ZoomScale != 2 || s.Phase != PhaseZoomed {
		t.Fatalf("after pinch: zoom %v phase %v", s.ZoomScale, s.Phase)
	}

	c.Pan(1000, -1000)
	if p := c.State().Pan; p.X != 195 || p.Y != -422 {
		t.Errorf("pan = %+v, want clamped to (195,-422)", p)
	}

	if got := c.Swipe(-300); got != SwipePanned {
		t.Errorf("swipe while zoomed = %v, want panned", got)
	}
	s = c.State()
	if s.CurrentIndex != 1 {
		t.Errorf("zoomed swipe navigated to %d", s.CurrentIndex)
	}
	if s.Pan.X != -105 {
		t.Errorf("pan.X = %v, want -105", s.Pan.X)
	}

	c.DoubleTap()
	s = c.State()
	if s.ZoomScale != 1 || s.Pan != (Point{}) || s.Phase != PhaseIdle {
		t.Errorf("after double tap: %+v", s)
	}

	c.Pan(10, 10)
	if p := c.State().Pan; p != (Point{}) {
		t.Errorf("pan at zoom 1 = %+v, want zero", p)
	}
}

func TestPinchClamp(t *testing.T) {
	c, _, _ := newTestController(t, 1, "a0")
	waitFor(t, c, "media", idle)

	c.Pinch(20)
	if z := c.State().ZoomScale; z != MaxZoom {
		t.Errorf("zoom = %v, want %v", z, MaxZoom)
	}
	c.Pan(50, 50)
	c.EndPinch()

	c.Pinch(0.01)
	s := c.State()
	if s.ZoomScale != 1 || s.Pan != (Point{}) || s.Phase != PhaseIdle {
		t.Errorf("pinch below 1: %+v", s)
	}

	c.Pinch(-1)
	if z := c.State().ZoomScale; z != 1 {
		t.Errorf("negative factor changed zoom to %v", z)
	}
}

func TestPinchIsRelativeToGestureStart(t *testing.T) {
	c, _, _ := newTestController(t, 1, "a0")
	waitFor(t, c, "media", idle)

	c.Pinch(2)
	c.Pinch(3)
	if z := c.State().ZoomScale; z != 3 {
		t.Errorf("zoom within one gesture = %v, want 3", z)
	}
	c.EndPinch()
	c.Pinch(2)
	if z := c.State().ZoomScale; z != 6 {
		t.Errorf("zoom after second gesture = %v, want 6", z)
	}
}

func TestNavigationResetsZoom(t *testing.T) {
	c, _, _ := newTestController(t, 3, "a1")
	waitFor(t, c, "media", idle)

	c.Pinch(2)
	c.DoubleTap()
	c.Swipe(-200)
	s := c.State()
	if s.ZoomScale != 1 || s.Pan != (Point{}) {
		t.Errorf("zoom carried across navigation: %+v", s)
	}
	if s.Phase != PhaseTransitioning && s.Phase != PhaseIdle {
		t.Errorf("phase = %v", s.Phase)
	}
}

func TestPrefetchIsConsumed(t *testing.T) {
	c, provider, _ := newTestController(t, 3, "a1")
	waitFor(t, c, "media", idle)

	c.Swipe(-200)
	waitFor(t, c, "media", idle)
	if n := provider.ResolveCalls("a2"); n != 1 {
		t.Errorf("a2 resolved %d times, want 1", n)
	}
}

func TestInFlightPrefetchIsConsumed(t *testing.T) {
	provider := memory.New()
	provider.AddAlbum("trip", "Trip")
	assets := testAssets(3)
	provider.AddAssets(assets...)
	provider.HoldResolves()
	b := broker.New(provider, 2, log.NullLogger())

	c, err := New(assets, "a1", b, log.NullLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	provider.Release("a1")
	waitFor(t, c, "media", idle)
	deadline := time.Now().Add(2 * time.Second)
	for provider.ResolveCalls("a2") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	c.Swipe(-200)
	if s := c.State(); s.Asset.ID != "a2" || !s.Pending() {
		t.Fatalf("after swipe: asset %s phase %v", s.Asset.ID, s.Phase)
	}
	if n := provider.ResolveCalls("a2"); n != 1 {
		t.Errorf("a2 resolved %d times before release, want 1", n)
	}

	provider.Release("a2")
	waitFor(t, c, "media", idle)
	if n := provider.ResolveCalls("a2"); n != 1 {
		t.Errorf("a2 resolved %d times, want 1", n)
	}
}

func TestFailureAndRetry(t *testing.T) {
	provider := memory.New()
	provider.AddAlbum("trip", "Trip")
	assets := testAssets(2)
	provider.AddAssets(assets...)
	provider.FailResolve("a0", errors.New("corrupt file"))
	b := broker.New(provider, 2, log.NullLogger())

	c, err := New(assets, "a0", b, log.NullLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	s := waitFor(t, c, "failure", idle)
	if !errors.Is(s.Failure, domain.ErrDecodeFailed) {
		t.Fatalf("failure = %v, want ErrDecodeFailed", s.Failure)
	}
	if s.Media != nil {
		t.Errorf("media = %v, want nil", s.Media)
	}

	c.Pinch(2)
	c.EndPinch()
	if s := c.State(); s.ZoomScale != 1 || s.Phase != PhaseIdle {
		t.Errorf("pinch zoomed a failed asset: zoom %v phase %v", s.ZoomScale, s.Phase)
	}

	time.Sleep(20 * time.Millisecond)
	if n := provider.ResolveCalls("a0"); n != 1 {
		t.Errorf("failed fetch retried implicitly: %d calls", n)
	}

	provider.FailResolve("a0", nil)
	if !c.Retry() {
		t.Fatal("Retry returned false")
	}
	s = waitFor(t, c, "media", func(s State) bool { return s.Phase == PhaseIdle && s.Media != nil })
	if s.Failure != nil {
		t.Errorf("failure survived retry: %v", s.Failure)
	}
	if c.Retry() {
		t.Error("Retry without failure returned true")
	}
}

func TestSetSequenceKeepsCurrentAsset(t *testing.T) {
	c, _, _ := newTestController(t, 3, "a1")
	waitFor(t, c, "media", idle)

	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := domain.Asset{ID: "fresh", AlbumID: "trip", CreatedAt: &ts}
	c.SetSequence(append([]domain.Asset{newer}, testAssets(3)...))

	s := c.State()
	if s.CurrentIndex != 2 || s.Asset.ID != "a1" || s.Count != 4 {
		t.Errorf("after prepend: index %d asset %s count %d", s.CurrentIndex, s.Asset.ID, s.Count)
	}
	if s.Phase != PhaseIdle || s.Media == nil {
		t.Errorf("prepend disturbed displayed media: %+v", s)
	}
}

func TestSetSequenceCurrentRemoved(t *testing.T) {
	c, _, _ := newTestController(t, 3, "a2")
	waitFor(t, c, "media", idle)

	all := testAssets(3)
	c.SetSequence(all[:2])

	s := c.State()
	if s.CurrentIndex != 1 || s.Asset.ID != "a1" {
		t.Fatalf("after removal: index %d asset %s", s.CurrentIndex, s.Asset.ID)
	}
	if s.Direction != DirectionNone {
		t.Errorf("direction = %v, want none", s.Direction)
	}
	waitFor(t, c, "replacement media", func(s State) bool { return s.Phase == PhaseIdle && s.Media != nil })
}

func TestCloseCancelsOutstanding(t *testing.T) {
	provider := memory.New()
	provider.AddAlbum("trip", "Trip")
	assets := testAssets(3)
	provider.AddAssets(assets...)
	provider.HoldResolves()
	b := broker.New(provider, 2, log.NullLogger())

	c, err := New(assets, "a1", b, log.NullLogger())
	if err != nil {
		t.Fatal(err)
	}
	c.Close()

	if cur, pf := b.Outstanding(); cur != 0 || pf != 0 {
		t.Errorf("outstanding after close = (%d,%d)", cur, pf)
	}
	if !c.State().Closed {
		t.Error("state not marked closed")
	}
	if got := c.Swipe(-300); got != SwipeIgnored {
		t.Errorf("swipe after close = %v", got)
	}
	c.Close()
}

func TestObserverSeesTransitions(t *testing.T) {
	var mu sync.Mutex
	var phases []Phase
	obs := ObserverFunc(func(s State) {
		mu.Lock()
		phases = append(phases, s.Phase)
		mu.Unlock()
	})

	c, _, _ := newTestController(t, 2, "a0", WithObserver(obs))
	waitFor(t, c, "media", idle)
	c.Swipe(-200)
	waitFor(t, c, "media", idle)

	mu.Lock()
	defer mu.Unlock()
	want := []Phase{PhaseLoading, PhaseIdle, PhaseTransitioning, PhaseIdle}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}
}

func TestCustomSwipeThreshold(t *testing.T) {
	c, _, _ := newTestController(t, 2, "a0", WithSwipeThreshold(40))
	waitFor(t, c, "media", idle)
	if got := c.Swipe(-41); got != SwipeNavigated {
		t.Errorf("Swipe(-41) with threshold 40 = %v", got)
	}
}

func TestSwipeBackwardFromThirdAsset(t *testing.T) {
	c, _, _ := newTestController(t, 4, "a2")
	waitFor(t, c, "media", idle)

	c.Swipe(99)
	if c.State().CurrentIndex != 2 {
		t.Fatalf("Swipe(99) moved to %d", c.State().CurrentIndex)
	}
	c.Swipe(101)
	s := c.State()
	if s.CurrentIndex != 1 || s.Direction != DirectionBackward {
		t.Errorf("Swipe(101): index %d direction %v, want 1/backward", s.CurrentIndex, s.Direction)
	}
}
