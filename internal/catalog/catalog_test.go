package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mmcdole/glimpse/internal/album"
	"github.com/mmcdole/glimpse/internal/domain"
	"github.com/mmcdole/glimpse/internal/log"
	"github.com/mmcdole/glimpse/internal/source/memory"
)

var epochStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// makeAssets returns n assets of album, newest first, starting at newest.
func makeAssets(album, prefix string, n int, newest time.Time) []domain.Asset {
	out := make([]domain.Asset, n)
	for i := range out {
		ts := newest.Add(-time.Duration(i) * time.Minute)
		out[i] = domain.Asset{ID: fmt.Sprintf("%s%03d", prefix, i), AlbumID: album, CreatedAt: &ts}
	}
	return out
}

func newLibrary(n int) *memory.Provider {
	p := memory.New()
	p.AddAlbum("trip", "Trip")
	p.AddAssets(makeAssets("trip", "t", n, epochStart)...)
	return p
}

func assertUnique(t *testing.T, assets []domain.Asset) {
	t.Helper()
	seen := make(map[string]bool, len(assets))
	for _, a := range assets {
		if seen[a.ID] {
			t.Fatalf("duplicate asset %s in sequence", a.ID)
		}
		seen[a.ID] = true
	}
}

func TestLoadBeforeSelect(t *testing.T) {
	c := New(newLibrary(1), log.NullLogger())
	if _, err := c.LoadNextPage(context.Background()); !errors.Is(err, ErrNoSource) {
		t.Errorf("err = %v, want ErrNoSource", err)
	}
}

func TestPagination(t *testing.T) {
	p := newLibrary(120)
	c := New(p, log.NullLogger(), WithPageSize(50))
	ctx := context.Background()

	if _, err := c.SelectSource(ctx, domain.AllAssets); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 50 {
		t.Fatalf("after select: len %d, want 50", c.Len())
	}

	for _, want := range []int{100, 120} {
		if _, err := c.LoadNextPage(ctx); err != nil {
			t.Fatal(err)
		}
		if c.Len() != want {
			t.Fatalf("len %d, want %d", c.Len(), want)
		}
	}

	res, err := c.LoadNextPage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Exhausted || res.Fetched != 0 {
		t.Errorf("load past the end = %+v", res)
	}
	if c.Len() != 120 || c.Cursor().Offset != 120 {
		t.Errorf("len %d offset %d, want 120/120", c.Len(), c.Cursor().Offset)
	}
	if p.PageCalls() != 3 {
		t.Errorf("page calls = %d, want 3", p.PageCalls())
	}
	if !c.Exhausted() {
		t.Error("Exhausted() = false")
	}

	snap := c.Snapshot()
	assertUnique(t, snap)
	for i := 1; i < len(snap); i++ {
		if snap[i].CreatedAt.After(*snap[i-1].CreatedAt) {
			t.Fatalf("sequence not newest first at %d", i)
		}
	}
}

func TestCursorNeverMovesBackward(t *testing.T) {
	c := New(newLibrary(30), log.NullLogger(), WithPageSize(10))
	ctx := context.Background()
	c.SelectSource(ctx, domain.AllAssets)

	last := c.Cursor().Offset
	for i := 0; i < 5; i++ {
		c.LoadNextPage(ctx)
		off := c.Cursor().Offset
		if off < last {
			t.Fatalf("offset went from %d to %d", last, off)
		}
		last = off
	}
	if last != 30 {
		t.Errorf("final offset = %d, want 30", last)
	}
}

func TestPagesAreDeduplicated(t *testing.T) {
	p := newLibrary(120)
	c := New(p, log.NullLogger(), WithPageSize(50))
	ctx := context.Background()
	c.SelectSource(ctx, domain.AllAssets)

	// A newer asset shifts every later page by one
	p.AddAssets(makeAssets("trip", "new", 1, epochStart.Add(time.Hour))...)

	res, err := c.LoadNextPage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Fetched != 50 || res.Appended != 49 {
		t.Errorf("fetched %d appended %d, want 50/49", res.Fetched, res.Appended)
	}
	assertUnique(t, c.Snapshot())
}

func TestLoadErrorLeavesStateUntouched(t *testing.T) {
	p := newLibrary(120)
	c := New(p, log.NullLogger(), WithPageSize(50))
	ctx := context.Background()
	c.SelectSource(ctx, domain.AllAssets)

	before := c.Cursor()
	p.FailEnumeration(errors.New("library locked"))
	_, err := c.LoadNextPage(ctx)
	if !errors.Is(err, domain.ErrEnumerationFailed) {
		t.Fatalf("err = %v, want ErrEnumerationFailed", err)
	}
	if c.Len() != 50 || c.Cursor() != before {
		t.Errorf("state mutated on error: len %d cursor %+v", c.Len(), c.Cursor())
	}

	p.FailEnumeration(nil)
	if _, err := c.LoadNextPage(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 100 {
		t.Errorf("len after recovery = %d, want 100", c.Len())
	}
}

func TestSelectSameSourceIsNoOp(t *testing.T) {
	p := newLibrary(10)
	c := New(p, log.NullLogger())
	ctx := context.Background()

	c.SelectSource(ctx, domain.AlbumSource("trip"))
	epoch := c.Epoch()
	res, err := c.SelectSource(ctx, domain.AlbumSource("trip"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Epoch != epoch || c.Epoch() != epoch {
		t.Errorf("epoch changed on reselect: %d -> %d", epoch, c.Epoch())
	}
	if p.PageCalls() != 1 {
		t.Errorf("page calls = %d, want 1", p.PageCalls())
	}
}

func TestReselectRetriesFailedFirstPage(t *testing.T) {
	p := newLibrary(10)
	c := New(p, log.NullLogger())
	ctx := context.Background()

	p.FailEnumeration(errors.New("library locked"))
	if _, err := c.SelectSource(ctx, domain.AlbumSource("trip")); !errors.Is(err, domain.ErrEnumerationFailed) {
		t.Fatalf("err = %v, want ErrEnumerationFailed", err)
	}
	if c.Len() != 0 {
		t.Fatalf("len = %d after failed load", c.Len())
	}
	epoch := c.Epoch()

	p.FailEnumeration(nil)
	if _, err := c.SelectSource(ctx, domain.AlbumSource("trip")); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 10 || c.Epoch() != epoch {
		t.Errorf("after reselect: len %d epoch %d -> %d", c.Len(), epoch, c.Epoch())
	}

	// Loaded now, so a further reselect does nothing
	calls := p.PageCalls()
	c.SelectSource(ctx, domain.AlbumSource("trip"))
	if p.PageCalls() != calls {
		t.Errorf("reselect of a loaded source fetched again")
	}
}

func TestSelectSourceResets(t *testing.T) {
	p := newLibrary(10)
	p.AddAlbum("home", "Home")
	p.AddAssets(makeAssets("home", "h", 4, epochStart)...)
	c := New(p, log.NullLogger())
	ctx := context.Background()

	c.SelectSource(ctx, domain.AllAssets)
	epoch := c.Epoch()
	c.SelectSource(ctx, domain.AlbumSource("home"))

	if c.Epoch() <= epoch {
		t.Errorf("epoch did not advance")
	}
	if c.Len() != 4 {
		t.Errorf("len = %d, want 4", c.Len())
	}
	for _, a := range c.Snapshot() {
		if a.AlbumID != "home" {
			t.Fatalf("asset %s from %s leaked into home", a.ID, a.AlbumID)
		}
	}
}

func TestStalePageIsDiscarded(t *testing.T) {
	p := newLibrary(10)
	p.AddAlbum("home", "Home")
	p.AddAssets(makeAssets("home", "h", 4, epochStart)...)
	c := New(p, log.NullLogger())
	ctx := context.Background()

	release := p.HoldPages()
	defer release()

	first := make(chan PageResult, 1)
	go func() {
		res, _ := c.SelectSource(ctx, domain.AlbumSource("trip"))
		first <- res
	}()
	waitUntil(t, "first page in flight", func() bool { return p.PageCalls() == 1 })

	second := make(chan PageResult, 1)
	go func() {
		res, _ := c.SelectSource(ctx, domain.AlbumSource("home"))
		second <- res
	}()

	select {
	case res := <-first:
		if !res.Stale {
			t.Errorf("superseded load = %+v, want stale", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("superseded load never returned")
	}

	release()
	select {
	case res := <-second:
		if res.Stale || res.Appended != 4 {
			t.Errorf("current load = %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("current load never returned")
	}

	src, _ := c.Source()
	if src.AlbumID != "home" || c.Len() != 4 {
		t.Errorf("source %v len %d, want home/4", src, c.Len())
	}
	for _, a := range c.Snapshot() {
		if a.AlbumID != "home" {
			t.Fatalf("stale asset %s applied", a.ID)
		}
	}
}

func TestSourceShrinksWhilePaging(t *testing.T) {
	p := newLibrary(20)
	c := New(p, log.NullLogger(), WithPageSize(10))
	ctx := context.Background()
	c.SelectSource(ctx, domain.AllAssets)

	for i := 5; i < 20; i++ {
		p.RemoveAsset(fmt.Sprintf("t%03d", i))
	}
	res, err := c.LoadNextPage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Exhausted {
		t.Errorf("result = %+v, want exhausted", res)
	}
	if total, _ := c.Total(); total != 10 {
		t.Errorf("total = %d, want 10", total)
	}
}

func TestRefreshPrependsNewerAssets(t *testing.T) {
	p := newLibrary(120)
	c := New(p, log.NullLogger(), WithPageSize(50))
	ctx := context.Background()
	c.SelectSource(ctx, domain.AllAssets)
	c.LoadNextPage(ctx)

	newer := makeAssets("trip", "new", 3, epochStart.Add(time.Hour))
	p.AddAssets(newer...)

	res, err := c.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Prepended != 3 || res.FellBack {
		t.Errorf("refresh = %+v", res)
	}
	if c.Len() != 103 || c.Cursor().Offset != 103 {
		t.Errorf("len %d offset %d, want 103/103", c.Len(), c.Cursor().Offset)
	}
	for i, a := range newer {
		if got, _ := c.At(i); got.ID != a.ID {
			t.Errorf("At(%d) = %s, want %s", i, got.ID, a.ID)
		}
	}
	if c.IndexOf("t000") != 3 {
		t.Errorf("IndexOf(t000) = %d, want 3", c.IndexOf("t000"))
	}

	c.LoadNextPage(ctx)
	if c.Len() != 123 || !c.Exhausted() {
		t.Errorf("after paging on: len %d exhausted %v", c.Len(), c.Exhausted())
	}
	assertUnique(t, c.Snapshot())
}

func TestRefreshAfterDeletionsLeavesNoGap(t *testing.T) {
	p := newLibrary(120)
	c := New(p, log.NullLogger(), WithPageSize(50))
	ctx := context.Background()
	c.SelectSource(ctx, domain.AllAssets)
	c.LoadNextPage(ctx)

	removed := make(map[string]bool)
	for i := 10; i < 20; i++ {
		id := fmt.Sprintf("t%03d", i)
		p.RemoveAsset(id)
		removed[id] = true
	}

	res, err := c.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 10 || res.Prepended != 0 {
		t.Errorf("refresh = %+v, want 10 removed", res)
	}
	if c.Len() != 90 || c.Cursor().Offset != 90 {
		t.Errorf("len %d offset %d, want 90/90", c.Len(), c.Cursor().Offset)
	}

	c.LoadNextPage(ctx)
	c.LoadNextPage(ctx)
	if !c.Exhausted() {
		t.Error("source not exhausted")
	}

	got := c.Snapshot()
	assertUnique(t, got)
	if len(got) != 110 {
		t.Fatalf("len = %d, want 110", len(got))
	}
	seen := make(map[string]bool, len(got))
	for _, a := range got {
		if removed[a.ID] {
			t.Errorf("deleted asset %s still in sequence", a.ID)
		}
		seen[a.ID] = true
	}
	for i := 0; i < 120; i++ {
		id := fmt.Sprintf("t%03d", i)
		if !removed[id] && !seen[id] {
			t.Errorf("asset %s never loaded", id)
		}
	}
}

func TestRefreshAfterLoadedAssetsAllDeleted(t *testing.T) {
	p := newLibrary(30)
	c := New(p, log.NullLogger(), WithPageSize(10))
	ctx := context.Background()
	c.SelectSource(ctx, domain.AllAssets)

	for i := 0; i < 10; i++ {
		p.RemoveAsset(fmt.Sprintf("t%03d", i))
	}
	res, err := c.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Removed != 10 {
		t.Errorf("refresh = %+v, want 10 removed", res)
	}
	if first, _ := c.At(0); c.Len() != 10 || first.ID != "t010" {
		t.Errorf("len %d first %s, want 10 starting at t010", c.Len(), first.ID)
	}
	if c.Cursor().Offset != 10 {
		t.Errorf("offset = %d, want 10", c.Cursor().Offset)
	}
}

func TestRefreshWithoutChanges(t *testing.T) {
	p := newLibrary(30)
	c := New(p, log.NullLogger(), WithPageSize(10))
	ctx := context.Background()
	c.SelectSource(ctx, domain.AllAssets)
	epoch := c.Epoch()

	res, err := c.Refresh(ctx)
	if err != nil || res.Prepended != 0 {
		t.Errorf("refresh = %+v, %v", res, err)
	}
	if c.Len() != 10 || c.Epoch() != epoch {
		t.Errorf("refresh reset the sequence")
	}
}

func TestRefreshFallsBackToFirstVisibleAlbum(t *testing.T) {
	p := newLibrary(5)
	p.AddAlbum("home", "Home")
	p.AddAssets(makeAssets("home", "h", 3, epochStart.Add(time.Hour))...)
	p.AddAlbum("gone", "Gone")
	p.AddAssets(makeAssets("gone", "g", 3, epochStart.Add(2*time.Hour))...)

	idx := album.NewIndex(p, nil, log.NullLogger())
	idx.SetVisibility("home", false)
	c := New(p, log.NullLogger(), WithFallback(idx))
	ctx := context.Background()

	c.SelectSource(ctx, domain.AlbumSource("gone"))
	p.RemoveAlbum("gone")

	res, err := c.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FellBack || res.Source != domain.AlbumSource("trip") {
		t.Errorf("refresh = %+v, want fallback to trip", res)
	}
	if src, _ := c.Source(); src.AlbumID != "trip" || c.Len() != 5 {
		t.Errorf("source %v len %d", src, c.Len())
	}
}

func TestRefreshFallsBackToAllAssets(t *testing.T) {
	p := newLibrary(5)
	c := New(p, log.NullLogger())
	ctx := context.Background()

	c.SelectSource(ctx, domain.AlbumSource("trip"))
	p.RemoveAlbum("trip")
	p.AddAssets(makeAssets("", "loose", 2, epochStart)...)

	res, err := c.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.FellBack || !res.Source.IsAll() {
		t.Errorf("refresh = %+v, want fallback to all", res)
	}
	if c.Len() != 2 {
		t.Errorf("len = %d, want 2", c.Len())
	}
}

func TestNearEnd(t *testing.T) {
	c := New(newLibrary(120), log.NullLogger(), WithPageSize(50))
	ctx := context.Background()
	c.SelectSource(ctx, domain.AllAssets)

	if c.NearEnd(10, 10) {
		t.Error("NearEnd(10) = true with 50 loaded")
	}
	if !c.NearEnd(45, 10) {
		t.Error("NearEnd(45) = false with 50 loaded")
	}

	c.LoadNextPage(ctx)
	c.LoadNextPage(ctx)
	if c.NearEnd(119, 10) {
		t.Error("NearEnd = true after the source is exhausted")
	}
}

func TestObserverEvents(t *testing.T) {
	var mu sync.Mutex
	var kinds []EventKind
	obs := ObserverFunc(func(ev Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})

	p := newLibrary(30)
	c := New(p, log.NullLogger(), WithPageSize(10), WithObserver(obs))
	ctx := context.Background()
	c.SelectSource(ctx, domain.AllAssets)
	c.LoadNextPage(ctx)
	p.AddAssets(makeAssets("trip", "new", 1, epochStart.Add(time.Hour))...)
	c.Refresh(ctx)

	mu.Lock()
	defer mu.Unlock()
	want := []EventKind{EventReset, EventAppended, EventAppended, EventMerged}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
