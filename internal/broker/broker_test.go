package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmcdole/glimpse/internal/domain"
	"github.com/mmcdole/glimpse/internal/log"
	"github.com/mmcdole/glimpse/internal/source/memory"
)

func photo(id string) domain.Asset {
	return domain.Asset{ID: id, AlbumID: "trip", Width: 16, Height: 9}
}

func wait(t *testing.T, req *Request) domain.MediaPayload {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := req.Wait(ctx)
	if err != nil {
		t.Fatalf("request %s never resolved", req.Asset.ID)
	}
	return p
}

func TestFetchImage(t *testing.T) {
	b := New(memory.New(), 2, log.NullLogger())

	p := wait(t, b.Fetch(photo("a")))
	img, ok := p.(domain.DecodedImage)
	if !ok {
		t.Fatalf("payload = %T, want DecodedImage", p)
	}
	if img.Width != 16 || img.Height != 9 || len(img.Bytes) == 0 {
		t.Errorf("image = %dx%d (%d bytes)", img.Width, img.Height, len(img.Bytes))
	}
}

func TestFetchVideo(t *testing.T) {
	b := New(memory.New(), 2, log.NullLogger())
	asset := domain.Asset{ID: "v", Kind: domain.MediaKindVideo, Duration: 42 * time.Second}

	p := wait(t, b.Fetch(asset))
	video, ok := p.(domain.PlayableVideo)
	if !ok {
		t.Fatalf("payload = %T, want PlayableVideo", p)
	}
	if video.Handle.Duration() != 42*time.Second {
		t.Errorf("duration = %v", video.Handle.Duration())
	}
	select {
	case <-video.Handle.Ready():
	default:
		t.Error("video resolved before its container was ready")
	}
}

func TestFetchFailure(t *testing.T) {
	p := memory.New()
	p.FailResolve("bad", errors.New("truncated file"))
	b := New(p, 2, log.NullLogger())

	payload := wait(t, b.Fetch(photo("bad")))
	failed, ok := payload.(domain.Failed)
	if !ok {
		t.Fatalf("payload = %T, want Failed", payload)
	}
	if !errors.Is(failed, domain.ErrDecodeFailed) {
		t.Errorf("reason = %v, want ErrDecodeFailed", failed.Reason)
	}
}

func TestAtMostOneCurrentRequest(t *testing.T) {
	p := memory.New()
	p.HoldResolves()
	b := New(p, 2, log.NullLogger())

	first := b.Fetch(photo("a"))
	second := b.Fetch(photo("b"))

	got := wait(t, first)
	failed, ok := got.(domain.Failed)
	if !ok || !errors.Is(failed, domain.ErrCancelled) {
		t.Fatalf("superseded request = %v, want cancelled", got)
	}
	if !first.Token.Cancelled() {
		t.Error("superseded token not marked cancelled")
	}
	if cur, _ := b.Outstanding(); cur != 1 {
		t.Errorf("outstanding current = %d, want 1", cur)
	}

	p.Release("a")
	p.Release("b")
	if _, ok := wait(t, second).(domain.DecodedImage); !ok {
		t.Error("current request did not resolve with media")
	}
	// The late result for "a" must not surface
	if _, ok := first.Payload().(domain.Failed); !ok {
		t.Errorf("cancelled request re-resolved with %T", first.Payload())
	}
}

func TestFetchSameAssetReturnsCurrent(t *testing.T) {
	p := memory.New()
	p.HoldResolves()
	b := New(p, 2, log.NullLogger())

	first := b.Fetch(photo("a"))
	again := b.Fetch(photo("a"))
	if first != again {
		t.Error("refetching the in-flight asset started a new request")
	}
	p.Release("a")
	wait(t, first)
	if n := p.ResolveCalls("a"); n != 1 {
		t.Errorf("resolve calls = %d, want 1", n)
	}
}

func TestPrefetchIsConsumedByFetch(t *testing.T) {
	p := memory.New()
	b := New(p, 2, log.NullLogger())

	wait(t, b.Fetch(photo("a")))
	tok := b.Prefetch(photo("b"))
	if tok == nil || tok.AssetID() != "b" {
		t.Fatalf("prefetch token = %v", tok)
	}
	if again := b.Prefetch(photo("b")); again != tok {
		t.Error("prefetching the same asset twice issued a new token")
	}

	if _, ok := wait(t, b.Fetch(photo("b"))).(domain.DecodedImage); !ok {
		t.Fatal("consumed prefetch did not deliver media")
	}
	if n := p.ResolveCalls("b"); n != 1 {
		t.Errorf("resolve calls for b = %d, want 1", n)
	}
	if _, pf := b.Outstanding(); pf != 0 {
		t.Errorf("prefetch slot still occupied after consumption")
	}
}

func TestInFlightPrefetchIsConsumedByFetch(t *testing.T) {
	p := memory.New()
	p.HoldResolves()
	b := New(p, 2, log.NullLogger())

	b.Prefetch(photo("x"))
	deadline := time.Now().Add(2 * time.Second)
	for p.ResolveCalls("x") == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	req := b.Fetch(photo("x"))
	select {
	case <-req.Done():
		t.Fatal("fetch resolved while the prefetch was held")
	default:
	}

	p.Release("x")
	if _, ok := wait(t, req).(domain.DecodedImage); !ok {
		t.Fatal("consumed prefetch did not deliver media")
	}
	if n := p.ResolveCalls("x"); n != 1 {
		t.Errorf("resolve calls for x = %d, want 1", n)
	}
}

func TestPrefetchReplacesPrevious(t *testing.T) {
	p := memory.New()
	p.HoldResolves()
	b := New(p, 2, log.NullLogger())

	first := b.Prefetch(photo("b"))
	second := b.Prefetch(photo("c"))
	if !first.Cancelled() {
		t.Error("replaced prefetch not cancelled")
	}
	if second.Cancelled() {
		t.Error("new prefetch cancelled")
	}
	if _, pf := b.Outstanding(); pf != 1 {
		t.Errorf("prefetch outstanding = %d, want 1", pf)
	}
	b.CancelAll()
}

func TestPrefetchOfCurrentIsNoOp(t *testing.T) {
	p := memory.New()
	p.HoldResolves()
	b := New(p, 2, log.NullLogger())
	defer b.CancelAll()

	b.Fetch(photo("a"))
	if tok := b.Prefetch(photo("a")); tok != nil {
		t.Error("prefetch of the current asset issued a token")
	}
}

func TestCancel(t *testing.T) {
	p := memory.New()
	p.HoldResolves()
	b := New(p, 2, log.NullLogger())

	req := b.Fetch(photo("a"))
	b.Cancel(req.Token)
	got := wait(t, req)
	if f, ok := got.(domain.Failed); !ok || !errors.Is(f, domain.ErrCancelled) {
		t.Errorf("payload = %v, want cancelled", got)
	}
	b.Cancel(req.Token)
	b.Cancel(nil)
}

func TestCancelAll(t *testing.T) {
	p := memory.New()
	p.HoldResolves()
	b := New(p, 2, log.NullLogger())

	b.CancelAll()

	req := b.Fetch(photo("a"))
	tok := b.Prefetch(photo("b"))
	b.CancelAll()

	if cur, pf := b.Outstanding(); cur != 0 || pf != 0 {
		t.Errorf("outstanding = (%d,%d), want (0,0)", cur, pf)
	}
	if !req.Token.Cancelled() || !tok.Cancelled() {
		t.Error("tokens not cancelled")
	}
	if f, ok := wait(t, req).(domain.Failed); !ok || !errors.Is(f, domain.ErrCancelled) {
		t.Error("current request not resolved as cancelled")
	}
}

func TestFetchAfterFailureRetries(t *testing.T) {
	p := memory.New()
	p.FailResolve("a", errors.New("io error"))
	b := New(p, 2, log.NullLogger())

	wait(t, b.Fetch(photo("a")))
	p.FailResolve("a", nil)
	if _, ok := wait(t, b.Fetch(photo("a"))).(domain.DecodedImage); !ok {
		t.Error("explicit refetch after failure did not resolve with media")
	}
	if n := p.ResolveCalls("a"); n != 2 {
		t.Errorf("resolve calls = %d, want 2", n)
	}
}

func TestThumbnail(t *testing.T) {
	b := New(memory.New(), 1, log.NullLogger())
	data, err := b.Thumbnail(context.Background(), photo("a"), 200, 200)
	if err != nil || len(data) == 0 {
		t.Fatalf("Thumbnail = %d bytes, %v", len(data), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Thumbnail(ctx, photo("a"), 200, 200); err == nil {
		t.Error("thumbnail with a cancelled context succeeded")
	}
}
