// Package memory implements domain.MediaLibraryProvider over an in-memory
// library. It backs the --demo mode and the core packages' tests, so it
// exposes hooks to hold page loads and media resolution and counts calls.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"sync"
	"time"

	"github.com/mmcdole/glimpse/internal/domain"
)

// Provider is a mutable in-memory media library.
type Provider struct {
	mu     sync.Mutex
	albums map[string]domain.Album
	assets map[string]domain.Asset

	enumErr    error
	resolveErr map[string]error

	pageGate chan struct{}
	holding  bool
	holds    map[string]chan struct{}

	resolveCalls map[string]int
	pageCalls    int

	subscribers []chan struct{}
}

// New creates an empty library.
func New() *Provider {
	return &Provider{
		albums:       make(map[string]domain.Album),
		assets:       make(map[string]domain.Asset),
		resolveErr:   make(map[string]error),
		holds:        make(map[string]chan struct{}),
		resolveCalls: make(map[string]int),
	}
}

// === Mutation ===

// AddAlbum registers an album; counts are derived from its assets.
func (p *Provider) AddAlbum(id, title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.albums[id] = domain.Album{ID: id, Title: title}
}

// RemoveAlbum deletes an album and its assets.
func (p *Provider) RemoveAlbum(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.albums, id)
	for assetID, a := range p.assets {
		if a.AlbumID == id {
			delete(p.assets, assetID)
		}
	}
}

// AddAssets inserts or replaces assets.
func (p *Provider) AddAssets(assets ...domain.Asset) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, a := range assets {
		p.assets[a.ID] = a
	}
}

// RemoveAsset deletes an asset.
func (p *Provider) RemoveAsset(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.assets, id)
}

// FailEnumeration makes listing calls return err until called with nil.
func (p *Provider) FailEnumeration(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enumErr = err
}

// FailResolve makes resolving assetID return err.
func (p *Provider) FailResolve(assetID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolveErr[assetID] = err
}

// === Test hooks ===

// HoldPages blocks FetchPage until the returned release func is called.
func (p *Provider) HoldPages() (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.pageGate = gate
	p.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			if p.pageGate == gate {
				p.pageGate = nil
			}
			p.mu.Unlock()
			close(gate)
		})
	}
}

// HoldResolves blocks media resolution until Release is called for the asset.
func (p *Provider) HoldResolves() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holding = true
}

// Release unblocks resolution of assetID.
func (p *Provider) Release(assetID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := p.holdLocked(assetID)
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func (p *Provider) holdLocked(assetID string) chan struct{} {
	ch, ok := p.holds[assetID]
	if !ok {
		ch = make(chan struct{})
		p.holds[assetID] = ch
	}
	return ch
}

// ResolveCalls returns how many times assetID was resolved.
func (p *Provider) ResolveCalls(assetID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolveCalls[assetID]
}

// PageCalls returns how many pages were fetched.
func (p *Provider) PageCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pageCalls
}

// Subscribers returns the number of live Changes subscriptions.
func (p *Provider) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subscribers)
}

// NotifyChanged signals every subscriber that the library changed.
func (p *Provider) NotifyChanged() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subscribers {
		select {
		case ch <- struct{}{}:
		default: // A pending signal already covers this change
		}
	}
}

// === domain.MediaLibraryProvider ===

func (p *Provider) ListAlbums(ctx context.Context) ([]domain.Album, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enumErr != nil {
		return nil, p.enumErr
	}

	counts := make(map[string]int)
	latest := make(map[string]int64)
	for _, a := range p.assets {
		counts[a.AlbumID]++
		if ts := createdUnix(a); ts > latest[a.AlbumID] {
			latest[a.AlbumID] = ts
		}
	}

	albums := make([]domain.Album, 0, len(p.albums))
	for _, a := range p.albums {
		a.AssetCount = counts[a.ID]
		a.LatestAssetAt = latest[a.ID]
		albums = append(albums, a)
	}
	sort.Slice(albums, func(i, j int) bool { return albums[i].Title < albums[j].Title })
	return albums, nil
}

func (p *Provider) AssetCount(ctx context.Context, source domain.Source) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enumErr != nil {
		return 0, p.enumErr
	}
	assets, err := p.sourceAssetsLocked(source)
	if err != nil {
		return 0, err
	}
	return len(assets), nil
}

func (p *Provider) FetchPage(ctx context.Context, source domain.Source, offset, limit int) ([]domain.Asset, error) {
	p.mu.Lock()
	gate := p.pageGate
	p.pageCalls++
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enumErr != nil {
		return nil, p.enumErr
	}
	assets, err := p.sourceAssetsLocked(source)
	if err != nil {
		return nil, err
	}
	if offset >= len(assets) {
		return nil, nil
	}
	end := offset + limit
	if end > len(assets) {
		end = len(assets)
	}
	page := make([]domain.Asset, end-offset)
	copy(page, assets[offset:end])
	return page, nil
}

// sourceAssetsLocked returns the source's assets newest first
func (p *Provider) sourceAssetsLocked(source domain.Source) ([]domain.Asset, error) {
	if !source.IsAll() {
		if _, ok := p.albums[source.AlbumID]; !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrAlbumNotFound, source.AlbumID)
		}
	}
	var out []domain.Asset
	for _, a := range p.assets {
		if source.IsAll() || a.AlbumID == source.AlbumID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := createdUnix(out[i]), createdUnix(out[j])
		if ti != tj {
			return ti > tj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func createdUnix(a domain.Asset) int64 {
	if a.CreatedAt == nil {
		return 0
	}
	return a.CreatedAt.Unix()
}

// awaitResolve counts the call and blocks while resolves are held
func (p *Provider) awaitResolve(ctx context.Context, assetID string) error {
	p.mu.Lock()
	p.resolveCalls[assetID]++
	var hold chan struct{}
	if p.holding {
		hold = p.holdLocked(assetID)
	}
	err := p.resolveErr[assetID]
	p.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p *Provider) ResolveImage(ctx context.Context, asset domain.Asset) ([]byte, error) {
	if err := p.awaitResolve(ctx, asset.ID); err != nil {
		return nil, err
	}
	w, h := asset.Width, asset.Height
	if w <= 0 || h <= 0 {
		w, h = 4, 3
	}
	return solidPNG(w, h)
}

func (p *Provider) ResolveVideo(ctx context.Context, asset domain.Asset) (domain.VideoHandle, error) {
	if err := p.awaitResolve(ctx, asset.ID); err != nil {
		return nil, err
	}
	ready := make(chan struct{})
	close(ready)
	return &videoHandle{location: "memory://" + asset.ID, duration: asset.Duration, ready: ready}, nil
}

func (p *Provider) Thumbnail(ctx context.Context, asset domain.Asset, width, height int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return solidPNG(width, height)
}

func (p *Provider) Changes(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	p.subscribers = append(p.subscribers, ch)
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, sub := range p.subscribers {
			if sub == ch {
				p.subscribers = append(p.subscribers[:i], p.subscribers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

func solidPNG(w, h int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := color.RGBA{R: 0x33, G: 0x66, B: 0x99, A: 0xff}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type videoHandle struct {
	location string
	duration time.Duration
	ready    chan struct{}
}

func (v *videoHandle) Location() string        { return v.location }
func (v *videoHandle) Duration() time.Duration { return v.duration }
func (v *videoHandle) Ready() <-chan struct{}  { return v.ready }
