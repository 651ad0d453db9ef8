// Package filesystem implements domain.MediaLibraryProvider over a directory
// tree: every directory holding media is an album, and identifiers are paths
// relative to the library root.
package filesystem

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/barasher/go-exiftool"

	"github.com/mmcdole/glimpse/internal/domain"
)

// DefaultMaxDisplayEdge bounds the longest edge of resolved images
const DefaultMaxDisplayEdge = 2048

// Cache persists extracted metadata and thumbnails between runs.
// *store.Store implements it.
type Cache interface {
	GetMetadata(assetID string, modTime int64, dest interface{}) bool
	SaveMetadata(assetID string, modTime int64, value interface{}) error
	GetThumbnail(assetID string, width, height int, modTime int64) ([]byte, bool)
	SaveThumbnail(assetID string, width, height int, modTime int64, data []byte) error
	InvalidateAsset(assetID string)
}

// Options configures a Provider
type Options struct {
	Exiftool       bool // Read capture dates and durations with exiftool
	MaxDisplayEdge int  // Longest edge of images returned by ResolveImage
}

var _ domain.MediaLibraryProvider = (*Provider)(nil)

// Provider is a media library rooted at a directory.
type Provider struct {
	root    string
	cache   Cache
	opts    Options
	logger  *slog.Logger
	exifMu  sync.Mutex
	exif    *exiftool.Exiftool
	scanMu  sync.Mutex // Serializes scans
	mu      sync.RWMutex
	lib     *library
	dirty   bool
	watched []string
}

// library is the immutable result of one scan
type library struct {
	albums map[string]*albumEntry
	all    []domain.Asset // Newest first
}

type albumEntry struct {
	album  domain.Album
	assets []domain.Asset // Newest first
}

// New creates a provider for root. The tree is scanned lazily on first use.
// When exiftool is requested but unavailable, file modification times stand
// in for capture dates.
func New(root string, cache Cache, opts Options, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxDisplayEdge <= 0 {
		opts.MaxDisplayEdge = DefaultMaxDisplayEdge
	}

	p := &Provider{root: root, cache: cache, opts: opts, logger: logger, dirty: true}
	if opts.Exiftool {
		et, err := exiftool.NewExiftool()
		if err != nil {
			logger.Warn("exiftool unavailable, using modification times", "error", err)
		} else {
			p.exif = et
		}
	}
	return p
}

// Close stops the exiftool process
func (p *Provider) Close() error {
	p.exifMu.Lock()
	defer p.exifMu.Unlock()
	if p.exif == nil {
		return nil
	}
	err := p.exif.Close()
	p.exif = nil
	return err
}

// Root returns the library root directory
func (p *Provider) Root() string { return p.root }

// current returns the latest scan, rescanning when the tree changed
func (p *Provider) current(ctx context.Context) (*library, error) {
	p.mu.RLock()
	lib, dirty := p.lib, p.dirty
	p.mu.RUnlock()
	if lib != nil && !dirty {
		return lib, nil
	}

	p.scanMu.Lock()
	defer p.scanMu.Unlock()

	// Another caller may have scanned while we waited
	p.mu.RLock()
	lib, dirty = p.lib, p.dirty
	p.mu.RUnlock()
	if lib != nil && !dirty {
		return lib, nil
	}

	p.mu.Lock()
	p.dirty = false
	p.mu.Unlock()

	lib, err := p.scan(ctx)
	if err != nil {
		p.mu.Lock()
		p.dirty = true
		p.mu.Unlock()
		return nil, err
	}

	p.mu.Lock()
	p.lib = lib
	p.mu.Unlock()
	return lib, nil
}

func (p *Provider) markDirty() {
	p.mu.Lock()
	p.dirty = true
	p.mu.Unlock()
}

// === domain.AlbumLister / domain.AssetPager ===

func (p *Provider) ListAlbums(ctx context.Context) ([]domain.Album, error) {
	lib, err := p.current(ctx)
	if err != nil {
		return nil, err
	}
	albums := make([]domain.Album, 0, len(lib.albums))
	for _, e := range lib.albums {
		albums = append(albums, e.album)
	}
	sort.Slice(albums, func(i, j int) bool { return albums[i].ID < albums[j].ID })
	return albums, nil
}

func (p *Provider) AssetCount(ctx context.Context, source domain.Source) (int, error) {
	assets, err := p.sourceAssets(ctx, source)
	if err != nil {
		return 0, err
	}
	return len(assets), nil
}

func (p *Provider) FetchPage(ctx context.Context, source domain.Source, offset, limit int) ([]domain.Asset, error) {
	assets, err := p.sourceAssets(ctx, source)
	if err != nil {
		return nil, err
	}
	if offset < 0 || offset >= len(assets) {
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

func (p *Provider) sourceAssets(ctx context.Context, source domain.Source) ([]domain.Asset, error) {
	lib, err := p.current(ctx)
	if err != nil {
		return nil, err
	}
	if source.IsAll() {
		return lib.all, nil
	}
	e, ok := lib.albums[source.AlbumID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlbumNotFound, source.AlbumID)
	}
	return e.assets, nil
}

// sortAssets orders newest first; undated assets sort last, ties by ID
func sortAssets(assets []domain.Asset) {
	sort.SliceStable(assets, func(i, j int) bool {
		ti, tj := assets[i].CreatedAt, assets[j].CreatedAt
		switch {
		case ti == nil && tj == nil:
			return assets[i].ID < assets[j].ID
		case ti == nil:
			return false
		case tj == nil:
			return true
		case !ti.Equal(*tj):
			return ti.After(*tj)
		default:
			return assets[i].ID < assets[j].ID
		}
	})
}
