// Package session owns one browsing session: the album index, the catalog of
// the selected source, the media broker and at most one open viewer.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmcdole/glimpse/internal/album"
	"github.com/mmcdole/glimpse/internal/broker"
	"github.com/mmcdole/glimpse/internal/catalog"
	"github.com/mmcdole/glimpse/internal/config"
	"github.com/mmcdole/glimpse/internal/domain"
	"github.com/mmcdole/glimpse/internal/log"
	"github.com/mmcdole/glimpse/internal/viewer"
)

// ThumbnailSize is the edge of the square grid thumbnails
const ThumbnailSize = 200

// DefaultDebounce coalesces bursts of library change signals
const DefaultDebounce = 250 * time.Millisecond

// Options tunes the session's components
type Options struct {
	PageSize       int
	Lookahead      int
	Workers        int
	SwipeThreshold float64
	Viewport       viewer.Size
	Debounce       time.Duration
}

// OptionsFromConfig maps the loaded configuration onto session options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		PageSize:       cfg.Library.PageSize,
		Lookahead:      cfg.Library.Lookahead,
		Workers:        cfg.Broker.Workers,
		SwipeThreshold: cfg.Viewer.SwipeThreshold,
		Viewport:       viewer.Size{Width: cfg.Viewer.Width, Height: cfg.Viewer.Height},
		Debounce:       cfg.Library.Debounce,
	}
}

// Option configures a Session
type Option func(*Session)

// WithCatalogObserver receives every catalog event after the session has
// reacted to it
func WithCatalogObserver(o catalog.Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.catalogObserver = o
		}
	}
}

// WithViewerObserver receives every state change of the open viewer
func WithViewerObserver(o viewer.Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.viewerObserver = o
		}
	}
}

// Session is the single writer of the browsing state.
type Session struct {
	provider domain.MediaLibraryProvider
	albums   *album.Index
	catalog  *catalog.Catalog
	broker   *broker.Broker
	opts     Options
	logger   *slog.Logger

	catalogObserver catalog.Observer
	viewerObserver  viewer.Observer

	ctx         context.Context
	loadingMore atomic.Bool

	mu     sync.Mutex
	viewer *viewer.Controller
}

// New wires a session over provider. Visibility is read from settings once.
func New(provider domain.MediaLibraryProvider, settings domain.SettingsStore, opts Options, logger *slog.Logger, options ...Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	s := &Session{
		provider:        provider,
		opts:            opts,
		logger:          logger,
		catalogObserver: catalog.NoOpObserver{},
		viewerObserver:  viewer.ObserverFunc(func(viewer.State) {}),
		ctx:             context.Background(),
	}
	for _, opt := range options {
		opt(s)
	}

	s.albums = album.NewIndex(provider, settings, log.Component(logger, "albums"))
	s.broker = broker.New(provider, opts.Workers, log.Component(logger, "broker"))
	s.catalog = catalog.New(provider, log.Component(logger, "catalog"),
		catalog.WithPageSize(opts.PageSize),
		catalog.WithFallback(s.albums),
		catalog.WithObserver(catalog.ObserverFunc(s.onCatalogChanged)),
	)
	return s
}

// Albums returns the album index
func (s *Session) Albums() *album.Index { return s.albums }

// Catalog returns the catalog of the selected source
func (s *Session) Catalog() *catalog.Catalog { return s.catalog }

// Broker returns the media broker
func (s *Session) Broker() *broker.Broker { return s.broker }

// Start selects the first visible album, or all assets when none is visible.
// ctx bounds the background page loads the viewer triggers.
func (s *Session) Start(ctx context.Context) ([]domain.Album, error) {
	s.ctx = ctx

	albums, err := s.albums.ListAlbums(ctx, false)
	if err != nil {
		return nil, err
	}

	source := domain.AllAssets
	if len(albums) > 0 {
		source = domain.AlbumSource(albums[0].ID)
	}
	s.logger.Info("session started", "albums", len(albums), "source", source.ID())

	if _, err := s.catalog.SelectSource(ctx, source); err != nil {
		return albums, err
	}
	return albums, nil
}

// SelectAlbum browses one album
func (s *Session) SelectAlbum(ctx context.Context, albumID string) (catalog.PageResult, error) {
	return s.catalog.SelectSource(ctx, domain.AlbumSource(albumID))
}

// SelectAll browses every asset in the library
func (s *Session) SelectAll(ctx context.Context) (catalog.PageResult, error) {
	return s.catalog.SelectSource(ctx, domain.AllAssets)
}

// LoadMore loads the next page of the selected source
func (s *Session) LoadMore(ctx context.Context) (catalog.PageResult, error) {
	return s.catalog.LoadNextPage(ctx)
}

// Refresh re-reads the selected source after a library change
func (s *Session) Refresh(ctx context.Context) (catalog.RefreshResult, error) {
	return s.catalog.Refresh(ctx)
}

// SetAlbumVisibility shows or hides an album. Hiding the album being browsed
// moves to the first visible album. A persistence failure is returned after
// the change has been applied in memory.
func (s *Session) SetAlbumVisibility(ctx context.Context, albumID string, visible bool) error {
	persistErr := s.albums.SetVisibility(albumID, visible)

	if src, ok := s.catalog.Source(); ok && !visible && src.AlbumID == albumID {
		next := domain.AllAssets
		first, found, err := s.albums.FirstVisibleAlbum(ctx)
		switch {
		case err != nil:
			s.logger.Warn("failed to resolve next album, showing all assets", "error", err)
		case found:
			next = domain.AlbumSource(first.ID)
		}
		s.logger.Info("selected album hidden", "albumID", albumID, "next", next.ID())
		if _, err := s.catalog.SelectSource(ctx, next); err != nil {
			return errors.Join(persistErr, err)
		}
	}
	return persistErr
}

// Thumbnail returns the grid thumbnail of asset
func (s *Session) Thumbnail(ctx context.Context, asset domain.Asset) ([]byte, error) {
	return s.broker.Thumbnail(ctx, asset, ThumbnailSize, ThumbnailSize)
}

// === Viewer ===

// OpenViewer opens the full-screen viewer on assetID over the loaded sequence,
// closing a viewer that is already open.
func (s *Session) OpenViewer(assetID string) (*viewer.Controller, error) {
	s.CloseViewer()

	opts := []viewer.Option{
		viewer.WithObserver(viewer.ObserverFunc(s.onViewerChanged)),
		viewer.WithViewport(s.opts.Viewport.Width, s.opts.Viewport.Height),
	}
	if s.opts.SwipeThreshold > 0 {
		opts = append(opts, viewer.WithSwipeThreshold(s.opts.SwipeThreshold))
	}

	assets := s.catalog.Snapshot()
	v, err := viewer.New(assets, assetID, s.broker, log.Component(s.logger, "viewer"), opts...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.viewer = v
	s.mu.Unlock()

	// Opening near the end may have loaded a page before the viewer was registered
	if s.catalog.Len() != len(assets) {
		v.SetSequence(s.catalog.Snapshot())
	}
	return v, nil
}

// Viewer returns the open viewer, or nil
func (s *Session) Viewer() *viewer.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewer
}

// CloseViewer closes the open viewer, cancelling its outstanding requests
func (s *Session) CloseViewer() {
	s.mu.Lock()
	v := s.viewer
	s.viewer = nil
	s.mu.Unlock()
	if v != nil {
		v.Close()
	}
}

// Close releases the session's outstanding work
func (s *Session) Close() {
	s.CloseViewer()
	s.broker.CancelAll()
}

// onCatalogChanged keeps an open viewer in step with the sequence. A new
// source invalidates the viewer's sequence, so it is closed.
func (s *Session) onCatalogChanged(ev catalog.Event) {
	switch ev.Kind {
	case catalog.EventReset:
		s.CloseViewer()
	case catalog.EventAppended, catalog.EventMerged:
		if v := s.Viewer(); v != nil && (ev.Added > 0 || ev.Removed > 0) {
			v.SetSequence(ev.Assets)
		}
	}
	s.catalogObserver.OnCatalogChanged(ev)
}

// onViewerChanged runs with the viewer locked: it must not call back into the
// viewer, so page loads near the end of the sequence happen asynchronously.
func (s *Session) onViewerChanged(state viewer.State) {
	s.viewerObserver.OnViewerChanged(state)
	if state.Closed || state.Count == 0 {
		return
	}
	if s.catalog.NearEnd(state.CurrentIndex, s.opts.Lookahead) {
		s.loadMoreAsync()
	}
}

func (s *Session) loadMoreAsync() {
	if !s.loadingMore.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer s.loadingMore.Store(false)
		if _, err := s.catalog.LoadNextPage(s.ctx); err != nil {
			s.logger.Warn("failed to load more assets", "error", err)
		}
	}()
}
