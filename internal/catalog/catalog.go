package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mmcdole/glimpse/internal/domain"
)

// DefaultPageSize is used when no page size is configured
const DefaultPageSize = 100

// ErrNoSource is returned when paging before a source was selected
var ErrNoSource = errors.New("no source selected")

// FallbackResolver picks the source to show when the selected album is gone.
type FallbackResolver interface {
	FirstVisibleAlbum(ctx context.Context) (domain.Album, bool, error)
}

// PageResult describes the outcome of one page load.
type PageResult struct {
	Epoch     uint64
	Fetched   int  // Assets returned by the provider
	Appended  int  // Assets actually added after dedup
	Stale     bool // Result discarded because the source changed meanwhile
	Exhausted bool // Cursor reached the end of the source
}

// RefreshResult describes the outcome of a refresh.
type RefreshResult struct {
	Source    domain.Source
	Prepended int
	Removed   int  // Loaded assets no longer in the source
	FellBack  bool // Selected album disappeared; Source is the replacement
	Stale     bool
}

// Catalog incrementally materializes the asset sequence of one source.
//
// Provider round trips are serialized by loadMu so page results apply in the
// order they were issued. State is guarded by mu; readers take snapshots.
type Catalog struct {
	pager    domain.AssetPager
	fallback FallbackResolver
	observer Observer
	logger   *slog.Logger
	pageSize int

	loadMu sync.Mutex

	mu         sync.RWMutex
	selected   bool
	source     domain.Source
	epoch      uint64
	cursor     domain.Cursor
	total      int
	totalKnown bool
	assets     []domain.Asset
	ids        map[string]struct{}
	cancelLoad context.CancelFunc
	emptyFail  bool // First page of the selected source failed
}

// Option configures a Catalog
type Option func(*Catalog)

// WithPageSize sets the number of assets fetched per page
func WithPageSize(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithObserver registers the receiver of change events
func WithObserver(o Observer) Option {
	return func(c *Catalog) { c.observer = o }
}

// WithFallback sets how a replacement source is chosen on refresh
func WithFallback(r FallbackResolver) Option {
	return func(c *Catalog) { c.fallback = r }
}

// New creates a catalog with no source selected.
func New(pager domain.AssetPager, logger *slog.Logger, opts ...Option) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{
		pager:    pager,
		logger:   logger,
		pageSize: DefaultPageSize,
		observer: NoOpObserver{},
		ids:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelectSource resets the cursor and sequence for source and loads the first
// page. Reselecting the current source is a no-op, unless its first page
// failed, in which case the load is retried.
func (c *Catalog) SelectSource(ctx context.Context, source domain.Source) (PageResult, error) {
	c.mu.Lock()
	if c.selected && c.source == source && c.emptyFail {
		c.emptyFail = false
		c.mu.Unlock()
		c.logger.Info("retrying first page", "source", source.ID())
		return c.LoadNextPage(ctx)
	}
	if c.selected && c.source == source {
		epoch := c.epoch
		c.mu.Unlock()
		c.logger.Debug("source already selected", "source", source.ID())
		return PageResult{Epoch: epoch}, nil
	}
	c.resetLocked(source)
	ev := c.eventLocked(EventReset, 0)
	c.mu.Unlock()

	c.logger.Info("selected source", "source", source.ID(), "epoch", ev.Epoch)
	c.observer.OnCatalogChanged(ev)

	return c.LoadNextPage(ctx)
}

// resetLocked starts a new cursor epoch. Any in-flight load is cancelled and
// its result will be discarded.
func (c *Catalog) resetLocked(source domain.Source) {
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}
	c.selected = true
	c.source = source
	c.epoch++
	c.cursor = domain.NewCursor(source, c.pageSize)
	c.total = 0
	c.totalKnown = false
	c.assets = nil
	c.ids = make(map[string]struct{})
	c.emptyFail = false
}

// LoadNextPage fetches at most one page at the cursor. It is a no-op once the
// cursor reaches the end of the source. Errors leave state untouched.
func (c *Catalog) LoadNextPage(ctx context.Context) (PageResult, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	c.mu.Lock()
	if !c.selected {
		c.mu.Unlock()
		return PageResult{}, ErrNoSource
	}
	epoch := c.epoch
	source := c.source
	cursor := c.cursor
	total, totalKnown := c.total, c.totalKnown
	loadCtx, cancel := context.WithCancel(ctx)
	c.cancelLoad = cancel
	c.mu.Unlock()

	defer func() {
		cancel()
		c.mu.Lock()
		if c.epoch == epoch {
			c.cancelLoad = nil
		}
		c.mu.Unlock()
	}()

	if !totalKnown {
		n, err := c.pager.AssetCount(loadCtx, source)
		if err != nil {
			return c.loadFailed(epoch, source, "count assets", err)
		}
		total = n
	}

	if cursor.Offset >= total {
		c.mu.Lock()
		if c.epoch == epoch {
			c.total, c.totalKnown = total, true
		}
		c.mu.Unlock()
		return PageResult{Epoch: epoch, Exhausted: true}, nil
	}

	page, err := c.pager.FetchPage(loadCtx, source, cursor.Offset, cursor.PageSize)
	if err != nil {
		return c.loadFailed(epoch, source, "fetch page", err)
	}

	c.mu.Lock()
	if c.epoch != epoch || c.cursor.Offset != cursor.Offset {
		c.mu.Unlock()
		c.logger.Debug("discarding stale page", "source", source.ID(), "epoch", epoch, "offset", cursor.Offset)
		return PageResult{Epoch: epoch, Stale: true}, nil
	}

	c.total, c.totalKnown = total, true
	c.emptyFail = false
	appended := c.appendLocked(page)
	if len(page) == 0 {
		// The source shrank under us; what we have is the end
		c.total = c.cursor.Offset
	}
	c.cursor = c.cursor.Advance(len(page), c.total)
	result := PageResult{
		Epoch:     epoch,
		Fetched:   len(page),
		Appended:  appended,
		Exhausted: c.cursor.Offset >= c.total,
	}
	ev := c.eventLocked(EventAppended, appended)
	c.mu.Unlock()

	c.logger.Debug("loaded page",
		"source", source.ID(), "offset", cursor.Offset, "fetched", len(page),
		"appended", appended, "total", total)
	c.observer.OnCatalogChanged(ev)
	return result, nil
}

// loadFailed reports provider errors, or discards them when the epoch moved on
func (c *Catalog) loadFailed(epoch uint64, source domain.Source, op string, err error) (PageResult, error) {
	c.mu.Lock()
	stale := c.epoch != epoch
	if !stale && len(c.assets) == 0 {
		c.emptyFail = true
	}
	c.mu.Unlock()
	if stale {
		c.logger.Debug("discarding failed stale load", "source", source.ID(), "epoch", epoch, "error", err)
		return PageResult{Epoch: epoch, Stale: true}, nil
	}
	c.logger.Error("failed to load assets", "op", op, "source", source.ID(), "error", err)
	return PageResult{Epoch: epoch}, fmt.Errorf("%w: %s %s: %w", domain.ErrEnumerationFailed, op, source.ID(), err)
}

// appendLocked appends assets not already present and returns how many were added
func (c *Catalog) appendLocked(page []domain.Asset) int {
	added := 0
	for _, a := range page {
		if _, dup := c.ids[a.ID]; dup {
			continue
		}
		c.ids[a.ID] = struct{}{}
		c.assets = append(c.assets, a)
		added++
	}
	return added
}

// Refresh re-derives the source's size after a library change. If the
// selected album is gone it falls back to the first visible album (or all
// assets). Otherwise the loaded prefix is reconciled with the source: assets
// newer than the loaded head are prepended, deleted assets are dropped, and
// the cursor is moved to just past the last loaded asset still present, so
// paging continues without gaps.
func (c *Catalog) Refresh(ctx context.Context) (RefreshResult, error) {
	c.loadMu.Lock()

	c.mu.RLock()
	selected, source, epoch := c.selected, c.source, c.epoch
	empty := len(c.assets) == 0
	c.mu.RUnlock()

	if !selected {
		c.loadMu.Unlock()
		return RefreshResult{}, ErrNoSource
	}

	count, err := c.pager.AssetCount(ctx, source)
	if err != nil {
		c.loadMu.Unlock()
		if errors.Is(err, domain.ErrAlbumNotFound) && !source.IsAll() {
			return c.fallBack(ctx, source)
		}
		c.logger.Error("failed to refresh source", "source", source.ID(), "error", err)
		return RefreshResult{Source: source}, fmt.Errorf("%w: count assets %s: %w", domain.ErrEnumerationFailed, source.ID(), err)
	}

	if empty {
		c.mu.Lock()
		if c.epoch == epoch {
			c.total, c.totalKnown = count, true
		}
		c.mu.Unlock()
		c.loadMu.Unlock()
		_, err := c.LoadNextPage(ctx)
		return RefreshResult{Source: source}, err
	}

	head, prepended, err := c.reconcile(ctx, source, count)
	if err != nil {
		c.loadMu.Unlock()
		c.logger.Error("failed to refresh source", "source", source.ID(), "error", err)
		return RefreshResult{Source: source}, fmt.Errorf("%w: fetch page %s: %w", domain.ErrEnumerationFailed, source.ID(), err)
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		c.loadMu.Unlock()
		return RefreshResult{Source: source, Stale: true}, nil
	}
	added, removed := c.replaceLocked(head)
	c.total, c.totalKnown = count, true
	c.cursor.Offset = min(len(head), count)
	ev := c.eventLocked(EventMerged, added)
	ev.Removed = removed
	c.mu.Unlock()
	c.loadMu.Unlock()

	c.logger.Info("refreshed source", "source", source.ID(), "prepended", prepended, "removed", removed, "total", count)
	c.observer.OnCatalogChanged(ev)

	result := RefreshResult{Source: source, Prepended: prepended, Removed: removed}
	if len(head) == 0 {
		// Everything loaded was deleted; start over from the head
		_, err := c.LoadNextPage(ctx)
		return result, err
	}
	return result, nil
}

// reconcile pages from the head of the source until every loaded asset has
// been seen or the source ends. It returns the source's prefix up to and
// including the last loaded asset still present, and how many assets precede
// the first loaded one.
func (c *Catalog) reconcile(ctx context.Context, source domain.Source, count int) ([]domain.Asset, int, error) {
	c.mu.RLock()
	pending := make(map[string]struct{}, len(c.ids))
	for id := range c.ids {
		pending[id] = struct{}{}
	}
	c.mu.RUnlock()

	var head []domain.Asset
	last, prepended := -1, 0
	for offset := 0; offset < count && len(pending) > 0; {
		page, err := c.pager.FetchPage(ctx, source, offset, c.pageSize)
		if err != nil {
			return nil, 0, err
		}
		if len(page) == 0 {
			break
		}
		for _, a := range page {
			head = append(head, a)
			if _, loaded := pending[a.ID]; loaded {
				delete(pending, a.ID)
				last = len(head) - 1
			} else if last < 0 {
				prepended++
			}
			if len(pending) == 0 {
				break
			}
		}
		offset += len(page)
	}
	if last < 0 {
		return nil, 0, nil
	}
	return head[:last+1], prepended, nil
}

// replaceLocked swaps in a reconciled sequence and returns how many assets
// it gained and how many previously loaded assets it no longer contains.
func (c *Catalog) replaceLocked(head []domain.Asset) (added, removed int) {
	ids := make(map[string]struct{}, len(head))
	assets := make([]domain.Asset, 0, len(head))
	kept := 0
	for _, a := range head {
		if _, dup := ids[a.ID]; dup {
			continue
		}
		if _, loaded := c.ids[a.ID]; loaded {
			kept++
		}
		ids[a.ID] = struct{}{}
		assets = append(assets, a)
	}
	added, removed = len(assets)-kept, len(c.assets)-kept
	c.assets = assets
	c.ids = ids
	return added, removed
}

func (c *Catalog) fallBack(ctx context.Context, gone domain.Source) (RefreshResult, error) {
	next := domain.AllAssets
	if c.fallback != nil {
		album, ok, err := c.fallback.FirstVisibleAlbum(ctx)
		switch {
		case err != nil:
			c.logger.Warn("failed to resolve fallback album, showing all assets", "error", err)
		case ok:
			next = domain.AlbumSource(album.ID)
		}
	}
	c.logger.Info("selected album disappeared", "album", gone.ID(), "fallback", next.ID())

	_, err := c.SelectSource(ctx, next)
	return RefreshResult{Source: next, FellBack: true}, err
}

// === Reads ===

// Source returns the selected source and whether one is selected
func (c *Catalog) Source() (domain.Source, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source, c.selected
}

// Cursor returns the current cursor
func (c *Catalog) Cursor() domain.Cursor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cursor
}

// Epoch returns the current cursor epoch
func (c *Catalog) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Total returns the last known size of the source
func (c *Catalog) Total() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total, c.totalKnown
}

// Len returns the number of loaded assets
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.assets)
}

// Snapshot returns a copy of the loaded sequence
func (c *Catalog) Snapshot() []domain.Asset {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Catalog) snapshotLocked() []domain.Asset {
	out := make([]domain.Asset, len(c.assets))
	copy(out, c.assets)
	return out
}

// At returns the asset at index i
func (c *Catalog) At(i int) (domain.Asset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.assets) {
		return domain.Asset{}, false
	}
	return c.assets[i], true
}

// IndexOf returns the position of the asset with id, or -1
func (c *Catalog) IndexOf(id string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.ids[id]; !ok {
		return -1
	}
	for i, a := range c.assets {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// Exhausted reports whether every asset of the source has been paged in
func (c *Catalog) Exhausted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalKnown && c.cursor.Offset >= c.total
}

// NearEnd reports whether index is within lookahead of the last loaded asset
// and more assets remain, i.e. the caller should load the next page.
func (c *Catalog) NearEnd(index, lookahead int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.totalKnown && c.cursor.Offset >= c.total {
		return false
	}
	return index >= len(c.assets)-1-lookahead
}
