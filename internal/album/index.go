package album

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/mmcdole/glimpse/internal/domain"
)

// Index produces the ordered, visibility-filtered album list.
// Visibility is loaded from the SettingsStore once, when the index is created.
type Index struct {
	lister   domain.AlbumLister
	settings domain.SettingsStore
	logger   *slog.Logger

	mu         sync.RWMutex
	visibility map[string]bool
}

// NewIndex creates an album index and loads persisted visibility.
func NewIndex(lister domain.AlbumLister, settings domain.SettingsStore, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Index{lister: lister, settings: settings, logger: logger}

	var data []byte
	if settings != nil {
		data, _ = settings.Get(SettingsKey)
	}
	idx.visibility = decodeVisibility(data, logger)
	logger.Debug("loaded album visibility", "entries", len(idx.visibility))
	return idx
}

// ListAlbums returns non-empty albums, newest first, hiding invisible albums
// unless includeHidden is set.
func (i *Index) ListAlbums(ctx context.Context, includeHidden bool) ([]domain.Album, error) {
	all, err := i.lister.ListAlbums(ctx)
	if err != nil {
		i.logger.Error("failed to list albums", "error", err)
		return nil, fmt.Errorf("%w: list albums: %v", domain.ErrEnumerationFailed, err)
	}

	albums := make([]domain.Album, 0, len(all))
	for _, a := range all {
		if a.AssetCount <= 0 {
			continue
		}
		if !includeHidden && !i.IsVisible(a.ID) {
			continue
		}
		albums = append(albums, a)
	}

	sortAlbums(albums)
	i.logger.Debug("listed albums", "count", len(albums), "includeHidden", includeHidden)
	return albums, nil
}

// sortAlbums orders by latest asset descending, then ID
func sortAlbums(albums []domain.Album) {
	sort.SliceStable(albums, func(a, b int) bool {
		if albums[a].LatestAssetAt != albums[b].LatestAssetAt {
			return albums[a].LatestAssetAt > albums[b].LatestAssetAt
		}
		return albums[a].ID < albums[b].ID
	})
}

// SetVisibility updates the in-memory map and persists it before returning.
// A persistence failure is returned but the in-memory change is kept.
func (i *Index) SetVisibility(albumID string, visible bool) error {
	i.mu.Lock()
	i.visibility[albumID] = visible
	data, err := encodeVisibility(i.visibility)
	i.mu.Unlock()

	if err != nil {
		i.logger.Error("failed to encode album visibility", "error", err)
		return fmt.Errorf("%w: encode: %v", domain.ErrPersistenceFailed, err)
	}
	if i.settings == nil {
		return nil
	}
	if err := i.settings.Set(SettingsKey, data); err != nil {
		i.logger.Error("failed to persist album visibility", "error", err, "albumID", albumID)
		return fmt.Errorf("%w: %v", domain.ErrPersistenceFailed, err)
	}

	i.logger.Info("album visibility changed", "albumID", albumID, "visible", visible)
	return nil
}

// IsVisible defaults to true for albums with no stored entry
func (i *Index) IsVisible(albumID string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	visible, ok := i.visibility[albumID]
	return !ok || visible
}

// Visibility returns a copy of the stored visibility entries
func (i *Index) Visibility() map[string]bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make(map[string]bool, len(i.visibility))
	for k, v := range i.visibility {
		out[k] = v
	}
	return out
}

// FirstVisibleAlbum returns the first visible album in sorted order.
func (i *Index) FirstVisibleAlbum(ctx context.Context) (domain.Album, bool, error) {
	albums, err := i.ListAlbums(ctx, false)
	if err != nil {
		return domain.Album{}, false, err
	}
	if len(albums) == 0 {
		return domain.Album{}, false, nil
	}
	return albums[0], true, nil
}
