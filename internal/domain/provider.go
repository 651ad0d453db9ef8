package domain

import "context"

// AlbumLister enumerates albums.
type AlbumLister interface {
	ListAlbums(ctx context.Context) ([]Album, error)
}

// AssetPager pages through the assets of a source, newest first.
type AssetPager interface {
	// AssetCount returns the number of assets in source.
	// Returns ErrAlbumNotFound when the album no longer exists.
	AssetCount(ctx context.Context, source Source) (int, error)

	// FetchPage returns at most limit assets starting at offset.
	FetchPage(ctx context.Context, source Source, offset, limit int) ([]Asset, error)
}

// MediaResolver resolves assets to media. Cancelling ctx cancels the request;
// the call must return promptly with ctx.Err() or a result.
type MediaResolver interface {
	// ResolveImage returns encoded image bytes for display
	ResolveImage(ctx context.Context, asset Asset) ([]byte, error)

	// ResolveVideo returns once the container is ready
	ResolveVideo(ctx context.Context, asset Asset) (VideoHandle, error)

	// Thumbnail returns encoded bytes of an aspect-filled thumbnail
	Thumbnail(ctx context.Context, asset Asset, width, height int) ([]byte, error)
}

// ChangeNotifier delivers an opaque "something changed" signal whenever the
// library is mutated externally. The channel closes when ctx is done.
type ChangeNotifier interface {
	Changes(ctx context.Context) (<-chan struct{}, error)
}

// MediaLibraryProvider is the full collaborator contract of a media library.
type MediaLibraryProvider interface {
	AlbumLister
	AssetPager
	MediaResolver
	ChangeNotifier
}

// SettingsStore is a synchronous durable key/value store.
type SettingsStore interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
}
