package domain

import (
	"fmt"
	"time"
)

// MediaKind distinguishes asset types
type MediaKind int

const (
	MediaKindPhoto MediaKind = iota
	MediaKindVideo
	MediaKindLivePhoto
)

// String returns a human-readable representation of the media kind
func (k MediaKind) String() string {
	switch k {
	case MediaKindPhoto:
		return "photo"
	case MediaKindVideo:
		return "video"
	case MediaKindLivePhoto:
		return "livePhoto"
	default:
		return "unknown"
	}
}

// Asset is an opaque handle to a library item. Identity is by ID.
type Asset struct {
	ID        string        // Stable identifier, unique within the library
	Kind      MediaKind     // Photo, video or live photo
	CreatedAt *time.Time    // Capture time (nil when unknown)
	Duration  time.Duration // Video runtime (zero for photos)
	AlbumID   string        // Owning album
	Path      string        // Provider-specific location
	ModTime   int64         // Unix timestamp of the last modification

	// Technical metadata (zero when unknown)
	Width  int
	Height int
}

// Same reports whether two assets refer to the same library item.
func (a Asset) Same(other Asset) bool {
	return a.ID == other.ID
}

// IsVideo returns true for assets that resolve to a playable video
func (a Asset) IsVideo() bool {
	return a.Kind == MediaKindVideo
}

// FormattedDuration returns "mm:ss" or "hh:mm:ss" for videos, empty otherwise
func (a Asset) FormattedDuration() string {
	if a.Kind != MediaKindVideo {
		return ""
	}
	total := int(a.Duration.Round(time.Second).Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// Badge returns the overlay marker shown on thumbnails
func (a Asset) Badge() string {
	switch a.Kind {
	case MediaKindVideo:
		return "⏵ " + a.FormattedDuration()
	case MediaKindLivePhoto:
		return "◉ live"
	default:
		return ""
	}
}

// Album represents a named collection of assets
type Album struct {
	ID            string // Stable identifier
	Title         string // Display title
	AssetCount    int    // Number of qualifying assets
	LatestAssetAt int64  // Unix timestamp of the newest asset, used for ordering
}

// DisplayTitle returns the title, falling back for untitled albums
func (a Album) DisplayTitle() string {
	if a.Title == "" {
		return "Unknown Album"
	}
	return a.Title
}

// Source identifies the collection being browsed: every asset, or one album.
type Source struct {
	AlbumID string // Empty for the synthetic "all assets" source
}

// AllAssetsID is the source identifier of the synthetic all-assets source.
const AllAssetsID = "all"

// AllAssets is the synthetic source covering the whole library.
var AllAssets = Source{}

// AlbumSource returns the source for a single album.
func AlbumSource(albumID string) Source {
	return Source{AlbumID: albumID}
}

// IsAll returns true for the synthetic all-assets source
func (s Source) IsAll() bool {
	return s.AlbumID == ""
}

// ID returns "all" or the album ID
func (s Source) ID() string {
	if s.IsAll() {
		return AllAssetsID
	}
	return s.AlbumID
}

func (s Source) String() string { return s.ID() }

// Cursor is the immutable pagination position within a source.
type Cursor struct {
	SourceID string
	Offset   int
	PageSize int
}

// NewCursor returns a cursor at the start of source.
func NewCursor(source Source, pageSize int) Cursor {
	return Cursor{SourceID: source.ID(), Offset: 0, PageSize: pageSize}
}

// Advance returns a cursor moved forward by n, never past total.
func (c Cursor) Advance(n, total int) Cursor {
	next := c
	next.Offset += n
	if next.Offset > total {
		next.Offset = total
	}
	if next.Offset < c.Offset {
		next.Offset = c.Offset
	}
	return next
}

// Remaining returns how many assets are left to page through.
func (c Cursor) Remaining(total int) int {
	if c.Offset >= total {
		return 0
	}
	return total - c.Offset
}
