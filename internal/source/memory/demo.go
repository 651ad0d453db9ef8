package memory

import (
	"fmt"
	"time"

	"github.com/mmcdole/glimpse/internal/domain"
)

var demoAlbums = []string{"Camera Roll", "Holidays", "Screenshots", "Family", "Hiking"}

// Demo returns a library of synthetic albums, one asset per hour going back
// from now. Every seventh asset is a video and every eleventh a live photo.
func Demo(perAlbum int) *Provider {
	p := New()
	now := time.Now().Truncate(time.Hour)
	n := 0
	for ai, title := range demoAlbums {
		albumID := fmt.Sprintf("album-%d", ai+1)
		p.AddAlbum(albumID, title)
		for i := 0; i < perAlbum; i++ {
			n++
			created := now.Add(-time.Duration(n*(ai+1)) * time.Hour)
			a := domain.Asset{
				ID:        fmt.Sprintf("%s/IMG_%04d", albumID, i+1),
				Kind:      domain.MediaKindPhoto,
				CreatedAt: &created,
				AlbumID:   albumID,
				Width:     64,
				Height:    48,
				ModTime:   created.Unix(),
			}
			switch {
			case n%7 == 0:
				a.Kind = domain.MediaKindVideo
				a.Duration = time.Duration(5+n%300) * time.Second
			case n%11 == 0:
				a.Kind = domain.MediaKindLivePhoto
			}
			p.AddAssets(a)
		}
	}
	return p
}
