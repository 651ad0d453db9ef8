package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"

	"github.com/mmcdole/glimpse/internal/domain"
)

// RootAlbumID identifies media stored directly in the library root
const RootAlbumID = "."

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

var videoExts = map[string]bool{
	".mov": true,
	".mp4": true,
	".m4v": true,
}

// mediaFile is one file found during a walk
type mediaFile struct {
	path    string // Absolute
	rel     string // Slash-separated, relative to root
	modTime int64
	video   bool
}

// dirFiles groups media by directory
type dirFiles map[string][]mediaFile

// walk collects media files under root, skipping dotfiles and dot-directories
func (p *Provider) walk(ctx context.Context) (dirFiles, []string, error) {
	dirs := make(dirFiles)
	var allDirs []string

	err := godirwalk.Walk(p.root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if path != p.root && strings.HasPrefix(de.Name(), ".") {
				if de.IsDir() {
					return godirwalk.SkipThis
				}
				return nil
			}
			if de.IsDir() {
				allDirs = append(allDirs, path)
				return nil
			}

			ext := strings.ToLower(filepath.Ext(path))
			isImage, isVideo := imageExts[ext], videoExts[ext]
			if !isImage && !isVideo {
				return nil
			}
			st, err := os.Stat(path)
			if err != nil {
				p.logger.Debug("skipping unreadable file", "path", path, "error", err)
				return nil
			}
			rel, err := filepath.Rel(p.root, path)
			if err != nil {
				return nil
			}
			dir := filepath.ToSlash(filepath.Dir(rel))
			dirs[dir] = append(dirs[dir], mediaFile{
				path:    path,
				rel:     filepath.ToSlash(rel),
				modTime: st.ModTime().Unix(),
				video:   isVideo,
			})
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			p.logger.Warn("failed to read library entry", "path", path, "error", err)
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, fmt.Errorf("%w: walk %s: %v", domain.ErrEnumerationFailed, p.root, err)
	}
	return dirs, allDirs, nil
}

// scan walks the tree and builds a library snapshot
func (p *Provider) scan(ctx context.Context) (*library, error) {
	dirs, allDirs, err := p.walk(ctx)
	if err != nil {
		return nil, err
	}

	var files []mediaFile
	for _, fs := range dirs {
		files = append(files, fs...)
	}
	meta := p.metadata(ctx, files)

	lib := &library{albums: make(map[string]*albumEntry, len(dirs))}
	for dir, fs := range dirs {
		assets := pairAssets(dir, fs, meta)
		if len(assets) == 0 {
			continue
		}
		sortAssets(assets)

		entry := &albumEntry{
			album: domain.Album{
				ID:         dir,
				Title:      p.albumTitle(dir),
				AssetCount: len(assets),
			},
			assets: assets,
		}
		if ts := assets[0].CreatedAt; ts != nil {
			entry.album.LatestAssetAt = ts.Unix()
		}
		lib.albums[dir] = entry
		lib.all = append(lib.all, assets...)
	}
	sortAssets(lib.all)

	p.mu.Lock()
	p.watched = allDirs
	p.mu.Unlock()

	p.logger.Debug("scanned library", "root", p.root, "albums", len(lib.albums), "assets", len(lib.all))
	return lib, nil
}

func (p *Provider) albumTitle(dir string) string {
	if dir == RootAlbumID {
		return filepath.Base(p.root)
	}
	return filepath.Base(filepath.FromSlash(dir))
}

// pairAssets turns one directory's files into assets. An image and a video
// sharing a base name form a single live photo.
func pairAssets(dir string, files []mediaFile, meta map[string]fileMeta) []domain.Asset {
	stems := make(map[string][]mediaFile)
	for _, f := range files {
		stem := strings.TrimSuffix(f.rel, filepath.Ext(f.rel))
		stems[stem] = append(stems[stem], f)
	}

	var assets []domain.Asset
	for _, group := range stems {
		var still, motion *mediaFile
		for i := range group {
			f := &group[i]
			if f.video {
				motion = f
			} else if still == nil || f.rel < still.rel {
				still = f
			}
		}

		switch {
		case still != nil && motion != nil:
			a := newAsset(dir, *still, meta[still.rel])
			a.Kind = domain.MediaKindLivePhoto
			assets = append(assets, a)
		case still != nil:
			for _, f := range group {
				assets = append(assets, newAsset(dir, f, meta[f.rel]))
			}
		default:
			for _, f := range group {
				a := newAsset(dir, f, meta[f.rel])
				a.Kind = domain.MediaKindVideo
				assets = append(assets, a)
			}
		}
	}
	return assets
}

func newAsset(dir string, f mediaFile, m fileMeta) domain.Asset {
	created := m.created(f.modTime)
	return domain.Asset{
		ID:        f.rel,
		Kind:      domain.MediaKindPhoto,
		CreatedAt: &created,
		Duration:  m.Duration,
		AlbumID:   dir,
		Path:      f.path,
		ModTime:   f.modTime,
		Width:     m.Width,
		Height:    m.Height,
	}
}
