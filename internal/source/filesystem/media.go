package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"

	"github.com/mmcdole/glimpse/internal/domain"
)

const (
	displayQuality   = 85
	thumbnailQuality = 75
)

// ResolveImage decodes the asset, bounds it to MaxDisplayEdge and returns JPEG
// bytes. Live photos resolve to their still.
func (p *Provider) ResolveImage(ctx context.Context, asset domain.Asset) ([]byte, error) {
	img, err := p.open(ctx, asset)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w, h := fit(img.Bounds().Dx(), img.Bounds().Dy(), p.opts.MaxDisplayEdge)
	if w != img.Bounds().Dx() || h != img.Bounds().Dy() {
		img = transform.Resize(img, w, h, transform.Lanczos)
	}
	return encodeJPEG(img, displayQuality)
}

// Thumbnail returns an aspect-filled JPEG, served from the cache when the
// file is unchanged.
func (p *Provider) Thumbnail(ctx context.Context, asset domain.Asset, width, height int) ([]byte, error) {
	if asset.IsVideo() {
		return nil, fmt.Errorf("%w: no still for video %s", domain.ErrDecodeFailed, asset.ID)
	}
	if p.cache != nil {
		if data, ok := p.cache.GetThumbnail(asset.ID, width, height, asset.ModTime); ok {
			return data, nil
		}
	}

	img, err := p.open(ctx, asset)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := encodeJPEG(aspectFill(img, width, height), thumbnailQuality)
	if err != nil {
		return nil, err
	}
	if p.cache != nil {
		if err := p.cache.SaveThumbnail(asset.ID, width, height, asset.ModTime, data); err != nil {
			p.logger.Warn("failed to cache thumbnail", "asset", asset.ID, "error", err)
		}
	}
	return data, nil
}

// ResolveVideo returns once the container header has been read
func (p *Provider) ResolveVideo(ctx context.Context, asset domain.Asset) (domain.VideoHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(asset.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecodeFailed, err)
	}
	defer f.Close()

	if err := checkContainer(f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDecodeFailed, asset.ID, err)
	}

	ready := make(chan struct{})
	close(ready)
	return &videoHandle{location: asset.Path, duration: asset.Duration, ready: ready}, nil
}

func (p *Provider) open(ctx context.Context, asset domain.Asset) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := imgio.Open(asset.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrDecodeFailed, asset.ID, err)
	}
	return img, nil
}

// checkContainer verifies the ISO base media "ftyp" box that QuickTime and
// MP4 files start with
func checkContainer(r io.Reader) error {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if string(header[4:8]) != "ftyp" {
		return fmt.Errorf("not an ISO media container")
	}
	return nil
}

// fit scales w x h down so the longest edge is at most max
func fit(w, h, max int) (int, int) {
	if max <= 0 || (w <= max && h <= max) {
		return w, h
	}
	if w >= h {
		return max, clampMin(h * max / w)
	}
	return clampMin(w * max / h), max
}

// aspectFill scales img to cover width x height, then crops the center
func aspectFill(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	sw, sh := b.Dx(), b.Dy()
	if sw == 0 || sh == 0 {
		return img
	}

	// Scale by the larger ratio so both edges cover the target
	rw, rh := float64(width)/float64(sw), float64(height)/float64(sh)
	scale := rw
	if rh > rw {
		scale = rh
	}
	nw := clampMin(int(float64(sw)*scale + 0.5))
	nh := clampMin(int(float64(sh)*scale + 0.5))
	if nw < width {
		nw = width
	}
	if nh < height {
		nh = height
	}
	resized := transform.Resize(img, nw, nh, transform.Lanczos)

	x := (nw - width) / 2
	y := (nh - height) / 2
	return transform.Crop(resized, image.Rect(x, y, x+width, y+height))
}

func clampMin(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imgio.JPEGEncoder(quality)(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", domain.ErrDecodeFailed, err)
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
