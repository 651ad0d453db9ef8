package filesystem

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/barasher/go-exiftool"
)

const exifDate = "2006:01:02 15:04:05"

// exifBatch is the number of files handed to exiftool per call
const exifBatch = 64

// dateFields are tried in order; videos usually only carry CreateDate
var dateFields = []string{"DateTimeOriginal", "CreateDate", "MediaCreateDate"}

// fileMeta is the cached per-file metadata
type fileMeta struct {
	CreatedAt int64         `json:"created_at,omitempty"` // Unix seconds, zero when unknown
	Duration  time.Duration `json:"duration,omitempty"`
	Width     int           `json:"width,omitempty"`
	Height    int           `json:"height,omitempty"`
}

// created returns the capture time, falling back to modTime
func (m fileMeta) created(modTime int64) time.Time {
	if m.CreatedAt != 0 {
		return time.Unix(m.CreatedAt, 0).UTC()
	}
	return time.Unix(modTime, 0).UTC()
}

// metadata returns metadata keyed by relative path, reading the cache first
func (p *Provider) metadata(ctx context.Context, files []mediaFile) map[string]fileMeta {
	out := make(map[string]fileMeta, len(files))
	var missing []mediaFile
	for _, f := range files {
		var m fileMeta
		if p.cache != nil && p.cache.GetMetadata(f.rel, f.modTime, &m) {
			out[f.rel] = m
			continue
		}
		missing = append(missing, f)
	}
	if len(missing) == 0 {
		return out
	}

	extracted := p.extract(ctx, missing)
	for _, f := range missing {
		m := extracted[f.rel]
		if m.Width == 0 && !f.video {
			m.Width, m.Height = decodeDimensions(f.path)
		}
		out[f.rel] = m
		if p.cache != nil {
			if err := p.cache.SaveMetadata(f.rel, f.modTime, m); err != nil {
				p.logger.Warn("failed to cache metadata", "asset", f.rel, "error", err)
			}
		}
	}
	p.logger.Debug("extracted metadata", "files", len(missing))
	return out
}

// extract runs exiftool over files in batches. Without exiftool it returns
// an empty map so modification times are used.
func (p *Provider) extract(ctx context.Context, files []mediaFile) map[string]fileMeta {
	out := make(map[string]fileMeta, len(files))

	p.exifMu.Lock()
	defer p.exifMu.Unlock()
	if p.exif == nil {
		return out
	}

	byPath := make(map[string]string, len(files))
	for start := 0; start < len(files); start += exifBatch {
		if ctx.Err() != nil {
			return out
		}
		end := start + exifBatch
		if end > len(files) {
			end = len(files)
		}
		paths := make([]string, 0, end-start)
		for _, f := range files[start:end] {
			paths = append(paths, f.path)
			byPath[f.path] = f.rel
		}

		for _, fm := range p.exif.ExtractMetadata(paths...) {
			if fm.Err != nil {
				p.logger.Debug("exiftool could not read file", "path", fm.File, "error", fm.Err)
				continue
			}
			out[byPath[fm.File]] = fromExif(fm)
		}
	}
	return out
}

func fromExif(fm exiftool.FileMetadata) fileMeta {
	var m fileMeta
	for _, field := range dateFields {
		s, err := fm.GetString(field)
		if err != nil {
			continue
		}
		if t, ok := parseExifDate(s); ok {
			m.CreatedAt = t.Unix()
			break
		}
	}
	if w, err := fm.GetInt("ImageWidth"); err == nil {
		m.Width = int(w)
	}
	if h, err := fm.GetInt("ImageHeight"); err == nil {
		m.Height = int(h)
	}
	if s, err := fm.GetString("Duration"); err == nil {
		m.Duration = parseExifDuration(s)
	}
	return m
}

// parseExifDate accepts "2006:01:02 15:04:05" with an optional zone suffix.
// QuickTime writes an all-zero date when the field is unset.
func parseExifDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if len(s) < len(exifDate) || strings.HasPrefix(s, "0000") {
		return time.Time{}, false
	}
	if t, err := time.Parse(exifDate+"-07:00", s); err == nil {
		return t, true
	}
	if t, err := time.Parse(exifDate+"Z07:00", s); err == nil {
		return t, true
	}
	t, err := time.Parse(exifDate, s[:len(exifDate)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseExifDuration accepts exiftool's "12.34 s" and "0:01:05" forms
func parseExifDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "(approx)")
	s = strings.TrimSpace(s)

	if strings.HasSuffix(s, " s") || !strings.Contains(s, ":") {
		secs, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, " s")), 64)
		if err != nil || secs < 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}

	var total float64
	for _, part := range strings.Split(s, ":") {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0
		}
		total = total*60 + v
	}
	return time.Duration(total * float64(time.Second))
}

func decodeDimensions(path string) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
