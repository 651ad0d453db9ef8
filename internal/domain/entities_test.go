package domain

import (
	"testing"
	"time"
)

func TestCursorAdvance(t *testing.T) {
	c := NewCursor(AllAssets, 50)
	if c.SourceID != AllAssetsID {
		t.Errorf("source id = %q", c.SourceID)
	}

	c = c.Advance(50, 120)
	c = c.Advance(50, 120)
	c = c.Advance(50, 120)
	if c.Offset != 120 {
		t.Errorf("offset = %d, want clamped 120", c.Offset)
	}
	if c.Remaining(120) != 0 {
		t.Errorf("remaining = %d", c.Remaining(120))
	}
	if back := c.Advance(-10, 120); back.Offset != 120 {
		t.Errorf("cursor moved backward to %d", back.Offset)
	}
}

func TestSource(t *testing.T) {
	if !AllAssets.IsAll() || AllAssets.ID() != "all" {
		t.Errorf("AllAssets = %+v", AllAssets)
	}
	s := AlbumSource("trip")
	if s.IsAll() || s.ID() != "trip" || s == AllAssets {
		t.Errorf("AlbumSource = %+v", s)
	}
}

func TestFormattedDuration(t *testing.T) {
	tests := []struct {
		kind MediaKind
		d    time.Duration
		want string
	}{
		{MediaKindVideo, 65 * time.Second, "01:05"},
		{MediaKindVideo, time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
		{MediaKindVideo, 1500 * time.Millisecond, "00:02"},
		{MediaKindPhoto, time.Minute, ""},
	}
	for _, tt := range tests {
		a := Asset{Kind: tt.kind, Duration: tt.d}
		if got := a.FormattedDuration(); got != tt.want {
			t.Errorf("FormattedDuration(%v, %v) = %q, want %q", tt.kind, tt.d, got, tt.want)
		}
	}
}

func TestBadge(t *testing.T) {
	if b := (Asset{Kind: MediaKindLivePhoto}).Badge(); b == "" {
		t.Error("live photo has no badge")
	}
	if b := (Asset{Kind: MediaKindPhoto}).Badge(); b != "" {
		t.Errorf("photo badge = %q", b)
	}
}
