package search

import (
	"testing"

	"github.com/mmcdole/glimpse/internal/domain"
)

func albums(titles ...string) []domain.Album {
	out := make([]domain.Album, len(titles))
	for i, t := range titles {
		out[i] = domain.Album{ID: t, Title: t, AssetCount: 1}
	}
	return out
}

// filter returns the matching albums in ranked order
func filter(query string, in []domain.Album) []domain.Album {
	var out []domain.Album
	for _, m := range NewIndex(in).Filter(query) {
		out = append(out, m.Album)
	}
	return out
}

func TestFilterEmptyQueryKeepsOrder(t *testing.T) {
	in := albums("Summer", "Winter", "Paris")
	got := filter("  ", in)
	if len(got) != 3 || got[0].ID != "Summer" || got[2].ID != "Paris" {
		t.Errorf("got %v", got)
	}
}

func TestFilterSubsequence(t *testing.T) {
	idx := NewIndex(albums("Summer 2023", "Winter", "Snow Mountains"))

	matches := idx.Filter("smr")
	if len(matches) == 0 || matches[0].Album.ID != "Summer 2023" {
		t.Fatalf("matches = %+v", matches)
	}
	if len(matches[0].MatchedIndexes) != 3 {
		t.Errorf("matched indexes = %v", matches[0].MatchedIndexes)
	}
	for _, m := range matches {
		if m.Album.ID == "Winter" {
			t.Error("Winter matched smr")
		}
	}
}

func TestFilterIsCaseInsensitive(t *testing.T) {
	got := filter("PARIS", albums("Paris", "London"))
	if len(got) != 1 || got[0].ID != "Paris" {
		t.Errorf("got %v", got)
	}
}

func TestFilterFoldsAccents(t *testing.T) {
	got := filter("cafe", albums("Café Trip", "Office"))
	found := false
	for _, a := range got {
		if a.ID == "Café Trip" {
			found = true
		}
	}
	if !found {
		t.Errorf("accented title not matched: %v", got)
	}
}

func TestFilterNoMatch(t *testing.T) {
	if got := filter("xyz", albums("Paris", "London")); len(got) != 0 {
		t.Errorf("got %v", got)
	}
}
