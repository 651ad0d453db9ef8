// Package search filters album titles for the sidebar's type-to-filter.
package search

import (
	"sort"
	"strings"

	lfuzzy "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/sahilm/fuzzy"

	"github.com/mmcdole/glimpse/internal/domain"
)

// Match is one album matching a filter query
type Match struct {
	Album          domain.Album
	MatchedIndexes []int // Byte offsets in the lowercased title, for highlighting
	Score          int   // Higher is better
}

// Index implements sahilm/fuzzy.Source over album titles
type Index struct {
	albums      []domain.Album
	lowerTitles []string
}

// NewIndex builds an index over albums in their display order
func NewIndex(albums []domain.Album) *Index {
	idx := &Index{
		albums:      albums,
		lowerTitles: make([]string, len(albums)),
	}
	for i, a := range albums {
		idx.lowerTitles[i] = strings.ToLower(a.DisplayTitle())
	}
	return idx
}

// String returns the lowercase title at index i (implements fuzzy.Source)
func (idx *Index) String(i int) string { return idx.lowerTitles[i] }

// Len returns the number of albums (implements fuzzy.Source)
func (idx *Index) Len() int { return len(idx.albums) }

// Filter returns the albums matching query, best first. An empty query
// returns every album in display order.
//
// Subsequence matches come first. Titles that only match once accents are
// folded ("cafe" for "Café") follow, ranked by edit distance.
func (idx *Index) Filter(query string) []Match {
	query = strings.TrimSpace(query)
	if query == "" {
		out := make([]Match, len(idx.albums))
		for i, a := range idx.albums {
			out[i] = Match{Album: a}
		}
		return out
	}

	found := fuzzy.FindFrom(strings.ToLower(query), idx)
	matched := make(map[int]bool, len(found))
	out := make([]Match, 0, len(found))
	for _, m := range found {
		matched[m.Index] = true
		out = append(out, Match{
			Album:          idx.albums[m.Index],
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		})
	}

	ranks := lfuzzy.RankFindNormalizedFold(query, idx.lowerTitles)
	sort.Sort(ranks)
	for _, r := range ranks {
		if matched[r.OriginalIndex] {
			continue
		}
		matched[r.OriginalIndex] = true
		out = append(out, Match{
			Album: idx.albums[r.OriginalIndex],
			Score: -r.Distance,
		})
	}
	return out
}
