// Package search filters rendered catalog entries by free text and a single
// OEM facet.
package search

import (
	"strings"
)

// AllFacet clears the facet when selected.
const AllFacet = "All"

// Entry is one rendered catalog entry as seen by search.
type Entry struct {
	Codename    string
	OEM         string
	DisplayName string
}

// Query is the free-text input plus the selected facet.
type Query struct {
	Text  string
	Facet string
}

// Facet is a distinct OEM value with its entry count.
type Facet struct {
	Name  string
	Count int
}

// Index is an immutable in-memory index over rendered entries.
type Index struct {
	entries  []Entry
	haystack []string
	facets   []Facet
}

// NewIndex builds an index. Entries keep their given order.
func NewIndex(entries []Entry) *Index {
	ix := &Index{
		entries:  append([]Entry(nil), entries...),
		haystack: make([]string, len(entries)),
	}
	pos := map[string]int{}
	for i, e := range entries {
		ix.haystack[i] = strings.ToLower(e.Codename + " " + e.OEM + " " + e.DisplayName)
		name := strings.TrimSpace(e.OEM)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if p, ok := pos[key]; ok {
			ix.facets[p].Count++
			continue
		}
		pos[key] = len(ix.facets)
		ix.facets = append(ix.facets, Facet{Name: name, Count: 1})
	}
	return ix
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// Entries returns a copy of all entries.
func (ix *Index) Entries() []Entry {
	if ix == nil {
		return nil
	}
	return append([]Entry(nil), ix.entries...)
}

// Facets returns distinct OEMs with counts in first-seen order.
func (ix *Index) Facets() []Facet {
	if ix == nil {
		return nil
	}
	return append([]Facet(nil), ix.facets...)
}

// Filter returns the entries matching q. The facet narrows first, then every
// whitespace token must be a substring of codename, OEM and display name.
func (ix *Index) Filter(q Query) []Entry {
	if ix == nil {
		return nil
	}
	facet := NormalizeFacet(q.Facet)
	tokens := Tokens(q.Text)
	out := make([]Entry, 0, len(ix.entries))
	for i, e := range ix.entries {
		if facet != "" && !strings.EqualFold(strings.TrimSpace(e.OEM), facet) {
			continue
		}
		if !containsAll(ix.haystack[i], tokens) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Tokens lower-cases and splits text on whitespace.
func Tokens(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// NormalizeFacet maps "All" and blank values to no facet.
func NormalizeFacet(f string) string {
	f = strings.TrimSpace(f)
	if strings.EqualFold(f, AllFacet) {
		return ""
	}
	return f
}

func containsAll(haystack string, tokens []string) bool {
	for _, t := range tokens {
		if !strings.Contains(haystack, t) {
			return false
		}
	}
	return true
}
