package isnad

import (
	"cmp"
	"slices"
)

// Lookup is the immutable name table shared by every resolver. A normalized
// form is either unique (one identifier) or a collision (two or more), never both.
type Lookup struct {
	unique     map[string]int64
	collisions map[string][]int64
	variants   map[int64][]string
}

// BuildLookup normalizes every variant of every record and partitions the
// normalized forms into unique entries and collisions. Records may repeat an
// identifier; their variants are merged. Input order does not affect the result.
func BuildLookup(records []Record) *Lookup {
	owners := make(map[string]map[int64]struct{})
	perID := make(map[int64]map[string]struct{})

	for _, rec := range records {
		if rec.ID == 0 {
			continue
		}
		for _, v := range rec.Variants {
			norm := Normalize(v)
			if norm == "" {
				continue
			}
			if owners[norm] == nil {
				owners[norm] = make(map[int64]struct{})
			}
			owners[norm][rec.ID] = struct{}{}
			if perID[rec.ID] == nil {
				perID[rec.ID] = make(map[string]struct{})
			}
			perID[rec.ID][norm] = struct{}{}
		}
	}

	l := &Lookup{
		unique:     make(map[string]int64, len(owners)),
		collisions: make(map[string][]int64),
		variants:   make(map[int64][]string, len(perID)),
	}
	for norm, ids := range owners {
		if len(ids) == 1 {
			for id := range ids {
				l.unique[norm] = id
			}
			continue
		}
		set := make([]int64, 0, len(ids))
		for id := range ids {
			set = append(set, id)
		}
		slices.Sort(set)
		l.collisions[norm] = set
	}
	for id, norms := range perID {
		list := make([]string, 0, len(norms))
		for n := range norms {
			list = append(list, n)
		}
		// longest first, ties alphabetical
		slices.SortFunc(list, func(a, b string) int {
			if c := cmp.Compare(len(b), len(a)); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		l.variants[id] = list
	}
	return l
}

// Unique returns the identifier owning a normalized form unambiguously.
func (l *Lookup) Unique(norm string) (int64, bool) {
	id, ok := l.unique[norm]
	return id, ok
}

// Collision returns the sorted identifiers sharing a normalized form, or nil.
func (l *Lookup) Collision(norm string) []int64 {
	return l.collisions[norm]
}

// Variants returns the normalized variants known for an identifier, longest first.
func (l *Lookup) Variants(id int64) []string {
	return l.variants[id]
}

// Stats reports table sizes.
func (l *Lookup) Stats() (unique, collisions, narrators int) {
	return len(l.unique), len(l.collisions), len(l.variants)
}
