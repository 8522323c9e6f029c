package isnad

import "strings"

// Outcome classifies a canonical resolution.
type Outcome int

const (
	NotFound Outcome = iota
	Ambiguous
	Found
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Ambiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// Match is the result of resolving one candidate name.
type Match struct {
	ID         int64   `json:"id,omitempty"`
	Outcome    Outcome `json:"-"`
	Key        string  `json:"key,omitempty"`        // normalized window that decided the outcome
	Candidates []int64 `json:"candidates,omitempty"` // identifiers still in play when ambiguous
}

// Resolve maps a candidate name to an identifier. The full normalized name is
// tried first, then progressively shorter prefixes (last word dropped each
// step). A collision at some prefix is settled by eliminating identifiers that
// own a longer variant the candidate contradicts; if that leaves anything but
// a single survivor the name is ambiguous and shorter prefixes are not tried.
func (l *Lookup) Resolve(name string) Match {
	full := Normalize(name)
	tokens := Tokens(full)
	metrics.CanonicalCalls.Add(1)

	for end := len(tokens); end > 0; end-- {
		key := strings.Join(tokens[:end], " ")
		if id, ok := l.unique[key]; ok {
			metrics.CanonicalFound.Add(1)
			return Match{ID: id, Outcome: Found, Key: key}
		}
		ids, ok := l.collisions[key]
		if !ok {
			continue
		}
		survivors := l.eliminate(key, full, ids)
		if len(survivors) == 1 {
			metrics.CanonicalFound.Add(1)
			return Match{ID: survivors[0], Outcome: Found, Key: key}
		}
		metrics.CanonicalAmbiguous.Add(1)
		if len(survivors) == 0 {
			survivors = ids
		}
		return Match{Outcome: Ambiguous, Key: key, Candidates: survivors}
	}
	metrics.CanonicalNotFound.Add(1)
	return Match{Outcome: NotFound}
}

// eliminate drops every identifier owning a variant that extends key but is
// not itself a prefix of the full candidate.
func (l *Lookup) eliminate(key, full string, ids []int64) []int64 {
	var survivors []int64
	for _, id := range ids {
		if !l.contradicts(id, key, full) {
			survivors = append(survivors, id)
		}
	}
	return survivors
}

func (l *Lookup) contradicts(id int64, key, full string) bool {
	for _, v := range l.variants[id] {
		if len(v) > len(key) && strings.HasPrefix(v, key) && !strings.HasPrefix(full, v) {
			return true
		}
	}
	return false
}
