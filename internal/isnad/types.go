// Package isnad resolves narrator names in hadith transmission chains (isnads)
// to registry identifiers.
package isnad

import (
	"errors"
	"fmt"
)

// Method tags how a mention received its identifier.
type Method string

const (
	MethodExact      Method = "exact_match"
	MethodContext    Method = "context_mapping"
	MethodName       Method = "name_mapping"
	MethodMatn       Method = "matn_chain_match"
	MethodUnresolved Method = "unresolved"
)

// Methods lists the resolving methods in pass order.
var Methods = []Method{MethodExact, MethodContext, MethodName, MethodMatn}

// ErrMalformed marks an input record that cannot take part in resolution.
var ErrMalformed = errors.New("malformed record")

// Record is one narrator of the registry with every textual variant of the name.
type Record struct {
	ID       int64    `json:"id"`
	Variants []string `json:"variants"`
}

// Resolution is the outcome attached to a mention. The zero value is unresolved.
type Resolution struct {
	ID     int64  `json:"narrator_id,omitempty"`
	Method Method `json:"method"`
}

// Resolved reports whether an identifier has been committed. An identifier
// counts whatever its method tag says.
func (r Resolution) Resolved() bool {
	return r.ID != 0
}

// Mention is one narrator name inside a chain. Ambiguous holds the colliding
// identifiers the exact pass could not separate; it is cleared once the
// mention resolves.
type Mention struct {
	RawText    string     `json:"raw_text"`
	Position   int        `json:"position"`
	Resolution Resolution `json:"resolution"`
	Ambiguous  []int64    `json:"ambiguous,omitempty"`
}

// commit sets the identifier once. Later calls on a resolved mention are no-ops.
func (m *Mention) commit(id int64, method Method) bool {
	if m.Resolution.Resolved() || id == 0 {
		return false
	}
	m.Resolution = Resolution{ID: id, Method: method}
	m.Ambiguous = nil
	return true
}

// settle makes the method tag agree with the identifier: an identifier with
// no method (or the unresolved tag) becomes exact_match, no identifier
// becomes unresolved.
func (m *Mention) settle() {
	switch {
	case m.Resolution.ID == 0:
		m.Resolution.Method = MethodUnresolved
	case m.Resolution.Method == "" || m.Resolution.Method == MethodUnresolved:
		m.Resolution.Method = MethodExact
	}
	if m.Resolution.Resolved() {
		m.Ambiguous = nil
	}
}

// Chain is the ordered list of mentions of one narration. Position 0 is the
// collector; the last position is the original source.
type Chain struct {
	ID       string    `json:"chain_id"`
	Source   string    `json:"source,omitempty"`
	Content  string    `json:"content"`
	Mentions []Mention `json:"mentions"`
}

// NewChain builds a chain of unresolved mentions from raw names.
func NewChain(id, source, content string, names ...string) Chain {
	c := Chain{ID: id, Source: source, Content: content, Mentions: make([]Mention, len(names))}
	for i, n := range names {
		c.Mentions[i] = Mention{RawText: n, Position: i, Resolution: Resolution{Method: MethodUnresolved}}
	}
	return c
}

// Unresolved returns the positions still lacking an identifier, in chain order.
func (c *Chain) Unresolved() []int {
	var out []int
	for i := range c.Mentions {
		if !c.Mentions[i].Resolution.Resolved() {
			out = append(out, i)
		}
	}
	return out
}

// neighbor returns the raw text of the mention one step closer to the collector.
func (c *Chain) neighbor(pos int) (string, bool) {
	if pos <= 0 || pos >= len(c.Mentions) {
		return "", false
	}
	return c.Mentions[pos-1].RawText, true
}

// KnownMention is a ground-truth mention whose identifier is already attached.
type KnownMention struct {
	RawText string `json:"raw_text"`
	ID      int64  `json:"id"`
}

// GroundTruthChain is a chain from the reference corpus.
type GroundTruthChain struct {
	ID       string         `json:"chain_id"`
	Source   string         `json:"source,omitempty"`
	Content  string         `json:"content"`
	Mentions []KnownMention `json:"mentions"`
}

// IDs returns the identifier sequence in chain order.
func (g GroundTruthChain) IDs() []int64 {
	ids := make([]int64, 0, len(g.Mentions))
	for _, m := range g.Mentions {
		if m.ID != 0 {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// RecordsFromGroundTruth turns every (id, name) pair of the reference corpus
// into registry records so they can be merged into the lookup.
func RecordsFromGroundTruth(chains []GroundTruthChain) []Record {
	var out []Record
	for _, c := range chains {
		for _, m := range c.Mentions {
			if m.ID == 0 || m.RawText == "" {
				continue
			}
			out = append(out, Record{ID: m.ID, Variants: []string{m.RawText}})
		}
	}
	return out
}

// Diagnostic describes an input record skipped during a run.
type Diagnostic struct {
	ChainID  string `json:"chain_id"`
	Position int    `json:"position"`
	Reason   string `json:"reason"`
}

func (d Diagnostic) Error() string {
	if d.Position < 0 {
		return fmt.Sprintf("chain %s: %s", d.ChainID, d.Reason)
	}
	return fmt.Sprintf("chain %s position %d: %s", d.ChainID, d.Position, d.Reason)
}

func (d Diagnostic) Unwrap() error { return ErrMalformed }
