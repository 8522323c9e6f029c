package isnad

import "fmt"

// IndexScope decides whether content keys are shared across sources.
type IndexScope string

const (
	ScopeGlobal IndexScope = "global" // same text from any source collides
	ScopeSource IndexScope = "source" // keys are qualified by chain source
)

// ContentOptions configures the content index.
type ContentOptions struct {
	KeyChars    int
	MinKeyChars int
	Scope       IndexScope
}

// DefaultContentOptions mirrors the reference corpus conventions.
var DefaultContentOptions = ContentOptions{KeyChars: 100, MinKeyChars: 15, Scope: ScopeGlobal}

// ContentEntry is one reference chain filed under a content key.
type ContentEntry struct {
	ChainID string  `json:"chain_id"`
	IDs     []int64 `json:"ids"`
}

// ContentIndex files reference chains by the normalized prefix of their text.
type ContentIndex struct {
	opts    ContentOptions
	buckets map[string][]ContentEntry
}

// BuildContentIndex indexes every reference chain with a usable content key.
func BuildContentIndex(corpus []GroundTruthChain, opts ContentOptions) *ContentIndex {
	if opts.KeyChars <= 0 {
		opts.KeyChars = DefaultContentOptions.KeyChars
	}
	if opts.Scope == "" {
		opts.Scope = ScopeGlobal
	}
	ix := &ContentIndex{opts: opts, buckets: make(map[string][]ContentEntry)}
	for _, g := range corpus {
		key, ok := ix.key(g.Source, g.Content)
		if !ok {
			continue
		}
		ix.buckets[key] = append(ix.buckets[key], ContentEntry{ChainID: g.ID, IDs: g.IDs()})
	}
	return ix
}

func (ix *ContentIndex) key(source, content string) (string, bool) {
	k, ok := ContentKey(content, ix.opts.KeyChars, ix.opts.MinKeyChars)
	if !ok {
		return "", false
	}
	if ix.opts.Scope == ScopeSource {
		k = source + "\x00" + k
	}
	return k, true
}

// Lookup returns the reference chains sharing the content key of text.
func (ix *ContentIndex) Lookup(source, content string) []ContentEntry {
	k, ok := ix.key(source, content)
	if !ok {
		return nil
	}
	return ix.buckets[k]
}

// Len returns the number of distinct keys.
func (ix *ContentIndex) Len() int { return len(ix.buckets) }

// ContentDecision is the plan for one chain. Positions and IDs are aligned.
type ContentDecision struct {
	Positions []int
	IDs       []int64
	Skip      string
}

// ContentMatcher fills unresolved mentions from a uniquely matching reference chain.
type ContentMatcher struct {
	index *ContentIndex
}

func NewContentMatcher(index *ContentIndex) *ContentMatcher {
	return &ContentMatcher{index: index}
}

// Plan decides whether the unresolved mentions of c can take the identifiers
// of a reference chain. It assigns all or nothing: exactly one reference chain
// must match, and the identifiers it adds beyond those already present must
// number exactly the unresolved slots. They are handed out in chain order.
func (m *ContentMatcher) Plan(c *Chain) ContentDecision {
	slots := c.Unresolved()
	if len(slots) == 0 {
		return ContentDecision{Skip: "resolved"}
	}
	if c.Content == "" {
		return ContentDecision{Skip: "no content"}
	}
	entries := m.index.Lookup(c.Source, c.Content)
	switch len(entries) {
	case 0:
		return ContentDecision{Skip: "no match"}
	case 1:
	default:
		return ContentDecision{Skip: fmt.Sprintf("ambiguous: %d reference chains", len(entries))}
	}

	have := make(map[int64]struct{}, len(c.Mentions))
	for _, mention := range c.Mentions {
		if mention.Resolution.Resolved() {
			have[mention.Resolution.ID] = struct{}{}
		}
	}
	var extra []int64
	for _, id := range entries[0].IDs {
		if _, ok := have[id]; ok {
			continue
		}
		have[id] = struct{}{}
		extra = append(extra, id)
	}
	if len(extra) != len(slots) {
		return ContentDecision{Skip: fmt.Sprintf("count mismatch: %d extra ids for %d slots", len(extra), len(slots))}
	}
	return ContentDecision{Positions: slots, IDs: extra}
}
