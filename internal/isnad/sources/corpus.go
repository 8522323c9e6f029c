package sources

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_isnad/internal/isnad"
)

// Corpus is a target corpus of narrations, each with matn segments and one
// or more chains of named narrators. Fields the resolver does not use are
// kept as read and written back unchanged.
type Corpus struct {
	source  string
	hadiths []map[string]any
	refs    []chainRef
}

type chainRef struct {
	id        string
	content   string
	narrators []map[string]any
}

// LoadCorpus reads a corpus file. source qualifies its chains for
// source-scoped content matching and may be empty.
func LoadCorpus(path, source string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sources: corpus: %w", err)
	}
	defer f.Close()
	return DecodeCorpus(bufio.NewReader(f), source)
}

// DecodeCorpus reads a corpus: a JSON list of
//
//	{"hadith_index": 1, "matn_segments": ["..."],
//	 "chains": [{"chain_id": "1", "narrators": [{"name": "...", "narrator_id": 3026}]}]}
func DecodeCorpus(r io.Reader, source string) (*Corpus, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var hadiths []map[string]any
	if err := dec.Decode(&hadiths); err != nil {
		return nil, fmt.Errorf("sources: corpus: decode: %w", err)
	}

	c := &Corpus{source: source, hadiths: hadiths}
	for hi, h := range hadiths {
		content := firstString(h["matn_segments"])
		hid := idString(h["hadith_index"], strconv.Itoa(hi+1))
		chains, _ := h["chains"].([]any)
		for ci, raw := range chains {
			ch, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			ref := chainRef{
				id:      hid + "/" + idString(ch["chain_id"], strconv.Itoa(ci)),
				content: content,
			}
			narrators, _ := ch["narrators"].([]any)
			for _, n := range narrators {
				if m, ok := n.(map[string]any); ok {
					ref.narrators = append(ref.narrators, m)
				}
			}
			c.refs = append(c.refs, ref)
		}
	}
	return c, nil
}

// Len returns the number of narrations.
func (c *Corpus) Len() int { return len(c.hadiths) }

// Chains returns a fresh copy of every chain in corpus order. A narrator that
// already carries an identifier keeps it, tagged with its recorded method or
// exact_match when none was recorded. An unresolved narrator keeps the
// candidates recorded under narrator_id_ambiguous.
func (c *Corpus) Chains() []isnad.Chain {
	out := make([]isnad.Chain, len(c.refs))
	for i, ref := range c.refs {
		ch := isnad.Chain{ID: ref.id, Source: c.source, Content: ref.content, Mentions: make([]isnad.Mention, len(ref.narrators))}
		for j, n := range ref.narrators {
			name, _ := n["name"].(string)
			m := isnad.Mention{RawText: name, Position: j, Resolution: isnad.Resolution{Method: isnad.MethodUnresolved}}
			if id, ok := narratorID(n["narrator_id"]); ok {
				method := isnad.MethodExact
				if s, _ := n["narrator_id_resolution"].(string); knownMethod(s) {
					method = isnad.Method(s)
				}
				m.Resolution = isnad.Resolution{ID: id, Method: method}
			} else {
				m.Ambiguous = narratorIDs(n["narrator_id_ambiguous"])
			}
			ch.Mentions[j] = m
		}
		out[i] = ch
	}
	return out
}

// Apply writes resolutions back into the corpus. chains must be the slice
// returned by Chains, in the same order.
func (c *Corpus) Apply(chains []isnad.Chain) error {
	if len(chains) != len(c.refs) {
		return fmt.Errorf("sources: corpus: apply: %d chains for %d in corpus", len(chains), len(c.refs))
	}
	for i, ch := range chains {
		ref := c.refs[i]
		if len(ch.Mentions) != len(ref.narrators) {
			return fmt.Errorf("sources: corpus: apply: chain %s has %d mentions, corpus has %d", ch.ID, len(ch.Mentions), len(ref.narrators))
		}
		for j, m := range ch.Mentions {
			n := ref.narrators[j]
			if m.Resolution.Resolved() {
				delete(n, "narrator_id_ambiguous")
				n["narrator_id"] = m.Resolution.ID
				n["narrator_id_resolution"] = string(m.Resolution.Method)
				continue
			}
			n["narrator_id"] = nil
			n["narrator_id_resolution"] = nil
			if len(m.Ambiguous) > 0 {
				n["narrator_id_ambiguous"] = m.Ambiguous
			}
		}
	}
	return nil
}

// Encode writes the corpus as indented JSON without HTML escaping.
func (c *Corpus) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(c.hadiths)
}

// Save writes the corpus to path atomically.
func (c *Corpus) Save(path string) error {
	err := writeFileAtomic(path, func(f *os.File) error {
		w := bufio.NewWriter(f)
		if err := c.Encode(w); err != nil {
			return err
		}
		return w.Flush()
	})
	if err != nil {
		return fmt.Errorf("sources: corpus: save %s: %w", path, err)
	}
	return nil
}

func knownMethod(s string) bool {
	for _, m := range isnad.Methods {
		if string(m) == s {
			return true
		}
	}
	return false
}

func narratorID(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		id, err := t.Int64()
		return id, err == nil && id > 0
	case string:
		id, err := parseID(t)
		return id, err == nil
	}
	return 0, false
}

func narratorIDs(v any) []int64 {
	list, _ := v.([]any)
	var out []int64
	for _, e := range list {
		if id, ok := narratorID(e); ok {
			out = append(out, id)
		}
	}
	return out
}

func idString(v any, fallback string) string {
	switch t := v.(type) {
	case json.Number:
		return t.String()
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return s
		}
	}
	return fallback
}

func firstString(v any) string {
	list, _ := v.([]any)
	for _, s := range list {
		if str, ok := s.(string); ok && strings.TrimSpace(str) != "" {
			return str
		}
	}
	return ""
}
