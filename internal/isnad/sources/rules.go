package sources

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/anatolykoptev/go_isnad/internal/isnad"
	"gopkg.in/yaml.v3"
)

const (
	contextSection = "context_mappings"
	mappingSection = "mappings"
)

// pair is one entry of a rule object. Repeated keys are kept so the rule
// tables can report them.
type pair struct {
	key   string
	value string
	ok    bool // value was a string
}

// LoadContextRules reads context rule files of the form
//
//	{"context_mappings": {"<raw>|<neighbor>": "<canonical>"}}
//
// and concatenates them in order. I/O and syntax errors are returned alone;
// malformed entries are skipped and returned joined (wrapping
// isnad.ErrMalformed) next to the rules that were read.
func LoadContextRules(paths ...string) ([]isnad.ContextRule, error) {
	var out []isnad.ContextRule
	var errs []error
	for _, path := range paths {
		pairs, err := readPairsFile(path, contextSection)
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			if skipKey(p.key) {
				continue
			}
			raw, neighbor, found := strings.Cut(p.key, "|")
			if !found || !p.ok {
				errs = append(errs, fmt.Errorf("%s: context rule %q: %w", path, p.key, isnad.ErrMalformed))
				continue
			}
			out = append(out, isnad.ContextRule{Raw: raw, Neighbor: neighbor, Canonical: p.value})
		}
	}
	return out, errors.Join(errs...)
}

// LoadNameMappings reads name mapping files of the form
//
//	{"mappings": {"<raw>": "<canonical>", "_comment": "..."}}
//
// Keys starting with "_comment" are ignored. Errors follow LoadContextRules.
func LoadNameMappings(paths ...string) ([]isnad.MappingRule, error) {
	var out []isnad.MappingRule
	var errs []error
	for _, path := range paths {
		pairs, err := readPairsFile(path, mappingSection)
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			if skipKey(p.key) {
				continue
			}
			if !p.ok {
				errs = append(errs, fmt.Errorf("%s: name mapping %q: %w", path, p.key, isnad.ErrMalformed))
				continue
			}
			out = append(out, isnad.MappingRule{Raw: p.key, Canonical: p.value})
		}
	}
	return out, errors.Join(errs...)
}

func skipKey(k string) bool { return strings.HasPrefix(k, "_comment") }

func readPairsFile(path, section string) ([]pair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sources: rules: %w", err)
	}
	defer f.Close()

	var pairs []pair
	switch FormatOf(path) {
	case YAML:
		pairs, err = readYAMLPairs(f, section)
	default:
		pairs, err = readJSONPairs(f, section)
	}
	if err != nil {
		return nil, fmt.Errorf("sources: rules: %s: %w", path, err)
	}
	return pairs, nil
}

// readJSONPairs streams the top-level object and returns the entries of the
// object stored under section in file order.
func readJSONPairs(r io.Reader, section string) ([]pair, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var out []pair
	found := false
	for dec.More() {
		key, err := stringToken(dec)
		if err != nil {
			return nil, err
		}
		if key != section {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}
		found = true
		if err := expectDelim(dec, '{'); err != nil {
			return nil, fmt.Errorf("%s: %w", section, err)
		}
		for dec.More() {
			k, err := stringToken(dec)
			if err != nil {
				return nil, err
			}
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, err
			}
			s, ok := v.(string)
			out = append(out, pair{key: k, value: s, ok: ok && s != ""})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
	}
	if !found {
		return nil, fmt.Errorf("no %q object", section)
	}
	return out, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, got %v", tok)
	}
	return s, nil
}

// readYAMLPairs walks the document node so repeated keys survive.
func readYAMLPairs(r io.Reader, section string) ([]pair, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("top level is not a mapping")
	}
	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != section {
			continue
		}
		m := root.Content[i+1]
		if m.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%s: not a mapping", section)
		}
		out := make([]pair, 0, len(m.Content)/2)
		for j := 0; j+1 < len(m.Content); j += 2 {
			k, v := m.Content[j], m.Content[j+1]
			ok := v.Kind == yaml.ScalarNode && v.ShortTag() == "!!str" && v.Value != ""
			out = append(out, pair{key: k.Value, value: v.Value, ok: ok})
		}
		return out, nil
	}
	return nil, fmt.Errorf("no %q mapping", section)
}
