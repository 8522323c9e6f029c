package sources

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/anatolykoptev/go_isnad/internal/isnad"
	"gopkg.in/yaml.v3"
)

// LoadRegistry reads a narrator registry: an object mapping each identifier
// to the list of its name variants.
//
//	{"3026": ["عائشة", "عائشة بنت أبي بكر"], ...}
//
// Entries with a bad identifier are skipped and reported in err, joined and
// wrapping isnad.ErrMalformed; the records read are returned either way.
func LoadRegistry(path string) ([]isnad.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sources: registry: %w", err)
	}
	defer f.Close()
	return DecodeRegistry(f, FormatOf(path))
}

// DecodeRegistry reads a registry from r. Records come back ordered by identifier.
func DecodeRegistry(r io.Reader, format Format) ([]isnad.Record, error) {
	raw := make(map[string][]string)
	var err error
	switch format {
	case YAML:
		err = yaml.NewDecoder(r).Decode(&raw)
	default:
		err = json.NewDecoder(r).Decode(&raw)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("sources: registry: decode: %w", err)
	}

	var errs []error
	out := make([]isnad.Record, 0, len(raw))
	for key, names := range raw {
		id, perr := parseID(key)
		if perr != nil {
			errs = append(errs, fmt.Errorf("registry key %q: %v: %w", key, perr, isnad.ErrMalformed))
			continue
		}
		out = append(out, isnad.Record{ID: id, Variants: names})
	}
	slices.SortFunc(out, func(a, b isnad.Record) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(errs, func(a, b error) int { return cmp.Compare(a.Error(), b.Error()) })
	return out, errors.Join(errs...)
}
