package isnad

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ContextRule maps a raw name heard from a specific neighbor to a canonical name.
// Neighbor is the raw text of the mention one position closer to the collector.
type ContextRule struct {
	Raw       string `json:"raw" yaml:"raw"`
	Neighbor  string `json:"neighbor" yaml:"neighbor"`
	Canonical string `json:"canonical" yaml:"canonical"`
}

// MappingRule maps a raw name to a canonical name regardless of context.
type MappingRule struct {
	Raw       string `json:"raw" yaml:"raw"`
	Canonical string `json:"canonical" yaml:"canonical"`
}

// ContextKey is the composite key of a context rule.
type ContextKey struct {
	Raw      string
	Neighbor string
}

func (k ContextKey) String() string { return k.Raw + "|" + k.Neighbor }

// RuleConflictError reports a rule key bound to more than one canonical name.
// The key is left out of the table.
type RuleConflictError struct {
	Table      string
	Key        string
	Canonicals []string
}

func (e *RuleConflictError) Error() string {
	return fmt.Sprintf("%s rules: key %q maps to %d canonical names: %s",
		e.Table, e.Key, len(e.Canonicals), strings.Join(e.Canonicals, " / "))
}

type ruleTable[K interface {
	comparable
	fmt.Stringer
}] struct {
	name      string
	canonical map[K]string
	conflicts map[K][]string
	order     []K
}

func newRuleTable[K interface {
	comparable
	fmt.Stringer
}](name string) *ruleTable[K] {
	return &ruleTable[K]{name: name, canonical: make(map[K]string), conflicts: make(map[K][]string)}
}

func (t *ruleTable[K]) add(k K, canonical string) {
	if prev, seen := t.conflicts[k]; seen {
		if !slices.Contains(prev, canonical) {
			t.conflicts[k] = append(prev, canonical)
		}
		return
	}
	prev, ok := t.canonical[k]
	switch {
	case !ok:
		t.canonical[k] = canonical
		t.order = append(t.order, k)
	case prev != canonical:
		delete(t.canonical, k)
		t.conflicts[k] = []string{prev, canonical}
	}
}

// errs returns conflicts in first-seen key order.
func (t *ruleTable[K]) errs() []error {
	var out []error
	for _, k := range t.order {
		if c, ok := t.conflicts[k]; ok {
			out = append(out, &RuleConflictError{Table: t.name, Key: k.String(), Canonicals: c})
		}
	}
	return out
}

// ContextRules is an immutable table of context rules.
type ContextRules struct {
	t *ruleTable[ContextKey]
}

// NewContextRules builds the table. Malformed rules and conflicting keys are
// returned joined in err; the returned table is usable either way.
func NewContextRules(rules []ContextRule) (*ContextRules, error) {
	t := newRuleTable[ContextKey]("context")
	var errs []error
	for i, r := range rules {
		if r.Raw == "" || r.Neighbor == "" || r.Canonical == "" {
			errs = append(errs, fmt.Errorf("context rule %d (%q|%q): %w", i, r.Raw, r.Neighbor, ErrMalformed))
			continue
		}
		t.add(ContextKey{Raw: r.Raw, Neighbor: r.Neighbor}, r.Canonical)
	}
	errs = append(errs, t.errs()...)
	return &ContextRules{t: t}, errors.Join(errs...)
}

// Lookup returns the canonical name for a raw name heard from neighbor.
func (r *ContextRules) Lookup(raw, neighbor string) (string, bool) {
	if r == nil {
		return "", false
	}
	c, ok := r.t.canonical[ContextKey{Raw: raw, Neighbor: neighbor}]
	return c, ok
}

// Len returns the number of usable rules.
func (r *ContextRules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.t.canonical)
}

type rawKey string

func (k rawKey) String() string { return string(k) }

// MappingRules is an immutable table of context-free name mappings.
type MappingRules struct {
	t *ruleTable[rawKey]
}

// NewMappingRules builds the table; see NewContextRules for error semantics.
func NewMappingRules(rules []MappingRule) (*MappingRules, error) {
	t := newRuleTable[rawKey]("name mapping")
	var errs []error
	for i, r := range rules {
		if r.Raw == "" || r.Canonical == "" {
			errs = append(errs, fmt.Errorf("name mapping %d (%q): %w", i, r.Raw, ErrMalformed))
			continue
		}
		t.add(rawKey(r.Raw), r.Canonical)
	}
	errs = append(errs, t.errs()...)
	return &MappingRules{t: t}, errors.Join(errs...)
}

// Lookup returns the canonical name mapped from an exact raw name.
func (r *MappingRules) Lookup(raw string) (string, bool) {
	if r == nil {
		return "", false
	}
	c, ok := r.t.canonical[rawKey(raw)]
	return c, ok
}

// Len returns the number of usable rules.
func (r *MappingRules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.t.canonical)
}
