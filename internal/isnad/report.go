package isnad

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// PassResult records how many mentions one pass resolved.
type PassResult struct {
	Method   Method        `json:"method"`
	Resolved int           `json:"resolved"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// Report summarizes a run. ByMethod counts the final state of every mention,
// including identifiers that were already present before the run.
type Report struct {
	Started     time.Time      `json:"started"`
	Finished    time.Time      `json:"finished"`
	Chains      int            `json:"chains"`
	Total       int            `json:"total"`
	ByMethod    map[Method]int `json:"by_method"`
	Passes      []PassResult   `json:"passes"`
	Unresolved  []string       `json:"unresolved_names"`
	Ambiguous   int            `json:"ambiguous"` // unresolved mentions whose name collides between identifiers
	Diagnostics []Diagnostic   `json:"diagnostics,omitempty"`
}

func newReport(chains []Chain) *Report {
	return &Report{Started: time.Now(), Chains: len(chains), ByMethod: make(map[Method]int)}
}

func (r *Report) tally(chains []Chain) {
	seen := make(map[string]struct{})
	for _, c := range chains {
		for _, m := range c.Mentions {
			r.Total++
			r.ByMethod[m.Resolution.Method]++
			if m.Resolution.Resolved() {
				continue
			}
			if len(m.Ambiguous) > 0 {
				r.Ambiguous++
			}
			if _, ok := seen[m.RawText]; !ok && !blank(m.RawText) {
				seen[m.RawText] = struct{}{}
				r.Unresolved = append(r.Unresolved, m.RawText)
			}
		}
	}
	slices.Sort(r.Unresolved)
	metrics.Mentions.Add(int64(r.Total))
}

// Resolved returns the number of mentions carrying an identifier.
func (r *Report) Resolved() int {
	return r.Total - r.ByMethod[MethodUnresolved]
}

// NewlyResolved returns the number of mentions resolved by this run's passes.
func (r *Report) NewlyResolved() int {
	n := 0
	for _, p := range r.Passes {
		n += p.Resolved
	}
	return n
}

// Percent returns the share of mentions in the given final state.
func (r *Report) Percent(m Method) float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.ByMethod[m]) * 100 / float64(r.Total)
}

// Summary renders the report as a plain-text table.
func (r *Report) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Total narrator mentions : %d (%d chains)\n", r.Total, r.Chains)
	for _, m := range Methods {
		fmt.Fprintf(&sb, "  %-18s : %6d  (%.1f%%)\n", m, r.ByMethod[m], r.Percent(m))
	}
	resolved := r.Resolved()
	pct := 0.0
	if r.Total > 0 {
		pct = float64(resolved) * 100 / float64(r.Total)
	}
	fmt.Fprintf(&sb, "Total resolved          : %d  (%.1f%%)\n", resolved, pct)
	fmt.Fprintf(&sb, "Still unresolved        : %d  (%.1f%%), %d unique names\n",
		r.ByMethod[MethodUnresolved], r.Percent(MethodUnresolved), len(r.Unresolved))
	fmt.Fprintf(&sb, "Ambiguous (multi-ID)    : %d\n", r.Ambiguous)
	for _, p := range r.Passes {
		fmt.Fprintf(&sb, "  pass %-18s resolved %d in %s\n", p.Method, p.Resolved, p.Elapsed.Round(time.Millisecond))
	}
	if len(r.Diagnostics) > 0 {
		fmt.Fprintf(&sb, "Skipped records         : %d\n", len(r.Diagnostics))
	}
	return sb.String()
}
