package isnad

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/anatolykoptev/go_isnad/internal/isnad"

// Options tunes a Resolver.
type Options struct {
	Workers int          // chains processed concurrently within a pass (0 = GOMAXPROCS)
	Tracer  trace.Tracer // nil = global provider
}

// Resolver runs the resolution passes over a corpus. It holds only
// read-only tables and may be shared between goroutines and runs.
type Resolver struct {
	lookup  *Lookup
	context *ContextResolver
	mapping *MappingResolver
	content *ContentMatcher
	workers int
	tracer  trace.Tracer
}

// NewResolver wires the passes. Nil rule tables or index disable their pass.
func NewResolver(lookup *Lookup, ctxRules *ContextRules, mapRules *MappingRules, index *ContentIndex, opts Options) *Resolver {
	if lookup == nil {
		lookup = BuildLookup(nil)
	}
	if index == nil {
		index = BuildContentIndex(nil, DefaultContentOptions)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Resolver{
		lookup:  lookup,
		context: NewContextResolver(lookup, ctxRules),
		mapping: NewMappingResolver(lookup, mapRules),
		content: NewContentMatcher(index),
		workers: workers,
		tracer:  tracer,
	}
}

// Lookup exposes the name table the resolver was built with.
func (r *Resolver) Lookup() *Lookup { return r.lookup }

// ResolveName runs a single mention through the name passes in order:
// its own text, the context rule for neighbor, then the name mapping.
// neighbor may be empty when the mention is the collector.
func (r *Resolver) ResolveName(raw, neighbor string) (Match, Method) {
	first := r.lookup.Resolve(raw)
	if first.Outcome == Found {
		return first, MethodExact
	}
	if neighbor != "" {
		if m := r.context.resolveRaw(raw, neighbor); m.Outcome == Found {
			return m, MethodContext
		}
	}
	if m := r.mapping.Resolve(raw); m.Outcome == Found {
		return m, MethodName
	}
	return first, MethodUnresolved
}

type pass struct {
	method Method
	chain  func(c *Chain) int
}

func (r *Resolver) passes() []pass {
	return []pass{
		{MethodExact, r.namePass(MethodExact, func(c *Chain, i int) Match {
			return r.lookup.Resolve(c.Mentions[i].RawText)
		})},
		{MethodContext, r.namePass(MethodContext, func(c *Chain, i int) Match {
			return r.context.Resolve(c, i)
		})},
		{MethodName, r.namePass(MethodName, func(c *Chain, i int) Match {
			return r.mapping.Resolve(c.Mentions[i].RawText)
		})},
		{MethodMatn, r.contentPass},
	}
}

func (r *Resolver) namePass(method Method, resolve func(c *Chain, i int) Match) func(c *Chain) int {
	return func(c *Chain) int {
		n := 0
		for _, i := range c.Unresolved() {
			if blank(c.Mentions[i].RawText) {
				continue
			}
			m := resolve(c, i)
			switch {
			case m.Outcome == Found:
				if c.Mentions[i].commit(m.ID, method) {
					n++
				}
			case m.Outcome == Ambiguous && method == MethodExact:
				c.Mentions[i].Ambiguous = m.Candidates
			}
		}
		return n
	}
}

func (r *Resolver) contentPass(c *Chain) int {
	for i := range c.Mentions {
		if blank(c.Mentions[i].RawText) {
			return 0
		}
	}
	d := r.content.Plan(c)
	if d.Skip != "" {
		if d.Skip != "resolved" {
			metrics.MatnSkipped.Add(1)
			slog.Debug("isnad: content match skipped", slog.String("chain", c.ID), slog.String("reason", d.Skip))
		}
		return 0
	}
	n := 0
	for k, pos := range d.Positions {
		if c.Mentions[pos].commit(d.IDs[k], MethodMatn) {
			n++
		}
	}
	return n
}

// Run resolves chains in place. Passes run strictly one after another; within
// a pass chains are processed concurrently, each goroutine writing only its
// own chain. Resolved mentions are never revisited, so running again over the
// output changes nothing. Every mention ends with a terminal resolution even
// when ctx is cancelled part way; the context error is returned with the report.
func (r *Resolver) Run(ctx context.Context, chains []Chain) (*Report, error) {
	metrics.Runs.Add(1)
	rep := newReport(chains)
	settle(chains)
	rep.Diagnostics = validate(chains)
	metrics.MalformedRecords.Add(int64(len(rep.Diagnostics)))
	for _, d := range rep.Diagnostics {
		slog.Warn("isnad: malformed record skipped", slog.String("chain", d.ChainID),
			slog.Int("position", d.Position), slog.String("reason", d.Reason))
	}

	var runErr error
	for _, p := range r.passes() {
		start := time.Now()
		n, err := r.runPass(ctx, p, chains)
		countResolved(p.method, n)
		rep.Passes = append(rep.Passes, PassResult{Method: p.method, Resolved: n, Elapsed: time.Since(start)})
		slog.Info("isnad: pass complete", slog.String("method", string(p.method)), slog.Int("resolved", n))
		if err != nil {
			runErr = err
			break
		}
	}

	finalize(chains)
	rep.tally(chains)
	rep.Finished = time.Now()
	return rep, runErr
}

func (r *Resolver) runPass(ctx context.Context, p pass, chains []Chain) (int, error) {
	ctx, span := r.tracer.Start(ctx, "isnad.pass."+string(p.method))
	defer span.End()

	var resolved atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range chains {
		if gctx.Err() != nil {
			break
		}
		c := &chains[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			resolved.Add(int64(p.chain(c)))
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	n := int(resolved.Load())
	span.SetAttributes(
		attribute.String("isnad.method", string(p.method)),
		attribute.Int("isnad.chains", len(chains)),
		attribute.Int("isnad.resolved", n),
	)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return n, err
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func validate(chains []Chain) []Diagnostic {
	var out []Diagnostic
	for _, c := range chains {
		if c.Content == "" {
			out = append(out, Diagnostic{ChainID: c.ID, Position: -1, Reason: "missing content"})
		}
		for i, m := range c.Mentions {
			if blank(m.RawText) {
				out = append(out, Diagnostic{ChainID: c.ID, Position: i, Reason: "missing raw text"})
			}
		}
	}
	return out
}

// settle reconciles the method tags of incoming mentions with their identifiers.
func settle(chains []Chain) {
	for i := range chains {
		for j := range chains[i].Mentions {
			chains[i].Mentions[j].settle()
		}
	}
}

// finalize gives every mention without an identifier the unresolved tag.
// Identifiers are never touched.
func finalize(chains []Chain) {
	for i := range chains {
		for j := range chains[i].Mentions {
			m := &chains[i].Mentions[j]
			if m.Resolution.ID == 0 {
				m.Resolution.Method = MethodUnresolved
			}
		}
	}
}
