package isnad

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across runs.
var metrics struct {
	Runs               atomic.Int64
	Mentions           atomic.Int64
	ExactResolved      atomic.Int64
	ContextResolved    atomic.Int64
	NameResolved       atomic.Int64
	MatnResolved       atomic.Int64
	MatnSkipped        atomic.Int64
	CanonicalCalls     atomic.Int64
	CanonicalFound     atomic.Int64
	CanonicalAmbiguous atomic.Int64
	CanonicalNotFound  atomic.Int64
	MalformedRecords   atomic.Int64
}

var metricKeys = []string{
	"runs", "mentions",
	"exact_resolved", "context_resolved", "name_resolved", "matn_resolved", "matn_skipped",
	"canonical_calls", "canonical_found", "canonical_ambiguous", "canonical_not_found",
	"malformed_records",
}

// GetMetrics returns a snapshot of all counters.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"runs":                metrics.Runs.Load(),
		"mentions":            metrics.Mentions.Load(),
		"exact_resolved":      metrics.ExactResolved.Load(),
		"context_resolved":    metrics.ContextResolved.Load(),
		"name_resolved":       metrics.NameResolved.Load(),
		"matn_resolved":       metrics.MatnResolved.Load(),
		"matn_skipped":        metrics.MatnSkipped.Load(),
		"canonical_calls":     metrics.CanonicalCalls.Load(),
		"canonical_found":     metrics.CanonicalFound.Load(),
		"canonical_ambiguous": metrics.CanonicalAmbiguous.Load(),
		"canonical_not_found": metrics.CanonicalNotFound.Load(),
		"malformed_records":   metrics.MalformedRecords.Load(),
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "isnad_%s %d\n", k, m[k])
	}
	return sb.String()
}

func countResolved(method Method, n int) {
	switch method {
	case MethodExact:
		metrics.ExactResolved.Add(int64(n))
	case MethodContext:
		metrics.ContextResolved.Add(int64(n))
	case MethodName:
		metrics.NameResolved.Add(int64(n))
	case MethodMatn:
		metrics.MatnResolved.Add(int64(n))
	}
}

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, threshold time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > threshold {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
