package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/anatolykoptev/go_isnad/internal/isnad"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *RunLog {
	t.Helper()
	l, err := OpenRunLog(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func testReport(start time.Time) *isnad.Report {
	return &isnad.Report{
		Started:  start,
		Finished: start.Add(1500 * time.Millisecond),
		Chains:   2,
		Total:    5,
		ByMethod: map[isnad.Method]int{
			isnad.MethodExact:      3,
			isnad.MethodMatn:       1,
			isnad.MethodUnresolved: 1,
		},
		Unresolved:  []string{"وكيع"},
		Diagnostics: []isnad.Diagnostic{{ChainID: "c", Position: -1, Reason: "missing content"}},
	}
}

func TestRunLog_RecordAndGet(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	run, err := l.Record(ctx, "bukhari.json", testReport(start), nil)
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)
	assert.Equal(t, 4, run.Resolved)
	assert.Equal(t, 1, run.Diagnostics)

	got, err := l.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run, got)
}

func TestRunLog_ListNewestFirst(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	var ids []string
	for i, off := range []time.Duration{0, 500 * time.Millisecond, time.Second} {
		var runErr error
		if i == 2 {
			runErr = context.Canceled
		}
		r, err := l.Record(ctx, "c", testReport(base.Add(off)), runErr)
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	runs, err := l.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
	assert.Equal(t, "context canceled", runs[0].Error)
	assert.Empty(t, runs[1].Error)

	runs, err = l.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunLog_Errors(t *testing.T) {
	l := openTestLog(t)
	_, err := l.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	_, err = l.Record(context.Background(), "c", nil, nil)
	assert.Error(t, err)

	runs, err := l.List(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NotNil(t, runs)
}
