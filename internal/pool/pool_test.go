package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkers(t *testing.T) {
	tests := []struct {
		limit, n, want int
	}{
		{8, 3, 3},
		{4, 2, 2},
		{2, 10, 2},
		{0, 5, 1},
		{-3, 5, 1},
		{4, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Workers(tt.limit, tt.n), "Workers(%d, %d)", tt.limit, tt.n)
	}
}

func TestRunKeepsSubmissionOrder(t *testing.T) {
	jobs := []int{5, 1, 4, 2, 3}
	got, err := Run(context.Background(), jobs, 3, func(_ context.Context, n int) int {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return n * 10
	})
	require.NoError(t, err)
	assert.Equal(t, []int{50, 10, 40, 20, 30}, got)
}

func TestRunNeverExceedsWorkerCount(t *testing.T) {
	var (
		active, peak atomic.Int32
		mu           sync.Mutex
		ids          = map[int]bool{}
	)
	jobs := []int{0, 1, 2}
	_, err := Run(context.Background(), jobs, 8, func(_ context.Context, j int) struct{} {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		mu.Lock()
		ids[j] = true
		mu.Unlock()
		return struct{}{}
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Len(t, ids, 3)
}

func TestRunLimitsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	jobs := make([]int, 10)
	_, err := Run(context.Background(), jobs, 2, func(_ context.Context, _ int) int {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return 0
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunContainsPanics(t *testing.T) {
	var ran atomic.Int32
	got, err := Run(context.Background(), []string{"a", "boom", "c"}, 1, func(_ context.Context, s string) string {
		ran.Add(1)
		if s == "boom" {
			panic("bad region")
		}
		return s
	})
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 1, pe.Index)
	assert.Equal(t, "bad region", pe.Value)
	assert.EqualValues(t, 3, ran.Load())
	assert.Equal(t, []string{"a", "", "c"}, got)
}

func TestRunNoJobs(t *testing.T) {
	got, err := Run(context.Background(), nil, 4, func(context.Context, int) int { return 1 })
	require.NoError(t, err)
	assert.Empty(t, got)
}
