package batch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"farmland/internal/convert"
	"farmland/internal/failure"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
}

func regions(jobs []convert.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.Region
	}
	return out
}

func TestDiscoverAuto(t *testing.T) {
	in := t.TempDir()
	touch(t, filepath.Join(in, "02202.json"))
	touch(t, filepath.Join(in, "02201.json"))
	touch(t, filepath.Join(in, "notes.txt"))
	touch(t, filepath.Join(in, "02203弘前市2019", "parcels.shp"))
	require.NoError(t, os.Mkdir(filepath.Join(in, "empty"), 0o755))

	jobs, err := Discover(Layout{InputRoot: in, OutputRoot: "/out", Kind: KindAuto, Pattern: "*.json", StoreExt: ".fsdb"})
	require.NoError(t, err)
	assert.Equal(t, []string{"02201", "02202", "02203弘前市2019"}, regions(jobs))

	j := jobs[0]
	assert.Equal(t, filepath.Join(in, "02201.json"), j.Input)
	assert.Equal(t, "/out", j.Folder)
	assert.Equal(t, "02201", j.StoreName)
	assert.Equal(t, filepath.Join("/out", "02201.fsdb"), j.StorePath)
	assert.Equal(t, "c_02201", j.Collection)
	assert.NotNil(t, j.Extract)
	assert.NotNil(t, jobs[2].Extract)
}

func TestDiscoverByKind(t *testing.T) {
	in := t.TempDir()
	touch(t, filepath.Join(in, "a.json"))
	require.NoError(t, os.Mkdir(filepath.Join(in, "02201青森市2019"), 0o755))

	jobs, err := Discover(Layout{InputRoot: in, Kind: KindGeoJSON, Pattern: "*.json", StoreExt: ".fsdb"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, regions(jobs))

	jobs, err = Discover(Layout{InputRoot: in, Kind: KindShapefile, StoreExt: ".fsdb"})
	require.NoError(t, err)
	assert.Equal(t, []string{"02201青森市2019"}, regions(jobs))
}

func TestDiscoverRejectsStoreCollisions(t *testing.T) {
	in := t.TempDir()
	touch(t, filepath.Join(in, "a.json"))
	touch(t, filepath.Join(in, "a.geojson"))

	_, err := Discover(Layout{InputRoot: in, Pattern: "*json", StoreExt: ".fsdb"})
	assert.Error(t, err)
}

func TestDiscoverMissingRoot(t *testing.T) {
	_, err := Discover(Layout{InputRoot: filepath.Join(t.TempDir(), "absent"), Pattern: "*.json"})
	assert.Error(t, err)
}

type fakeConverter struct {
	active, peak atomic.Int32
	mu           sync.Mutex
	calls        []string
	fail         map[string]bool
	panics       map[string]bool
}

func (f *fakeConverter) Convert(_ context.Context, job convert.Job) convert.Result {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	f.mu.Lock()
	f.calls = append(f.calls, job.Region)
	f.mu.Unlock()
	if f.panics[job.Region] {
		panic("boom")
	}
	time.Sleep(10 * time.Millisecond)
	ok := !f.fail[job.Region]
	return convert.Result{Region: job.Region, OK: ok, Produced: ok, Message: job.Region}
}

func jobsFor(names ...string) []convert.Job {
	out := make([]convert.Job, len(names))
	for i, n := range names {
		out[i] = convert.Job{Region: n, StorePath: n + ".fsdb"}
	}
	return out
}

func TestRunCapsWorkersAtJobCount(t *testing.T) {
	fc := &fakeConverter{}
	rep, err := New(fc, zaptest.NewLogger(t)).Run(context.Background(), jobsFor("a", "b", "c"), 8)
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Workers)
	assert.LessOrEqual(t, fc.peak.Load(), int32(3))
	assert.Len(t, fc.calls, 3)
}

func TestRunReportsInSubmissionOrder(t *testing.T) {
	fc := &fakeConverter{fail: map[string]bool{"b": true}}
	rep, err := New(fc, zaptest.NewLogger(t)).Run(context.Background(), jobsFor("a", "b", "c", "d"), 2)
	require.NoError(t, err)

	require.Len(t, rep.Results, 4)
	for i, name := range []string{"a", "b", "c", "d"} {
		assert.Equal(t, name, rep.Results[i].Region)
	}
	failed := rep.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].Region)
	assert.Len(t, rep.Produced(), 3)
}

func TestRunPanicIsFatalButSiblingsFinish(t *testing.T) {
	fc := &fakeConverter{panics: map[string]bool{"b": true}}
	rep, err := New(fc, zaptest.NewLogger(t)).Run(context.Background(), jobsFor("a", "b", "c"), 1)

	require.Error(t, err)
	assert.Equal(t, failure.FatalOrchestrationError, failure.KindOf(err))
	assert.Len(t, fc.calls, 3)
	assert.Equal(t, "b", rep.Results[1].Region)
	assert.False(t, rep.Results[1].OK)
	assert.True(t, rep.Results[2].OK)
}

func TestRunNoJobs(t *testing.T) {
	rep, err := New(&fakeConverter{}, zaptest.NewLogger(t)).Run(context.Background(), nil, 4)
	require.NoError(t, err)
	assert.Zero(t, rep.Workers)
	assert.Empty(t, rep.Results)
}
