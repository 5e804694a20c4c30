// Package metrics records operational metrics of a farmland run behind a
// small backend-agnostic interface.
//
// A global backend defaults to a no-op, so instrumented code can always call
// the Record* helpers. cmd/farmland installs a Prometheus Pushgateway or
// DogStatsD backend when configured; both live in subpackages so that the
// rest of the module does not import their client libraries.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the Record* helpers.
const (
	StepTotal           = "farmland_step_total"
	StepDurationSeconds = "farmland_step_duration_seconds"
	RecordsTotal        = "farmland_records_total"
	RegionsTotal        = "farmland_regions_total"
)

// Steps of a run.
const (
	StepExtract  = "extract"
	StepConvert  = "convert"
	StepMerge    = "merge"
	StepDecorate = "decorate"
	StepCleanup  = "cleanup"
	StepPublish  = "publish"
)

// Record kinds counted under RecordsTotal.
const (
	KindExtracted   = "extracted"
	KindSkipped     = "skipped"
	KindInserted    = "inserted"
	KindCoercedNull = "coerced_null"
	KindTruncated   = "truncated"
	KindMerged      = "merged"
	KindPublished   = "published"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend and returns the one it replaced.
// Passing nil keeps the existing backend.
func SetBackend(b Backend) Backend {
	mu.Lock()
	defer mu.Unlock()
	prev := backend
	if b != nil {
		backend = b
	}
	return prev
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of step and observes its duration.
// Region workers call it concurrently.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordCount adds delta records of kind. Non-positive deltas are ignored.
func RecordCount(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordRegion counts one finished region conversion.
func RecordRegion(job string, ok bool) {
	status := "success"
	if !ok {
		status = "failure"
	}
	current().IncCounter(RegionsTotal, 1, Labels{
		"job":    job,
		"status": status,
	})
}
