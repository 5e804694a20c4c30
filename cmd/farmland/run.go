package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"farmland/internal/aggregate"
	"farmland/internal/batch"
	"farmland/internal/config"
	"farmland/internal/convert"
	"farmland/internal/failure"
	"farmland/internal/metrics"
	"farmland/internal/metrics/datadog"
	"farmland/internal/metrics/prompush"
	"farmland/internal/publish/postgres"
	"farmland/internal/store"
)

// Outcome is everything a run produced.
type Outcome struct {
	RunID     string
	Start     time.Time
	Elapsed   time.Duration
	Batch     batch.Report
	Aggregate aggregate.Report
	// Merged is set once the aggregation step ran.
	Merged     bool
	Published  int64
	PublishErr error
}

// OK reports whether every region converted and every merge step succeeded.
func (o Outcome) OK() bool {
	return o.Merged && len(o.Batch.Failed()) == 0 && o.Aggregate.OK() && o.PublishErr == nil
}

// Run discovers the regions of cfg.InputRoot, converts them in parallel,
// merges the results and optionally publishes the merged collection. The
// error is set only for failures that stop the run.
func Run(ctx context.Context, cfg config.Config, log *zap.Logger) (Outcome, error) {
	out := Outcome{RunID: uuid.NewString(), Start: time.Now()}
	log = log.With(zap.String("run_id", out.RunID))
	defer func() { log.Info("run finished", zap.Duration("elapsed", time.Since(out.Start))) }()
	log.Info("run started",
		zap.String("input_root", cfg.InputRoot),
		zap.String("output_root", cfg.OutputRoot),
		zap.Int("workers", cfg.Workers))

	provider, err := store.New(ctx, cfg.Store.Kind)
	if err != nil {
		return out, failure.New(failure.FatalOrchestrationError, "store_provider", cfg.Store.Kind, err)
	}
	if err := os.MkdirAll(cfg.OutputRoot, 0o755); err != nil {
		return out, failure.New(failure.FatalOrchestrationError, "output_root", cfg.OutputRoot, err)
	}

	jobs, err := batch.Discover(batch.Layout{
		InputRoot:  cfg.InputRoot,
		OutputRoot: cfg.OutputRoot,
		Kind:       cfg.Input.Kind,
		Pattern:    cfg.Input.Pattern,
		StoreExt:   provider.Ext(),
	})
	if err != nil {
		return out, failure.New(failure.FatalOrchestrationError, "discover", cfg.InputRoot, err)
	}
	aggPath := aggregate.StorePath(provider, cfg.OutputRoot)
	for _, j := range jobs {
		if filepath.Clean(j.StorePath) == aggPath {
			return out, failure.Newf(failure.FatalOrchestrationError, "discover", j.Input,
				"region store %s would overwrite the aggregate store", j.StorePath)
		}
	}
	log.Info("regions discovered", zap.Int("regions", len(jobs)))

	conv := convert.New(provider, log)
	conv.DefaultSRID = cfg.Store.DefaultSRID
	conv.Job = cfg.Metrics.Job
	out.Batch, err = batch.New(conv, log).Run(ctx, jobs, cfg.Workers)
	if err != nil {
		out.Elapsed = time.Since(out.Start)
		return out, err
	}

	agg := aggregate.New(provider, log)
	agg.Collection = cfg.Aggregate.Collection
	agg.RetainUnmerged = cfg.Aggregate.RetainUnmerged
	agg.Job = cfg.Metrics.Job
	out.Aggregate, err = agg.Run(ctx, cfg.OutputRoot, jobs)
	out.Elapsed = time.Since(out.Start)
	if err != nil {
		return out, err
	}
	out.Merged = true

	if cfg.Publish.Postgres.Enabled() && out.Aggregate.Records > 0 {
		out.Published, out.PublishErr = publish(ctx, provider, out.Aggregate, cfg, log)
		if out.PublishErr != nil {
			log.Error("publishing aggregate failed", zap.Error(out.PublishErr))
		}
	}
	out.Elapsed = time.Since(out.Start)
	return out, nil
}

func publish(ctx context.Context, provider store.Provider, rep aggregate.Report, cfg config.Config, log *zap.Logger) (int64, error) {
	st, err := provider.OpenStore(ctx, rep.Store)
	if err != nil {
		return 0, failure.Store("open_store", rep.Store, err)
	}
	defer st.Close()
	coll, err := st.OpenCollection(ctx, rep.Collection)
	if err != nil {
		return 0, failure.Store("open_collection", rep.Collection, err)
	}

	pub, closeDB, err := postgres.New(ctx, postgres.Config{
		DSN:   cfg.Publish.Postgres.DSN,
		Table: cfg.Publish.Postgres.Table,
	}, log)
	if err != nil {
		return 0, err
	}
	defer closeDB()
	pub.Job = cfg.Metrics.Job
	return pub.Publish(ctx, coll)
}

// setupMetrics installs the configured backend and returns the function that
// flushes it at exit.
func setupMetrics(m config.Metrics, log *zap.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch m.Backend {
	case config.MetricsPushgateway:
		b, err = prompush.NewBackend(m.Job, m.PushgatewayURL)
	case config.MetricsDatadog:
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       m.DatadogAddr,
			Namespace:  "farmland.",
			GlobalTags: []string{"job:" + m.Job},
		})
	default:
		log.Debug("metrics disabled")
		return func() {}
	}
	if err != nil {
		log.Warn("metrics backend unavailable, using nop", zap.String("backend", m.Backend), zap.Error(err))
		return func() {}
	}
	metrics.SetBackend(b)
	log.Info("metrics enabled", zap.String("backend", m.Backend), zap.String("job", m.Job))
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush", zap.Error(err))
		}
	}
}

// printStatus writes the human-readable run status: one line per region, the
// merge and cleanup outcome, and the elapsed time.
func printStatus(w io.Writer, o Outcome) {
	fmt.Fprintf(w, "-- Start: farmland --:%s\n", o.Start.Format(time.DateTime))
	for _, res := range o.Batch.Results {
		status := "OK"
		if !res.OK {
			status = "FAILED"
		}
		fmt.Fprintf(w, "    %s %s: %s\n", status, res.Region, res.Message)
	}
	if o.Merged {
		a := o.Aggregate
		fmt.Fprintf(w, "  Merge to collection:%s in store:%s\n", a.Collection, a.Store)
		for _, s := range a.Failed() {
			fmt.Fprintf(w, "    FAILED %s %s: %v\n", s.Step, s.Subject, s.Err)
		}
		for _, region := range a.Missing {
			fmt.Fprintf(w, "    MISSING %s: no store produced\n", region)
		}
		fmt.Fprintf(w, "  %s\n", a.Summary())
		if o.Published > 0 || o.PublishErr != nil {
			if o.PublishErr != nil {
				fmt.Fprintf(w, "  Publish FAILED: %v\n", o.PublishErr)
			} else {
				fmt.Fprintf(w, "  Published %d records\n", o.Published)
			}
		}
	}
	fmt.Fprintf(w, "-- Finish: farmland --:%s\n", o.Start.Add(o.Elapsed).Format(time.DateTime))
	fmt.Fprintf(w, "     Elapsed time:%s\n", o.Elapsed.Truncate(time.Millisecond))
}
