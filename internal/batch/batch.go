// Package batch runs every region conversion of a run on a bounded worker
// pool and reports the outcomes.
package batch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"farmland/internal/convert"
	"farmland/internal/failure"
	"farmland/internal/logger"
	"farmland/internal/pool"
)

// Report is the outcome of the conversion phase. Results are in job order.
type Report struct {
	Jobs    []convert.Job
	Results []convert.Result
	Workers int
	Elapsed time.Duration
}

// Failed returns the results of regions that did not convert.
func (r Report) Failed() []convert.Result {
	var out []convert.Result
	for _, res := range r.Results {
		if !res.OK {
			out = append(out, res)
		}
	}
	return out
}

// Produced returns the results whose store exists on disk.
func (r Report) Produced() []convert.Result {
	var out []convert.Result
	for _, res := range r.Results {
		if res.Produced {
			out = append(out, res)
		}
	}
	return out
}

// Converter converts one region. *convert.Converter implements it.
type Converter interface {
	Convert(ctx context.Context, job convert.Job) convert.Result
}

// Orchestrator runs region jobs in parallel.
type Orchestrator struct {
	Converter Converter
	Log       *zap.Logger
}

// New returns an Orchestrator.
func New(c Converter, log *zap.Logger) *Orchestrator {
	return &Orchestrator{Converter: c, Log: logger.OrNop(log)}
}

// Run converts every job on min(workers, len(jobs)) workers and returns once
// all of them have finished. Region failures are in the report; the error is
// set only when a conversion panicked, which is a FatalOrchestrationError.
func (o *Orchestrator) Run(ctx context.Context, jobs []convert.Job, workers int) (Report, error) {
	start := time.Now()
	rep := Report{Jobs: jobs, Workers: pool.Workers(workers, len(jobs))}
	o.Log.Info("starting region conversions",
		zap.Int("jobs", len(jobs)),
		zap.Int("workers", rep.Workers))

	results, err := pool.Run(ctx, jobs, workers, o.Converter.Convert)
	rep.Results = results
	rep.Elapsed = time.Since(start)

	var pe *pool.PanicError
	if errors.As(err, &pe) {
		job := jobs[pe.Index]
		o.Log.Error("region conversion panicked",
			zap.String("region", job.Region),
			zap.Any("panic", pe.Value),
			zap.ByteString("stack", pe.Stack))
		rep.Results[pe.Index] = convert.Result{
			Region:  job.Region,
			Store:   job.StorePath,
			Message: "conversion panicked",
			Err:     err,
		}
	}

	for _, res := range rep.Results {
		if res.OK {
			o.Log.Info("region done", zap.String("region", res.Region), zap.String("message", res.Message))
		} else {
			o.Log.Error("region failed", zap.String("region", res.Region), zap.String("message", res.Message))
		}
	}
	o.Log.Info("region conversions finished",
		zap.Int("jobs", len(jobs)),
		zap.Int("failed", len(rep.Failed())),
		zap.Duration("elapsed", rep.Elapsed))

	if err != nil {
		return rep, failure.New(failure.FatalOrchestrationError, "run_regions", "", err)
	}
	return rep, nil
}
