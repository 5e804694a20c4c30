// Package aggregate merges the per-region stores of a run into one
// aggregate collection, decorates it and removes the temporary stores.
//
// It runs after every region conversion has finished and is the only writer
// of the aggregate store.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"farmland/internal/convert"
	"farmland/internal/failure"
	"farmland/internal/feature"
	"farmland/internal/logger"
	"farmland/internal/metrics"
	"farmland/internal/store"
)

// DefaultCollection is the name of the merged collection.
const DefaultCollection = "Farmland"

// Step names recorded in Report.Steps.
const (
	StepMerge   = "merge"
	StepAlias   = "alias"
	StepDomain  = "domain"
	StepBind    = "bind_domain"
	StepCleanup = "cleanup"
)

// Step is one operation on the aggregate or a temporary store.
type Step struct {
	Step    string
	Subject string
	Err     error
}

// Report is the outcome of an aggregation.
type Report struct {
	Store      string
	Collection string
	Category   feature.GeometryCategory
	Records    int64

	// Merged are the region stores whose rows are in the aggregate.
	Merged []string
	// Empty are region stores without a feature collection.
	Empty []string
	// Unmerged are region stores whose merge failed.
	Unmerged []string
	// Missing are regions of this run that left no store behind.
	Missing []string
	// Foreign are stores in the output folder that no job of this run owns.
	// They are neither merged nor deleted.
	Foreign []string
	Deleted  []string
	Retained []string

	Steps   []Step
	Elapsed time.Duration
}

// Failed returns the steps that did not succeed.
func (r Report) Failed() []Step {
	var out []Step
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// OK reports whether nothing was lost: every region produced a store and
// every store was merged.
func (r Report) OK() bool {
	return len(r.Failed()) == 0 && len(r.Missing) == 0 && len(r.Unmerged) == 0
}

// Aggregator merges region stores of one provider.
type Aggregator struct {
	Provider   store.Provider
	Collection string
	Aliases    []Alias
	Domain     store.Domain
	// DomainField is the field Domain is bound to.
	DomainField string
	// RetainUnmerged keeps stores whose merge failed instead of deleting them.
	RetainUnmerged bool
	Log            *zap.Logger
	// Job labels metrics.
	Job string
}

// New returns an Aggregator producing the farmland collection.
func New(p store.Provider, log *zap.Logger) *Aggregator {
	return &Aggregator{
		Provider:    p,
		Collection:  DefaultCollection,
		Aliases:     FarmlandAliases,
		Domain:      LandTypeDomain,
		DomainField: LandTypeField,
		Log:         logger.OrNop(log),
		Job:         "farmland",
	}
}

// StorePath is where the aggregate store of outputRoot lives: a store named
// after the folder itself, inside it.
func StorePath(p store.Provider, outputRoot string) string {
	root := filepath.Clean(outputRoot)
	return filepath.Join(root, filepath.Base(root)+p.Ext())
}

// Run merges the stores produced by jobs into the aggregate collection under
// outputRoot. Merge, decoration and cleanup failures are contained in the
// report. The error is set only when the aggregate store itself cannot be
// used; temporary stores are then left in place.
func (a *Aggregator) Run(ctx context.Context, outputRoot string, jobs []convert.Job) (Report, error) {
	start := time.Now()
	aggPath := StorePath(a.Provider, outputRoot)
	rep := Report{Store: aggPath, Collection: a.Collection}
	log := a.Log.With(zap.String("aggregate", aggPath), zap.String("collection", a.Collection))

	sources, err := a.discover(ctx, outputRoot, aggPath, jobs, &rep)
	if err != nil {
		return rep, err
	}
	for _, path := range rep.Foreign {
		log.Warn("ignoring store not produced by this run", zap.String("store", path))
	}
	for _, region := range rep.Missing {
		log.Warn("region produced no store", zap.String("region", region))
	}
	log.Info("merging region stores", zap.Int("stores", len(sources)))

	agg, err := a.openAggregate(ctx, outputRoot, aggPath)
	if err != nil {
		return rep, err
	}
	defer func() {
		if err := agg.Close(); err != nil {
			log.Warn("closing aggregate store", zap.Error(err))
		}
	}()

	var target store.Collection
	if c, err := agg.OpenCollection(ctx, a.Collection); err == nil {
		target = c
		log.Info("appending to existing aggregate collection")
	} else if !errors.Is(err, store.ErrNotFound) {
		return rep, failure.Store("open_collection", a.Collection, err)
	}

	for _, src := range sources {
		mstart := time.Now()
		n, empty, err := a.merge(ctx, agg, &target, src)
		metrics.RecordStep(a.Job, metrics.StepMerge, err, time.Since(mstart))
		switch {
		case err != nil:
			rep.Unmerged = append(rep.Unmerged, src)
			rep.Steps = append(rep.Steps, Step{Step: StepMerge, Subject: src, Err: err})
			log.Error("merge failed", zap.String("store", src), zap.Error(err))
		case empty:
			rep.Empty = append(rep.Empty, src)
			log.Info("store holds no collection, nothing to merge", zap.String("store", src))
		default:
			rep.Merged = append(rep.Merged, src)
			rep.Steps = append(rep.Steps, Step{Step: StepMerge, Subject: src})
			metrics.RecordCount(a.Job, metrics.KindMerged, n)
			log.Info("merged", zap.String("store", src), zap.Int64("records", n))
		}
	}

	if target != nil {
		dstart := time.Now()
		derr := a.decorate(ctx, agg, target, &rep, log)
		metrics.RecordStep(a.Job, metrics.StepDecorate, derr, time.Since(dstart))

		rep.Category = target.Category()
		if n, err := target.Count(ctx); err == nil {
			rep.Records = n
		} else {
			log.Warn("counting aggregate records", zap.Error(err))
		}
	}

	a.cleanup(ctx, sources, &rep, log)

	rep.Elapsed = time.Since(start)
	log.Info("aggregation finished",
		zap.Int("merged", len(rep.Merged)),
		zap.Int("unmerged", len(rep.Unmerged)),
		zap.Int("missing", len(rep.Missing)),
		zap.Int64("records", rep.Records),
		zap.Duration("elapsed", rep.Elapsed))
	return rep, nil
}

// discover lists the stores under outputRoot that belong to jobs, in listing
// order, and fills the report's Missing and Foreign lists.
func (a *Aggregator) discover(ctx context.Context, outputRoot, aggPath string, jobs []convert.Job, rep *Report) ([]string, error) {
	listed, err := a.Provider.ListStores(ctx, outputRoot)
	if err != nil {
		return nil, failure.Store("list_stores", outputRoot, err)
	}
	owned := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		owned[filepath.Clean(j.StorePath)] = true
	}
	present := make(map[string]bool, len(listed))
	var sources []string
	for _, path := range listed {
		path = filepath.Clean(path)
		present[path] = true
		switch {
		case path == aggPath:
		case owned[path]:
			sources = append(sources, path)
		default:
			rep.Foreign = append(rep.Foreign, path)
		}
	}
	for _, j := range jobs {
		if !present[filepath.Clean(j.StorePath)] {
			rep.Missing = append(rep.Missing, j.Region)
		}
	}
	return sources, nil
}

func (a *Aggregator) openAggregate(ctx context.Context, outputRoot, aggPath string) (store.Store, error) {
	exists, err := a.Provider.StoreExists(ctx, aggPath)
	if err != nil {
		return nil, failure.Store("store_exists", aggPath, err)
	}
	if exists {
		st, err := a.Provider.OpenStore(ctx, aggPath)
		return st, failure.Store("open_store", aggPath, err)
	}
	root := filepath.Clean(outputRoot)
	st, err := a.Provider.CreateStore(ctx, root, filepath.Base(root))
	return st, failure.Store("create_store", aggPath, err)
}

// merge copies the first collection of the store at path into the aggregate.
// The first merged store creates the target collection. empty is set when
// the store has no collection.
func (a *Aggregator) merge(ctx context.Context, agg store.Store, target *store.Collection, path string) (n int64, empty bool, err error) {
	src, err := a.Provider.OpenStore(ctx, path)
	if err != nil {
		return 0, false, failure.Store("open_store", path, err)
	}
	defer src.Close()

	names, err := src.ListCollections(ctx)
	if err != nil {
		return 0, false, failure.Store("list_collections", path, err)
	}
	if len(names) == 0 {
		return 0, true, nil
	}
	coll, err := src.OpenCollection(ctx, names[0])
	if err != nil {
		return 0, false, failure.Store("open_collection", names[0], err)
	}

	if *target == nil {
		c, err := agg.CopyAs(ctx, coll, a.Collection)
		if err != nil {
			// A partly copied collection still receives later stores.
			if c, oerr := agg.OpenCollection(ctx, a.Collection); oerr == nil {
				*target = c
			}
			return 0, false, failure.Store("copy_as", names[0], err)
		}
		*target = c
		n, _ = c.Count(ctx)
		return n, false, nil
	}
	n, err = (*target).Append(ctx, coll)
	return n, false, failure.Store("append", names[0], err)
}

// decorate applies aliases and binds the coded domain. Each failed operation
// is one failed step; the others still run.
func (a *Aggregator) decorate(ctx context.Context, agg store.Store, target store.Collection, rep *Report, log *zap.Logger) error {
	var errs []error
	fail := func(step, subject string, err error) {
		rep.Steps = append(rep.Steps, Step{Step: step, Subject: subject, Err: err})
		if err != nil {
			errs = append(errs, err)
			log.Error("decoration failed", zap.String("step", step), zap.String("subject", subject), zap.Error(err))
		}
	}

	fields, err := target.ListFields(ctx)
	if err != nil {
		fail(StepAlias, a.Collection, failure.Store("list_fields", a.Collection, err))
		return errors.Join(errs...)
	}
	aliased := 0
	for _, al := range a.Aliases {
		f, ok := store.FindField(fields, al.Field)
		if !ok {
			continue
		}
		err := target.SetFieldAlias(ctx, f.Name, al.Label)
		fail(StepAlias, f.Name, failure.Store("set_field_alias", f.Name, err))
		if err == nil {
			aliased++
		}
	}
	log.Info("field aliases applied", zap.Int("fields", aliased))

	if a.Domain.Name == "" {
		return errors.Join(errs...)
	}
	err = agg.CreateCodedDomain(ctx, a.Domain)
	if errors.Is(err, store.ErrExists) {
		log.Info("coded domain already present", zap.String("domain", a.Domain.Name))
		err = nil
	}
	fail(StepDomain, a.Domain.Name, failure.Store("create_coded_domain", a.Domain.Name, err))
	if err != nil {
		return errors.Join(errs...)
	}

	f, ok := store.FindField(fields, a.DomainField)
	if !ok {
		log.Warn("domain field absent, domain not bound",
			zap.String("field", a.DomainField), zap.String("domain", a.Domain.Name))
		return errors.Join(errs...)
	}
	err = target.BindDomain(ctx, f.Name, a.Domain.Name)
	fail(StepBind, f.Name, failure.Store("bind_domain", f.Name, err))
	if err == nil {
		log.Info("coded domain bound", zap.String("field", f.Name), zap.String("domain", a.Domain.Name))
	}
	return errors.Join(errs...)
}

// cleanup deletes the region stores. Stores whose merge failed are kept when
// RetainUnmerged is set.
func (a *Aggregator) cleanup(ctx context.Context, sources []string, rep *Report, log *zap.Logger) {
	start := time.Now()
	unmerged := make(map[string]bool, len(rep.Unmerged))
	for _, p := range rep.Unmerged {
		unmerged[p] = true
	}
	log.Info("deleting temporary stores", zap.Int("stores", len(sources)))

	var errs []error
	for _, path := range sources {
		if unmerged[path] && a.RetainUnmerged {
			rep.Retained = append(rep.Retained, path)
			log.Warn("keeping unmerged store", zap.String("store", path))
			continue
		}
		if unmerged[path] {
			log.Warn("deleting unmerged store", zap.String("store", path))
		}
		if err := a.Provider.DeleteStore(ctx, path); err != nil {
			err = failure.Store("delete_store", path, err)
			errs = append(errs, err)
			rep.Steps = append(rep.Steps, Step{Step: StepCleanup, Subject: path, Err: err})
			log.Error("deleting store failed", zap.String("store", path), zap.Error(err))
			continue
		}
		rep.Deleted = append(rep.Deleted, path)
		log.Debug("deleted store", zap.String("store", path))
	}
	metrics.RecordStep(a.Job, metrics.StepCleanup, errors.Join(errs...), time.Since(start))
}

// Summary is a one-line description of the report for status output.
func (r Report) Summary() string {
	return fmt.Sprintf("merged %d stores into %s (%d records), %d unmerged, %d missing, %d deleted",
		len(r.Merged), r.Collection, r.Records, len(r.Unmerged), len(r.Missing), len(r.Deleted))
}
