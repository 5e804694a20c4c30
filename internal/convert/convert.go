// Package convert turns one region's input into an isolated feature store.
//
// Convert never returns an error: every failure of a region is contained in
// its Result, so one bad region cannot disturb the others.
package convert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"farmland/internal/failure"
	"farmland/internal/feature"
	"farmland/internal/logger"
	"farmland/internal/metrics"
	"farmland/internal/parser"
	"farmland/internal/schema"
	"farmland/internal/store"
)

// Job is one region to convert.
type Job struct {
	// Region is the region's base name, e.g. "02201".
	Region string
	// Input is the region file or folder.
	Input string
	// Extract reads Input.
	Extract parser.Func
	// Folder and StoreName locate the region's output store.
	Folder    string
	StoreName string
	// StorePath is the store's path as the provider reports it.
	StorePath string
	// Collection is the feature collection created inside the store.
	Collection string
}

// Result is the outcome of one Job.
type Result struct {
	Region  string
	Store   string
	OK      bool
	Message string
	Err     error

	// StoreCreated is set when this conversion created the store.
	StoreCreated bool
	// Produced is set when a store exists on disk after the conversion.
	Produced bool

	Records   int
	Inserted  int64
	Skipped   int
	NullShape int
	Coerced   feature.CoerceStats
	Encoding  string
	Checksum  uint64
	Elapsed   time.Duration
}

// Converter converts regions into stores of one provider.
type Converter struct {
	Provider    store.Provider
	DefaultSRID int
	Rules       schema.Rules
	Log         *zap.Logger
	// Job labels metrics.
	Job string
}

// New returns a Converter with farmland inference rules.
func New(p store.Provider, log *zap.Logger) *Converter {
	return &Converter{
		Provider:    p,
		DefaultSRID: feature.DefaultSRID,
		Rules:       schema.FarmlandRules,
		Log:         logger.OrNop(log),
		Job:         "farmland",
	}
}

// Convert runs one job to completion.
func (c *Converter) Convert(ctx context.Context, job Job) Result {
	start := time.Now()
	res := Result{Region: job.Region, Store: job.StorePath}
	log := c.Log.With(zap.String("region", job.Region), zap.String("store", job.StorePath))

	err := c.convert(ctx, job, &res, log)
	res.Elapsed = time.Since(start)
	res.OK = err == nil
	res.Err = err
	if err != nil {
		res.Message = fmt.Sprintf("conversion failed: %v", err)
		log.Error("region conversion failed",
			zap.String("kind", string(failure.KindOf(err))),
			zap.Error(err),
			zap.Duration("elapsed", res.Elapsed))
	} else {
		log.Info(res.Message,
			zap.Int("records", res.Records),
			zap.Int64("inserted", res.Inserted),
			zap.Int("skipped", res.Skipped),
			zap.Duration("elapsed", res.Elapsed))
	}

	metrics.RecordStep(c.Job, metrics.StepConvert, err, res.Elapsed)
	metrics.RecordRegion(c.Job, res.OK)
	metrics.RecordCount(c.Job, metrics.KindInserted, res.Inserted)
	metrics.RecordCount(c.Job, metrics.KindCoercedNull, int64(res.Coerced.CoercedNull))
	metrics.RecordCount(c.Job, metrics.KindTruncated, int64(res.Coerced.Truncated))
	return res
}

func (c *Converter) convert(ctx context.Context, job Job, res *Result, log *zap.Logger) error {
	st, created, err := c.ensureStore(ctx, job)
	if err != nil {
		return err
	}
	res.StoreCreated = created
	res.Produced = true
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("closing store", zap.Error(err))
		}
	}()

	extractStart := time.Now()
	ex, err := job.Extract(job.Input)
	metrics.RecordStep(c.Job, metrics.StepExtract, err, time.Since(extractStart))
	if err != nil {
		return err
	}
	res.Skipped = ex.Skipped
	res.Encoding = ex.Encoding
	res.Checksum = ex.Checksum
	res.Records = len(ex.Records)
	metrics.RecordCount(c.Job, metrics.KindExtracted, int64(len(ex.Records)))
	metrics.RecordCount(c.Job, metrics.KindSkipped, int64(ex.Skipped))
	if ex.Skipped > 0 {
		log.Warn("skipped malformed features", zap.Int("skipped", ex.Skipped))
	}

	if ex.Empty || len(ex.Records) == 0 {
		res.Message = "nothing to convert"
		return nil
	}

	inf, err := schema.Infer(ex.Records[0], c.DefaultSRID, c.Rules)
	if err != nil {
		return err
	}
	if ex.SRID > 0 {
		inf.SRID = ex.SRID
	}
	if ex.Plan != nil {
		inf.Plan = *ex.Plan
		if err := inf.Plan.Validate(); err != nil {
			return err
		}
	}
	if inf.CategoryWarning {
		log.Warn("geometry type FeatureCollection mapped to POINT",
			zap.String("geometry_type", ex.Records[0].GeometryType()))
	}

	coll, err := c.ensureCollection(ctx, st, job.Collection, inf, log)
	if err != nil {
		return err
	}

	rows := make([]store.Row, len(ex.Records))
	for i, rec := range ex.Records {
		values, stats := inf.Plan.Row(rec)
		res.Coerced.Add(stats)
		g := parseGeometry(rec.Geometry())
		if g == nil {
			res.NullShape++
		}
		rows[i] = store.Row{Geometry: g, Values: values}
	}
	if res.NullShape > 0 {
		log.Warn("unparseable geometries stored as null", zap.Int("count", res.NullShape))
	}
	if res.Coerced.CoercedNull > 0 || res.Coerced.Truncated > 0 {
		log.Warn("attribute values coerced",
			zap.Int("coerced_null", res.Coerced.CoercedNull),
			zap.Int("truncated", res.Coerced.Truncated))
	}

	n, err := coll.Insert(ctx, inf.Plan.Names(), rows)
	if err != nil {
		return failure.Store("insert", job.Collection, err)
	}
	res.Inserted = n
	res.Message = fmt.Sprintf("converted %d records", n)
	return nil
}

// ensureStore opens the region's store, creating it when absent. An existing
// store is never overwritten.
func (c *Converter) ensureStore(ctx context.Context, job Job) (store.Store, bool, error) {
	exists, err := c.Provider.StoreExists(ctx, job.StorePath)
	if err != nil {
		return nil, false, failure.Store("store_exists", job.StorePath, err)
	}
	if exists {
		st, err := c.Provider.OpenStore(ctx, job.StorePath)
		if err != nil {
			return nil, false, failure.Store("open_store", job.StorePath, err)
		}
		return st, false, nil
	}
	st, err := c.Provider.CreateStore(ctx, job.Folder, job.StoreName)
	if err != nil {
		return nil, false, failure.Store("create_store", job.StorePath, err)
	}
	return st, true, nil
}

// ensureCollection reuses an existing collection of a resumed run, adding
// only the planned fields it lacks, or creates a new one.
func (c *Converter) ensureCollection(ctx context.Context, st store.Store, name string, inf schema.Inference, log *zap.Logger) (store.Collection, error) {
	coll, err := st.OpenCollection(ctx, name)
	switch {
	case err == nil:
		if coll.Category() != inf.Category {
			return nil, failure.Store("open_collection", name,
				fmt.Errorf("%w: existing collection is %s, region is %s", store.ErrSchemaMismatch, coll.Category(), inf.Category))
		}
		log.Info("appending to existing collection", zap.String("collection", name))
	case errors.Is(err, store.ErrNotFound):
		coll, err = st.CreateCollection(ctx, name, inf.Category, inf.SRID)
		if err != nil {
			return nil, failure.Store("create_collection", name, err)
		}
	default:
		return nil, failure.Store("open_collection", name, err)
	}

	existing, err := coll.ListFields(ctx)
	if err != nil {
		return nil, failure.Store("list_fields", name, err)
	}
	for _, f := range inf.Plan.Fields {
		if _, ok := store.FindField(existing, f.Name); ok {
			continue
		}
		if err := coll.AddField(ctx, f.Name, f.Type, f.Length); err != nil {
			return nil, failure.Store("add_field", name+"."+f.Name, err)
		}
	}
	return coll, nil
}

// parseGeometry decodes a GeoJSON geometry object. It returns nil when the
// geometry cannot be parsed.
func parseGeometry(raw json.RawMessage) orb.Geometry {
	if len(raw) == 0 {
		return nil
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil || g == nil {
		return nil
	}
	return g.Geometry()
}
