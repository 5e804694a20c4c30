// Package postgres exports the aggregate collection into a PostgreSQL table
// with pgx COPY.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb/encoding/wkb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"farmland/internal/logger"
	"farmland/internal/metrics"
	"farmland/internal/store"
)

// DefaultBatchSize is the number of rows sent per COPY.
const DefaultBatchSize = 5000

// Config holds the export target.
type Config struct {
	DSN   string // connection string for pgxpool
	Table string // e.g. "public.farmland"
	// BatchSize defaults to DefaultBatchSize.
	BatchSize int
}

// Execer runs DDL.
type Execer func(ctx context.Context, sql string) error

// CopyFn copies one batch of rows and returns the number copied. New uses
// pgx CopyFrom.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// Publisher copies collections into one table.
type Publisher struct {
	cfg  Config
	exec Execer
	copy CopyFn
	log  *zap.Logger
	// Job labels metrics.
	Job string
}

// New connects to cfg.DSN and returns a Publisher and a close function.
func New(ctx context.Context, cfg Config, log *zap.Logger) (*Publisher, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	exec := func(ctx context.Context, sql string) error {
		_, err := pool.Exec(ctx, sql)
		return err
	}
	table := splitFQN(cfg.Table)
	copyFn := func(ctx context.Context, columns []string, rows [][]any) (int64, error) {
		return pool.CopyFrom(ctx, table, columns, pgx.CopyFromRows(rows))
	}
	return NewWith(cfg, exec, copyFn, log), pool.Close, nil
}

// NewWith returns a Publisher over explicit exec and copy functions.
func NewWith(cfg Config, exec Execer, copyFn CopyFn, log *zap.Logger) *Publisher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Publisher{cfg: cfg, exec: exec, copy: copyFn, log: logger.OrNop(log), Job: "farmland"}
}

// Publish creates the table if needed and copies every row of coll into it.
// It returns the number of rows copied.
func (p *Publisher) Publish(ctx context.Context, coll store.Collection) (n int64, err error) {
	start := time.Now()
	defer func() { metrics.RecordStep(p.Job, metrics.StepPublish, err, time.Since(start)) }()

	fields, err := coll.ListFields(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres publish: list fields: %w", err)
	}
	ddl, err := CreateTableSQL(p.cfg.Table, fields)
	if err != nil {
		return 0, err
	}
	if err := p.exec(ctx, ddl); err != nil {
		return 0, fmt.Errorf("postgres publish: create table %s: %w", p.cfg.Table, err)
	}

	columns := Columns(fields)
	names := store.FieldNames(fields)
	srid := int32(coll.SRID())
	rows := make(chan []any, p.cfg.BatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(rows)
		return coll.Scan(gctx, names, func(r store.Row) error {
			row, err := copyRow(r, srid)
			if err != nil {
				return err
			}
			select {
			case rows <- row:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})
	g.Go(func() error {
		var err error
		n, err = p.load(gctx, coll.Name(), columns, rows)
		return err
	})
	if err := g.Wait(); err != nil {
		return n, fmt.Errorf("postgres publish: copy into %s: %w", p.cfg.Table, err)
	}
	p.log.Info("published collection",
		zap.String("collection", coll.Name()),
		zap.String("table", p.cfg.Table),
		zap.Int64("rows", n))
	return n, nil
}

// load drains in into COPY batches of cfg.BatchSize rows. Each copied batch
// is counted as published, so a failed export still reports what reached the
// table. It returns when in is closed, a copy fails or ctx is done.
func (p *Publisher) load(ctx context.Context, collection string, columns []string, in <-chan []any) (int64, error) {
	var (
		total   int64
		batches int
		batch   = make([][]any, 0, p.cfg.BatchSize)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := p.copy(ctx, columns, batch)
		total += n
		batches++
		metrics.RecordCount(p.Job, metrics.KindPublished, n)
		p.log.Debug("copied batch",
			zap.String("collection", collection),
			zap.Int("batch", batches),
			zap.Int64("rows", n),
			zap.Int64("total", total))
		batch = make([][]any, 0, p.cfg.BatchSize)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case row, ok := <-in:
			if !ok {
				return total, flush()
			}
			batch = append(batch, row)
			if len(batch) >= p.cfg.BatchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}

// copyRow lays out r as COPY values: WKB shape, srid, then field values.
func copyRow(r store.Row, srid int32) ([]any, error) {
	row := make([]any, 0, len(r.Values)+2)
	var shape any
	if r.Geometry != nil {
		b, err := wkb.Marshal(r.Geometry)
		if err != nil {
			return nil, fmt.Errorf("encode shape: %w", err)
		}
		shape = b
	}
	row = append(row, shape, srid)
	for _, v := range r.Values {
		row = append(row, v.SQL())
	}
	return row, nil
}
