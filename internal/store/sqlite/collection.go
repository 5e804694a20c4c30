package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"farmland/internal/feature"
	"farmland/internal/store"
)

// appendBatch is the number of rows Append buffers per insert transaction.
const appendBatch = 1000

// Collection is one feature table of a Store.
type Collection struct {
	st   *Store
	name string
	cat  feature.GeometryCategory
	srid int
}

var _ store.Collection = (*Collection)(nil)

func (c *Collection) Name() string                       { return c.name }
func (c *Collection) Category() feature.GeometryCategory { return c.cat }
func (c *Collection) SRID() int                          { return c.srid }

func (c *Collection) AddField(ctx context.Context, name string, typ feature.FieldType, length int) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("sqlite: field name must not be empty")
	}
	if store.SameName(name, colFID) || store.SameName(name, colShape) {
		return fmt.Errorf("sqlite: field name %q is reserved", name)
	}
	if !typ.Valid() {
		return fmt.Errorf("sqlite: field %s: unknown type %q", name, typ)
	}
	if typ != feature.FieldText {
		length = 0
	}

	tx, err := c.st.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	var pos int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM fs_fields WHERE collection = ?`, c.name,
	).Scan(&pos); err != nil {
		return fmt.Errorf("sqlite: add field %s.%s: %w", c.name, name, err)
	}
	var dup int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fs_fields WHERE collection = ? AND name = ?`, c.name, name,
	).Scan(&dup); err != nil {
		return fmt.Errorf("sqlite: add field %s.%s: %w", c.name, name, err)
	}
	if dup > 0 {
		return fmt.Errorf("sqlite: add field %s.%s: %w", c.name, name, store.ErrExists)
	}
	if _, err := tx.ExecContext(ctx, addColumnSQL(c.name, name, typ)); err != nil {
		return fmt.Errorf("sqlite: add field %s.%s: %w", c.name, name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fs_fields (collection, name, field_type, length, position) VALUES (?, ?, ?, ?, ?)`,
		c.name, name, string(typ), length, pos+1,
	); err != nil {
		return fmt.Errorf("sqlite: add field %s.%s: %w", c.name, name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (c *Collection) ListFields(ctx context.Context) ([]store.FieldDescriptor, error) {
	rows, err := c.st.db.QueryContext(ctx,
		`SELECT name, field_type, length, alias, domain FROM fs_fields WHERE collection = ? ORDER BY position`,
		c.name)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list fields %s: %w", c.name, err)
	}
	defer rows.Close()
	var out []store.FieldDescriptor
	for rows.Next() {
		var (
			f  store.FieldDescriptor
			ft string
		)
		if err := rows.Scan(&f.Name, &ft, &f.Length, &f.Alias, &f.Domain); err != nil {
			return nil, fmt.Errorf("sqlite: list fields %s: %w", c.name, err)
		}
		f.Type = feature.FieldType(ft)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Insert writes rows in a single transaction using one prepared statement.
// Any failure rolls the whole batch back.
func (c *Collection) Insert(ctx context.Context, fields []string, rows []store.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	known, err := c.ListFields(ctx)
	if err != nil {
		return 0, err
	}
	for _, f := range fields {
		if _, ok := store.FindField(known, f); !ok {
			return 0, fmt.Errorf("sqlite: insert %s: field %q: %w", c.name, f, store.ErrNotFound)
		}
	}

	tx, err := c.st.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(c.name, fields))
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(fields)+1)
	var inserted int64
	for i, row := range rows {
		if len(row.Values) != len(fields) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert %s: row %d has %d values, want %d", c.name, i, len(row.Values), len(fields))
		}
		shape, err := encodeShape(row.Geometry)
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert %s: row %d: %w", c.name, i, err)
		}
		args[0] = shape
		for j, v := range row.Values {
			args[j+1] = v.SQL()
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert %s: %w", c.name, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

func (c *Collection) Scan(ctx context.Context, fields []string, fn func(store.Row) error) error {
	rows, err := c.st.db.QueryContext(ctx, selectSQL(c.name, fields))
	if err != nil {
		return fmt.Errorf("sqlite: scan %s: %w", c.name, err)
	}
	defer rows.Close()

	raw := make([]any, len(fields)+1)
	ptrs := make([]any, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("sqlite: scan %s: %w", c.name, err)
		}
		geom, err := decodeShape(raw[0])
		if err != nil {
			return fmt.Errorf("sqlite: scan %s: %w", c.name, err)
		}
		row := store.Row{Geometry: geom, Values: make([]feature.Value, len(fields))}
		for i := range fields {
			row.Values[i] = feature.FromSQL(raw[i+1])
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Append checks layout compatibility before writing anything, then copies
// src in batches of appendBatch rows. A src in the same store is copied with
// one INSERT ... SELECT, since the store has a single connection that a
// running Scan would hold.
func (c *Collection) Append(ctx context.Context, src store.Collection) (int64, error) {
	srcFields, err := src.ListFields(ctx)
	if err != nil {
		return 0, err
	}
	dstFields, err := c.ListFields(ctx)
	if err != nil {
		return 0, err
	}
	if err := store.CheckAppendable(src, c, srcFields, dstFields); err != nil {
		return 0, fmt.Errorf("sqlite: append %s into %s: %w", src.Name(), c.name, err)
	}

	names := store.FieldNames(srcFields)
	if local, ok := src.(*Collection); ok && local.st == c.st {
		res, err := c.st.db.ExecContext(ctx, copySQL(c.name, local.name, names))
		if err != nil {
			return 0, fmt.Errorf("sqlite: append %s into %s: %w", local.name, c.name, err)
		}
		return res.RowsAffected()
	}

	var (
		total int64
		batch = make([]store.Row, 0, appendBatch)
	)
	flush := func() error {
		n, err := c.Insert(ctx, names, batch)
		total += n
		batch = batch[:0]
		return err
	}
	err = src.Scan(ctx, names, func(r store.Row) error {
		batch = append(batch, r)
		if len(batch) == appendBatch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	if len(batch) > 0 {
		if err := flush(); err != nil {
			return total, err
		}
	}
	return total, nil
}

func (c *Collection) BindDomain(ctx context.Context, field, domain string) error {
	f, err := c.field(ctx, field)
	if err != nil {
		return err
	}
	var ft string
	err = c.st.db.QueryRowContext(ctx, `SELECT field_type FROM fs_domains WHERE name = ?`, domain).Scan(&ft)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: bind domain %s: %w", domain, store.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("sqlite: bind domain %s: %w", domain, err)
	}
	if feature.FieldType(ft) != f.Type {
		return fmt.Errorf("sqlite: bind domain %s (%s) to %s.%s (%s): %w",
			domain, ft, c.name, f.Name, f.Type, store.ErrSchemaMismatch)
	}
	return c.updateField(ctx, f.Name, "domain", domain)
}

func (c *Collection) SetFieldAlias(ctx context.Context, field, alias string) error {
	f, err := c.field(ctx, field)
	if err != nil {
		return err
	}
	return c.updateField(ctx, f.Name, "alias", alias)
}

func (c *Collection) Count(ctx context.Context) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(c.name))
	if err := c.st.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count %s: %w", c.name, err)
	}
	return n, nil
}

func (c *Collection) field(ctx context.Context, name string) (store.FieldDescriptor, error) {
	fields, err := c.ListFields(ctx)
	if err != nil {
		return store.FieldDescriptor{}, err
	}
	f, ok := store.FindField(fields, name)
	if !ok {
		return f, fmt.Errorf("sqlite: field %s.%s: %w", c.name, name, store.ErrNotFound)
	}
	return f, nil
}

// updateField sets one catalog column (alias or domain) of a field.
func (c *Collection) updateField(ctx context.Context, field, column, value string) error {
	q := fmt.Sprintf("UPDATE fs_fields SET %s = ? WHERE collection = ? AND name = ?", quoteIdent(column))
	if _, err := c.st.db.ExecContext(ctx, q, value, c.name, field); err != nil {
		return fmt.Errorf("sqlite: update %s.%s %s: %w", c.name, field, column, err)
	}
	return nil
}

func encodeShape(g orb.Geometry) (any, error) {
	if g == nil {
		return nil, nil
	}
	b, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode shape: %w", err)
	}
	return b, nil
}

func decodeShape(raw any) (orb.Geometry, error) {
	b, ok := raw.([]byte)
	if !ok || len(b) == 0 {
		return nil, nil
	}
	g, err := wkb.Unmarshal(b)
	if err != nil {
		return nil, fmt.Errorf("decode shape: %w", err)
	}
	return g, nil
}
