package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"farmland/internal/feature"
	"farmland/internal/store"
)

// Store is an open SQLite feature store.
type Store struct {
	db   *sql.DB
	path string
}

var _ store.Store = (*Store)(nil)

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite: close %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) bootstrap(ctx context.Context) error {
	for _, stmt := range catalogDDL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: bootstrap %s: %w", s.path, err)
		}
	}
	return nil
}

func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM fs_collections ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list collections: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("sqlite: list collections: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (s *Store) CreateCollection(ctx context.Context, name string, cat feature.GeometryCategory, srid int) (store.Collection, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if cat == "" {
		return nil, fmt.Errorf("sqlite: collection %s: geometry category must not be empty", name)
	}
	if srid <= 0 {
		return nil, fmt.Errorf("sqlite: collection %s: invalid spatial reference %d", name, srid)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM fs_collections WHERE name = ?`, name).Scan(&n); err != nil {
		return nil, fmt.Errorf("sqlite: create collection %s: %w", name, err)
	}
	if n > 0 {
		return nil, fmt.Errorf("sqlite: create collection %s: %w", name, store.ErrExists)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fs_collections (name, geometry_category, srid) VALUES (?, ?, ?)`,
		name, string(cat), srid,
	); err != nil {
		return nil, fmt.Errorf("sqlite: create collection %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, createCollectionSQL(name)); err != nil {
		return nil, fmt.Errorf("sqlite: create collection %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit: %w", err)
	}
	return &Collection{st: s, name: name, cat: cat, srid: srid}, nil
}

func (s *Store) OpenCollection(ctx context.Context, name string) (store.Collection, error) {
	return s.collection(ctx, name)
}

func (s *Store) collection(ctx context.Context, name string) (*Collection, error) {
	var (
		stored string
		cat    string
		srid   int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, geometry_category, srid FROM fs_collections WHERE name = ?`, name,
	).Scan(&stored, &cat, &srid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: collection %s: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: collection %s: %w", name, err)
	}
	return &Collection{st: s, name: stored, cat: feature.GeometryCategory(cat), srid: srid}, nil
}

func (s *Store) CreateCodedDomain(ctx context.Context, d store.Domain) error {
	if err := checkName(d.Name); err != nil {
		return err
	}
	if !d.FieldType.Valid() {
		return fmt.Errorf("sqlite: domain %s: unknown field type %q", d.Name, d.FieldType)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM fs_domains WHERE name = ?`, d.Name).Scan(&n); err != nil {
		return fmt.Errorf("sqlite: create domain %s: %w", d.Name, err)
	}
	if n > 0 {
		return fmt.Errorf("sqlite: create domain %s: %w", d.Name, store.ErrExists)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fs_domains (name, description, field_type) VALUES (?, ?, ?)`,
		d.Name, d.Description, string(d.FieldType),
	); err != nil {
		return fmt.Errorf("sqlite: create domain %s: %w", d.Name, err)
	}
	for _, c := range d.Codes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fs_domain_codes (domain, code, label) VALUES (?, ?, ?)`,
			d.Name, c.Code, c.Label,
		); err != nil {
			return fmt.Errorf("sqlite: domain %s code %d: %w", d.Name, c.Code, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Domain reads back a coded-value domain with its codes in ascending order.
func (s *Store) Domain(ctx context.Context, name string) (store.Domain, error) {
	d := store.Domain{}
	var ft string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, description, field_type FROM fs_domains WHERE name = ?`, name,
	).Scan(&d.Name, &d.Description, &ft)
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("sqlite: domain %s: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return d, fmt.Errorf("sqlite: domain %s: %w", name, err)
	}
	d.FieldType = feature.FieldType(ft)

	rows, err := s.db.QueryContext(ctx,
		`SELECT code, label FROM fs_domain_codes WHERE domain = ? ORDER BY code`, name)
	if err != nil {
		return d, fmt.Errorf("sqlite: domain %s codes: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var c store.CodedValue
		if err := rows.Scan(&c.Code, &c.Label); err != nil {
			return d, fmt.Errorf("sqlite: domain %s codes: %w", name, err)
		}
		d.Codes = append(d.Codes, c)
	}
	return d, rows.Err()
}

func (s *Store) CopyAs(ctx context.Context, src store.Collection, name string) (store.Collection, error) {
	fields, err := src.ListFields(ctx)
	if err != nil {
		return nil, err
	}
	dst, err := s.CreateCollection(ctx, name, src.Category(), src.SRID())
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if err := dst.AddField(ctx, f.Name, f.Type, f.Length); err != nil {
			return nil, err
		}
		if f.Alias != "" {
			if err := dst.SetFieldAlias(ctx, f.Name, f.Alias); err != nil {
				return nil, err
			}
		}
	}
	if _, err := dst.Append(ctx, src); err != nil {
		return nil, err
	}
	return dst, nil
}

func checkName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("sqlite: name must not be empty")
	}
	if strings.HasPrefix(strings.ToLower(name), "fs_") || strings.HasPrefix(strings.ToLower(name), "sqlite_") {
		return fmt.Errorf("sqlite: name %q uses a reserved prefix", name)
	}
	return nil
}
