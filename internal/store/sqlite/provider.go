// Package sqlite implements the feature store contract on top of single-file
// SQLite databases (modernc.org/sqlite, no cgo).
//
// Each store is one file with the ".fsdb" extension. Collections are plain
// tables with an autoincrement "fid" and a WKB "shape" column; their geometry
// category, spatial reference, field types, aliases and domain bindings live
// in small catalog tables (fs_collections, fs_fields, fs_domains,
// fs_domain_codes).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"farmland/internal/store"
)

// Kind is the registry name of this provider.
const Kind = "sqlite"

// Ext is the file extension of SQLite feature stores.
const Ext = ".fsdb"

func init() {
	store.Register(Kind, func(ctx context.Context) (store.Provider, error) {
		return NewProvider(), nil
	})
}

// Provider creates, opens, lists and deletes SQLite feature stores.
type Provider struct {
	// BusyTimeout is how long a connection waits on a locked database file.
	BusyTimeout time.Duration
}

// NewProvider returns a Provider with default settings.
func NewProvider() *Provider {
	return &Provider{BusyTimeout: 5 * time.Second}
}

func (p *Provider) Kind() string { return Kind }
func (p *Provider) Ext() string  { return Ext }

// StorePath returns the path of the store called name inside folder. The
// extension is appended unless name already carries it.
func StorePath(folder, name string) string {
	if !strings.EqualFold(filepath.Ext(name), Ext) {
		name += Ext
	}
	return filepath.Join(folder, name)
}

func (p *Provider) StoreExists(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.IsDir() {
			return false, fmt.Errorf("sqlite: %s is a directory", path)
		}
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("sqlite: stat %s: %w", path, err)
	}
}

func (p *Provider) CreateStore(ctx context.Context, folder, name string) (store.Store, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("sqlite: store name must not be empty")
	}
	path := StorePath(folder, name)
	exists, err := p.StoreExists(ctx, path)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("sqlite: create %s: %w", path, store.ErrExists)
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create folder %s: %w", folder, err)
	}
	return p.open(ctx, path)
}

func (p *Provider) OpenStore(ctx context.Context, path string) (store.Store, error) {
	exists, err := p.StoreExists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, store.ErrNotFound)
	}
	return p.open(ctx, path)
}

// DeleteStore removes the store file and any rollback journal left next to
// it.
func (p *Provider) DeleteStore(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("sqlite: delete %s: %w", path, store.ErrNotFound)
		}
		return fmt.Errorf("sqlite: delete %s: %w", path, err)
	}
	for _, suffix := range []string{"-journal", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("sqlite: delete %s%s: %w", path, suffix, err)
		}
	}
	return nil
}

func (p *Provider) ListStores(ctx context.Context, root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list %s: %w", root, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), Ext) {
			continue
		}
		out = append(out, filepath.Join(root, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func (p *Provider) open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + filepath.ToSlash(path)
	if p.BusyTimeout > 0 {
		dsn += fmt.Sprintf("?_pragma=busy_timeout(%d)", p.BusyTimeout.Milliseconds())
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer per file; the catalog and data tables share the connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	s := &Store{db: db, path: path}
	if err := s.bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}
