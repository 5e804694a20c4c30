// Package store defines the feature store contract the converter and the
// aggregator depend on, plus a registry of store providers.
//
// A Provider manages whole stores on disk (create, open, delete, list). A
// Store is an open handle holding named feature collections and coded-value
// domains. A Collection is one geometry-typed table of features with its
// field layout. Handles are always passed explicitly; there is no ambient
// "current workspace".
//
// Backends register a Factory under a kind name in their init functions, the
// same way storage backends are wired elsewhere:
//
//	import _ "farmland/internal/store/all"
//
//	p, err := store.New(ctx, "sqlite")
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/paulmach/orb"

	"farmland/internal/feature"
)

var (
	// ErrNotFound is returned when a store, collection, field or domain does
	// not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrExists is returned when creating something that already exists.
	ErrExists = errors.New("store: already exists")
	// ErrSchemaMismatch is returned by Append when source and target layouts
	// differ.
	ErrSchemaMismatch = errors.New("store: schema mismatch")
)

// FieldDescriptor describes one attribute field of a collection.
type FieldDescriptor struct {
	Name   string
	Type   feature.FieldType
	Length int
	Alias  string
	Domain string
}

// Row is one feature as stored: its geometry (nil for a null geometry) and
// one value per requested field.
type Row struct {
	Geometry orb.Geometry
	Values   []feature.Value
}

// CodedValue is one code/label pair of a coded-value domain.
type CodedValue struct {
	Code  int64
	Label string
}

// Domain is a coded-value domain.
type Domain struct {
	Name        string
	Description string
	FieldType   feature.FieldType
	Codes       []CodedValue
}

// Provider manages stores of one kind on disk.
type Provider interface {
	// Kind is the registry name, e.g. "sqlite".
	Kind() string
	// Ext is the file extension identifying stores of this kind, e.g. ".fsdb".
	Ext() string
	StoreExists(ctx context.Context, path string) (bool, error)
	// CreateStore creates a new store named name inside folder. It fails with
	// ErrExists when the store is already there.
	CreateStore(ctx context.Context, folder, name string) (Store, error)
	OpenStore(ctx context.Context, path string) (Store, error)
	DeleteStore(ctx context.Context, path string) error
	// ListStores returns the stores directly inside root, sorted by path.
	ListStores(ctx context.Context, root string) ([]string, error)
}

// Store is an open feature store.
type Store interface {
	Path() string
	Close() error
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string, cat feature.GeometryCategory, srid int) (Collection, error)
	OpenCollection(ctx context.Context, name string) (Collection, error)
	CreateCodedDomain(ctx context.Context, d Domain) error
	// CopyAs creates collection name in this store with src's geometry
	// category, spatial reference and fields, then copies all of src's rows.
	CopyAs(ctx context.Context, src Collection, name string) (Collection, error)
}

// Collection is one feature collection inside a Store.
type Collection interface {
	Name() string
	Category() feature.GeometryCategory
	SRID() int
	AddField(ctx context.Context, name string, typ feature.FieldType, length int) error
	// ListFields returns the attribute fields in creation order. The feature
	// id and geometry columns are not listed.
	ListFields(ctx context.Context) ([]FieldDescriptor, error)
	// Insert writes rows whose Values align with fields. It returns the
	// number of rows written.
	Insert(ctx context.Context, fields []string, rows []Row) (int64, error)
	// Scan calls fn for every row in insertion order with Values aligned to
	// fields.
	Scan(ctx context.Context, fields []string, fn func(Row) error) error
	// Append copies every row of src into this collection. Layouts must be
	// compatible (see CheckAppendable).
	Append(ctx context.Context, src Collection) (int64, error)
	BindDomain(ctx context.Context, field, domain string) error
	SetFieldAlias(ctx context.Context, field, alias string) error
	Count(ctx context.Context) (int64, error)
}

// CheckAppendable reports whether rows of a collection shaped like src can be
// appended to one shaped like dst: same geometry category and spatial
// reference, and every source field present in dst with the same type.
func CheckAppendable(src, dst Collection, srcFields, dstFields []FieldDescriptor) error {
	if src.Category() != dst.Category() {
		return fmt.Errorf("%w: geometry %s into %s", ErrSchemaMismatch, src.Category(), dst.Category())
	}
	if src.SRID() != dst.SRID() {
		return fmt.Errorf("%w: spatial reference %d into %d", ErrSchemaMismatch, src.SRID(), dst.SRID())
	}
	byName := make(map[string]FieldDescriptor, len(dstFields))
	for _, f := range dstFields {
		byName[foldName(f.Name)] = f
	}
	for _, f := range srcFields {
		d, ok := byName[foldName(f.Name)]
		if !ok {
			return fmt.Errorf("%w: field %q missing in target", ErrSchemaMismatch, f.Name)
		}
		if d.Type != f.Type {
			return fmt.Errorf("%w: field %q is %s in source, %s in target", ErrSchemaMismatch, f.Name, f.Type, d.Type)
		}
	}
	return nil
}

// FieldNames returns the names of fs in order.
func FieldNames(fs []FieldDescriptor) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

// FindField returns the descriptor named name (case-insensitive).
func FindField(fs []FieldDescriptor, name string) (FieldDescriptor, bool) {
	for _, f := range fs {
		if foldName(f.Name) == foldName(name) {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Factory constructs a Provider.
type Factory func(ctx context.Context) (Provider, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind. Backends call it
// from init.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New constructs the provider registered under kind.
func New(ctx context.Context, kind string) (Provider, error) {
	mu.RLock()
	f, ok := factories[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: no provider registered for kind %q", kind)
	}
	return f(ctx)
}

// Kinds lists the registered provider kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
