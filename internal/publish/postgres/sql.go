package postgres

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"farmland/internal/feature"
	"farmland/internal/store"
)

// Leading columns of every published table.
const (
	ColShape = "shape"
	ColSRID  = "srid"
)

// Columns returns the COPY column list for fields: shape, srid, then the
// fields in order.
func Columns(fields []store.FieldDescriptor) []string {
	cols := make([]string, 0, len(fields)+2)
	cols = append(cols, ColShape, ColSRID)
	return append(cols, store.FieldNames(fields)...)
}

// CreateTableSQL builds the CREATE TABLE IF NOT EXISTS statement for a
// collection with the given fields. Geometry is kept as WKB.
func CreateTableSQL(table string, fields []store.FieldDescriptor) (string, error) {
	fqn := strings.TrimSpace(table)
	if fqn == "" {
		return "", fmt.Errorf("postgres publish: table name must not be empty")
	}
	cols := make([]string, 0, len(fields)+2)
	cols = append(cols,
		pgIdent(ColShape)+" bytea",
		pgIdent(ColSRID)+" integer NOT NULL",
	)
	for _, f := range fields {
		if strings.TrimSpace(f.Name) == "" {
			return "", fmt.Errorf("postgres publish: field with empty name in %s", fqn)
		}
		if strings.EqualFold(f.Name, ColShape) || strings.EqualFold(f.Name, ColSRID) {
			return "", fmt.Errorf("postgres publish: field %q collides with a reserved column", f.Name)
		}
		cols = append(cols, pgIdent(f.Name)+" "+sqlType(f))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", pgFQN(fqn), strings.Join(cols, ",\n  ")), nil
}

func sqlType(f store.FieldDescriptor) string {
	switch f.Type {
	case feature.FieldInteger:
		return "bigint"
	case feature.FieldReal:
		return "double precision"
	default:
		if f.Length > 0 {
			return fmt.Sprintf("varchar(%d)", f.Length)
		}
		return "text"
	}
}

// pgIdent quotes one identifier.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name, "public.farmland" becoming
// "public"."farmland".
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

// splitFQN converts "schema.table" into a pgx.Identifier.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
