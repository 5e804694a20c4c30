package sqlite

import (
	"fmt"
	"strings"

	"farmland/internal/feature"
)

var catalogDDL = []string{
	`CREATE TABLE IF NOT EXISTS fs_collections (
  name TEXT NOT NULL PRIMARY KEY COLLATE NOCASE,
  geometry_category TEXT NOT NULL,
  srid INTEGER NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS fs_fields (
  collection TEXT NOT NULL COLLATE NOCASE,
  name TEXT NOT NULL COLLATE NOCASE,
  field_type TEXT NOT NULL,
  length INTEGER NOT NULL DEFAULT 0,
  alias TEXT NOT NULL DEFAULT '',
  domain TEXT NOT NULL DEFAULT '',
  position INTEGER NOT NULL,
  PRIMARY KEY (collection, name)
)`,
	`CREATE TABLE IF NOT EXISTS fs_domains (
  name TEXT NOT NULL PRIMARY KEY COLLATE NOCASE,
  description TEXT NOT NULL DEFAULT '',
  field_type TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS fs_domain_codes (
  domain TEXT NOT NULL COLLATE NOCASE,
  code INTEGER NOT NULL,
  label TEXT NOT NULL,
  PRIMARY KEY (domain, code)
)`,
}

// Column names every collection table carries.
const (
	colFID   = "fid"
	colShape = "shape"
)

// columnType maps a field type onto a SQLite column type.
func columnType(t feature.FieldType) string {
	switch t {
	case feature.FieldInteger:
		return "INTEGER"
	case feature.FieldReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

func createCollectionSQL(name string) string {
	return fmt.Sprintf(
		"CREATE TABLE %s (\n  %s INTEGER PRIMARY KEY AUTOINCREMENT,\n  %s BLOB\n)",
		quoteIdent(name), quoteIdent(colFID), quoteIdent(colShape),
	)
}

func addColumnSQL(table, column string, t feature.FieldType) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quoteIdent(table), quoteIdent(column), columnType(t))
}

func insertSQL(table string, fields []string) string {
	cols := make([]string, 0, len(fields)+1)
	ph := make([]string, 0, len(fields)+1)
	cols = append(cols, quoteIdent(colShape))
	ph = append(ph, "?")
	for _, f := range fields {
		cols = append(cols, quoteIdent(f))
		ph = append(ph, "?")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(cols, ", "), strings.Join(ph, ", "))
}

func selectSQL(table string, fields []string) string {
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, quoteIdent(colShape))
	for _, f := range fields {
		cols = append(cols, quoteIdent(f))
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "), quoteIdent(table), quoteIdent(colFID))
}

// copySQL copies the shape and fields of src into dst inside the database,
// keeping src's fid order.
func copySQL(dst, src string, fields []string) string {
	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, quoteIdent(colShape))
	for _, f := range fields {
		cols = append(cols, quoteIdent(f))
	}
	list := strings.Join(cols, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ORDER BY %s",
		quoteIdent(dst), list, list, quoteIdent(src), quoteIdent(colFID))
}

func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}
