package store

import "strings"

// foldName folds a field or collection name for comparison; stores treat
// names case-insensitively.
func foldName(s string) string { return strings.ToLower(s) }

// SameName reports whether a and b name the same field or collection.
func SameName(a, b string) bool { return foldName(a) == foldName(b) }
