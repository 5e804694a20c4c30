// Package parser holds what every region extractor returns.
package parser

import "farmland/internal/feature"

// Extraction is the outcome of decoding one region's input.
type Extraction struct {
	Records  []feature.Record
	Skipped  int    // malformed feature entries
	Empty    bool   // the input was the "no results" sentinel
	Encoding string // detected source encoding
	Checksum uint64 // xxh3 of the raw payload(s)
	// SRID is the code declared by the input outside its records (a .prj
	// sidecar); 0 when the input declares none.
	SRID int

	// Plan is set when the input carries its own attribute schema (a DBF
	// header); otherwise the plan is inferred from the first record.
	Plan *feature.FieldPlan
}

// Func extracts the region at path. Implementations contain per-feature
// problems in Skipped and return an error only when the whole region cannot
// be read.
type Func func(path string) (Extraction, error)
