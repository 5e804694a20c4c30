package shapefile

import (
	"fmt"
	"unicode/utf8"
)

// Widths of the fixed parts of a region folder name such as "02201青森市2019":
// a five-character local government code, the municipality label, and a
// four-character year suffix.
const (
	codeWidth   = 5
	suffixWidth = 4
)

// RegionName is a region folder name split into its parts.
type RegionName struct {
	Code   string
	Label  string
	Suffix string
}

// ParseRegionName splits a region folder name by position. Widths count
// characters, not bytes.
func ParseRegionName(name string) (RegionName, error) {
	if utf8.RuneCountInString(name) < codeWidth+suffixWidth {
		return RegionName{}, fmt.Errorf("region folder name %q is shorter than %d characters", name, codeWidth+suffixWidth)
	}
	r := []rune(name)
	return RegionName{
		Code:   string(r[:codeWidth]),
		Label:  string(r[codeWidth : len(r)-suffixWidth]),
		Suffix: string(r[len(r)-suffixWidth:]),
	}, nil
}
