package schema

import (
	"strings"

	"farmland/internal/feature"
)

// Rules are the per-key overrides applied on top of value-based inference.
type Rules struct {
	// TextLength forces a key to Text with the given length.
	TextLength map[string]int
	// ForceText forces a key to Text regardless of its value's shape.
	ForceText map[string]bool
}

// FarmlandRules are the overrides for farmland parcel polygons: the
// narrative "history" attribute outgrows the default text length, and the
// local government code keeps its leading zeros.
var FarmlandRules = Rules{
	TextLength: map[string]int{"history": 10000},
	ForceText:  map[string]bool{"local_government_cd": true},
}

// structural keys are never planned as fields.
var structural = map[string]bool{"geometry": true, "type": true}

// Inference is everything derived from a region's first record.
type Inference struct {
	Category feature.GeometryCategory
	// CategoryWarning is set when the geometry tag was "FeatureCollection".
	CategoryWarning bool
	SRID            int
	Plan            feature.FieldPlan
}

// Infer derives the collection layout from first. defaultSRID is used when
// the geometry carries no CRS.
func Infer(first feature.Record, defaultSRID int, rules Rules) (Inference, error) {
	cat, warn := CategoryFor(first.GeometryType())
	srid, err := ResolveSRID(first.Geometry(), defaultSRID)
	if err != nil {
		return Inference{}, err
	}
	plan := InferFieldPlan(first, rules)
	if err := plan.Validate(); err != nil {
		return Inference{}, err
	}
	return Inference{Category: cat, CategoryWarning: warn, SRID: srid, Plan: plan}, nil
}

// InferFieldPlan plans one field per attribute of rec, in attribute order.
// Integer-looking values give Integer, other numeric values give Real,
// everything else Text of DefaultTextLength.
func InferFieldPlan(rec feature.Record, rules Rules) feature.FieldPlan {
	attrs := rec.Attributes()
	plan := feature.FieldPlan{Fields: make([]feature.FieldSpec, 0, len(attrs))}
	taken := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		if structural[a.Key] {
			continue
		}
		spec := feature.FieldSpec{
			Key:    a.Key,
			Type:   feature.FieldText,
			Length: feature.DefaultTextLength,
		}
		if n, ok := rules.TextLength[a.Key]; ok {
			spec.Length = n
		} else if !rules.ForceText[a.Key] {
			spec.Type = inferType(a.Value)
		}
		if spec.Type != feature.FieldText {
			spec.Length = 0
		}
		spec.Name = uniqueName(ValidateFieldName(a.Key), taken)
		taken[strings.ToLower(spec.Name)] = true
		plan.Fields = append(plan.Fields, spec)
	}
	return plan
}

func inferType(v feature.Value) feature.FieldType {
	switch v.Kind() {
	case feature.KindInteger:
		return feature.FieldInteger
	case feature.KindReal:
		return feature.FieldReal
	case feature.KindText:
		if _, ok := feature.ParseInteger(v.String()); ok {
			return feature.FieldInteger
		}
		if _, ok := feature.ParseReal(v.String()); ok {
			return feature.FieldReal
		}
	}
	return feature.FieldText
}

// ExplicitPlan builds a plan from already-typed field descriptors (e.g. a
// shapefile's DBF header), validating names the same way inference does.
func ExplicitPlan(specs []feature.FieldSpec) feature.FieldPlan {
	plan := feature.FieldPlan{Fields: make([]feature.FieldSpec, 0, len(specs))}
	taken := make(map[string]bool, len(specs))
	for _, s := range specs {
		s.Name = uniqueName(ValidateFieldName(s.Key), taken)
		taken[strings.ToLower(s.Name)] = true
		plan.Fields = append(plan.Fields, s)
	}
	return plan
}
