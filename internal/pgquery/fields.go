package pgquery

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrEmptyFieldSet is returned when exclusions leave no fields to bind.
var ErrEmptyFieldSet = errors.New("field set is empty after exclusions")

// Field is a single column/value pair destined for an INSERT or UPDATE.
type Field struct {
	Name  string
	Value any
}

// Fields builds an ordered field list from alternating name/value pairs,
// preserving the order given.
func Fields(pairs ...Field) []Field {
	return pairs
}

// FieldsFromMap converts a map into an ordered field list. Map iteration
// order is not stable, so the result is sorted by name.
func FieldsFromMap(m map[string]any) []Field {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]Field, 0, len(m))
	for _, name := range names {
		fields = append(fields, Field{Name: name, Value: m[name]})
	}
	return fields
}

// FieldValueSet is an immutable rendering of an ordered field list:
// column names, $1..$k placeholder expressions, and the bound values,
// all index-aligned.
type FieldValueSet struct {
	names        []string
	placeholders []string
	values       []any
}

// NewFieldValueSet builds a FieldValueSet from fields in order.
//
// Names listed in exclude are dropped; excluded names that do not appear
// in fields are ignored. Empty-string values become SQL NULL. When geo is
// non-nil and its column appears among the kept fields, that field gets a
// geometry construction placeholder instead of a bare $n; a geometry
// column that never appears is not an error on the write path.
func NewFieldValueSet(fields []Field, exclude []string, geo *GeometryWriteOptions) (*FieldValueSet, error) {
	if geo != nil {
		if err := geo.Validate(); err != nil {
			return nil, err
		}
	}

	excluded := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		excluded[name] = true
	}

	fvs := &FieldValueSet{}
	seen := make(map[string]bool, len(fields))

	for _, f := range fields {
		if excluded[f.Name] {
			continue
		}
		if !ValidIdentifier(f.Name) {
			return nil, fmt.Errorf("invalid field name %q", f.Name)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("duplicate field name %q", f.Name)
		}
		seen[f.Name] = true

		value := f.Value
		if s, ok := value.(string); ok && s == "" {
			value = nil
		}

		n := len(fvs.names) + 1
		placeholder := fmt.Sprintf("$%d", n)
		if geo != nil && f.Name == geo.Column {
			placeholder = geo.placeholder(n)
		}

		fvs.names = append(fvs.names, f.Name)
		fvs.placeholders = append(fvs.placeholders, placeholder)
		fvs.values = append(fvs.values, value)
	}

	if len(fvs.names) == 0 {
		return nil, ErrEmptyFieldSet
	}
	return fvs, nil
}

// Names returns the comma-joined column list.
func (s *FieldValueSet) Names() string {
	return strings.Join(s.names, ",")
}

// Placeholders returns the comma-joined placeholder list.
func (s *FieldValueSet) Placeholders() string {
	return strings.Join(s.placeholders, ",")
}

// Values returns a copy of the bound values in placeholder order.
func (s *FieldValueSet) Values() []any {
	out := make([]any, len(s.values))
	copy(out, s.values)
	return out
}

// Len returns the number of bound fields.
func (s *FieldValueSet) Len() int {
	return len(s.names)
}
