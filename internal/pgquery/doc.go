// Package pgquery builds parameterized PostgreSQL statements for the
// Strata store.
//
// The package turns ordered field lists, filter predicates, and geometry
// rendering options into SQL fragments with $n placeholders and a matching
// bound-value slice. It never executes anything; execution belongs to
// repository/postgres.
//
// # Field Sets
//
// FieldValueSet is the write-side building block. It is constructed from an
// ordered list of (name, value) fields, applies exclusions, maps empty
// strings to SQL NULL, and assigns $1..$k placeholders in field order. A
// geometry column gets an st_geometryfromtext placeholder, optionally
// wrapped in st_transform when the stored SRID differs from the input SRID.
//
// # Predicates
//
// Predicate carries a WHERE fragment whose placeholders are written
// $1-relative. Construction validates that the fragment references exactly
// $1..$n for n bound values. When a predicate is appended after a field set
// its placeholders are shifted past the field placeholders.
//
// # Geometry Rendering
//
// GeometryReadOptions renders a geometry column for SELECT lists in one of
// three formats (raw, text, geojson), optionally reprojected with
// st_transform.
//
// # Result Rows
//
// Row is a decoded result record. DecodeAggregatedRows unpacks the
// array_to_json(array_agg(...)) cell produced by the aggregated SELECT
// shape into a slice of rows.
package pgquery
