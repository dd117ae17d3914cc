package pgquery

import (
	"fmt"
	"regexp"
	"strings"
)

var identPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether s is a plain SQL identifier: a leading
// letter or underscore followed by letters, digits, or underscores.
// Anything else (quoting, dots, whitespace) is rejected.
func ValidIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// TableName is a schema-qualified table reference.
type TableName struct {
	Schema string
	Name   string
}

// ParseTableName splits a "schema.table" string into a TableName.
// Both parts are required and must be plain identifiers.
func ParseTableName(qualified string) (TableName, error) {
	parts := strings.Split(qualified, ".")
	if len(parts) != 2 {
		return TableName{}, fmt.Errorf("table name %q must be schema-qualified", qualified)
	}

	t := TableName{Schema: parts[0], Name: parts[1]}
	if err := t.Validate(); err != nil {
		return TableName{}, err
	}
	return t, nil
}

// Validate checks both parts are plain identifiers
func (t TableName) Validate() error {
	if !ValidIdentifier(t.Schema) {
		return fmt.Errorf("invalid schema name %q", t.Schema)
	}
	if !ValidIdentifier(t.Name) {
		return fmt.Errorf("invalid table name %q", t.Name)
	}
	return nil
}

// String returns the unquoted "schema.table" form.
func (t TableName) String() string {
	return t.Schema + "." + t.Name
}
