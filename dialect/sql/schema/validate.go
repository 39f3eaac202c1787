package schema

import (
	"fmt"
	"strings"

	"github.com/syssam/storax/dialect/sql"
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Table   string
	Column  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of schema validation.
type ValidationResult struct {
	Errors []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	if !r.HasErrors() {
		return "No issues found"
	}
	var sb strings.Builder
	for _, e := range r.Errors {
		sb.WriteString("  - ")
		sb.WriteString(e.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

func (r *ValidationResult) addf(table, column, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationError{Table: table, Column: column, Message: fmt.Sprintf(format, args...)})
}

// ValidateTable validates a single table declaration: identifier safety,
// column-name uniqueness (including the null-marker names collection
// columns reserve), the implicit id column, and type well-formedness.
func ValidateTable(t *Table) *ValidationResult {
	result := &ValidationResult{}

	if !sql.IsValidIdentifier(t.Name) {
		result.addf(t.Name, "", "invalid table name")
	}

	names := make(map[string]string, 2*len(t.Columns)) // physical name -> declared column
	for _, c := range t.Columns {
		if !sql.IsValidIdentifier(c.Name) {
			result.addf(t.Name, c.Name, "invalid column name")
			continue
		}
		if c.Name == "id" {
			result.addf(t.Name, c.Name, "column name collides with the implicit primary key")
		}
		physical := c.Name
		if !c.Type.HasColumn() {
			physical = c.NullMarker()
		}
		if prev, ok := names[physical]; ok {
			result.addf(t.Name, c.Name, "physical column %q collides with column %q", physical, prev)
		}
		names[physical] = c.Name
		validateType(t.Name, c.Name, c.Type, result)
	}
	return result
}

func validateType(table, column string, typ Type, result *ValidationResult) {
	switch typ := typ.(type) {
	case Simple:
		if !typ.Kind.Valid() {
			result.addf(table, column, "no column representation for kind %q", typ.Kind)
		}
	case Enum:
		if len(typ.Values) == 0 {
			result.addf(table, column, "enum declares no values")
		}
	case Reference:
		if typ.Table == nil {
			result.addf(table, column, "reference declares no table")
		}
	case Collection:
		if typ.CollectionName() == "" {
			result.addf(table, column, "collection declares no name")
		}
		if !typ.Key().HasColumn() {
			result.addf(table, column, "collection key must be a column-bearing type")
		}
		validateType(table, column+".key", typ.Key(), result)
		validateType(table, column+".value", typ.Value(), result)
	default:
		result.addf(table, column, "unknown type %T", typ)
	}
}

// ValidateSchema validates a set of table declarations together:
// duplicate table names and collisions between declared table names and
// the sidecar table names collection columns reserve.
func ValidateSchema(tables []*Table) *ValidationResult {
	result := &ValidationResult{}

	names := make(map[string]bool, len(tables))
	for _, t := range tables {
		if names[t.Name] {
			result.addf(t.Name, "", "duplicate table name")
		}
		names[t.Name] = true

		tr := ValidateTable(t)
		result.Errors = append(result.Errors, tr.Errors...)
	}
	for _, t := range tables {
		for _, c := range t.Columns {
			coll, ok := c.Type.(Collection)
			if !ok {
				continue
			}
			sidecar := t.Name + "_" + coll.CollectionName()
			if names[sidecar] {
				result.addf(t.Name, c.Name, "sidecar table %q collides with a declared table", sidecar)
			}
		}
	}
	return result
}
