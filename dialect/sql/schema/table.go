package schema

import (
	"strings"

	"github.com/go-openapi/inflect"
)

// A Column describes one declared field of a table. Columns are immutable
// after construction and compared structurally.
type Column struct {
	Name     string
	Type     Type
	Nullable bool

	// sidecarOwner marks the owner column of a derived sidecar table.
	// It is the only reference column backed by a database foreign key:
	// declared references may dangle (deleting a referenced record is
	// allowed), sidecar rows may not outlive their owner row's id.
	sidecarOwner bool
}

// Equal reports structural equality of two columns.
func (c *Column) Equal(o *Column) bool {
	return c.Name == o.Name && c.Nullable == o.Nullable && c.Type.Equal(o.Type)
}

// NullMarker returns the name of the boolean presence column that stands
// in for a column whose type has no physical column of its own.
func (c *Column) NullMarker() string {
	return c.Name + "_present"
}

// A Table describes the declared shape of one record type. The implicit
// auto-incrementing primary key "id" that every managed table carries is
// not part of Columns.
type Table struct {
	Name    string
	Columns []*Column

	// Marshal and Unmarshal, when set, convert between the caller's
	// record type and the generic Record form. The runtime consults them
	// when a reference-typed field holds a value that is not already a
	// Record or an id.
	Marshal   func(any) (*Record, error)
	Unmarshal func(*Record) (any, error)
}

// Column returns the declared column with the given name, or nil.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Equal reports whether two tables have the same name and the same
// columns in the same order. Codec hooks do not participate.
func (t *Table) Equal(o *Table) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Name != o.Name || len(t.Columns) != len(o.Columns) {
		return false
	}
	for i := range t.Columns {
		if !t.Columns[i].Equal(o.Columns[i]) {
			return false
		}
	}
	return true
}

// Fingerprint returns a stable textual digest of the table's declared
// shape. Two structurally equal tables produce the same fingerprint; the
// migration engine keys its readiness memo on it. References contribute
// only the referenced table's name, which keeps the digest finite even
// though the schema graph may be deep.
func (t *Table) Fingerprint() string {
	var b strings.Builder
	b.WriteString(t.Name)
	for _, c := range t.Columns {
		b.WriteByte('|')
		b.WriteString(c.Name)
		b.WriteByte(':')
		b.WriteString(c.Type.signature())
		if c.Nullable {
			b.WriteString("?")
		}
	}
	return b.String()
}

// TableNameFor derives the conventional table name for a Go type name:
// snake_case, pluralized. It mirrors the naming rule of the code that
// produces static schema declarations.
//
//	TableNameFor("UserProfile") == "user_profiles"
func TableNameFor(goName string) string {
	return inflect.Pluralize(inflect.Underscore(goName))
}
