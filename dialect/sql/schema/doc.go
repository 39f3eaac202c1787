// Package schema defines the declaration model storax persists records
// through: tables, columns, and the closed hierarchy of column types.
//
// A Table describes the shape of one record type. It is built once, at
// program start, by whatever produces the application's static schema
// (typically generated code), and compared by value from then on:
//
//	people := &schema.Table{
//	    Name: "people",
//	    Columns: []*schema.Column{
//	        {Name: "name", Type: schema.Simple{Kind: field.TypeString}},
//	        {Name: "age", Type: schema.Simple{Kind: field.TypeInt}, Nullable: true},
//	        {Name: "tags", Type: schema.SliceOf("tags", schema.Simple{Kind: field.TypeString}, false)},
//	    },
//	}
//
// # Column Types
//
// The type hierarchy is closed. Exactly four families exist:
//
//   - Simple: primitive values (see schema/field for the kinds).
//   - Enum: an enumerant stored by its ordinal in a fixed value list.
//   - Reference: a pointer to a row of another table, stored as its id.
//   - Collection: ordered sequences, sets, and mappings. Collections never
//     occupy a column; their elements live in a derived sidecar table and
//     the owning table carries only a boolean presence marker.
//
// # Records
//
// A Record is the runtime representation of one row: the table it belongs
// to, its generated id (zero while unsaved), and a field map keyed by
// column name. Records are created per operation and discarded after it.
//
// Table and column names are injected unescaped into generated SQL.
// Never let untrusted input reach them.
package schema
