package schema

// A Record is one row of a table as it exists, or will exist, in the
// database: the table it belongs to, the generated row id (zero while
// unsaved), and the field values keyed by column name. A Record lives for
// the duration of one read or write operation.
type Record struct {
	Table  *Table
	ID     int64
	Fields map[string]any
}

// NewRecord returns an empty unsaved record for the given table.
func NewRecord(t *Table) *Record {
	return &Record{Table: t, Fields: make(map[string]any, len(t.Columns))}
}

// Set assigns a field value and returns the record for chaining.
func (r *Record) Set(name string, v any) *Record {
	r.Fields[name] = v
	return r
}

// Get returns the value of the named field, or nil when absent.
func (r *Record) Get(name string) any {
	return r.Fields[name]
}
