package storax

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/storax/dialect"
	"github.com/syssam/storax/dialect/sql"
	sqlschema "github.com/syssam/storax/dialect/sql/schema"
)

// Insert stores the record and returns its generated id. References
// carrying unstored records are inserted first, collections are written
// to their storage tables, and the whole write runs in one transaction.
func (c *Client) Insert(ctx context.Context, rec *sqlschema.Record) (int64, error) {
	if err := c.migrate.Ready(ctx, rec.Table); err != nil {
		return 0, err
	}
	var id int64
	err := c.Tx(ctx, func(ctx context.Context) error {
		var err error
		id, err = c.insert(ctx, rec)
		return err
	})
	if err != nil {
		return 0, err
	}
	c.invalidate(ctx, rec.Table)
	return id, nil
}

// Get fetches the record with the given id, decoding references and
// collections along with it. It returns a *NotFoundError when no row
// matches.
func (c *Client) Get(ctx context.Context, t *sqlschema.Table, id int64) (*sqlschema.Record, error) {
	if err := c.migrate.Ready(ctx, t); err != nil {
		return nil, err
	}
	return c.get(ctx, t, id)
}

// ListOption tunes List.
type ListOption func(*listOptions)

type listOptions struct {
	limit int
	page  int
}

// WithLimit caps the number of records List returns.
func WithLimit(n int) ListOption {
	return func(o *listOptions) { o.limit = n }
}

// WithPage skips limit*page records before collecting results. It has
// effect only together with WithLimit.
func WithPage(n int) ListOption {
	return func(o *listOptions) { o.page = n }
}

// List fetches the table's records ordered by id.
func (c *Client) List(ctx context.Context, t *sqlschema.Table, opts ...ListOption) ([]*sqlschema.Record, error) {
	if err := c.migrate.Ready(ctx, t); err != nil {
		return nil, err
	}
	var o listOptions
	for _, opt := range opts {
		opt(&o)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s ORDER BY %s",
		c.selectColumns(t), c.quote(t.Name), c.quote("id"))
	if o.limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", o.limit)
		if o.page > 0 {
			fmt.Fprintf(&b, " OFFSET %d", o.limit*o.page)
		}
	}
	cacheable := c.cache != nil && TxFromContext(ctx) == nil
	key := CacheKey{
		Table:      t.Name,
		Operation:  "list",
		Predicates: fmt.Sprintf("%d,%d", o.limit, o.page),
	}.String()
	if cacheable {
		if raws, ok := c.cacheGetRows(ctx, key); ok {
			return c.decodeRows(ctx, t, raws)
		}
	}
	raws, err := c.queryRaw(ctx, b.String())
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.cacheSetRows(ctx, key, raws)
	}
	return c.decodeRows(ctx, t, raws)
}

// Query runs a raw query expected to return full rows of t and decodes
// them the way Get does.
func (c *Client) Query(ctx context.Context, t *sqlschema.Table, query string, args ...any) ([]*sqlschema.Record, error) {
	if err := c.migrate.Ready(ctx, t); err != nil {
		return nil, err
	}
	return c.queryRecords(ctx, t, query, args...)
}

// Delete removes the record with the given id, its collection rows, and
// every record it references. References are followed in the owning
// direction only.
func (c *Client) Delete(ctx context.Context, t *sqlschema.Table, id int64) error {
	if err := c.migrate.Ready(ctx, t); err != nil {
		return err
	}
	err := c.Tx(ctx, func(ctx context.Context) error {
		return c.delete(ctx, t, id)
	})
	if err != nil {
		return err
	}
	c.invalidate(ctx, t)
	return nil
}

// Update replaces the record stored under id with rec while keeping the
// id stable: the old record is deleted, the new one inserted, and the
// fresh row renamed back to id, along with the owner values of its
// collection rows. It returns a *NotFoundError when id is absent.
func (c *Client) Update(ctx context.Context, id int64, rec *sqlschema.Record) error {
	if err := c.migrate.Ready(ctx, rec.Table); err != nil {
		return err
	}
	err := c.Tx(ctx, func(ctx context.Context) error {
		if err := c.delete(ctx, rec.Table, id); err != nil {
			return err
		}
		newID, err := c.insert(ctx, rec)
		if err != nil {
			return err
		}
		query := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
			c.quote(rec.Table.Name),
			c.quote("id"), c.placeholder(1),
			c.quote("id"), c.placeholder(2))
		if err := c.conn(ctx).Exec(ctx, query, []any{id, newID}, nil); err != nil {
			return err
		}
		// The sidecar owner foreign key cascades the rename when the
		// database enforces it. Rename explicitly so enforcement stays
		// optional.
		for _, col := range rec.Table.Columns {
			coll, ok := col.Type.(sqlschema.Collection)
			if !ok {
				continue
			}
			st := coll.StorageTable(rec.Table)
			query := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
				c.quote(st.Name),
				c.quote("owner"), c.placeholder(1),
				c.quote("owner"), c.placeholder(2))
			if err := c.conn(ctx).Exec(ctx, query, []any{id, newID}, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.invalidate(ctx, rec.Table)
	return nil
}

// insert writes the record's row and collection rows. It must run
// inside a transaction.
func (c *Client) insert(ctx context.Context, rec *sqlschema.Record) (int64, error) {
	t := rec.Table
	var (
		names []string
		args  []any
	)
	for _, col := range t.Columns {
		v := rec.Fields[col.Name]
		if !col.Type.HasColumn() {
			names = append(names, col.NullMarker())
			args = append(args, v != nil)
			continue
		}
		ev, err := c.encodeField(ctx, t, col, v)
		if err != nil {
			return 0, err
		}
		names = append(names, col.Name)
		args = append(args, ev)
	}
	id, err := c.insertRow(ctx, t.Name, names, args)
	if err != nil {
		return 0, err
	}
	for _, col := range t.Columns {
		coll, ok := col.Type.(sqlschema.Collection)
		if !ok {
			continue
		}
		v := rec.Fields[col.Name]
		if v == nil {
			continue
		}
		if err := c.putCollection(ctx, t, coll, v, id); err != nil {
			return 0, err
		}
	}
	rec.ID = id
	return id, nil
}

// insertRow issues a single-row insert and returns the generated id.
func (c *Client) insertRow(ctx context.Context, table string, names []string, args []any) (int64, error) {
	d := c.drv.Dialect()
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s", c.quote(table))
	if len(names) == 0 {
		if d == dialect.MySQL {
			b.WriteString(" () VALUES ()")
		} else {
			b.WriteString(" DEFAULT VALUES")
		}
	} else {
		quoted := make([]string, len(names))
		for i, n := range names {
			quoted[i] = c.quote(n)
		}
		fmt.Fprintf(&b, " (%s) VALUES (%s)",
			strings.Join(quoted, ", "), sql.Placeholders(d, 1, len(names)))
	}
	if d == dialect.Postgres {
		b.WriteString(" RETURNING ")
		b.WriteString(c.quote("id"))
		rows := &sql.Rows{}
		if err := c.conn(ctx).Query(ctx, b.String(), args, rows); err != nil {
			return 0, fmt.Errorf("storax: inserting into %s: %w", table, err)
		}
		defer rows.Close()
		if !rows.Next() {
			return 0, fmt.Errorf("storax: inserting into %s: no id returned", table)
		}
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		return id, rows.Err()
	}
	var res sql.Result
	if err := c.conn(ctx).Exec(ctx, b.String(), args, &res); err != nil {
		return 0, fmt.Errorf("storax: inserting into %s: %w", table, err)
	}
	return res.LastInsertId()
}

// putCollection writes the collection's pairs to its storage table. A
// plain collection is written in one multi-row insert; when the value
// type is itself a collection, rows are inserted one by one so the
// nested rows can hang off their generated ids.
func (c *Client) putCollection(ctx context.Context, owner *sqlschema.Table, coll sqlschema.Collection, v any, ownerID int64) error {
	pairs, err := coll.Pairs(v)
	if err != nil {
		return &ConversionError{Table: owner.Name, Column: coll.CollectionName(), Err: err}
	}
	if len(pairs) == 0 {
		return nil
	}
	st := coll.StorageTable(owner)
	nested, valueNested := coll.Value().(sqlschema.Collection)
	if !valueNested {
		var (
			args   []any
			groups []string
			d      = c.drv.Dialect()
		)
		for i, p := range pairs {
			k, err := coll.Key().Encode(p.Key)
			if err != nil {
				return &ConversionError{Table: st.Name, Column: "key", Err: err}
			}
			val, err := coll.Value().Encode(p.Value)
			if err != nil {
				return &ConversionError{Table: st.Name, Column: "value", Err: err}
			}
			groups = append(groups, "("+sql.Placeholders(d, i*3+1, 3)+")")
			args = append(args, ownerID, k, val)
		}
		query := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES %s",
			c.quote(st.Name), c.quote("owner"), c.quote("key"), c.quote("value"),
			strings.Join(groups, ", "))
		if err := c.conn(ctx).Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("storax: inserting into %s: %w", st.Name, err)
		}
		return nil
	}
	for _, p := range pairs {
		k, err := coll.Key().Encode(p.Key)
		if err != nil {
			return &ConversionError{Table: st.Name, Column: "key", Err: err}
		}
		valueCol := st.Column("value")
		rowID, err := c.insertRow(ctx, st.Name,
			[]string{"owner", "key", valueCol.NullMarker()},
			[]any{ownerID, k, p.Value != nil})
		if err != nil {
			return err
		}
		if p.Value == nil {
			continue
		}
		if err := c.putCollection(ctx, st, nested, p.Value, rowID); err != nil {
			return err
		}
	}
	return nil
}

// encodeField converts an application value to its column form. A
// reference holding an unstored record is inserted first and contributes
// its fresh id.
func (c *Client) encodeField(ctx context.Context, t *sqlschema.Table, col *sqlschema.Column, v any) (any, error) {
	ref, isRef := col.Type.(sqlschema.Reference)
	if !isRef {
		ev, err := col.Type.Encode(v)
		if err != nil {
			return nil, &ConversionError{Table: t.Name, Column: col.Name, Err: err}
		}
		return ev, nil
	}
	ev, err := ref.Encode(v)
	if err != nil {
		return nil, &ConversionError{Table: t.Name, Column: col.Name, Err: err}
	}
	switch rv := ev.(type) {
	case nil:
		return nil, nil
	case int64:
		return rv, nil
	case *sqlschema.Record:
		if rv.ID != 0 {
			return rv.ID, nil
		}
		return c.insert(ctx, rv)
	default:
		return nil, &ConversionError{
			Table: t.Name, Column: col.Name,
			Err: fmt.Errorf("unexpected reference value %T", ev),
		}
	}
}

// rawRow is a fetched row before decoding: the id plus each selected
// column's driver value.
type rawRow struct {
	id   int64
	vals map[string]any
}

// queryRaw runs the query and materializes every row. Rows are fully
// drained before any decoding so follow-up queries can reuse the
// transaction's connection.
func (c *Client) queryRaw(ctx context.Context, query string, args ...any) ([]rawRow, error) {
	rows := &sql.Rows{}
	if err := c.conn(ctx).Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("storax: querying: %w", err)
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []rawRow
	for rows.Next() {
		dest := make([]any, len(names))
		for i := range dest {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := rawRow{vals: make(map[string]any, len(names))}
		for i, name := range names {
			v := *dest[i].(*any)
			if name == "id" {
				id, ok := asInt64(v)
				if !ok {
					return nil, fmt.Errorf("storax: unexpected id value %T", v)
				}
				row.id = id
				continue
			}
			row.vals[name] = v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// queryRecords runs the query and decodes every row into a record.
func (c *Client) queryRecords(ctx context.Context, t *sqlschema.Table, query string, args ...any) ([]*sqlschema.Record, error) {
	raws, err := c.queryRaw(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return c.decodeRows(ctx, t, raws)
}

func (c *Client) decodeRows(ctx context.Context, t *sqlschema.Table, raws []rawRow) ([]*sqlschema.Record, error) {
	recs := make([]*sqlschema.Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := c.decodeRow(ctx, t, raw)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// get fetches and decodes a single row by id, consulting the cache
// outside transactions.
func (c *Client) get(ctx context.Context, t *sqlschema.Table, id int64) (*sqlschema.Record, error) {
	raw, err := c.rawGet(ctx, t, id)
	if err != nil {
		return nil, err
	}
	return c.decodeRow(ctx, t, raw)
}

// rawGet fetches a single undecoded row by id.
func (c *Client) rawGet(ctx context.Context, t *sqlschema.Table, id int64) (rawRow, error) {
	cacheable := c.cache != nil && TxFromContext(ctx) == nil
	key := CacheKey{Table: t.Name, Operation: "row", Predicates: strconv.FormatInt(id, 10)}.String()
	if cacheable {
		if raw, ok := c.cacheGet(ctx, key); ok {
			return raw, nil
		}
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		c.selectColumns(t), c.quote(t.Name), c.quote("id"), c.placeholder(1))
	raws, err := c.queryRaw(ctx, query, id)
	if err != nil {
		return rawRow{}, err
	}
	if len(raws) == 0 {
		return rawRow{}, &NotFoundError{Table: t.Name, ID: id}
	}
	if cacheable {
		c.cacheSet(ctx, key, raws[0])
	}
	return raws[0], nil
}

// decodeRow converts a fetched row into a record: simple columns decode
// in place, references fetch the referenced record, and collections are
// reassembled from their storage tables.
func (c *Client) decodeRow(ctx context.Context, t *sqlschema.Table, raw rawRow) (*sqlschema.Record, error) {
	if c.strict {
		if err := c.checkColumns(t, raw); err != nil {
			return nil, err
		}
	}
	rec := sqlschema.NewRecord(t)
	rec.ID = raw.id
	for _, col := range t.Columns {
		if coll, ok := col.Type.(sqlschema.Collection); ok {
			marker, ok := raw.vals[col.NullMarker()]
			if !ok || !truthy(marker) {
				rec.Set(col.Name, nil)
				continue
			}
			v, err := c.fetchCollection(ctx, t, coll, raw.id)
			if err != nil {
				return nil, err
			}
			rec.Set(col.Name, v)
			continue
		}
		v, ok := raw.vals[col.Name]
		if !ok {
			continue
		}
		if v == nil {
			if !col.Nullable {
				return nil, &NullViolationError{Table: t.Name, Column: col.Name}
			}
			rec.Set(col.Name, nil)
			continue
		}
		if ref, ok := col.Type.(sqlschema.Reference); ok {
			id, ok := asInt64(v)
			if !ok {
				return nil, &ConversionError{
					Table: t.Name, Column: col.Name,
					Err: fmt.Errorf("unexpected reference value %T", v),
				}
			}
			target, err := c.get(ctx, ref.Table, id)
			if err != nil {
				return nil, err
			}
			dv, err := ref.Decode(target)
			if err != nil {
				return nil, &ConversionError{Table: t.Name, Column: col.Name, Err: err}
			}
			rec.Set(col.Name, dv)
			continue
		}
		dv, err := col.Type.Decode(v)
		if err != nil {
			return nil, &ConversionError{Table: t.Name, Column: col.Name, Err: err}
		}
		rec.Set(col.Name, dv)
	}
	return rec, nil
}

// checkColumns rejects fetched columns the declared schema does not
// recognize.
func (c *Client) checkColumns(t *sqlschema.Table, raw rawRow) error {
	for name := range raw.vals {
		if t.Column(name) != nil {
			continue
		}
		known := false
		for _, col := range t.Columns {
			if !col.Type.HasColumn() && col.NullMarker() == name {
				known = true
				break
			}
		}
		if !known {
			return &UnknownColumnError{Table: t.Name, Column: name}
		}
	}
	return nil
}

// fetchCollection reassembles a collection value from its storage table.
func (c *Client) fetchCollection(ctx context.Context, owner *sqlschema.Table, coll sqlschema.Collection, ownerID int64) (any, error) {
	st := coll.StorageTable(owner)
	nested, valueNested := coll.Value().(sqlschema.Collection)
	var pairs []sqlschema.Pair
	if !valueNested {
		query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = %s",
			c.quote("key"), c.quote("value"), c.quote(st.Name),
			c.quote("owner"), c.placeholder(1))
		raws, err := c.queryRaw(ctx, query, ownerID)
		if err != nil {
			return nil, err
		}
		for _, raw := range raws {
			k, err := coll.Key().Decode(raw.vals["key"])
			if err != nil {
				return nil, &ConversionError{Table: st.Name, Column: "key", Err: err}
			}
			var v any
			if rv := raw.vals["value"]; rv != nil {
				if v, err = coll.Value().Decode(rv); err != nil {
					return nil, &ConversionError{Table: st.Name, Column: "value", Err: err}
				}
			}
			pairs = append(pairs, sqlschema.Pair{Key: k, Value: v})
		}
		return coll.Collect(pairs)
	}
	valueCol := st.Column("value")
	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s = %s",
		c.quote("id"), c.quote("key"), c.quote(valueCol.NullMarker()),
		c.quote(st.Name), c.quote("owner"), c.placeholder(1))
	raws, err := c.queryRaw(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	for _, raw := range raws {
		k, err := coll.Key().Decode(raw.vals["key"])
		if err != nil {
			return nil, &ConversionError{Table: st.Name, Column: "key", Err: err}
		}
		var v any
		if truthy(raw.vals[valueCol.NullMarker()]) {
			if v, err = c.fetchCollection(ctx, st, nested, raw.id); err != nil {
				return nil, err
			}
		}
		pairs = append(pairs, sqlschema.Pair{Key: k, Value: v})
	}
	return coll.Collect(pairs)
}

// delete removes the row, its collection rows, and the records its
// reference columns point to. It must run inside a transaction.
func (c *Client) delete(ctx context.Context, t *sqlschema.Table, id int64) error {
	raw, err := c.rawGetInTx(ctx, t, id)
	if err != nil {
		return err
	}
	for _, col := range t.Columns {
		coll, ok := col.Type.(sqlschema.Collection)
		if !ok {
			continue
		}
		st := coll.StorageTable(t)
		query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
			c.quote(st.Name), c.quote("owner"), c.placeholder(1))
		if err := c.conn(ctx).Exec(ctx, query, []any{id}, nil); err != nil {
			return fmt.Errorf("storax: deleting from %s: %w", st.Name, err)
		}
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		c.quote(t.Name), c.quote("id"), c.placeholder(1))
	if err := c.conn(ctx).Exec(ctx, query, []any{id}, nil); err != nil {
		return fmt.Errorf("storax: deleting from %s: %w", t.Name, err)
	}
	for _, col := range t.Columns {
		ref, ok := col.Type.(sqlschema.Reference)
		if !ok {
			continue
		}
		v := raw.vals[col.Name]
		if v == nil {
			continue
		}
		refID, ok := asInt64(v)
		if !ok {
			return &ConversionError{
				Table: t.Name, Column: col.Name,
				Err: fmt.Errorf("unexpected reference value %T", v),
			}
		}
		if err := c.delete(ctx, ref.Table, refID); err != nil {
			return err
		}
	}
	return nil
}

// rawGetInTx fetches a single undecoded row without touching the cache.
func (c *Client) rawGetInTx(ctx context.Context, t *sqlschema.Table, id int64) (rawRow, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		c.selectColumns(t), c.quote(t.Name), c.quote("id"), c.placeholder(1))
	raws, err := c.queryRaw(ctx, query, id)
	if err != nil {
		return rawRow{}, err
	}
	if len(raws) == 0 {
		return rawRow{}, &NotFoundError{Table: t.Name, ID: id}
	}
	return raws[0], nil
}

// selectColumns lists the table's physical columns, id first.
func (c *Client) selectColumns(t *sqlschema.Table) string {
	names := []string{c.quote("id")}
	for _, col := range t.Columns {
		if col.Type.HasColumn() {
			names = append(names, c.quote(col.Name))
		} else {
			names = append(names, c.quote(col.NullMarker()))
		}
	}
	return strings.Join(names, ", ")
}

func (c *Client) quote(ident string) string {
	return sql.Quote(c.drv.Dialect(), ident)
}

func (c *Client) placeholder(i int) string {
	return sql.Placeholder(c.drv.Dialect(), i)
}

// truthy reads a driver boolean, which arrives as bool or as an integer
// depending on the dialect.
func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	case []byte:
		return len(b) > 0 && b[0] != '0'
	default:
		return false
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case []byte:
		n64, err := strconv.ParseInt(string(n), 10, 64)
		return n64, err == nil
	default:
		return 0, false
	}
}
