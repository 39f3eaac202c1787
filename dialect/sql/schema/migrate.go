package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/syssam/storax/dialect"
	"github.com/syssam/storax/dialect/sql"
	"github.com/syssam/storax/schema/field"
)

// Migrate reconciles declared table shapes against the live database
// schema. One instance is scoped to one driver; it remembers which
// tables it has already verified during its lifetime, so repeated calls
// with an equal table are no-ops. Schema drift introduced behind its
// back after a table was verified is not re-detected.
type Migrate struct {
	drv     dialect.Driver
	sd      sqlDialect
	dropCol bool
	withFKs bool

	mu       sync.Mutex
	prepared map[string]struct{} // table fingerprints verified ready
	visiting map[string]struct{} // tables on the current recursion path
}

// MigrateOption configures a Migrate instance.
type MigrateOption func(*Migrate)

// WithDropColumn controls whether catalog columns absent from the
// declared set are dropped. Defaults to true.
func WithDropColumn(b bool) MigrateOption {
	return func(m *Migrate) { m.dropCol = b }
}

// WithForeignKeys controls whether foreign-key constraints are emitted
// for sidecar owner columns. Defaults to true.
func WithForeignKeys(b bool) MigrateOption {
	return func(m *Migrate) { m.withFKs = b }
}

// NewMigrate returns a migration engine for the given driver. The
// driver's dialect selects the DDL and catalog-introspection vocabulary.
func NewMigrate(drv dialect.Driver, opts ...MigrateOption) (*Migrate, error) {
	m := &Migrate{
		drv:      drv,
		dropCol:  true,
		withFKs:  true,
		prepared: make(map[string]struct{}),
		visiting: make(map[string]struct{}),
	}
	switch drv.Dialect() {
	case dialect.SQLite:
		m.sd = &sqliteDialect{}
	case dialect.Postgres:
		m.sd = &postgresDialect{}
	case dialect.MySQL:
		m.sd = &mysqlDialect{}
	default:
		return nil, fmt.Errorf("schema: unsupported dialect %q", drv.Dialect())
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Create ensures every given table, and everything each transitively
// references or derives, matches its declaration.
func (m *Migrate) Create(ctx context.Context, tables ...*Table) error {
	if r := ValidateSchema(tables); r.HasErrors() {
		return fmt.Errorf("schema: invalid declarations:\n%s", r)
	}
	for _, t := range tables {
		if err := m.Ready(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Ready ensures the live schema for t matches its declaration: referenced
// tables are verified first, then t itself is created or diffed against
// the catalog, then the sidecar table of every collection column is
// verified. The result is memoized by the table's structural fingerprint.
func (m *Migrate) Ready(ctx context.Context, t *Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready(ctx, t)
}

func (m *Migrate) ready(ctx context.Context, t *Table) error {
	fp := t.Fingerprint()
	if _, ok := m.prepared[fp]; ok {
		return nil
	}
	// A sidecar's owner column references the table being verified; the
	// back-edge terminates here instead of recursing forever.
	if _, ok := m.visiting[fp]; ok {
		return nil
	}
	m.visiting[fp] = struct{}{}
	defer delete(m.visiting, fp)
	if r := ValidateTable(t); r.HasErrors() {
		return fmt.Errorf("schema: invalid table %q:\n%s", t.Name, r)
	}
	// Referenced tables are verified first so their rows exist before any
	// id of theirs is stored here.
	for _, c := range t.Columns {
		if ref, ok := c.Type.(Reference); ok {
			if err := m.ready(ctx, ref.Table); err != nil {
				return err
			}
		}
	}
	exists, err := m.sd.tableExist(ctx, m.drv, t.Name)
	if err != nil {
		return err
	}
	if !exists {
		if err := m.addTable(ctx, t); err != nil {
			return err
		}
	} else if err := m.diffTable(ctx, t); err != nil {
		return err
	}
	// Sidecar tables reference this table's id, so they come after it.
	for _, c := range t.Columns {
		if coll, ok := c.Type.(Collection); ok {
			if err := m.ready(ctx, coll.StorageTable(t)); err != nil {
				return err
			}
		}
	}
	m.prepared[fp] = struct{}{}
	return nil
}

// addTable creates the table: an implicit auto-incrementing integer
// primary key "id", one physical column per column-bearing type, and one
// boolean null-marker per collection column.
func (m *Migrate) addTable(ctx context.Context, t *Table) error {
	d := m.sd.name()
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (%s", sql.Quote(d, t.Name), m.sd.idDefinition())
	defs := physicalDefs(t)
	for _, def := range defs {
		b.WriteString(", ")
		b.WriteString(m.columnDDL(def))
	}
	if m.withFKs {
		for _, def := range defs {
			if def.Ref == "" {
				continue
			}
			fmt.Fprintf(&b, ", CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s) ON UPDATE CASCADE",
				sql.Quote(d, t.Name+"_"+def.Name), sql.Quote(d, def.Name), sql.Quote(d, def.Ref), sql.Quote(d, "id"))
		}
	}
	b.WriteString(")")
	return m.drv.Exec(ctx, b.String(), []any{}, nil)
}

// diffTable reconciles an existing table column-by-column: missing
// columns are added, columns whose live storage class, nullability, or
// foreign-key target differ are altered, and undeclared columns other
// than the implicit id are dropped.
func (m *Migrate) diffTable(ctx context.Context, t *Table) error {
	live, err := m.sd.columns(ctx, m.drv, t.Name)
	if err != nil {
		return err
	}
	liveMap := make(map[string]*columnDesc, len(live))
	for _, c := range live {
		liveMap[c.name] = c
	}
	defs := physicalDefs(t)
	declared := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		declared[def.Name] = struct{}{}
		lc, ok := liveMap[def.Name]
		if !ok {
			if err := m.addColumn(ctx, t.Name, def); err != nil {
				return err
			}
			continue
		}
		if def.Ref != "" && m.withFKs {
			target, err := m.sd.fkTarget(ctx, m.drv, t.Name, def.Name)
			if err != nil {
				return err
			}
			if target != def.Ref {
				return fmt.Errorf("schema: %s.%s: retargeting foreign key from %q to %q is not supported",
					t.Name, def.Name, target, def.Ref)
			}
		}
		if m.sd.normalizeType(lc.typ) != def.Kind || lc.nullable != def.Nullable {
			if err := m.sd.modifyColumn(ctx, m.drv, t.Name, def); err != nil {
				return err
			}
		}
	}
	if m.dropCol {
		for _, c := range live {
			if c.name == "id" {
				continue
			}
			if _, ok := declared[c.name]; !ok {
				d := m.sd.name()
				stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", sql.Quote(d, t.Name), sql.Quote(d, c.name))
				if err := m.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (m *Migrate) addColumn(ctx context.Context, table string, def columnDef) error {
	return m.sd.addColumn(ctx, m.drv, table, def, m.withFKs)
}

// columnDDL renders one column definition without its table-level
// foreign-key clause.
func (m *Migrate) columnDDL(def columnDef) string {
	d := m.sd.name()
	var b strings.Builder
	b.WriteString(sql.Quote(d, def.Name))
	b.WriteByte(' ')
	b.WriteString(m.sd.cType(def.Kind))
	if !def.Nullable {
		b.WriteString(" NOT NULL")
	}
	if def.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(def.Default)
	}
	return b.String()
}

// columnKind is the storage class a physical column occupies. The diff
// compares live catalog types against these classes rather than exact
// type names, since every dialect spells them differently.
type columnKind uint8

const (
	ckBool columnKind = iota
	ckInt
	ckFloat
	ckText
	ckTime
	ckBytes
)

// columnDef describes one physical column as it must exist in the
// database.
type columnDef struct {
	Name     string
	Kind     columnKind
	Nullable bool
	Ref      string // referenced table name, "" when not a foreign key
	Default  string // rendered DDL default, "" when none
}

// physicalDefs maps the declared columns to their physical form:
// collection columns are replaced by their boolean null-markers.
func physicalDefs(t *Table) []columnDef {
	defs := make([]columnDef, 0, len(t.Columns))
	for _, c := range t.Columns {
		defs = append(defs, physicalDef(c))
	}
	return defs
}

func physicalDef(c *Column) columnDef {
	switch typ := c.Type.(type) {
	case Simple:
		return columnDef{Name: c.Name, Kind: kindClass(typ.Kind), Nullable: c.Nullable}
	case Enum:
		return columnDef{Name: c.Name, Kind: ckInt, Nullable: c.Nullable}
	case Reference:
		def := columnDef{Name: c.Name, Kind: ckInt, Nullable: c.Nullable}
		// Only sidecar owner columns are backed by a foreign key. Declared
		// references may dangle: deleting a referenced record must succeed.
		if c.sidecarOwner {
			def.Ref = typ.Table.Name
		}
		return def
	case Collection:
		return columnDef{Name: c.NullMarker(), Kind: ckBool, Default: "false"}
	default:
		panic(fmt.Sprintf("schema: unknown column type %T", c.Type))
	}
}

// kindClass maps a primitive value kind to its storage class.
func kindClass(k field.Type) columnKind {
	switch k {
	case field.TypeBool:
		return ckBool
	case field.TypeInt, field.TypeDuration:
		return ckInt
	case field.TypeFloat:
		return ckFloat
	case field.TypeTime:
		return ckTime
	case field.TypeBytes:
		return ckBytes
	default:
		// bigint, string, regexp, url and uuid travel as text.
		return ckText
	}
}

// columnDesc is one live catalog column.
type columnDesc struct {
	name     string
	typ      string
	nullable bool
}

// sqlDialect is the seam between the dialect-independent migration
// algorithm and the DDL/catalog vocabulary of one database. Alternative
// storage engines supply their own implementation.
type sqlDialect interface {
	name() string
	idDefinition() string
	cType(columnKind) string
	normalizeType(string) columnKind
	tableExist(ctx context.Context, conn dialect.ExecQuerier, table string) (bool, error)
	columns(ctx context.Context, conn dialect.ExecQuerier, table string) ([]*columnDesc, error)
	fkTarget(ctx context.Context, conn dialect.ExecQuerier, table, column string) (string, error)
	addColumn(ctx context.Context, conn dialect.ExecQuerier, table string, def columnDef, withFK bool) error
	modifyColumn(ctx context.Context, conn dialect.ExecQuerier, table string, def columnDef) error
}

// queryCount runs a query expected to return a single integer.
func queryCount(ctx context.Context, conn dialect.ExecQuerier, query string, args []any) (int64, error) {
	rows := &sql.Rows{}
	if err := conn.Query(ctx, query, args, rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, fmt.Errorf("schema: no rows returned for %q", query)
	}
	var n int64
	if err := rows.Scan(&n); err != nil {
		return 0, err
	}
	return n, rows.Err()
}
