package schema

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/storax/dialect"
	"github.com/syssam/storax/dialect/sql"
	"github.com/syssam/storax/schema/field"
)

func escape(query string) string {
	return "^" + regexp.QuoteMeta(query) + "$"
}

func peopleTable() *Table {
	return &Table{Name: "people", Columns: []*Column{
		{Name: "name", Type: Simple{Kind: field.TypeString}},
		{Name: "age", Type: Simple{Kind: field.TypeInt}, Nullable: true},
	}}
}

func expectTableExist(mk sqlmock.Sqlmock, table string, n int) {
	mk.ExpectQuery(escape("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = CURRENT_SCHEMA() AND table_name = $1")).
		WithArgs(table).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(n))
}

func expectColumns(mk sqlmock.Sqlmock, table string, rows *sqlmock.Rows) {
	mk.ExpectQuery(escape("SELECT column_name, data_type, is_nullable FROM information_schema.columns WHERE table_schema = CURRENT_SCHEMA() AND table_name = $1 ORDER BY ordinal_position")).
		WithArgs(table).
		WillReturnRows(rows)
}

func TestMigrate_CreateFreshTable(t *testing.T) {
	db, mk, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m, err := NewMigrate(sql.OpenDB(dialect.Postgres, db))
	require.NoError(t, err)

	expectTableExist(mk, "people", 0)
	mk.ExpectExec(escape(`CREATE TABLE "people" ("id" bigserial NOT NULL PRIMARY KEY, "name" text NOT NULL, "age" bigint)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, m.Ready(context.Background(), peopleTable()))
	require.NoError(t, mk.ExpectationsWereMet())

	// Equal table, same engine: memoized, no round-trips at all.
	require.NoError(t, m.Ready(context.Background(), peopleTable()))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestMigrate_NoopOnMatchingSchema(t *testing.T) {
	db, mk, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// A fresh engine against an already-matching live schema issues zero
	// DDL statements.
	m, err := NewMigrate(sql.OpenDB(dialect.Postgres, db))
	require.NoError(t, err)

	expectTableExist(mk, "people", 1)
	expectColumns(mk, "people", sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
		AddRow("id", "bigint", "NO").
		AddRow("name", "text", "NO").
		AddRow("age", "bigint", "YES"))

	require.NoError(t, m.Ready(context.Background(), peopleTable()))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestMigrate_ColumnDrift(t *testing.T) {
	db, mk, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m, err := NewMigrate(sql.OpenDB(dialect.Postgres, db))
	require.NoError(t, err)

	// age exists as text but is declared integer: its type is altered and
	// the other columns stay untouched.
	expectTableExist(mk, "people", 1)
	expectColumns(mk, "people", sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
		AddRow("id", "bigint", "NO").
		AddRow("name", "text", "NO").
		AddRow("age", "text", "YES"))
	mk.ExpectExec(escape(`ALTER TABLE "people" ALTER COLUMN "age" TYPE bigint USING ("age"::bigint), ALTER COLUMN "age" DROP NOT NULL`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, m.Ready(context.Background(), peopleTable()))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestMigrate_AddAndDropColumn(t *testing.T) {
	db, mk, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m, err := NewMigrate(sql.OpenDB(dialect.Postgres, db))
	require.NoError(t, err)

	// name is missing and legacy is undeclared.
	expectTableExist(mk, "people", 1)
	expectColumns(mk, "people", sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
		AddRow("id", "bigint", "NO").
		AddRow("age", "bigint", "YES").
		AddRow("legacy", "text", "YES"))
	mk.ExpectExec(escape(`ALTER TABLE "people" ADD COLUMN "name" text NOT NULL`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mk.ExpectExec(escape(`ALTER TABLE "people" DROP COLUMN "legacy"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, m.Ready(context.Background(), peopleTable()))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestMigrate_KeepUndeclaredColumn(t *testing.T) {
	db, mk, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m, err := NewMigrate(sql.OpenDB(dialect.Postgres, db), WithDropColumn(false))
	require.NoError(t, err)

	expectTableExist(mk, "people", 1)
	expectColumns(mk, "people", sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
		AddRow("id", "bigint", "NO").
		AddRow("name", "text", "NO").
		AddRow("age", "bigint", "YES").
		AddRow("legacy", "text", "YES"))

	require.NoError(t, m.Ready(context.Background(), peopleTable()))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestMigrate_ReferenceCreatedFirst(t *testing.T) {
	db, mk, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m, err := NewMigrate(sql.OpenDB(dialect.Postgres, db))
	require.NoError(t, err)

	countries := &Table{Name: "countries", Columns: []*Column{
		{Name: "name", Type: Simple{Kind: field.TypeString}},
	}}
	cities := &Table{Name: "cities", Columns: []*Column{
		{Name: "name", Type: Simple{Kind: field.TypeString}},
		{Name: "country", Type: Reference{Table: countries}},
	}}

	expectTableExist(mk, "countries", 0)
	mk.ExpectExec(escape(`CREATE TABLE "countries" ("id" bigserial NOT NULL PRIMARY KEY, "name" text NOT NULL)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectTableExist(mk, "cities", 0)
	// Declared references carry no foreign key so referenced rows can be
	// deleted out from under them.
	mk.ExpectExec(escape(`CREATE TABLE "cities" ("id" bigserial NOT NULL PRIMARY KEY, "name" text NOT NULL, "country" bigint NOT NULL)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, m.Ready(context.Background(), cities))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestMigrate_CollectionSidecar(t *testing.T) {
	db, mk, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m, err := NewMigrate(sql.OpenDB(dialect.Postgres, db))
	require.NoError(t, err)

	people := &Table{Name: "people", Columns: []*Column{
		{Name: "name", Type: Simple{Kind: field.TypeString}},
		{Name: "tags", Type: SliceOf("tags", Simple{Kind: field.TypeString}, false)},
	}}

	// The owning table carries only the presence marker; the elements live
	// in people_tags, created after it.
	expectTableExist(mk, "people", 0)
	mk.ExpectExec(escape(`CREATE TABLE "people" ("id" bigserial NOT NULL PRIMARY KEY, "name" text NOT NULL, "tags_present" boolean NOT NULL DEFAULT false)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectTableExist(mk, "people_tags", 0)
	mk.ExpectExec(escape(`CREATE TABLE "people_tags" ("id" bigserial NOT NULL PRIMARY KEY, "owner" bigint NOT NULL, "key" bigint NOT NULL, "value" text NOT NULL, CONSTRAINT "people_tags_owner" FOREIGN KEY ("owner") REFERENCES "people" ("id") ON UPDATE CASCADE)`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, m.Ready(context.Background(), people))
	require.NoError(t, mk.ExpectationsWereMet())
}

func TestMigrate_ForeignKeyRetarget(t *testing.T) {
	db, mk, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	m, err := NewMigrate(sql.OpenDB(dialect.Postgres, db))
	require.NoError(t, err)

	people := &Table{Name: "people", Columns: []*Column{
		{Name: "name", Type: Simple{Kind: field.TypeString}},
		{Name: "tags", Type: SliceOf("tags", Simple{Kind: field.TypeString}, false)},
	}}

	// A live sidecar whose owner key points at some other table cannot be
	// reconciled in place.
	expectTableExist(mk, "people", 1)
	expectColumns(mk, "people", sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
		AddRow("id", "bigint", "NO").
		AddRow("name", "text", "NO").
		AddRow("tags_present", "boolean", "NO"))
	expectTableExist(mk, "people_tags", 1)
	expectColumns(mk, "people_tags", sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
		AddRow("id", "bigint", "NO").
		AddRow("owner", "bigint", "NO").
		AddRow("key", "bigint", "NO").
		AddRow("value", "text", "NO"))
	mk.ExpectQuery("SELECT ccu.table_name FROM information_schema.table_constraints.+").
		WithArgs("people_tags", "owner").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("persons"))

	err = m.Ready(context.Background(), people)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retargeting foreign key")
}

func TestMigrate_SQLite(t *testing.T) {
	drv, err := sql.Open(dialect.SQLite, "file:migrate?mode=memory&cache=shared&_pragma=foreign_keys(1)")
	require.NoError(t, err)
	defer drv.Close()

	people := &Table{Name: "people", Columns: []*Column{
		{Name: "name", Type: Simple{Kind: field.TypeString}},
		{Name: "age", Type: Simple{Kind: field.TypeInt}, Nullable: true},
		{Name: "tags", Type: SliceOf("tags", Simple{Kind: field.TypeString}, false)},
	}}

	m, err := NewMigrate(drv)
	require.NoError(t, err)
	require.NoError(t, m.Ready(context.Background(), people))

	// A fresh engine re-introspects the live schema and finds nothing to
	// change.
	m2, err := NewMigrate(drv)
	require.NoError(t, err)
	require.NoError(t, m2.Ready(context.Background(), people))

	sd := &sqliteDialect{}
	for _, name := range []string{"people", "people_tags"} {
		exists, err := sd.tableExist(context.Background(), drv, name)
		require.NoError(t, err)
		assert.True(t, exists, name)
	}
	target, err := sd.fkTarget(context.Background(), drv, "people_tags", "owner")
	require.NoError(t, err)
	assert.Equal(t, "people", target)

	cols, err := sd.columns(context.Background(), drv, "people")
	require.NoError(t, err)
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.name)
	}
	assert.Equal(t, []string{"id", "name", "age", "tags_present"}, names)
}

func TestMigrate_UnsupportedDialect(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewMigrate(sql.OpenDB("oracle", db))
	require.Error(t, err)
}

func TestValidateTable(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.False(t, ValidateTable(peopleTable()).HasErrors())
	})

	t.Run("DuplicateColumn", func(t *testing.T) {
		r := ValidateTable(&Table{Name: "t", Columns: []*Column{
			{Name: "a", Type: Simple{Kind: field.TypeInt}},
			{Name: "a", Type: Simple{Kind: field.TypeString}},
		}})
		assert.True(t, r.HasErrors())
	})

	t.Run("MarkerCollision", func(t *testing.T) {
		r := ValidateTable(&Table{Name: "t", Columns: []*Column{
			{Name: "tags", Type: SliceOf("tags", Simple{Kind: field.TypeString}, false)},
			{Name: "tags_present", Type: Simple{Kind: field.TypeBool}},
		}})
		assert.True(t, r.HasErrors())
	})

	t.Run("ImplicitID", func(t *testing.T) {
		r := ValidateTable(&Table{Name: "t", Columns: []*Column{
			{Name: "id", Type: Simple{Kind: field.TypeInt}},
		}})
		assert.True(t, r.HasErrors())
	})

	t.Run("InjectedName", func(t *testing.T) {
		r := ValidateTable(&Table{Name: "t; DROP TABLE t", Columns: nil})
		assert.True(t, r.HasErrors())
	})

	t.Run("EmptyEnum", func(t *testing.T) {
		r := ValidateTable(&Table{Name: "t", Columns: []*Column{
			{Name: "status", Type: Enum{}},
		}})
		assert.True(t, r.HasErrors())
	})

	t.Run("CollectionKey", func(t *testing.T) {
		inner := SliceOf("inner", Simple{Kind: field.TypeInt}, false)
		r := ValidateTable(&Table{Name: "t", Columns: []*Column{
			{Name: "weird", Type: MapOf("weird", inner, Simple{Kind: field.TypeInt}, false, false)},
		}})
		assert.True(t, r.HasErrors())
	})
}

func TestValidateSchema(t *testing.T) {
	t.Run("SidecarCollision", func(t *testing.T) {
		people := &Table{Name: "people", Columns: []*Column{
			{Name: "tags", Type: SliceOf("tags", Simple{Kind: field.TypeString}, false)},
		}}
		collide := &Table{Name: "people_tags", Columns: []*Column{
			{Name: "x", Type: Simple{Kind: field.TypeInt}},
		}}
		r := ValidateSchema([]*Table{people, collide})
		assert.True(t, r.HasErrors())
	})

	t.Run("DuplicateTable", func(t *testing.T) {
		r := ValidateSchema([]*Table{peopleTable(), peopleTable()})
		assert.True(t, r.HasErrors())
	})
}
