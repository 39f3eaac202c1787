package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/storax/dialect"
	"github.com/syssam/storax/dialect/sql"
)

// sqliteDialect is the sqlite DDL and catalog vocabulary. Foreign keys
// are only enforced when the connection was opened with
// "_pragma=foreign_keys(1)".
type sqliteDialect struct{}

func (*sqliteDialect) name() string { return dialect.SQLite }

func (*sqliteDialect) idDefinition() string {
	return "`id` integer NOT NULL PRIMARY KEY AUTOINCREMENT"
}

func (*sqliteDialect) cType(k columnKind) string {
	switch k {
	case ckBool:
		return "boolean"
	case ckInt:
		return "integer"
	case ckFloat:
		return "real"
	case ckTime:
		return "datetime"
	case ckBytes:
		return "blob"
	default:
		return "text"
	}
}

func (*sqliteDialect) normalizeType(t string) columnKind {
	t = strings.ToLower(t)
	switch {
	case strings.Contains(t, "bool"):
		return ckBool
	case strings.Contains(t, "int"):
		return ckInt
	case strings.Contains(t, "real"), strings.Contains(t, "floa"), strings.Contains(t, "doub"):
		return ckFloat
	case strings.Contains(t, "date"), strings.Contains(t, "time"):
		return ckTime
	case strings.Contains(t, "blob"):
		return ckBytes
	default:
		return ckText
	}
}

func (*sqliteDialect) tableExist(ctx context.Context, conn dialect.ExecQuerier, table string) (bool, error) {
	n, err := queryCount(ctx, conn,
		"SELECT COUNT(*) FROM `sqlite_master` WHERE `type` = 'table' AND `name` = ?", []any{table})
	return n > 0, err
}

func (*sqliteDialect) columns(ctx context.Context, conn dialect.ExecQuerier, table string) ([]*columnDesc, error) {
	rows := &sql.Rows{}
	if err := conn.Query(ctx,
		"SELECT `name`, `type`, `notnull` FROM pragma_table_info(?) ORDER BY `cid`", []any{table}, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []*columnDesc
	for rows.Next() {
		var (
			c       columnDesc
			notNull int64
		)
		if err := rows.Scan(&c.name, &c.typ, &notNull); err != nil {
			return nil, err
		}
		c.nullable = notNull == 0
		cols = append(cols, &c)
	}
	return cols, rows.Err()
}

func (*sqliteDialect) fkTarget(ctx context.Context, conn dialect.ExecQuerier, table, column string) (string, error) {
	rows := &sql.Rows{}
	if err := conn.Query(ctx,
		"SELECT `table` FROM pragma_foreign_key_list(?) WHERE `from` = ?", []any{table, column}, rows); err != nil {
		return "", err
	}
	defer rows.Close()
	if !rows.Next() {
		return "", rows.Err()
	}
	var target string
	if err := rows.Scan(&target); err != nil {
		return "", err
	}
	return target, rows.Err()
}

func (d *sqliteDialect) addColumn(ctx context.Context, conn dialect.ExecQuerier, table string, def columnDef, withFK bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD COLUMN %s %s", sql.Quote(d.name(), table), sql.Quote(d.name(), def.Name), d.cType(def.Kind))
	if !def.Nullable {
		b.WriteString(" NOT NULL")
	}
	if def.Default != "" {
		b.WriteString(" DEFAULT " + def.Default)
	}
	if withFK && def.Ref != "" {
		fmt.Fprintf(&b, " REFERENCES %s (`id`) ON UPDATE CASCADE", sql.Quote(d.name(), def.Ref))
	}
	return conn.Exec(ctx, b.String(), []any{}, nil)
}

// modifyColumn is unsupported on sqlite: changing a column's type or
// nullability requires rebuilding the table.
func (*sqliteDialect) modifyColumn(_ context.Context, _ dialect.ExecQuerier, table string, def columnDef) error {
	return fmt.Errorf("schema: sqlite cannot alter column %s.%s in place; a table rebuild is required", table, def.Name)
}
