package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/storax/dialect"
	"github.com/syssam/storax/dialect/sql"
)

// postgresDialect is the postgres DDL and catalog vocabulary. Tables are
// looked up in the current schema (search_path head).
type postgresDialect struct{}

func (*postgresDialect) name() string { return dialect.Postgres }

func (*postgresDialect) idDefinition() string {
	return `"id" bigserial NOT NULL PRIMARY KEY`
}

func (*postgresDialect) cType(k columnKind) string {
	switch k {
	case ckBool:
		return "boolean"
	case ckInt:
		return "bigint"
	case ckFloat:
		return "double precision"
	case ckTime:
		return "timestamptz"
	case ckBytes:
		return "bytea"
	default:
		return "text"
	}
}

func (*postgresDialect) normalizeType(t string) columnKind {
	switch t = strings.ToLower(t); {
	case t == "boolean":
		return ckBool
	case t == "bigint", t == "integer", t == "smallint":
		return ckInt
	case t == "double precision", t == "real", t == "numeric":
		return ckFloat
	case strings.HasPrefix(t, "timestamp"):
		return ckTime
	case t == "bytea":
		return ckBytes
	default:
		return ckText
	}
}

func (*postgresDialect) tableExist(ctx context.Context, conn dialect.ExecQuerier, table string) (bool, error) {
	n, err := queryCount(ctx, conn,
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = CURRENT_SCHEMA() AND table_name = $1",
		[]any{table})
	return n > 0, err
}

func (*postgresDialect) columns(ctx context.Context, conn dialect.ExecQuerier, table string) ([]*columnDesc, error) {
	rows := &sql.Rows{}
	if err := conn.Query(ctx,
		"SELECT column_name, data_type, is_nullable FROM information_schema.columns "+
			"WHERE table_schema = CURRENT_SCHEMA() AND table_name = $1 ORDER BY ordinal_position",
		[]any{table}, rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []*columnDesc
	for rows.Next() {
		var (
			c        columnDesc
			nullable string
		)
		if err := rows.Scan(&c.name, &c.typ, &nullable); err != nil {
			return nil, err
		}
		c.nullable = nullable == "YES"
		cols = append(cols, &c)
	}
	return cols, rows.Err()
}

func (*postgresDialect) fkTarget(ctx context.Context, conn dialect.ExecQuerier, table, column string) (string, error) {
	rows := &sql.Rows{}
	if err := conn.Query(ctx,
		"SELECT ccu.table_name FROM information_schema.table_constraints AS tc "+
			"JOIN information_schema.key_column_usage AS kcu ON tc.constraint_name = kcu.constraint_name "+
			"JOIN information_schema.constraint_column_usage AS ccu ON ccu.constraint_name = tc.constraint_name "+
			"WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_name = $1 AND kcu.column_name = $2",
		[]any{table, column}, rows); err != nil {
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

func (d *postgresDialect) addColumn(ctx context.Context, conn dialect.ExecQuerier, table string, def columnDef, withFK bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD COLUMN %s %s", sql.Quote(d.name(), table), sql.Quote(d.name(), def.Name), d.cType(def.Kind))
	if !def.Nullable {
		b.WriteString(" NOT NULL")
	}
	if def.Default != "" {
		b.WriteString(" DEFAULT " + def.Default)
	}
	if withFK && def.Ref != "" {
		fmt.Fprintf(&b, ` REFERENCES %s ("id") ON UPDATE CASCADE`, sql.Quote(d.name(), def.Ref))
	}
	return conn.Exec(ctx, b.String(), []any{}, nil)
}

// modifyColumn corrects the column's type and nullability in one
// statement. The USING clause casts existing values to the new type.
func (d *postgresDialect) modifyColumn(ctx context.Context, conn dialect.ExecQuerier, table string, def columnDef) error {
	col := sql.Quote(d.name(), def.Name)
	null := "SET NOT NULL"
	if def.Nullable {
		null = "DROP NOT NULL"
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING (%s::%s), ALTER COLUMN %s %s",
		sql.Quote(d.name(), table), col, d.cType(def.Kind), col, d.cType(def.Kind), col, null)
	return conn.Exec(ctx, stmt, []any{}, nil)
}
