package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/syssam/storax/dialect"
	"github.com/syssam/storax/dialect/sql"
)

// mysqlDialect is the mysql DDL and catalog vocabulary. Catalog queries
// are scoped to the connection's current database.
type mysqlDialect struct{}

func (*mysqlDialect) name() string { return dialect.MySQL }

func (*mysqlDialect) idDefinition() string {
	return "`id` bigint NOT NULL AUTO_INCREMENT PRIMARY KEY"
}

func (*mysqlDialect) cType(k columnKind) string {
	switch k {
	case ckBool:
		return "boolean"
	case ckInt:
		return "bigint"
	case ckFloat:
		return "double"
	case ckTime:
		return "datetime(6)"
	case ckBytes:
		return "longblob"
	default:
		return "longtext"
	}
}

func (*mysqlDialect) normalizeType(t string) columnKind {
	switch t = strings.ToLower(t); {
	case t == "tinyint", t == "boolean", t == "bool":
		return ckBool
	case t == "bigint", t == "int", t == "smallint", t == "mediumint":
		return ckInt
	case t == "double", t == "float", t == "decimal":
		return ckFloat
	case t == "datetime", t == "timestamp":
		return ckTime
	case strings.Contains(t, "blob"), t == "varbinary", t == "binary":
		return ckBytes
	default:
		return ckText
	}
}

func (*mysqlDialect) tableExist(ctx context.Context, conn dialect.ExecQuerier, table string) (bool, error) {
	n, err := queryCount(ctx, conn,
		"SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = (SELECT DATABASE()) AND TABLE_NAME = ?",
		[]any{table})
	return n > 0, err
}

func (*mysqlDialect) columns(ctx context.Context, conn dialect.ExecQuerier, table string) ([]*columnDesc, error) {
	rows := &sql.Rows{}
	if err := conn.Query(ctx,
		"SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE FROM information_schema.COLUMNS "+
			"WHERE TABLE_SCHEMA = (SELECT DATABASE()) AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION",
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

func (*mysqlDialect) fkTarget(ctx context.Context, conn dialect.ExecQuerier, table, column string) (string, error) {
	rows := &sql.Rows{}
	if err := conn.Query(ctx,
		"SELECT REFERENCED_TABLE_NAME FROM information_schema.KEY_COLUMN_USAGE "+
			"WHERE TABLE_SCHEMA = (SELECT DATABASE()) AND TABLE_NAME = ? AND COLUMN_NAME = ? "+
			"AND REFERENCED_TABLE_NAME IS NOT NULL",
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

// addColumn adds the column and, for references, a separate constraint
// statement: InnoDB ignores inline REFERENCES clauses.
func (d *mysqlDialect) addColumn(ctx context.Context, conn dialect.ExecQuerier, table string, def columnDef, withFK bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s ADD COLUMN %s %s", sql.Quote(d.name(), table), sql.Quote(d.name(), def.Name), d.cType(def.Kind))
	if !def.Nullable {
		b.WriteString(" NOT NULL")
	}
	if def.Default != "" {
		b.WriteString(" DEFAULT " + def.Default)
	}
	if err := conn.Exec(ctx, b.String(), []any{}, nil); err != nil {
		return err
	}
	if withFK && def.Ref != "" {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (`id`) ON UPDATE CASCADE",
			sql.Quote(d.name(), table), sql.Quote(d.name(), table+"_"+def.Name), sql.Quote(d.name(), def.Name), sql.Quote(d.name(), def.Ref))
		return conn.Exec(ctx, stmt, []any{}, nil)
	}
	return nil
}

func (d *mysqlDialect) modifyColumn(ctx context.Context, conn dialect.ExecQuerier, table string, def columnDef) error {
	var b strings.Builder
	fmt.Fprintf(&b, "ALTER TABLE %s MODIFY COLUMN %s %s", sql.Quote(d.name(), table), sql.Quote(d.name(), def.Name), d.cType(def.Kind))
	if !def.Nullable {
		b.WriteString(" NOT NULL")
	}
	if def.Default != "" {
		b.WriteString(" DEFAULT " + def.Default)
	}
	return conn.Exec(ctx, b.String(), []any{}, nil)
}
