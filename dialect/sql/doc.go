// Package sql implements the dialect.Driver interface on top of
// database/sql, together with the small SQL-generation helpers
// (identifier quoting, parameter placeholders) the storax runtime and
// migration engine share.
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
// The registered database/sql driver is the caller's choice; the runtime
// is tested against modernc.org/sqlite, lib/pq, and go-sql-driver/mysql.
package sql
