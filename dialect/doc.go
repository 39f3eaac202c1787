// Package dialect provides the database abstraction the storax runtime
// is built on.
//
// # Supported Dialects
//
// Each dialect is identified by a constant string:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// # Driver Interface
//
// The Driver interface is what the persistence runtime and migration
// engine execute against:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// The Tx interface extends ExecQuerier with Commit and Rollback. Both
// Driver and Tx implement ExecQuerier, which lets every internal
// operation run the same way inside and outside a transaction.
//
// # Usage
//
//	import (
//	    "github.com/syssam/storax/dialect"
//	    "github.com/syssam/storax/dialect/sql"
//	)
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db?_pragma=foreign_keys(1)")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
// Wrap a driver with Debug to log every outgoing statement during
// development.
package dialect
