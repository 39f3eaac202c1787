package dialect

import (
	"context"
	"fmt"
	"log"
)

// Dialect names the storax runtime can generate SQL for.
const (
	// MySQL is the mysql dialect.
	MySQL = "mysql"
	// SQLite is the sqlite dialect.
	SQLite = "sqlite"
	// Postgres is the postgres dialect.
	Postgres = "postgres"
)

// ExecQuerier wraps the two standard SQL operations.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows. Its v argument,
	// when non-nil, receives the execution result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows. Its v argument
	// receives the result rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface the persistence runtime and the migration
// engine operate against.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the name of the driver's dialect.
	Dialect() string
}

// Tx wraps transaction commit and rollback around an ExecQuerier.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

type nopTx struct {
	Driver
}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

// NopTx returns a Tx whose Commit and Rollback are no-ops, backed by the
// given driver.
func NopTx(d Driver) Tx {
	return nopTx{d}
}

// DebugDriver is a driver that logs all driver operations.
type DebugDriver struct {
	Driver
	log func(context.Context, ...any)
}

// Debug gets a driver and an optional logging function, and returns a new
// debugged driver that prints all outgoing operations.
func Debug(d Driver, logger ...func(...any)) Driver {
	logf := log.Println
	if len(logger) == 1 {
		logf = logger[0]
	}
	return &DebugDriver{d, func(_ context.Context, v ...any) { logf(v...) }}
}

// DebugWithContext gets a driver and a logging function, and returns a new
// debugged driver that prints all outgoing operations with context.
func DebugWithContext(d Driver, logger func(context.Context, ...any)) Driver {
	return &DebugDriver{d, logger}
}

// Exec logs its params and calls the underlying driver Exec method.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.log(ctx, fmt.Sprintf("driver.Exec: query=%v args=%v", query, args))
	return d.Driver.Exec(ctx, query, args, v)
}

// Query logs its params and calls the underlying driver Query method.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.log(ctx, fmt.Sprintf("driver.Query: query=%v args=%v", query, args))
	return d.Driver.Query(ctx, query, args, v)
}

// Tx adds an identifier to the wrapped transaction and logs its lifecycle.
func (d *DebugDriver) Tx(ctx context.Context) (Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("%p", tx)
	d.log(ctx, fmt.Sprintf("driver.Tx(%s): started", id))
	return &DebugTx{tx, id, d.log, ctx}, nil
}

// DebugTx is a transaction implementation that logs all transaction operations.
type DebugTx struct {
	Tx
	id  string
	log func(context.Context, ...any)
	ctx context.Context
}

// Exec logs its params and calls the underlying transaction Exec method.
func (d *DebugTx) Exec(ctx context.Context, query string, args, v any) error {
	d.log(ctx, fmt.Sprintf("Tx(%s).Exec: query=%v args=%v", d.id, query, args))
	return d.Tx.Exec(ctx, query, args, v)
}

// Query logs its params and calls the underlying transaction Query method.
func (d *DebugTx) Query(ctx context.Context, query string, args, v any) error {
	d.log(ctx, fmt.Sprintf("Tx(%s).Query: query=%v args=%v", d.id, query, args))
	return d.Tx.Query(ctx, query, args, v)
}

// Commit logs the commit and calls the underlying transaction Commit method.
func (d *DebugTx) Commit() error {
	d.log(d.ctx, fmt.Sprintf("Tx(%s): committed", d.id))
	return d.Tx.Commit()
}

// Rollback logs the rollback and calls the underlying transaction Rollback method.
func (d *DebugTx) Rollback() error {
	d.log(d.ctx, fmt.Sprintf("Tx(%s): rolled back", d.id))
	return d.Tx.Rollback()
}
