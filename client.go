package storax

import (
	"context"
	"fmt"

	"github.com/syssam/storax/dialect"
	sqlschema "github.com/syssam/storax/dialect/sql/schema"
)

// Client is the persistence runtime: it moves records between their
// application form and table rows, migrating the live schema on first
// touch of every table.
type Client struct {
	drv     dialect.Driver
	migrate *sqlschema.Migrate
	strict  bool
	cache   Cache
}

// Option configures a Client.
type Option func(*Client)

// Strict makes decoding fail when a fetched row contains a column the
// declared schema does not recognize. Without it unknown columns are
// ignored.
func Strict() Option {
	return func(c *Client) { c.strict = true }
}

// WithCache attaches a row cache consulted by reads outside transactions
// and invalidated by writes.
func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// NewClient returns a runtime bound to the given driver.
func NewClient(drv dialect.Driver, opts ...Option) (*Client, error) {
	m, err := sqlschema.NewMigrate(drv)
	if err != nil {
		return nil, err
	}
	c := &Client{drv: drv, migrate: m}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Driver returns the underlying driver.
func (c *Client) Driver() dialect.Driver { return c.drv }

// Close closes the underlying driver.
func (c *Client) Close() error { return c.drv.Close() }

// txCtxKey is the key the active transaction travels under.
type txCtxKey struct{}

// NewTxContext returns a context carrying the given transaction. Every
// operation derived from it runs against that transaction.
func NewTxContext(ctx context.Context, tx dialect.Tx) context.Context {
	return context.WithValue(ctx, txCtxKey{}, tx)
}

// TxFromContext returns the transaction the context carries, or nil.
func TxFromContext(ctx context.Context) dialect.Tx {
	tx, _ := ctx.Value(txCtxKey{}).(dialect.Tx)
	return tx
}

// conn resolves the execution context for the logical call chain: the
// active transaction when one is bound to ctx, the plain driver
// otherwise.
func (c *Client) conn(ctx context.Context) dialect.ExecQuerier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return c.drv
}

// Tx runs fn inside a transaction bound to the context fn receives. When
// ctx already carries an active transaction, fn joins it: no nested
// transaction is started, and a failure anywhere rolls back the
// outermost one. A panic inside fn rolls back and re-panics.
func (c *Client) Tx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := c.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("storax: starting transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()
	if err := fn(NewTxContext(ctx, tx)); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("%w: rolling back: %v", err, rerr)
		}
		return err
	}
	return tx.Commit()
}
