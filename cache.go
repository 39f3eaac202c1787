package storax

import (
	"bytes"
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	sqlschema "github.com/syssam/storax/dialect/sql/schema"
)

// Cache is the interface for caching fetched rows.
// Users should implement this interface with their preferred caching solution
// (e.g., Redis, Memcached, in-memory).
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes all values with the given prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// CacheKey generates a cache key for a fetch.
type CacheKey struct {
	Table      string
	Operation  string
	Predicates string
}

// String returns the string representation of the cache key.
func (k CacheKey) String() string {
	return k.Table + ":" + k.Operation + ":" + k.Predicates
}

// cachedRow is the serialized form of a fetched row. Column values are
// driver values, which msgpack round-trips with loose decoding.
type cachedRow struct {
	ID   int64          `msgpack:"id"`
	Vals map[string]any `msgpack:"vals"`
}

func (c *Client) cacheGet(ctx context.Context, key string) (rawRow, bool) {
	data, err := c.cache.Get(ctx, key)
	if err != nil || data == nil {
		return rawRow{}, false
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	var row cachedRow
	if err := dec.Decode(&row); err != nil {
		return rawRow{}, false
	}
	return rawRow{id: row.ID, vals: row.Vals}, true
}

func (c *Client) cacheSet(ctx context.Context, key string, raw rawRow) {
	data, err := msgpack.Marshal(cachedRow{ID: raw.id, Vals: raw.vals})
	if err != nil {
		return
	}
	_ = c.cache.Set(ctx, key, data, 0)
}

func (c *Client) cacheGetRows(ctx context.Context, key string) ([]rawRow, bool) {
	data, err := c.cache.Get(ctx, key)
	if err != nil || data == nil {
		return nil, false
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	var rows []cachedRow
	if err := dec.Decode(&rows); err != nil {
		return nil, false
	}
	out := make([]rawRow, len(rows))
	for i, row := range rows {
		out[i] = rawRow{id: row.ID, vals: row.Vals}
	}
	return out, true
}

func (c *Client) cacheSetRows(ctx context.Context, key string, raws []rawRow) {
	rows := make([]cachedRow, len(raws))
	for i, raw := range raws {
		rows[i] = cachedRow{ID: raw.id, Vals: raw.vals}
	}
	data, err := msgpack.Marshal(rows)
	if err != nil {
		return
	}
	_ = c.cache.Set(ctx, key, data, 0)
}

// invalidate drops every cached row of the table. Cascading writes touch
// other tables too, so their caches are dropped through the reference
// columns as well.
func (c *Client) invalidate(ctx context.Context, t *sqlschema.Table) {
	if c.cache == nil {
		return
	}
	c.invalidateTable(ctx, t, map[string]struct{}{})
}

func (c *Client) invalidateTable(ctx context.Context, t *sqlschema.Table, seen map[string]struct{}) {
	if _, ok := seen[t.Name]; ok {
		return
	}
	seen[t.Name] = struct{}{}
	_ = c.cache.DeletePrefix(ctx, t.Name+":")
	for _, col := range t.Columns {
		if ref, ok := col.Type.(sqlschema.Reference); ok {
			c.invalidateTable(ctx, ref.Table, seen)
		}
	}
}
