package schema_test

import (
	"math/big"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/storax/dialect/sql/schema"
	"github.com/syssam/storax/schema/field"
)

func TestSimpleRoundTrip(t *testing.T) {
	for _, tt := range []struct {
		kind field.Type
		app  any
		wire any
	}{
		{field.TypeBool, true, true},
		{field.TypeInt, int64(42), int64(42)},
		{field.TypeBigInt, big.NewInt(1).Lsh(big.NewInt(1), 100), "1267650600228229401496703205376"},
		{field.TypeFloat, 3.25, 3.25},
		{field.TypeString, "hello", "hello"},
		{field.TypeTime, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)},
		{field.TypeDuration, 90 * time.Second, int64(90 * time.Second)},
		{field.TypeRegexp, regexp.MustCompile(`^a+b*$`), `^a+b*$`},
		{field.TypeURL, mustURL(t, "https://example.com/x?y=1"), "https://example.com/x?y=1"},
		{field.TypeUUID, uuid.MustParse("0f5e04f4-5b6b-4f29-8a5d-6e9a4b3f59d0"), "0f5e04f4-5b6b-4f29-8a5d-6e9a4b3f59d0"},
		{field.TypeBytes, []byte{0x1, 0x2}, []byte{0x1, 0x2}},
	} {
		t.Run(tt.kind.String(), func(t *testing.T) {
			typ := schema.Simple{Kind: tt.kind}
			wire, err := typ.Encode(tt.app)
			require.NoError(t, err)
			assert.Equal(t, tt.wire, wire)

			app, err := typ.Decode(wire)
			require.NoError(t, err)
			if tt.kind == field.TypeRegexp {
				// Recompiled regexps carry internal state; compare texts.
				assert.Equal(t, tt.app.(*regexp.Regexp).String(), app.(*regexp.Regexp).String())
			} else {
				assert.Equal(t, tt.app, app)
			}
		})
	}
}

func TestSimpleNil(t *testing.T) {
	typ := schema.Simple{Kind: field.TypeString}
	v, err := typ.Encode(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
	v, err = typ.Decode(nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSimpleMismatch(t *testing.T) {
	_, err := schema.Simple{Kind: field.TypeInt}.Encode("not an int")
	assert.Error(t, err)
	_, err = schema.Simple{Kind: field.TypeBool}.Decode("not a bool")
	assert.Error(t, err)
}

func TestSimpleDecodeDriverSpellings(t *testing.T) {
	// sqlite hands booleans back as int64 and text columns as []byte.
	v, err := schema.Simple{Kind: field.TypeBool}.Decode(int64(1))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = schema.Simple{Kind: field.TypeString}.Decode([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	when := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	v, err = schema.Simple{Kind: field.TypeTime}.Decode(when.Format(time.RFC3339Nano))
	require.NoError(t, err)
	assert.Equal(t, when, v)
}

func TestEnum(t *testing.T) {
	typ := schema.Enum{Values: []string{"pending", "active", "done"}}

	t.Run("Ordinal", func(t *testing.T) {
		for i, v := range typ.Values {
			ord, err := typ.Encode(v)
			require.NoError(t, err)
			assert.Equal(t, int64(i), ord)

			app, err := typ.Decode(int64(i))
			require.NoError(t, err)
			assert.Equal(t, v, app)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := typ.Encode("missing")
		assert.Error(t, err)
	})

	t.Run("OutOfRange", func(t *testing.T) {
		_, err := typ.Decode(int64(3))
		assert.Error(t, err)
		_, err = typ.Decode(int64(-1))
		assert.Error(t, err)
	})

	t.Run("Equal", func(t *testing.T) {
		assert.True(t, typ.Equal(schema.Enum{Values: []string{"pending", "active", "done"}}))
		assert.False(t, typ.Equal(schema.Enum{Values: []string{"active", "pending", "done"}}))
		assert.False(t, typ.Equal(schema.Simple{Kind: field.TypeString}))
	})
}

func TestReferenceEqual(t *testing.T) {
	users := &schema.Table{Name: "users", Columns: []*schema.Column{
		{Name: "name", Type: schema.Simple{Kind: field.TypeString}},
	}}
	same := &schema.Table{Name: "users", Columns: []*schema.Column{
		{Name: "name", Type: schema.Simple{Kind: field.TypeString}},
	}}
	other := &schema.Table{Name: "groups", Columns: []*schema.Column{
		{Name: "name", Type: schema.Simple{Kind: field.TypeString}},
	}}
	assert.True(t, schema.Reference{Table: users}.Equal(schema.Reference{Table: same}))
	assert.False(t, schema.Reference{Table: users}.Equal(schema.Reference{Table: other}))
}

func TestCollectionHasNoColumn(t *testing.T) {
	tags := schema.SliceOf("tags", schema.Simple{Kind: field.TypeString}, false)
	assert.False(t, tags.HasColumn())
	assert.Panics(t, func() { _, _ = tags.Encode([]any{"a"}) })
	assert.Panics(t, func() { _, _ = tags.Decode(int64(1)) })
}

func TestSlicePairs(t *testing.T) {
	tags := schema.SliceOf("tags", schema.Simple{Kind: field.TypeString}, false)
	pairs, err := tags.Pairs([]any{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	assert.Equal(t, schema.Pair{Key: int64(0), Value: "a"}, pairs[0])
	assert.Equal(t, schema.Pair{Key: int64(2), Value: "c"}, pairs[2])

	// Collect orders by key regardless of input order.
	v, err := tags.Collect([]schema.Pair{
		{Key: int64(2), Value: "c"},
		{Key: int64(0), Value: "a"},
		{Key: int64(1), Value: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, v)
}

func TestMapPairs(t *testing.T) {
	scores := schema.MapOf("scores", schema.Simple{Kind: field.TypeString}, schema.Simple{Kind: field.TypeInt}, false, false)
	pairs, err := scores.Pairs(map[any]any{"a": int64(1), "b": int64(2)})
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	v, err := scores.Collect(pairs)
	require.NoError(t, err)
	assert.Equal(t, map[any]any{"a": int64(1), "b": int64(2)}, v)
}

func TestStorageTable(t *testing.T) {
	people := &schema.Table{Name: "people", Columns: []*schema.Column{
		{Name: "name", Type: schema.Simple{Kind: field.TypeString}},
	}}
	tags := schema.SliceOf("tags", schema.Simple{Kind: field.TypeString}, false)

	st := tags.StorageTable(people)
	require.Equal(t, "people_tags", st.Name)
	require.Len(t, st.Columns, 3)
	assert.Equal(t, "owner", st.Columns[0].Name)
	assert.IsType(t, schema.Reference{}, st.Columns[0].Type)
	assert.Equal(t, "key", st.Columns[1].Name)
	assert.False(t, st.Columns[1].Nullable)
	assert.Equal(t, "value", st.Columns[2].Name)

	// Deterministic: deriving twice yields structurally equal tables.
	assert.True(t, st.Equal(tags.StorageTable(people)))
	assert.Equal(t, st.Fingerprint(), tags.StorageTable(people).Fingerprint())
}

func TestCollectionEqual(t *testing.T) {
	elem := schema.Simple{Kind: field.TypeString}
	assert.True(t, schema.SliceOf("tags", elem, false).Equal(schema.SliceOf("tags", elem, false)))
	assert.False(t, schema.SliceOf("tags", elem, false).Equal(schema.SliceOf("tags", elem, true)))
	assert.False(t, schema.SliceOf("tags", elem, false).Equal(schema.SetOf("tags", elem, false)))
	assert.False(t, schema.SliceOf("tags", elem, false).Equal(schema.SliceOf("labels", elem, false)))
}

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	require.NoError(t, err)
	return u
}
