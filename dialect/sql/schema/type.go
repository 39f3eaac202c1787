package schema

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/syssam/storax/schema/field"
)

// A Type converts values between their application-level form and the
// SQL-level form stored in a column. The hierarchy is closed: Simple,
// Enum, Reference, and the Collection variants are the only members.
type Type interface {
	// HasColumn reports whether values of this type occupy a physical
	// column. Collections do not; they store their elements in a sidecar
	// table and leave only a presence marker on the owning row.
	HasColumn() bool

	// Encode converts an application-level value to the value bound as a
	// query parameter. Encode(nil) is nil; nullability is enforced by the
	// runtime against the column declaration, not here.
	Encode(v any) (any, error)

	// Decode converts a scanned database value back to its
	// application-level form.
	Decode(v any) (any, error)

	// Equal reports structural equality with another type.
	Equal(Type) bool

	// signature is a stable textual form used for table fingerprints.
	// Unexported to seal the hierarchy.
	signature() string
}

// Simple is the identity conversion for primitive values. Kinds whose
// application type is not database-native (regexp, url, uuid, bigint)
// travel as text; durations travel as int64 nanoseconds.
type Simple struct {
	Kind field.Type
}

// HasColumn implements Type.
func (Simple) HasColumn() bool { return true }

// Encode implements Type.
func (s Simple) Encode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return encodeKind(s.Kind, v)
}

// Decode implements Type.
func (s Simple) Decode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return decodeKind(s.Kind, v)
}

// Equal implements Type.
func (s Simple) Equal(o Type) bool {
	so, ok := o.(Simple)
	return ok && so.Kind == s.Kind
}

func (s Simple) signature() string { return s.Kind.String() }

// Enum maps an enumerant to its ordinal position within a fixed, ordered
// list of all enumerants. The ordinal is what reaches the database. Two
// Enum types are equal iff their value lists are equal.
type Enum struct {
	Values []string
}

// HasColumn implements Type.
func (Enum) HasColumn() bool { return true }

// Encode implements Type.
func (e Enum) Encode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("schema: enum value must be a string, got %T", v)
	}
	i := slices.Index(e.Values, s)
	if i < 0 {
		return nil, fmt.Errorf("schema: %q is not a value of enum %v", s, e.Values)
	}
	return int64(i), nil
}

// Decode implements Type.
func (e Enum) Decode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	i, err := toInt64(v)
	if err != nil {
		return nil, fmt.Errorf("schema: enum ordinal: %w", err)
	}
	if i < 0 || i >= int64(len(e.Values)) {
		return nil, fmt.Errorf("schema: enum ordinal %d out of range [0, %d)", i, len(e.Values))
	}
	return e.Values[i], nil
}

// Equal implements Type.
func (e Enum) Equal(o Type) bool {
	eo, ok := o.(Enum)
	return ok && slices.Equal(e.Values, eo.Values)
}

func (e Enum) signature() string {
	return "enum(" + strings.Join(e.Values, "|") + ")"
}

// Reference points at a row of another table and is stored as that row's
// generated id. Saving an unsaved referenced record, and loading the row
// behind an id, is the persistence runtime's job; at the type level a
// reference passes records and ids through unchanged (consulting the
// referenced table's Marshal/Unmarshal hooks when one is set).
type Reference struct {
	Table *Table
}

// HasColumn implements Type.
func (Reference) HasColumn() bool { return true }

// Encode implements Type.
func (r Reference) Encode(v any) (any, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case *Record:
		return v, nil
	case int64:
		return v, nil
	default:
		if r.Table.Marshal == nil {
			return nil, fmt.Errorf("schema: cannot encode %T as a reference to %q", v, r.Table.Name)
		}
		return r.Table.Marshal(v)
	}
}

// Decode implements Type.
func (r Reference) Decode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if rec, ok := v.(*Record); ok && r.Table.Unmarshal != nil {
		return r.Table.Unmarshal(rec)
	}
	return v, nil
}

// Equal implements Type.
func (r Reference) Equal(o Type) bool {
	ro, ok := o.(Reference)
	return ok && r.Table.Equal(ro.Table)
}

func (r Reference) signature() string { return "ref(" + r.Table.Name + ")" }

// A Pair is one element of a decomposed collection: the sequence index,
// set key, or map key, together with the element value.
type Pair struct {
	Key   any
	Value any
}

// Collection is the shared capability of sequence, set, and mapping types.
// Collection values never occupy a column; they decompose into rows of a
// sidecar table derived by StorageTable, keyed by an owner reference.
type Collection interface {
	Type

	// CollectionName is the logical name the sidecar table name derives
	// from: "<owner table>_<collection name>".
	CollectionName() string

	// Key and Value return the element key/value types.
	Key() Type
	Value() Type

	// KeyNullable and ValueNullable report whether the sidecar key and
	// value columns accept NULL.
	KeyNullable() bool
	ValueNullable() bool

	// StorageTable derives the sidecar table schema for the given owning
	// table. The derivation is deterministic: equal inputs yield
	// structurally equal tables.
	StorageTable(owner *Table) *Table

	// Pairs decomposes an application-level collection value into its
	// key/value pairs.
	Pairs(v any) ([]Pair, error)

	// Collect rebuilds an application-level collection value from pairs.
	Collect(pairs []Pair) (any, error)
}

// SliceOf declares an ordered sequence type. The sidecar key is the
// element's position, a non-nullable integer. Application values are
// []any.
func SliceOf(name string, elem Type, nullable bool) Collection {
	return sliceType{name: name, elem: elem, nullable: nullable}
}

// SetOf declares an unordered collection type. The sidecar key is a
// synthetic non-nullable integer, unique within one set instance only;
// insertion order is not preserved. Application values are []any.
func SetOf(name string, elem Type, nullable bool) Collection {
	return setType{name: name, elem: elem, nullable: nullable}
}

// MapOf declares a key/value mapping type with per-declaration key and
// value nullability. Application values are map[any]any.
func MapOf(name string, key, value Type, keyNullable, valueNullable bool) Collection {
	return mapType{name: name, key: key, value: value, keyNullable: keyNullable, valueNullable: valueNullable}
}

// collectionColumn panics: collections have no column encoding. Reaching
// it means a caller broke the HasColumn contract.
func collectionColumn(name string) any {
	panic(fmt.Sprintf("schema: collection %q has no column encoding", name))
}

func storageTable(c Collection, owner *Table) *Table {
	return &Table{
		Name: owner.Name + "_" + c.CollectionName(),
		Columns: []*Column{
			{Name: "owner", Type: Reference{Table: owner}, sidecarOwner: true},
			{Name: "key", Type: c.Key(), Nullable: c.KeyNullable()},
			{Name: "value", Type: c.Value(), Nullable: c.ValueNullable()},
		},
	}
}

type sliceType struct {
	name     string
	elem     Type
	nullable bool
}

func (sliceType) HasColumn() bool { return false }
func (t sliceType) Encode(any) (any, error) { collectionColumn(t.name); return nil, nil }
func (t sliceType) Decode(any) (any, error) { collectionColumn(t.name); return nil, nil }
func (t sliceType) CollectionName() string { return t.name }
func (t sliceType) Key() Type { return Simple{Kind: field.TypeInt} }
func (t sliceType) Value() Type { return t.elem }
func (sliceType) KeyNullable() bool { return false }
func (t sliceType) ValueNullable() bool { return t.nullable }
func (t sliceType) StorageTable(o *Table) *Table { return storageTable(t, o) }

func (t sliceType) Pairs(v any) ([]Pair, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("schema: collection %q expects []any, got %T", t.name, v)
	}
	pairs := make([]Pair, len(s))
	for i, e := range s {
		pairs[i] = Pair{Key: int64(i), Value: e}
	}
	return pairs, nil
}

func (t sliceType) Collect(pairs []Pair) (any, error) {
	sortPairsByIntKey(pairs)
	s := make([]any, 0, len(pairs))
	for _, p := range pairs {
		s = append(s, p.Value)
	}
	return s, nil
}

func (t sliceType) Equal(o Type) bool {
	to, ok := o.(sliceType)
	return ok && to.name == t.name && to.nullable == t.nullable && t.elem.Equal(to.elem)
}

func (t sliceType) signature() string {
	return fmt.Sprintf("slice(%s,%s,%t)", t.name, t.elem.signature(), t.nullable)
}

type setType struct {
	name     string
	elem     Type
	nullable bool
}

func (setType) HasColumn() bool { return false }
func (t setType) Encode(any) (any, error) { collectionColumn(t.name); return nil, nil }
func (t setType) Decode(any) (any, error) { collectionColumn(t.name); return nil, nil }
func (t setType) CollectionName() string { return t.name }
func (t setType) Key() Type { return Simple{Kind: field.TypeInt} }
func (t setType) Value() Type { return t.elem }
func (setType) KeyNullable() bool { return false }
func (t setType) ValueNullable() bool { return t.nullable }
func (t setType) StorageTable(o *Table) *Table { return storageTable(t, o) }

func (t setType) Pairs(v any) ([]Pair, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("schema: collection %q expects []any, got %T", t.name, v)
	}
	pairs := make([]Pair, len(s))
	for i, e := range s {
		pairs[i] = Pair{Key: int64(i), Value: e}
	}
	return pairs, nil
}

func (t setType) Collect(pairs []Pair) (any, error) {
	s := make([]any, 0, len(pairs))
	for _, p := range pairs {
		s = append(s, p.Value)
	}
	return s, nil
}

func (t setType) Equal(o Type) bool {
	to, ok := o.(setType)
	return ok && to.name == t.name && to.nullable == t.nullable && t.elem.Equal(to.elem)
}

func (t setType) signature() string {
	return fmt.Sprintf("set(%s,%s,%t)", t.name, t.elem.signature(), t.nullable)
}

type mapType struct {
	name          string
	key, value    Type
	keyNullable   bool
	valueNullable bool
}

func (mapType) HasColumn() bool { return false }
func (t mapType) Encode(any) (any, error) { collectionColumn(t.name); return nil, nil }
func (t mapType) Decode(any) (any, error) { collectionColumn(t.name); return nil, nil }
func (t mapType) CollectionName() string { return t.name }
func (t mapType) Key() Type { return t.key }
func (t mapType) Value() Type { return t.value }
func (t mapType) KeyNullable() bool { return t.keyNullable }
func (t mapType) ValueNullable() bool { return t.valueNullable }
func (t mapType) StorageTable(o *Table) *Table { return storageTable(t, o) }

func (t mapType) Pairs(v any) ([]Pair, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[any]any)
	if !ok {
		return nil, fmt.Errorf("schema: collection %q expects map[any]any, got %T", t.name, v)
	}
	pairs := make([]Pair, 0, len(m))
	for k, e := range m {
		pairs = append(pairs, Pair{Key: k, Value: e})
	}
	return pairs, nil
}

func (t mapType) Collect(pairs []Pair) (any, error) {
	m := make(map[any]any, len(pairs))
	for _, p := range pairs {
		m[p.Key] = p.Value
	}
	return m, nil
}

func (t mapType) Equal(o Type) bool {
	to, ok := o.(mapType)
	return ok && to.name == t.name && t.key.Equal(to.key) && t.value.Equal(to.value) &&
		to.keyNullable == t.keyNullable && to.valueNullable == t.valueNullable
}

func (t mapType) signature() string {
	return fmt.Sprintf("map(%s,%s,%s,%t,%t)", t.name, t.key.signature(), t.value.signature(), t.keyNullable, t.valueNullable)
}

func sortPairsByIntKey(pairs []Pair) {
	sort.SliceStable(pairs, func(i, j int) bool {
		a, _ := toInt64(pairs[i].Key)
		b, _ := toInt64(pairs[j].Key)
		return a < b
	})
}
