// Package field defines the primitive value kinds the storax type model
// can place directly in a table column.
//
// A kind describes the application-level Go type of a column value and
// implies its wire encoding:
//
//	field.TypeInt      int64
//	field.TypeBool     bool
//	field.TypeFloat    float64
//	field.TypeString   string
//	field.TypeTime     time.Time
//	field.TypeDuration time.Duration (stored as int64 nanoseconds)
//	field.TypeBigInt   *big.Int      (stored as text)
//	field.TypeRegexp   *regexp.Regexp (stored as its textual form)
//	field.TypeURL      *url.URL      (stored as its string form)
//	field.TypeUUID     uuid.UUID     (stored as text)
//	field.TypeBytes    []byte
package field

// A Type represents a primitive column value kind.
type Type uint8

// List of value kinds.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt
	TypeBigInt
	TypeFloat
	TypeString
	TypeTime
	TypeDuration
	TypeRegexp
	TypeURL
	TypeUUID
	TypeBytes
	endTypes
)

var typeNames = [...]string{
	TypeInvalid:  "invalid",
	TypeBool:     "bool",
	TypeInt:      "int",
	TypeBigInt:   "bigint",
	TypeFloat:    "float",
	TypeString:   "string",
	TypeTime:     "time",
	TypeDuration: "duration",
	TypeRegexp:   "regexp",
	TypeURL:      "url",
	TypeUUID:     "uuid",
	TypeBytes:    "bytes",
}

// String returns the name of the type.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return typeNames[TypeInvalid]
}

// Valid reports if the given type is a valid value kind.
func (t Type) Valid() bool {
	return t > TypeInvalid && t < endTypes
}

// Numeric reports if the given type is a numeric kind.
func (t Type) Numeric() bool {
	switch t {
	case TypeInt, TypeBigInt, TypeFloat, TypeDuration:
		return true
	}
	return false
}

// Textual reports if the kind travels over the wire as text even though
// its application-level value is not a string.
func (t Type) Textual() bool {
	switch t {
	case TypeBigInt, TypeRegexp, TypeURL, TypeUUID:
		return true
	}
	return false
}
