package field_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syssam/storax/schema/field"
)

func TestTypeString(t *testing.T) {
	assert.Equal(t, "int", field.TypeInt.String())
	assert.Equal(t, "bool", field.TypeBool.String())
	assert.Equal(t, "uuid", field.TypeUUID.String())
	assert.Equal(t, "invalid", field.TypeInvalid.String())
	assert.Equal(t, "invalid", field.Type(200).String())
}

func TestTypeValid(t *testing.T) {
	assert.False(t, field.TypeInvalid.Valid())
	assert.False(t, field.Type(100).Valid())
	for _, typ := range []field.Type{
		field.TypeBool, field.TypeInt, field.TypeBigInt, field.TypeFloat,
		field.TypeString, field.TypeTime, field.TypeDuration,
		field.TypeRegexp, field.TypeURL, field.TypeUUID, field.TypeBytes,
	} {
		assert.True(t, typ.Valid(), typ.String())
	}
}

func TestTypeNumeric(t *testing.T) {
	assert.True(t, field.TypeInt.Numeric())
	assert.True(t, field.TypeBigInt.Numeric())
	assert.True(t, field.TypeDuration.Numeric())
	assert.False(t, field.TypeString.Numeric())
	assert.False(t, field.TypeBool.Numeric())
}

func TestTypeTextual(t *testing.T) {
	assert.True(t, field.TypeRegexp.Textual())
	assert.True(t, field.TypeURL.Textual())
	assert.True(t, field.TypeUUID.Textual())
	assert.True(t, field.TypeBigInt.Textual())
	assert.False(t, field.TypeString.Textual())
	assert.False(t, field.TypeInt.Textual())
}
