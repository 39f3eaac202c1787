package schema

import (
	"fmt"
	"math/big"
	"net/url"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/storax/schema/field"
)

// encodeKind converts an application-level primitive to the value bound as
// a query parameter. Non-native kinds are flattened to text or int64.
func encodeKind(k field.Type, v any) (any, error) {
	switch k {
	case field.TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case field.TypeInt:
		if i, err := toInt64(v); err == nil {
			return i, nil
		}
	case field.TypeBigInt:
		if b, ok := v.(*big.Int); ok {
			return b.String(), nil
		}
	case field.TypeFloat:
		switch f := v.(type) {
		case float64:
			return f, nil
		case float32:
			return float64(f), nil
		}
	case field.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case field.TypeTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC(), nil
		}
	case field.TypeDuration:
		if d, ok := v.(time.Duration); ok {
			return int64(d), nil
		}
	case field.TypeRegexp:
		if re, ok := v.(*regexp.Regexp); ok {
			return re.String(), nil
		}
	case field.TypeURL:
		if u, ok := v.(*url.URL); ok {
			return u.String(), nil
		}
	case field.TypeUUID:
		if id, ok := v.(uuid.UUID); ok {
			return id.String(), nil
		}
	case field.TypeBytes:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("schema: cannot encode %T as %s", v, k)
}

// decodeKind converts a scanned database value back to its
// application-level form. Drivers disagree on concrete scan types
// (sqlite hands back int64/float64/string/[]byte, postgres may hand back
// time.Time or bool natively), so each kind accepts the spellings the
// supported drivers produce.
func decodeKind(k field.Type, v any) (any, error) {
	switch k {
	case field.TypeBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		}
	case field.TypeInt:
		if i, err := toInt64(v); err == nil {
			return i, nil
		}
	case field.TypeBigInt:
		if s, ok := toString(v); ok {
			b, ok := new(big.Int).SetString(s, 10)
			if !ok {
				return nil, fmt.Errorf("schema: %q is not a base-10 integer", s)
			}
			return b, nil
		}
		if i, err := toInt64(v); err == nil {
			return big.NewInt(i), nil
		}
	case field.TypeFloat:
		switch f := v.(type) {
		case float64:
			return f, nil
		case int64:
			return float64(f), nil
		}
	case field.TypeString:
		if s, ok := toString(v); ok {
			return s, nil
		}
	case field.TypeTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			return parseTime(t)
		case []byte:
			return parseTime(string(t))
		}
	case field.TypeDuration:
		if i, err := toInt64(v); err == nil {
			return time.Duration(i), nil
		}
	case field.TypeRegexp:
		if s, ok := toString(v); ok {
			return regexp.Compile(s)
		}
	case field.TypeURL:
		if s, ok := toString(v); ok {
			return url.Parse(s)
		}
	case field.TypeUUID:
		if s, ok := toString(v); ok {
			return uuid.Parse(s)
		}
	case field.TypeBytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
	}
	return nil, fmt.Errorf("schema: cannot decode %T as %s", v, k)
}

func toInt64(v any) (int64, error) {
	switch i := v.(type) {
	case int64:
		return i, nil
	case int:
		return int64(i), nil
	case int32:
		return int64(i), nil
	case uint64:
		return int64(i), nil
	case float64:
		return int64(i), nil
	default:
		return 0, fmt.Errorf("schema: %T is not an integer", v)
	}
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("schema: cannot parse %q as a timestamp", s)
}
