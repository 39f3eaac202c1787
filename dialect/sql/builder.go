package sql

import (
	"strconv"
	"strings"

	"github.com/syssam/storax/dialect"
)

// Quote quotes an identifier for the given dialect: backquotes for mysql
// and sqlite, double quotes for postgres. The identifier itself is not
// escaped; callers own their table and column names.
func Quote(d, ident string) string {
	if d == dialect.Postgres {
		return `"` + ident + `"`
	}
	return "`" + ident + "`"
}

// Placeholder returns the i-th (1-based) parameter placeholder for the
// given dialect: $i for postgres, ? otherwise.
func Placeholder(d string, i int) string {
	if d == dialect.Postgres {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

// Placeholders returns n comma-joined placeholders whose numbering starts
// at the 1-based position start.
func Placeholders(d string, start, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = Placeholder(d, start+i)
	}
	return strings.Join(ph, ", ")
}
