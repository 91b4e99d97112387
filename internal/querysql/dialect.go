package querysql

import (
	"fmt"
	"strconv"
)

// Dialect selects the SQL flavour a Compiler emits.
type Dialect string

const (
	// SQLite uses ? placeholders and BINARY collation.
	SQLite Dialect = "sqlite"

	// Postgres uses $n placeholders and the "C" collation.
	Postgres Dialect = "postgres"
)

// ParseDialect maps a database/sql driver name onto a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported driver %q: want sqlite3 or pgx", driver)
	}
}

// placeholder returns the parameter marker for the n-th (1-based) argument.
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// binaryCollation returns the collation clause for byte-wise text ordering.
func (d Dialect) binaryCollation() string {
	if d == Postgres {
		return `COLLATE "C"`
	}
	return "COLLATE BINARY"
}
