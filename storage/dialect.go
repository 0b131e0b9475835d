package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// dialect captures the SQL differences between Postgres and SQLite.
type dialect struct {
	driver   string
	postgres bool
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return dialect{driver: driver, postgres: true}, nil
	case "sqlite":
		return dialect{driver: driver}, nil
	}
	return dialect{}, fmt.Errorf("unsupported driver %q", driver)
}

func (d dialect) jsonType() string {
	if d.postgres {
		return "JSONB"
	}
	return "TEXT"
}

// placeholder returns the n-th (1-based) bind parameter.
func (d dialect) placeholder(n int) string {
	if d.postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// rows renders count parenthesized groups of width placeholders.
func (d dialect) rows(count, width int) string {
	var sb strings.Builder
	n := 1
	for r := 0; r < count; r++ {
		if r > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for c := 0; c < width; c++ {
			if c > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(d.placeholder(n))
			n++
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// list renders count comma separated placeholders starting at start.
func (d dialect) list(start, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.placeholder(start + i)
	}
	return strings.Join(parts, ", ")
}

func (d dialect) quote(name string) string {
	return pq.QuoteIdentifier(name)
}
