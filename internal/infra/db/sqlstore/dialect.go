package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour the repositories emit. Queries are
// written with '?' placeholders and rebound per dialect.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

func (d Dialect) rebind(q string) string {
	if d != Postgres || !strings.Contains(q, "?") {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// insertIgnore turns "INSERT INTO ..." into the dialect's insert-if-absent.
func (d Dialect) insertIgnore(q string) string {
	switch d {
	case MySQL:
		return strings.Replace(q, "INSERT INTO", "INSERT IGNORE INTO", 1)
	case Postgres:
		return q + " ON CONFLICT DO NOTHING"
	default:
		return strings.Replace(q, "INSERT INTO", "INSERT OR IGNORE INTO", 1)
	}
}

// forUpdate is the row-lock suffix; SQLite serializes writers on its own.
func (d Dialect) forUpdate() string {
	if d == SQLite {
		return ""
	}
	return " FOR UPDATE"
}
