package db

import (
	"fmt"
	"strings"
)

// Dialect selects placeholder syntax and the catalog queries for a database engine.
type Dialect string

const (
	Postgres Dialect = "pgsql"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// UnsupportedDriverError is returned for a driver name that maps to no Dialect.
type UnsupportedDriverError struct {
	Driver string
}

func (e *UnsupportedDriverError) Error() string {
	return fmt.Sprintf("Unsupported database driver: %s", e.Driver)
}

// ParseDialect maps a configured driver name to a Dialect. "postgres" and
// "postgresql" are accepted as aliases of "pgsql", "sqlite3" of "sqlite".
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "pgsql", "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", &UnsupportedDriverError{Driver: driver}
	}
}

// DefaultPort returns the engine's standard TCP port, or 0 for file databases.
func (d Dialect) DefaultPort() int {
	switch d {
	case Postgres:
		return 5432
	case MySQL:
		return 3306
	default:
		return 0
	}
}

// DefaultUser returns the conventional superuser name for the engine.
func (d Dialect) DefaultUser() string {
	switch d {
	case Postgres:
		return "postgres"
	case MySQL:
		return "root"
	default:
		return ""
	}
}

// queryBuilder accumulates bound arguments and hands out dialect-specific placeholders.
type queryBuilder struct {
	dialect   Dialect
	args      []any
	nextIndex int
}

func newQueryBuilder(d Dialect) *queryBuilder {
	return &queryBuilder{dialect: d, nextIndex: 1}
}

// bind records value and returns the placeholder that refers to it.
func (qb *queryBuilder) bind(value any) string {
	qb.args = append(qb.args, value)
	return qb.placeholder()
}

func (qb *queryBuilder) placeholder() string {
	if qb.dialect != Postgres {
		qb.nextIndex++
		return "?"
	}
	placeholder := fmt.Sprintf("$%d", qb.nextIndex)
	qb.nextIndex++
	return placeholder
}
