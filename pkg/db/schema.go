package db

import (
	"context"
	"fmt"
	"strings"
)

// Column describes one table column as reported by the database catalog.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Key      string `json:"key,omitempty"`
}

// Searchable reports whether the column holds character data.
func (c Column) Searchable() bool {
	t := strings.ToLower(c.Type)
	return strings.Contains(t, "varchar") || strings.Contains(t, "text") || strings.Contains(t, "char")
}

const pgColumnsSQL = `SELECT c.column_name, c.data_type, c.is_nullable = 'YES',
  CASE WHEN EXISTS (
    SELECT 1 FROM information_schema.table_constraints tc
    JOIN information_schema.key_column_usage kcu
      ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
    WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = c.table_schema
      AND tc.table_name = c.table_name AND kcu.column_name = c.column_name
  ) THEN 'PRI' ELSE '' END
FROM information_schema.columns c
WHERE c.table_schema = current_schema() AND c.table_name = $1
ORDER BY c.ordinal_position`

const pgTablesSQL = `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`

const sqliteTablesSQL = `SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`

// columns reads the column list of table. An unknown table yields no columns.
func columns(ctx context.Context, conn Conn, d Dialect, table string) ([]Column, error) {
	switch d {
	case Postgres:
		return pgColumns(ctx, conn, table)
	case MySQL:
		return catalogColumns(ctx, conn, "SHOW COLUMNS FROM "+table, func(r Record) Column {
			return Column{
				Name:     asString(r["Field"]),
				Type:     asString(r["Type"]),
				Nullable: strings.EqualFold(asString(r["Null"]), "YES"),
				Key:      asString(r["Key"]),
			}
		})
	case SQLite:
		return catalogColumns(ctx, conn, "PRAGMA table_info("+table+")", func(r Record) Column {
			c := Column{
				Name:     asString(r["name"]),
				Type:     asString(r["type"]),
				Nullable: asString(r["notnull"]) == "0",
			}
			if asString(r["pk"]) != "0" {
				c.Key = "PRI"
			}
			return c
		})
	default:
		return nil, &UnsupportedDriverError{Driver: string(d)}
	}
}

func pgColumns(ctx context.Context, conn Conn, table string) ([]Column, error) {
	rows, err := conn.QueryContext(ctx, pgColumnsSQL, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	cols := []Column{}
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.Name, &c.Type, &c.Nullable, &c.Key); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func catalogColumns(ctx context.Context, conn Conn, query string, convert func(Record) Column) ([]Column, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	cols := make([]Column, 0, len(records))
	for _, r := range records {
		cols = append(cols, convert(r))
	}
	return cols, nil
}

// tables lists the base tables visible to the connection.
func tables(ctx context.Context, conn Conn, d Dialect) ([]string, error) {
	var query string
	switch d {
	case Postgres:
		query = pgTablesSQL
	case MySQL:
		query = "SHOW TABLES"
	case SQLite:
		query = sqliteTablesSQL
	default:
		return nil, &UnsupportedDriverError{Driver: string(d)}
	}

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
