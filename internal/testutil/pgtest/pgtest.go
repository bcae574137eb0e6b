package pgtest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
)

// ParseConfig returns the TEST_DATABASE connection config with notice logging,
// skipping the test when TEST_DATABASE is unset.
func ParseConfig(t testing.TB) *pgx.ConnConfig {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE")
	if connString == "" {
		t.Skip("TEST_DATABASE not set")
	}

	config, err := pgx.ParseConfig(connString)
	require.NoError(t, err)

	config.OnNotice = func(_ *pgconn.PgConn, n *pgconn.Notice) {
		t.Logf("PostgreSQL %s: %s", n.Severity, n.Message)
	}
	return config
}

// Open returns a database/sql handle to TEST_DATABASE that is closed when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	db := stdlib.OpenDB(*ParseConfig(t))
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(ctx))

	t.Cleanup(func() { db.Close() })
	return db
}

// Exec runs statements against db, failing the test on the first error.
func Exec(t testing.TB, db *sql.DB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
}
