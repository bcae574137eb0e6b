package db

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Conn is the subset of database/sql shared by *sql.DB, *sql.Conn and *sql.Tx,
// so a Store can run on a pool, a pinned connection or inside a transaction.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Conn = (*sql.DB)(nil)
	_ Conn = (*sql.Conn)(nil)
	_ Conn = (*sql.Tx)(nil)
)

// Config describes how to reach the database.
type Config struct {
	Driver   string
	Host     string
	Database string
	Username string
	Password string
	Charset  string
	// URL is a full connection string for pgsql; host, port and credentials are ignored when set.
	URL            string
	Port           int
	MaxConns       int
	ConnectRetries int
	// Debug includes the driver error in ConnectionError messages.
	Debug bool
}

// ConnectionError reports a failure to open or reach the database.
type ConnectionError struct {
	Err   error
	Debug bool
}

func (e *ConnectionError) Error() string {
	if e.Debug && e.Err != nil {
		return "Database connection failed: " + e.Err.Error()
	}
	return "Database connection failed"
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Open connects to the configured database and verifies it with a ping, retrying
// up to cfg.ConnectRetries times with exponential backoff.
func Open(ctx context.Context, cfg Config) (*sql.DB, Dialect, error) {
	dialect, err := ParseDialect(cfg.Driver)
	if err != nil {
		return nil, "", err
	}

	db, err := open(dialect, cfg)
	if err != nil {
		return nil, "", &ConnectionError{Err: err, Debug: cfg.Debug}
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	retry := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(cfg.ConnectRetries, 0))), ctx)

	if err := backoff.Retry(func() error { return db.PingContext(ctx) }, retry); err != nil {
		db.Close()
		return nil, "", &ConnectionError{Err: err, Debug: cfg.Debug}
	}

	return db, dialect, nil
}

func open(dialect Dialect, cfg Config) (*sql.DB, error) {
	switch dialect {
	case Postgres:
		poolConfig, err := pgxpool.ParseConfig(PostgresDSN(cfg))
		if err != nil {
			return nil, err
		}
		if cfg.MaxConns > 0 {
			poolConfig.MaxConns = int32(cfg.MaxConns)
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			return nil, err
		}
		return stdlib.OpenDBFromPool(pool), nil
	case MySQL:
		return sql.Open("mysql", MySQLDSN(cfg))
	case SQLite:
		return sql.Open("sqlite", cfg.Database)
	default:
		return nil, &UnsupportedDriverError{Driver: string(dialect)}
	}
}

func hostPort(d Dialect, cfg Config) string {
	port := cfg.Port
	if port == 0 {
		port = d.DefaultPort()
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func username(d Dialect, cfg Config) string {
	if cfg.Username != "" {
		return cfg.Username
	}
	return d.DefaultUser()
}

// PostgresDSN returns cfg.URL when set, otherwise a postgres:// URL built from the parts.
func PostgresDSN(cfg Config) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(username(Postgres, cfg), cfg.Password),
		Host:   hostPort(Postgres, cfg),
		Path:   "/" + cfg.Database,
	}
	return u.String()
}

// MySQLDSN builds a go-sql-driver DSN with the configured charset.
func MySQLDSN(cfg Config) string {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = hostPort(MySQL, cfg)
	mc.User = username(MySQL, cfg)
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	if cfg.Charset != "" {
		mc.Params = map[string]string{"charset": cfg.Charset}
	}
	return mc.FormatDSN()
}
