package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when no row has the requested id.
var ErrNotFound = errors.New("record not found")

// QueryObserver is told the outcome of every Store operation.
type QueryObserver func(op string, elapsed time.Duration, err error)

// ListResult is a page of records plus the number of rows matching the filters.
type ListResult struct {
	Records []Record `json:"records"`
	Total   int64    `json:"total"`
}

// Store runs CRUD statements against arbitrary tables.
//
// Table, column and operator names are written into the SQL text as given; only
// values are bound. Enable strict identifiers to reject anything that is not a
// plain identifier or an allowed operator.
type Store struct {
	conn    Conn
	db      *sql.DB
	observe QueryObserver
	dialect Dialect
	timeout time.Duration
	strict  bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStrictIdentifiers validates table, column and operator names before use.
func WithStrictIdentifiers(strict bool) StoreOption {
	return func(s *Store) { s.strict = strict }
}

// WithQueryTimeout bounds every operation. Zero means no timeout.
func WithQueryTimeout(d time.Duration) StoreOption {
	return func(s *Store) { s.timeout = d }
}

// WithQueryObserver registers a callback, e.g. for metrics.
func WithQueryObserver(o QueryObserver) StoreOption {
	return func(s *Store) { s.observe = o }
}

// NewStore returns a Store over conn using dialect d.
func NewStore(conn Conn, d Dialect, opts ...StoreOption) *Store {
	s := &Store{conn: conn, dialect: d}
	if db, ok := conn.(*sql.DB); ok {
		s.db = db
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens the configured database and wraps it in a Store. Close releases it.
func Connect(ctx context.Context, cfg Config, opts ...StoreOption) (*Store, error) {
	db, dialect, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewStore(db, dialect, opts...), nil
}

// Dialect returns the store's SQL dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close closes the underlying *sql.DB, if the store owns one.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) begin(ctx context.Context, op string) (context.Context, func(*error)) {
	start := time.Now()
	cancel := context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	return ctx, func(errp *error) {
		cancel()
		if s.observe != nil {
			s.observe(op, time.Since(start), *errp)
		}
	}
}

// IsConnected runs a trivial query against the database with a trivial query. Any error means false.
func (s *Store) IsConnected(ctx context.Context) bool {
	var err error
	ctx, done := s.begin(ctx, "ping")
	defer done(&err)

	var one int
	err = s.conn.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	return err == nil
}

// List returns the records of table matching q and the total count ignoring paging.
func (s *Store) List(ctx context.Context, table string, q Query) (_ *ListResult, err error) {
	ctx, done := s.begin(ctx, "list")
	defer done(&err)

	if s.strict {
		if err := checkTable(table); err != nil {
			return nil, err
		}
		if err := checkQuery(q); err != nil {
			return nil, err
		}
	}

	var searchable []string
	if q.Search != "" {
		cols, err := columns(ctx, s.conn, s.dialect, table)
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			if c.Searchable() {
				searchable = append(searchable, c.Name)
			}
		}
	}

	selectSQL, countSQL, args := buildSelect(s.dialect, table, q, searchable)

	rows, err := s.conn.QueryContext(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	var total int64
	if err := s.conn.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}

	return &ListResult{Records: records, Total: total}, nil
}

// Get returns the row of table whose id equals id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, table, id string) (_ Record, err error) {
	ctx, done := s.begin(ctx, "get")
	defer done(&err)

	if s.strict {
		if err := checkTable(table); err != nil {
			return nil, err
		}
	}

	qb := newQueryBuilder(s.dialect)
	query := fmt.Sprintf("SELECT * FROM %s WHERE id = %s", table, qb.bind(id))

	rows, err := s.conn.QueryContext(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records[0], nil
}

// Create inserts data into table and returns the generated id. On Postgres the id is
// nil when the table has no "id" column.
func (s *Store) Create(ctx context.Context, table string, data Data) (_ any, err error) {
	ctx, done := s.begin(ctx, "create")
	defer done(&err)

	if err := s.checkData(table, data); err != nil {
		return nil, err
	}

	qb := newQueryBuilder(s.dialect)
	placeholders := make([]string, len(data))
	for i, f := range data {
		placeholders[i] = qb.bind(f.Value)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(data.Columns(), ", "),
		strings.Join(placeholders, ", "),
	)

	if s.dialect == Postgres {
		rows, err := s.conn.QueryContext(ctx, query+" RETURNING *", qb.args...)
		if err != nil {
			return nil, fmt.Errorf("failed to insert record: %w", err)
		}
		records, err := scanRecords(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to insert record: %w", err)
		}
		if len(records) == 0 {
			return nil, nil
		}
		return records[0]["id"], nil
	}

	res, err := s.conn.ExecContext(ctx, query, qb.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted id: %w", err)
	}
	return id, nil
}

// Update sets data on the row of table with the given id and returns the number of rows affected.
func (s *Store) Update(ctx context.Context, table, id string, data Data) (_ int64, err error) {
	ctx, done := s.begin(ctx, "update")
	defer done(&err)

	if err := s.checkData(table, data); err != nil {
		return 0, err
	}

	qb := newQueryBuilder(s.dialect)
	sets := make([]string, len(data))
	for i, f := range data {
		sets[i] = fmt.Sprintf("%s = %s", f.Column, qb.bind(f.Value))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = %s", table, strings.Join(sets, ", "), qb.bind(id))

	res, err := s.conn.ExecContext(ctx, query, qb.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update record: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes the row of table with the given id and returns the number of rows affected.
// A missing row is not an error.
func (s *Store) Delete(ctx context.Context, table, id string) (_ int64, err error) {
	ctx, done := s.begin(ctx, "delete")
	defer done(&err)

	if s.strict {
		if err := checkTable(table); err != nil {
			return 0, err
		}
	}

	qb := newQueryBuilder(s.dialect)
	query := fmt.Sprintf("DELETE FROM %s WHERE id = %s", table, qb.bind(id))

	res, err := s.conn.ExecContext(ctx, query, qb.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete record: %w", err)
	}
	return res.RowsAffected()
}

// Tables lists the tables of the current database or schema.
func (s *Store) Tables(ctx context.Context) (_ []string, err error) {
	ctx, done := s.begin(ctx, "tables")
	defer done(&err)
	return tables(ctx, s.conn, s.dialect)
}

// Columns describes the columns of table. An unknown table yields an empty slice.
func (s *Store) Columns(ctx context.Context, table string) (_ []Column, err error) {
	ctx, done := s.begin(ctx, "columns")
	defer done(&err)

	if s.strict {
		if err := checkTable(table); err != nil {
			return nil, err
		}
	}
	return columns(ctx, s.conn, s.dialect, table)
}

func (s *Store) checkData(table string, data Data) error {
	if len(data) == 0 {
		return ErrEmptyBody
	}
	if !s.strict {
		return nil
	}
	if err := checkTable(table); err != nil {
		return err
	}
	for _, f := range data {
		if err := checkColumn(f.Column); err != nil {
			return err
		}
	}
	return nil
}
