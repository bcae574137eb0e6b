package testutil

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// UsersSchema creates the users table the fixtures in testdata/users.json fit.
const UsersSchema = `CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name VARCHAR(100) NOT NULL,
	email TEXT,
	age INTEGER,
	score REAL
)`

// User is one row of testdata/users.json.
type User struct {
	Name  string  `json:"name"`
	Email string  `json:"email"`
	Age   int     `json:"age"`
	Score float64 `json:"score"`
}

// LoadJSON reads and unmarshals a JSON file relative to this package into target.
func LoadJSON(filename string, target any) error {
	_, currentFile, _, _ := runtime.Caller(0)
	dir := filepath.Dir(currentFile)

	data, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// SQLite opens a private in-memory database, runs the given statements and closes
// it when the test ends. The pool is pinned to one connection so every query sees
// the same in-memory database.
func SQLite(t testing.TB, statements ...string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return db
}

// SeededSQLite returns an in-memory database with the users table filled from testdata/users.json.
func SeededSQLite(t testing.TB) (*sql.DB, []User) {
	t.Helper()

	var users []User
	require.NoError(t, LoadJSON("testdata/users.json", &users))

	db := SQLite(t, UsersSchema)
	for _, u := range users {
		_, err := db.Exec(`INSERT INTO users (name, email, age, score) VALUES (?, ?, ?, ?)`, u.Name, u.Email, u.Age, u.Score)
		require.NoError(t, err)
	}
	return db, users
}
