// Package journal keeps an audit trail of server lifecycle changes and
// operator commands in SQLite or PostgreSQL. Chat lines and identities are
// never written.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	writeTimeout = 5 * time.Second
)

// ErrUnsupportedDriver is returned by Open for drivers other than sqlite and postgres
var ErrUnsupportedDriver = errors.New("unsupported journal driver")

// Entry is one journal row
type Entry struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal appends entries tagged with the id of the current process run
type Journal struct {
	db     *sql.DB
	driver string
	runID  string
}

// Open connects to the journal database and creates the schema if needed
func Open(driver, dsn string) (*Journal, error) {
	switch driver {
	case DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create journal directory: %w", err)
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if driver == DriverSQLite {
		// Single writer
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to run %q: %w", pragma, err)
			}
		}
	}

	j := &Journal{
		db:     db,
		driver: driver,
		runID:  uuid.NewString(),
	}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if j.driver == DriverPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}

	schema := `
	CREATE TABLE IF NOT EXISTS journal (
		id ` + idColumn + `,
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		detail TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`
	if _, err := j.db.Exec(schema); err != nil {
		return err
	}
	_, err := j.db.Exec(`CREATE INDEX IF NOT EXISTS idx_journal_created_at ON journal(created_at)`)
	return err
}

// rebind rewrites ? placeholders into the driver's syntax
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RunID identifies this process run in every entry it writes
func (j *Journal) RunID() string {
	return j.runID
}

// Record appends an entry. It satisfies chat.Journal.
func (j *Journal) Record(kind, detail string) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := j.db.ExecContext(ctx,
		rebind(j.driver, `INSERT INTO journal (run_id, kind, detail, created_at) VALUES (?, ?, ?, ?)`),
		j.runID, kind, detail, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record %s entry: %w", kind, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		rebind(j.driver, `SELECT id, run_id, kind, detail, created_at FROM journal ORDER BY id DESC LIMIT ?`),
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.RunID, &e.Kind, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}
