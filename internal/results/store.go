package results

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3" // cgo driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go driver, registered as "sqlite"
)

// Store persists results in a SQL database.
type Store struct {
	db     *sql.DB
	driver string
	seq    atomic.Int64
}

// Open connects to the results database and creates the table if needed.
func Open(ctx context.Context, dbType, dsn string) (*Store, error) {
	// Map to proper driver name
	var driverName string
	switch dbType {
	case "", "sqlite":
		driverName = "sqlite"
	case "sqlite3":
		driverName = "sqlite3"
	case "postgres", "postgresql":
		driverName = "postgres"
	case "mysql":
		driverName = "mysql"
	case "sqlserver", "mssql":
		driverName = "sqlserver"
	default:
		return nil, errors.Errorf("unsupported results database type: %s", dbType)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open results database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping results database")
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if driverName == "sqlite" || driverName == "sqlite3" {
		// one writer at a time
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: driverName}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	text, long := "VARCHAR(255)", "TEXT"
	if s.driver == "sqlserver" {
		text, long = "NVARCHAR(255)", "NVARCHAR(MAX)"
	}
	columns := fmt.Sprintf(`(
		run_id %[1]s NOT NULL,
		seq INTEGER NOT NULL,
		script %[2]s NOT NULL,
		line INTEGER NOT NULL,
		op %[1]s NOT NULL,
		device %[1]s NOT NULL,
		outcome %[1]s NOT NULL,
		detail %[2]s NOT NULL,
		recorded_at %[1]s NOT NULL
	)`, text, long)

	ddl := "CREATE TABLE IF NOT EXISTS results " + columns
	if s.driver == "sqlserver" {
		ddl = "IF OBJECT_ID(N'results', N'U') IS NULL CREATE TABLE results " + columns
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return errors.Wrap(err, "create results table")
	}
	return nil
}

// placeholders renders n bind parameters in the driver's dialect.
func (s *Store) placeholders(n int) string {
	ps := make([]string, n)
	for i := range ps {
		switch s.driver {
		case "postgres":
			ps[i] = fmt.Sprintf("$%d", i+1)
		case "sqlserver":
			ps[i] = fmt.Sprintf("@p%d", i+1)
		default:
			ps[i] = "?"
		}
	}
	return strings.Join(ps, ", ")
}

func (s *Store) Record(ctx context.Context, r Result) error {
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	query := "INSERT INTO results (run_id, seq, script, line, op, device, outcome, detail, recorded_at) VALUES (" +
		s.placeholders(9) + ")"
	_, err := s.db.ExecContext(ctx, query,
		r.RunID, s.seq.Add(1), r.Script, r.Line, r.Op, r.Device, string(r.Outcome), r.Detail,
		r.Time.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrap(err, "record result")
	}
	return nil
}

// Results returns the results of one run in recording order.
func (s *Store) Results(ctx context.Context, runID string) ([]Result, error) {
	query := "SELECT run_id, script, line, op, device, outcome, detail, recorded_at FROM results WHERE run_id = " +
		s.placeholders(1) + " ORDER BY seq"
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, errors.Wrap(err, "query results")
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		var outcome, at string
		if err := rows.Scan(&r.RunID, &r.Script, &r.Line, &r.Op, &r.Device, &outcome, &r.Detail, &at); err != nil {
			return nil, errors.Wrap(err, "scan result")
		}
		r.Outcome = Outcome(outcome)
		r.Time, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, errors.Wrap(rows.Err(), "iterate results")
}

func (s *Store) Close() error {
	return s.db.Close()
}
