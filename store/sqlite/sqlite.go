// Package sqlite implements store.Repository on an embedded SQLite database
// (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/concierge/store"
	_ "modernc.org/sqlite"
)

// Store is a SQLite backed repository.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS residents (
		resident_key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		phone TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1
	);
	CREATE TABLE IF NOT EXISTS vacancies (
		unit TEXT PRIMARY KEY
	);
	CREATE TABLE IF NOT EXISTS tickets (
		id TEXT PRIMARY KEY,
		unit TEXT,
		resident TEXT,
		description TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS visits (
		id TEXT PRIMARY KEY,
		resident_name TEXT NOT NULL,
		unit TEXT NOT NULL,
		visitor_name TEXT,
		reason TEXT,
		kind TEXT NOT NULL,
		at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_visits_at ON visits(at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) LookupResident(ctx context.Context, name, unit string) (*store.Resident, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, unit, phone, active FROM residents WHERE resident_key = ?`,
		store.ResidentKey(name, unit))

	var r store.Resident
	var active int
	err := row.Scan(&r.Name, &r.Unit, &r.Phone, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrResidentNotFound(name, unit)
	}
	if err != nil {
		return nil, fmt.Errorf("scan resident row: %w", err)
	}
	r.Active = active == 1
	if !r.Active {
		return nil, store.ErrResidentNotFound(name, unit)
	}
	return &r, nil
}

func (s *Store) ListVacancies(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT unit FROM vacancies ORDER BY unit`)
	if err != nil {
		return nil, fmt.Errorf("query vacancies: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var unit string
		if err := rows.Scan(&unit); err != nil {
			return nil, fmt.Errorf("scan vacancy row: %w", err)
		}
		out = append(out, unit)
	}
	return out, rows.Err()
}

func (s *Store) AppendTicket(ctx context.Context, t store.Ticket) (store.Ticket, error) {
	t = t.Prepare()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tickets (id, unit, resident, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Unit, t.Resident, t.Description, t.CreatedAt.UnixNano())
	if err != nil {
		return store.Ticket{}, fmt.Errorf("insert ticket: %w", err)
	}
	return t, nil
}

func (s *Store) ListTickets(ctx context.Context) ([]store.Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, unit, resident, description, created_at FROM tickets ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	var out []store.Ticket
	for rows.Next() {
		var t store.Ticket
		var unit, resident sql.NullString
		var created int64
		if err := rows.Scan(&t.ID, &unit, &resident, &t.Description, &created); err != nil {
			return nil, fmt.Errorf("scan ticket row: %w", err)
		}
		t.Unit, t.Resident = unit.String, resident.String
		t.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) RecordVisit(ctx context.Context, v store.Visit) (store.Visit, error) {
	v = v.Prepare()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO visits (id, resident_name, unit, visitor_name, reason, kind, at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.ResidentName, v.Unit, v.VisitorName, v.Reason, v.Kind, v.At.UnixNano())
	if err != nil {
		return store.Visit{}, fmt.Errorf("insert visit: %w", err)
	}
	return v, nil
}

func (s *Store) ListVisits(ctx context.Context) ([]store.Visit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, resident_name, unit, visitor_name, reason, kind, at FROM visits ORDER BY at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("query visits: %w", err)
	}
	defer rows.Close()

	var out []store.Visit
	for rows.Next() {
		var v store.Visit
		var visitor, reason sql.NullString
		var at int64
		if err := rows.Scan(&v.ID, &v.ResidentName, &v.Unit, &visitor, &reason, &v.Kind, &at); err != nil {
			return nil, fmt.Errorf("scan visit row: %w", err)
		}
		v.VisitorName, v.Reason = visitor.String, reason.String
		v.At = time.Unix(0, at).UTC()
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) Seed(ctx context.Context, residents []store.Resident, vacancies []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range residents {
		active := 0
		if r.Active {
			active = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO residents (resident_key, name, unit, phone, active) VALUES (?, ?, ?, ?, ?)`,
			store.ResidentKey(r.Name, r.Unit), r.Name, r.Unit, r.Phone, active); err != nil {
			return fmt.Errorf("seed resident %s: %w", r.Name, err)
		}
	}
	for _, u := range vacancies {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO vacancies (unit) VALUES (?)`, u); err != nil {
			return fmt.Errorf("seed vacancy %s: %w", u, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Close() error { return s.db.Close() }

var _ store.Repository = (*Store)(nil)
