package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

// Store wraps the SQLite database holding the patient record tree.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite database and bootstraps the schema.
func Open(path string) (*Store, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PatientExists checks whether a patient exists by id.
func (s *Store) PatientExists(id string) (bool, error) {
	return s.rowExists("SELECT 1 FROM patients WHERE id = ? LIMIT 1", id)
}

// EpisodeExists checks whether an episode exists by id.
func (s *Store) EpisodeExists(id string) (bool, error) {
	return s.rowExists("SELECT 1 FROM episodes WHERE id = ? LIMIT 1", id)
}

// StageIDExists checks whether a stage exists by id.
func (s *Store) StageIDExists(id string) (bool, error) {
	return s.rowExists("SELECT 1 FROM stages WHERE id = ? LIMIT 1", id)
}

// FileIDExists checks whether any attached file uses the given file id.
func (s *Store) FileIDExists(id string) (bool, error) {
	return s.rowExists("SELECT 1 FROM stage_files WHERE file_id = ? LIMIT 1", id)
}

// Info summarizes the store for the info endpoint.
type Info struct {
	SchemaVersion int
	Patients      int
	Episodes      int
	Stages        int
	Files         int
}

// StoreInfo reports the schema version and record counts.
func (s *Store) StoreInfo(ctx context.Context) (*Info, error) {
	info := &Info{}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&info.SchemaVersion); err != nil {
		return nil, err
	}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM patients", &info.Patients},
		{"SELECT COUNT(*) FROM episodes", &info.Episodes},
		{"SELECT COUNT(*) FROM stages", &info.Stages},
		{"SELECT COUNT(*) FROM stage_files", &info.Files},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return info, nil
}

func (s *Store) rowExists(query string, args ...any) (bool, error) {
	var exists int
	err := s.db.QueryRow(query, args...).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// Tune connection pool for local usage.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}
