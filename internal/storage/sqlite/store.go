// Package sqlite implements the primary Engram store on SQLite: the
// append-only message log, the derived knowledge graph, FTS5 lexical
// search, and retention deletes.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/engramdev/engram/internal/storage"
)

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Compile-time check that Store satisfies the full storage contract.
var _ storage.Store = (*Store)(nil)

// Open opens (or creates) the SQLite database at dsn and applies the
// schema. If the initial open fails due to stale WAL files left behind
// by a crashed process, it removes them and retries once.
func Open(dsn string) (*Store, error) {
	store, err := open(dsn)
	if err == nil {
		return store, nil
	}

	dbPath := pathFromDSN(dsn)
	if dbPath == "" || !isWALError(err) || !hasWALFiles(dbPath) {
		return nil, err
	}

	removeWALFiles(dbPath)

	store, retryErr := open(dsn)
	if retryErr != nil {
		return nil, fmt.Errorf("sqlite: open after WAL recovery: %w (original: %v)", retryErr, err)
	}

	log.Printf("sqlite: recovered from stale WAL files for %s", dbPath)
	return store, nil
}

func open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", dsn, err)
	}

	// SQLite supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY under concurrent load;
	// WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close checkpoints the WAL into the main database file and releases
// resources, so that a subsequent process can open the database without
// encountering stale WAL state.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		log.Printf("sqlite: WAL checkpoint on close failed (non-fatal): %v", err)
	}

	return s.db.Close()
}

// DB returns the underlying database handle for diagnostic tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// pathFromDSN extracts the filesystem path from a SQLite DSN. Handles
// bare paths and file: URIs; returns "" for in-memory databases.
func pathFromDSN(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		return ""
	}

	if strings.HasPrefix(dsn, "file:") {
		u, err := url.Parse(dsn)
		if err != nil {
			return ""
		}
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		if path == ":memory:" {
			return ""
		}
		return path
	}

	return dsn
}

// isWALError reports whether err matches the failure modes caused by
// stale WAL files after a crash.
func isWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

func hasWALFiles(dbPath string) bool {
	for _, suffix := range []string{"-shm", "-wal"} {
		if _, err := os.Stat(dbPath + suffix); err == nil {
			return true
		}
	}
	return false
}

func removeWALFiles(dbPath string) {
	for _, suffix := range []string{"-shm", "-wal"} {
		path := dbPath + suffix
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("sqlite: failed to remove stale %s: %v", path, err)
		}
	}
}
