// Package statedb persists small amounts of coordinator state — the
// generated machine configs, the allowed-prebuild set, and the deps
// cache directory — across invocations of the configure step.
//
// Grounded on bitswalk/ldf's ldfd/db/database.go: that package wraps an
// in-memory SQLite database with VACUUM-INTO persistence to a single
// file on shutdown. This package drops the in-memory/persist-on-exit
// split (there is no long-running server here, just a CLI invocation
// per call) and opens the on-disk file directly, keeping the same
// driver (github.com/mattn/go-sqlite3). Writes go straight to that file;
// there is no separate write-back or rename step.
package statedb

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/bitswalk/releng/internal/errs"
	_ "github.com/mattn/go-sqlite3"
)

// Store is a single-file SQLite-backed key/value store for the
// configurator's persisted state.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the state database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errs.ErrChildProcessFailed.WithCause(err).WithMessagef("creating directory for %s", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errs.ErrChildProcessFailed.WithCause(err).WithMessagef("opening state database %s", path)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS state (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, errs.ErrChildProcessFailed.WithCause(err).WithMessage("creating state table")
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutBytes stores the raw bytes under key, overwriting any existing value.
func (s *Store) PutBytes(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return errs.ErrChildProcessFailed.WithCause(err).WithMessagef("writing state key %q", key)
	}
	return nil
}

// GetBytes retrieves the raw bytes stored under key. ok is false if the
// key is absent.
func (s *Store) GetBytes(key string) (value []byte, ok bool, err error) {
	row := s.db.QueryRow(`SELECT value FROM state WHERE key = ?`, key)
	var v []byte
	if scanErr := row.Scan(&v); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, errs.ErrChildProcessFailed.WithCause(scanErr).WithMessagef("reading state key %q", key)
	}
	return v, true, nil
}

// Delete removes key, if present.
func (s *Store) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM state WHERE key = ?`, key)
	if err != nil {
		return errs.ErrChildProcessFailed.WithCause(err).WithMessagef("deleting state key %q", key)
	}
	return nil
}

// PutGob gob-encodes v and stores it under key, preserving the on-disk
// "versioned binary blob" contract while SQLite supplies the file framing.
func (s *Store) PutGob(key string, v interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return errs.ErrChildProcessFailed.WithCause(err).WithMessagef("encoding state key %q", key)
	}
	return s.PutBytes(key, buf.Bytes())
}

// GetGob decodes the value stored under key into v. ok is false if the
// key is absent.
func (s *Store) GetGob(key string, v interface{}) (ok bool, err error) {
	raw, found, err := s.GetBytes(key)
	if err != nil || !found {
		return found, err
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(v); err != nil {
		return true, errs.ErrChildProcessFailed.WithCause(err).WithMessagef("decoding state key %q", key)
	}
	return true, nil
}
