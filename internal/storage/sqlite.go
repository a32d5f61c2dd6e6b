package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SqliteStore keeps the authoritative copy of every record in a single
// sqlite database file. Records are cached in memory; writes go to the
// database first and the cache is only updated once the row landed.
type SqliteStore[T ValidatingSpec] struct {
	db      *sql.DB
	table   string
	records map[string]T

	mu sync.RWMutex
}

func NewSqliteStore[T ValidatingSpec](path, table string) (*SqliteStore[T], error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if !identifierPattern.MatchString(table) || table == "" {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Single writer connection, same as a file-per-record store would
	// serialize through the filesystem.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SqliteStore[T]{
		db:      db,
		table:   table,
		records: map[string]T{},
	}

	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SqliteStore[T]) init() error {
	_, err := s.db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		spec TEXT NOT NULL
	)`, s.table))
	if err != nil {
		return fmt.Errorf("creating table %s: %w", s.table, err)
	}
	return nil
}

func (s *SqliteStore[T]) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(fmt.Sprintf("SELECT id, version, spec FROM %s", s.table))
	if err != nil {
		return fmt.Errorf("scanning table %s: %w", s.table, err)
	}
	defer rows.Close()

	s.records = map[string]T{}
	for rows.Next() {
		var id string
		var version uint
		var specJSON string
		if err := rows.Scan(&id, &version, &specJSON); err != nil {
			return fmt.Errorf("scanning row: %w", err)
		}

		var spec T
		asset := &Asset[T]{Version: version, Identifier: Identifier(id), Spec: spec}
		if err := json.Unmarshal([]byte(specJSON), &asset.Spec); err != nil {
			return fmt.Errorf("unmarshalling record %q: %w", id, err)
		}

		if err := asset.Validate(); err != nil {
			return fmt.Errorf("validating record %q: %w", id, err)
		}

		s.records[id] = asset.Spec
	}

	return rows.Err()
}

func (s *SqliteStore[T]) Save(id string, o T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	asset := &Asset[T]{
		Version:    1,
		Identifier: Identifier(id),
		Spec:       o,
	}
	if err := asset.Validate(); err != nil {
		return fmt.Errorf("validating record %q: %w", id, err)
	}

	specJSON, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshalling record %q: %w", id, err)
	}

	_, err = s.db.Exec(
		fmt.Sprintf(`INSERT INTO %s (id, version, spec) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET version=excluded.version, spec=excluded.spec`, s.table),
		id, asset.Version, string(specJSON),
	)
	if err != nil {
		return fmt.Errorf("upserting record %q: %w", id, err)
	}

	s.records[id] = o
	return nil
}

func (s *SqliteStore[T]) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table), id); err != nil {
		return fmt.Errorf("deleting record %q: %w", id, err)
	}

	delete(s.records, id)
	return nil
}

func (s *SqliteStore[T]) Get(id string) T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.records[id]
	if !ok {
		var nilVal T
		return nilVal
	}

	return val
}

func (s *SqliteStore[T]) GetAll() map[string]T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vals := map[string]T{}
	for id, v := range s.records {
		vals[id] = v
	}

	return vals
}

func (s *SqliteStore[T]) Close() error {
	return s.db.Close()
}
