package state

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists the sensor record in a single key-value table.
// Useful when several emulated devices share one state database on a test
// rig.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if necessary initialises) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sensor_state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sensor_state table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save replaces the persisted record in one transaction.
func (s *SQLiteStore) Save(record map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting state transaction: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM sensor_state`); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing sensor_state: %w", err)
	}
	for k, v := range record {
		if _, err := tx.Exec(`INSERT INTO sensor_state (key, value) VALUES (?, ?)`, k, v); err != nil {
			tx.Rollback()
			return fmt.Errorf("writing sensor_state key %q: %w", k, err)
		}
	}

	return tx.Commit()
}

// Load returns the persisted record.
func (s *SQLiteStore) Load() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM sensor_state`)
	if err != nil {
		return nil, fmt.Errorf("querying sensor_state: %w", err)
	}
	defer rows.Close()

	record := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning sensor_state row: %w", err)
		}
		record[k] = v
	}
	return record, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
