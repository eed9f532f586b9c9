package state

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// FileStore persists the sensor record as a single YAML file, rewritten
// via write-to-temp plus rename so a crash never leaves a torn record.
type FileStore struct {
	path string
}

// NewFileStore builds a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save replaces the persisted record atomically.
func (s *FileStore) Save(record map[string]string) error {
	raw, err := yaml.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding sensor record: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing state file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("committing state file: %w", err)
	}
	return nil
}

// Load returns the persisted record; a missing file is an empty record.
func (s *FileStore) Load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	record := map[string]string{}
	if err := yaml.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decoding state file: %w", err)
	}
	return record, nil
}

// Close satisfies Store.
func (s *FileStore) Close() error {
	return nil
}
