// Package state persists the emulated sensor record the way the real
// hardware's flash does: SET commits the record through a Store, SETNC
// leaves the store untouched.
package state

import "fmt"

// Store is a key-value snapshot of the sensor record.
type Store interface {
	// Save replaces the persisted record atomically.
	Save(record map[string]string) error

	// Load returns the persisted record; an empty map when nothing has
	// been committed yet.
	Load() (map[string]string, error)

	Close() error
}

// Open builds a store for the given backend name. An empty backend or
// path yields a Discard store so emulators can run stateless.
func Open(backend, path string) (Store, error) {
	if path == "" {
		return Discard{}, nil
	}
	switch backend {
	case "", "file":
		return NewFileStore(path), nil
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

// Discard is a Store that persists nothing.
type Discard struct{}

func (Discard) Save(map[string]string) error { return nil }

func (Discard) Load() (map[string]string, error) { return map[string]string{}, nil }

func (Discard) Close() error { return nil }
