package store

import (
	"fmt"

	"github.com/nvandessel/equilibria/internal/constants"
)

// Open returns the RunStore for backend. dir is only used by the SQLite
// backend.
func Open(backend constants.Backend, dir string) (RunStore, error) {
	switch backend {
	case constants.BackendSQLite, "":
		s, err := NewSQLiteRunStore(dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case constants.BackendMemory:
		return NewInMemoryRunStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
