package constants

// Backend names a run storage implementation.
type Backend string

const (
	// BackendSQLite persists runs to a SQLite database in the data directory.
	BackendSQLite Backend = "sqlite"

	// BackendMemory keeps runs in process memory only.
	BackendMemory Backend = "memory"
)

// Valid returns true if the backend is a recognized value.
func (b Backend) Valid() bool {
	switch b {
	case BackendSQLite, BackendMemory:
		return true
	}
	return false
}

// String returns the string representation of the backend.
func (b Backend) String() string {
	return string(b)
}
