package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/equilibria/internal/constants"
)

// DefaultDir returns the path to the user data directory.
// On Unix: ~/.equilibria
// On Windows: %USERPROFILE%\.equilibria
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DataDirName), nil
}

// DatabasePath returns the SQLite database location inside dir.
func DatabasePath(dir string) string {
	return filepath.Join(dir, constants.DatabaseFileName)
}

// EnsureDir creates dir if it doesn't exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}
