// Package dotdir resolves the .docquery/ configuration directory and the
// default storage root used when no explicit root is configured.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (
	// dirName is the name of the docquery configuration directory.
	dirName = ".docquery"

	// appName names the per-user data directory under XDG_DATA_HOME.
	appName = "docquery"

	// storageDirName is the storage root's directory name inside a data dir.
	storageDirName = "storage"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .docquery/ directory.
// Order of precedence is as follows:
//  1. Provided override (created if missing)
//  2. Local ./.docquery/ dir
//  3. Home ~/.docquery/ dir
//
// An empty string is returned when none of them apply; callers then run on
// defaults only.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating docquery directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if isDir(filepath.Join(cwd, dirName)) {
		return filepath.Join(cwd, dirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	if isDir(filepath.Join(home, dirName)) {
		return filepath.Join(home, dirName), nil
	}

	return "", nil
}

// StorageRoot returns the directory documents are persisted under.
// An explicit root wins; otherwise $XDG_DATA_HOME/docquery/storage is used.
// The directory is created if it does not exist.
func (m *Manager) StorageRoot(root string) (string, error) {
	if root == "" {
		root = filepath.Join(xdg.DataHome, appName, storageDirName)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("creating storage root %s: %w", root, err)
	}

	return filepath.Abs(root)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
