// Package dotdir manages the .mnemosyne/ and ~/.mnemosyne directories.
//
// The directory holds config.toml, the CLI's current session (session.json),
// migration backups under backups/ and server logs under logs/.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the mnemosyne directory.
	dirName = ".mnemosyne"

	// BackupsDir holds migration backup artifacts.
	BackupsDir = "backups"

	// LogsDir holds server log files.
	LogsDir = "logs"

	// LogFile is the JSON log written by `mnemosyne serve`.
	LogFile = "mnemosyne.log"

	// DatabaseFile is the default sqlite-vec record store.
	DatabaseFile = "mnemosyne.sqlite"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .mnemosyne/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.mnemosyne/ dir
//  3. Home ~/.mnemosyne/ dir, created if missing
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating mnemosyne directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Subdir returns the named subdirectory of the target, creating it.
func (m *Manager) Subdir(overrideDir, name string) (string, error) {
	root, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s directory: %w", name, err)
	}
	return dir, nil
}

// BackupPath returns the backups directory.
func (m *Manager) BackupPath(overrideDir string) (string, error) {
	return m.Subdir(overrideDir, BackupsDir)
}

// LogPath returns the path of the server log file. The file itself is not
// created.
func (m *Manager) LogPath(overrideDir string) (string, error) {
	dir, err := m.Subdir(overrideDir, LogsDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LogFile), nil
}

// DatabasePath returns the default sqlite-vec database path.
func (m *Manager) DatabasePath(overrideDir string) (string, error) {
	root, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, DatabaseFile), nil
}

// localDirExists checks whether a .mnemosyne/ directory exists in the
// current working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
