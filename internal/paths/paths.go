// Package paths resolves jellysort's on-disk locations.
//
// Everything lives under one application directory, ~/.config/jellysort by
// default. When running under sudo the invoking user's home is used instead of
// root's, and JELLYSORT_HOME overrides the directory entirely.
package paths

import (
	"os"
	"os/user"
	"path/filepath"
)

// EnvHome overrides the application directory when set.
const EnvHome = "JELLYSORT_HOME"

// UserHomeDir returns the home directory of the actual user.
// If running with sudo, returns the SUDO_USER's home directory, not root's.
func UserHomeDir() (string, error) {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" && sudoUser != "root" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir, nil
		}
	}
	return os.UserHomeDir()
}

// AppDir returns the jellysort directory.
func AppDir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}
	home, err := UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "jellysort"), nil
}

func inAppDir(elem ...string) (string, error) {
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{dir}, elem...)...), nil
}

// ConfigPath returns the path of config.toml.
func ConfigPath() (string, error) { return inAppDir("config.toml") }

// DatabasePath returns the path of the SQLite record store.
func DatabasePath() (string, error) { return inAppDir("media.db") }

// LogPath returns the default log file path.
func LogPath() (string, error) { return inAppDir("logs", "jellysort.log") }

// ActivityDir returns the directory holding the daily JSONL activity files.
func ActivityDir() (string, error) { return inAppDir("activity") }

// LockPath returns the file locked by long-running commands (serve, watch)
// so only one process drives the record store at a time.
func LockPath() (string, error) { return inAppDir("jellysort.lock") }
