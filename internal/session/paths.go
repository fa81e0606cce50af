package session

import (
	"os"
	"path/filepath"
)

// EnvHome relocates the data directory, mostly for tests and containers.
const EnvHome = "OMNICHAT_HOME"

// BaseDir returns $OMNICHAT_HOME, or ~/.omnichat.
func BaseDir() string {
	if d := os.Getenv(EnvHome); d != "" {
		return d
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".omnichat")
}

// Dir returns the session-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "sessions", name)
}

// SocketPath returns the health socket of a running omnid.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "omnid.sock")
}

// LockPath returns the lock file that allows one realtime bridge per session.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// CachePath returns the snapshot cache database.
func CachePath(name string) string {
	return filepath.Join(Dir(name), "cache.db")
}

// LogDir returns the log directory for a session.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "omnid.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the session directory tree with owner-only permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
