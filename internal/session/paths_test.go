package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rainergb/omni-chat-app-sub001/internal/config"
)

func TestDirDefaultsToHome(t *testing.T) {
	t.Setenv(EnvHome, "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".omnichat", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestPathsUnderHomeOverride(t *testing.T) {
	base := t.TempDir()
	t.Setenv(EnvHome, base)

	cases := map[string]string{
		SocketPath("test"): filepath.Join("sessions", "test", "omnid.sock"),
		LockPath("test"):   filepath.Join("sessions", "test", "LOCK"),
		CachePath("test"):  filepath.Join("sessions", "test", "cache.db"),
		LogPath("test"):    filepath.Join("sessions", "test", "logs", "omnid.log"),
	}
	for got, suffix := range cases {
		if !strings.HasPrefix(got, base) || !strings.HasSuffix(got, suffix) {
			t.Errorf("%q: want %s/.../%s", got, base, suffix)
		}
	}
	if ConfigPath() != filepath.Join(base, "config.toml") {
		t.Errorf("ConfigPath() = %q", ConfigPath())
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{Dir("test"), LogDir("test")} {
		info, err := os.Stat(d)
		if err != nil {
			t.Fatalf("%s not created: %v", d, err)
		}
		if !info.IsDir() || info.Mode().Perm() != 0700 {
			t.Errorf("%s: mode %v", d, info.Mode())
		}
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())

	if got := Resolve("work", &config.Config{DefaultSession: "other"}); got != "work" {
		t.Errorf("flag should win, got %q", got)
	}
	if got := Resolve("", &config.Config{DefaultSession: "other"}); got != "other" {
		t.Errorf("config should be used, got %q", got)
	}
	if got := Resolve("", nil); got != DefaultSessionName {
		t.Errorf("missing config should fall back to %q, got %q", DefaultSessionName, got)
	}

	if err := config.Save(ConfigPath(), &config.Config{DefaultSession: "saved"}); err != nil {
		t.Fatal(err)
	}
	if got := Resolve("", nil); got != "saved" {
		t.Errorf("config.toml should be read, got %q", got)
	}
}
