package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigDirHonoursXDG(t *testing.T) {
	t.Setenv("SUDO_USER", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir: %v", err)
	}
	if want := filepath.Join("/tmp/xdg", appName); dir != want {
		t.Fatalf("ConfigDir = %q, want %q", dir, want)
	}
	if got := DefaultConfigFile(); got != filepath.Join(dir, "config.yaml") {
		t.Fatalf("DefaultConfigFile = %q", got)
	}
}

func TestRealUserWithoutSudo(t *testing.T) {
	t.Setenv("SUDO_UID", "")
	if _, _, ok := RealUser(); ok {
		t.Fatal("RealUser reported sudo without SUDO_UID")
	}
}

func TestRealUserParsesIDs(t *testing.T) {
	t.Setenv("SUDO_UID", "1000")
	t.Setenv("SUDO_GID", "1001")
	uid, gid, ok := RealUser()
	if !ok || uid != 1000 || gid != 1001 {
		t.Fatalf("RealUser = %d, %d, %v", uid, gid, ok)
	}
}

func TestEnsureParentDir(t *testing.T) {
	t.Setenv("SUDO_UID", "")
	path := filepath.Join(t.TempDir(), "a", "b", "run.log")
	if err := EnsureParentDir(path); err != nil {
		t.Fatalf("EnsureParentDir: %v", err)
	}
	info, err := os.Stat(filepath.Dir(path))
	if err != nil || !info.IsDir() {
		t.Fatalf("parent dir missing: %v", err)
	}
}
