package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), `
[project]
name = "test-app"
version = "0.1.0"

[source]
dirs = ["src", "lib"]
entry = "index.php"

[runtime]
trace = true
max-call-depth = 64
strict-notices = true

[log]
verbosity = 2
path = "logs/hippo.log"

[cache]
enabled = true
path = "/tmp/units.db"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("source dirs count = %d, want 2", len(m.Source.Dirs))
	}
	if m.Source.Entry != "index.php" {
		t.Errorf("source entry = %q, want index.php", m.Source.Entry)
	}
	if !m.Runtime.Trace || !m.Runtime.StrictNotices {
		t.Errorf("runtime = %+v", m.Runtime)
	}
	if m.Runtime.MaxCallDepth != 64 {
		t.Errorf("max-call-depth = %d, want 64", m.Runtime.MaxCallDepth)
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("verbosity = %d, want 2", m.Log.Verbosity)
	}
	if got := m.LogPath(); got != filepath.Join(m.Dir, "logs", "hippo.log") {
		t.Errorf("log path = %q", got)
	}
	if !m.Cache.Enabled {
		t.Error("cache enabled = false, want true")
	}
	if got := m.CachePath(); got != "/tmp/units.db" {
		t.Errorf("absolute cache path = %q", got)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "." {
		t.Errorf("default source dirs = %v, want [.]", m.Source.Dirs)
	}
	if m.Runtime.MaxCallDepth != 512 {
		t.Errorf("default max-call-depth = %d", m.Runtime.MaxCallDepth)
	}
	if m.Cache.Enabled {
		t.Error("the cache is off by default")
	}
	if got := m.CachePath(); got != filepath.Join(m.Dir, ".hippo", "cache.db") {
		t.Errorf("default cache path = %q", got)
	}
	if m.LogPath() != "" {
		t.Errorf("default log path = %q, want stderr", m.LogPath())
	}
}

func TestLoadManifestParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "[runtime\ntrace = true\n")

	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "parse error in") {
		t.Errorf("err = %v, want parse error", err)
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, FileName), `[project]
name = "found-project"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no hippo.toml exists")
	}
}

func TestSourceDirPaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Source: Source{
			Dirs: []string{"src", "/opt/lib"},
		},
	}

	paths := m.SourceDirPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/src" {
		t.Errorf("paths[0] = %q, want /app/src", paths[0])
	}
	if paths[1] != "/opt/lib" {
		t.Errorf("paths[1] = %q, want /opt/lib", paths[1])
	}
}

func TestEntryPath(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"src", "lib"} {
		if err := os.MkdirAll(filepath.Join(dir, d), 0755); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, filepath.Join(dir, "lib", "main.php"), "<?php echo 1;")

	m := &Manifest{Dir: dir, Source: Source{Dirs: []string{"src", "lib"}, Entry: "main.php"}}
	if got := m.EntryPath(); got != filepath.Join(dir, "lib", "main.php") {
		t.Errorf("entry = %q", got)
	}

	m.Source.Entry = "missing.php"
	if got := m.EntryPath(); got != "" {
		t.Errorf("missing entry = %q, want empty", got)
	}
}

// ---------------------------------------------------------------------------
// Environment overlay
// ---------------------------------------------------------------------------

func TestDotEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), `
[runtime]
max-call-depth = 64

[cache]
enabled = false
`)
	writeFile(t, filepath.Join(dir, ".env"), `
HIPPO_CACHE=true
HIPPO_CACHE_PATH=/var/cache/hippo.db
HIPPO_MAX_CALL_DEPTH=100
HIPPO_VERBOSITY=1
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !m.Cache.Enabled || m.CachePath() != "/var/cache/hippo.db" {
		t.Errorf("cache = %+v", m.Cache)
	}
	if m.Runtime.MaxCallDepth != 100 {
		t.Errorf("max-call-depth = %d, want 100", m.Runtime.MaxCallDepth)
	}
	if m.Log.Verbosity != 1 {
		t.Errorf("verbosity = %d, want 1", m.Log.Verbosity)
	}
}

func TestProcessEnvWinsOverDotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "")
	writeFile(t, filepath.Join(dir, ".env"), "HIPPO_TRACE=false\n")
	t.Setenv(EnvTrace, "true")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !m.Runtime.Trace {
		t.Error("process environment should override .env")
	}
}

func TestInvalidEnvValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{EnvTrace, "maybe"},
		{EnvVerbosity, "loud"},
		{EnvCache, "2x"},
		{EnvMaxCallDepth, "0"},
		{EnvMaxCallDepth, "deep"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			m := Default(t.TempDir())
			err := m.ApplyEnv()
			if err == nil || !strings.Contains(err.Error(), tc.key) {
				t.Errorf("err = %v, want an error naming %s", err, tc.key)
			}
		})
	}
}
