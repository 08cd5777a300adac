// Package manifest handles hippo.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "hippo.toml"

// Manifest represents a hippo.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Source  Source  `toml:"source"`
	Runtime Runtime `toml:"runtime"`
	Log     Log     `toml:"log"`
	Cache   Cache   `toml:"cache"`

	// Dir is the directory containing the hippo.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Dirs  []string `toml:"dirs"`
	Entry string   `toml:"entry"`
}

// Runtime configures the interpreter.
type Runtime struct {
	Trace         bool `toml:"trace"`
	MaxCallDepth  int  `toml:"max-call-depth"`
	StrictNotices bool `toml:"strict-notices"`
}

// Log configures diagnostics output.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Cache configures the compiled-unit cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the configuration used when no hippo.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.setDefaults()
	return m
}

func (m *Manifest) setDefaults() {
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"."}
	}
	if m.Runtime.MaxCallDepth <= 0 {
		m.Runtime.MaxCallDepth = 512
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".hippo", "cache.db")
	}
}

// Load parses a hippo.toml file from the given directory and applies the
// environment overlay.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.setDefaults()
	if err := m.ApplyEnv(); err != nil {
		return nil, err
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a hippo.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, m.resolve(d))
	}
	return paths
}

// EntryPath returns the script to run when none is named, or "".
// The entry is looked up in each source directory in order.
func (m *Manifest) EntryPath() string {
	if m.Source.Entry == "" {
		return ""
	}
	for _, d := range m.SourceDirPaths() {
		p := filepath.Join(d, m.Source.Entry)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// CachePath returns the absolute path of the unit cache database.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

// LogPath returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogPath() string {
	if m.Log.Path == "" {
		return ""
	}
	return m.resolve(m.Log.Path)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
