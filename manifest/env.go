package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override manifest values.
const (
	EnvTrace        = "HIPPO_TRACE"
	EnvVerbosity    = "HIPPO_VERBOSITY"
	EnvCache        = "HIPPO_CACHE"
	EnvCachePath    = "HIPPO_CACHE_PATH"
	EnvMaxCallDepth = "HIPPO_MAX_CALL_DEPTH"
)

// ApplyEnv overlays HIPPO_* settings onto m. Values come from the process
// environment first, then from a .env file next to the manifest.
func (m *Manifest) ApplyEnv() error {
	dotenv, err := readDotEnv(filepath.Join(m.Dir, ".env"))
	if err != nil {
		return err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if v, ok := lookup(EnvTrace); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError(EnvTrace, v, err)
		}
		m.Runtime.Trace = b
	}
	if v, ok := lookup(EnvVerbosity); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError(EnvVerbosity, v, err)
		}
		m.Log.Verbosity = n
	}
	if v, ok := lookup(EnvCache); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError(EnvCache, v, err)
		}
		m.Cache.Enabled = b
	}
	if v, ok := lookup(EnvCachePath); ok && v != "" {
		m.Cache.Path = v
	}
	if v, ok := lookup(EnvMaxCallDepth); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return envError(EnvMaxCallDepth, v, err)
		}
		m.Runtime.MaxCallDepth = n
	}
	return nil
}

func readDotEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return env, nil
}

func envError(key, value string, err error) error {
	if err == nil {
		return fmt.Errorf("invalid %s=%q: must be positive", key, value)
	}
	return fmt.Errorf("invalid %s=%q: %w", key, value, err)
}
