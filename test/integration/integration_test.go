package integration_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/hippo/cache"
	"github.com/chazu/hippo/compiler"
	"github.com/chazu/hippo/vm"
)

// ---------------------------------------------------------------------------
// Golden script tests
// ---------------------------------------------------------------------------

// Each testdata/NAME.php runs and must print exactly testdata/NAME.out.

func scripts(t *testing.T) []string {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join("testdata", "*.php"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no scripts in testdata")
	}
	return paths
}

func golden(t *testing.T, script string) (src, want string) {
	t.Helper()
	data, err := os.ReadFile(script)
	if err != nil {
		t.Fatal(err)
	}
	out, err := os.ReadFile(strings.TrimSuffix(script, ".php") + ".out")
	if err != nil {
		t.Fatal(err)
	}
	return string(data), string(out)
}

func runUnit(t *testing.T, unit *vm.ByteCode) string {
	t.Helper()
	var out bytes.Buffer
	interp := vm.NewInterpreter(vm.WithOutput(&out), vm.WithStrictNotices(true))
	if err := interp.Run(unit); err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String()
}

func TestScripts(t *testing.T) {
	for _, script := range scripts(t) {
		t.Run(filepath.Base(script), func(t *testing.T) {
			src, want := golden(t, script)
			unit, err := compiler.CompileSource(script, src)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			if got := runUnit(t, unit); got != want {
				t.Errorf("output:\n%s\nwant:\n%s", got, want)
			}
		})
	}
}

// Units loaded back from the cache codec behave like fresh ones.
func TestScriptsThroughCache(t *testing.T) {
	for _, script := range scripts(t) {
		t.Run(filepath.Base(script), func(t *testing.T) {
			src, want := golden(t, script)
			unit, err := compiler.CompileSource(script, src)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			data, err := cache.Marshal(unit)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			decoded, err := cache.Unmarshal(data)
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := runUnit(t, decoded); got != want {
				t.Errorf("output:\n%s\nwant:\n%s", got, want)
			}
		})
	}
}

// A unit can run in several interpreters; each gets its own statics and
// globals.
func TestUnitsAreReusable(t *testing.T) {
	src, want := golden(t, filepath.Join("testdata", "statics.php"))
	unit, err := compiler.CompileSource("statics.php", src)
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if got := runUnit(t, unit); got != want {
			t.Errorf("output = %q, want %q", got, want)
		}
	}
}
