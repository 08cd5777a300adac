package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/hippo/vm"
)

func runCLI(t *testing.T, opts options, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), opts, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeScript(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunScript(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "hello.php", "Hello, <?php echo 'world', PHP_EOL;")

	code, out, errOut := runCLI(t, options{}, script)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if out != "Hello, world\n" {
		t.Errorf("output = %q", out)
	}
}

func TestRunCode(t *testing.T) {
	code, out, errOut := runCLI(t, options{code: `$a = array(1, 2, 3); echo implode('+', $a), '=', max($a);`})
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if out != "1+2+3=3" {
		t.Errorf("output = %q", out)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		src  string
		code int
		want string
	}{
		{"parse", "<?php echo (;", 255, "Parse error:"},
		{"fatal", "<?php\nnope();\n", 255, "Fatal error: Call to undefined function nope()"},
	}
	for _, tc := range tests {
		script := writeScript(t, dir, tc.name+".php", tc.src)
		code, _, errOut := runCLI(t, options{}, script)
		if code != tc.code || !strings.Contains(errOut, tc.want) {
			t.Errorf("%s: exit %d stderr %q, want %d %q", tc.name, code, errOut, tc.code, tc.want)
		}
	}

	code, _, errOut := runCLI(t, options{}, filepath.Join(dir, "missing.php"))
	if code != 1 || !strings.Contains(errOut, "Could not open input file") {
		t.Errorf("missing file: exit %d stderr %q", code, errOut)
	}
}

func TestDisassemble(t *testing.T) {
	code, out, _ := runCLI(t, options{code: "echo 1;", disassemble: true})
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(out, "ECHO 1") || out == "1" {
		t.Errorf("disassembly = %q", out)
	}
}

func TestRunUsesManifest(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "hippo.toml", `
[source]
entry = "main.php"

[runtime]
max-call-depth = 8

[cache]
enabled = true
path = "units.db"
`)
	writeScript(t, dir, "main.php", "<?php function f($n) { return f($n + 1); } echo 'start'; f(0);")
	writeScript(t, dir, "ok.php", "<?php echo 'cached';")

	// The manifest entry runs when no script is named.
	code, out, errOut := runCLI(t, options{configDir: dir})
	if code != 255 || out != "start" || !strings.Contains(errOut, "Maximum function nesting level of '8'") {
		t.Errorf("entry run: exit %d out %q stderr %q", code, out, errOut)
	}

	for range 2 {
		code, out, errOut = runCLI(t, options{}, filepath.Join(dir, "ok.php"))
		if code != 0 || out != "cached" {
			t.Fatalf("exit %d out %q stderr %q", code, out, errOut)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "units.db")); err != nil {
		t.Errorf("cache database not created: %v", err)
	}
}

func TestProfileOutput(t *testing.T) {
	code, _, errOut := runCLI(t, options{code: "strlen('a'); strlen('b');", profile: true})
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(errOut, "2 calls (0 user, 2 builtin) to 1 functions") || !strings.Contains(errOut, "strlen() [builtin]") {
		t.Errorf("profile = %q", errOut)
	}
}

// ---------------------------------------------------------------------------
// REPL helpers
// ---------------------------------------------------------------------------

func TestNeedsMore(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"echo 1;", false},
		{"function f() {", true},
		{"function f() {\n return 1;\n}", false},
		{"$a = array(1,", true},
		{"echo '{';", false},
		{`echo "a\"`, true},
		{"echo 1; // {", false},
		{"echo 1; # (", false},
	}
	for _, tc := range tests {
		if got := needsMore(tc.src); got != tc.want {
			t.Errorf("needsMore(%q) = %v, want %v", tc.src, got, tc.want)
		}
	}
}

func TestEvalAndPrint(t *testing.T) {
	var out bytes.Buffer
	interp := vm.NewInterpreter(vm.WithOutput(&out))
	ctx := context.Background()

	evalAndPrint(ctx, interp, &out, "$x = 40", false)
	evalAndPrint(ctx, interp, &out, "echo $x + 2", false)
	if out.String() != "42" {
		t.Errorf("output = %q", out.String())
	}

	out.Reset()
	evalAndPrint(ctx, interp, &out, "echo (", false)
	if !strings.HasPrefix(out.String(), "Parse error:") {
		t.Errorf("parse error output = %q", out.String())
	}
}

func TestREPLCommands(t *testing.T) {
	var out bytes.Buffer
	interp := vm.NewInterpreter(vm.WithOutput(&out))
	interp.SetGlobal("n", vm.Int(3))

	handleREPLCommand(interp, &out, ":vars", false)
	if out.String() != "$n = 3\n" {
		t.Errorf(":vars = %q", out.String())
	}

	out.Reset()
	if !handleREPLCommand(interp, &out, ":dis", false) {
		t.Error(":dis should toggle the listing on")
	}
	if out.String() != "bytecode listing on\n" {
		t.Errorf(":dis = %q", out.String())
	}

	out.Reset()
	handleREPLCommand(interp, &out, ":bogus", false)
	if !strings.Contains(out.String(), "Unknown command") {
		t.Errorf(":bogus = %q", out.String())
	}
}
