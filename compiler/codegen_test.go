package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/hippo/vm"
)

func compileSrc(t *testing.T, src string) *vm.ByteCode {
	t.Helper()
	unit, err := CompileSource("test.php", "<?php "+src)
	if err != nil {
		t.Fatalf("compile %q: %v", src, err)
	}
	return unit
}

// opcodes lists the instructions of a unit by name.
func opcodes(u *vm.ByteCode) []string {
	var ops []string
	for pc := 0; pc < len(u.Code); {
		op, _, _, next := vm.Decode(u.Code, pc)
		ops = append(ops, op.Name())
		pc = next
	}
	return ops
}

func hasOp(u *vm.ByteCode, name string) bool {
	for _, op := range opcodes(u) {
		if op == name {
			return true
		}
	}
	return false
}

func TestCompileAssignment(t *testing.T) {
	u := compileSrc(t, `$a = 1;`)
	want := []string{"LOAD_REF", "LOAD_CONST", "STORE", "POP_TOP", "RETURN_NULL"}
	if got := opcodes(u); strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
	if !u.UsesDict {
		t.Error("top-level unit should use dict storage")
	}
	if u.StackDepth != 2 {
		t.Errorf("stack depth = %d, want 2", u.StackDepth)
	}
}

func TestCompileIndexAssignment(t *testing.T) {
	u := compileSrc(t, `$a['x'] = 1; $a[] = 2;`)
	want := []string{
		"LOAD_REF", "LOAD_CONST", "LOAD_CONST", "STOREITEM", "POP_TOP",
		"LOAD_REF", "APPEND_INDEX", "LOAD_CONST", "STORE", "POP_TOP",
		"RETURN_NULL",
	}
	if got := opcodes(u); strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("opcodes = %v, want %v", got, want)
	}
}

func TestCompileConstantPools(t *testing.T) {
	u := compileSrc(t, `$a = 'x'; $b = 'x'; $c = 1; $d = 1; $a = 2;`)
	if len(u.Consts) != 3 {
		t.Errorf("consts = %d (%v), want 3", len(u.Consts), u.Consts)
	}
	if len(u.VarNames) != 4 {
		t.Errorf("vars = %v, want 4 names", u.VarNames)
	}
}

func TestCompileConstantFolding(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`$x = 1 + 2 * 3;`, "7"},
		{`$x = 'a' . 'b' . 1;`, `"ab1"`},
		{`$x = -5;`, "-5"},
		{`$x = !true;`, "false"},
		{`$x = 7 / 2;`, "3.5"},
		{`$x = [1, 2];`, "array(0 => 1, 1 => 2)"},
		{`$x = ['a' => 1, 5 => 2, 3];`, `array("a" => 1, 5 => 2, 6 => 3)`},
		{`$x = NULL;`, "NULL"},
	}
	for _, tc := range tests {
		u := compileSrc(t, tc.src)
		found := false
		for _, c := range u.Consts {
			if vm.ReprConst(c) == tc.want {
				found = true
			}
		}
		if !found {
			t.Errorf("%q: consts %v do not contain %s", tc.src, u.Consts, tc.want)
		}
		if hasOp(u, "ADD") || hasOp(u, "CONCAT") || hasOp(u, "NEW_ARRAY") {
			t.Errorf("%q: not folded:\n%s", tc.src, vm.Disassemble(u))
		}
	}

	// Division by zero is left for run time.
	u := compileSrc(t, `$x = 1 / 0;`)
	if !hasOp(u, "DIV") {
		t.Errorf("1 / 0 should not be folded")
	}
}

func TestCompileFunctions(t *testing.T) {
	u := compileSrc(t, `
		function add($a, $b = 10) { return $a + $b; }
		if (true) { function later() {} }
		function dyn() { $$n = 1; }
	`)
	if len(u.Functions) != 3 {
		t.Fatalf("functions = %d, want 3", len(u.Functions))
	}
	if len(u.Hoisted) != 2 {
		t.Errorf("hoisted = %v, want two", u.Hoisted)
	}
	if !hasOp(u, "DECLARE_FUNC") {
		t.Error("conditional declaration should emit DECLARE_FUNC")
	}

	add := u.Functions[u.Hoisted[0]]
	if add.Name != "add" || len(add.Params) != 2 {
		t.Fatalf("add = %s %v", add.Name, add.Params)
	}
	if add.UsesDict {
		t.Error("add should use slot storage")
	}
	if !add.Params[1].HasDefault || vm.ReprConst(add.Params[1].Default) != "10" {
		t.Errorf("default = %+v", add.Params[1])
	}
	if add.VarIndex("a") != 0 || add.VarIndex("b") != 1 {
		t.Errorf("params should take the first slots: %v", add.VarNames)
	}
	if dyn := u.Functions[u.Hoisted[1]]; !dyn.UsesDict {
		t.Error("a function using $$ should use dict storage")
	}
}

func TestCompileByRefArguments(t *testing.T) {
	u := compileSrc(t, `
		function inc(&$x) { $x++; }
		inc($a);
		strlen($s);
		array_push($arr, 1);
		unknown_fn($u);
	`)
	dis := vm.Disassemble(u)
	for _, want := range []string{"LOAD_REF 0 ($a)", "LOAD_DEREF 1 ($s)", "LOAD_REF 2 ($arr)", "LOAD_REF 3 ($u)"} {
		if !strings.Contains(dis, want) {
			t.Errorf("missing %q in:\n%s", want, dis)
		}
	}
	// Only the unknown callee snapshots its arguments.
	if n := strings.Count(dis, "ARG_SNAPSHOT"); n != 1 {
		t.Errorf("ARG_SNAPSHOT appears %d times in:\n%s", n, dis)
	}
}

func TestCompileBreakUnwindsIterators(t *testing.T) {
	u := compileSrc(t, `
		foreach ($a as $x) {
			foreach ($b as $y) {
				break 2;
			}
		}
		while (1) { foreach ($c as $z) { continue 2; } }
		foreach ($d as $w) { while (1) { break 2; } }
	`)
	dis := vm.Disassemble(u)
	if n := strings.Count(dis, "UNWIND_JUMP 1"); n != 2 {
		t.Errorf("UNWIND_JUMP 1 count = %d, want 2:\n%s", n, dis)
	}
	if strings.Count(dis, "DISCARD_ITER") != 4 {
		t.Errorf("each foreach should discard its iterator:\n%s", dis)
	}
}

func TestCompileStackDepthAtMerges(t *testing.T) {
	srcs := []string{
		`$x = $a ? $b : $c;`,
		`$x = $a ?: $c;`,
		`$x = $a && $b || $c;`,
		`$x = $a['k'] ?? $b ?? 'd';`,
		`$x ??= 5;`,
		`$ok = isset($a, $b['c'], $$d);`,
		`foreach ($a as $k => list($p, $q)) { if ($p) { continue; } echo $q; }`,
		`for ($i = 0, $j = 1; $i < 10, $j < 5; $i++) { if ($i) break; }`,
		`do { $i--; } while ($i > 0);`,
	}
	for _, src := range srcs {
		u := compileSrc(t, src)
		depth, err := vm.ComputeStackDepth(u.Code)
		if err != nil {
			t.Errorf("%q: %v", src, err)
			continue
		}
		if depth != u.StackDepth || depth > 8 {
			t.Errorf("%q: depth %d, recorded %d", src, depth, u.StackDepth)
		}
	}
}

func TestCompileSourceLines(t *testing.T) {
	u := compileSrc(t, "$a = 1;\n$b = 2;\n\n$c = 3;")
	var lines []int
	for _, l := range u.Lines {
		lines = append(lines, l.Line)
	}
	if len(lines) != 3 || lines[0] != 1 || lines[2] != 4 {
		t.Errorf("lines = %v, want [1 2 4]", lines)
	}
	if u.SourceLine(2) != "$b = 2;" {
		t.Errorf("source line 2 = %q", u.SourceLine(2))
	}
}

func TestCompileStatics(t *testing.T) {
	u := compileSrc(t, `function counter() { static $n = 0, $m; return ++$n; }`)
	fn := u.Functions[0]
	dis := vm.Disassemble(fn)
	if !strings.Contains(dis, "STATIC 0") || !strings.Contains(dis, "$n") {
		t.Errorf("static not emitted:\n%s", dis)
	}
	if !strings.Contains(dis, "(NULL) $m") {
		t.Errorf("static without initializer should start as null:\n%s", dis)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`echo $a[];`, "Cannot use [] for reading"},
		{`$x = [1, , 2];`, "Cannot use empty array elements"},
		{`foo() = 1;`, "unexpected '='"},
		{`break;`, "not in the 'loop'"},
		{`$a = &5;`, "non referenceable"},
		{`list($a) = &$b;`, "Cannot assign reference to list()"},
	}
	for _, tc := range tests {
		_, err := CompileSource("bad.php", "<?php "+tc.src)
		if err == nil {
			t.Errorf("%q: expected error containing %q", tc.src, tc.want)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%q: error %q, want it to contain %q", tc.src, err, tc.want)
		}
		if !strings.HasPrefix(err.Error(), "bad.php:") {
			t.Errorf("%q: error %q should name the file", tc.src, err)
		}
	}
}

func TestCompileRejectsOversizedUnits(t *testing.T) {
	body := strings.Repeat("$n = $n + 1;\n", 8000)
	for _, src := range []string{
		"$x = 0; $n = 0; if ($x) {\n" + body + "}\necho 'after ', $n;",
		"$n = 0; for ($i = 0; $i < 1; $i++) {\n" + body + "}",
	} {
		_, err := CompileSource("big.php", "<?php "+src)
		if err == nil {
			t.Errorf("a unit over 64KiB should not compile")
			continue
		}
		if !errors.Is(err, vm.ErrUnitTooLarge) && !strings.Contains(err.Error(), "unit too large") {
			t.Errorf("err = %v, want unit too large", err)
		}
	}

	// The same code in a smaller unit still compiles.
	compileSrc(t, "$x = 0; $n = 0; if ($x) {\n"+strings.Repeat("$n = $n + 1;\n", 100)+"}")
}

func TestCompileMagicConstants(t *testing.T) {
	u := compileSrc(t, "\nfunction f() { return __FUNCTION__ . '@' . __LINE__; }")
	fn := u.Functions[0]
	found := false
	for _, c := range fn.Consts {
		if vm.ReprConst(c) == `"f@2"` {
			found = true
		}
	}
	if !found {
		t.Errorf("consts = %v, want \"f@2\"", fn.Consts)
	}
}
