package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
)

// parseExpr parses a bare expression as if it appeared inside code tags.
func parseExpr(t *testing.T, src string) Expr {
	t.Helper()
	p := newParser("test", newCodeLexer(src, Position{Line: 1, Column: 1}))
	e, err := p.ParseExpression()
	if err != nil {
		t.Fatalf("ParseExpression(%q): %v", src, err)
	}
	return e
}

func parseProgram(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Parse("test.php", "<?php "+src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	return prog
}

func TestParserLiterals(t *testing.T) {
	tests := []struct {
		input string
		check func(Expr) bool
		desc  string
	}{
		{"42", func(e Expr) bool { return e.(*IntLiteral).Value == 42 }, "integer"},
		{"0x1F", func(e Expr) bool { return e.(*IntLiteral).Value == 31 }, "hex"},
		{"0b101", func(e Expr) bool { return e.(*IntLiteral).Value == 5 }, "binary"},
		{"017", func(e Expr) bool { return e.(*IntLiteral).Value == 15 }, "octal"},
		{"3.14", func(e Expr) bool { return e.(*FloatLiteral).Value == 3.14 }, "float"},
		{"9223372036854775808", func(e Expr) bool {
			return e.(*FloatLiteral).Value > 9.2e18
		}, "integer overflow"},
		{"'hello'", func(e Expr) bool { return e.(*StringLiteral).Value == "hello" }, "string"},
		{"true", func(e Expr) bool { return e.(*ConstFetch).Name == "true" }, "constant"},
		{"-5", func(e Expr) bool {
			u := e.(*UnaryOp)
			return u.Op == TokenMinus && u.Operand.(*IntLiteral).Value == 5
		}, "negative integer"},
	}

	for _, tc := range tests {
		expr := parseExpr(t, tc.input)
		if !tc.check(expr) {
			t.Errorf("%s: check failed for %q", tc.desc, tc.input)
		}
	}
}

func TestParserPrecedence(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"1 - 2 - 3", "((1 - 2) - 3)"},
		{"'a' . 1 + 2", "(('a' . 1) + 2)"},
		{"$a && $b || $c", "(($a && $b) || $c)"},
		{"$a ?? $b ?? $c", "($a ?? ($b ?? $c))"},
		{"1 < 2 == true", "((1 < 2) == true)"},
		{"!$a && $b", "((!$a) && $b)"},
		{"$a = $b = 3", "($a = ($b = 3))"},
		{"$a = 1 and $b = 2", "(($a = 1) and ($b = 2))"},
		{"$a ? 1 : 2", "($a ? 1 : 2)"},
		{"$a ?: 2", "($a ?: 2)"},
		{"$x += 1 + 2", "($x += (1 + 2))"},
	}

	for _, tc := range tests {
		got := render(parseExpr(t, tc.input))
		if got != tc.want {
			t.Errorf("%q = %s, want %s", tc.input, got, tc.want)
		}
	}
}

// render prints an expression fully parenthesized.
func render(e Expr) string {
	switch n := e.(type) {
	case *IntLiteral:
		return strconv.FormatInt(n.Value, 10)
	case *StringLiteral:
		return "'" + n.Value + "'"
	case *ConstFetch:
		return n.Name
	case *Variable:
		return "$" + n.Name
	case *BinaryOp:
		return "(" + render(n.Left) + " " + n.Op.String() + " " + render(n.Right) + ")"
	case *UnaryOp:
		return "(" + n.Op.String() + render(n.Operand) + ")"
	case *Assign:
		return "(" + render(n.Target) + " = " + render(n.Value) + ")"
	case *CompoundAssign:
		return "(" + render(n.Target) + " " + n.Op.String() + "= " + render(n.Value) + ")"
	case *Ternary:
		if n.Then == nil {
			return "(" + render(n.Cond) + " ?: " + render(n.Else) + ")"
		}
		return "(" + render(n.Cond) + " ? " + render(n.Then) + " : " + render(n.Else) + ")"
	}
	return "?"
}

func TestParserTargets(t *testing.T) {
	e := parseExpr(t, "$a['x'][] = 5")
	as, ok := e.(*Assign)
	if !ok {
		t.Fatalf("got %T, want *Assign", e)
	}
	outer := as.Target.(*Index)
	if outer.Key != nil {
		t.Errorf("outer index should be an append")
	}
	inner := outer.Base.(*Index)
	if inner.Key.(*StringLiteral).Value != "x" {
		t.Errorf("inner key = %v", inner.Key)
	}

	ref := parseExpr(t, "$b = &$a[1]").(*RefAssign)
	if _, ok := ref.Source.(*Index); !ok {
		t.Errorf("ref source = %T", ref.Source)
	}

	vv := parseExpr(t, "$$name = 1").(*Assign)
	if _, ok := vv.Target.(*VarVar); !ok {
		t.Errorf("var-var target = %T", vv.Target)
	}

	inc := parseExpr(t, "$i++").(*IncDec)
	if !inc.Inc || inc.Prefix {
		t.Errorf("postfix increment = %+v", inc)
	}
	dec := parseExpr(t, "--$i").(*IncDec)
	if dec.Inc || !dec.Prefix {
		t.Errorf("prefix decrement = %+v", dec)
	}
}

func TestParserListAssignment(t *testing.T) {
	for _, src := range []string{"list($a, , $b) = $arr", "[$a, , $b] = $arr"} {
		as := parseExpr(t, src).(*Assign)
		l, ok := as.Target.(*ListExpr)
		if !ok {
			t.Fatalf("%q: target = %T", src, as.Target)
		}
		if len(l.Items) != 3 || l.Items[1].Target != nil {
			t.Errorf("%q: items = %+v", src, l.Items)
		}
	}

	as := parseExpr(t, "['k' => $v, 'n' => [$x, $y]] = $arr").(*Assign)
	l := as.Target.(*ListExpr)
	if l.Items[0].Key.(*StringLiteral).Value != "k" {
		t.Errorf("keyed item = %+v", l.Items[0])
	}
	if _, ok := l.Items[1].Target.(*ListExpr); !ok {
		t.Errorf("nested target = %T", l.Items[1].Target)
	}
}

func TestParserArrayLiterals(t *testing.T) {
	arr := parseExpr(t, "array(1, 'k' => 2, &$x, [3])").(*ArrayLiteral)
	if len(arr.Items) != 4 {
		t.Fatalf("items = %d, want 4", len(arr.Items))
	}
	if arr.Items[0].Key != nil || arr.Items[1].Key == nil {
		t.Errorf("keys = %v, %v", arr.Items[0].Key, arr.Items[1].Key)
	}
	if !arr.Items[2].ByRef {
		t.Errorf("third item should be by reference")
	}
	if _, ok := arr.Items[3].Value.(*ArrayLiteral); !ok {
		t.Errorf("nested = %T", arr.Items[3].Value)
	}

	trailing := parseExpr(t, "[1, 2,]").(*ArrayLiteral)
	if len(trailing.Items) != 2 {
		t.Errorf("trailing comma items = %d, want 2", len(trailing.Items))
	}
}

func TestParserCalls(t *testing.T) {
	call := parseExpr(t, "strlen('abc')").(*Call)
	if call.Name != "strlen" || len(call.Args) != 1 {
		t.Errorf("call = %+v", call)
	}

	dyn := parseExpr(t, "$fn(1, 2)").(*Call)
	if dyn.Callee == nil || len(dyn.Args) != 2 {
		t.Errorf("dynamic call = %+v", dyn)
	}

	isset := parseExpr(t, "isset($a, $b['x'])").(*Isset)
	if len(isset.Args) != 2 {
		t.Errorf("isset args = %d", len(isset.Args))
	}
}

func TestParserInterpolation(t *testing.T) {
	e := parseExpr(t, `"a $x b {$y['k']}"`)
	in, ok := e.(*Interpolation)
	if !ok {
		t.Fatalf("got %T", e)
	}
	if len(in.Parts) != 4 {
		t.Fatalf("parts = %d, want 4", len(in.Parts))
	}
	if _, ok := in.Parts[1].(*Variable); !ok {
		t.Errorf("part 1 = %T", in.Parts[1])
	}
	if _, ok := in.Parts[3].(*Index); !ok {
		t.Errorf("part 3 = %T", in.Parts[3])
	}
}

func TestParserStatements(t *testing.T) {
	prog := parseProgram(t, `
		function f(&$a, $b = 1) { return $a + $b; }
		if ($x) { echo 1; } elseif ($y) { echo 2; } else if ($z) echo 3; else echo 4;
		while ($i < 3) $i++;
		do { $i--; } while ($i);
		for ($i = 0, $j = 0; $i < 3; $i++, $j++) {}
		foreach ($arr as $k => &$v) { break 1; }
		global $g;
		static $s = 1, $t;
		unset($a, $b[0]);
	`)
	want := []string{
		"*compiler.FunctionDecl", "*compiler.IfStmt", "*compiler.WhileStmt",
		"*compiler.DoWhileStmt", "*compiler.ForStmt", "*compiler.ForeachStmt",
		"*compiler.GlobalStmt", "*compiler.StaticStmt", "*compiler.UnsetStmt",
	}
	if len(prog.Stmts) != len(want) {
		t.Fatalf("statements = %d, want %d", len(prog.Stmts), len(want))
	}
	for i, w := range want {
		if got := typeName(prog.Stmts[i]); got != w {
			t.Errorf("stmt[%d] = %s, want %s", i, got, w)
		}
	}

	fn := prog.Stmts[0].(*FunctionDecl)
	if !fn.Params[0].ByRef || fn.Params[1].Default == nil {
		t.Errorf("params = %+v", fn.Params)
	}
	ifs := prog.Stmts[1].(*IfStmt)
	if len(ifs.ElseIfs) != 2 || ifs.Else == nil {
		t.Errorf("if = %d elseifs, else %v", len(ifs.ElseIfs), ifs.Else)
	}
	fe := prog.Stmts[5].(*ForeachStmt)
	if !fe.ByRef || fe.Key == nil {
		t.Errorf("foreach = %+v", fe)
	}
	st := prog.Stmts[7].(*StaticStmt)
	if len(st.Vars) != 2 || st.Vars[1].Init != nil {
		t.Errorf("static = %+v", st.Vars)
	}
}

func typeName(n Node) string {
	return fmt.Sprintf("%T", n)
}

func TestParserInlineHTML(t *testing.T) {
	prog, err := Parse("page.php", "<b><?php echo $x ?></b>\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Stmts) != 3 {
		t.Fatalf("statements = %d, want 3", len(prog.Stmts))
	}
	if html := prog.Stmts[2].(*InlineHTML); html.Text != "</b>\n" {
		t.Errorf("trailing html = %q", html.Text)
	}
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"$a = ;", "unexpected ';'"},
		{"echo 1", ""}, // end of file terminates the statement
		{"if ($a { }", "expecting )"},
		{"function f($a, $a) {}", "Redefinition of parameter $a"},
		{"class A {}", "classes are not supported"},
		{"$f = function() {};", "closures are not supported"},
		{"1 = 2;", "unexpected '='"},
		{"break 0;", "positive numbers"},
		{"foreach ($a as &$k => $v) {}", "key element cannot be a reference"},
		{"'open", "unterminated string"},
		{"list($a) ;", "must be assigned"},
	}

	for _, tc := range tests {
		_, err := Parse("t.php", "<?php "+tc.src)
		if tc.want == "" {
			if err != nil {
				t.Errorf("%q: unexpected error %v", tc.src, err)
			}
			continue
		}
		if err == nil {
			t.Errorf("%q: expected error containing %q", tc.src, tc.want)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%q: error %q, want it to contain %q", tc.src, err, tc.want)
		}
	}
}

func TestParserErrorPosition(t *testing.T) {
	_, err := Parse("pos.php", "<?php\n$a = 1;\n$b = ;")
	ce, ok := err.(*CompileError)
	if !ok {
		t.Fatalf("err = %T %v", err, err)
	}
	if ce.Pos.Line != 3 || ce.Unit != "pos.php" {
		t.Errorf("error at %s:%d", ce.Unit, ce.Pos.Line)
	}
	if !strings.HasPrefix(ce.Error(), "pos.php:3:") {
		t.Errorf("Error() = %q", ce.Error())
	}
}
