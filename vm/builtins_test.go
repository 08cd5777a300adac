package vm

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

func newTestInterpreter(t *testing.T) (*Interpreter, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return NewInterpreter(WithOutput(&out)), &out
}

func strs(vals ...string) *Array {
	a := NewArray()
	for _, s := range vals {
		a.Append(NewString(s))
	}
	return a
}

func TestBuiltinResults(t *testing.T) {
	tests := []struct {
		name string
		args []Value
		want string
	}{
		{"count", []Value{NewList(Int(1), Int(2))}, "2"},
		{"count", []Value{NewList(NewList(Int(1), Int(2))), Int(1)}, "3"},
		{"SIZEOF", []Value{NewArray()}, "0"},
		{"strlen", []Value{NewString("héllo")}, "6"},
		{"strlen", []Value{Int(123)}, "3"},
		{"implode", []Value{NewString(","), NewList(Int(1), Int(2))}, `"1,2"`},
		{"implode", []Value{NewList(Int(1), Int(2)), NewString("-")}, `"1-2"`},
		{"join", []Value{strs("a", "b")}, `"ab"`},
		{"explode", []Value{NewString(","), NewString("a,b,,c")}, `array(0 => "a", 1 => "b", 2 => "", 3 => "c")`},
		{"explode", []Value{NewString(","), NewString("a,b,c"), Int(2)}, `array(0 => "a", 1 => "b,c")`},
		{"explode", []Value{NewString(","), NewString("a,b,c"), Int(-1)}, `array(0 => "a", 1 => "b")`},
		{"str_repeat", []Value{NewString("ab"), Int(3)}, `"ababab"`},
		{"strtoupper", []Value{NewString("aBc")}, `"ABC"`},
		{"strtolower", []Value{NewString("aBc")}, `"abc"`},
		{"range", []Value{Int(1), Int(4), Int(2)}, "array(0 => 1, 1 => 3)"},
		{"range", []Value{Int(3), Int(1)}, "array(0 => 3, 1 => 2, 2 => 1)"},
		{"range", []Value{NewString("a"), NewString("c")}, `array(0 => "a", 1 => "b", 2 => "c")`},
		{"range", []Value{Float(0), Float(1), Float(0.5)}, "array(0 => 0, 1 => 0.5, 2 => 1)"},
		{"range", []Value{Int(math.MaxInt64 - 1), Int(math.MaxInt64)}, "array(0 => 9223372036854775806, 1 => 9223372036854775807)"},
		{"range", []Value{Int(math.MinInt64 + 1), Int(math.MinInt64)}, "array(0 => -9223372036854775807, 1 => -9223372036854775808)"},
		{"range", []Value{Int(math.MinInt64), Int(math.MaxInt64), Int(math.MaxInt64)}, "array(0 => -9223372036854775808, 1 => -1, 2 => 9223372036854775806)"},
		{"array_keys", []Value{NewArrayFromPairs([]Key{StrKey("x"), IntKey(4)}, []Value{Int(1), Int(2)})}, `array(0 => "x", 1 => 4)`},
		{"array_values", []Value{NewArrayFromPairs([]Key{StrKey("x"), IntKey(4)}, []Value{Int(1), Int(2)})}, "array(0 => 1, 1 => 2)"},
		{"array_key_exists", []Value{NewString("1"), NewList(Int(0), Null)}, "true"},
		{"array_key_exists", []Value{Int(2), NewList(Int(0))}, "false"},
		{"in_array", []Value{NewString("1"), NewList(Int(1))}, "true"},
		{"in_array", []Value{NewString("1"), NewList(Int(1)), True}, "false"},
		{
			"array_merge",
			[]Value{
				NewArrayFromPairs([]Key{StrKey("a"), IntKey(5)}, []Value{Int(1), Int(2)}),
				NewArrayFromPairs([]Key{StrKey("a"), IntKey(9)}, []Value{Int(3), Int(4)}),
			},
			`array("a" => 3, 0 => 2, 1 => 4)`,
		},
		{
			"array_diff_key",
			[]Value{
				NewArrayFromPairs([]Key{StrKey("a"), StrKey("b"), StrKey("c")}, []Value{Int(1), Int(2), Int(3)}),
				NewArrayFromPairs([]Key{StrKey("b")}, []Value{Int(0)}),
			},
			`array("a" => 1, "c" => 3)`,
		},
		{"is_int", []Value{Int(1)}, "true"},
		{"is_int", []Value{NewString("1")}, "false"},
		{"is_numeric", []Value{NewString("1e3")}, "true"},
		{"is_numeric", []Value{NewString("1e")}, "false"},
		{"is_null", []Value{Null}, "true"},
		{"gettype", []Value{Float(1)}, `"double"`},
		{"intval", []Value{NewString("42abc")}, "42"},
		{"intval", []Value{NewString("ff"), Int(16)}, "255"},
		{"floatval", []Value{NewString("1.5x")}, "1.5"},
		{"strval", []Value{Float(0.1)}, `"0.1"`},
		{"abs", []Value{Int(-4)}, "4"},
		{"abs", []Value{NewString("-1.5")}, "1.5"},
		{"max", []Value{Int(1), Int(5), Int(3)}, "5"},
		{"max", []Value{NewList(Int(1), Float(7.5))}, "7.5"},
		{"min", []Value{Int(2), NewString("1")}, `"1"`},
		{"print_r", []Value{NewList(Int(1)), True}, `"Array\n(\n    [0] => 1\n)\n"`},
	}
	for _, tc := range tests {
		interp, _ := newTestInterpreter(t)
		got, err := interp.Call(tc.name, tc.args...)
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if r := ReprConst(got); r != tc.want {
			t.Errorf("%s(%d args) = %s, want %s", tc.name, len(tc.args), r, tc.want)
		}
	}
}

func TestBuiltinWarnings(t *testing.T) {
	tests := []struct {
		name string
		args []Value
		want string
	}{
		{"count", []Value{Int(1)}, "count(): Parameter must be an array"},
		{"explode", []Value{NewString(""), NewString("a")}, "explode(): Empty delimiter"},
		{"array_keys", []Value{Int(1)}, "array_keys() expects parameter 1 to be array, integer given"},
		{"max", []Value{NewArray()}, "max(): Array must contain at least one element"},
		{"str_repeat", []Value{NewString("a"), Int(-1)}, "str_repeat(): Second argument"},
		{"range", []Value{Int(0), Int(math.MaxInt64)}, "range(): The supplied range exceeds the maximum array size"},
		{"range", []Value{Float(0), Float(1e300), Float(1)}, "range(): The supplied range exceeds the maximum array size"},
		{"constant", []Value{NewString("NOPE")}, "Couldn't find constant NOPE"},
	}
	for _, tc := range tests {
		interp, _ := newTestInterpreter(t)
		if _, err := interp.Call(tc.name, tc.args...); err != nil {
			t.Errorf("%s: warnings are not fatal, got %v", tc.name, err)
			continue
		}
		notices := interp.Notices()
		if len(notices) != 1 || notices[0].Level != LevelWarning {
			t.Errorf("%s: notices = %v", tc.name, notices)
			continue
		}
		if !strings.Contains(notices[0].Msg, tc.want) {
			t.Errorf("%s: warning %q, want %q", tc.name, notices[0].Msg, tc.want)
		}
	}
}

func TestBuiltinArity(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	tests := []struct {
		name string
		args []Value
		want string
	}{
		{"strlen", nil, "strlen() expects exactly 1 parameter, 0 given"},
		{"count", []Value{Int(1), Int(2), Int(3)}, "count() expects at most 2 parameters, 3 given"},
		{"explode", []Value{Int(1)}, "explode() expects at least 2 parameters, 1 given"},
	}
	for _, tc := range tests {
		_, err := interp.Call(tc.name, tc.args...)
		e, ok := err.(*Error)
		if !ok || e.Kind != ArgumentError || e.Msg != tc.want {
			t.Errorf("%s: err = %v, want ArgumentError %q", tc.name, err, tc.want)
		}
	}
}

func TestBuiltinByRefRequiresVariable(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	_, err := interp.Call("array_push", NewArray(), Int(1))
	if err == nil || !strings.Contains(err.Error(), "Only variables can be passed by reference") {
		t.Errorf("err = %v", err)
	}
}

func TestBuiltinRefArgs(t *testing.T) {
	if refs, ok := BuiltinRefArgs("ARRAY_PUSH"); !ok || len(refs) != 1 || refs[0] != 0 {
		t.Errorf("array_push refs = %v %v", refs, ok)
	}
	if refs, ok := BuiltinRefArgs("strlen"); !ok || len(refs) != 0 {
		t.Errorf("strlen refs = %v %v", refs, ok)
	}
	if _, ok := BuiltinRefArgs("no_such_fn"); ok {
		t.Error("unknown names are not core builtins")
	}
}

func TestBuiltinOutput(t *testing.T) {
	interp, out := newTestInterpreter(t)
	if _, err := interp.Call("var_dump", NewArrayFromPairs(
		[]Key{StrKey("k"), IntKey(0)},
		[]Value{NewString("v"), NewList(True, Float(1.5), Null)},
	)); err != nil {
		t.Fatal(err)
	}
	want := `array(2) {
  ["k"]=>
  string(1) "v"
  [0]=>
  array(3) {
    [0]=>
    bool(true)
    [1]=>
    float(1.5)
    [2]=>
    NULL
  }
}
`
	if out.String() != want {
		t.Errorf("var_dump output:\n%s\nwant:\n%s", out, want)
	}

	out.Reset()
	if _, err := interp.Call("print_r", NewList(NewList(Int(1)))); err != nil {
		t.Fatal(err)
	}
	want = "Array\n(\n    [0] => Array\n        (\n            [0] => 1\n        )\n\n)\n"
	if out.String() != want {
		t.Errorf("print_r output %q, want %q", out, want)
	}
}

func TestRegisterBuiltin(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	interp.RegisterBuiltin("Twice", 1, func(i *Interpreter, args []Ref) (Value, error) {
		return Mul(args[0].Deref(), Int(2))
	})
	v, err := interp.Call("twice", Int(21))
	if err != nil || v != Int(42) {
		t.Errorf("twice(21) = %v, %v", v, err)
	}
	if _, ok := interp.Builtin("TWICE"); !ok {
		t.Error("builtin lookup should ignore case")
	}
}

func TestDefineAndConstants(t *testing.T) {
	interp, _ := newTestInterpreter(t)
	if v, _ := interp.Call("define", NewString("X"), Int(1)); v != True {
		t.Errorf("define = %v", v)
	}
	if v, _ := interp.Call("define", NewString("X"), Int(2)); v != False {
		t.Errorf("redefine = %v", v)
	}
	if v, _ := interp.Call("defined", NewString("X")); v != True {
		t.Errorf("defined = %v", v)
	}
	if v, ok := interp.Constant("X"); !ok || v != Int(1) {
		t.Errorf("X = %v", v)
	}
	if v, ok := interp.Constant("PHP_INT_SIZE"); !ok || v != Int(8) {
		t.Errorf("PHP_INT_SIZE = %v", v)
	}
	if v, _ := interp.Call("define", NewString("A"), NewArray()); v != False {
		t.Errorf("array constant = %v", v)
	}
}
