package vm

import (
	"math"
	"strconv"
	"strings"
)

// coreBuiltins is the native function library every interpreter starts
// with.
var coreBuiltins = []*Builtin{
	{Name: "count", MinArgs: 1, MaxArgs: 2, Fn: biCount},
	{Name: "sizeof", MinArgs: 1, MaxArgs: 2, Fn: biCount},
	{Name: "strlen", MinArgs: 1, MaxArgs: 1, Fn: biStrlen},
	{Name: "array_push", MinArgs: 1, MaxArgs: -1, RefArgs: []int{0}, Fn: biArrayPush},
	{Name: "array_pop", MinArgs: 1, MaxArgs: 1, RefArgs: []int{0}, Fn: biArrayPop},
	{Name: "array_keys", MinArgs: 1, MaxArgs: 1, Fn: biArrayKeys},
	{Name: "array_values", MinArgs: 1, MaxArgs: 1, Fn: biArrayValues},
	{Name: "array_key_exists", MinArgs: 2, MaxArgs: 2, Fn: biArrayKeyExists},
	{Name: "in_array", MinArgs: 2, MaxArgs: 3, Fn: biInArray},
	{Name: "array_merge", MinArgs: 0, MaxArgs: -1, Fn: biArrayMerge},
	{Name: "array_diff_key", MinArgs: 1, MaxArgs: -1, Fn: biArrayDiffKey},
	{Name: "implode", MinArgs: 1, MaxArgs: 2, Fn: biImplode},
	{Name: "join", MinArgs: 1, MaxArgs: 2, Fn: biImplode},
	{Name: "explode", MinArgs: 2, MaxArgs: 3, Fn: biExplode},
	{Name: "str_repeat", MinArgs: 2, MaxArgs: 2, Fn: biStrRepeat},
	{Name: "strtoupper", MinArgs: 1, MaxArgs: 1, Fn: biStrToUpper},
	{Name: "strtolower", MinArgs: 1, MaxArgs: 1, Fn: biStrToLower},
	{Name: "range", MinArgs: 2, MaxArgs: 3, Fn: biRange},
	{Name: "is_int", MinArgs: 1, MaxArgs: 1, Fn: isKind(KindInt)},
	{Name: "is_integer", MinArgs: 1, MaxArgs: 1, Fn: isKind(KindInt)},
	{Name: "is_float", MinArgs: 1, MaxArgs: 1, Fn: isKind(KindFloat)},
	{Name: "is_string", MinArgs: 1, MaxArgs: 1, Fn: isKind(KindString)},
	{Name: "is_bool", MinArgs: 1, MaxArgs: 1, Fn: isKind(KindBool)},
	{Name: "is_array", MinArgs: 1, MaxArgs: 1, Fn: isKind(KindArray)},
	{Name: "is_null", MinArgs: 1, MaxArgs: 1, Fn: isKind(KindNull)},
	{Name: "is_numeric", MinArgs: 1, MaxArgs: 1, Fn: biIsNumeric},
	{Name: "gettype", MinArgs: 1, MaxArgs: 1, Fn: biGettype},
	{Name: "intval", MinArgs: 1, MaxArgs: 2, Fn: biIntval},
	{Name: "floatval", MinArgs: 1, MaxArgs: 1, Fn: biFloatval},
	{Name: "strval", MinArgs: 1, MaxArgs: 1, Fn: biStrval},
	{Name: "var_dump", MinArgs: 1, MaxArgs: -1, Fn: biVarDump},
	{Name: "print_r", MinArgs: 1, MaxArgs: 2, Fn: biPrintR},
	{Name: "define", MinArgs: 2, MaxArgs: 3, Fn: biDefine},
	{Name: "defined", MinArgs: 1, MaxArgs: 1, Fn: biDefined},
	{Name: "constant", MinArgs: 1, MaxArgs: 1, Fn: biConstant},
	{Name: "abs", MinArgs: 1, MaxArgs: 1, Fn: biAbs},
	{Name: "max", MinArgs: 1, MaxArgs: -1, Fn: biMax},
	{Name: "min", MinArgs: 1, MaxArgs: -1, Fn: biMin},
}

func registerCoreBuiltins(i *Interpreter) {
	for _, b := range coreBuiltins {
		i.addBuiltin(b)
	}
}

// BuiltinRefArgs reports which parameters of a core builtin are taken by
// reference. ok is false for names that are not core builtins.
func BuiltinRefArgs(name string) (refs []int, ok bool) {
	name = strings.ToLower(name)
	for _, b := range coreBuiltins {
		if b.Name == name {
			return b.RefArgs, true
		}
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

func arg(args []Ref, n int) Value {
	if n >= len(args) {
		return Null
	}
	return args[n].Deref()
}

// arrayArg returns argument n as an array, reporting a warning when it is
// not one.
func (i *Interpreter) arrayArg(fn string, args []Ref, n int) (*Array, error) {
	if a, ok := arg(args, n).(*Array); ok {
		return a, nil
	}
	return nil, i.warning("%s() expects parameter %d to be array, %s given", fn, n+1, TypeName(arg(args, n)))
}

// refArray resolves a by-reference argument to the array it holds.
func refArray(fn string, r Ref) (*Array, error) {
	v, _ := lookupRef(r)
	if _, ok := v.(*Array); !ok {
		return nil, newError(TypeError, "%s() expects parameter 1 to be array, %s given", fn, TypeName(v))
	}
	t, err := asTarget(r)
	if err != nil {
		return nil, err
	}
	return t.container()
}

// ---------------------------------------------------------------------------
// Arrays
// ---------------------------------------------------------------------------

func biCount(i *Interpreter, args []Ref) (Value, error) {
	switch v := arg(args, 0).(type) {
	case *Array:
		if ToInt(arg(args, 1)) == 1 {
			return Int(countRecursive(v)), nil
		}
		return Int(v.Len()), nil
	case nullValue:
		return Int(0), i.warning("count(): Parameter must be an array or an object that implements Countable")
	}
	return Int(1), i.warning("count(): Parameter must be an array or an object that implements Countable")
}

func countRecursive(a *Array) int {
	n := 0
	for _, v := range a.All() {
		n++
		if sub, ok := v.(*Array); ok {
			n += countRecursive(sub)
		}
	}
	return n
}

func biArrayPush(i *Interpreter, args []Ref) (Value, error) {
	a, err := refArray("array_push", args[0])
	if err != nil {
		return nil, err
	}
	for _, r := range args[1:] {
		if !a.CanAppend() {
			return False, i.warning("array_push(): %v", ErrArrayFull)
		}
		a.Append(StoreValue(r))
	}
	return Int(a.Len()), nil
}

func biArrayPop(i *Interpreter, args []Ref) (Value, error) {
	if v, _ := lookupRef(args[0]); IsNull(v) {
		return Null, nil
	}
	a, err := refArray("array_pop", args[0])
	if err != nil {
		return nil, err
	}
	v, ok := a.Pop()
	if !ok {
		return Null, nil
	}
	return v, nil
}

func biArrayKeys(i *Interpreter, args []Ref) (Value, error) {
	a, err := i.arrayArg("array_keys", args, 0)
	if a == nil {
		return Null, err
	}
	out := NewArray()
	for _, k := range a.Keys() {
		out.Append(k.Value())
	}
	return out, nil
}

func biArrayValues(i *Interpreter, args []Ref) (Value, error) {
	a, err := i.arrayArg("array_values", args, 0)
	if a == nil {
		return Null, err
	}
	out := NewArray()
	for _, v := range a.All() {
		out.Append(CopyForStore(v))
	}
	return out, nil
}

func biArrayKeyExists(i *Interpreter, args []Ref) (Value, error) {
	a, err := i.arrayArg("array_key_exists", args, 1)
	if a == nil {
		return False, err
	}
	k, err := KeyOf(arg(args, 0))
	if err != nil {
		return False, i.warning("array_key_exists(): The first argument should be either a string or an integer")
	}
	return Bool(a.Contains(k)), nil
}

func biInArray(i *Interpreter, args []Ref) (Value, error) {
	a, err := i.arrayArg("in_array", args, 1)
	if a == nil {
		return False, err
	}
	needle := arg(args, 0)
	strict := Truthy(arg(args, 2))
	for _, v := range a.All() {
		if strict && StrictEquals(needle, v) || !strict && LooseEquals(needle, v) {
			return True, nil
		}
	}
	return False, nil
}

// biArrayMerge renumbers integer keys and lets later string keys win.
func biArrayMerge(i *Interpreter, args []Ref) (Value, error) {
	out := NewArray()
	for n := range args {
		a, err := i.arrayArg("array_merge", args, n)
		if a == nil {
			return Null, err
		}
		for k, v := range a.All() {
			if k.IsInt() {
				out.Append(CopyForStore(v))
			} else {
				out.Set(k, CopyForStore(v))
			}
		}
	}
	return out, nil
}

// biArrayDiffKey returns the entries of the first array whose keys appear
// in none of the others. Any argument that is not an array yields null.
func biArrayDiffKey(i *Interpreter, args []Ref) (Value, error) {
	arrays := make([]*Array, len(args))
	for n := range args {
		a, ok := arg(args, n).(*Array)
		if !ok {
			return Null, i.notice("array_diff_key(): Argument #%d is not an array", n+1)
		}
		arrays[n] = a
	}
	out := NewArray()
	for k, v := range arrays[0].All() {
		found := false
		for _, other := range arrays[1:] {
			if other.Contains(k) {
				found = true
				break
			}
		}
		if !found {
			out.Set(k, CopyForStore(v))
		}
	}
	return out, nil
}

// maxRangeElements bounds the arrays range() builds.
const maxRangeElements = 1 << 26

func biRange(i *Interpreter, args []Ref) (Value, error) {
	lo, hi := arg(args, 0), arg(args, 1)
	step := 1.0
	if len(args) > 2 {
		step = math.Abs(ToFloat(arg(args, 2)))
		if step == 0 {
			return False, i.warning("range(): step exceeds the specified range")
		}
	}
	out := NewArray()

	// Single letters produce a character range.
	ls, lok := lo.(*Str)
	hs, hok := hi.(*Str)
	if lok && hok && ls.Len() == 1 && hs.Len() == 1 && !IsNumericString(ls.String()) && !IsNumericString(hs.String()) {
		a, b := int(ls.Byte(0)), int(hs.Byte(0))
		st := max(int(step), 1)
		if a <= b {
			for c := a; c <= b; c += st {
				out.Append(NewString(string(rune(c))))
			}
		} else {
			for c := a; c >= b; c -= st {
				out.Append(NewString(string(rune(c))))
			}
		}
		return out, nil
	}

	l, h := ToNumber(lo), ToNumber(hi)
	_, lf := l.(Float)
	_, hf := h.(Float)
	if !lf && !hf && step == math.Trunc(step) {
		a, b := int64(l.(Int)), int64(h.(Int))
		st := uint64(math.MaxInt64)
		if step < math.MaxInt64 {
			st = uint64(step)
		}
		// The span is computed unsigned so extreme bounds cannot wrap.
		var span uint64
		if a <= b {
			span = uint64(b) - uint64(a)
		} else {
			span = uint64(a) - uint64(b)
		}
		n := span / st
		if n >= maxRangeElements {
			return False, i.warning("range(): The supplied range exceeds the maximum array size: start=%d end=%d", a, b)
		}
		for k := uint64(0); k <= n; k++ {
			if a <= b {
				out.Append(Int(a + int64(k*st)))
			} else {
				out.Append(Int(a - int64(k*st)))
			}
		}
		return out, nil
	}
	a, b := ToFloat(l), ToFloat(h)
	steps := math.Floor(math.Abs(b-a)/step + 1e-9)
	if math.IsNaN(steps) || steps >= maxRangeElements {
		return False, i.warning("range(): The supplied range exceeds the maximum array size: start=%s end=%s", FormatFloat(a), FormatFloat(b))
	}
	n := int(steps)
	for k := 0; k <= n; k++ {
		if a <= b {
			out.Append(Float(a + float64(k)*step))
		} else {
			out.Append(Float(a - float64(k)*step))
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

func biStrlen(i *Interpreter, args []Ref) (Value, error) {
	switch v := arg(args, 0).(type) {
	case *Str:
		return Int(v.Len()), nil
	case *Array:
		return Null, i.warning("strlen() expects parameter 1 to be string, array given")
	default:
		return Int(len(ToString(v))), nil
	}
}

func biImplode(i *Interpreter, args []Ref) (Value, error) {
	var glue Value = NewString("")
	pieces := arg(args, 0)
	if len(args) > 1 {
		glue, pieces = arg(args, 0), arg(args, 1)
		if _, ok := glue.(*Array); ok {
			glue, pieces = pieces, glue
		}
	}
	a, ok := pieces.(*Array)
	if !ok {
		return Null, i.warning("implode(): Invalid arguments passed")
	}
	sep, err := i.stringOf(glue)
	if err != nil {
		return nil, err
	}
	parts := make([]string, 0, a.Len())
	for _, v := range a.All() {
		s, err := i.stringOf(v)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	return NewString(strings.Join(parts, sep)), nil
}

func biExplode(i *Interpreter, args []Ref) (Value, error) {
	sep := ToString(arg(args, 0))
	s := ToString(arg(args, 1))
	if sep == "" {
		return False, i.warning("explode(): Empty delimiter")
	}
	limit := int64(math.MaxInt32)
	if len(args) > 2 {
		limit = ToInt(arg(args, 2))
	}
	if limit == 0 {
		limit = 1
	}
	var parts []string
	switch {
	case limit > 0:
		parts = strings.SplitN(s, sep, int(min(limit, math.MaxInt32)))
	default:
		parts = strings.Split(s, sep)
		drop := int(-limit)
		if drop >= len(parts) {
			parts = nil
		} else {
			parts = parts[:len(parts)-drop]
		}
	}
	out := NewArray()
	for _, p := range parts {
		out.Append(NewString(p))
	}
	return out, nil
}

func biStrRepeat(i *Interpreter, args []Ref) (Value, error) {
	n := ToInt(arg(args, 1))
	if n < 0 {
		return Null, i.warning("str_repeat(): Second argument has to be greater than or equal to 0")
	}
	return NewString(strings.Repeat(ToString(arg(args, 0)), int(n))), nil
}

func biStrToUpper(i *Interpreter, args []Ref) (Value, error) {
	return NewString(strings.ToUpper(ToString(arg(args, 0)))), nil
}

func biStrToLower(i *Interpreter, args []Ref) (Value, error) {
	return NewString(strings.ToLower(ToString(arg(args, 0)))), nil
}

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

func isKind(k Kind) BuiltinFunc {
	return func(i *Interpreter, args []Ref) (Value, error) {
		return Bool(arg(args, 0).Kind() == k), nil
	}
}

func biIsNumeric(i *Interpreter, args []Ref) (Value, error) {
	switch v := arg(args, 0).(type) {
	case Int, Float:
		return True, nil
	case *Str:
		return Bool(IsNumericString(v.String())), nil
	}
	return False, nil
}

func biGettype(i *Interpreter, args []Ref) (Value, error) {
	return NewString(TypeName(arg(args, 0))), nil
}

func biIntval(i *Interpreter, args []Ref) (Value, error) {
	v := arg(args, 0)
	if len(args) > 1 {
		if s, ok := v.(*Str); ok {
			base := ToInt(arg(args, 1))
			n, err := strconv.ParseInt(strings.TrimSpace(s.String()), int(base), 64)
			if err != nil {
				return Int(0), nil
			}
			return Int(n), nil
		}
	}
	return Int(ToInt(v)), nil
}

func biFloatval(i *Interpreter, args []Ref) (Value, error) {
	return Float(ToFloat(arg(args, 0))), nil
}

func biStrval(i *Interpreter, args []Ref) (Value, error) {
	s, err := i.stringOf(arg(args, 0))
	return NewString(s), err
}

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

func biVarDump(i *Interpreter, args []Ref) (Value, error) {
	var b strings.Builder
	for n := range args {
		varDump(&b, arg(args, n), 0)
	}
	return Null, i.write(b.String())
}

func varDump(b *strings.Builder, v Value, indent int) {
	pad := strings.Repeat(" ", indent)
	switch x := v.(type) {
	case nullValue:
		b.WriteString(pad + "NULL\n")
	case Bool:
		b.WriteString(pad + "bool(" + strconv.FormatBool(bool(x)) + ")\n")
	case Int:
		b.WriteString(pad + "int(" + strconv.FormatInt(int64(x), 10) + ")\n")
	case Float:
		b.WriteString(pad + "float(" + FormatFloat(float64(x)) + ")\n")
	case *Str:
		s := x.String()
		b.WriteString(pad + "string(" + strconv.Itoa(len(s)) + ") \"" + s + "\"\n")
	case *Array:
		b.WriteString(pad + "array(" + strconv.Itoa(x.Len()) + ") {\n")
		for k, e := range x.All() {
			if k.IsInt() {
				b.WriteString(pad + "  [" + strconv.FormatInt(k.Int(), 10) + "]=>\n")
			} else {
				b.WriteString(pad + "  [\"" + k.String() + "\"]=>\n")
			}
			varDump(b, e, indent+2)
		}
		b.WriteString(pad + "}\n")
	}
}

func biPrintR(i *Interpreter, args []Ref) (Value, error) {
	var b strings.Builder
	printR(&b, arg(args, 0), 0)
	if Truthy(arg(args, 1)) {
		return NewString(b.String()), nil
	}
	return True, i.write(b.String())
}

func printR(b *strings.Builder, v Value, indent int) {
	a, ok := v.(*Array)
	if !ok {
		b.WriteString(ToString(v))
		return
	}
	pad := strings.Repeat(" ", indent)
	b.WriteString("Array\n" + pad + "(\n")
	for k, e := range a.All() {
		b.WriteString(pad + "    [" + k.String() + "] => ")
		printR(b, e, indent+8)
		b.WriteString("\n")
	}
	b.WriteString(pad + ")\n")
}

// ---------------------------------------------------------------------------
// Constants
// ---------------------------------------------------------------------------

func biDefine(i *Interpreter, args []Ref) (Value, error) {
	name := ToString(arg(args, 0))
	v := arg(args, 1)
	if _, ok := v.(*Array); ok {
		return False, i.warning("Constants may only evaluate to scalar values")
	}
	if !i.Define(name, v) {
		return False, i.notice("Constant %s already defined", name)
	}
	return True, nil
}

func biDefined(i *Interpreter, args []Ref) (Value, error) {
	_, ok := i.Constant(ToString(arg(args, 0)))
	return Bool(ok), nil
}

func biConstant(i *Interpreter, args []Ref) (Value, error) {
	name := ToString(arg(args, 0))
	if v, ok := i.Constant(name); ok {
		return v, nil
	}
	return Null, i.warning("constant(): Couldn't find constant %s", name)
}

// ---------------------------------------------------------------------------
// Math
// ---------------------------------------------------------------------------

func biAbs(i *Interpreter, args []Ref) (Value, error) {
	switch v := ToNumber(arg(args, 0)).(type) {
	case Int:
		if v == math.MinInt64 {
			return Float(-float64(v)), nil
		}
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case Float:
		return Float(math.Abs(float64(v))), nil
	}
	return Int(0), nil
}

func biMax(i *Interpreter, args []Ref) (Value, error) {
	return extreme(i, "max", args, 1)
}

func biMin(i *Interpreter, args []Ref) (Value, error) {
	return extreme(i, "min", args, -1)
}

// extreme returns the argument, or element of a single array argument,
// that compares furthest in direction dir.
func extreme(i *Interpreter, fn string, args []Ref, dir int) (Value, error) {
	var vals []Value
	if len(args) == 1 {
		a, ok := arg(args, 0).(*Array)
		if !ok {
			return False, i.warning("%s(): When only one parameter is given, it must be an array", fn)
		}
		if a.Len() == 0 {
			return False, i.warning("%s(): Array must contain at least one element", fn)
		}
		vals = a.Values()
	} else {
		for n := range args {
			vals = append(vals, arg(args, n))
		}
	}
	best := vals[0]
	for _, v := range vals[1:] {
		if Compare(v, best)*dir > 0 {
			best = v
		}
	}
	return best, nil
}
