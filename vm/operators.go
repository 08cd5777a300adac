package vm

import (
	"errors"
	"math"
	"strings"
)

// ErrDivisionByZero is returned by Div and Mod. The VM reports it as a
// warning and continues with false.
var ErrDivisionByZero = errors.New("Division by zero")

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

// commonNumbers coerces both operands through ToNumber and widens them to
// floats when either side is a float.
func commonNumbers(a, b Value) (x, y Value, isFloat bool) {
	x, y = ToNumber(a), ToNumber(b)
	_, xf := x.(Float)
	_, yf := y.(Float)
	if xf || yf {
		return Float(ToFloat(x)), Float(ToFloat(y)), true
	}
	return x, y, false
}

func unsupported(op string, a, b Value) error {
	return newError(TypeError, "Unsupported operand types: %s %s %s", TypeName(a), op, TypeName(b))
}

// Add implements +. Arrays are merged by key union.
func Add(a, b Value) (Value, error) {
	if x, ok := a.(*Array); ok {
		y, ok := b.(*Array)
		if !ok {
			return nil, unsupported("+", a, b)
		}
		return arrayUnion(x, y), nil
	}
	if _, ok := b.(*Array); ok {
		return nil, unsupported("+", a, b)
	}
	if x, ok := a.(Int); ok {
		if y, ok := b.(Int); ok {
			return addInt(int64(x), int64(y)), nil
		}
	}
	x, y, isFloat := commonNumbers(a, b)
	if isFloat {
		return x.(Float) + y.(Float), nil
	}
	return addInt(int64(x.(Int)), int64(y.(Int))), nil
}

func addInt(a, b int64) Value {
	r := a + b
	if (a > 0 && b > 0 && r < 0) || (a < 0 && b < 0 && r >= 0) {
		return Float(float64(a) + float64(b))
	}
	return Int(r)
}

// Sub implements -.
func Sub(a, b Value) (Value, error) {
	if isArray(a) || isArray(b) {
		return nil, unsupported("-", a, b)
	}
	x, y, isFloat := commonNumbers(a, b)
	if isFloat {
		return x.(Float) - y.(Float), nil
	}
	i, j := int64(x.(Int)), int64(y.(Int))
	r := i - j
	if (i >= 0 && j < 0 && r < 0) || (i < 0 && j > 0 && r >= 0) {
		return Float(float64(i) - float64(j)), nil
	}
	return Int(r), nil
}

// Mul implements *.
func Mul(a, b Value) (Value, error) {
	if isArray(a) || isArray(b) {
		return nil, unsupported("*", a, b)
	}
	x, y, isFloat := commonNumbers(a, b)
	if isFloat {
		return x.(Float) * y.(Float), nil
	}
	i, j := int64(x.(Int)), int64(y.(Int))
	if i == 0 || j == 0 {
		return Int(0), nil
	}
	r := i * j
	if r/j != i || (i == -1 && j == math.MinInt64) || (j == -1 && i == math.MinInt64) {
		return Float(float64(i) * float64(j)), nil
	}
	return Int(r), nil
}

// Div implements /. The result is an Int when the division is exact.
func Div(a, b Value) (Value, error) {
	if isArray(a) || isArray(b) {
		return nil, unsupported("/", a, b)
	}
	x, y, isFloat := commonNumbers(a, b)
	if isFloat {
		if y.(Float) == 0 {
			return nil, ErrDivisionByZero
		}
		return x.(Float) / y.(Float), nil
	}
	i, j := int64(x.(Int)), int64(y.(Int))
	if j == 0 {
		return nil, ErrDivisionByZero
	}
	if j == -1 && i == math.MinInt64 {
		return Float(-float64(i)), nil
	}
	if i%j == 0 {
		return Int(i / j), nil
	}
	return Float(float64(i) / float64(j)), nil
}

// Mod implements %, which always works on integers.
func Mod(a, b Value) (Value, error) {
	if isArray(a) || isArray(b) {
		return nil, unsupported("%", a, b)
	}
	i, j := ToInt(a), ToInt(b)
	if j == 0 {
		return nil, ErrDivisionByZero
	}
	if j == -1 {
		return Int(0), nil
	}
	return Int(i % j), nil
}

// Neg implements unary minus.
func Neg(a Value) (Value, error) {
	return Sub(Int(0), a)
}

// Bitwise applies an integer bitwise operator.
func Bitwise(op byte, a, b Value) (Value, error) {
	if isArray(a) || isArray(b) {
		return nil, unsupported(string(op), a, b)
	}
	i, j := ToInt(a), ToInt(b)
	switch op {
	case '&':
		return Int(i & j), nil
	case '|':
		return Int(i | j), nil
	case '^':
		return Int(i ^ j), nil
	case '<':
		if j < 0 {
			return nil, newError(RuntimeError, "Bit shift by negative number")
		}
		if j >= 64 {
			return Int(0), nil
		}
		return Int(i << uint(j)), nil
	case '>':
		if j < 0 {
			return nil, newError(RuntimeError, "Bit shift by negative number")
		}
		if j >= 64 {
			if i < 0 {
				return Int(-1), nil
			}
			return Int(0), nil
		}
		return Int(i >> uint(j)), nil
	}
	return nil, newError(InternalError, "unknown bitwise operator %q", op)
}

// ConcatValues implements the . operator.
func ConcatValues(a, b Value) *Str {
	return Concat(asStr(a), asStr(b))
}

func asStr(v Value) *Str {
	if s, ok := v.(*Str); ok {
		return s
	}
	return NewString(ToString(v))
}

func isArray(v Value) bool {
	_, ok := v.(*Array)
	return ok
}

// arrayUnion returns a copy of a extended with the keys of b that a lacks.
func arrayUnion(a, b *Array) *Array {
	r := a.Copy()
	for k, v := range b.All() {
		if !r.Contains(k) {
			r.Set(k, CopyForStore(v))
		}
	}
	return r
}

// ---------------------------------------------------------------------------
// Increment / decrement
// ---------------------------------------------------------------------------

// Increment implements ++.
func Increment(v Value) Value {
	switch x := v.(type) {
	case nil, nullValue:
		return Int(1)
	case Int:
		return addInt(int64(x), 1)
	case Float:
		return x + 1
	case *Str:
		s := x.String()
		if s == "" {
			return NewString("1")
		}
		if n, fully := ConvertStringToNumber(s); fully {
			r, _ := Add(n, Int(1))
			return r
		}
		return NewString(IncrementString(s))
	}
	return v
}

// Decrement implements --. Null and non-numeric strings are unchanged.
func Decrement(v Value) Value {
	switch x := v.(type) {
	case nil, nullValue:
		return Null
	case Int:
		r, _ := Sub(x, Int(1))
		return r
	case Float:
		return x - 1
	case *Str:
		if n, fully := ConvertStringToNumber(x.String()); fully {
			r, _ := Sub(n, Int(1))
			return r
		}
		return x
	}
	return v
}

// ---------------------------------------------------------------------------
// Comparison
// ---------------------------------------------------------------------------

// StrictEquals implements ===: same kind and same value. Arrays must hold
// the same pairs in the same order.
func StrictEquals(a, b Value) bool {
	if a == nil {
		a = Null
	}
	if b == nil {
		b = Null
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case nullValue:
		return true
	case Bool:
		return x == b.(Bool)
	case Int:
		return x == b.(Int)
	case Float:
		return x == b.(Float)
	case *Str:
		return x.String() == b.(*Str).String()
	case *Array:
		return strictArrays(x, b.(*Array))
	}
	return false
}

func strictArrays(a, b *Array) bool {
	if a == b {
		return true
	}
	if a.Len() != b.Len() {
		return false
	}
	ka, va := a.Keys(), a.Values()
	kb, vb := b.Keys(), b.Values()
	for i := range ka {
		if ka[i] != kb[i] || !StrictEquals(va[i], vb[i]) {
			return false
		}
	}
	return true
}

// LooseEquals implements ==.
func LooseEquals(a, b Value) bool {
	return Compare(a, b) == 0
}

// Compare orders a and b using loose comparison rules and returns -1, 0
// or 1. Unordered pairs (NaN, arrays with disjoint keys) compare as 1.
func Compare(a, b Value) int {
	if a == nil {
		a = Null
	}
	if b == nil {
		b = Null
	}
	switch x := a.(type) {
	case nullValue:
		switch y := b.(type) {
		case nullValue:
			return 0
		case *Str:
			return strings.Compare("", y.String())
		}
		return cmpBool(false, Truthy(b))
	case Bool:
		return cmpBool(bool(x), Truthy(b))
	}
	switch y := b.(type) {
	case nullValue:
		if s, ok := a.(*Str); ok {
			return strings.Compare(s.String(), "")
		}
		return cmpBool(Truthy(a), false)
	case Bool:
		return cmpBool(Truthy(a), bool(y))
	}

	xa, aIsArr := a.(*Array)
	ya, bIsArr := b.(*Array)
	switch {
	case aIsArr && bIsArr:
		return compareArrays(xa, ya)
	case aIsArr:
		return 1
	case bIsArr:
		return -1
	}

	if xs, ok := a.(*Str); ok {
		if ys, ok := b.(*Str); ok {
			return compareStrings(xs.String(), ys.String())
		}
	}
	return compareNumbers(ToNumber(a), ToNumber(b))
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	}
	return -1
}

// compareStrings compares numerically when both sides are numeric
// strings, otherwise bytewise.
func compareStrings(a, b string) int {
	na, fa := ConvertStringToNumber(a)
	nb, fb := ConvertStringToNumber(b)
	if fa && fb {
		return compareNumbers(na, nb)
	}
	return strings.Compare(a, b)
}

func compareNumbers(a, b Value) int {
	if x, ok := a.(Int); ok {
		if y, ok := b.(Int); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	x, y := ToFloat(a), ToFloat(b)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	case x == y:
		return 0
	}
	return 1
}

func compareArrays(a, b *Array) int {
	if a.Len() != b.Len() {
		if a.Len() < b.Len() {
			return -1
		}
		return 1
	}
	for k, v := range a.All() {
		w, ok := b.Get(k)
		if !ok {
			return 1
		}
		if c := Compare(v, w); c != 0 {
			return c
		}
	}
	return 0
}
