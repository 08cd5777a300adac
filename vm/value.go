package vm

import "fmt"

// Kind identifies the variant of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
)

var kindNames = [...]string{
	KindNull:   "NULL",
	KindBool:   "boolean",
	KindInt:    "integer",
	KindFloat:  "double",
	KindString: "string",
	KindArray:  "array",
}

// String returns the name gettype() reports for the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Ref is anything the VM can read a Value out of: plain values, cells,
// references, array element views and frame variable handles.
type Ref interface {
	Deref() Value
}

// Value is a runtime value. The set of implementations is closed:
// Int, Float, Bool, Null, *Str and *Array. Operations that differ per
// variant are free functions that switch over the concrete type.
type Value interface {
	Ref
	Kind() Kind
	isValue()
}

// Int is a 64-bit signed integer value.
type Int int64

// Float is a double precision value.
type Float float64

// Bool is a boolean value.
type Bool bool

type nullValue struct{}

// Null is the single null value.
var Null Value = nullValue{}

// Predeclared booleans.
const (
	True  = Bool(true)
	False = Bool(false)
)

func (Int) Kind() Kind       { return KindInt }
func (Float) Kind() Kind     { return KindFloat }
func (Bool) Kind() Kind      { return KindBool }
func (nullValue) Kind() Kind { return KindNull }

func (v Int) Deref() Value       { return v }
func (v Float) Deref() Value     { return v }
func (v Bool) Deref() Value      { return v }
func (v nullValue) Deref() Value { return v }

func (Int) isValue()       {}
func (Float) isValue()     {}
func (Bool) isValue()      {}
func (nullValue) isValue() {}
func (*Str) isValue()      {}
func (*Array) isValue()    {}

// IsNull reports whether v is null. A nil interface counts as null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(nullValue)
	return ok
}

// TypeName returns the gettype() name of v.
func TypeName(v Value) string {
	if v == nil {
		return KindNull.String()
	}
	return v.Kind().String()
}

// NewString returns a constant string value.
func NewString(s string) *Str {
	return &Str{kind: strConstant, s: s}
}

// Truthy implements PHP boolean conversion.
func Truthy(v Value) bool {
	switch x := v.(type) {
	case nil, nullValue:
		return false
	case Bool:
		return bool(x)
	case Int:
		return x != 0
	case Float:
		return x != 0
	case *Str:
		n := x.Len()
		return !(n == 0 || (n == 1 && x.Byte(0) == '0'))
	case *Array:
		return x.Len() > 0
	}
	panic(fmt.Sprintf("vm: unknown value %T", v))
}

// CopyForStore returns the value to place in a new holder. Strings and
// arrays are logically copied (O(1) views); scalars are returned as is.
// A temporary array nothing else reads is handed over instead.
func CopyForStore(v Value) Value {
	switch x := v.(type) {
	case nil:
		return Null
	case *Array:
		if x.temp && x.views.len() == 0 {
			x.temp = false
			return x
		}
		return x.Copy()
	case *Str:
		return x.Copy()
	}
	return v
}

// StoreValue dereferences r and copies the result for storing elsewhere.
func StoreValue(r Ref) Value {
	return CopyForStore(r.Deref())
}
