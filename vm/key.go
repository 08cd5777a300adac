package vm

import (
	"strconv"
)

// Key is a normalized array key. Strings that spell a canonical decimal
// integer become int keys, so "7" and 7 address the same element.
type Key struct {
	s   string
	i   int64
	str bool
}

// IntKey returns an integer key.
func IntKey(i int64) Key {
	return Key{i: i}
}

// StrKey returns the key for s, normalizing canonical integers.
func StrKey(s string) Key {
	if i, ok := canonicalInt(s); ok {
		return Key{i: i}
	}
	return Key{s: s, str: true}
}

// IsInt reports whether k is an integer key.
func (k Key) IsInt() bool { return !k.str }

// Int returns the integer value of an int key.
func (k Key) Int() int64 { return k.i }

// String returns the key as PHP would print it.
func (k Key) String() string {
	if k.str {
		return k.s
	}
	return strconv.FormatInt(k.i, 10)
}

// Value returns the key as a runtime value.
func (k Key) Value() Value {
	if k.str {
		return NewString(k.s)
	}
	return Int(k.i)
}

// canonicalInt accepts an optional minus sign followed by "0" or a digit
// run without a leading zero, fitting in 64 bits. "-0" is not canonical.
func canonicalInt(s string) (int64, bool) {
	n := len(s)
	if n == 0 || n > 20 {
		return 0, false
	}
	i := 0
	if s[0] == '-' {
		i = 1
		if n == 1 {
			return 0, false
		}
	}
	if s[i] == '0' {
		if n == i+1 && i == 0 {
			return 0, true
		}
		return 0, false
	}
	for j := i; j < n; j++ {
		if s[j] < '0' || s[j] > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// KeyOf converts a value used as an array offset into a Key.
func KeyOf(v Value) (Key, error) {
	switch x := v.(type) {
	case nil, nullValue:
		return Key{s: "", str: true}, nil
	case Int:
		return IntKey(int64(x)), nil
	case Bool:
		if x {
			return IntKey(1), nil
		}
		return IntKey(0), nil
	case Float:
		return IntKey(FloatToInt(float64(x))), nil
	case *Str:
		return StrKey(x.String()), nil
	}
	return Key{}, newError(TypeError, "Illegal offset type")
}
