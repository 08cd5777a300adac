package vm

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// String to number
// ---------------------------------------------------------------------------

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func hexDigit(c byte) (int64, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int64(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int64(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int64(c-'A') + 10, true
	}
	return 0, false
}

// ConvertStringToNumber scans s the way arithmetic coerces strings. The
// result is an Int or a Float. fully reports whether the whole string was
// consumed as a number.
//
// Leading whitespace and a sign are skipped. "0x" starts a hexadecimal
// literal, a "0" followed by digits starts an octal literal, anything else
// is decimal with optional fraction and exponent. A fraction or exponent
// forces a float, as does integer overflow.
func ConvertStringToNumber(s string) (v Value, fully bool) {
	i, n := 0, len(s)
	for i < n && isSpace(s[i]) {
		i++
	}
	start := i
	neg := false
	if i < n && (s[i] == '+' || s[i] == '-') {
		neg = s[i] == '-'
		i++
	}

	if i+1 < n && s[i] == '0' && (s[i+1] == 'x' || s[i+1] == 'X') {
		return scanRadix(s, i+2, 16, neg)
	}
	if i+1 < n && s[i] == '0' && isDigit(s[i+1]) {
		return scanRadix(s, i+1, 8, neg)
	}

	var acc int64
	isFloat := false
	digits := 0
	for i < n && isDigit(s[i]) {
		d := int64(s[i] - '0')
		if !isFloat && acc > (math.MaxInt64-d)/10 {
			isFloat = true
		}
		acc = acc*10 + d
		digits++
		i++
	}
	if i < n && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < n && isDigit(s[j]) {
			j++
			frac++
		}
		if digits > 0 || frac > 0 {
			isFloat = true
			digits += frac
			i = j
		}
	}
	if digits > 0 && i < n && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < n && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < n && isDigit(s[j]) {
			for j < n && isDigit(s[j]) {
				j++
			}
			isFloat = true
			i = j
		}
	}
	if digits == 0 {
		return Int(0), false
	}
	fully = i == n
	if isFloat {
		// The prefix is well formed, so the only possible error is a range
		// error, for which ParseFloat still returns ±Inf or 0.
		f, _ := strconv.ParseFloat(s[start:i], 64)
		return Float(f), fully
	}
	if neg {
		return Int(-acc), fully
	}
	return Int(acc), fully
}

// scanRadix parses hexadecimal or octal digits starting at i. Integer
// overflow switches to the float accumulator.
func scanRadix(s string, i int, base int64, neg bool) (Value, bool) {
	n := len(s)
	var acc int64
	facc := 0.0
	overflow := false
	digits := 0
	for i < n {
		d, ok := hexDigit(s[i])
		if !ok || d >= base {
			break
		}
		if !overflow && acc > (math.MaxInt64-d)/base {
			overflow = true
		}
		acc = acc*base + d
		facc = facc*float64(base) + float64(d)
		digits++
		i++
	}
	if digits == 0 {
		return Int(0), false
	}
	fully := i == n
	if overflow {
		if neg {
			facc = -facc
		}
		return Float(facc), fully
	}
	if neg {
		acc = -acc
	}
	return Int(acc), fully
}

// IsNumericString reports whether s is entirely a number.
func IsNumericString(s string) bool {
	_, fully := ConvertStringToNumber(s)
	return fully
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// ToNumber converts v to an Int or a Float.
func ToNumber(v Value) Value {
	switch x := v.(type) {
	case Int, Float:
		return x
	case Bool:
		if x {
			return Int(1)
		}
		return Int(0)
	case *Str:
		n, _ := ConvertStringToNumber(x.String())
		return n
	case *Array:
		if x.Len() > 0 {
			return Int(1)
		}
		return Int(0)
	}
	return Int(0)
}

// FloatToInt truncates f. NaN, infinities and out of range values become
// the minimum integer.
func FloatToInt(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= 9.223372036854775807e18 || f < -9.223372036854775808e18 {
		return math.MinInt64
	}
	return int64(f)
}

// ToInt converts v to an integer.
func ToInt(v Value) int64 {
	switch x := ToNumber(v).(type) {
	case Int:
		return int64(x)
	case Float:
		return FloatToInt(float64(x))
	}
	return 0
}

// ToFloat converts v to a float.
func ToFloat(v Value) float64 {
	switch x := ToNumber(v).(type) {
	case Int:
		return float64(x)
	case Float:
		return float64(x)
	}
	return 0
}

// ToString converts v to its string form. Arrays convert to "Array"; the
// VM reports a notice when that happens.
func ToString(v Value) string {
	switch x := v.(type) {
	case nil, nullValue:
		return ""
	case Bool:
		if x {
			return "1"
		}
		return ""
	case Int:
		return strconv.FormatInt(int64(x), 10)
	case Float:
		return FormatFloat(float64(x))
	case *Str:
		return x.String()
	case *Array:
		return "Array"
	}
	return ""
}

// FormatFloat renders f with 14 significant digits.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NAN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	case f == 0:
		if math.Signbit(f) {
			return "-0"
		}
		return "0"
	}
	s := strconv.FormatFloat(f, 'G', 14, 64)
	e := strings.IndexByte(s, 'E')
	if e < 0 {
		return s
	}
	mant, exp := s[:e], s[e+1:]
	if !strings.Contains(mant, ".") {
		mant += ".0"
	}
	sign := exp[:1]
	digits := strings.TrimLeft(exp[1:], "0")
	if digits == "" {
		digits = "0"
	}
	return mant + "E" + sign + digits
}
