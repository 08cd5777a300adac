package vm

import "strings"

// strKind selects the representation behind a Str.
type strKind uint8

const (
	strConstant strKind = iota // immutable Go string, freely shared
	strMutable                 // owned byte buffer, edited in place
	strCopy                    // read-only alias of a mutable buffer
	strConcat                  // lazy concatenation of two strings
)

var strKindNames = [...]string{"constant", "mutable", "copy", "concat"}

// concatFlatLimit is the size below which Concat builds a flat string
// directly instead of a lazy node.
const concatFlatLimit = 64

// Str is a string value. The representation changes underneath as the
// string is copied, concatenated and edited; callers only see the bytes.
//
// A mutable buffer that has outstanding copy views is marked shared. In
// place edits of existing bytes clone the buffer first; appends never
// touch bytes a view can see, because views cap their slice.
type Str struct {
	kind   strKind
	s      string
	buf    []byte
	shared bool
	left   *Str
	right  *Str
	n      int
}

// NewMutableString returns a string with an owned, editable buffer.
func NewMutableString(s string) *Str {
	return &Str{kind: strMutable, buf: []byte(s)}
}

func (s *Str) Kind() Kind   { return KindString }
func (s *Str) Deref() Value { return s }

// Repr names the current representation.
func (s *Str) Repr() string { return strKindNames[s.kind] }

// Len returns the length in bytes without materializing.
func (s *Str) Len() int {
	switch s.kind {
	case strConstant:
		return len(s.s)
	case strConcat:
		return s.n
	}
	return len(s.buf)
}

// String returns the contents. A concat node is flattened into a constant
// the first time its contents are needed.
func (s *Str) String() string {
	switch s.kind {
	case strConstant:
		return s.s
	case strConcat:
		s.s = s.flatten()
		s.kind = strConstant
		s.left, s.right, s.n = nil, nil, 0
		return s.s
	}
	return string(s.buf)
}

// flatten walks the concat tree without recursion; deep left spines are
// the common shape after repeated concatenation.
func (s *Str) flatten() string {
	var b strings.Builder
	b.Grow(s.n)
	stack := []*Str{s}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch top.kind {
		case strConcat:
			stack = append(stack, top.right, top.left)
		case strConstant:
			b.WriteString(top.s)
		default:
			b.Write(top.buf)
		}
	}
	return b.String()
}

// Byte returns the byte at i, which must be in range.
func (s *Str) Byte(i int) byte {
	switch s.kind {
	case strConstant:
		return s.s[i]
	case strConcat:
		return s.String()[i]
	}
	return s.buf[i]
}

// Copy returns a logically independent string.
func (s *Str) Copy() *Str {
	switch s.kind {
	case strMutable:
		s.shared = true
		n := len(s.buf)
		return &Str{kind: strCopy, buf: s.buf[:n:n]}
	case strCopy:
		return &Str{kind: strCopy, buf: s.buf}
	case strConcat:
		return &Str{kind: strConcat, left: s.left, right: s.right, n: s.n}
	}
	return &Str{kind: strConstant, s: s.s}
}

// own turns s into an unshared mutable buffer.
func (s *Str) own() {
	switch s.kind {
	case strMutable:
		if s.shared {
			s.buf = append([]byte(nil), s.buf...)
			s.shared = false
		}
		return
	case strCopy:
		s.buf = append([]byte(nil), s.buf...)
	default:
		s.buf = []byte(s.String())
		s.s = ""
	}
	s.kind = strMutable
	s.shared = false
}

// Append adds o to the end of s in place.
func (s *Str) Append(o string) {
	if s.kind != strMutable {
		s.own()
	}
	s.buf = append(s.buf, o...)
}

// SetByte overwrites the byte at i, padding with spaces when i is past
// the end.
func (s *Str) SetByte(i int, c byte) {
	s.own()
	for len(s.buf) <= i {
		s.buf = append(s.buf, ' ')
	}
	s.buf[i] = c
}

// Concat returns a lazy concatenation of a and b.
func Concat(a, b *Str) *Str {
	n := a.Len() + b.Len()
	if n <= concatFlatLimit {
		return NewString(a.String() + b.String())
	}
	if a.Len() == 0 {
		return b.Copy()
	}
	if b.Len() == 0 {
		return a.Copy()
	}
	return &Str{kind: strConcat, left: a.Copy(), right: b.Copy(), n: n}
}

// ---------------------------------------------------------------------------
// Increment
// ---------------------------------------------------------------------------

// IncrementString applies the alphanumeric carry rule: the last letter or
// digit is advanced, "z", "Z" and "9" wrap and carry left. A carry out of
// the first character grows the string with "a", "A" or "1" depending on
// the kind of character that overflowed. Any other character stops the
// carry. The empty string becomes "1".
func IncrementString(s string) string {
	if s == "" {
		return "1"
	}
	const (
		none = iota
		lower
		upper
		digit
	)
	b := []byte(s)
	last := none
	carry := false
	for pos := len(b) - 1; pos >= 0; pos-- {
		c := b[pos]
		switch {
		case c >= 'a' && c <= 'z':
			last = lower
			carry = c == 'z'
			if carry {
				b[pos] = 'a'
			} else {
				b[pos]++
			}
		case c >= 'A' && c <= 'Z':
			last = upper
			carry = c == 'Z'
			if carry {
				b[pos] = 'A'
			} else {
				b[pos]++
			}
		case c >= '0' && c <= '9':
			last = digit
			carry = c == '9'
			if carry {
				b[pos] = '0'
			} else {
				b[pos]++
			}
		default:
			carry = false
		}
		if !carry {
			return string(b)
		}
	}
	switch last {
	case lower:
		return "a" + string(b)
	case upper:
		return "A" + string(b)
	}
	return "1" + string(b)
}
