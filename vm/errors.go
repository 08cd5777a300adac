package vm

import (
	"fmt"
	"strings"
)

// ErrorKind classifies fatal runtime errors.
type ErrorKind uint8

const (
	RuntimeError   ErrorKind = iota // generic fatal condition
	ArgumentError                   // builtin called with the wrong arity
	TypeError                       // operation applied to the wrong kind of value
	UndefinedError                  // missing function, offset or constant
	InternalError                   // VM invariant violated
)

var errorKindNames = [...]string{
	RuntimeError:   "RuntimeError",
	ArgumentError:  "ArgumentError",
	TypeError:      "TypeError",
	UndefinedError: "UndefinedError",
	InternalError:  "InternalError",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// TraceEntry locates one frame of an unwinding error.
type TraceEntry struct {
	Unit   string
	Line   int
	Source string
}

// Error is a fatal runtime error. Each frame it unwinds through appends
// its location to Trace, innermost first.
type Error struct {
	Kind  ErrorKind
	Msg   string
	Trace []TraceEntry
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// NewError returns a fatal error for builtins to return.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return newError(kind, format, args...)
}

func (e *Error) Error() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("Fatal error: %s", e.Msg)
	}
	t := e.Trace[0]
	return fmt.Sprintf("Fatal error: %s in %s on line %d", e.Msg, t.Unit, t.Line)
}

// Report renders the error with every traced frame and its source line.
func (e *Error) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", e.Kind, e.Msg)
	for _, t := range e.Trace {
		fmt.Fprintf(&b, "  at %s line %d\n", t.Unit, t.Line)
		if t.Source != "" {
			fmt.Fprintf(&b, "    %s\n", strings.TrimSpace(t.Source))
		}
	}
	return b.String()
}

func (e *Error) addTrace(unit string, line int, source string) {
	e.Trace = append(e.Trace, TraceEntry{Unit: unit, Line: line, Source: source})
}
