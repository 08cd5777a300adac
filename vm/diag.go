package vm

import "fmt"

// Level is the severity of a non-fatal diagnostic.
type Level uint8

const (
	LevelNotice Level = iota
	LevelWarning
)

func (l Level) String() string {
	if l == LevelWarning {
		return "Warning"
	}
	return "Notice"
}

// Diagnostic is a non-fatal condition reported while running. Execution
// continues with the operation's fallback value.
type Diagnostic struct {
	Level Level
	Msg   string
	Unit  string
	Line  int
}

func (d Diagnostic) String() string {
	if d.Unit == "" {
		return fmt.Sprintf("%s: %s", d.Level, d.Msg)
	}
	return fmt.Sprintf("%s: %s in %s on line %d", d.Level, d.Msg, d.Unit, d.Line)
}

// maxDiagnostics bounds the in-memory diagnostic history.
const maxDiagnostics = 256

func (i *Interpreter) diagnose(level Level, format string, args ...any) error {
	d := Diagnostic{Level: level, Msg: fmt.Sprintf(format, args...)}
	if f := i.current(); f != nil {
		d.Unit = f.unit.Name
		d.Line = f.Line()
	}
	if len(i.diags) >= maxDiagnostics {
		copy(i.diags, i.diags[1:])
		i.diags = i.diags[:len(i.diags)-1]
	}
	i.diags = append(i.diags, d)

	switch level {
	case LevelWarning:
		i.log.Warningf("%s", d)
	default:
		i.log.Noticef("%s", d)
	}
	if i.strictNotices {
		return newError(RuntimeError, "%s", d.Msg)
	}
	return nil
}

// notice reports a notice. It returns an error only in strict mode.
func (i *Interpreter) notice(format string, args ...any) error {
	return i.diagnose(LevelNotice, format, args...)
}

// warning reports a warning. It returns an error only in strict mode.
func (i *Interpreter) warning(format string, args ...any) error {
	return i.diagnose(LevelWarning, format, args...)
}

// Notices returns the diagnostics reported so far, oldest first.
func (i *Interpreter) Notices() []Diagnostic {
	return append([]Diagnostic(nil), i.diags...)
}

// ClearNotices forgets reported diagnostics.
func (i *Interpreter) ClearNotices() {
	i.diags = i.diags[:0]
}
