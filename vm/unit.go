package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// ByteCode: a compiled unit
// ---------------------------------------------------------------------------

// ByteCode is one compiled unit: the top-level script or a function body.
type ByteCode struct {
	Name     string // function name, or "main" for a script
	Filename string

	Code     []byte
	Consts   []Value  // constant pool
	Names    []string // name pool: function names, constants, string keys
	VarNames []string // variable names; LOAD_REF/LOAD_DEREF operands index here

	Functions []*ByteCode // nested function units, by DECLARE_FUNC operand
	Hoisted   []int       // Functions declared before the unit runs
	Params    []Param

	// UsesDict selects name-keyed variable storage. Units that touch
	// variables dynamically ($$x, $GLOBALS, or the top level) need it.
	UsesDict bool

	StackDepth int // maximum operand stack depth

	Lines  []SourceLoc // bytecode offset to source line
	Source []string    // source text by line, for traces
}

// Param describes one formal parameter.
type Param struct {
	Name       string
	ByRef      bool
	HasDefault bool
	Default    Value
}

// SourceLoc maps a bytecode offset to a source line.
type SourceLoc struct {
	Offset int
	Line   int
}

// LineAt returns the source line of the instruction at pc, or 0.
func (u *ByteCode) LineAt(pc int) int {
	line := 0
	for _, l := range u.Lines {
		if l.Offset > pc {
			break
		}
		line = l.Line
	}
	return line
}

// SourceLine returns the text of a 1-based line, or "".
func (u *ByteCode) SourceLine(line int) string {
	if line < 1 || line > len(u.Source) {
		return ""
	}
	return u.Source[line-1]
}

// Arity returns the number of parameters without defaults.
func (u *ByteCode) Arity() int {
	n := 0
	for _, p := range u.Params {
		if !p.HasDefault {
			n++
		}
	}
	return n
}

// VarIndex returns the slot of a variable name, or -1.
func (u *ByteCode) VarIndex(name string) int {
	for i, n := range u.VarNames {
		if n == name {
			return i
		}
	}
	return -1
}

func (u *ByteCode) String() string {
	return fmt.Sprintf("<unit %s>", u.Name)
}

// ---------------------------------------------------------------------------
// UnitBuilder: Helper for constructing units
// ---------------------------------------------------------------------------

// UnitBuilder assembles a ByteCode. Constants, names and variables are
// pooled; equal scalar constants share one entry.
type UnitBuilder struct {
	unit     *ByteCode
	bytecode *BytecodeBuilder
	consts   map[string]int
	names    map[string]int
	vars     map[string]int
	line     int
}

// NewUnitBuilder creates a builder for a unit called name.
func NewUnitBuilder(name, filename string) *UnitBuilder {
	return &UnitBuilder{
		unit:     &ByteCode{Name: name, Filename: filename},
		bytecode: NewBytecodeBuilder(),
		consts:   make(map[string]int),
		names:    make(map[string]int),
		vars:     make(map[string]int),
	}
}

// Unit returns the unit under construction.
func (b *UnitBuilder) Unit() *ByteCode {
	return b.unit
}

// Bytecode returns the bytecode builder for direct emission.
func (b *UnitBuilder) Bytecode() *BytecodeBuilder {
	return b.bytecode
}

// SetSource records the source text used in error traces.
func (b *UnitBuilder) SetSource(src string) {
	b.unit.Source = strings.Split(src, "\n")
}

// AddConst pools a constant and returns its index.
func (b *UnitBuilder) AddConst(v Value) int {
	key, ok := constKey(v)
	if ok {
		if idx, seen := b.consts[key]; seen {
			return idx
		}
	}
	idx := len(b.unit.Consts)
	b.unit.Consts = append(b.unit.Consts, v)
	if ok {
		b.consts[key] = idx
	}
	return idx
}

// constKey returns a pool key for scalar constants. Arrays are never
// shared between pool entries.
func constKey(v Value) (string, bool) {
	switch x := v.(type) {
	case nullValue:
		return "n", true
	case Bool:
		return fmt.Sprintf("b%t", bool(x)), true
	case Int:
		return fmt.Sprintf("i%d", int64(x)), true
	case Float:
		return fmt.Sprintf("f%b", float64(x)), true
	case *Str:
		return "s" + x.String(), true
	}
	return "", false
}

// AddName pools a name and returns its index.
func (b *UnitBuilder) AddName(name string) int {
	if idx, ok := b.names[name]; ok {
		return idx
	}
	idx := len(b.unit.Names)
	b.unit.Names = append(b.unit.Names, name)
	b.names[name] = idx
	return idx
}

// AddVar pools a variable name and returns its slot.
func (b *UnitBuilder) AddVar(name string) int {
	if idx, ok := b.vars[name]; ok {
		return idx
	}
	idx := len(b.unit.VarNames)
	b.unit.VarNames = append(b.unit.VarNames, name)
	b.vars[name] = idx
	return idx
}

// AddParam appends a formal parameter and reserves its variable slot.
func (b *UnitBuilder) AddParam(p Param) int {
	b.unit.Params = append(b.unit.Params, p)
	return b.AddVar(p.Name)
}

// AddFunction adds a nested function unit and returns its index.
func (b *UnitBuilder) AddFunction(fn *ByteCode) int {
	b.unit.Functions = append(b.unit.Functions, fn)
	return len(b.unit.Functions) - 1
}

// Hoist marks a nested function for declaration before the unit runs.
func (b *UnitBuilder) Hoist(idx int) {
	b.unit.Hoisted = append(b.unit.Hoisted, idx)
}

// SetUsesDict selects name-keyed variable storage.
func (b *UnitBuilder) SetUsesDict() {
	b.unit.UsesDict = true
}

// MarkSource records that code emitted from here on comes from line.
func (b *UnitBuilder) MarkSource(line int) {
	if line == b.line || line <= 0 {
		return
	}
	b.line = line
	pos := b.bytecode.Len()
	if n := len(b.unit.Lines); n > 0 && b.unit.Lines[n-1].Offset == pos {
		b.unit.Lines[n-1].Line = line
		return
	}
	b.unit.Lines = append(b.unit.Lines, SourceLoc{Offset: pos, Line: line})
}

// Build finalizes the unit and computes its stack depth.
func (b *UnitBuilder) Build() (*ByteCode, error) {
	if err := b.bytecode.Err(); err != nil {
		return nil, fmt.Errorf("unit %s: %w", b.unit.Name, err)
	}
	for _, n := range []int{len(b.unit.Consts), len(b.unit.Names), len(b.unit.VarNames), len(b.unit.Functions)} {
		if n > MaxOperand+1 {
			return nil, fmt.Errorf("unit %s: %w: pool of %d entries", b.unit.Name, ErrUnitTooLarge, n)
		}
	}
	b.unit.Code = b.bytecode.Bytes()
	depth, err := ComputeStackDepth(b.unit.Code)
	if err != nil {
		return nil, fmt.Errorf("unit %s: %w", b.unit.Name, err)
	}
	b.unit.StackDepth = depth
	return b.unit, nil
}
