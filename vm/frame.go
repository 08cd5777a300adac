package vm

// ---------------------------------------------------------------------------
// Frame: Execution state for a unit invocation
// ---------------------------------------------------------------------------

// Frame is the execution state of one unit invocation: the operand stack
// and the variable store. The store is either slots indexed by the unit's
// variable table or, for units with dynamic variable access, a name-keyed
// VarStore.
type Frame struct {
	unit *ByteCode
	fn   *Function // nil for the top-level unit

	pc    int // start of the executing instruction
	stack []Ref
	sp    int

	slots []*Cell
	vars  *VarStore

	ret  Value
	done bool
}

func newFrame(unit *ByteCode, fn *Function, vars *VarStore) *Frame {
	f := &Frame{
		unit:  unit,
		fn:    fn,
		stack: make([]Ref, unit.StackDepth),
	}
	if unit.UsesDict {
		if vars == nil {
			vars = NewVarStore()
		}
		f.vars = vars
	} else {
		f.slots = make([]*Cell, len(unit.VarNames))
	}
	return f
}

// Unit returns the executing unit.
func (f *Frame) Unit() *ByteCode { return f.unit }

// Line returns the source line of the executing instruction.
func (f *Frame) Line() int { return f.unit.LineAt(f.pc) }

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (f *Frame) push(r Ref) {
	if f.sp >= len(f.stack) {
		panic(newError(InternalError, "operand stack overflow in %s (depth %d)", f.unit.Name, len(f.stack)))
	}
	f.stack[f.sp] = r
	f.sp++
}

func (f *Frame) pop() Ref {
	if f.sp <= 0 {
		panic(newError(InternalError, "operand stack underflow in %s", f.unit.Name))
	}
	f.sp--
	r := f.stack[f.sp]
	f.stack[f.sp] = nil
	return r
}

func (f *Frame) top() Ref {
	if f.sp <= 0 {
		panic(newError(InternalError, "operand stack underflow in %s", f.unit.Name))
	}
	return f.stack[f.sp-1]
}

// peek returns the item n below the top.
func (f *Frame) peek(n int) Ref {
	if n >= f.sp {
		panic(newError(InternalError, "operand stack underflow in %s", f.unit.Name))
	}
	return f.stack[f.sp-1-n]
}

// popValue pops an item and dereferences it.
func (f *Frame) popValue() Value {
	return f.pop().Deref()
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// cell returns the cell for variable idx, creating it.
func (f *Frame) cell(idx int) *Cell {
	if f.vars != nil {
		return f.vars.Cell(f.unit.VarNames[idx])
	}
	c := f.slots[idx]
	if c == nil {
		c = &Cell{}
		f.slots[idx] = c
	}
	return c
}

// lookupCell returns the cell for variable idx without creating it.
func (f *Frame) lookupCell(idx int) (*Cell, bool) {
	if f.vars != nil {
		return f.vars.Lookup(f.unit.VarNames[idx])
	}
	c := f.slots[idx]
	return c, c != nil
}

// named returns the cell for a variable known only by name at run time.
func (f *Frame) named(name string) (*Cell, error) {
	if f.vars != nil {
		return f.vars.Cell(name), nil
	}
	if idx := f.unit.VarIndex(name); idx >= 0 {
		return f.cell(idx), nil
	}
	return nil, newError(InternalError, "unit %s has no variable $%s", f.unit.Name, name)
}

// invalidate drops every local binding. Arrays held directly are released
// unless keep is the same value, which ownership passes to the caller.
func (f *Frame) invalidate(i *Interpreter, keep Value) {
	f.done = true
	drop := func(c *Cell) {
		if c == nil {
			return
		}
		if c.ref == nil && c.value != nil {
			if c.value != keep {
				i.release(c.value)
			} else if a, ok := keep.(*Array); ok {
				// The caller is the only reader left.
				a.temp = true
			}
		}
		c.Unset()
		c.invalid = true
	}
	for idx, c := range f.slots {
		drop(c)
		f.slots[idx] = nil
	}
	if f.fn != nil && f.vars != nil {
		for _, name := range f.vars.names {
			drop(f.vars.cells[name])
		}
	}
	for n := 0; n < f.sp; n++ {
		if it, ok := f.stack[n].(*Iterator); ok {
			it.Release()
		}
		f.stack[n] = nil
	}
	f.sp = 0
}

// ---------------------------------------------------------------------------
// varHandle: transient variable handle
// ---------------------------------------------------------------------------

// varHandle addresses a variable of a live frame. It exists only while it
// sits on that frame's operand stack and is never stored.
type varHandle struct {
	f   *Frame
	idx int
}

func (h varHandle) resolve() *Cell {
	if h.f.done {
		panic(newError(InternalError, "stale variable handle $%s", h.f.unit.VarNames[h.idx]))
	}
	return h.f.cell(h.idx)
}

func (h varHandle) name() string { return h.f.unit.VarNames[h.idx] }

func (h varHandle) Deref() Value {
	c, ok := h.f.lookupCell(h.idx)
	if !ok {
		return Null
	}
	return c.Deref()
}

func (h varHandle) store(v Value) error            { return h.resolve().store(v) }
func (h varHandle) reference() (*Reference, error) { return h.resolve().reference() }
func (h varHandle) container() (*Array, error)     { return h.resolve().container() }
func (h varHandle) bind(r *Reference) error        { return h.resolve().bind(r) }

func (h varHandle) lookup() (Value, bool) {
	c, ok := h.f.lookupCell(h.idx)
	if !ok {
		return nil, false
	}
	return c.lookup()
}

func (h varHandle) unset() error {
	c, ok := h.f.lookupCell(h.idx)
	if !ok {
		return nil
	}
	return c.unset()
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// Function is a declared user function.
type Function struct {
	Name    string
	Unit    *ByteCode
	statics map[int]*Reference
}

func newFunction(unit *ByteCode) *Function {
	return &Function{Name: unit.Name, Unit: unit}
}

// static returns the function static for variable idx, initialising it
// from init on first use.
func (fn *Function) static(idx int, init Value) *Reference {
	if fn.statics == nil {
		fn.statics = make(map[int]*Reference)
	}
	if r, ok := fn.statics[idx]; ok {
		return r
	}
	r := NewReference(CopyForStore(init))
	fn.statics[idx] = r
	return r
}
