package vm

import "strings"

// ---------------------------------------------------------------------------
// Function calls
// ---------------------------------------------------------------------------

// callFunction dispatches a call by name. args are the caller's operand
// stack items: values, or assignable targets for arguments that were
// variables or elements.
func (i *Interpreter) callFunction(name string, args []Ref) (Value, error) {
	key := strings.ToLower(name)
	if fn, ok := i.functions[key]; ok {
		i.record(fn.Unit.Name, false)
		return i.invoke(fn, args)
	}
	if b, ok := i.builtins[key]; ok {
		i.record(b.Name, true)
		return i.callBuiltin(b, args)
	}
	return nil, newError(UndefinedError, "Call to undefined function %s()", name)
}

func (i *Interpreter) record(name string, builtin bool) {
	if i.profiler != nil && i.profiler.Record(name, builtin) {
		i.log.Infof("%s() is hot", name)
	}
}

// invoke binds args to fn's parameters in a new frame and runs it.
func (i *Interpreter) invoke(fn *Function, args []Ref) (Value, error) {
	unit := fn.Unit
	f := newFrame(unit, fn, nil)
	for idx, p := range unit.Params {
		c := f.cell(idx)
		switch {
		case idx < len(args) && p.ByRef:
			r, err := i.argReference(args[idx])
			if err != nil {
				return nil, err
			}
			c.Bind(r)
		case idx < len(args):
			v := StoreValue(args[idx])
			if args[idx] == Ref(v) {
				// The parameter took a temporary; the caller's slot must
				// not keep it alive.
				args[idx] = Null
			}
			c.Store(v)
		case p.HasDefault:
			// Each call binds its own copy, so a mutated default never
			// leaks into a later call.
			c.Store(CopyForStore(p.Default))
		default:
			if err := i.warning("Missing argument %d for %s()", idx+1, unit.Name); err != nil {
				return nil, err
			}
		}
	}
	return i.execute(f)
}

// argReference returns the Reference a by-reference parameter aliases.
// Arguments that are not variables or elements are bound to a fresh
// Reference holding a copy.
func (i *Interpreter) argReference(arg Ref) (*Reference, error) {
	switch a := arg.(type) {
	case *Reference:
		return a, nil
	case assignable:
		return a.reference()
	}
	if err := i.notice("Only variables should be passed by reference"); err != nil {
		return nil, err
	}
	return NewReference(StoreValue(arg)), nil
}

// ---------------------------------------------------------------------------
// Builtins
// ---------------------------------------------------------------------------

// BuiltinFunc is a native function. args are the caller's operand stack
// items in order; parameters declared by-reference receive assignable
// targets, everything else should be read with Deref.
type BuiltinFunc func(i *Interpreter, args []Ref) (Value, error)

// Builtin describes a native function.
type Builtin struct {
	Name    string
	MinArgs int
	MaxArgs int   // -1 for a variadic rest
	RefArgs []int // parameter positions taken by reference
	Fn      BuiltinFunc
}

func (b *Builtin) byRef(pos int) bool {
	for _, p := range b.RefArgs {
		if p == pos {
			return true
		}
	}
	return false
}

// RegisterBuiltin registers a native function. arity is the exact
// argument count, or -1 for any number.
func (i *Interpreter) RegisterBuiltin(name string, arity int, fn BuiltinFunc) {
	b := &Builtin{Name: name, MinArgs: arity, MaxArgs: arity, Fn: fn}
	if arity < 0 {
		b.MinArgs = 0
	}
	i.addBuiltin(b)
}

func (i *Interpreter) addBuiltin(b *Builtin) {
	i.builtins[strings.ToLower(b.Name)] = b
}

// Builtin returns a registered native function.
func (i *Interpreter) Builtin(name string) (*Builtin, bool) {
	b, ok := i.builtins[strings.ToLower(name)]
	return b, ok
}

func (i *Interpreter) callBuiltin(b *Builtin, args []Ref) (Value, error) {
	n := len(args)
	if n < b.MinArgs {
		return nil, newError(ArgumentError, "%s() expects %s %d parameter%s, %d given",
			b.Name, arityWord(b, true), b.MinArgs, plural(b.MinArgs), n)
	}
	if b.MaxArgs >= 0 && n > b.MaxArgs {
		return nil, newError(ArgumentError, "%s() expects %s %d parameter%s, %d given",
			b.Name, arityWord(b, false), b.MaxArgs, plural(b.MaxArgs), n)
	}
	for _, pos := range b.RefArgs {
		if pos >= n {
			continue
		}
		if _, ok := args[pos].(assignable); !ok {
			if _, ok := args[pos].(*Reference); !ok {
				return nil, newError(RuntimeError, "Only variables can be passed by reference")
			}
		}
	}
	v, err := b.Fn(i, args)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = Null
	}
	return v, nil
}

func arityWord(b *Builtin, min bool) string {
	switch {
	case b.MinArgs == b.MaxArgs:
		return "exactly"
	case min:
		return "at least"
	}
	return "at most"
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
