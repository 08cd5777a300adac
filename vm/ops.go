package vm

import "errors"

// handler executes one decoded instruction. next is the position of the
// following instruction; the handler returns the position to continue at,
// or returnPC when the frame is finished.
type handler func(i *Interpreter, f *Frame, a, b, next int) (int, error)

// handlers is indexed by opcode byte.
var handlers [256]handler

func init() {
	handlers[OpNOP] = opNop
	handlers[OpPopTop] = opPopTop
	handlers[OpDupTop] = opDupTop
	handlers[OpDupTopAndNth] = opDupTopAndNth
	handlers[OpPopAndPokeNth] = opPopAndPokeNth

	handlers[OpLoadConst] = opLoadConst
	handlers[OpLoadName] = opLoadName
	handlers[OpLoadNull] = opLoadNull
	handlers[OpLoadNamedConst] = opLoadNamedConst
	handlers[OpLoadRef] = opLoadRef
	handlers[OpLoadDeref] = opLoadDeref
	handlers[OpLoadVarVar] = opLoadVarVar
	handlers[OpLoadGlobals] = opLoadGlobals
	handlers[OpDeref] = opDeref

	handlers[OpStore] = opStore
	handlers[OpMakeRef] = opMakeRef
	handlers[OpFetchItem] = opFetchItem
	handlers[OpAppendIndex] = opAppendIndex
	handlers[OpStoreItem] = opStoreItem
	handlers[OpGetItem] = opGetItem
	handlers[OpGetItemQuiet] = opGetItemQuiet
	handlers[OpUnset] = opUnset
	handlers[OpIsset] = opIsset
	handlers[OpEmpty] = opEmpty
	handlers[OpConcatAssign] = opConcatAssign
	handlers[OpPreInc] = opIncDec
	handlers[OpPreDec] = opIncDec
	handlers[OpPostInc] = opIncDec
	handlers[OpPostDec] = opIncDec

	for _, op := range []Opcode{OpAdd, OpSub, OpMul, OpDiv, OpMod, OpBitAnd, OpBitOr, OpBitXor, OpShl, OpShr} {
		handlers[op] = opArith
	}
	handlers[OpConcat] = opConcat
	for _, op := range []Opcode{OpEq, OpNe, OpIdentical, OpNotIdentical, OpLt, OpLe, OpGt, OpGe} {
		handlers[op] = opCompare
	}
	handlers[OpNeg] = opNeg
	handlers[OpPos] = opPos
	handlers[OpNot] = opNot
	handlers[OpBitNot] = opBitNot
	handlers[OpToBool] = opToBool
	handlers[OpCast] = opCast

	handlers[OpJump] = opJump
	handlers[OpJumpIfFalse] = opJumpIf
	handlers[OpJumpIfTrue] = opJumpIf
	handlers[OpJumpIfFalseOrPop] = opJumpIfOrPop
	handlers[OpJumpIfTrueOrPop] = opJumpIfOrPop
	handlers[OpUnwindJump] = opUnwindJump

	handlers[OpNewArray] = opNewArray
	handlers[OpArrayAppend] = opArrayAppend
	handlers[OpArraySet] = opArraySet
	handlers[OpArrayAppendRef] = opArrayAppendRef
	handlers[OpArraySetRef] = opArraySetRef

	handlers[OpCreateIter] = opCreateIter
	handlers[OpCreateIterRef] = opCreateIterRef
	handlers[OpNextValueIter] = opNextIter
	handlers[OpNextItemIter] = opNextIter
	handlers[OpDiscardIter] = opDiscardIter

	handlers[OpCall] = opCall
	handlers[OpDeclareFunc] = opDeclareFunc
	handlers[OpReturn] = opReturn
	handlers[OpReturnNull] = opReturnNull
	handlers[OpArgSnapshot] = opArgSnapshot
	handlers[OpEcho] = opEcho
	handlers[OpGlobal] = opGlobal
	handlers[OpStatic] = opStatic
}

// currentOp returns the opcode of the executing instruction.
func currentOp(f *Frame) Opcode { return Opcode(f.unit.Code[f.pc]) }

// asTarget converts a stack item into a writable target.
func asTarget(r Ref) (assignable, error) {
	if t, ok := r.(assignable); ok {
		return t, nil
	}
	return nil, newError(InternalError, "cannot assign to a temporary value")
}

// assign stores a copy of v into t and releases what it replaced.
func (i *Interpreter) assign(t assignable, v Value) error {
	old, _ := t.lookup()
	if err := t.store(CopyForStore(v)); err != nil {
		if errors.Is(err, ErrArrayFull) {
			return i.warning("%v", err)
		}
		return err
	}
	if old != nil && old != v {
		i.release(old)
	}
	return nil
}

// lookupRef reads an item that may be an absent target.
func lookupRef(r Ref) (Value, bool) {
	if t, ok := r.(assignable); ok {
		return t.lookup()
	}
	return r.Deref(), true
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func opNop(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	return next, nil
}

func opPopTop(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	i.releaseTemp(f.pop())
	return next, nil
}

func opDupTop(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	f.push(f.top())
	return next, nil
}

// opDupTopAndNth pushes the value of the item a below the top, so a
// compound assignment reads its target without evaluating it twice.
func opDupTopAndNth(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	f.push(f.peek(a).Deref())
	return next, nil
}

// opPopAndPokeNth pops a target and assigns it the item a below it. A
// Reference item binds the target instead.
func opPopAndPokeNth(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	t, err := asTarget(f.pop())
	if err != nil {
		return 0, err
	}
	src := f.peek(a - 1)
	if r, ok := src.(*Reference); ok {
		return next, i.bindTarget(t, r)
	}
	return next, i.assign(t, src.Deref())
}

// ---------------------------------------------------------------------------
// Loads
// ---------------------------------------------------------------------------

func opLoadConst(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	f.push(f.unit.Consts[a])
	return next, nil
}

func opLoadName(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	f.push(NewString(f.unit.Names[a]))
	return next, nil
}

func opLoadNull(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	f.push(Null)
	return next, nil
}

// opLoadNamedConst pushes a define()d constant. An undefined constant
// evaluates to its own name.
func opLoadNamedConst(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	name := f.unit.Names[a]
	if v, ok := i.constants[name]; ok {
		f.push(v)
		return next, nil
	}
	if err := i.notice("Use of undefined constant %s - assumed '%s'", name, name); err != nil {
		return 0, err
	}
	f.push(NewString(name))
	return next, nil
}

func opLoadRef(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	f.push(varHandle{f: f, idx: a})
	return next, nil
}

func opLoadDeref(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	c, ok := f.lookupCell(a)
	if !ok || !c.Defined() {
		if err := i.notice("Undefined variable: %s", f.unit.VarNames[a]); err != nil {
			return 0, err
		}
		f.push(Null)
		return next, nil
	}
	f.push(c.Deref())
	return next, nil
}

// opLoadVarVar replaces a variable name with the variable's cell.
func opLoadVarVar(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	name, err := i.stringOf(f.popValue())
	if err != nil {
		return 0, err
	}
	if name == "GLOBALS" {
		f.push(i.globalsArray)
		return next, nil
	}
	c, err := f.named(name)
	if err != nil {
		return 0, err
	}
	f.push(c)
	return next, nil
}

func opLoadGlobals(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	f.push(i.globalsArray)
	return next, nil
}

func opDeref(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	f.push(f.popValue())
	return next, nil
}

// ---------------------------------------------------------------------------
// Assignment and element access
// ---------------------------------------------------------------------------

// opStore pops a value and assigns it to the target a-1 below the new top.
// The target's slot then holds the value.
func opStore(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	v := f.popValue()
	pos := f.sp - a
	t, err := asTarget(f.stack[pos])
	if err != nil {
		return 0, err
	}
	if err := i.assign(t, v); err != nil {
		return 0, err
	}
	f.stack[pos] = v
	return next, nil
}

// opMakeRef pops a source target and binds the target a-1 below the new
// top to the source's Reference.
func opMakeRef(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	src, err := asTarget(f.pop())
	if err != nil {
		return 0, err
	}
	r, err := src.reference()
	if err != nil {
		return 0, err
	}
	pos := f.sp - a
	t, err := asTarget(f.stack[pos])
	if err != nil {
		return 0, err
	}
	if err := i.bindTarget(t, r); err != nil {
		return 0, err
	}
	f.stack[pos] = r.Deref()
	return next, nil
}

func (i *Interpreter) bindTarget(t assignable, r *Reference) error {
	old, _ := t.lookup()
	if err := t.bind(r); err != nil {
		if errors.Is(err, ErrArrayFull) {
			return i.warning("%v", err)
		}
		return err
	}
	if old != nil && old != r.Deref() {
		i.release(old)
	}
	return nil
}

func popKey(f *Frame) (Key, error) {
	return KeyOf(f.popValue())
}

// opFetchItem replaces [container key] with a view of the element.
func opFetchItem(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	k, err := popKey(f)
	if err != nil {
		return 0, err
	}
	base := f.pop()
	f.push(NewItemRef(base, k))
	return next, nil
}

func opAppendIndex(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	f.push(NewAppendRef(f.pop()))
	return next, nil
}

// opStoreItem pops [key value] and writes container[key], where the
// container is the item a-1 below the key. The container's slot then
// holds the value.
func opStoreItem(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	v := f.popValue()
	k, err := popKey(f)
	if err != nil {
		return 0, err
	}
	pos := f.sp - a
	if err := i.assign(NewItemRef(f.stack[pos], k), v); err != nil {
		return 0, err
	}
	f.stack[pos] = v
	return next, nil
}

func opGetItem(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	return getItem(i, f, next, false)
}

func opGetItemQuiet(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	return getItem(i, f, next, true)
}

func getItem(i *Interpreter, f *Frame, next int, quiet bool) (int, error) {
	kv := f.popValue()
	c := f.popValue()
	k, err := KeyOf(kv)
	if err != nil {
		return 0, err
	}
	switch x := c.(type) {
	case *Array:
		if v, ok := x.Get(k); ok {
			f.push(v)
			return next, nil
		}
		if quiet {
			break
		}
		if k.IsInt() {
			return 0, newError(UndefinedError, "Undefined offset: %d", k.Int())
		}
		return 0, newError(UndefinedError, "Undefined index: %s", k.String())
	case *Str:
		if v, ok := stringOffset(x, k); ok {
			f.push(v)
			return next, nil
		}
		if quiet {
			break
		}
		return 0, newError(UndefinedError, "Uninitialized string offset: %s", k.String())
	default:
		if !quiet && !IsNull(c) {
			if err := i.notice("Trying to access array offset on value of type %s", TypeName(c)); err != nil {
				return 0, err
			}
		}
	}
	f.push(Null)
	return next, nil
}

func opUnset(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	t, err := asTarget(f.pop())
	if err != nil {
		return 0, err
	}
	old, _ := t.lookup()
	if err := t.unset(); err != nil {
		return 0, err
	}
	if old != nil {
		i.release(old)
	}
	return next, nil
}

func opIsset(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	v, ok := lookupRef(f.pop())
	f.push(Bool(ok && !IsNull(v)))
	return next, nil
}

func opEmpty(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	v, ok := lookupRef(f.pop())
	f.push(Bool(!ok || !Truthy(v)))
	return next, nil
}

// opConcatAssign implements .= by appending in place when the target owns
// its string outright.
func opConcatAssign(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	rhs, err := i.stringOf(f.popValue())
	if err != nil {
		return 0, err
	}
	t, err := asTarget(f.pop())
	if err != nil {
		return 0, err
	}
	cur, _ := t.lookup()
	if s, ok := cur.(*Str); ok {
		switch t.(type) {
		case varHandle, *Cell, *Reference:
			s.Append(rhs)
			f.push(s)
			return next, nil
		}
	}
	if cur == nil {
		cur = Null
	}
	ls, err := i.strOf(cur)
	if err != nil {
		return 0, err
	}
	res := Concat(ls, NewString(rhs))
	if err := i.assign(t, res); err != nil {
		return 0, err
	}
	f.push(res)
	return next, nil
}

func opIncDec(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	t, err := asTarget(f.pop())
	if err != nil {
		return 0, err
	}
	old, _ := t.lookup()
	if old == nil {
		old = Null
	}
	if _, ok := old.(*Array); ok {
		return 0, newError(TypeError, "Cannot increment or decrement an array")
	}
	op := currentOp(f)
	var nv Value
	if op == OpPreInc || op == OpPostInc {
		nv = Increment(old)
	} else {
		nv = Decrement(old)
	}
	if err := i.assign(t, nv); err != nil {
		return 0, err
	}
	if op == OpPreInc || op == OpPreDec {
		f.push(nv)
	} else {
		f.push(old)
	}
	return next, nil
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func opArith(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	y := f.popValue()
	x := f.popValue()
	var (
		r   Value
		err error
	)
	switch currentOp(f) {
	case OpAdd:
		r, err = Add(x, y)
	case OpSub:
		r, err = Sub(x, y)
	case OpMul:
		r, err = Mul(x, y)
	case OpDiv:
		r, err = Div(x, y)
	case OpMod:
		r, err = Mod(x, y)
	case OpBitAnd:
		r, err = Bitwise('&', x, y)
	case OpBitOr:
		r, err = Bitwise('|', x, y)
	case OpBitXor:
		r, err = Bitwise('^', x, y)
	case OpShl:
		r, err = Bitwise('<', x, y)
	case OpShr:
		r, err = Bitwise('>', x, y)
	}
	if errors.Is(err, ErrDivisionByZero) {
		if err := i.warning("Division by zero"); err != nil {
			return 0, err
		}
		r, err = False, nil
	}
	if err != nil {
		return 0, err
	}
	f.push(r)
	return next, nil
}

func opConcat(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	y, err := i.strOf(f.popValue())
	if err != nil {
		return 0, err
	}
	x, err := i.strOf(f.popValue())
	if err != nil {
		return 0, err
	}
	f.push(Concat(x, y))
	return next, nil
}

func opCompare(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	y := f.popValue()
	x := f.popValue()
	var r bool
	switch currentOp(f) {
	case OpEq:
		r = LooseEquals(x, y)
	case OpNe:
		r = !LooseEquals(x, y)
	case OpIdentical:
		r = StrictEquals(x, y)
	case OpNotIdentical:
		r = !StrictEquals(x, y)
	case OpLt:
		r = Compare(x, y) < 0
	case OpLe:
		r = Compare(x, y) <= 0
	case OpGt:
		r = Compare(x, y) > 0
	case OpGe:
		r = Compare(x, y) >= 0
	}
	f.push(Bool(r))
	return next, nil
}

func opNeg(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	r, err := Neg(f.popValue())
	if err != nil {
		return 0, err
	}
	f.push(r)
	return next, nil
}

func opPos(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	v := f.popValue()
	if _, ok := v.(*Array); ok {
		return 0, unsupported("+", v, Int(0))
	}
	f.push(ToNumber(v))
	return next, nil
}

func opNot(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	f.push(Bool(!Truthy(f.popValue())))
	return next, nil
}

func opBitNot(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	switch v := f.popValue().(type) {
	case Int:
		f.push(^v)
	case Float:
		f.push(Int(^FloatToInt(float64(v))))
	case *Str:
		out := []byte(v.String())
		for n := range out {
			out[n] = ^out[n]
		}
		f.push(NewString(string(out)))
	default:
		return 0, newError(TypeError, "Unsupported operand types: ~%s", TypeName(v))
	}
	return next, nil
}

func opToBool(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	f.push(Bool(Truthy(f.popValue())))
	return next, nil
}

func opCast(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	v := f.popValue()
	r, err := i.cast(v, Kind(a))
	if err != nil {
		return 0, err
	}
	f.push(r)
	return next, nil
}

// cast converts v to kind k.
func (i *Interpreter) cast(v Value, k Kind) (Value, error) {
	switch k {
	case KindNull:
		return Null, nil
	case KindBool:
		return Bool(Truthy(v)), nil
	case KindInt:
		return Int(ToInt(v)), nil
	case KindFloat:
		return Float(ToFloat(v)), nil
	case KindString:
		s, err := i.stringOf(v)
		return NewString(s), err
	case KindArray:
		switch x := v.(type) {
		case *Array:
			return x, nil
		case nullValue:
			return NewArray(), nil
		}
		return NewList(CopyForStore(v)), nil
	}
	return nil, newError(InternalError, "unknown cast %d", k)
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func opJump(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	return a, nil
}

func opJumpIf(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	want := currentOp(f) == OpJumpIfTrue
	if Truthy(f.popValue()) == want {
		return a, nil
	}
	return next, nil
}

// opJumpIfOrPop keeps the condition on the stack when it jumps, so the
// condition becomes the value of a short-circuit expression.
func opJumpIfOrPop(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	want := currentOp(f) == OpJumpIfTrueOrPop
	if Truthy(f.top().Deref()) == want {
		return a, nil
	}
	f.pop()
	return next, nil
}

// opUnwindJump leaves a nested foreach: it releases a iterators and jumps
// to b.
func opUnwindJump(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	for n := 0; n < a; n++ {
		it, ok := f.pop().(*Iterator)
		if !ok {
			return 0, newError(InternalError, "UNWIND_JUMP expected an iterator")
		}
		it.Release()
	}
	return b, nil
}

// ---------------------------------------------------------------------------
// Array construction
// ---------------------------------------------------------------------------

func opNewArray(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	arr := NewArray()
	arr.temp = true
	f.push(arr)
	return next, nil
}

func topArray(f *Frame) (*Array, error) {
	arr, ok := f.top().(*Array)
	if !ok {
		return nil, newError(InternalError, "array literal expected on stack")
	}
	return arr, nil
}

func opArrayAppend(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	v := f.popValue()
	arr, err := topArray(f)
	if err != nil {
		return 0, err
	}
	if !arr.CanAppend() {
		return next, i.warning("%v", ErrArrayFull)
	}
	arr.Append(CopyForStore(v))
	return next, nil
}

func opArraySet(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	v := f.popValue()
	k, err := popKey(f)
	if err != nil {
		return 0, err
	}
	arr, err := topArray(f)
	if err != nil {
		return 0, err
	}
	arr.Set(k, CopyForStore(v))
	return next, nil
}

func opArrayAppendRef(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	src, err := asTarget(f.pop())
	if err != nil {
		return 0, err
	}
	r, err := src.reference()
	if err != nil {
		return 0, err
	}
	arr, err := topArray(f)
	if err != nil {
		return 0, err
	}
	if !arr.CanAppend() {
		return next, i.warning("%v", ErrArrayFull)
	}
	arr.AppendRef(r)
	return next, nil
}

func opArraySetRef(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	src, err := asTarget(f.pop())
	if err != nil {
		return 0, err
	}
	r, err := src.reference()
	if err != nil {
		return 0, err
	}
	k, err := popKey(f)
	if err != nil {
		return 0, err
	}
	arr, err := topArray(f)
	if err != nil {
		return 0, err
	}
	arr.SetRef(k, r)
	return next, nil
}

// ---------------------------------------------------------------------------
// Iteration
// ---------------------------------------------------------------------------

func opCreateIter(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	v := f.popValue()
	arr, ok := v.(*Array)
	if !ok {
		if err := i.warning("Invalid argument supplied for foreach()"); err != nil {
			return 0, err
		}
	}
	f.push(newIterator(arr))
	return next, nil
}

func opCreateIterRef(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	r := f.pop()
	v, _ := lookupRef(r)
	if _, ok := v.(*Array); !ok && !IsNull(v) {
		if err := i.warning("Invalid argument supplied for foreach()"); err != nil {
			return 0, err
		}
		f.push(newRefIterator(nil))
		return next, nil
	}
	t, ok := r.(assignable)
	if !ok {
		// A temporary array, possibly a pooled constant: iterate a private
		// copy so element references never reach the original.
		var arr *Array
		if a, ok := v.(*Array); ok {
			arr = a.Copy()
		}
		f.push(newRefIterator(arr))
		return next, nil
	}
	arr, err := t.container()
	if err != nil {
		return 0, err
	}
	f.push(newRefIterator(arr))
	return next, nil
}

// opNextIter pushes the next value, or the next key and value, above the
// iterator. An exhausted iterator stays on the stack and control moves to a.
func opNextIter(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	it, ok := f.top().(*Iterator)
	if !ok {
		return 0, newError(InternalError, "iterator expected on stack")
	}
	k, v, ok := it.Next()
	if !ok {
		return a, nil
	}
	if currentOp(f) == OpNextItemIter {
		f.push(k.Value())
	}
	f.push(v)
	return next, nil
}

func opDiscardIter(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	if it, ok := f.pop().(*Iterator); ok {
		it.Release()
	}
	return next, nil
}

// ---------------------------------------------------------------------------
// Calls, output and declarations
// ---------------------------------------------------------------------------

// opCall calls the function named by the item below the a arguments.
func opCall(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	base := f.sp - a
	callee := f.stack[base-1].Deref()
	if _, ok := callee.(*Str); !ok {
		return 0, newError(TypeError, "Function name must be a string")
	}
	result, err := i.callFunction(ToString(callee), f.stack[base:f.sp])
	var temps []Ref
	for n := base - 1; n < f.sp; n++ {
		if arr, ok := f.stack[n].(*Array); ok && arr.temp && Value(arr) != result {
			temps = append(temps, arr)
		}
		f.stack[n] = nil
	}
	f.sp = base - 1
	for _, t := range temps {
		i.releaseTemp(t)
	}
	if err != nil {
		return 0, err
	}
	f.push(result)
	return next, nil
}

// opArgSnapshot wraps an argument target for a callee known only at run
// time. A by-value parameter binds the value the target had here.
func opArgSnapshot(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	t, err := asTarget(f.pop())
	if err != nil {
		return 0, err
	}
	v, _ := t.lookup()
	f.push(&lateArg{assignable: t, value: v})
	return next, nil
}

func opDeclareFunc(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	return next, i.declare(f.unit.Functions[a])
}

func opReturn(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	v := f.popValue()
	f.invalidate(i, v)
	f.ret = v
	return returnPC, nil
}

func opReturnNull(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	f.invalidate(i, nil)
	f.ret = Null
	return returnPC, nil
}

func opEcho(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	base := f.sp - a
	for n := base; n < f.sp; n++ {
		s, err := i.stringOf(f.stack[n].Deref())
		if err != nil {
			return 0, err
		}
		if err := i.write(s); err != nil {
			return 0, err
		}
		f.stack[n] = nil
	}
	f.sp = base
	return next, nil
}

// opGlobal binds a local variable to the global of the same name.
func opGlobal(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	r := i.globals.Cell(f.unit.VarNames[a]).Reference()
	c := f.cell(a)
	if c.ref != r {
		c.Bind(r)
	}
	return next, nil
}

// opStatic binds a local variable to the function's static of the same
// name, initialised from constant b on first use.
func opStatic(i *Interpreter, f *Frame, a, b, next int) (int, error) {
	init := f.unit.Consts[b]
	if f.fn == nil {
		c := f.cell(a)
		if !c.Defined() {
			c.Store(CopyForStore(init))
		}
		return next, nil
	}
	f.cell(a).Bind(f.fn.static(a, init))
	return next, nil
}
