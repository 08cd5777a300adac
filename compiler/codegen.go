package compiler

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/hippo/vm"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// CompileError is a syntax or semantic error with its source position.
type CompileError struct {
	Unit string
	Pos  Position
	Msg  string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Unit, e.Pos.Line, e.Pos.Column, e.Msg)
}

func newCompileError(unit string, pos Position, format string, args ...any) *CompileError {
	return &CompileError{Unit: unit, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// loop holds the jump targets of an enclosing loop.
type loop struct {
	brk, cont *vm.Label
	iter      bool // a foreach, which keeps an iterator on the stack
}

// Compiler compiles one unit: the top-level script or a function body.
// Nested function bodies get compilers of their own.
type Compiler struct {
	file   string
	source string
	unit   *vm.UnitBuilder
	code   *vm.BytecodeBuilder
	fn     *FunctionDecl // nil at the top level
	loops  []*loop
	pos    Position // start of the statement being compiled

	// Declared functions by lowercase name, shared by every unit of a
	// program.
	funcs   map[string]*FunctionDecl
	hoisted map[*FunctionDecl]bool
}

// fail abandons compilation with an error at n.
func (c *Compiler) fail(n Node, format string, args ...any) {
	panic(newCompileError(c.file, n.Span().Start, format, args...))
}

// Compile compiles a parsed program into its top-level unit.
func Compile(prog *Program) (unit *vm.ByteCode, err error) {
	a := NewSemanticAnalyzer(prog.Name)
	a.Analyze(prog)
	if errs := a.Errors(); len(errs) > 0 {
		return nil, errs[0]
	}
	defer func() {
		if r := recover(); r != nil {
			ce, ok := r.(*CompileError)
			if !ok {
				panic(r)
			}
			unit, err = nil, ce
		}
	}()
	root := &Compiler{file: prog.Name, source: prog.Source, funcs: a.Functions()}
	return root.compileUnit("main", nil, prog.Stmts), nil
}

// CompileSource parses and compiles a source file.
func CompileSource(name, src string) (*vm.ByteCode, error) {
	prog, err := Parse(name, src)
	if err != nil {
		return nil, err
	}
	return Compile(prog)
}

// compileUnit compiles body into a new unit. fn is nil for the top level.
func (c *Compiler) compileUnit(name string, fn *FunctionDecl, body []Stmt) *vm.ByteCode {
	sub := &Compiler{
		file:    c.file,
		source:  c.source,
		unit:    vm.NewUnitBuilder(name, c.file),
		fn:      fn,
		funcs:   c.funcs,
		hoisted: make(map[*FunctionDecl]bool),
	}
	sub.code = sub.unit.Bytecode()
	sub.unit.SetSource(c.source)
	if fn == nil || needsDict(body) {
		sub.unit.SetUsesDict()
	}

	if fn != nil {
		for _, p := range fn.Params {
			param := vm.Param{Name: p.Name, ByRef: p.ByRef}
			if p.Default != nil {
				v, ok := sub.fold(p.Default)
				if !ok {
					sub.fail(p.Default, "Constant expression contains invalid operations")
				}
				param.HasDefault, param.Default = true, v
			}
			sub.unit.AddParam(param)
		}
	} else {
		// Unconditional top-level declarations exist before the script
		// runs.
		for _, s := range body {
			if decl, ok := s.(*FunctionDecl); ok {
				idx := sub.unit.AddFunction(sub.compileUnit(decl.Name, decl, decl.Body))
				sub.unit.Hoist(idx)
				sub.hoisted[decl] = true
			}
		}
	}

	sub.stmts(body)
	sub.code.Emit(vm.OpReturnNull)
	unit, err := sub.unit.Build()
	if err != nil {
		pos := Position{Line: 1, Column: 1}
		if fn != nil {
			pos = fn.SpanVal.Start
		}
		panic(newCompileError(c.file, pos, "%v", err))
	}
	return unit
}

// ---------------------------------------------------------------------------
// Emission helpers
// ---------------------------------------------------------------------------

func (c *Compiler) emit(op vm.Opcode) {
	c.code.Emit(op)
}

func (c *Compiler) emitArg(op vm.Opcode, arg int) {
	c.code.EmitArg(op, c.operand(arg))
}

// operand narrows a pool index or count to its 16-bit encoding.
func (c *Compiler) operand(v int) uint16 {
	if v < 0 || v > vm.MaxOperand {
		panic(newCompileError(c.file, c.pos, "%v: operand %d does not fit in 16 bits", vm.ErrUnitTooLarge, v))
	}
	return uint16(v)
}

func (c *Compiler) loadConst(v vm.Value) {
	c.emitArg(vm.OpLoadConst, c.unit.AddConst(v))
}

func (c *Compiler) stmts(list []Stmt) {
	for _, s := range list {
		c.stmt(s)
	}
}

func (c *Compiler) stmt(s Stmt) {
	c.pos = s.Span().Start
	c.unit.MarkSource(c.pos.Line)
	s.compile(c)
}

// ref emits code that pushes an assignable handle for a target
// expression.
func (c *Compiler) ref(e Expr) {
	switch n := e.(type) {
	case *Variable:
		if n.Name == "GLOBALS" {
			c.emit(vm.OpLoadGlobals)
			return
		}
		c.emitArg(vm.OpLoadRef, c.unit.AddVar(n.Name))
	case *VarVar:
		n.Name.compile(c)
		c.emit(vm.OpLoadVarVar)
	case *Index:
		c.ref(n.Base)
		if n.Key == nil {
			c.emit(vm.OpAppendIndex)
			return
		}
		n.Key.compile(c)
		c.emit(vm.OpFetchItem)
	default:
		c.fail(e, "Cannot use temporary expression in write context")
	}
}

// quiet emits a read that does not complain about missing variables or
// keys, for ?? and its assignment form.
func (c *Compiler) quiet(e Expr) {
	switch n := e.(type) {
	case *Variable:
		c.ref(n)
		if n.Name != "GLOBALS" {
			c.emit(vm.OpDeref)
		}
	case *VarVar:
		c.ref(n)
		c.emit(vm.OpDeref)
	case *Index:
		if n.Key == nil {
			c.fail(n, "Cannot use [] for reading")
		}
		c.quiet(n.Base)
		n.Key.compile(c)
		c.emit(vm.OpGetItemQuiet)
	default:
		e.compile(c)
	}
}

// destructure assigns the elements of the array on top of the stack to
// the targets of l, leaving the array in place.
func (c *Compiler) destructure(l *ListExpr) {
	pos := int64(0)
	for _, item := range l.Items {
		if item.Target == nil {
			pos++
			continue
		}
		c.emit(vm.OpDupTop)
		if item.Key != nil {
			item.Key.compile(c)
		} else {
			c.loadConst(vm.Int(pos))
			pos++
		}
		c.emit(vm.OpGetItemQuiet)
		if nested, ok := item.Target.(*ListExpr); ok {
			c.destructure(nested)
		} else {
			c.ref(item.Target)
			c.emitArg(vm.OpPopAndPokeNth, 1)
		}
		c.emit(vm.OpPopTop)
	}
}

// assignTop stores the value on top of the stack into target, consuming
// it. Used by foreach for its key and value targets.
func (c *Compiler) assignTop(target Expr) {
	if l, ok := target.(*ListExpr); ok {
		c.destructure(l)
	} else {
		c.ref(target)
		c.emitArg(vm.OpPopAndPokeNth, 1)
	}
	c.emit(vm.OpPopTop)
}

// refArgs reports which arguments of a call to name are passed as
// targets. Calls to functions that are neither declared in the program
// nor built in pass every target argument that way, since the callee is
// only known at run time; known is false for those.
func (c *Compiler) refArgs(name string) (byRef func(int) bool, known bool) {
	if decl, ok := c.funcs[strings.ToLower(name)]; ok {
		return func(pos int) bool {
			return pos < len(decl.Params) && decl.Params[pos].ByRef
		}, true
	}
	if refs, ok := vm.BuiltinRefArgs(name); ok {
		return func(pos int) bool {
			for _, r := range refs {
				if r == pos {
					return true
				}
			}
			return false
		}, true
	}
	return func(int) bool { return true }, false
}

// ---------------------------------------------------------------------------
// Constant folding
// ---------------------------------------------------------------------------

// folder evaluates constant expressions at compile time.
type folder struct {
	file     string
	function string
}

// wrap folds e outside any compilation, for validity checks.
func wrap(e Expr) (vm.Value, bool) {
	return folder{}.wrap(e)
}

// fold evaluates e if it is a compile-time constant.
func (c *Compiler) fold(e Expr) (vm.Value, bool) {
	f := folder{file: c.file}
	if c.fn != nil {
		f.function = c.fn.Name
	}
	return f.wrap(e)
}

func (f folder) wrap(e Expr) (vm.Value, bool) {
	switch n := e.(type) {
	case *IntLiteral:
		return vm.Int(n.Value), true
	case *FloatLiteral:
		return vm.Float(n.Value), true
	case *StringLiteral:
		return vm.NewString(n.Value), true
	case *ConstFetch:
		switch strings.ToLower(n.Name) {
		case "true":
			return vm.True, true
		case "false":
			return vm.False, true
		case "null":
			return vm.Null, true
		case "__line__":
			return vm.Int(n.SpanVal.Start.Line), true
		case "__file__":
			return vm.NewString(f.file), true
		case "__function__":
			return vm.NewString(f.function), true
		}
	case *UnaryOp:
		v, ok := f.wrap(n.Operand)
		if !ok {
			return nil, false
		}
		switch n.Op {
		case TokenMinus:
			if r, err := vm.Neg(v); err == nil {
				return r, true
			}
		case TokenPlus:
			switch v.(type) {
			case vm.Int, vm.Float:
				return v, true
			}
		case TokenBang:
			return vm.Bool(!vm.Truthy(v)), true
		}
	case *BinaryOp:
		return f.binary(n)
	case *ArrayLiteral:
		return f.array(n)
	}
	return nil, false
}

func (f folder) binary(n *BinaryOp) (vm.Value, bool) {
	var apply func(a, b vm.Value) (vm.Value, error)
	switch n.Op {
	case TokenPlus:
		apply = vm.Add
	case TokenMinus:
		apply = vm.Sub
	case TokenStar:
		apply = vm.Mul
	case TokenSlash:
		apply = vm.Div
	case TokenPercent:
		apply = vm.Mod
	case TokenDot:
		apply = func(a, b vm.Value) (vm.Value, error) {
			if a.Kind() == vm.KindArray || b.Kind() == vm.KindArray {
				return nil, fmt.Errorf("array to string conversion")
			}
			return vm.NewString(vm.ToString(a) + vm.ToString(b)), nil
		}
	default:
		return nil, false
	}
	l, ok := f.wrap(n.Left)
	if !ok {
		return nil, false
	}
	r, ok := f.wrap(n.Right)
	if !ok {
		return nil, false
	}
	v, err := apply(l, r)
	if err != nil {
		return nil, false
	}
	return v, true
}

// array folds a literal whose keys and values are all constant.
func (f folder) array(n *ArrayLiteral) (vm.Value, bool) {
	var (
		keys  []vm.Key
		vals  []vm.Value
		next  int64
		keyed bool
		full  bool // the largest key is math.MaxInt64
	)
	for _, item := range n.Items {
		if item.Value == nil || item.ByRef {
			return nil, false
		}
		v, ok := f.wrap(item.Value)
		if !ok {
			return nil, false
		}
		var k vm.Key
		if item.Key == nil {
			if full {
				// Left to run time, which reports the failed append.
				return nil, false
			}
			k = vm.IntKey(next)
		} else {
			kv, ok := f.wrap(item.Key)
			if !ok {
				return nil, false
			}
			var err error
			if k, err = vm.KeyOf(kv); err != nil {
				return nil, false
			}
			keyed = true
		}
		if k.IsInt() && !full && k.Int() >= next {
			if k.Int() == math.MaxInt64 {
				full = true
			} else {
				next = k.Int() + 1
			}
		}
		keys = append(keys, k)
		vals = append(vals, v)
	}
	if !keyed {
		return vm.NewList(vals...), true
	}
	return vm.NewConstArray(keys, vals), true
}

// ---------------------------------------------------------------------------
// Literals and variables
// ---------------------------------------------------------------------------

func (n *IntLiteral) compile(c *Compiler)    { c.loadConst(vm.Int(n.Value)) }
func (n *FloatLiteral) compile(c *Compiler)  { c.loadConst(vm.Float(n.Value)) }
func (n *StringLiteral) compile(c *Compiler) { c.loadConst(vm.NewString(n.Value)) }

func (n *Interpolation) compile(c *Compiler) {
	if len(n.Parts) == 0 {
		c.loadConst(vm.NewString(""))
		return
	}
	if len(n.Parts) == 1 {
		c.loadConst(vm.NewString(""))
		n.Parts[0].compile(c)
		c.emit(vm.OpConcat)
		return
	}
	n.Parts[0].compile(c)
	for _, p := range n.Parts[1:] {
		p.compile(c)
		c.emit(vm.OpConcat)
	}
}

func (n *ConstFetch) compile(c *Compiler) {
	if v, ok := c.fold(n); ok {
		c.loadConst(v)
		return
	}
	c.emitArg(vm.OpLoadNamedConst, c.unit.AddName(n.Name))
}

func (n *ArrayLiteral) compile(c *Compiler) {
	if v, ok := c.fold(n); ok {
		c.loadConst(v)
		return
	}
	c.emit(vm.OpNewArray)
	for _, item := range n.Items {
		if item.Value == nil {
			c.fail(n, "Cannot use empty array elements in arrays")
		}
		if item.Key != nil {
			item.Key.compile(c)
		}
		if item.ByRef {
			c.ref(item.Value)
		} else {
			item.Value.compile(c)
		}
		switch {
		case item.Key == nil && item.ByRef:
			c.emit(vm.OpArrayAppendRef)
		case item.Key == nil:
			c.emit(vm.OpArrayAppend)
		case item.ByRef:
			c.emit(vm.OpArraySetRef)
		default:
			c.emit(vm.OpArraySet)
		}
	}
}

func (n *Variable) compile(c *Compiler) {
	if n.Name == "GLOBALS" {
		c.emit(vm.OpLoadGlobals)
		return
	}
	c.emitArg(vm.OpLoadDeref, c.unit.AddVar(n.Name))
}

func (n *VarVar) compile(c *Compiler) {
	c.ref(n)
	c.emit(vm.OpDeref)
}

func (n *Index) compile(c *Compiler) {
	if n.Key == nil {
		c.fail(n, "Cannot use [] for reading")
	}
	n.Base.compile(c)
	n.Key.compile(c)
	c.emit(vm.OpGetItem)
}

func (n *ListExpr) compile(c *Compiler) {
	c.fail(n, "Cannot use list() outside an assignment")
}

// ---------------------------------------------------------------------------
// Assignment
// ---------------------------------------------------------------------------

func (n *Assign) compile(c *Compiler) {
	switch t := n.Target.(type) {
	case *ListExpr:
		n.Value.compile(c)
		c.destructure(t)
	case *Index:
		c.ref(t.Base)
		if t.Key == nil {
			c.emit(vm.OpAppendIndex)
			n.Value.compile(c)
			c.emitArg(vm.OpStore, 1)
			return
		}
		t.Key.compile(c)
		n.Value.compile(c)
		c.emitArg(vm.OpStoreItem, 1)
	default:
		c.ref(t)
		n.Value.compile(c)
		c.emitArg(vm.OpStore, 1)
	}
}

func (n *RefAssign) compile(c *Compiler) {
	if _, ok := n.Target.(*ListExpr); ok {
		c.fail(n, "Cannot assign reference to list()")
	}
	c.ref(n.Target)
	c.ref(n.Source)
	c.emitArg(vm.OpMakeRef, 1)
}

var binaryOps = map[TokenType]vm.Opcode{
	TokenPlus:         vm.OpAdd,
	TokenMinus:        vm.OpSub,
	TokenStar:         vm.OpMul,
	TokenSlash:        vm.OpDiv,
	TokenPercent:      vm.OpMod,
	TokenDot:          vm.OpConcat,
	TokenAmp:          vm.OpBitAnd,
	TokenPipe:         vm.OpBitOr,
	TokenCaret:        vm.OpBitXor,
	TokenShl:          vm.OpShl,
	TokenShr:          vm.OpShr,
	TokenEq:           vm.OpEq,
	TokenNe:           vm.OpNe,
	TokenIdentical:    vm.OpIdentical,
	TokenNotIdentical: vm.OpNotIdentical,
	TokenLt:           vm.OpLt,
	TokenLe:           vm.OpLe,
	TokenGt:           vm.OpGt,
	TokenGe:           vm.OpGe,
}

func (n *CompoundAssign) compile(c *Compiler) {
	switch n.Op {
	case TokenDot:
		c.ref(n.Target)
		n.Value.compile(c)
		c.emit(vm.OpConcatAssign)
	case TokenCoalesce:
		keep, end := c.code.NewLabel(), c.code.NewLabel()
		c.ref(n.Target)
		c.emitArg(vm.OpDupTopAndNth, 0)
		c.emit(vm.OpLoadNull)
		c.emit(vm.OpNotIdentical)
		c.code.EmitJump(vm.OpJumpIfTrue, keep)
		n.Value.compile(c)
		c.emitArg(vm.OpStore, 1)
		c.code.EmitJump(vm.OpJump, end)
		c.code.Mark(keep)
		c.emit(vm.OpDeref)
		c.code.Mark(end)
	default:
		op, ok := binaryOps[n.Op]
		if !ok {
			c.fail(n, "unsupported assignment operator %s=", n.Op)
		}
		c.ref(n.Target)
		c.emitArg(vm.OpDupTopAndNth, 0)
		n.Value.compile(c)
		c.emit(op)
		c.emitArg(vm.OpStore, 1)
	}
}

func (n *IncDec) compile(c *Compiler) {
	c.ref(n.Target)
	switch {
	case n.Inc && n.Prefix:
		c.emit(vm.OpPreInc)
	case n.Inc:
		c.emit(vm.OpPostInc)
	case n.Prefix:
		c.emit(vm.OpPreDec)
	default:
		c.emit(vm.OpPostDec)
	}
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func (n *BinaryOp) compile(c *Compiler) {
	switch n.Op {
	case TokenAndAnd, TokenAnd, TokenOrOr, TokenOr:
		jump := vm.OpJumpIfFalseOrPop
		if n.Op == TokenOrOr || n.Op == TokenOr {
			jump = vm.OpJumpIfTrueOrPop
		}
		end := c.code.NewLabel()
		n.Left.compile(c)
		c.code.EmitJump(jump, end)
		n.Right.compile(c)
		c.code.Mark(end)
		c.emit(vm.OpToBool)
		return
	case TokenXor:
		n.Left.compile(c)
		c.emit(vm.OpToBool)
		n.Right.compile(c)
		c.emit(vm.OpToBool)
		c.emit(vm.OpNe)
		return
	case TokenCoalesce:
		end := c.code.NewLabel()
		c.quiet(n.Left)
		c.emit(vm.OpDupTop)
		c.emit(vm.OpLoadNull)
		c.emit(vm.OpNotIdentical)
		c.code.EmitJump(vm.OpJumpIfTrue, end)
		c.emit(vm.OpPopTop)
		n.Right.compile(c)
		c.code.Mark(end)
		return
	}
	if v, ok := c.fold(n); ok {
		c.loadConst(v)
		return
	}
	op, ok := binaryOps[n.Op]
	if !ok {
		c.fail(n, "unsupported operator %s", n.Op)
	}
	n.Left.compile(c)
	n.Right.compile(c)
	c.emit(op)
}

func (n *UnaryOp) compile(c *Compiler) {
	if v, ok := c.fold(n); ok {
		c.loadConst(v)
		return
	}
	n.Operand.compile(c)
	switch n.Op {
	case TokenMinus:
		c.emit(vm.OpNeg)
	case TokenPlus:
		c.emit(vm.OpPos)
	case TokenBang:
		c.emit(vm.OpNot)
	case TokenTilde:
		c.emit(vm.OpBitNot)
	case TokenAt:
		// Diagnostics are not silenced; @ only evaluates its operand.
	}
}

var castKinds = map[string]vm.Kind{
	"bool":   vm.KindBool,
	"int":    vm.KindInt,
	"float":  vm.KindFloat,
	"string": vm.KindString,
	"array":  vm.KindArray,
	"unset":  vm.KindNull,
}

func (n *Cast) compile(c *Compiler) {
	kind, ok := castKinds[n.Type]
	if !ok {
		c.fail(n, "unsupported cast (%s)", n.Type)
	}
	n.Operand.compile(c)
	c.emitArg(vm.OpCast, int(kind))
}

func (n *Ternary) compile(c *Compiler) {
	end := c.code.NewLabel()
	n.Cond.compile(c)
	if n.Then == nil {
		c.code.EmitJump(vm.OpJumpIfTrueOrPop, end)
		n.Else.compile(c)
		c.code.Mark(end)
		return
	}
	other := c.code.NewLabel()
	c.code.EmitJump(vm.OpJumpIfFalse, other)
	n.Then.compile(c)
	c.code.EmitJump(vm.OpJump, end)
	c.code.Mark(other)
	n.Else.compile(c)
	c.code.Mark(end)
}

// ---------------------------------------------------------------------------
// Calls and language constructs
// ---------------------------------------------------------------------------

func (n *Call) compile(c *Compiler) {
	byRef, known := func(int) bool { return true }, false
	if n.Callee != nil {
		n.Callee.compile(c)
	} else {
		c.emitArg(vm.OpLoadName, c.unit.AddName(n.Name))
		byRef, known = c.refArgs(n.Name)
	}
	for pos, arg := range n.Args {
		if isTarget(arg) && byRef(pos) {
			c.ref(arg)
			if !known {
				c.emit(vm.OpArgSnapshot)
			}
		} else {
			arg.compile(c)
		}
	}
	c.emitArg(vm.OpCall, len(n.Args))
}

func (n *Isset) compile(c *Compiler) {
	end := c.code.NewLabel()
	for i, arg := range n.Args {
		if !isTarget(arg) {
			c.fail(arg, "Cannot use isset() on the result of an expression")
		}
		c.ref(arg)
		c.emit(vm.OpIsset)
		if i < len(n.Args)-1 {
			c.code.EmitJump(vm.OpJumpIfFalseOrPop, end)
		}
	}
	c.code.Mark(end)
}

func (n *Empty) compile(c *Compiler) {
	if isTarget(n.Arg) {
		c.ref(n.Arg)
		c.emit(vm.OpEmpty)
		return
	}
	n.Arg.compile(c)
	c.emit(vm.OpNot)
}

func (n *Print) compile(c *Compiler) {
	n.Arg.compile(c)
	c.emitArg(vm.OpEcho, 1)
	c.loadConst(vm.Int(1))
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (n *ExprStmt) compile(c *Compiler) {
	n.Expr.compile(c)
	c.emit(vm.OpPopTop)
}

func (n *EchoStmt) compile(c *Compiler) {
	for _, arg := range n.Args {
		arg.compile(c)
		c.emitArg(vm.OpEcho, 1)
	}
}

func (n *InlineHTML) compile(c *Compiler) {
	c.loadConst(vm.NewString(n.Text))
	c.emitArg(vm.OpEcho, 1)
}

func (n *Block) compile(c *Compiler) {
	c.stmts(n.Stmts)
}

func (n *IfStmt) compile(c *Compiler) {
	end := c.code.NewLabel()
	branch := func(cond Expr, body Stmt, last bool) {
		next := c.code.NewLabel()
		cond.compile(c)
		c.code.EmitJump(vm.OpJumpIfFalse, next)
		c.stmt(body)
		if !last {
			c.code.EmitJump(vm.OpJump, end)
		}
		c.code.Mark(next)
	}
	branch(n.Cond, n.Then, len(n.ElseIfs) == 0 && n.Else == nil)
	for i, ei := range n.ElseIfs {
		branch(ei.Cond, ei.Body, i == len(n.ElseIfs)-1 && n.Else == nil)
	}
	if n.Else != nil {
		c.stmt(n.Else)
	}
	c.code.Mark(end)
}

// body compiles a loop body with l as the innermost loop.
func (c *Compiler) body(l *loop, s Stmt) {
	c.loops = append(c.loops, l)
	c.stmt(s)
	c.loops = c.loops[:len(c.loops)-1]
}

func (n *WhileStmt) compile(c *Compiler) {
	l := &loop{brk: c.code.NewLabel(), cont: c.code.NewLabel()}
	c.code.Mark(l.cont)
	n.Cond.compile(c)
	c.code.EmitJump(vm.OpJumpIfFalse, l.brk)
	c.body(l, n.Body)
	c.code.EmitJump(vm.OpJump, l.cont)
	c.code.Mark(l.brk)
}

func (n *DoWhileStmt) compile(c *Compiler) {
	top := c.code.NewLabel()
	l := &loop{brk: c.code.NewLabel(), cont: c.code.NewLabel()}
	c.code.Mark(top)
	c.body(l, n.Body)
	c.code.Mark(l.cont)
	n.Cond.compile(c)
	c.code.EmitJump(vm.OpJumpIfTrue, top)
	c.code.Mark(l.brk)
}

func (n *ForStmt) compile(c *Compiler) {
	for _, e := range n.Init {
		e.compile(c)
		c.emit(vm.OpPopTop)
	}
	top := c.code.NewLabel()
	l := &loop{brk: c.code.NewLabel(), cont: c.code.NewLabel()}
	c.code.Mark(top)
	for i, e := range n.Cond {
		e.compile(c)
		if i < len(n.Cond)-1 {
			c.emit(vm.OpPopTop)
		}
	}
	if len(n.Cond) > 0 {
		c.code.EmitJump(vm.OpJumpIfFalse, l.brk)
	}
	c.body(l, n.Body)
	c.code.Mark(l.cont)
	for _, e := range n.Step {
		e.compile(c)
		c.emit(vm.OpPopTop)
	}
	c.code.EmitJump(vm.OpJump, top)
	c.code.Mark(l.brk)
}

func (n *ForeachStmt) compile(c *Compiler) {
	if n.ByRef && isTarget(n.Expr) {
		c.ref(n.Expr)
		c.emit(vm.OpCreateIterRef)
	} else {
		n.Expr.compile(c)
		if n.ByRef {
			c.emit(vm.OpCreateIterRef)
		} else {
			c.emit(vm.OpCreateIter)
		}
	}
	l := &loop{brk: c.code.NewLabel(), cont: c.code.NewLabel(), iter: true}
	c.code.Mark(l.cont)
	if n.Key != nil {
		c.code.EmitJump(vm.OpNextItemIter, l.brk)
	} else {
		c.code.EmitJump(vm.OpNextValueIter, l.brk)
	}
	c.assignTop(n.Value)
	if n.Key != nil {
		c.assignTop(n.Key)
	}
	c.body(l, n.Body)
	c.code.EmitJump(vm.OpJump, l.cont)
	c.code.Mark(l.brk)
	c.emit(vm.OpDiscardIter)
}

// jumpOut leaves depth enclosing loops, discarding the iterators of the
// foreach loops it crosses.
func (c *Compiler) jumpOut(n Node, keyword string, depth int, cont bool) {
	if depth > len(c.loops) {
		c.fail(n, "Cannot '%s' %d levels", keyword, depth)
	}
	target := c.loops[len(c.loops)-depth]
	crossed := 0
	for _, l := range c.loops[len(c.loops)-depth+1:] {
		if l.iter {
			crossed++
		}
	}
	label := target.brk
	if cont {
		label = target.cont
	}
	if crossed > 0 {
		c.code.EmitJumpWith(vm.OpUnwindJump, c.operand(crossed), label)
		return
	}
	c.code.EmitJump(vm.OpJump, label)
}

func (n *BreakStmt) compile(c *Compiler)    { c.jumpOut(n, "break", n.Depth, false) }
func (n *ContinueStmt) compile(c *Compiler) { c.jumpOut(n, "continue", n.Depth, true) }

func (n *ReturnStmt) compile(c *Compiler) {
	if n.Value == nil {
		c.emit(vm.OpReturnNull)
		return
	}
	n.Value.compile(c)
	c.emit(vm.OpReturn)
}

func (n *FunctionDecl) compile(c *Compiler) {
	if c.hoisted[n] {
		return
	}
	idx := c.unit.AddFunction(c.compileUnit(n.Name, n, n.Body))
	c.emitArg(vm.OpDeclareFunc, idx)
}

func (n *GlobalStmt) compile(c *Compiler) {
	for _, name := range n.Names {
		c.emitArg(vm.OpGlobal, c.unit.AddVar(name))
	}
}

func (n *StaticStmt) compile(c *Compiler) {
	for _, v := range n.Vars {
		init := vm.Null
		if v.Init != nil {
			folded, ok := c.fold(v.Init)
			if !ok {
				c.fail(n, "Constant expression contains invalid operations")
			}
			init = folded
		}
		c.code.EmitArgs(vm.OpStatic, c.operand(c.unit.AddVar(v.Name)), c.operand(c.unit.AddConst(init)))
	}
}

func (n *UnsetStmt) compile(c *Compiler) {
	for _, t := range n.Targets {
		c.ref(t)
		c.emit(vm.OpUnset)
	}
}
