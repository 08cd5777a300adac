package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

// DefaultMaxCallDepth bounds recursion unless configured otherwise.
const DefaultMaxCallDepth = 512

// ---------------------------------------------------------------------------
// Interpreter: Bytecode execution engine
// ---------------------------------------------------------------------------

// Interpreter executes compiled units. It owns the process-wide tables:
// functions, builtins, constants and the global variable store. An
// Interpreter is not safe for concurrent use.
type Interpreter struct {
	out io.Writer

	functions map[string]*Function
	builtins  map[string]*Builtin
	constants map[string]Value

	globals      *VarStore
	globalsArray *Array

	frames []*Frame

	id            uuid.UUID
	log           commonlog.Logger
	diags         []Diagnostic
	maxCallDepth  int
	trace         bool
	strictNotices bool
	profiler      *Profiler

	ctx   context.Context
	steps uint64
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithOutput sets where echo and the printing builtins write.
func WithOutput(w io.Writer) Option {
	return func(i *Interpreter) { i.out = w }
}

// WithMaxCallDepth bounds the number of nested calls.
func WithMaxCallDepth(n int) Option {
	return func(i *Interpreter) {
		if n > 0 {
			i.maxCallDepth = n
		}
	}
}

// WithTrace logs every executed instruction at debug level.
func WithTrace(on bool) Option {
	return func(i *Interpreter) { i.trace = on }
}

// WithStrictNotices turns notices and warnings into fatal errors.
func WithStrictNotices(on bool) Option {
	return func(i *Interpreter) { i.strictNotices = on }
}

// WithProfiler counts every function call in p.
func WithProfiler(p *Profiler) Option {
	return func(i *Interpreter) { i.profiler = p }
}

// WithLogger replaces the default "hippo.vm" logger.
func WithLogger(log commonlog.Logger) Option {
	return func(i *Interpreter) { i.log = log }
}

// NewInterpreter creates an interpreter with the core builtins and
// constants registered.
func NewInterpreter(opts ...Option) *Interpreter {
	i := &Interpreter{
		out:          os.Stdout,
		functions:    make(map[string]*Function),
		builtins:     make(map[string]*Builtin),
		constants:    make(map[string]Value),
		globals:      NewVarStore(),
		id:           uuid.New(),
		maxCallDepth: DefaultMaxCallDepth,
	}
	i.globalsArray = NewGlobalsArray(i.globals)
	for _, opt := range opts {
		opt(i)
	}
	if i.log == nil {
		i.log = commonlog.GetLogger("hippo.vm")
	}
	i.log = commonlog.NewKeyValueLogger(i.log, "interpreter", i.id.String())

	i.constants["PHP_EOL"] = NewString("\n")
	i.constants["PHP_INT_MAX"] = Int(math.MaxInt64)
	i.constants["PHP_INT_MIN"] = Int(math.MinInt64)
	i.constants["PHP_INT_SIZE"] = Int(8)
	i.constants["PHP_FLOAT_EPSILON"] = Float(2.220446049250313e-16)
	i.constants["M_PI"] = Float(math.Pi)
	i.constants["INF"] = Float(math.Inf(1))
	i.constants["NAN"] = Float(math.NaN())
	registerCoreBuiltins(i)
	return i
}

// ID identifies the interpreter in log output.
func (i *Interpreter) ID() string { return i.id.String() }

// Output returns the output writer.
func (i *Interpreter) Output() io.Writer { return i.out }

// SetOutput replaces the output writer.
func (i *Interpreter) SetOutput(w io.Writer) { i.out = w }

// Profiler returns the call profiler, or nil.
func (i *Interpreter) Profiler() *Profiler { return i.profiler }

// Globals returns the global variable store.
func (i *Interpreter) Globals() *VarStore { return i.globals }

// Global returns the value of a global variable.
func (i *Interpreter) Global(name string) (Value, bool) {
	c, ok := i.globals.Lookup(name)
	if !ok || !c.Defined() {
		return nil, false
	}
	return c.Deref(), true
}

// SetGlobal assigns a global variable.
func (i *Interpreter) SetGlobal(name string, v Value) {
	i.globals.Cell(name).Store(CopyForStore(v))
}

// Function returns a declared user function.
func (i *Interpreter) Function(name string) (*Function, bool) {
	fn, ok := i.functions[strings.ToLower(name)]
	return fn, ok
}

// Constant returns the value of a defined constant.
func (i *Interpreter) Constant(name string) (Value, bool) {
	v, ok := i.constants[name]
	return v, ok
}

// Define defines a constant. It reports false when name already exists.
func (i *Interpreter) Define(name string, v Value) bool {
	if _, ok := i.constants[name]; ok {
		return false
	}
	i.constants[name] = CopyForStore(v)
	return true
}

// current returns the executing frame, or nil.
func (i *Interpreter) current() *Frame {
	if len(i.frames) == 0 {
		return nil
	}
	return i.frames[len(i.frames)-1]
}

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// declare registers a user function. Redeclaring a name is fatal.
func (i *Interpreter) declare(unit *ByteCode) error {
	key := strings.ToLower(unit.Name)
	if _, ok := i.functions[key]; ok {
		return newError(RuntimeError, "Cannot redeclare %s()", unit.Name)
	}
	if _, ok := i.builtins[key]; ok {
		return newError(RuntimeError, "Cannot redeclare %s()", unit.Name)
	}
	i.functions[key] = newFunction(unit)
	return nil
}

func (i *Interpreter) declareHoisted(unit *ByteCode) error {
	for _, idx := range unit.Hoisted {
		if err := i.declare(unit.Functions[idx]); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Main interpreter loop
// ---------------------------------------------------------------------------

// Run executes a top-level unit in the global scope. Functions the unit
// declares at its top level are available before it starts.
func (i *Interpreter) Run(unit *ByteCode) error {
	return i.RunContext(context.Background(), unit)
}

// RunContext is Run with cancellation. The loop polls ctx every
// cancelCheckInterval instructions and fails with a RuntimeError once it
// is done.
func (i *Interpreter) RunContext(ctx context.Context, unit *ByteCode) error {
	prev := i.ctx
	i.ctx = ctx
	defer func() { i.ctx = prev }()

	if err := i.declareHoisted(unit); err != nil {
		var e *Error
		if errors.As(err, &e) {
			e.addTrace(unit.Name, 0, "")
		}
		return err
	}
	i.log.Debugf("running %s (%d bytes)", unit.Name, len(unit.Code))
	_, err := i.execute(newFrame(unit, nil, i.globals))
	return err
}

// Call invokes a user function or builtin by name with argument values.
func (i *Interpreter) Call(name string, args ...Value) (Value, error) {
	refs := make([]Ref, len(args))
	for n, a := range args {
		refs[n] = a
	}
	return i.callFunction(name, refs)
}

// execute runs f to completion. Every error leaving the frame carries the
// frame's location.
func (i *Interpreter) execute(f *Frame) (result Value, err error) {
	if len(i.frames) >= i.maxCallDepth {
		return nil, newError(RuntimeError, "Maximum function nesting level of '%d' reached", i.maxCallDepth)
	}
	i.frames = append(i.frames, f)
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*Error); ok {
				err = e
			} else {
				err = newError(InternalError, "%v", r)
			}
		}
		if err != nil {
			e, ok := err.(*Error)
			if !ok {
				e = &Error{Kind: RuntimeError, Msg: err.Error()}
				err = e
			}
			line := f.Line()
			e.addTrace(f.unit.Name, line, f.unit.SourceLine(line))
			if !f.done {
				f.invalidate(i, nil)
			}
		}
		i.frames = i.frames[:len(i.frames)-1]
	}()
	return i.loop(f)
}

// returnPC is the handler result that ends the frame.
const returnPC = -1

const cancelCheckInterval = 1024

func (i *Interpreter) checkCancelled() error {
	if i.ctx == nil {
		return nil
	}
	if err := i.ctx.Err(); err != nil {
		return &Error{Kind: RuntimeError, Msg: "Execution interrupted: " + err.Error()}
	}
	return nil
}

func (i *Interpreter) loop(f *Frame) (Value, error) {
	code := f.unit.Code
	pc := 0
	for pc < len(code) {
		f.pc = pc
		op, a, b, next := Decode(code, pc)
		if i.trace {
			i.traceInstruction(f)
		}
		if i.steps++; i.steps%cancelCheckInterval == 0 {
			if err := i.checkCancelled(); err != nil {
				return nil, err
			}
		}
		h := handlers[op]
		if h == nil {
			return nil, newError(InternalError, "unknown opcode 0x%02X at %d", byte(op), pc)
		}
		np, err := h(i, f, a, b, next)
		if err != nil {
			return nil, err
		}
		if np == returnPC {
			return f.ret, nil
		}
		pc = np
	}
	f.invalidate(i, nil)
	return Null, nil
}

func (i *Interpreter) traceInstruction(f *Frame) {
	if !i.log.AllowLevel(commonlog.Debug) {
		return
	}
	s, _ := DisassembleInstruction(f.unit, f.unit.Code, f.pc)
	i.log.Debugf("%s:%d %s [sp=%d]", f.unit.Name, f.Line(), s, f.sp)
}

// release drops an array that its holder no longer reads. A copy view is
// detached from its parent once its own views are materialized. An array owning its storage, with no views of
// its own, releases the views nested in it. Arrays an operand stack still
// holds are left alone.
func (i *Interpreter) release(v Value) {
	a, ok := v.(*Array)
	if !ok || i.onStack(a) {
		return
	}
	if a.Strategy() == StrategyCopy {
		// Views of a dropped view get storage of their own first.
		a.materializeViews()
		a.Release()
		return
	}
	if a.Views() == 0 {
		a.eachOwned(func(e *Array) { i.release(e) })
	}
}

// releaseTemp releases v if it is a temporary array nothing took.
func (i *Interpreter) releaseTemp(v Ref) {
	if a, ok := v.(*Array); ok && a.temp {
		i.release(a)
	}
}

func (i *Interpreter) onStack(a *Array) bool {
	for _, f := range i.frames {
		for n := 0; n < f.sp; n++ {
			switch x := f.stack[n].(type) {
			case *Array:
				if x == a {
					return true
				}
			case *lateArg:
				if x.value == Value(a) {
					return true
				}
			}
		}
	}
	return false
}

// write sends s to the output.
func (i *Interpreter) write(s string) error {
	if _, err := io.WriteString(i.out, s); err != nil {
		return newError(RuntimeError, "write failed: %v", err)
	}
	return nil
}

// stringOf converts v for output or concatenation, reporting arrays.
func (i *Interpreter) stringOf(v Value) (string, error) {
	if _, ok := v.(*Array); ok {
		return "Array", i.notice("Array to string conversion")
	}
	return ToString(v), nil
}

// strOf is stringOf for operands of the . operator.
func (i *Interpreter) strOf(v Value) (*Str, error) {
	switch x := v.(type) {
	case *Str:
		return x, nil
	case *Array:
		return NewString("Array"), i.notice("Array to string conversion")
	}
	return NewString(ToString(v)), nil
}

func (i *Interpreter) String() string {
	return fmt.Sprintf("<interpreter %s>", i.id)
}
