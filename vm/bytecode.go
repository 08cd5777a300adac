package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction. An instruction is the
// opcode byte followed by zero, one or two little-endian 16-bit operands.
type Opcode byte

// Stack Operations
const (
	OpNOP           Opcode = 0x00 // no operation
	OpPopTop        Opcode = 0x01 // discard top of stack
	OpDupTop        Opcode = 0x02 // duplicate top of stack
	OpDupTopAndNth  Opcode = 0x03 // push the value of the item n below the top
	OpPopAndPokeNth Opcode = 0x04 // pop a target, assign it the item n below it
)

// Loads
const (
	OpLoadConst      Opcode = 0x10 // push constant pool entry
	OpLoadName       Opcode = 0x11 // push name pool entry as a string
	OpLoadNull       Opcode = 0x12 // push null
	OpLoadNamedConst Opcode = 0x13 // push the value of a define()d constant
	OpLoadRef        Opcode = 0x14 // push an assignable handle for a variable
	OpLoadDeref      Opcode = 0x15 // push a variable's value
	OpLoadVarVar     Opcode = 0x16 // replace a name with a handle for $$name
	OpLoadGlobals    Opcode = 0x17 // push the $GLOBALS facade
	OpDeref          Opcode = 0x18 // replace a reference-like item with its value
)

// Assignment and element access
const (
	OpStore        Opcode = 0x20 // pop value, assign to the target n below, push value
	OpMakeRef      Opcode = 0x21 // pop source, bind the target n below to its reference
	OpFetchItem    Opcode = 0x22 // [container key] -> [element view]
	OpAppendIndex  Opcode = 0x23 // [container] -> [view of container[]]
	OpStoreItem    Opcode = 0x24 // [container key value] -> [value], container n below value
	OpGetItem      Opcode = 0x25 // [container key] -> [element value], fatal if missing
	OpGetItemQuiet Opcode = 0x26 // like GETITEM but null if missing
	OpUnset        Opcode = 0x27 // pop a target and unset it
	OpIsset        Opcode = 0x28 // [target] -> [bool]
	OpEmpty        Opcode = 0x29 // [target] -> [bool]
	OpConcatAssign Opcode = 0x2A // [target value] -> [result], appends in place
	OpPreInc       Opcode = 0x2B // [target] -> [new value]
	OpPreDec       Opcode = 0x2C // [target] -> [new value]
	OpPostInc      Opcode = 0x2D // [target] -> [old value]
	OpPostDec      Opcode = 0x2E // [target] -> [old value]
)

// Operators
const (
	OpAdd          Opcode = 0x30
	OpSub          Opcode = 0x31
	OpMul          Opcode = 0x32
	OpDiv          Opcode = 0x33
	OpMod          Opcode = 0x34
	OpConcat       Opcode = 0x35
	OpBitAnd       Opcode = 0x36
	OpBitOr        Opcode = 0x37
	OpBitXor       Opcode = 0x38
	OpShl          Opcode = 0x39
	OpShr          Opcode = 0x3A
	OpEq           Opcode = 0x40
	OpNe           Opcode = 0x41
	OpIdentical    Opcode = 0x42
	OpNotIdentical Opcode = 0x43
	OpLt           Opcode = 0x44
	OpLe           Opcode = 0x45
	OpGt           Opcode = 0x46
	OpGe           Opcode = 0x47
	OpNeg          Opcode = 0x50
	OpPos          Opcode = 0x51
	OpNot          Opcode = 0x52
	OpBitNot       Opcode = 0x53
	OpToBool       Opcode = 0x54
	OpCast         Opcode = 0x55 // operand is a Kind
)

// Control flow. Jump operands are absolute code offsets.
const (
	OpJump             Opcode = 0x60
	OpJumpIfFalse      Opcode = 0x61 // pop condition
	OpJumpIfTrue       Opcode = 0x62 // pop condition
	OpJumpIfFalseOrPop Opcode = 0x63 // keep condition when jumping
	OpJumpIfTrueOrPop  Opcode = 0x64 // keep condition when jumping
	OpUnwindJump       Opcode = 0x65 // discard n iterators, then jump
)

// Array construction
const (
	OpNewArray       Opcode = 0x70 // push an empty array
	OpArrayAppend    Opcode = 0x71 // [array value] -> [array]
	OpArraySet       Opcode = 0x72 // [array key value] -> [array]
	OpArrayAppendRef Opcode = 0x73 // [array target] -> [array]
	OpArraySetRef    Opcode = 0x74 // [array key target] -> [array]
)

// Iteration
const (
	OpCreateIter    Opcode = 0x78 // [array] -> [iterator]
	OpCreateIterRef Opcode = 0x79 // [target] -> [iterator over references]
	OpNextValueIter Opcode = 0x7A // [it] -> [it value], or jump when done
	OpNextItemIter  Opcode = 0x7B // [it] -> [it key value], or jump when done
	OpDiscardIter   Opcode = 0x7C // pop and release an iterator
)

// Calls, output and declarations
const (
	OpCall        Opcode = 0x80 // [callee args...] -> [result]
	OpDeclareFunc Opcode = 0x81 // declare a nested function unit
	OpReturn      Opcode = 0x82 // return top of stack
	OpReturnNull  Opcode = 0x83 // return null
	OpArgSnapshot Opcode = 0x84 // [target] -> [target carrying its current value]
	OpEcho        Opcode = 0x90 // write n values to the output
	OpGlobal      Opcode = 0x91 // bind a variable to the global of the same name
	OpStatic      Opcode = 0x92 // bind a variable to a function static, initial constant
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string // human-readable name
	Operands    int    // number of 16-bit operands
	StackEffect int    // net effect on the stack when falling through
	PerOperand  int    // additional effect per unit of the first operand
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP:           {"NOP", 0, 0, 0},
	OpPopTop:        {"POP_TOP", 0, -1, 0},
	OpDupTop:        {"DUP_TOP", 0, 1, 0},
	OpDupTopAndNth:  {"DUP_TOP_AND_NTH", 1, 1, 0},
	OpPopAndPokeNth: {"POP_AND_POKE_NTH", 1, -1, 0},

	OpLoadConst:      {"LOAD_CONST", 1, 1, 0},
	OpLoadName:       {"LOAD_NAME", 1, 1, 0},
	OpLoadNull:       {"LOAD_NULL", 0, 1, 0},
	OpLoadNamedConst: {"LOAD_NAMED_CONST", 1, 1, 0},
	OpLoadRef:        {"LOAD_REF", 1, 1, 0},
	OpLoadDeref:      {"LOAD_DEREF", 1, 1, 0},
	OpLoadVarVar:     {"LOAD_VAR_VAR", 0, 0, 0},
	OpLoadGlobals:    {"LOAD_GLOBALS", 0, 1, 0},
	OpDeref:          {"DEREF", 0, 0, 0},

	OpStore:        {"STORE", 1, -1, 0},
	OpMakeRef:      {"MAKE_REF", 1, -1, 0},
	OpFetchItem:    {"FETCHITEM", 0, -1, 0},
	OpAppendIndex:  {"APPEND_INDEX", 0, 0, 0},
	OpStoreItem:    {"STOREITEM", 1, -2, 0},
	OpGetItem:      {"GETITEM", 0, -1, 0},
	OpGetItemQuiet: {"GETITEM_QUIET", 0, -1, 0},
	OpUnset:        {"UNSET", 0, -1, 0},
	OpIsset:        {"ISSET", 0, 0, 0},
	OpEmpty:        {"EMPTY", 0, 0, 0},
	OpConcatAssign: {"CONCAT_ASSIGN", 0, -1, 0},
	OpPreInc:       {"PRE_INC", 0, 0, 0},
	OpPreDec:       {"PRE_DEC", 0, 0, 0},
	OpPostInc:      {"POST_INC", 0, 0, 0},
	OpPostDec:      {"POST_DEC", 0, 0, 0},

	OpAdd:          {"ADD", 0, -1, 0},
	OpSub:          {"SUB", 0, -1, 0},
	OpMul:          {"MUL", 0, -1, 0},
	OpDiv:          {"DIV", 0, -1, 0},
	OpMod:          {"MOD", 0, -1, 0},
	OpConcat:       {"CONCAT", 0, -1, 0},
	OpBitAnd:       {"BIT_AND", 0, -1, 0},
	OpBitOr:        {"BIT_OR", 0, -1, 0},
	OpBitXor:       {"BIT_XOR", 0, -1, 0},
	OpShl:          {"SHL", 0, -1, 0},
	OpShr:          {"SHR", 0, -1, 0},
	OpEq:           {"EQ", 0, -1, 0},
	OpNe:           {"NE", 0, -1, 0},
	OpIdentical:    {"IDENTICAL", 0, -1, 0},
	OpNotIdentical: {"NOT_IDENTICAL", 0, -1, 0},
	OpLt:           {"LT", 0, -1, 0},
	OpLe:           {"LE", 0, -1, 0},
	OpGt:           {"GT", 0, -1, 0},
	OpGe:           {"GE", 0, -1, 0},
	OpNeg:          {"NEG", 0, 0, 0},
	OpPos:          {"POS", 0, 0, 0},
	OpNot:          {"NOT", 0, 0, 0},
	OpBitNot:       {"BIT_NOT", 0, 0, 0},
	OpToBool:       {"TO_BOOL", 0, 0, 0},
	OpCast:         {"CAST", 1, 0, 0},

	OpJump:             {"JUMP", 1, 0, 0},
	OpJumpIfFalse:      {"JUMP_IF_FALSE", 1, -1, 0},
	OpJumpIfTrue:       {"JUMP_IF_TRUE", 1, -1, 0},
	OpJumpIfFalseOrPop: {"JUMP_IF_FALSE_OR_POP", 1, -1, 0},
	OpJumpIfTrueOrPop:  {"JUMP_IF_TRUE_OR_POP", 1, -1, 0},
	OpUnwindJump:       {"UNWIND_JUMP", 2, 0, 0}, // never falls through

	OpNewArray:       {"NEW_ARRAY", 0, 1, 0},
	OpArrayAppend:    {"ARRAY_APPEND", 0, -1, 0},
	OpArraySet:       {"ARRAY_SET", 0, -2, 0},
	OpArrayAppendRef: {"ARRAY_APPEND_REF", 0, -1, 0},
	OpArraySetRef:    {"ARRAY_SET_REF", 0, -2, 0},

	OpCreateIter:    {"CREATE_ITER", 0, 0, 0},
	OpCreateIterRef: {"CREATE_ITER_REF", 0, 0, 0},
	OpNextValueIter: {"NEXT_VALUE_ITER", 1, 1, 0},
	OpNextItemIter:  {"NEXT_ITEM_ITER", 1, 2, 0},
	OpDiscardIter:   {"DISCARD_ITER", 0, -1, 0},

	OpCall:        {"CALL", 1, 0, -1},
	OpDeclareFunc: {"DECLARE_FUNC", 1, 0, 0},
	OpReturn:      {"RETURN", 0, -1, 0},
	OpReturnNull:  {"RETURN_NULL", 0, 0, 0},
	OpArgSnapshot: {"ARG_SNAPSHOT", 0, 0, 0},
	OpEcho:        {"ECHO", 1, 0, -1},
	OpGlobal:      {"GLOBAL", 1, 0, 0},
	OpStatic:      {"STATIC", 2, 0, 0},
}

// opcodeIndex is opcodeTable laid out for lookup by opcode byte.
var (
	opcodeIndex [256]OpcodeInfo
	opcodeKnown [256]bool
)

func init() {
	for op, info := range opcodeTable {
		opcodeIndex[op] = info
		opcodeKnown[op] = true
	}
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if opcodeKnown[op] {
		return opcodeIndex[op]
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// Operands returns the number of 16-bit operands.
func (op Opcode) Operands() int {
	return op.Info().Operands
}

// Size returns the encoded length of the instruction in bytes.
func (op Opcode) Size() int {
	return 1 + 2*op.Operands()
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool {
	return opcodeKnown[op]
}

// StackEffect returns the instruction's net stack effect given its first
// operand.
func (op Opcode) StackEffect(arg int) int {
	info := op.Info()
	return info.StackEffect + info.PerOperand*arg
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// IsJump reports whether the last operand of op is a jump target.
func (op Opcode) IsJump() bool {
	switch op {
	case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpJumpIfFalseOrPop, OpJumpIfTrueOrPop,
		OpUnwindJump, OpNextValueIter, OpNextItemIter:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// BytecodeBuilder: Helper for constructing bytecode
// ---------------------------------------------------------------------------

// MaxOperand is the largest value a 16-bit operand can hold. Jump
// targets are operands too, so it also bounds the size of a unit.
const MaxOperand = 0xFFFF

// ErrUnitTooLarge is reported when an operand does not fit in 16 bits.
var ErrUnitTooLarge = errors.New("unit too large")

// BytecodeBuilder helps construct bytecode sequences.
type BytecodeBuilder struct {
	bytes []byte
	err   error // first operand overflow
}

// NewBytecodeBuilder creates a new bytecode builder.
func NewBytecodeBuilder() *BytecodeBuilder {
	return &BytecodeBuilder{
		bytes: make([]byte, 0, 64),
	}
}

// Bytes returns the constructed bytecode.
func (b *BytecodeBuilder) Bytes() []byte {
	return b.bytes
}

// Err returns the first operand overflow seen by the builder, if any.
func (b *BytecodeBuilder) Err() error {
	return b.err
}

// operand checks that v fits in 16 bits. On overflow it records
// ErrUnitTooLarge and returns 0.
func (b *BytecodeBuilder) operand(v int) uint16 {
	if v < 0 || v > MaxOperand {
		if b.err == nil {
			b.err = fmt.Errorf("%w: operand %d at offset %d", ErrUnitTooLarge, v, len(b.bytes))
		}
		return 0
	}
	return uint16(v)
}

// Len returns the current length.
func (b *BytecodeBuilder) Len() int {
	return len(b.bytes)
}

// Emit appends an opcode with no operands.
func (b *BytecodeBuilder) Emit(op Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitArg appends an opcode with one 16-bit operand.
func (b *BytecodeBuilder) EmitArg(op Opcode, arg uint16) {
	b.bytes = append(b.bytes, byte(op), byte(arg), byte(arg>>8))
}

// EmitArgs appends an opcode with two 16-bit operands.
func (b *BytecodeBuilder) EmitArgs(op Opcode, arg1, arg2 uint16) {
	b.bytes = append(b.bytes, byte(op), byte(arg1), byte(arg1>>8), byte(arg2), byte(arg2>>8))
}

// PatchUint16 overwrites the operand at pos.
func (b *BytecodeBuilder) PatchUint16(pos int, v uint16) {
	binary.LittleEndian.PutUint16(b.bytes[pos:], v)
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// jumpPlaceholder fills an operand that is waiting for its label.
const jumpPlaceholder = 0xFFFF

// Label is a jump target that may not have a position yet.
type Label struct {
	resolved bool
	position int   // target position once resolved
	refs     []int // operand positions waiting for the target
}

// NewLabel creates an unresolved label.
func (b *BytecodeBuilder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Resolved reports whether the label has been marked.
func (l *Label) Resolved() bool { return l.resolved }

// Position returns the marked position.
func (l *Label) Position() int { return l.position }

// Pending returns the number of jumps still waiting for this label.
func (l *Label) Pending() int { return len(l.refs) }

// Mark resolves a label to the current position and patches every jump
// recorded against it.
func (b *BytecodeBuilder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.bytes)
	target := b.operand(label.position)
	for _, ref := range label.refs {
		b.PatchUint16(ref, target)
	}
	label.refs = nil
}

// EmitJump emits a jump instruction to label.
func (b *BytecodeBuilder) EmitJump(op Opcode, label *Label) {
	b.bytes = append(b.bytes, byte(op))
	b.emitTarget(label)
}

// EmitJumpWith emits a two-operand jump whose first operand is arg.
func (b *BytecodeBuilder) EmitJumpWith(op Opcode, arg uint16, label *Label) {
	b.bytes = append(b.bytes, byte(op), byte(arg), byte(arg>>8))
	b.emitTarget(label)
}

func (b *BytecodeBuilder) emitTarget(label *Label) {
	if label.resolved {
		target := b.operand(label.position)
		b.bytes = append(b.bytes, byte(target), byte(target>>8))
		return
	}
	label.refs = append(label.refs, len(b.bytes))
	b.bytes = append(b.bytes, byte(jumpPlaceholder&0xFF), byte(jumpPlaceholder>>8))
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Decode reads the instruction at pc. It returns the opcode, its operands
// (zero when absent) and the position of the next instruction.
func Decode(code []byte, pc int) (op Opcode, a, b int, next int) {
	op = Opcode(code[pc])
	next = pc + 1
	switch opcodeIndex[op].Operands {
	case 2:
		a = int(binary.LittleEndian.Uint16(code[next:]))
		b = int(binary.LittleEndian.Uint16(code[next+2:]))
		next += 4
	case 1:
		a = int(binary.LittleEndian.Uint16(code[next:]))
		next += 2
	}
	return op, a, b, next
}

// ComputeStackDepth scans code in a straight line, summing each
// instruction's declared effect, and returns the maximum depth reached.
// Jumps record the depth they carry to their target; after an instruction
// that never falls through, the scan resumes at the depth recorded for the
// following position. A target reached at two different depths is an
// error.
func ComputeStackDepth(code []byte) (int, error) {
	depth, max := 0, 0
	at := make(map[int]int)
	reached := true
	for pc := 0; pc < len(code); {
		op := Opcode(code[pc])
		if !op.Valid() {
			return 0, fmt.Errorf("unknown opcode 0x%02X at %d", byte(op), pc)
		}
		if pc+op.Size() > len(code) {
			return 0, fmt.Errorf("truncated %s at %d", op, pc)
		}
		if d, ok := at[pc]; ok {
			if reached && d != depth {
				return 0, fmt.Errorf("inconsistent stack depth at %d: %d and %d", pc, d, depth)
			}
			depth = d
		}
		_, a, b, next := Decode(code, pc)
		switch op {
		case OpDupTopAndNth, OpStore, OpMakeRef, OpStoreItem, OpPopAndPokeNth:
			if a >= depth {
				return 0, fmt.Errorf("%s %d reaches below the stack at %d", op, a, pc)
			}
		}

		// Depth carried to a jump target.
		target, carried := -1, 0
		switch op {
		case OpJump:
			target, carried = a, depth
		case OpJumpIfFalse, OpJumpIfTrue:
			target, carried = a, depth-1
		case OpJumpIfFalseOrPop, OpJumpIfTrueOrPop, OpNextValueIter, OpNextItemIter:
			target, carried = a, depth
		case OpUnwindJump:
			target, carried = b, depth-a
		}
		if target >= 0 && target > pc {
			if d, ok := at[target]; ok && d != carried {
				return 0, fmt.Errorf("inconsistent stack depth at %d: %d and %d", target, d, carried)
			}
			at[target] = carried
		}

		depth += op.StackEffect(a)
		if depth < 0 {
			return 0, fmt.Errorf("stack underflow at %d (%s)", pc, op)
		}
		if depth > max {
			max = depth
		}
		switch op {
		case OpJump, OpUnwindJump, OpReturn, OpReturnNull:
			reached = false
		default:
			reached = true
		}
		pc = next
	}
	return max, nil
}
