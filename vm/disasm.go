package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// DisassembleInstruction renders the instruction at pc and returns the
// position of the next one. u resolves pool operands; it may be nil.
func DisassembleInstruction(u *ByteCode, code []byte, pc int) (string, int) {
	op, a, b, next := Decode(code, pc)
	name := op.Name()

	switch op {
	case OpLoadConst, OpStatic:
		s := fmt.Sprintf("%04d  %s %d", pc, name, a)
		idx := a
		if op == OpStatic {
			s = fmt.Sprintf("%04d  %s %d %d", pc, name, a, b)
			idx = b
		}
		if u != nil && idx < len(u.Consts) {
			s += " (" + ReprConst(u.Consts[idx]) + ")"
		}
		if op == OpStatic && u != nil && a < len(u.VarNames) {
			s += " $" + u.VarNames[a]
		}
		return s, next

	case OpLoadName, OpLoadNamedConst:
		if u != nil && a < len(u.Names) {
			return fmt.Sprintf("%04d  %s %d (%s)", pc, name, a, u.Names[a]), next
		}
		return fmt.Sprintf("%04d  %s %d", pc, name, a), next

	case OpLoadRef, OpLoadDeref, OpGlobal:
		if u != nil && a < len(u.VarNames) {
			return fmt.Sprintf("%04d  %s %d ($%s)", pc, name, a, u.VarNames[a]), next
		}
		return fmt.Sprintf("%04d  %s %d", pc, name, a), next

	case OpDeclareFunc:
		if u != nil && a < len(u.Functions) {
			return fmt.Sprintf("%04d  %s %d (%s)", pc, name, a, u.Functions[a].Name), next
		}
		return fmt.Sprintf("%04d  %s %d", pc, name, a), next

	case OpCast:
		return fmt.Sprintf("%04d  %s %s", pc, name, Kind(a)), next

	case OpJump, OpJumpIfFalse, OpJumpIfTrue, OpJumpIfFalseOrPop, OpJumpIfTrueOrPop,
		OpNextValueIter, OpNextItemIter:
		return fmt.Sprintf("%04d  %s -> %04d", pc, name, a), next

	case OpUnwindJump:
		return fmt.Sprintf("%04d  %s %d -> %04d", pc, name, a, b), next
	}

	switch op.Operands() {
	case 2:
		return fmt.Sprintf("%04d  %s %d %d", pc, name, a, b), next
	case 1:
		return fmt.Sprintf("%04d  %s %d", pc, name, a), next
	}
	return fmt.Sprintf("%04d  %s", pc, name), next
}

// DisassembleCode renders raw bytecode with no pools.
func DisassembleCode(code []byte) string {
	var b strings.Builder
	for pc := 0; pc < len(code); {
		var line string
		line, pc = DisassembleInstruction(nil, code, pc)
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String()
}

// Disassemble renders a unit and its nested functions.
func Disassemble(u *ByteCode) string {
	var b strings.Builder
	disassembleUnit(&b, u)
	return b.String()
}

func disassembleUnit(b *strings.Builder, u *ByteCode) {
	storage := "slots"
	if u.UsesDict {
		storage = "dict"
	}
	fmt.Fprintf(b, "== %s (%d bytes, stack %d, %s) ==\n", u.Name, len(u.Code), u.StackDepth, storage)
	if len(u.Params) > 0 {
		params := make([]string, len(u.Params))
		for i, p := range u.Params {
			s := "$" + p.Name
			if p.ByRef {
				s = "&" + s
			}
			if p.HasDefault {
				s += " = " + ReprConst(p.Default)
			}
			params[i] = s
		}
		fmt.Fprintf(b, "params: %s\n", strings.Join(params, ", "))
	}
	line := 0
	for pc := 0; pc < len(u.Code); {
		if l := u.LineAt(pc); l != line {
			line = l
			fmt.Fprintf(b, "; line %d\n", line)
		}
		var s string
		s, pc = DisassembleInstruction(u, u.Code, pc)
		b.WriteString(s)
		b.WriteByte('\n')
	}
	for _, fn := range u.Functions {
		b.WriteByte('\n')
		disassembleUnit(b, fn)
	}
}

// ReprConst renders a constant the way var_export would.
func ReprConst(v Value) string {
	switch x := v.(type) {
	case nil, nullValue:
		return "NULL"
	case Bool:
		if x {
			return "true"
		}
		return "false"
	case Int:
		return strconv.FormatInt(int64(x), 10)
	case Float:
		return FormatFloat(float64(x))
	case *Str:
		return strconv.Quote(x.String())
	case *Array:
		parts := make([]string, 0, x.Len())
		for k, e := range x.All() {
			key := strconv.FormatInt(k.Int(), 10)
			if !k.IsInt() {
				key = strconv.Quote(k.String())
			}
			parts = append(parts, key+" => "+ReprConst(e))
		}
		return "array(" + strings.Join(parts, ", ") + ")"
	}
	return fmt.Sprintf("%v", v)
}
