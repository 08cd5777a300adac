// Package vm implements the hippo virtual machine.
//
// This package contains:
//   - the value model: scalars, copy-on-write strings and arrays
//   - array storage strategies with O(1) copies
//   - variable cells and explicit references
//   - the bytecode format, builder and disassembler
//   - the interpreter loop and the core builtins
package vm
