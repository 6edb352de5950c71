// Package vm executes compiled Lox bytecode.
//
// This package contains:
//   - A stack-based dispatch loop over the pkg/bytecode opcode set
//   - Call frames sharing one value stack, with parameters in slot 0
//   - Shared upvalue cells, open while their stack slot is live
//   - A globals table that persists across runs for REPL sessions
//   - Host natives registered through DefineNative
package vm
