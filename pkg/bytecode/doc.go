// Package bytecode defines the shared vocabulary of the rlox interpreter:
// the opcode set, the Chunk container that holds a compiled function body,
// and the runtime value model.
//
// The bytecode format is designed for:
//   - Compact representation (1-3 bytes per instruction)
//   - Fast decoding (fixed-width opcodes, simple operand formats)
//   - Lossless disassembly (an opcode metadata table drives listings)
//
// # Architecture Overview
//
//   - Opcodes: stack-based instructions covering literals, variable access,
//     arithmetic, comparison, control flow, calls, closures, and classes.
//     Constant-pool operands are big-endian u16, slot operands u8, and jump
//     offsets signed i16 relative to the end of the instruction.
//
//   - Chunk: one compiled function body holding code bytes, a deduplicated
//     constant pool of Values, and a per-byte source-line table. Chunks are
//     append-only during compilation and immutable afterwards, so they can
//     be shared read-only between VM runs.
//
//   - Values: a closed tagged variant over nil, booleans, float64 numbers,
//     and heap objects (strings, functions, closures, native functions,
//     classes, instances). Strings compare by content, numbers by IEEE
//     value, everything else by identity.
//
// # Capture Semantics
//
// Closures capture variables by reference through shared Upvalue cells.
// Every closure capturing the same variable holds the same cell, so
// mutations made through one closure are visible to all of them. A cell is
// "open" while its variable lives on the VM stack. It is closed exactly
// once, taking ownership of the value, when the slot dies.
//
// The compiler in the compiler package produces Chunks; the vm package
// executes them; vm/dist serializes compiled function trees.
package bytecode
