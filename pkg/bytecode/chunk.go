package bytecode

import "fmt"

// Chunk is the bytecode for one compiled function body: the instruction
// stream, its constant pool, and a line table recording the source line of
// every code byte for error reporting.
//
// A Chunk is append-only while its function compiles and immutable
// afterwards, so compiled chunks are safe to share read-only between VM
// instances.
type Chunk struct {
	Code      []byte
	Constants []Value
	Lines     []int // Source line per code byte; always len(Lines) == len(Code)
}

// NewChunk creates a new empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 64),
		Constants: make([]Value, 0, 8),
		Lines:     make([]int, 0, 64),
	}
}

// AddConstant adds a constant to the pool and returns its index.
// Equal constants share one pool entry (functions compare by identity, so
// distinct function objects are never merged).
func (c *Chunk) AddConstant(value Value) int {
	for i, existing := range c.Constants {
		if existing.Equals(value) {
			return i
		}
	}
	idx := len(c.Constants)
	c.Constants = append(c.Constants, value)
	return idx
}

// GetConstant returns the constant at the given index.
// Panics if the index is out of bounds.
func (c *Chunk) GetConstant(index int) Value {
	return c.Constants[index]
}

// Emit appends a single-byte opcode to the code section.
func (c *Chunk) Emit(op Opcode, line int) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Lines = append(c.Lines, line)
	return offset
}

// EmitWithOperand appends an opcode with operand bytes.
func (c *Chunk) EmitWithOperand(op Opcode, line int, operands ...byte) int {
	offset := len(c.Code)
	c.Code = append(c.Code, byte(op))
	c.Lines = append(c.Lines, line)
	for _, b := range operands {
		c.Code = append(c.Code, b)
		c.Lines = append(c.Lines, line)
	}
	return offset
}

// EmitJump emits a jump instruction with a placeholder offset.
// Returns the offset of the placeholder for later patching.
func (c *Chunk) EmitJump(op Opcode, line int) int {
	offset := c.EmitWithOperand(op, line, 0xFF, 0xFF)
	return offset + 1
}

// PatchJump patches a jump instruction's offset to jump to the current
// position. Returns an error if the distance does not fit in a signed
// 16-bit operand.
func (c *Chunk) PatchJump(placeholderOffset int) error {
	return c.PatchJumpTo(placeholderOffset, len(c.Code))
}

// PatchJumpTo patches a jump to go to a specific offset.
func (c *Chunk) PatchJumpTo(placeholderOffset int, target int) error {
	// Jumps are relative to the first byte after the 2-byte offset
	jumpFrom := placeholderOffset + 2
	delta := target - jumpFrom
	if delta > 32767 || delta < -32768 {
		return fmt.Errorf("jump offset %d exceeds 16 bits", delta)
	}

	c.Code[placeholderOffset] = byte(delta >> 8)
	c.Code[placeholderOffset+1] = byte(delta)
	return nil
}

// EmitLoop emits a backward jump to the given loop start.
func (c *Chunk) EmitLoop(loopStart int, line int) error {
	jumpFrom := len(c.Code) + 3 // After this instruction
	delta := loopStart - jumpFrom
	if delta > 32767 || delta < -32768 {
		return fmt.Errorf("jump offset %d exceeds 16 bits", delta)
	}

	c.EmitWithOperand(OpJump, line, byte(delta>>8), byte(delta))
	return nil
}

// CurrentOffset returns the current offset in the code section.
func (c *Chunk) CurrentOffset() int {
	return len(c.Code)
}

// CodeLen returns the length of the code section.
func (c *Chunk) CodeLen() int {
	return len(c.Code)
}

// ConstantCount returns the number of constants in the pool.
func (c *Chunk) ConstantCount() int {
	return len(c.Constants)
}

// Line returns the source line recorded for the code byte at the given
// offset, or 0 if the offset is out of range.
func (c *Chunk) Line(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}
