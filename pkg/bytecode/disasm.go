package bytecode

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// Disassemble returns a human-readable bytecode listing for the chunk.
func (c *Chunk) Disassemble() string {
	return c.DisassembleWithName("")
}

// DisassembleWithName returns a human-readable bytecode listing with a name
// header. Each line shows the instruction offset, the source line (or "|"
// when unchanged from the previous instruction), the opcode name, and any
// operands with constant values resolved inline.
func (c *Chunk) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("== %s ==\n", name))
	}
	for _, line := range c.DisassembleToLines() {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// DisassembleToLines returns the disassembly as a slice of lines.
func (c *Chunk) DisassembleToLines() []string {
	var lines []string
	offset := 0
	prevLine := -1
	for offset < len(c.Code) {
		text, instrLen := c.disassembleInstruction(offset)
		if instrLen == 0 {
			break
		}

		srcLine := c.Line(offset)
		lineCol := strconv.Itoa(srcLine)
		if srcLine == prevLine {
			lineCol = "|"
		}
		prevLine = srcLine

		lines = append(lines, fmt.Sprintf("%04X %4s  %s", offset, lineCol, text))
		offset += instrLen
	}
	return lines
}

// DisassembleInstruction returns a human-readable representation of a
// single instruction.
func (c *Chunk) DisassembleInstruction(offset int) string {
	text, _ := c.disassembleInstruction(offset)
	return text
}

// disassembleInstruction disassembles a single instruction at the given
// offset. Returns the formatted string and the instruction length.
func (c *Chunk) disassembleInstruction(offset int) (string, int) {
	if offset >= len(c.Code) {
		return "<end of code>", 0
	}

	op := Opcode(c.Code[offset])
	info := GetOpcodeInfo(op)

	switch op {
	// Constant-pool operands
	case OpConstant, OpClosure, OpGetGlobal, OpDefineGlobal, OpSetGlobal,
		OpGetProperty, OpSetProperty, OpClass:
		idx := c.readUint16(offset + 1)
		constVal := ""
		if int(idx) < len(c.Constants) {
			constVal = c.constantDisplay(c.Constants[idx])
		}
		return fmt.Sprintf("%s %d ; %s", info.Name, idx, constVal), 3

	// Slot or index operands
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue:
		slot := c.Code[offset+1]
		return fmt.Sprintf("%s %d", info.Name, slot), 2

	case OpCall:
		argc := c.Code[offset+1]
		return fmt.Sprintf("CALL argc=%d", argc), 2

	// Jumps
	case OpJump, OpJumpIfFalse:
		delta := c.readInt16(offset + 1)
		target := offset + 3 + int(delta)
		return fmt.Sprintf("%s %+d (-> %04X)", info.Name, delta, target), 3

	// Default: use info from table
	default:
		instrLen := 1 + info.OperandLen
		if info.OperandLen == 0 {
			return info.Name, instrLen
		}

		operands := make([]string, 0, info.OperandLen)
		for i := 0; i < info.OperandLen; i++ {
			if offset+1+i < len(c.Code) {
				operands = append(operands, fmt.Sprintf("0x%02X", c.Code[offset+1+i]))
			}
		}
		return fmt.Sprintf("%s %s", info.Name, strings.Join(operands, " ")), instrLen
	}
}

// constantDisplay renders a constant for a listing comment, quoting
// strings and truncating long ones.
func (c *Chunk) constantDisplay(v Value) string {
	if v.IsString() {
		display := v.AsString()
		if len(display) > 20 {
			display = display[:17] + "..."
		}
		return strconv.Quote(display)
	}
	return v.String()
}

// InstructionCount returns the number of instructions in the chunk.
// Note: This iterates through all code, so it's O(n).
func (c *Chunk) InstructionCount() int {
	count := 0
	offset := 0
	for offset < len(c.Code) {
		op := Opcode(c.Code[offset])
		offset += op.InstructionLen()
		count++
	}
	return count
}

// readUint16 reads a big-endian uint16 from the code at the given offset.
func (c *Chunk) readUint16(offset int) uint16 {
	if offset+1 >= len(c.Code) {
		return 0
	}
	return binary.BigEndian.Uint16(c.Code[offset:])
}

// readInt16 reads a big-endian int16 from the code at the given offset.
func (c *Chunk) readInt16(offset int) int16 {
	return int16(c.readUint16(offset))
}

// DisassembleFunction returns the listing for a function and, after it,
// every nested function found in its constant pool, each under its own
// header.
func DisassembleFunction(fn *Function) string {
	var sb strings.Builder
	writeFunctionListing(&sb, fn)
	return sb.String()
}

func writeFunctionListing(sb *strings.Builder, fn *Function) {
	sb.WriteString(fmt.Sprintf("== %s ==\n", fn.String()))
	if len(fn.Captures) > 0 {
		parts := make([]string, len(fn.Captures))
		for i, cap := range fn.Captures {
			source := "upvalue"
			if cap.IsLocal {
				source = "local"
			}
			parts[i] = fmt.Sprintf("%s (%s %d)", cap.Name, source, cap.Index)
		}
		sb.WriteString("; captures: " + strings.Join(parts, ", ") + "\n")
	}
	for _, line := range fn.Chunk.DisassembleToLines() {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	for _, constant := range fn.Chunk.Constants {
		if constant.IsObject() {
			if nested, ok := constant.Obj().(*Function); ok {
				sb.WriteString("\n")
				writeFunctionListing(sb, nested)
			}
		}
	}
}
