package bytecode

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Constants and literals (0x00-0x0F)
	// ========================================================================

	OpConstant Opcode = 0x00 // Push constant from pool: OpConstant <index:u16>
	OpNil      Opcode = 0x01 // Push nil
	OpTrue     Opcode = 0x02 // Push true
	OpFalse    Opcode = 0x03 // Push false

	// ========================================================================
	// Stack manipulation (0x10-0x1F)
	// ========================================================================

	OpPop Opcode = 0x10 // Pop top of stack

	// ========================================================================
	// Variables (0x20-0x2F)
	// ========================================================================

	OpGetLocal     Opcode = 0x20 // Push local slot: OpGetLocal <slot:u8>
	OpSetLocal     Opcode = 0x21 // Store top of stack to local slot: OpSetLocal <slot:u8>
	OpGetGlobal    Opcode = 0x22 // Push global by name: OpGetGlobal <name:u16>
	OpDefineGlobal Opcode = 0x23 // Pop and bind global: OpDefineGlobal <name:u16>
	OpSetGlobal    Opcode = 0x24 // Store top to existing global: OpSetGlobal <name:u16>
	OpGetUpvalue   Opcode = 0x25 // Push captured variable: OpGetUpvalue <index:u8>
	OpSetUpvalue   Opcode = 0x26 // Store top to captured variable: OpSetUpvalue <index:u8>

	// ========================================================================
	// Properties (0x30-0x3F)
	// ========================================================================

	OpGetProperty Opcode = 0x30 // Pop instance, push field value: OpGetProperty <name:u16>
	OpSetProperty Opcode = 0x31 // Pop instance and value, push value: OpSetProperty <name:u16>

	// ========================================================================
	// Arithmetic (0x40-0x4F)
	// ========================================================================

	OpAdd      Opcode = 0x40 // Pop two, push sum (numbers) or concatenation (strings)
	OpSubtract Opcode = 0x41 // Pop two, push difference (a - b where b is TOS)
	OpMultiply Opcode = 0x42 // Pop two, push product
	OpDivide   Opcode = 0x43 // Pop two, push quotient
	OpNegate   Opcode = 0x44 // Negate top of stack

	// ========================================================================
	// Comparison and logic (0x50-0x5F)
	// ========================================================================

	OpEqual   Opcode = 0x50 // Pop two, push true if equal
	OpGreater Opcode = 0x51 // Pop two, push true if a > b
	OpLess    Opcode = 0x52 // Pop two, push true if a < b
	OpNot     Opcode = 0x53 // Push true if top is falsy

	// ========================================================================
	// Control flow (0x60-0x6F)
	// ========================================================================

	OpJump        Opcode = 0x60 // Relative jump: OpJump <offset:i16>; negative offsets jump backward
	OpJumpIfFalse Opcode = 0x61 // Jump if top is falsy, leaving it on the stack: OpJumpIfFalse <offset:i16>

	// ========================================================================
	// Calls and closures (0x70-0x7F)
	// ========================================================================

	OpCall         Opcode = 0x70 // Call the value below argc arguments: OpCall <argc:u8>
	OpClosure      Opcode = 0x71 // Build closure over a Function constant: OpClosure <index:u16>
	OpCloseUpvalue Opcode = 0x72 // Close any upvalue for the top slot, then pop it

	// ========================================================================
	// Classes (0x80-0x8F)
	// ========================================================================

	OpClass Opcode = 0x80 // Construct a class and push it: OpClass <name:u16>

	// ========================================================================
	// Output (0xE0-0xEF)
	// ========================================================================

	OpPrint Opcode = 0xE0 // Pop and print with trailing newline

	// ========================================================================
	// Return (0xF0-0xFF)
	// ========================================================================

	OpReturn Opcode = 0xF0 // Return top of stack from the current frame
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name       string // Human-readable name
	StackPop   int    // How many values popped from stack (-1 = variable)
	StackPush  int    // How many values pushed to stack
	OperandLen int    // Number of operand bytes following the opcode
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Constants and literals
	OpConstant: {"CONSTANT", 0, 1, 2},
	OpNil:      {"NIL", 0, 1, 0},
	OpTrue:     {"TRUE", 0, 1, 0},
	OpFalse:    {"FALSE", 0, 1, 0},

	// Stack manipulation
	OpPop: {"POP", 1, 0, 0},

	// Variables
	OpGetLocal:     {"GET_LOCAL", 0, 1, 1},
	OpSetLocal:     {"SET_LOCAL", 0, 0, 1}, // Peeks; assignment is an expression
	OpGetGlobal:    {"GET_GLOBAL", 0, 1, 2},
	OpDefineGlobal: {"DEFINE_GLOBAL", 1, 0, 2},
	OpSetGlobal:    {"SET_GLOBAL", 0, 0, 2}, // Peeks
	OpGetUpvalue:   {"GET_UPVALUE", 0, 1, 1},
	OpSetUpvalue:   {"SET_UPVALUE", 0, 0, 1}, // Peeks

	// Properties
	OpGetProperty: {"GET_PROPERTY", 1, 1, 2},
	OpSetProperty: {"SET_PROPERTY", 2, 1, 2},

	// Arithmetic
	OpAdd:      {"ADD", 2, 1, 0},
	OpSubtract: {"SUBTRACT", 2, 1, 0},
	OpMultiply: {"MULTIPLY", 2, 1, 0},
	OpDivide:   {"DIVIDE", 2, 1, 0},
	OpNegate:   {"NEGATE", 1, 1, 0},

	// Comparison and logic
	OpEqual:   {"EQUAL", 2, 1, 0},
	OpGreater: {"GREATER", 2, 1, 0},
	OpLess:    {"LESS", 2, 1, 0},
	OpNot:     {"NOT", 1, 1, 0},

	// Control flow
	OpJump:        {"JUMP", 0, 0, 2},
	OpJumpIfFalse: {"JUMP_IF_FALSE", 0, 0, 2}, // Peeks; condition popped explicitly

	// Calls and closures
	OpCall:         {"CALL", -1, 1, 1}, // Pops callee + argc args
	OpClosure:      {"CLOSURE", 0, 1, 2},
	OpCloseUpvalue: {"CLOSE_UPVALUE", 1, 0, 0},

	// Classes
	OpClass: {"CLASS", 0, 1, 2},

	// Output
	OpPrint: {"PRINT", 1, 0, 0},

	// Return
	OpReturn: {"RETURN", 1, 0, 0},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op)), StackPop: 0, StackPush: 0, OperandLen: 0}
}

// String returns the human-readable name of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of operand bytes for this opcode.
func (op Opcode) OperandLen() int {
	return GetOpcodeInfo(op).OperandLen
}

// InstructionLen returns the total length of an instruction (1 + operand bytes).
func (op Opcode) InstructionLen() int {
	return 1 + op.OperandLen()
}

// IsJump returns true if this opcode is a jump instruction.
func (op Opcode) IsJump() bool {
	return op == OpJump || op == OpJumpIfFalse
}

// IsReturn returns true if this opcode terminates the current frame.
func (op Opcode) IsReturn() bool {
	return op == OpReturn
}

// IsValid returns true if this opcode is defined in the instruction set.
func (op Opcode) IsValid() bool {
	_, ok := opcodeInfoTable[op]
	return ok
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
