package bytecode

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	// Ensure every defined opcode has metadata
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("Opcode 0x%02X has no metadata", op)
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	count := OpcodeCount()
	if count < 25 {
		t.Errorf("Expected at least 25 opcodes, got %d", count)
	}
}

func TestOpcodeString(t *testing.T) {
	tests := []struct {
		op   Opcode
		want string
	}{
		{OpConstant, "CONSTANT"},
		{OpNil, "NIL"},
		{OpPop, "POP"},
		{OpGetLocal, "GET_LOCAL"},
		{OpDefineGlobal, "DEFINE_GLOBAL"},
		{OpAdd, "ADD"},
		{OpEqual, "EQUAL"},
		{OpJump, "JUMP"},
		{OpCall, "CALL"},
		{OpClosure, "CLOSURE"},
		{OpPrint, "PRINT"},
		{OpReturn, "RETURN"},
	}

	for _, tt := range tests {
		got := tt.op.String()
		if got != tt.want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestUnknownOpcodeString(t *testing.T) {
	// Test an undefined opcode value
	op := Opcode(0xEE) // Not defined
	got := op.String()
	if got[:7] != "UNKNOWN" {
		t.Errorf("Unknown opcode should return UNKNOWN, got %q", got)
	}
}

func TestOpcodeOperandLen(t *testing.T) {
	tests := []struct {
		op   Opcode
		want int
	}{
		{OpNil, 0},
		{OpPop, 0},
		{OpConstant, 2},    // u16 index
		{OpGetLocal, 1},    // u8 slot
		{OpGetGlobal, 2},   // u16 name index
		{OpGetUpvalue, 1},  // u8 index
		{OpJump, 2},        // i16 offset
		{OpCall, 1},        // u8 argc
		{OpClosure, 2},     // u16 function index
		{OpGetProperty, 2}, // u16 name index
	}

	for _, tt := range tests {
		got := tt.op.OperandLen()
		if got != tt.want {
			t.Errorf("%s.OperandLen() = %d, want %d", tt.op, got, tt.want)
		}
	}
}

func TestOpcodeInstructionLen(t *testing.T) {
	tests := []struct {
		op   Opcode
		want int
	}{
		{OpNil, 1},      // Just the opcode
		{OpConstant, 3}, // opcode + 2 bytes
		{OpGetLocal, 2}, // opcode + 1 byte
		{OpJump, 3},     // opcode + 2 bytes
		{OpCall, 2},     // opcode + 1 byte
	}

	for _, tt := range tests {
		got := tt.op.InstructionLen()
		if got != tt.want {
			t.Errorf("%s.InstructionLen() = %d, want %d", tt.op, got, tt.want)
		}
	}
}

func TestOpcodeIsJump(t *testing.T) {
	jumps := []Opcode{OpJump, OpJumpIfFalse}
	for _, op := range jumps {
		if !op.IsJump() {
			t.Errorf("%s.IsJump() = false, want true", op)
		}
	}

	nonJumps := []Opcode{OpNil, OpAdd, OpCall, OpReturn}
	for _, op := range nonJumps {
		if op.IsJump() {
			t.Errorf("%s.IsJump() = true, want false", op)
		}
	}
}

func TestOpcodeIsReturn(t *testing.T) {
	if !OpReturn.IsReturn() {
		t.Errorf("RETURN.IsReturn() = false, want true")
	}

	nonReturns := []Opcode{OpNil, OpAdd, OpJump, OpCall}
	for _, op := range nonReturns {
		if op.IsReturn() {
			t.Errorf("%s.IsReturn() = true, want false", op)
		}
	}
}

func TestOpcodeIsValid(t *testing.T) {
	for _, op := range AllOpcodes() {
		if !op.IsValid() {
			t.Errorf("%s.IsValid() = false, want true", op)
		}
	}

	undefined := []Opcode{0x04, 0x2F, 0xCC, 0xFF}
	for _, op := range undefined {
		if op.IsValid() {
			t.Errorf("Opcode(0x%02X).IsValid() = true, want false", byte(op))
		}
	}
}

func TestStackEffects(t *testing.T) {
	// Test that stack effects are reasonable
	tests := []struct {
		op   Opcode
		pop  int
		push int
	}{
		{OpConstant, 0, 1},
		{OpNil, 0, 1},
		{OpPop, 1, 0},
		{OpAdd, 2, 1},
		{OpEqual, 2, 1},
		{OpNot, 1, 1},
		{OpNegate, 1, 1},
		{OpGetProperty, 1, 1},
		{OpSetProperty, 2, 1},
		{OpPrint, 1, 0},
		{OpReturn, 1, 0},
		{OpCall, -1, 1}, // Variable: callee + argc args
	}

	for _, tt := range tests {
		info := GetOpcodeInfo(tt.op)
		if info.StackPop != tt.pop {
			t.Errorf("%s.StackPop = %d, want %d", tt.op, info.StackPop, tt.pop)
		}
		if info.StackPush != tt.push {
			t.Errorf("%s.StackPush = %d, want %d", tt.op, info.StackPush, tt.push)
		}
	}
}

func TestOpcodeRanges(t *testing.T) {
	// Verify opcodes are in their expected ranges
	rangeTests := []struct {
		name     string
		ops      []Opcode
		minRange Opcode
		maxRange Opcode
	}{
		{"Constants", []Opcode{OpConstant, OpNil, OpTrue, OpFalse}, 0x00, 0x0F},
		{"Stack", []Opcode{OpPop}, 0x10, 0x1F},
		{"Variables", []Opcode{OpGetLocal, OpSetLocal, OpGetGlobal, OpGetUpvalue}, 0x20, 0x2F},
		{"Properties", []Opcode{OpGetProperty, OpSetProperty}, 0x30, 0x3F},
		{"Arithmetic", []Opcode{OpAdd, OpSubtract, OpMultiply, OpDivide, OpNegate}, 0x40, 0x4F},
		{"Comparison", []Opcode{OpEqual, OpGreater, OpLess, OpNot}, 0x50, 0x5F},
		{"Control", []Opcode{OpJump, OpJumpIfFalse}, 0x60, 0x6F},
		{"Calls", []Opcode{OpCall, OpClosure, OpCloseUpvalue}, 0x70, 0x7F},
		{"Classes", []Opcode{OpClass}, 0x80, 0x8F},
		{"Output", []Opcode{OpPrint}, 0xE0, 0xEF},
		{"Return", []Opcode{OpReturn}, 0xF0, 0xFF},
	}

	for _, tt := range rangeTests {
		for _, op := range tt.ops {
			if op < tt.minRange || op > tt.maxRange {
				t.Errorf("%s opcode %s (0x%02X) is outside range [0x%02X, 0x%02X]",
					tt.name, op, op, tt.minRange, tt.maxRange)
			}
		}
	}
}
