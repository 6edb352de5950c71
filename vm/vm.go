package vm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/16dprice/rlox/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// VM: bytecode execution engine
// ---------------------------------------------------------------------------

const (
	// MaxFrames bounds call depth; exceeding it is a stack overflow.
	MaxFrames = 64

	// DefaultStackSize is the value stack size used by New.
	DefaultStackSize = MaxFrames * 256
)

// RuntimeError describes a failed execution: what went wrong, on which
// line, and the call stack at that point.
type RuntimeError struct {
	Message string
	Line    int
	Trace   []string // one frame per line, innermost first
}

func (e *RuntimeError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)
	for _, fr := range e.Trace {
		sb.WriteString("\n")
		sb.WriteString(fr)
	}
	return sb.String()
}

// callFrame is one active function invocation. base is the absolute
// stack index of parameter slot 0; the callee value sits just below it.
type callFrame struct {
	closure *bytecode.Closure
	ip      int
	base    int
}

func (f *callFrame) chunk() *bytecode.Chunk {
	return f.closure.Fn.Chunk
}

func (f *callFrame) readByte() byte {
	b := f.chunk().Code[f.ip]
	f.ip++
	return b
}

func (f *callFrame) readUint16() uint16 {
	v := binary.BigEndian.Uint16(f.chunk().Code[f.ip:])
	f.ip += 2
	return v
}

func (f *callFrame) readInt16() int16 {
	return int16(f.readUint16())
}

func (f *callFrame) readConstant() bytecode.Value {
	return f.chunk().Constants[f.readUint16()]
}

// VM executes compiled functions. One VM holds the globals table, so
// running successive programs on the same VM accumulates definitions;
// Reset clears execution state between runs but keeps the globals.
type VM struct {
	stack        []bytecode.Value
	sp           int
	frames       []callFrame
	openUpvalues []*bytecode.Upvalue
	stdout       io.Writer

	// Globals maps variable names to values. Exposed so hosts can
	// inspect or seed the environment.
	Globals map[string]bytecode.Value

	// Trace prints each instruction and the stack before executing it.
	Trace   bool
	TraceTo io.Writer // defaults to os.Stderr
}

// New creates a VM writing program output to stdout.
func New(stdout io.Writer) *VM {
	return NewWithStackSize(stdout, DefaultStackSize)
}

// NewWithStackSize creates a VM with an explicit value stack size.
func NewWithStackSize(stdout io.Writer, stackSize int) *VM {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stackSize <= 0 {
		stackSize = DefaultStackSize
	}
	vm := &VM{
		stack:   make([]bytecode.Value, stackSize),
		frames:  make([]callFrame, 0, MaxFrames),
		Globals: make(map[string]bytecode.Value),
		stdout:  stdout,
	}
	vm.defineNatives()
	return vm
}

// Reset clears the execution state but keeps globals, so a failed run
// does not poison a REPL session.
func (vm *VM) Reset() {
	vm.sp = 0
	vm.frames = vm.frames[:0]
	vm.openUpvalues = vm.openUpvalues[:0]
}

// Interpret runs a compiled top-level function to completion.
func (vm *VM) Interpret(fn *bytecode.Function) error {
	if fn == nil {
		return fmt.Errorf("vm: nil function")
	}

	closure := &bytecode.Closure{Fn: fn}
	vm.push(bytecode.FromObj(closure))
	vm.frames = append(vm.frames, callFrame{closure: closure, base: vm.sp})

	err := vm.run()
	if err != nil {
		vm.Reset()
	}
	return err
}

// run is the main dispatch loop.
func (vm *VM) run() error {
	for {
		frame := vm.currentFrame()
		chunk := frame.chunk()

		if frame.ip >= len(chunk.Code) {
			return vm.runtimeError("instruction pointer out of range")
		}
		// Every instruction pushes at most one net value
		if vm.sp >= len(vm.stack)-1 {
			return vm.runtimeError("value stack overflow")
		}

		opOffset := frame.ip
		op := bytecode.Opcode(chunk.Code[frame.ip])
		frame.ip++

		if vm.Trace {
			vm.traceInstruction(chunk, opOffset)
		}

		switch op {
		// ============ Constants and literals ============
		case bytecode.OpConstant:
			vm.push(frame.readConstant())

		case bytecode.OpNil:
			vm.push(bytecode.Nil)

		case bytecode.OpTrue:
			vm.push(bytecode.True)

		case bytecode.OpFalse:
			vm.push(bytecode.False)

		// ============ Stack ============
		case bytecode.OpPop:
			vm.pop()

		// ============ Variables ============
		case bytecode.OpGetLocal:
			slot := int(frame.readByte())
			vm.push(vm.stack[frame.base+slot])

		case bytecode.OpSetLocal:
			// Assignment is an expression; the value stays on the stack
			slot := int(frame.readByte())
			vm.stack[frame.base+slot] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := frame.readConstant().AsString()
			v, ok := vm.Globals[name]
			if !ok {
				return vm.runtimeError("undefined variable '%s'", name)
			}
			vm.push(v)

		case bytecode.OpDefineGlobal:
			name := frame.readConstant().AsString()
			vm.Globals[name] = vm.peek(0)
			vm.pop()

		case bytecode.OpSetGlobal:
			// Assignment defines the global when absent; only reads of an
			// undefined name are errors.
			name := frame.readConstant().AsString()
			vm.Globals[name] = vm.peek(0)

		case bytecode.OpGetUpvalue:
			cell := frame.closure.Upvalues[frame.readByte()]
			if cell.Closed {
				vm.push(cell.Val)
			} else {
				vm.push(vm.stack[cell.Slot])
			}

		case bytecode.OpSetUpvalue:
			cell := frame.closure.Upvalues[frame.readByte()]
			if cell.Closed {
				cell.Val = vm.peek(0)
			} else {
				vm.stack[cell.Slot] = vm.peek(0)
			}

		// ============ Properties ============
		case bytecode.OpGetProperty:
			name := frame.readConstant().AsString()
			inst, ok := asInstance(vm.peek(0))
			if !ok {
				return vm.runtimeError("only instances have properties")
			}
			v, ok := inst.Fields[name]
			if !ok {
				return vm.runtimeError("undefined property '%s'", name)
			}
			vm.pop()
			vm.push(v)

		case bytecode.OpSetProperty:
			name := frame.readConstant().AsString()
			inst, ok := asInstance(vm.peek(1))
			if !ok {
				return vm.runtimeError("only instances have fields")
			}
			inst.Fields[name] = vm.peek(0)
			value := vm.pop()
			vm.pop()
			vm.push(value)

		// ============ Arithmetic ============
		case bytecode.OpAdd:
			b, a := vm.peek(0), vm.peek(1)
			switch {
			case a.IsNumber() && b.IsNumber():
				vm.pop()
				vm.pop()
				vm.push(bytecode.FromNumber(a.Number() + b.Number()))
			case a.IsString() && b.IsString():
				vm.pop()
				vm.pop()
				vm.push(bytecode.FromString(a.AsString() + b.AsString()))
			default:
				return vm.runtimeError("operands must be two numbers or two strings")
			}

		case bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide,
			bytecode.OpGreater, bytecode.OpLess:
			if err := vm.binaryNumeric(op); err != nil {
				return err
			}

		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("operand must be a number")
			}
			vm.push(bytecode.FromNumber(-vm.pop().Number()))

		// ============ Equality and logic ============
		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(bytecode.FromBool(a.Equals(b)))

		case bytecode.OpNot:
			vm.push(bytecode.FromBool(vm.pop().IsFalsy()))

		// ============ Control flow ============
		case bytecode.OpJump:
			delta := frame.readInt16()
			frame.ip += int(delta)

		case bytecode.OpJumpIfFalse:
			// Peeks so the condition can double as the expression value;
			// the compiler emits explicit pops
			delta := frame.readInt16()
			if vm.peek(0).IsFalsy() {
				frame.ip += int(delta)
			}

		// ============ Calls and closures ============
		case bytecode.OpCall:
			argc := int(frame.readByte())
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return err
			}

		case bytecode.OpClosure:
			fn := frame.readConstant().Obj().(*bytecode.Function)
			closure := &bytecode.Closure{
				Fn:       fn,
				Upvalues: make([]*bytecode.Upvalue, len(fn.Captures)),
			}
			// Push before wiring captures so a local function can
			// capture its own slot
			vm.push(bytecode.FromObj(closure))
			for i, capture := range fn.Captures {
				var cell *bytecode.Upvalue
				if capture.IsLocal {
					cell = vm.captureUpvalue(frame.base + capture.Index)
				} else {
					cell = frame.closure.Upvalues[capture.Index]
				}
				cell.Retain()
				closure.Upvalues[i] = cell
			}

		case bytecode.OpCloseUpvalue:
			// The dying local is at the top of the stack
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		// ============ Classes ============
		case bytecode.OpClass:
			name := frame.readConstant().AsString()
			vm.push(bytecode.FromObj(&bytecode.Class{Name: name}))

		// ============ Output ============
		case bytecode.OpPrint:
			fmt.Fprintln(vm.stdout, vm.pop().String())

		// ============ Return ============
		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.base)
			vm.frames = vm.frames[:len(vm.frames)-1]

			// The callee cell below the base is consumed too, keeping
			// call expressions stack-neutral
			vm.sp = frame.base - 1

			if len(vm.frames) == 0 {
				return nil
			}
			vm.push(result)

		default:
			return vm.runtimeError("unknown opcode 0x%02X", byte(op))
		}
	}
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

// callValue dispatches a call on whatever value is being invoked.
func (vm *VM) callValue(callee bytecode.Value, argc int) error {
	if callee.IsObject() {
		switch o := callee.Obj().(type) {
		case *bytecode.Closure:
			return vm.call(o, argc)

		case *bytecode.Native:
			if !o.Variadic && argc != o.Arity {
				return vm.runtimeError("expected %d arguments but got %d", o.Arity, argc)
			}
			args := make([]bytecode.Value, argc)
			copy(args, vm.stack[vm.sp-argc:vm.sp])
			result, err := o.Fn(args)
			if err != nil {
				return vm.runtimeError("%s", err.Error())
			}
			vm.sp -= argc + 1
			vm.push(result)
			return nil

		case *bytecode.Class:
			// No initializers; constructing takes no arguments
			if argc != 0 {
				return vm.runtimeError("expected 0 arguments but got %d", argc)
			}
			vm.stack[vm.sp-1] = bytecode.FromObj(bytecode.NewInstance(o))
			return nil
		}
	}
	return vm.runtimeError("can only call functions and classes")
}

// call pushes a frame for a closure. The arguments already on the stack
// become the frame's first locals.
func (vm *VM) call(closure *bytecode.Closure, argc int) error {
	if argc != closure.Fn.Arity {
		return vm.runtimeError("expected %d arguments but got %d", closure.Fn.Arity, argc)
	}
	if len(vm.frames) == MaxFrames {
		return vm.runtimeError("stack overflow")
	}

	vm.frames = append(vm.frames, callFrame{
		closure: closure,
		base:    vm.sp - argc,
	})
	return nil
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// captureUpvalue returns the open cell for a stack slot, creating it on
// first capture. Closures capturing the same variable share one cell.
func (vm *VM) captureUpvalue(slot int) *bytecode.Upvalue {
	for _, cell := range vm.openUpvalues {
		if cell.Slot == slot {
			return cell
		}
	}

	cell := bytecode.NewUpvalue(slot)
	vm.openUpvalues = append(vm.openUpvalues, cell)
	return cell
}

// closeUpvalues closes every open cell at or above the given stack slot,
// moving each slot's value into its cell.
func (vm *VM) closeUpvalues(from int) {
	remaining := vm.openUpvalues[:0]
	for _, cell := range vm.openUpvalues {
		if cell.Slot >= from {
			cell.Close(vm.stack[cell.Slot])
		} else {
			remaining = append(remaining, cell)
		}
	}
	vm.openUpvalues = remaining
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (vm *VM) currentFrame() *callFrame {
	return &vm.frames[len(vm.frames)-1]
}

func (vm *VM) push(v bytecode.Value) {
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() bytecode.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) bytecode.Value {
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) binaryNumeric(op bytecode.Opcode) error {
	b, a := vm.peek(0), vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("operands must be numbers")
	}
	vm.pop()
	vm.pop()

	switch op {
	case bytecode.OpSubtract:
		vm.push(bytecode.FromNumber(a.Number() - b.Number()))
	case bytecode.OpMultiply:
		vm.push(bytecode.FromNumber(a.Number() * b.Number()))
	case bytecode.OpDivide:
		vm.push(bytecode.FromNumber(a.Number() / b.Number()))
	case bytecode.OpGreater:
		vm.push(bytecode.FromBool(a.Number() > b.Number()))
	case bytecode.OpLess:
		vm.push(bytecode.FromBool(a.Number() < b.Number()))
	}
	return nil
}

func asInstance(v bytecode.Value) (*bytecode.Instance, bool) {
	if !v.IsObject() {
		return nil, false
	}
	inst, ok := v.Obj().(*bytecode.Instance)
	return inst, ok
}

// runtimeError builds an error carrying the failing line and one trace
// line per active frame, innermost first.
func (vm *VM) runtimeError(format string, args ...interface{}) *RuntimeError {
	msg := fmt.Sprintf(format, args...)

	trace := make([]string, 0, len(vm.frames))
	line := 0
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.Fn

		frameLine := fn.Chunk.Line(f.ip - 1)
		if i == len(vm.frames)-1 {
			line = frameLine
		}

		where := "script"
		if fn.Name != "" {
			where = fn.Name + "()"
		}
		trace = append(trace, fmt.Sprintf("[line %d] in %s", frameLine, where))
	}

	return &RuntimeError{Message: msg, Line: line, Trace: trace}
}

func (vm *VM) traceInstruction(chunk *bytecode.Chunk, offset int) {
	w := vm.TraceTo
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "[%04X] %-24s %s\n", offset, chunk.DisassembleInstruction(offset), vm.stackString())
}

func (vm *VM) stackString() string {
	parts := make([]string, 0, vm.sp)
	for i := 0; i < vm.sp; i++ {
		parts = append(parts, vm.stack[i].String())
	}
	return "[" + strings.Join(parts, " ") + "]"
}
