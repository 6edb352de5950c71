package bytecode

import (
	"fmt"
	"strconv"
	"sync/atomic"
)

// ValueKind discriminates the closed set of runtime value kinds.
type ValueKind byte

const (
	ValueNil ValueKind = iota
	ValueBool
	ValueNumber
	ValueObject
)

// String returns a human-readable name for ValueKind.
func (k ValueKind) String() string {
	switch k {
	case ValueNil:
		return "nil"
	case ValueBool:
		return "bool"
	case ValueNumber:
		return "number"
	case ValueObject:
		return "object"
	default:
		return fmt.Sprintf("ValueKind(%d)", k)
	}
}

// Value is a runtime value: nil, a boolean, a number, or a reference to a
// heap object. The zero Value is nil, so freshly allocated slots are valid.
type Value struct {
	kind ValueKind
	b    bool
	num  float64
	obj  Obj
}

// Pre-defined values.
var (
	Nil   = Value{}
	True  = Value{kind: ValueBool, b: true}
	False = Value{kind: ValueBool}
)

// FromNumber creates a number Value.
func FromNumber(n float64) Value {
	return Value{kind: ValueNumber, num: n}
}

// FromBool creates a boolean Value.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// FromString creates a string object Value.
func FromString(s string) Value {
	return Value{kind: ValueObject, obj: &StringObj{Chars: s}}
}

// FromObj creates an object Value from any heap object kind.
func FromObj(o Obj) Value {
	return Value{kind: ValueObject, obj: o}
}

// Kind returns the value's kind tag.
func (v Value) Kind() ValueKind {
	return v.kind
}

// IsNil returns true if v is the nil value.
func (v Value) IsNil() bool {
	return v.kind == ValueNil
}

// IsBool returns true if v is a boolean.
func (v Value) IsBool() bool {
	return v.kind == ValueBool
}

// IsNumber returns true if v is a number.
func (v Value) IsNumber() bool {
	return v.kind == ValueNumber
}

// IsObject returns true if v references a heap object.
func (v Value) IsObject() bool {
	return v.kind == ValueObject
}

// IsString returns true if v is a string object.
func (v Value) IsString() bool {
	_, ok := v.obj.(*StringObj)
	return v.kind == ValueObject && ok
}

// Bool returns v as a bool.
// Panics if v is not a boolean.
func (v Value) Bool() bool {
	if v.kind != ValueBool {
		panic("Value.Bool: not a boolean")
	}
	return v.b
}

// Number returns v as a float64.
// Panics if v is not a number.
func (v Value) Number() float64 {
	if v.kind != ValueNumber {
		panic("Value.Number: not a number")
	}
	return v.num
}

// Obj returns the heap object referenced by v.
// Panics if v is not an object.
func (v Value) Obj() Obj {
	if v.kind != ValueObject {
		panic("Value.Obj: not an object")
	}
	return v.obj
}

// AsString returns the Go string held by a string object value.
// Panics if v is not a string.
func (v Value) AsString() string {
	s, ok := v.obj.(*StringObj)
	if v.kind != ValueObject || !ok {
		panic("Value.AsString: not a string")
	}
	return s.Chars
}

// IsTruthy returns true if v is considered truthy in conditionals.
// Only nil and false are falsy; everything else is truthy, including 0 and "".
func (v Value) IsTruthy() bool {
	switch v.kind {
	case ValueNil:
		return false
	case ValueBool:
		return v.b
	default:
		return true
	}
}

// IsFalsy returns true if v is considered falsy in conditionals.
func (v Value) IsFalsy() bool {
	return !v.IsTruthy()
}

// Equals reports value equality: numbers by IEEE value, strings by content,
// all other object kinds by identity. Values of different kinds are never
// equal, and comparing them is not an error.
func (v Value) Equals(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case ValueNil:
		return true
	case ValueBool:
		return v.b == other.b
	case ValueNumber:
		return v.num == other.num
	case ValueObject:
		if a, ok := v.obj.(*StringObj); ok {
			b, ok := other.obj.(*StringObj)
			return ok && a.Chars == b.Chars
		}
		return v.obj == other.obj
	default:
		return false
	}
}

// TypeName returns the name of the value's type for error messages.
func (v Value) TypeName() string {
	switch v.kind {
	case ValueNil:
		return "nil"
	case ValueBool:
		return "boolean"
	case ValueNumber:
		return "number"
	case ValueObject:
		switch v.obj.(type) {
		case *StringObj:
			return "string"
		case *Function:
			return "function"
		case *Closure:
			return "function"
		case *Native:
			return "native function"
		case *Class:
			return "class"
		case *Instance:
			return "instance"
		}
	}
	return "unknown"
}

// String renders the value the way the print statement does.
func (v Value) String() string {
	switch v.kind {
	case ValueNil:
		return "nil"
	case ValueBool:
		return strconv.FormatBool(v.b)
	case ValueNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case ValueObject:
		switch o := v.obj.(type) {
		case *StringObj:
			return o.Chars
		case *Function:
			return o.String()
		case *Closure:
			return o.Fn.String()
		case *Native:
			return "<native fn>"
		case *Class:
			return o.Name
		case *Instance:
			return o.Class.Name + " instance"
		}
	}
	return "unknown"
}

// Obj is the closed set of heap object kinds. Only types in this package
// implement it.
type Obj interface {
	isObj()
}

// StringObj is an immutable string object. Two string objects are equal
// when their contents are equal.
type StringObj struct {
	Chars string
}

func (*StringObj) isObj() {}

// Capture describes one variable captured by a function, recorded at
// compile time and consumed when the VM builds a closure.
type Capture struct {
	Name    string // Variable name, for listings
	IsLocal bool   // True: slot in the immediately enclosing frame; false: index into the enclosing closure's upvalues
	Index   int
}

// Function is a compiled function body: its name, arity, capture
// descriptors, and bytecode. Functions are immutable once compiled and are
// shared freely, including across concurrent VM runs.
type Function struct {
	Name     string // "" for the top-level script
	Arity    int
	Chunk    *Chunk
	Captures []Capture
}

func (*Function) isObj() {}

// UpvalueCount returns the number of variables this function captures.
func (f *Function) UpvalueCount() int {
	return len(f.Captures)
}

// String returns the function's display name.
func (f *Function) String() string {
	if f.Name == "" {
		return "<script>"
	}
	return "<fn " + f.Name + ">"
}

// Closure binds a Function to the upvalues captured at creation time.
type Closure struct {
	Fn       *Function
	Upvalues []*Upvalue
}

func (*Closure) isObj() {}

// NativeFn is a host-provided callable. It receives the argument values in
// order and returns one result or an error, which the VM surfaces as a
// runtime error.
type NativeFn func(args []Value) (Value, error)

// Native wraps a host function registered into the globals table.
// Arity is checked before the call unless Variadic is set.
type Native struct {
	Name     string
	Arity    int
	Variadic bool
	Fn       NativeFn
}

func (*Native) isObj() {}

// Class is a named class. Calling it constructs an Instance. There is no
// method table; methods are parsed but inert.
type Class struct {
	Name string
}

func (*Class) isObj() {}

// Instance is an object created from a Class, holding its own fields.
type Instance struct {
	Class  *Class
	Fields map[string]Value
}

func (*Instance) isObj() {}

// NewInstance creates an empty instance of a class.
func NewInstance(class *Class) *Instance {
	return &Instance{Class: class, Fields: make(map[string]Value)}
}

// Upvalue is a captured variable cell shared by every closure that
// captured the same variable. While open it references a live stack slot
// by absolute index; once the slot dies the cell is closed and owns its
// value. A cell closes at most once.
type Upvalue struct {
	Slot     int   // Stack slot, valid while open
	Val      Value // Owned value once closed
	Closed   bool
	RefCount int32 // Number of closures sharing this cell
}

// NewUpvalue creates an open upvalue referencing a stack slot.
func NewUpvalue(slot int) *Upvalue {
	return &Upvalue{Slot: slot}
}

// Close moves the value into the cell. After closing, the cell no longer
// references the stack.
func (u *Upvalue) Close(v Value) {
	if u == nil || u.Closed {
		return
	}
	u.Val = v
	u.Closed = true
}

// Retain increments the reference count.
func (u *Upvalue) Retain() {
	if u != nil {
		atomic.AddInt32(&u.RefCount, 1)
	}
}

// Release decrements the reference count.
func (u *Upvalue) Release() {
	if u != nil {
		atomic.AddInt32(&u.RefCount, -1)
	}
}
