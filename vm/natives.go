package vm

import (
	"time"

	"github.com/16dprice/rlox/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Natives: host functions exposed as globals
// ---------------------------------------------------------------------------

// DefineNative registers a host function under a global name. The
// function's error, if any, surfaces as a runtime error at the call
// site.
func (vm *VM) DefineNative(name string, arity int, fn bytecode.NativeFn) {
	vm.Globals[name] = bytecode.FromObj(&bytecode.Native{
		Name:  name,
		Arity: arity,
		Fn:    fn,
	})
}

// defineNatives installs the built-ins every VM starts with.
func (vm *VM) defineNatives() {
	// clock() returns seconds since the Unix epoch
	vm.DefineNative("clock", 0, func(args []bytecode.Value) (bytecode.Value, error) {
		return bytecode.FromNumber(float64(time.Now().UnixNano()) / 1e9), nil
	})
}
