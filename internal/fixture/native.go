package fixture

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/callback"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/internal/wasmgen"
)

// Native memory layout.
const (
	ResourceCell uint32 = 64
	ValueAddr    uint32 = 256
	ScratchAddr  uint32 = 1024

	scratchResults = ScratchAddr + 8
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

func types(ts ...api.ValueType) []api.ValueType { return ts }

// Native builds the native side of the scenarios: flat C-style exports,
// calls into the Go entry points, the callback dispatcher and its scratch
// buffer.
func Native() []byte {
	m := wasmgen.New()

	rustMath := m.Import(engine.EnvModule, RustMath.Name, types(i32, i32), types(i32))
	checkedAdd := m.Import(engine.EnvModule, CheckedAdd.Name, types(i32, i32), types(i32, i32))
	cppCallback := m.Import(engine.EnvModule, CppCallback.Name, nil, nil)
	inspectValue := m.Import(engine.EnvModule, InspectValue.Name, types(i32), types(i32))
	resourceLen := m.Import(engine.EnvModule, ResourceLen.Name, types(i32), types(i32, i32))
	invoke := m.Import(engine.BridgeModule, callback.InvokeName, types(i32, i32, i32, i32, i32), types(i32))
	release := m.Import(engine.BridgeModule, callback.ReleaseName, types(i32), types(i32))
	drop := m.Import(engine.BridgeModule, engine.DropName, types(i32), types(i32))

	m.Memory(engine.MemoryName, 1)

	m.Func(AddViaCc.Name, types(i32, i32), types(i32)).LocalGet(0).LocalGet(1).I32Add()
	m.Func(MultiplyViaCc.Name, types(i32, i32), types(i32)).LocalGet(0).LocalGet(1).I32Mul()

	cppAddition := m.Func(CppAddition.Name, types(i32, i32), types(i32)).LocalGet(0).LocalGet(1).I32Add()
	m.Func(AddTwoIntsViaRust.Name, types(i32, i32), types(i32)).LocalGet(0).LocalGet(1).Call(cppAddition.Index)
	m.Func(RustCode.Name, nil, nil).Call(cppCallback)

	m.Func(BilingualMath.Name, types(i32, i32), types(i32)).LocalGet(0).LocalGet(1).Call(rustMath)
	m.Func(CheckedMath.Name, types(i32, i32), types(i32, i32)).LocalGet(0).LocalGet(1).Call(checkedAdd)

	m.Func(EchoValue.Name, types(i32), types(i32)).LocalGet(0)
	m.Func(ValueViaGo.Name, types(i32), types(i32)).LocalGet(0).Call(inspectValue)
	m.Func(ReadValue.Name, types(i32), types(i32)).LocalGet(0).I32Load(0)

	m.Func(StoreResource.Name, types(i32), nil).
		I32Const(int32(ResourceCell)).LocalGet(0).I32Store(0)
	m.Func(ReleaseStored.Name, nil, types(i32)).
		I32Const(int32(ResourceCell)).I32Load(0).Call(drop)
	m.Func(PeekResource.Name, types(i32), types(i32, i32)).LocalGet(0).Call(resourceLen)

	// call_back(handle, arg) passes arg through the scratch buffer and
	// returns the status of bridge.invoke with its single result.
	m.Func(CallBack.Name, types(i32, i64), types(i32, i64)).
		I32Const(int32(ScratchAddr)).LocalGet(1).I64Store(0).
		LocalGet(0).
		I32Const(int32(ScratchAddr)).I32Const(1).
		I32Const(int32(scratchResults)).I32Const(1).
		Call(invoke).
		I32Const(int32(scratchResults)).I64Load(0)
	m.Func(ReleaseCallback.Name, types(i32), types(i32)).LocalGet(0).Call(release)

	m.Func(engine.ScratchName, nil, types(i32)).I32Const(int32(ScratchAddr))
	dispatch(m.Func(engine.DispatchName, types(i32, i32, i32, i32, i32), types(i32)))

	return m.Bytes()
}

// dispatch implements bridge_dispatch(index, args_ptr, nargs, results_ptr,
// nresults) over the native callbacks. Unknown indices are stale.
func dispatch(f *wasmgen.Func) {
	const (
		index, args, nargs, results, nresults = 0, 1, 2, 3, 4
	)
	arity := func(local uint32, want int32) {
		f.LocalGet(local).I32Const(want).I32Ne().
			If().I32Const(int32(callback.StatusBadArgs)).Return().End()
	}

	// double(x) = 2x
	f.Block().
		LocalGet(index).I32Const(int32(NativeDouble)).I32Ne().BrIf(0)
	arity(nargs, 1)
	arity(nresults, 1)
	f.LocalGet(results).
		LocalGet(args).I64Load(0).I64Const(2).I64Mul().
		I64Store(0).
		I32Const(int32(callback.StatusOK)).Return().
		End()

	// sum(a, b) = a + b
	f.Block().
		LocalGet(index).I32Const(int32(NativeSum)).I32Ne().BrIf(0)
	arity(nargs, 2)
	arity(nresults, 1)
	f.LocalGet(results).
		LocalGet(args).I64Load(0).LocalGet(args).I64Load(8).I64Add().
		I64Store(0).
		I32Const(int32(callback.StatusOK)).Return().
		End()

	f.I32Const(int32(callback.StatusStale))
}
