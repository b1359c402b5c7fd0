package fixture

import (
	"reflect"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/ownership"
	"github.com/wippyai/wasm-bridge/typemap"
)

// Value is the POD struct crossing the boundary, {value: u32} natively.
type Value struct {
	Value uint32
}

// Types returns a registry with Value mapped. A fresh registry is returned
// on every call since an engine adds its handle mappings to it.
func Types() *typemap.Registry {
	types := typemap.NewRegistry()
	types.MustRegister(reflect.TypeFor[Value](), typemap.Struct("value", typemap.F("value", typemap.U32)))
	return types
}

func u32(name string) bridge.Param { return bridge.P[uint32](name) }

var (
	u32Result   = bridge.Result[uint32]()
	valueResult = bridge.Result[Value]()
)

// Go entry points imported by the native module from env.
var (
	RustMath     = bridge.Func("rust_math", u32("a"), u32("b")).Returns(u32Result)
	CheckedAdd   = bridge.Func("checked_add", u32("a"), u32("b")).Returns(u32Result).AsFallible()
	CppCallback  = bridge.Func("cpp_callback")
	InspectValue = bridge.Func("inspect_value", bridge.P[Value]("v")).Returns(valueResult)
	ResourceLen  = bridge.Func("resource_len", bridge.P[ownership.Ref]("r")).Returns(u32Result).AsFallible()
)

// Native exports.
var (
	AddViaCc          = bridge.Func("AddViaCc", u32("a"), u32("b")).Returns(u32Result)
	MultiplyViaCc     = bridge.Func("MultiplyViaCc", u32("a"), u32("b")).Returns(u32Result)
	CppAddition       = bridge.Func("cpp_addition", u32("a"), u32("b")).Returns(u32Result)
	AddTwoIntsViaRust = bridge.Func("add_two_ints_via_rust_then_cpp", u32("a"), u32("b")).Returns(u32Result)
	RustCode          = bridge.Func("rust_code")
	BilingualMath     = bridge.Func("bilingual_math", u32("a"), u32("b")).Returns(u32Result)
	CheckedMath       = bridge.Func("checked_math", u32("a"), u32("b")).Returns(u32Result).AsFallible()
	EchoValue         = bridge.Func("echo_value", bridge.P[Value]("v")).Returns(valueResult)
	ValueViaGo        = bridge.Func("value_via_go", bridge.P[Value]("v")).Returns(valueResult)
	ReadValue         = bridge.Func("read_value", u32("ptr")).Returns(u32Result)
	StoreResource     = bridge.Func("store_resource", bridge.P[ownership.Transfer]("t"))
	ReleaseStored     = bridge.Func("release_stored").Returns(u32Result)
	PeekResource      = bridge.Func("peek_resource", bridge.P[ownership.Ref]("r")).Returns(u32Result).AsFallible()
	CallBack          = bridge.Func("call_back", u32("handle"), bridge.P[uint64]("arg")).Returns(bridge.Result[uint64]()).AsFallible()
	ReleaseCallback   = bridge.Func("release_callback", u32("handle")).Returns(u32Result)
)

// Exports lists every native export with a bridge signature.
var Exports = []bridge.Signature{
	AddViaCc, MultiplyViaCc, CppAddition, AddTwoIntsViaRust, RustCode,
	BilingualMath, CheckedMath, EchoValue, ValueViaGo, ReadValue,
	StoreResource, ReleaseStored, PeekResource, CallBack, ReleaseCallback,
}

// Indices of the callbacks reachable through bridge_dispatch.
const (
	NativeDouble uint32 = 0
	NativeSum    uint32 = 1
)
