// Package wasmgen emits small WebAssembly core modules.
//
// It covers the subset of the binary format the bridge needs for native
// fixtures: function types, function imports, one linear memory, exports,
// active data segments and straight-line code with structured control flow.
// Modules are built in code and encoded with Bytes:
//
//	m := wasmgen.New()
//	add := m.Func("add", []api.ValueType{i32, i32}, []api.ValueType{i32})
//	add.LocalGet(0).LocalGet(1).I32Add()
//	bin := m.Bytes()
//
// Every function imported with Import must be declared before the first
// Func, so function indices are known when code referring to them is
// written.
package wasmgen
