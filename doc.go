// Package wasmbridge is a safe binding bridge between Go and native code
// compiled to WebAssembly.
//
// Native modules run in-process on wazero and expose flat, unmangled entry
// points. Go calls into them through generated forward trampolines, and they
// call back into Go through exported reverse trampolines and callback handles.
//
// # Architecture Overview
//
//	wasmbridge/          Root package with the Memory interface
//	├── typemap/         Type mapping layer: layouts, POD proofs, marshaling
//	├── bridge/          Signature bridge generator and trampolines
//	├── ownership/       Ownership classes, hand-off and borrow handles
//	├── callback/        Callback handle table and uniform trampoline
//	├── entry/           Write-once registry of Go entry points
//	├── engine/          wazero integration
//	├── errors/          Structured error types
//	├── internal/        Handle arenas, wasm emitter, interop scenarios
//	├── cmd/bridgecheck  Scenario runner and interactive bridge explorer
//	└── examples/basic   Minimal embedding
//
// # Quick Start
//
//	rustMath := bridge.Func("rust_math", bridge.P[uint32]("a"), bridge.P[uint32]("b")).
//	    Returns(bridge.Result[uint32]())
//	entry.MustRegister(rustMath, func(a, b uint32) uint32 { return a + b })
//	entry.Seal()
//
//	eng, err := engine.New(ctx, &engine.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close(ctx)
//
//	mod, err := eng.Load(ctx, wasmBytes)
//	inst, err := mod.Instantiate(ctx)
//	add, err := inst.Forward(bridge.Func("add_via_cc", bridge.P[uint32]("a"), bridge.P[uint32]("b")).
//	    Returns(bridge.Result[uint32]()))
//	sum, err := add.Call(ctx, uint32(100), uint32(42)) // 142
//
// # Thread Safety
//
// Engine, generators, registries and handle tables are safe for concurrent
// use. An Instance wraps a single wazero module instance and must be used by
// one goroutine at a time.
//
// # Unwinding
//
// A Go panic never reaches native frames. Entry points with a status slot
// report it as a status code; all others are terminated through the
// configured abort hook, which exits the process by default.
package wasmbridge
