// Package engine runs native modules on wazero and links them to Go.
//
// An Engine owns one wazero runtime with two host modules instantiated:
//
//	env     the sealed entry points, one reverse trampoline per symbol
//	bridge  invoke, release  callback handles (callback.Table)
//	        drop             owned handles (ownership.Table)
//
// Native modules are compiled with Load, which checks every env import
// against the bound entry points before anything runs, and instantiated any
// number of times with Module.Instantiate.
//
// # Instance Flow
//
//  1. New binds the entries of a sealed entry.Registry
//  2. Engine.Load compiles the module and checks its env imports
//  3. Module.Instantiate creates an Instance
//  4. Instance.Forward binds a signature to a native export
//
// Native code that exports bridge_dispatch and bridge_scratch can also be
// called through Instance.NativeCallback, which passes arguments and results
// as u64 slots in the scratch buffer:
//
//	bridge_scratch() -> ptr
//	bridge_dispatch(index, args_ptr, nargs, results_ptr, nresults) -> status
//
// # Unwinding
//
// When an entry point without a status slot panics, Config.OnUnwind runs.
// If it returns, the calling instance is closed with exit code 134 and the
// pending forward call fails with cross_boundary_unwind. The instance cannot
// be used afterwards.
package engine
