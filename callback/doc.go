// Package callback keeps functions that can be invoked across the native
// boundary through a single uniform trampoline.
//
// A Func is registered in a Table and addressed by a non-zero Handle. The
// native side calls back through the bridge host module:
//
//	bridge.invoke(handle, args_ptr, nargs, results_ptr, nresults) -> status
//	bridge.release(handle) -> status
//
// Arguments and results are arrays of 64-bit slots in native memory, in the
// same encoding wazero uses for its value stack.
//
// Invocations are counted per slot. Release stops new invocations
// immediately and waits for the running ones to finish; TryRelease refuses
// instead of waiting. A panic inside a Func is recovered and reported as
// StatusPanicked, so it never unwinds into native frames.
package callback
