// Package bridge generates call bridges between Go and native entry points.
//
// A Signature names a flat native symbol and the Go types of its parameters
// and result. A Generator resolves each of those types to a proven
// typemap.MappedType and produces an immutable CallBridge holding the flat
// native signature: the concatenation of every parameter's value slots, in
// declaration order.
//
// A CallBridge can be used in both directions:
//
//	fwd, err := cb.Bind(instance.ExportedFunction("add"))  // Go calls native
//	host, err := cb.Export(func(a, b uint32) uint32 {...}) // native calls Go
//	fn, err := cb.Callback(func(v uint32) {...})           // callback table entry
//
// Forward calls marshal every argument, invoke the target and unmarshal the
// result on every call. Nothing is cached between calls.
//
// # Fallible signatures
//
// A fallible signature carries a leading i32 status in its native result.
// Zero means success; any other value is reported as a native_status error
// on the Go side. A Go function exported under a fallible signature may
// return an error, and a panic in it becomes a status instead of an unwind.
//
// # Unwinding
//
// A panic must never unwind through native frames. Exported functions run
// under Contain. When the signature has no status slot the recovered panic is
// a cross_boundary_unwind: the abort hook runs (by default it logs and exits
// with ExitCodeUnwind) and, if the hook returns, the calling native instance
// is closed with that exit code.
//
// # Handles
//
// ownership.Transfer and ownership.Ref cross as u32 handles of an
// ownership.Table supplied with WithHandles. A Transfer argument is adopted
// by the table; a Ref argument is lent for the duration of the call only.
package bridge
