// Package entry holds the Go entry points exposed to native code.
//
// Entry points are registered during startup, before any native module is
// instantiated, and the registry is then sealed. After sealing the set is
// immutable and can be read from any goroutine without locking; before
// sealing it cannot be read at all. This makes the ordering explicit instead
// of relying on package initialization order.
//
//	entry.MustRegister(bridge.Func("rust_math", bridge.P[uint32]("a"), bridge.P[uint32]("b")).
//		Returns(bridge.Result[uint32]()), rustMath)
//	entry.Seal()
package entry
