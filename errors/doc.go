// Package errors provides structured error types for the binding bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the parameter path, the Go and native type names, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseRegister, errors.KindIncompatibleLayout).
//		Path("Point", "y").
//		GoType("int64").
//		NativeType("s32").
//		Detail("width 8 != 4").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnmappedType(errors.PhaseGenerate, path, "string")
//	err := errors.StaleHandle(errors.PhaseInvoke, "callback", 7)
//
// Registration and generation errors only affect the mapping or bridge being
// built. KindCrossBoundaryUnwind is always fatal; see Error.Fatal.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
