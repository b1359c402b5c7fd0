package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseRegister Phase = "register" // type mapping registration
	PhaseGenerate Phase = "generate" // bridge generation
	PhaseBind     Phase = "bind"     // binding a bridge to an entry point
	PhaseEncode   Phase = "encode"   // Go to native
	PhaseDecode   Phase = "decode"   // native to Go
	PhaseInvoke   Phase = "invoke"   // crossing the boundary
	PhaseRelease  Phase = "release"  // handle release
	PhaseHandoff  Phase = "handoff"  // ownership transfer
	PhaseStartup  Phase = "startup"  // entry point registration
	PhaseLoad     Phase = "load"     // native module loading
)

// Kind categorizes the error
type Kind string

const (
	KindIncompatibleLayout  Kind = "incompatible_layout"
	KindUnmappedType        Kind = "unmapped_type"
	KindStaleHandle         Kind = "stale_handle"
	KindCrossBoundaryUnwind Kind = "cross_boundary_unwind"
	KindTypeMismatch        Kind = "type_mismatch"
	KindArityMismatch       Kind = "arity_mismatch"
	KindOverflow            Kind = "overflow"
	KindInvalidData         Kind = "invalid_data"
	KindOutOfBounds         Kind = "out_of_bounds"
	KindInFlight            Kind = "in_flight"
	KindHandedOff           Kind = "handed_off"
	KindDuplicate           Kind = "duplicate"
	KindSealed              Kind = "sealed"
	KindNotSealed           Kind = "not_sealed"
	KindNotFound            Kind = "not_found"
	KindNativeTrap          Kind = "native_trap"
	KindNativeStatus        Kind = "native_status"
	KindInvalidInput        Kind = "invalid_input"
	KindInstantiation       Kind = "instantiation"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	GoType     string
	NativeType string
	Detail     string
	Path       []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.NativeType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.NativeType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", native type ")
			b.WriteString(e.NativeType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("native type ")
			b.WriteString(e.NativeType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.NativeType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase == "" {
			return e.Kind == t.Kind
		}
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Fatal reports whether the error must terminate the process.
func (e *Error) Fatal() bool {
	return e.Kind == KindCrossBoundaryUnwind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the parameter or field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// NativeType sets the native type name
func (b *Builder) NativeType(t string) *Builder {
	b.err.NativeType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Sentinels for errors.Is checks that only care about the kind.
var (
	ErrIncompatibleLayout  = &Error{Kind: KindIncompatibleLayout}
	ErrUnmappedType        = &Error{Kind: KindUnmappedType}
	ErrStaleHandle         = &Error{Kind: KindStaleHandle}
	ErrCrossBoundaryUnwind = &Error{Kind: KindCrossBoundaryUnwind}
	ErrInFlight            = &Error{Kind: KindInFlight}
	ErrHandedOff           = &Error{Kind: KindHandedOff}
)

// Convenience constructors for common error patterns

// IncompatibleLayout creates a layout mismatch error for a registration
func IncompatibleLayout(path []string, goType, nativeType, detail string) *Error {
	return &Error{
		Phase:      PhaseRegister,
		Kind:       KindIncompatibleLayout,
		Path:       path,
		GoType:     goType,
		NativeType: nativeType,
		Detail:     detail,
	}
}

// UnmappedType creates an error for a Go type with no registered mapping
func UnmappedType(phase Phase, path []string, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnmappedType,
		Path:   path,
		GoType: goType,
		Detail: "no mapped type registered",
	}
}

// StaleHandle creates an error for a released or unknown handle
func StaleHandle(phase Phase, what string, handle uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindStaleHandle,
		Detail: fmt.Sprintf("%s handle %d is not live", what, handle),
		Value:  handle,
	}
}

// Unwind creates the fatal error for a panic that reached the boundary
func Unwind(symbol string, recovered any) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindCrossBoundaryUnwind,
		Path:   []string{symbol},
		Detail: fmt.Sprintf("panic reached the native boundary: %v", recovered),
		Value:  recovered,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, nativeType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		GoType:     goType,
		NativeType: nativeType,
	}
}

// ArityMismatch creates an argument count error
func ArityMismatch(phase Phase, symbol string, want, got int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindArityMismatch,
		Path:   []string{symbol},
		Detail: fmt.Sprintf("want %d values, got %d", want, got),
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, nativeType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindOverflow,
		Path:       path,
		NativeType: nativeType,
		Detail:     fmt.Sprintf("value %v overflows %s", value, nativeType),
		Value:      value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// OutOfBounds creates a native memory access error
func OutOfBounds(phase Phase, path []string, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("%d bytes at offset %d out of bounds", length, offset),
		Value:  offset,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Load creates a native module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate native module",
		Cause:  cause,
	}
}
