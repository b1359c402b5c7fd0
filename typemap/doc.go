// Package typemap declares which types may cross the native boundary and
// proves that both sides agree on their binary layout.
//
// A MappedType pairs a Go type with a native Type descriptor under a Rule:
//
//	RuleIdentity  primitive to primitive, same width and signedness
//	RulePOD       struct to struct, field for field with equal offsets
//	RuleHandle    owned or borrowed resource carried as a u32 handle
//	RuleConvert   explicit conversion through an already mapped Go type
//
// Native layouts follow the wasm32 C ABI: natural alignment, 4-byte
// pointers, trailing padding up to the largest field alignment. Go layouts
// come from reflect, so a mapping that registers on one GOARCH may be
// rejected on another. That is the point: nothing is assumed, everything
// is proven at registration time.
//
// Flat lowering turns a Go value into wasm value slots (one per scalar,
// structs flattened in field order). Store and Load copy the exact native
// byte layout to and from linear memory. Neither step allocates on the
// native side, truncates, or changes signedness silently.
package typemap
