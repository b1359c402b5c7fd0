package ownership

import "github.com/wippyai/wasm-bridge/typemap"

//go:generate go tool stringer -type=Class -trimprefix=Class -output=class_string.go

// Class is the ownership category of a boundary type.
type Class uint8

const (
	ClassByValue Class = iota
	ClassBorrowed
	ClassOwned
)

// Classify returns the ownership class of a native type. A nil type has no
// storage to own and is ByValue.
func Classify(t *typemap.Type) Class {
	if t == nil {
		return ClassByValue
	}
	switch t.Kind {
	case typemap.KindOwn, typemap.KindString:
		return ClassOwned
	case typemap.KindBorrow, typemap.KindPointer:
		return ClassBorrowed
	}
	return ClassByValue
}
