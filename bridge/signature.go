package bridge

import (
	"reflect"
	"strings"
)

// Param is one named parameter of a signature.
type Param struct {
	Type reflect.Type
	Name string
}

// P declares a parameter of Go type T.
func P[T any](name string) Param {
	return Param{Name: name, Type: reflect.TypeFor[T]()}
}

// Signature declares a native entry point in terms of Go types.
type Signature struct {
	// Result is nil for a void function.
	Result reflect.Type
	// Name is the flat native symbol, with no mangling.
	Name   string
	Params []Param
	// Fallible signatures return a status before the result value.
	Fallible bool
}

// Returns sets the result type to T.
func (s Signature) Returns(t reflect.Type) Signature {
	s.Result = t
	return s
}

// AsFallible marks the signature fallible.
func (s Signature) AsFallible() Signature {
	s.Fallible = true
	return s
}

// Func declares a signature with the given name and parameters.
func Func(name string, params ...Param) Signature {
	return Signature{Name: name, Params: params}
}

// Result returns reflect.TypeFor[T]().
func Result[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

func (s Signature) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteByte(' ')
		b.WriteString(typeString(p.Type))
	}
	b.WriteByte(')')
	switch {
	case s.Result != nil && s.Fallible:
		b.WriteString(" (" + typeString(s.Result) + ", error)")
	case s.Result != nil:
		b.WriteString(" " + typeString(s.Result))
	case s.Fallible:
		b.WriteString(" error")
	}
	return b.String()
}

func typeString(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
