package typemap

import "strings"

// Type describes a native type.
// Types are immutable once built and may be shared.
type Type struct {
	Elem   *Type
	Name   string
	Fields []Field
	Kind   Kind
}

// Field is one member of a native struct, in declaration order.
type Field struct {
	Type *Type
	Name string
}

// Predeclared native primitives.
var (
	Bool    = &Type{Kind: KindBool, Name: "bool"}
	U8      = &Type{Kind: KindU8, Name: "u8"}
	S8      = &Type{Kind: KindS8, Name: "s8"}
	U16     = &Type{Kind: KindU16, Name: "u16"}
	S16     = &Type{Kind: KindS16, Name: "s16"}
	U32     = &Type{Kind: KindU32, Name: "u32"}
	S32     = &Type{Kind: KindS32, Name: "s32"}
	U64     = &Type{Kind: KindU64, Name: "u64"}
	S64     = &Type{Kind: KindS64, Name: "s64"}
	F32     = &Type{Kind: KindF32, Name: "f32"}
	F64     = &Type{Kind: KindF64, Name: "f64"}
	Char    = &Type{Kind: KindChar, Name: "char"}
	String  = &Type{Kind: KindString, Name: "string"}
	Address = &Type{Kind: KindPointer, Name: "ptr"}
)

// Rune is the Go side of a native char. Plain rune is an alias of int32 and
// maps to s32.
type Rune rune

// Struct declares a native POD struct.
func Struct(name string, fields ...Field) *Type {
	return &Type{Kind: KindStruct, Name: name, Fields: fields}
}

// F is shorthand for a struct field.
func F(name string, t *Type) Field {
	return Field{Name: name, Type: t}
}

// Pointer declares a raw native address of elem.
func Pointer(elem *Type) *Type {
	return &Type{Kind: KindPointer, Name: "ptr", Elem: elem}
}

// Own declares an owned resource handle.
func Own(resource string) *Type {
	return &Type{Kind: KindOwn, Name: resource}
}

// Borrow declares a borrowed resource handle.
func Borrow(resource string) *Type {
	return &Type{Kind: KindBorrow, Name: resource}
}

// Equal reports structural equality.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Kind != o.Kind || t.Name != o.Name || len(t.Fields) != len(o.Fields) {
		return false
	}
	for i := range t.Fields {
		if t.Fields[i].Name != o.Fields[i].Name || !t.Fields[i].Type.Equal(o.Fields[i].Type) {
			return false
		}
	}
	if t.Kind == KindPointer {
		return t.Elem.Equal(o.Elem)
	}
	return true
}

func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	switch t.Kind {
	case KindStruct:
		var b strings.Builder
		b.WriteString(t.Name)
		b.WriteString("{")
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			b.WriteString(f.Type.String())
		}
		b.WriteString("}")
		return b.String()
	case KindPointer:
		if t.Elem != nil {
			return "*" + t.Elem.String()
		}
		return "ptr"
	case KindOwn:
		return "own<" + t.Name + ">"
	case KindBorrow:
		return "borrow<" + t.Name + ">"
	}
	return t.Name
}
