package typemap

import (
	"fmt"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-bridge/errors"
)

// FromWIT builds a native descriptor from a WIT type. Records become
// structs, own and borrow become handles. Types with no fixed layout
// (lists, variants, options, results) are rejected.
func FromWIT(t wit.Type) (*Type, error) {
	switch typ := t.(type) {
	case wit.Bool:
		return Bool, nil
	case wit.U8:
		return U8, nil
	case wit.S8:
		return S8, nil
	case wit.U16:
		return U16, nil
	case wit.S16:
		return S16, nil
	case wit.U32:
		return U32, nil
	case wit.S32:
		return S32, nil
	case wit.U64:
		return U64, nil
	case wit.S64:
		return S64, nil
	case wit.F32:
		return F32, nil
	case wit.F64:
		return F64, nil
	case wit.Char:
		return Char, nil
	case wit.String:
		return String, nil
	case *wit.TypeDef:
		return fromTypeDef(typ)
	}
	return nil, errors.InvalidInput(errors.PhaseRegister, fmt.Sprintf("unsupported WIT type %T", t))
}

func fromTypeDef(td *wit.TypeDef) (*Type, error) {
	name := ""
	if td.Name != nil {
		name = *td.Name
	}

	switch kind := td.Kind.(type) {
	case *wit.Record:
		fields := make([]Field, 0, len(kind.Fields))
		for _, f := range kind.Fields {
			ft, err := FromWIT(f.Type)
			if err != nil {
				return nil, err
			}
			fields = append(fields, F(f.Name, ft))
		}
		return Struct(name, fields...), nil
	case *wit.Own:
		return Own(resourceName(kind.Type, name)), nil
	case *wit.Borrow:
		return Borrow(resourceName(kind.Type, name)), nil
	case wit.Type:
		return FromWIT(kind)
	}
	return nil, errors.New(errors.PhaseRegister, errors.KindIncompatibleLayout).
		NativeType(name).
		Detail("WIT %T has no fixed native layout", td.Kind).
		Build()
}

func resourceName(res *wit.TypeDef, fallback string) string {
	if res != nil && res.Name != nil {
		return *res.Name
	}
	return fallback
}
