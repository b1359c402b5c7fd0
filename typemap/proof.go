package typemap

import (
	"fmt"
	"reflect"

	"github.com/wippyai/wasm-bridge/errors"
)

// goScalar describes how a reflect kind maps onto native scalars.
type goScalar struct {
	size   uintptr
	signed bool
	float  bool
	bool   bool
}

var goScalars = map[reflect.Kind]goScalar{
	reflect.Bool:    {size: 1, bool: true},
	reflect.Uint8:   {size: 1},
	reflect.Int8:    {size: 1, signed: true},
	reflect.Uint16:  {size: 2},
	reflect.Int16:   {size: 2, signed: true},
	reflect.Uint32:  {size: 4},
	reflect.Int32:   {size: 4, signed: true},
	reflect.Uint64:  {size: 8},
	reflect.Int64:   {size: 8, signed: true},
	reflect.Float32: {size: 4, float: true},
	reflect.Float64: {size: 8, float: true},
}

// proveScalar checks that a Go scalar and a native scalar share width,
// signedness and representation.
func proveScalar(path []string, src reflect.Type, dst *Type) *errors.Error {
	fail := func(detail string, args ...any) *errors.Error {
		return errors.IncompatibleLayout(path, src.String(), dst.String(), fmt.Sprintf(detail, args...))
	}

	switch src.Kind() {
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		return fail("%s has platform-dependent width; register an explicit conversion", src.Kind())
	}

	gs, ok := goScalars[src.Kind()]
	if !ok {
		return fail("Go kind %s is not a scalar", src.Kind())
	}

	switch dst.Kind {
	case KindBool:
		if !gs.bool {
			return fail("bool requires a Go bool")
		}
		return nil
	case KindF32, KindF64:
		if !gs.float {
			return fail("float requires a Go float")
		}
	case KindChar:
		// rune is the only Go spelling of a unicode scalar value
		if src.Kind() != reflect.Int32 {
			return fail("char requires a Go rune")
		}
		return nil
	case KindPointer:
		if src.Kind() != reflect.Uint32 {
			return fail("wasm32 address requires a Go uint32")
		}
		return nil
	case KindU8, KindS8, KindU16, KindS16, KindU32, KindS32, KindU64, KindS64:
		if gs.float || gs.bool {
			return fail("integer requires a Go integer")
		}
		if gs.signed != dst.Kind.Signed() {
			return fail("signedness differs")
		}
	default:
		return fail("native kind %s is not a scalar", dst.Kind)
	}

	if uint32(gs.size) != dst.Kind.Size() {
		return fail("width %d != %d", gs.size, dst.Kind.Size())
	}
	return nil
}

// provePOD checks field count, order, kinds, offsets, size and alignment.
func provePOD(path []string, src reflect.Type, dst *Type) *errors.Error {
	fail := func(p []string, detail string, args ...any) *errors.Error {
		return errors.IncompatibleLayout(p, src.String(), dst.String(), fmt.Sprintf(detail, args...))
	}

	if src.Kind() != reflect.Struct {
		return fail(path, "Go type is not a struct")
	}
	if dst.Kind != KindStruct {
		return fail(path, "native type is not a struct")
	}
	if src.NumField() != len(dst.Fields) {
		return fail(path, "field count %d != %d", src.NumField(), len(dst.Fields))
	}

	layout := dst.Layout()
	if uint32(src.Size()) != layout.Size {
		return fail(path, "size %d != %d", src.Size(), layout.Size)
	}
	if uint32(src.Align()) != layout.Align {
		return fail(path, "alignment %d != %d", src.Align(), layout.Align)
	}

	for i := 0; i < src.NumField(); i++ {
		sf := src.Field(i)
		df := dst.Fields[i]
		fp := append(append([]string(nil), path...), sf.Name)

		if !sf.IsExported() {
			return fail(fp, "unexported field cannot be copied")
		}
		if uint32(sf.Offset) != layout.Offsets[i] {
			return fail(fp, "offset %d != %d", sf.Offset, layout.Offsets[i])
		}

		var err *errors.Error
		switch df.Type.Kind {
		case KindStruct:
			err = provePOD(fp, sf.Type, df.Type)
		case KindOwn, KindBorrow, KindString:
			err = fail(fp, "%s is not plain data", df.Type.Kind)
		default:
			err = proveScalar(fp, sf.Type, df.Type)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
