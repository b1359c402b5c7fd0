package typemap

import "github.com/tetratelabs/wazero/api"

// Layout is the wasm32 memory layout of a native type.
type Layout struct {
	Offsets []uint32 // struct field offsets, in field order
	Size    uint32
	Align   uint32
}

// AlignTo rounds offset up to a multiple of align.
func AlignTo(offset, align uint32) uint32 {
	if align <= 1 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// Layout computes size, alignment and field offsets.
func (t *Type) Layout() Layout {
	if t.Kind != KindStruct {
		size := t.Kind.Size()
		if t.Kind == KindString {
			return Layout{Size: 8, Align: 4} // [ptr: u32, len: u32]
		}
		return Layout{Size: size, Align: max(size, 1)}
	}

	if len(t.Fields) == 0 {
		return Layout{Size: 0, Align: 1}
	}

	offsets := make([]uint32, len(t.Fields))
	maxAlign := uint32(1)
	offset := uint32(0)
	for i, f := range t.Fields {
		fl := f.Type.Layout()
		offset = AlignTo(offset, fl.Align)
		offsets[i] = offset
		if fl.Align > maxAlign {
			maxAlign = fl.Align
		}
		offset += fl.Size
	}

	return Layout{
		Size:    AlignTo(offset, maxAlign),
		Align:   maxAlign,
		Offsets: offsets,
	}
}

// Flat returns the wasm value slots of t, structs flattened in field order.
func (t *Type) Flat() []api.ValueType {
	var out []api.ValueType
	t.appendFlat(&out)
	return out
}

func (t *Type) appendFlat(out *[]api.ValueType) {
	switch t.Kind {
	case KindStruct:
		for _, f := range t.Fields {
			f.Type.appendFlat(out)
		}
	case KindString:
		*out = append(*out, api.ValueTypeI32, api.ValueTypeI32)
	default:
		*out = append(*out, t.Kind.ValueType())
	}
}
