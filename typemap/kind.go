package typemap

import "github.com/tetratelabs/wazero/api"

// Kind identifies the shape of a native type.
type Kind uint8

const (
	KindBool Kind = iota
	KindU8
	KindS8
	KindU16
	KindS16
	KindU32
	KindS32
	KindU64
	KindS64
	KindF32
	KindF64
	KindChar
	KindPointer
	KindStruct
	KindOwn
	KindBorrow
	KindString
)

var kindNames = [...]string{
	KindBool:    "bool",
	KindU8:      "u8",
	KindS8:      "s8",
	KindU16:     "u16",
	KindS16:     "s16",
	KindU32:     "u32",
	KindS32:     "s32",
	KindU64:     "u64",
	KindS64:     "s64",
	KindF32:     "f32",
	KindF64:     "f64",
	KindChar:    "char",
	KindPointer: "ptr",
	KindStruct:  "struct",
	KindOwn:     "own",
	KindBorrow:  "borrow",
	KindString:  "string",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsScalar reports whether k occupies exactly one value slot.
func (k Kind) IsScalar() bool {
	return k <= KindPointer || k == KindOwn || k == KindBorrow
}

// IsHandle reports whether k is carried as a resource handle.
func (k Kind) IsHandle() bool {
	return k == KindOwn || k == KindBorrow
}

// Size returns the byte width of a scalar kind, 0 otherwise.
func (k Kind) Size() uint32 {
	switch k {
	case KindBool, KindU8, KindS8:
		return 1
	case KindU16, KindS16:
		return 2
	case KindU32, KindS32, KindF32, KindChar, KindPointer, KindOwn, KindBorrow:
		return 4
	case KindU64, KindS64, KindF64:
		return 8
	default:
		return 0
	}
}

// Signed reports whether k is a signed integer kind.
func (k Kind) Signed() bool {
	switch k {
	case KindS8, KindS16, KindS32, KindS64:
		return true
	}
	return false
}

// ValueType returns the wasm value slot used for a scalar kind.
func (k Kind) ValueType() api.ValueType {
	switch k {
	case KindU64, KindS64:
		return api.ValueTypeI64
	case KindF32:
		return api.ValueTypeF32
	case KindF64:
		return api.ValueTypeF64
	default:
		return api.ValueTypeI32
	}
}
