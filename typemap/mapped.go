package typemap

import (
	"encoding/binary"
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"

	wasmbridge "github.com/wippyai/wasm-bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// Rule names the equivalence that justified a mapping.
type Rule uint8

const (
	RuleIdentity Rule = iota
	RulePOD
	RuleHandle
	RuleConvert
)

var ruleNames = [...]string{
	RuleIdentity: "identity",
	RulePOD:      "pod",
	RuleHandle:   "handle",
	RuleConvert:  "convert",
}

func (r Rule) String() string {
	if int(r) < len(ruleNames) {
		return ruleNames[r]
	}
	return "rule(" + strconv.Itoa(int(r)) + ")"
}

// Conversion converts between a Go type and another Go type that already
// has a transparent mapping.
type Conversion struct {
	ToNative   func(v any) (any, error)
	FromNative func(v any) (any, error)
}

// MappedType is a proven pairing of a Go type and a native type.
// It is immutable and safe for concurrent use.
type MappedType struct {
	Source reflect.Type
	Target *Type
	via    *MappedType
	conv   *Conversion
	flat   []api.ValueType
	layout Layout
	Rule   Rule
}

func newMapped(src reflect.Type, dst *Type, rule Rule) *MappedType {
	return &MappedType{
		Source: src,
		Target: dst,
		Rule:   rule,
		flat:   dst.Flat(),
		layout: dst.Layout(),
	}
}

// Flat returns the wasm value slots the type occupies.
func (m *MappedType) Flat() []api.ValueType {
	return m.flat
}

// Layout returns the native memory layout.
func (m *MappedType) Layout() Layout {
	return m.layout
}

func (m *MappedType) String() string {
	return m.Source.String() + " <-> " + m.Target.String() + " (" + m.Rule.String() + ")"
}

// Lower marshals v into value slots.
func (m *MappedType) Lower(v any) ([]uint64, error) {
	if m.conv != nil {
		nv, err := m.conv.ToNative(v)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "convert "+m.Source.String())
		}
		return m.via.Lower(nv)
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Type() != m.Source {
		return nil, errors.TypeMismatch(errors.PhaseEncode, nil, typeName(v), m.Target.String())
	}
	if m.Rule == RuleHandle {
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			GoType(m.Source.String()).
			Detail("handles are lowered through a handle table").
			Build()
	}

	out := make([]uint64, 0, len(m.flat))
	return lowerValue(out, nil, m.Target, addressable(rv))
}

// LowerInto appends the slots of v to dst.
func (m *MappedType) LowerInto(dst []uint64, v any) ([]uint64, error) {
	slots, err := m.Lower(v)
	if err != nil {
		return dst, err
	}
	return append(dst, slots...), nil
}

func lowerValue(out []uint64, path []string, t *Type, rv reflect.Value) ([]uint64, error) {
	if t.Kind == KindStruct {
		var err error
		for i, f := range t.Fields {
			out, err = lowerValue(out, append(path, f.Name), f.Type, rv.Field(i))
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	}
	slot, err := lowerScalar(path, t.Kind, rv)
	if err != nil {
		return nil, err
	}
	return append(out, slot), nil
}

func lowerScalar(path []string, k Kind, rv reflect.Value) (uint64, error) {
	switch k {
	case KindBool:
		if rv.Bool() {
			return 1, nil
		}
		return 0, nil
	case KindU8, KindU16, KindU32, KindPointer, KindOwn, KindBorrow:
		return api.EncodeU32(uint32(rv.Uint())), nil
	case KindS8, KindS16, KindS32:
		return api.EncodeI32(int32(rv.Int())), nil
	case KindChar:
		c := rv.Int()
		if c < 0 || c > utf8.MaxRune || !utf8.ValidRune(rune(c)) {
			return 0, errors.InvalidData(errors.PhaseEncode, path, "invalid unicode scalar value "+strconv.FormatInt(c, 16))
		}
		return api.EncodeU32(uint32(c)), nil
	case KindU64:
		return rv.Uint(), nil
	case KindS64:
		return api.EncodeI64(rv.Int()), nil
	case KindF32:
		return uint64(float32Bits(rv)), nil
	case KindF64:
		return api.EncodeF64(rv.Float()), nil
	}
	return 0, nil
}

// addressable returns an addressable copy of rv so float32 fields can be
// read by their bits.
func addressable(rv reflect.Value) reflect.Value {
	c := reflect.New(rv.Type()).Elem()
	c.Set(rv)
	return c
}

// float32Bits reads the bits of a float32 value without widening it, which
// would quiet a signalling NaN.
func float32Bits(rv reflect.Value) uint32 {
	if !rv.CanAddr() {
		return math.Float32bits(float32(rv.Float()))
	}
	return *(*uint32)(rv.Addr().UnsafePointer())
}

// Lift unmarshals value slots into a Go value of the source type.
func (m *MappedType) Lift(slots []uint64) (any, error) {
	if m.conv != nil {
		v, err := m.via.Lift(slots)
		if err != nil {
			return nil, err
		}
		out, err := m.conv.FromNative(v)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "convert "+m.Source.String())
		}
		return out, nil
	}
	if len(slots) != len(m.flat) {
		return nil, errors.ArityMismatch(errors.PhaseDecode, m.Target.String(), len(m.flat), len(slots))
	}
	if m.Rule == RuleHandle {
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidInput).
			GoType(m.Source.String()).
			Detail("handles are lifted through a handle table").
			Build()
	}

	rv := reflect.New(m.Source).Elem()
	if _, err := liftValue(nil, m.Target, rv, slots); err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

func liftValue(path []string, t *Type, rv reflect.Value, slots []uint64) ([]uint64, error) {
	if t.Kind == KindStruct {
		var err error
		for i, f := range t.Fields {
			slots, err = liftValue(append(path, f.Name), f.Type, rv.Field(i), slots)
			if err != nil {
				return nil, err
			}
		}
		return slots, nil
	}
	if err := setScalar(errors.PhaseDecode, path, t.Kind, rv, slots[0]); err != nil {
		return nil, err
	}
	return slots[1:], nil
}

// setScalar stores a raw slot into rv, rejecting values the kind cannot hold.
func setScalar(phase errors.Phase, path []string, k Kind, rv reflect.Value, slot uint64) error {
	switch k {
	case KindBool:
		if slot > 1 {
			return errors.InvalidData(phase, path, "bool must be 0 or 1, got "+strconv.FormatUint(slot, 10))
		}
		rv.SetBool(slot == 1)
	case KindU8, KindU16, KindU32, KindPointer, KindOwn, KindBorrow:
		if slot > uint64(maxUnsigned(k)) {
			return errors.Overflow(phase, path, slot, k.String())
		}
		rv.SetUint(slot)
	case KindS8, KindS16, KindS32:
		if slot > math.MaxUint32 {
			return errors.Overflow(phase, path, slot, k.String())
		}
		n := int64(int32(uint32(slot)))
		lo, hi := signedRange(k)
		if n < lo || n > hi {
			return errors.Overflow(phase, path, n, k.String())
		}
		rv.SetInt(n)
	case KindChar:
		c := uint32(slot)
		if slot > math.MaxUint32 || !utf8.ValidRune(rune(c)) {
			return errors.InvalidData(phase, path, "invalid unicode scalar value "+strconv.FormatUint(slot, 16))
		}
		rv.SetInt(int64(c))
	case KindU64:
		rv.SetUint(slot)
	case KindS64:
		rv.SetInt(int64(slot))
	case KindF32:
		if slot > math.MaxUint32 {
			return errors.Overflow(phase, path, slot, k.String())
		}
		// rv comes from reflect.New, so it is addressable
		*(*uint32)(rv.Addr().UnsafePointer()) = uint32(slot)
	case KindF64:
		rv.SetFloat(api.DecodeF64(slot))
	default:
		return errors.InvalidData(phase, path, "kind "+k.String()+" is not a scalar")
	}
	return nil
}

func maxUnsigned(k Kind) uint32 {
	switch k {
	case KindU8:
		return math.MaxUint8
	case KindU16:
		return math.MaxUint16
	}
	return math.MaxUint32
}

func signedRange(k Kind) (int64, int64) {
	switch k {
	case KindS8:
		return math.MinInt8, math.MaxInt8
	case KindS16:
		return math.MinInt16, math.MaxInt16
	}
	return math.MinInt32, math.MaxInt32
}

// Store copies v into native memory at ptr using the exact native layout.
// Padding bytes are written as zero.
func (m *MappedType) Store(mem wasmbridge.Memory, ptr uint32, v any) error {
	if m.conv != nil {
		nv, err := m.conv.ToNative(v)
		if err != nil {
			return errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "convert "+m.Source.String())
		}
		return m.via.Store(mem, ptr, nv)
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Type() != m.Source {
		return errors.TypeMismatch(errors.PhaseEncode, nil, typeName(v), m.Target.String())
	}
	if err := m.checkAddressable(errors.PhaseEncode, ptr); err != nil {
		return err
	}

	buf := make([]byte, m.layout.Size)
	if err := encodeBytes(nil, buf, 0, m.Target, addressable(rv)); err != nil {
		return err
	}
	if err := mem.Write(ptr, buf); err != nil {
		return errors.OutOfBounds(errors.PhaseEncode, []string{m.Target.String()}, ptr, m.layout.Size)
	}
	return nil
}

// Load copies a native value at ptr into a Go value of the source type.
func (m *MappedType) Load(mem wasmbridge.Memory, ptr uint32) (any, error) {
	if m.conv != nil {
		v, err := m.via.Load(mem, ptr)
		if err != nil {
			return nil, err
		}
		out, err := m.conv.FromNative(v)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "convert "+m.Source.String())
		}
		return out, nil
	}
	if err := m.checkAddressable(errors.PhaseDecode, ptr); err != nil {
		return nil, err
	}

	buf, err := mem.Read(ptr, m.layout.Size)
	if err != nil {
		return nil, errors.OutOfBounds(errors.PhaseDecode, []string{m.Target.String()}, ptr, m.layout.Size)
	}
	rv := reflect.New(m.Source).Elem()
	if err := decodeBytes(nil, buf, 0, m.Target, rv); err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

func (m *MappedType) checkAddressable(phase errors.Phase, ptr uint32) error {
	if m.Rule == RuleHandle || m.Target.Kind == KindString {
		return errors.New(phase, errors.KindInvalidInput).
			NativeType(m.Target.String()).
			Detail("not plain data").
			Build()
	}
	if ptr%m.layout.Align != 0 {
		return errors.InvalidData(phase, []string{m.Target.String()},
			"address "+strconv.FormatUint(uint64(ptr), 10)+" is not aligned to "+strconv.FormatUint(uint64(m.layout.Align), 10))
	}
	return nil
}

func encodeBytes(path []string, buf []byte, off uint32, t *Type, rv reflect.Value) error {
	if t.Kind == KindStruct {
		l := t.Layout()
		for i, f := range t.Fields {
			if err := encodeBytes(append(path, f.Name), buf, off+l.Offsets[i], f.Type, rv.Field(i)); err != nil {
				return err
			}
		}
		return nil
	}
	slot, err := lowerScalar(path, t.Kind, rv)
	if err != nil {
		return err
	}
	switch t.Kind.Size() {
	case 1:
		buf[off] = byte(slot)
	case 2:
		binary.LittleEndian.PutUint16(buf[off:], uint16(slot))
	case 4:
		binary.LittleEndian.PutUint32(buf[off:], uint32(slot))
	case 8:
		binary.LittleEndian.PutUint64(buf[off:], slot)
	}
	return nil
}

func decodeBytes(path []string, buf []byte, off uint32, t *Type, rv reflect.Value) error {
	if t.Kind == KindStruct {
		l := t.Layout()
		for i, f := range t.Fields {
			if err := decodeBytes(append(path, f.Name), buf, off+l.Offsets[i], f.Type, rv.Field(i)); err != nil {
				return err
			}
		}
		return nil
	}

	var slot uint64
	switch t.Kind.Size() {
	case 1:
		slot = uint64(buf[off])
		if t.Kind.Signed() {
			slot = api.EncodeI32(int32(int8(buf[off])))
		}
	case 2:
		slot = uint64(binary.LittleEndian.Uint16(buf[off:]))
		if t.Kind.Signed() {
			slot = api.EncodeI32(int32(int16(binary.LittleEndian.Uint16(buf[off:]))))
		}
	case 4:
		slot = uint64(binary.LittleEndian.Uint32(buf[off:]))
	case 8:
		slot = binary.LittleEndian.Uint64(buf[off:])
	}
	return setScalar(errors.PhaseDecode, path, t.Kind, rv, slot)
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
