package typemap

import (
	"fmt"
	"math"
	"reflect"
	"sync"

	"github.com/wippyai/wasm-bridge/errors"
)

// Registry holds the mapped types known to a generator, keyed by Go type.
// Registration normally happens at startup; lookups are safe for concurrent
// use at any time.
type Registry struct {
	types map[reflect.Type]*MappedType
	mu    sync.RWMutex
}

// NewRegistry creates a registry with the fixed-width Go scalars mapped to
// their native equivalents.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[reflect.Type]*MappedType)}
	for _, b := range []struct {
		src reflect.Type
		dst *Type
	}{
		{reflect.TypeFor[bool](), Bool},
		{reflect.TypeFor[uint8](), U8},
		{reflect.TypeFor[int8](), S8},
		{reflect.TypeFor[uint16](), U16},
		{reflect.TypeFor[int16](), S16},
		{reflect.TypeFor[uint32](), U32},
		{reflect.TypeFor[int32](), S32},
		{reflect.TypeFor[uint64](), U64},
		{reflect.TypeFor[int64](), S64},
		{reflect.TypeFor[float32](), F32},
		{reflect.TypeFor[float64](), F64},
		{reflect.TypeFor[Rune](), Char},
	} {
		r.types[b.src] = newMapped(b.src, b.dst, RuleIdentity)
	}
	return r
}

// Register proves and records a transparent mapping from src to dst.
// Scalars use RuleIdentity, structs RulePOD; anything else needs
// RegisterConversion or RegisterHandle.
func (r *Registry) Register(src reflect.Type, dst *Type) (*MappedType, error) {
	if src == nil || dst == nil {
		return nil, errors.InvalidInput(errors.PhaseRegister, "source and target types are required")
	}

	path := []string{dst.Name}
	rule := RuleIdentity
	var err *errors.Error
	switch dst.Kind {
	case KindStruct:
		rule = RulePOD
		err = provePOD(path, src, dst)
	case KindOwn, KindBorrow:
		err = errors.IncompatibleLayout(path, src.String(), dst.String(), "handles need RegisterHandle")
	case KindString:
		err = errors.IncompatibleLayout(path, src.String(), dst.String(), "strings have no transparent representation")
	default:
		err = proveScalar(path, src, dst)
	}
	if err != nil {
		return nil, err
	}

	return r.add(newMapped(src, dst, rule))
}

// MustRegister is Register for startup code.
func (r *Registry) MustRegister(src reflect.Type, dst *Type) *MappedType {
	m, err := r.Register(src, dst)
	if err != nil {
		panic(err)
	}
	return m
}

// RegisterHandle maps src to an own or borrow handle. Values of src are
// lowered and lifted by the caller's handle table, not by the registry.
func (r *Registry) RegisterHandle(src reflect.Type, dst *Type) (*MappedType, error) {
	if src == nil || dst == nil || !dst.Kind.IsHandle() {
		return nil, errors.InvalidInput(errors.PhaseRegister, "handle mapping requires an own or borrow target")
	}
	return r.add(newMapped(src, dst, RuleHandle))
}

// RegisterConversion maps src through via, which must already be mapped.
func (r *Registry) RegisterConversion(src, via reflect.Type, conv Conversion) (*MappedType, error) {
	if conv.ToNative == nil || conv.FromNative == nil {
		return nil, errors.InvalidInput(errors.PhaseRegister, "conversion needs both directions")
	}
	base, err := r.Lookup(via)
	if err != nil {
		return nil, err
	}
	if base.Rule == RuleHandle {
		return nil, errors.InvalidInput(errors.PhaseRegister, "cannot convert through a handle mapping")
	}

	m := newMapped(src, base.Target, RuleConvert)
	m.via = base
	m.conv = &conv
	return r.add(m)
}

func (r *Registry) add(m *MappedType) (*MappedType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.types[m.Source]; ok {
		if prev.Rule == m.Rule && prev.Target.Equal(m.Target) {
			return prev, nil
		}
		return nil, errors.New(errors.PhaseRegister, errors.KindDuplicate).
			GoType(m.Source.String()).
			NativeType(m.Target.String()).
			Detail("already mapped to %s", prev.Target).
			Build()
	}
	r.types[m.Source] = m
	return m, nil
}

// Lookup returns the mapping for src or fails with unmapped_type.
func (r *Registry) Lookup(src reflect.Type) (*MappedType, error) {
	if src == nil {
		return nil, errors.UnmappedType(errors.PhaseGenerate, nil, "nil")
	}
	r.mu.RLock()
	m, ok := r.types[src]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.UnmappedType(errors.PhaseGenerate, nil, src.String())
	}
	return m, nil
}

// Types returns a snapshot of every mapping.
func (r *Registry) Types() []*MappedType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*MappedType, 0, len(r.types))
	for _, m := range r.types {
		out = append(out, m)
	}
	return out
}

// IntConversion carries Go int as s64.
var IntConversion = Conversion{
	ToNative: func(v any) (any, error) {
		n, ok := v.(int)
		if !ok {
			return nil, fmt.Errorf("want int, got %T", v)
		}
		return int64(n), nil
	},
	FromNative: func(v any) (any, error) {
		n := v.(int64)
		if n < math.MinInt || n > math.MaxInt {
			return nil, fmt.Errorf("%d overflows int", n)
		}
		return int(n), nil
	},
}
