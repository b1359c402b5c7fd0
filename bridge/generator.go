package bridge

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/ownership"
	"github.com/wippyai/wasm-bridge/typemap"
)

// ResourceName is the native resource name handles are declared with.
const ResourceName = "resource"

var (
	transferType = reflect.TypeFor[ownership.Transfer]()
	refType      = reflect.TypeFor[ownership.Ref]()
)

// Generator turns signatures into call bridges using the mappings of a
// type registry.
type Generator struct {
	types *typemap.Registry
}

// NewGenerator creates a generator over types. A nil registry gets the
// builtin scalar mappings. ownership.Transfer and ownership.Ref are mapped
// to own and borrow handles.
func NewGenerator(types *typemap.Registry) (*Generator, error) {
	if types == nil {
		types = typemap.NewRegistry()
	}
	if _, err := types.RegisterHandle(transferType, typemap.Own(ResourceName)); err != nil {
		return nil, err
	}
	if _, err := types.RegisterHandle(refType, typemap.Borrow(ResourceName)); err != nil {
		return nil, err
	}
	return &Generator{types: types}, nil
}

// Types returns the registry the generator resolves types with.
func (g *Generator) Types() *typemap.Registry {
	return g.types
}

// Generate resolves every parameter and the result of sig and returns the
// bridge. Parameter order is preserved exactly.
func (g *Generator) Generate(sig Signature) (*CallBridge, error) {
	if sig.Name == "" {
		return nil, errors.InvalidInput(errors.PhaseGenerate, "signature has no name")
	}

	b := &CallBridge{sig: sig, params: make([]*typemap.MappedType, len(sig.Params))}
	for i, p := range sig.Params {
		if p.Type == nil {
			return nil, errors.New(errors.PhaseGenerate, errors.KindUnmappedType).
				Path(sig.Name, paramName(p, i)).
				Detail("parameter has no type").
				Build()
		}
		m, err := g.types.Lookup(p.Type)
		if err != nil {
			return nil, errors.UnmappedType(errors.PhaseGenerate, []string{sig.Name, paramName(p, i)}, p.Type.String())
		}
		if err := checkHandle(m, sig.Name, paramName(p, i)); err != nil {
			return nil, err
		}
		b.params[i] = m
		b.paramTypes = append(b.paramTypes, m.Flat()...)
		b.hasHandles = b.hasHandles || m.Rule == typemap.RuleHandle
	}

	if sig.Fallible {
		b.resultTypes = append(b.resultTypes, api.ValueTypeI32)
	}
	if sig.Result != nil {
		m, err := g.types.Lookup(sig.Result)
		if err != nil {
			return nil, errors.UnmappedType(errors.PhaseGenerate, []string{sig.Name, "result"}, sig.Result.String())
		}
		if m.Target.Kind == typemap.KindBorrow {
			return nil, errors.New(errors.PhaseGenerate, errors.KindInvalidInput).
				Path(sig.Name, "result").
				GoType(sig.Result.String()).
				Detail("a borrow cannot outlive the call that returns it").
				Build()
		}
		if err := checkHandle(m, sig.Name, "result"); err != nil {
			return nil, err
		}
		b.result = m
		b.resultTypes = append(b.resultTypes, m.Flat()...)
		b.hasHandles = b.hasHandles || m.Rule == typemap.RuleHandle
	}

	Logger().Debug("bridge generated",
		zap.String("signature", sig.String()),
		zap.Int("param_slots", len(b.paramTypes)),
		zap.Int("result_slots", len(b.resultTypes)))
	return b, nil
}

// checkHandle rejects handle mappings the trampolines cannot carry. Handles
// cross only as ownership.Transfer or ownership.Ref.
func checkHandle(m *typemap.MappedType, path ...string) error {
	if m.Rule != typemap.RuleHandle || m.Source == transferType || m.Source == refType {
		return nil
	}
	return errors.New(errors.PhaseGenerate, errors.KindTypeMismatch).
		Path(path...).
		GoType(m.Source.String()).
		NativeType(m.Target.String()).
		Detail("handles cross as %s or %s", transferType, refType).
		Build()
}

// GenerateAll generates a bridge per signature. A failing signature does not
// affect the others: the returned map holds every bridge that succeeded and
// the error combines every failure.
func (g *Generator) GenerateAll(sigs ...Signature) (map[string]*CallBridge, error) {
	out := make(map[string]*CallBridge, len(sigs))
	var errs error
	for _, sig := range sigs {
		b, err := g.Generate(sig)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if _, dup := out[sig.Name]; dup {
			errs = multierr.Append(errs, errors.New(errors.PhaseGenerate, errors.KindDuplicate).
				Path(sig.Name).
				Detail("signature declared twice").
				Build())
			continue
		}
		out[sig.Name] = b
	}
	return out, errs
}

func paramName(p Param, i int) string {
	if p.Name != "" {
		return p.Name
	}
	return "param" + strconv.Itoa(i)
}

// CallBridge is the immutable result of generating a signature.
type CallBridge struct {
	result      *typemap.MappedType
	sig         Signature
	params      []*typemap.MappedType
	paramTypes  []api.ValueType
	resultTypes []api.ValueType
	hasHandles  bool
}

// Name returns the native symbol.
func (b *CallBridge) Name() string { return b.sig.Name }

// Signature returns the signature the bridge was generated from.
func (b *CallBridge) Signature() Signature { return b.sig }

// ParamTypes returns the flat native parameter types.
func (b *CallBridge) ParamTypes() []api.ValueType { return b.paramTypes }

// ResultTypes returns the flat native result types, status first when the
// signature is fallible.
func (b *CallBridge) ResultTypes() []api.ValueType { return b.resultTypes }

// Params returns the mapped type of each parameter.
func (b *CallBridge) Params() []*typemap.MappedType { return b.params }

// Result returns the mapped result type, or nil for void.
func (b *CallBridge) Result() *typemap.MappedType { return b.result }

// UsesHandles reports whether any parameter or the result is a handle.
func (b *CallBridge) UsesHandles() bool { return b.hasHandles }

func (b *CallBridge) String() string {
	var s strings.Builder
	s.WriteString(b.sig.Name)
	s.WriteString(" [")
	for i, t := range b.paramTypes {
		if i > 0 {
			s.WriteByte(' ')
		}
		s.WriteString(api.ValueTypeName(t))
	}
	s.WriteString("] -> [")
	for i, t := range b.resultTypes {
		if i > 0 {
			s.WriteByte(' ')
		}
		s.WriteString(api.ValueTypeName(t))
	}
	s.WriteByte(']')
	return s.String()
}
