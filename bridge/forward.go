package bridge

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/ownership"
	"github.com/wippyai/wasm-bridge/typemap"
)

// ExitCodeUnwind is the exit code used when a panic reaches a native
// boundary that cannot report it.
const ExitCodeUnwind = 134

// Target is a native entry point. api.Function satisfies it.
type Target interface {
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// definer is implemented by targets that can describe their signature.
type definer interface {
	Definition() api.FunctionDefinition
}

// Option configures Bind and Export.
type Option func(*options)

type options struct {
	handles *ownership.Table
	abort   AbortFunc
}

// WithHandles sets the table handles cross through.
func WithHandles(t *ownership.Table) Option {
	return func(o *options) { o.handles = t }
}

// WithAbort sets the hook run when a panic reaches a boundary without a
// status slot.
func WithAbort(fn AbortFunc) Option {
	return func(o *options) { o.abort = fn }
}

func buildOptions(opts []Option) options {
	o := options{abort: DefaultAbort}
	for _, opt := range opts {
		opt(&o)
	}
	if o.abort == nil {
		o.abort = DefaultAbort
	}
	return o
}

// Forward is a call bridge bound to a native entry point.
// It is safe for concurrent use if the target is.
type Forward struct {
	bridge  *CallBridge
	target  Target
	handles *ownership.Table
}

// Bind binds the bridge to target. When the target exposes its definition
// the flat parameter and result types must match exactly.
func (b *CallBridge) Bind(target Target, opts ...Option) (*Forward, error) {
	if target == nil {
		return nil, errors.NotFound(errors.PhaseBind, "native entry point", b.sig.Name)
	}
	o := buildOptions(opts)
	if b.hasHandles && o.handles == nil {
		return nil, errors.New(errors.PhaseBind, errors.KindInvalidInput).
			Path(b.sig.Name).
			Detail("signature crosses handles but no handle table was given").
			Build()
	}
	if d, ok := target.(definer); ok && d.Definition() != nil {
		def := d.Definition()
		if err := b.checkTypes("params", def.ParamTypes(), b.paramTypes); err != nil {
			return nil, err
		}
		if err := b.checkTypes("results", def.ResultTypes(), b.resultTypes); err != nil {
			return nil, err
		}
	}
	Logger().Debug("bridge bound", zap.String("symbol", b.sig.Name))
	return &Forward{bridge: b, target: target, handles: o.handles}, nil
}

func (b *CallBridge) checkTypes(what string, got, want []api.ValueType) error {
	if len(got) != len(want) {
		return errors.New(errors.PhaseBind, errors.KindArityMismatch).
			Path(b.sig.Name, what).
			Detail("native entry point has %d %s, bridge expects %d", len(got), what, len(want)).
			Build()
	}
	for i := range got {
		if got[i] != want[i] {
			return errors.New(errors.PhaseBind, errors.KindIncompatibleLayout).
				Path(b.sig.Name, fmt.Sprintf("%s[%d]", what, i)).
				NativeType(api.ValueTypeName(got[i])).
				Detail("bridge expects %s", api.ValueTypeName(want[i])).
				Build()
		}
	}
	return nil
}

// Bridge returns the call bridge f was bound from.
func (f *Forward) Bridge() *CallBridge { return f.bridge }

// Call marshals args in declaration order, invokes the native entry point
// and unmarshals its result. A void signature returns nil.
//
// An ownership.Transfer argument is adopted by the handle table and the
// native side becomes responsible for releasing it. If marshaling fails
// before the native call the transfer is left unconsumed. An ownership.Ref
// argument is lent only until Call returns; the caller must keep the lender
// alive for that long and must not hand it off concurrently. The same
// precondition holds for raw native addresses passed as pointer-sized
// integers: the memory they name must stay valid and unmoved until Call
// returns, and the bridge does not check it.
func (f *Forward) Call(ctx context.Context, args ...any) (any, error) {
	b := f.bridge
	if len(args) != len(b.params) {
		return nil, errors.ArityMismatch(errors.PhaseEncode, b.sig.Name, len(b.params), len(args))
	}

	slots := make([]uint64, len(b.paramTypes))
	offsets := make([]int, len(b.params))
	pos := 0
	for i, m := range b.params {
		offsets[i] = pos
		if m.Rule == typemap.RuleHandle {
			if reflect.TypeOf(args[i]) != m.Source {
				return nil, errors.TypeMismatch(errors.PhaseEncode, b.paramPath(i), typeOf(args[i]), m.Target.String())
			}
			pos++
			continue
		}
		s, err := m.Lower(args[i])
		if err != nil {
			return nil, annotate(err, b.paramPath(i))
		}
		copy(slots[pos:], s)
		pos += len(s)
	}

	lent, err := f.lowerHandles(args, slots, offsets)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, h := range lent {
			_ = f.handles.Return(h)
		}
	}()

	results, err := f.target.Call(ctx, slots...)
	if err != nil {
		return nil, invokeError(b.sig.Name, err)
	}
	if len(results) != len(b.resultTypes) {
		return nil, errors.ArityMismatch(errors.PhaseDecode, b.sig.Name, len(b.resultTypes), len(results))
	}

	if b.sig.Fallible {
		if status := api.DecodeU32(results[0]); status != 0 {
			return nil, errors.New(errors.PhaseInvoke, errors.KindNativeStatus).
				Path(b.sig.Name).
				Value(status).
				Detail("native call returned status %d", status).
				Build()
		}
		results = results[1:]
	}
	if b.result == nil {
		return nil, nil
	}
	if b.result.Rule == typemap.RuleHandle {
		tr, err := f.handles.Take(ownership.Handle(api.DecodeU32(results[0])))
		if err != nil {
			return nil, err
		}
		return tr, nil
	}
	v, err := b.result.Lift(results)
	if err != nil {
		return nil, annotate(err, []string{b.sig.Name, "result"})
	}
	return v, nil
}

// lowerHandles adopts transfers and lends refs into the handle table. On
// failure every handle created so far is undone.
func (f *Forward) lowerHandles(args []any, slots []uint64, offsets []int) (lent []ownership.Handle, err error) {
	b := f.bridge
	if !b.hasHandles {
		return nil, nil
	}
	var adopted []ownership.Handle
	defer func() {
		if err == nil {
			return
		}
		for _, h := range lent {
			_ = f.handles.Return(h)
		}
		for _, h := range adopted {
			_, _ = f.handles.Take(h)
		}
		lent = nil
	}()

	for i, m := range b.params {
		if m.Rule != typemap.RuleHandle {
			continue
		}
		var h ownership.Handle
		switch v := args[i].(type) {
		case ownership.Transfer:
			h, err = f.handles.Adopt(v)
			if err == nil {
				adopted = append(adopted, h)
			}
		case ownership.Ref:
			h, err = f.handles.Lend(v)
			if err == nil {
				lent = append(lent, h)
			}
		default:
			err = errors.TypeMismatch(errors.PhaseEncode, nil, typeOf(args[i]), m.Target.String())
		}
		if err != nil {
			return nil, annotate(err, b.paramPath(i))
		}
		slots[offsets[i]] = api.EncodeU32(uint32(h))
	}
	return lent, nil
}

func (b *CallBridge) paramPath(i int) []string {
	return []string{b.sig.Name, paramName(b.sig.Params[i], i)}
}

// invokeError classifies an error returned by the native side.
func invokeError(symbol string, err error) error {
	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		if exit.ExitCode() == ExitCodeUnwind {
			return errors.New(errors.PhaseInvoke, errors.KindCrossBoundaryUnwind).
				Path(symbol).
				Cause(err).
				Detail("native instance terminated after an unwind").
				Build()
		}
		return errors.New(errors.PhaseInvoke, errors.KindNativeTrap).
			Path(symbol).
			Value(exit.ExitCode()).
			Cause(err).
			Detail("native instance exited with code %d", exit.ExitCode()).
			Build()
	}
	var be *errors.Error
	if stderrors.As(err, &be) {
		return err
	}
	return errors.New(errors.PhaseInvoke, errors.KindNativeTrap).
		Path(symbol).
		Cause(err).
		Build()
}

// annotate sets the path of a structured error that has none.
func annotate(err error, path []string) error {
	var be *errors.Error
	if stderrors.As(err, &be) && len(be.Path) == 0 {
		cp := *be
		cp.Path = path
		return &cp
	}
	return err
}

func typeOf(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
