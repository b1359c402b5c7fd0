package bridge

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/callback"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/ownership"
	"github.com/wippyai/wasm-bridge/typemap"
)

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// HostFunc is a Go implementation exported to native code under a flat
// symbol. It is ready to be defined on a wazero host module.
type HostFunc struct {
	Fn      api.GoModuleFunc
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

// goFunc is a Go function checked against a call bridge.
type goFunc struct {
	bridge     *CallBridge
	fn         reflect.Value
	handles    *ownership.Table
	withCtx    bool
	returnsErr bool
}

// bindFunc validates fn against the bridge signature. fn may take a leading
// context.Context and may return an error only when the signature is
// fallible.
func (b *CallBridge) bindFunc(fn any, handles *ownership.Table) (*goFunc, error) {
	rv := reflect.ValueOf(fn)
	if !rv.IsValid() || rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, errors.TypeMismatch(errors.PhaseBind, []string{b.sig.Name}, typeOf(fn), "func")
	}
	ft := rv.Type()
	if ft.IsVariadic() {
		return nil, errors.InvalidInput(errors.PhaseBind, b.sig.Name+": variadic functions cannot be exported")
	}

	g := &goFunc{bridge: b, fn: rv, handles: handles}
	in := 0
	if ft.NumIn() > 0 && ft.In(0) == contextType {
		g.withCtx = true
		in = 1
	}
	if ft.NumIn()-in != len(b.params) {
		return nil, errors.ArityMismatch(errors.PhaseBind, b.sig.Name, len(b.params), ft.NumIn()-in)
	}
	for i, m := range b.params {
		if got := ft.In(in + i); got != m.Source {
			return nil, errors.TypeMismatch(errors.PhaseBind, b.paramPath(i), got.String(), m.Source.String())
		}
	}

	out := ft.NumOut()
	if out > 0 && ft.Out(out-1) == errorType {
		if !b.sig.Fallible {
			return nil, errors.New(errors.PhaseBind, errors.KindTypeMismatch).
				Path(b.sig.Name, "result").
				GoType(ft.String()).
				Detail("only fallible signatures may return an error").
				Build()
		}
		g.returnsErr = true
		out--
	}
	want := 0
	if b.sig.Result != nil {
		want = 1
	}
	if out != want {
		return nil, errors.New(errors.PhaseBind, errors.KindArityMismatch).
			Path(b.sig.Name, "result").
			GoType(ft.String()).
			Detail("want %d result value(s), got %d", want, out).
			Build()
	}
	if want == 1 && ft.Out(0) != b.sig.Result {
		return nil, errors.TypeMismatch(errors.PhaseBind, []string{b.sig.Name, "result"}, ft.Out(0).String(), b.sig.Result.String())
	}
	if b.hasHandles && handles == nil {
		return nil, errors.New(errors.PhaseBind, errors.KindInvalidInput).
			Path(b.sig.Name).
			Detail("signature crosses handles but no handle table was given").
			Build()
	}
	return g, nil
}

// call lifts params, runs the Go function and lowers its result. The slots
// returned exclude the status slot. Panics are not recovered here.
func (g *goFunc) call(ctx context.Context, params []uint64) (results []uint64, err error) {
	b := g.bridge
	if len(params) < len(b.paramTypes) {
		return nil, errors.ArityMismatch(errors.PhaseDecode, b.sig.Name, len(b.paramTypes), len(params))
	}

	in := make([]reflect.Value, 0, len(b.params)+1)
	if g.withCtx {
		in = append(in, reflect.ValueOf(ctx))
	}

	var borrowed []ownership.Ref
	defer func() {
		for _, r := range borrowed {
			r.Return()
		}
	}()

	// Scalars and structs are lifted first, then borrows, then owned
	// handles, so a failure leaves as little as possible to undo.
	vals := make([]reflect.Value, len(b.params))
	handles := make([]ownership.Handle, len(b.params))
	pos := 0
	for i, m := range b.params {
		n := len(m.Flat())
		slots := params[pos : pos+n]
		pos += n

		if m.Rule == typemap.RuleHandle {
			handles[i] = ownership.Handle(api.DecodeU32(slots[0]))
			continue
		}
		v, err := m.Lift(slots)
		if err != nil {
			return nil, annotate(err, b.paramPath(i))
		}
		vals[i] = reflect.ValueOf(v)
	}

	if b.hasHandles {
		for i, m := range b.params {
			if m.Rule != typemap.RuleHandle || m.Target.Kind != typemap.KindBorrow {
				continue
			}
			ref, err := g.handles.Get(handles[i])
			if err != nil {
				return nil, annotate(err, b.paramPath(i))
			}
			borrowed = append(borrowed, ref)
			vals[i] = reflect.ValueOf(ref)
		}

		// every owned handle is checked before any is taken, so a bad
		// handle leaves the native caller's handles untouched
		seen := make(map[ownership.Handle]bool)
		for i, m := range b.params {
			if m.Rule != typemap.RuleHandle || m.Target.Kind != typemap.KindOwn {
				continue
			}
			if seen[handles[i]] {
				return nil, annotate(errors.InvalidInput(errors.PhaseHandoff,
					fmt.Sprintf("handle %d is moved twice in one call", handles[i])), b.paramPath(i))
			}
			seen[handles[i]] = true
			if err := g.handles.Movable(handles[i]); err != nil {
				return nil, annotate(err, b.paramPath(i))
			}
		}

		var taken []ownership.Transfer
		for i, m := range b.params {
			if m.Rule != typemap.RuleHandle || m.Target.Kind != typemap.KindOwn {
				continue
			}
			tr, err := g.handles.Take(handles[i])
			if err != nil {
				// Only a release racing this call gets here. The transfers
				// already taken go back into the table under fresh handles
				// the native caller never sees; Table.Close releases them.
				for _, t := range taken {
					_, _ = g.handles.Adopt(t)
				}
				return nil, annotate(err, b.paramPath(i))
			}
			taken = append(taken, tr)
			vals[i] = reflect.ValueOf(tr)
		}
	}
	in = append(in, vals...)

	out := g.fn.Call(in)
	if g.returnsErr {
		if e, _ := out[len(out)-1].Interface().(error); e != nil {
			return nil, e
		}
		out = out[:len(out)-1]
	}
	if b.result == nil {
		return nil, nil
	}

	v := out[0].Interface()
	if b.result.Rule == typemap.RuleHandle {
		h, err := g.handles.Adopt(v.(ownership.Transfer))
		if err != nil {
			return nil, annotate(err, []string{b.sig.Name, "result"})
		}
		return []uint64{api.EncodeU32(uint32(h))}, nil
	}
	results, err = b.result.Lower(v)
	if err != nil {
		return nil, annotate(err, []string{b.sig.Name, "result"})
	}
	return results, nil
}

// Export binds fn as the reverse trampoline of the bridge: native code calls
// the returned host function with the flat signature and reaches fn.
//
// Every call runs under Contain. With a fallible signature a panic or error
// is reported through the status slot. Without one, a panic or an
// undecodable argument is fatal: the abort hook runs and the calling
// instance is closed with ExitCodeUnwind.
func (b *CallBridge) Export(fn any, opts ...Option) (*HostFunc, error) {
	o := buildOptions(opts)
	g, err := b.bindFunc(fn, o.handles)
	if err != nil {
		return nil, err
	}
	name := b.sig.Name
	abort := o.abort
	nres := len(b.resultTypes)

	host := func(ctx context.Context, mod api.Module, stack []uint64) {
		var results []uint64
		err := Contain(name, func() error {
			var err error
			results, err = g.call(ctx, stack)
			return err
		})

		if b.sig.Fallible {
			clear(stack[:nres])
			if err != nil {
				Logger().Debug("exported function failed", zap.String("symbol", name), zap.Error(err))
				stack[0] = uint64(statusFor(err))
				return
			}
			copy(stack[1:], results)
			return
		}

		if err != nil {
			abort(err)
			// the hook returned; stop the native caller instead of unwinding
			if mod != nil {
				_ = mod.CloseWithExitCode(ctx, ExitCodeUnwind)
			}
			panic(sys.NewExitError(ExitCodeUnwind))
		}
		copy(stack, results)
	}

	return &HostFunc{
		Name:    name,
		Fn:      api.GoModuleFunc(host),
		Params:  b.paramTypes,
		Results: b.resultTypes,
	}, nil
}

// Callback adapts fn to the uniform callback signature so it can be
// registered in a callback.Table. Errors and panics surface through the
// table's status codes; a fallible signature's status slot is not used.
func (b *CallBridge) Callback(fn any, opts ...Option) (callback.Func, error) {
	o := buildOptions(opts)
	g, err := b.bindFunc(fn, o.handles)
	if err != nil {
		return nil, err
	}
	want := len(b.paramTypes)
	return func(ctx context.Context, args []uint64) ([]uint64, error) {
		if len(args) != want {
			return nil, errors.ArityMismatch(errors.PhaseDecode, b.sig.Name, want, len(args))
		}
		return g.call(ctx, args)
	}, nil
}

func (h *HostFunc) String() string {
	return fmt.Sprintf("%s%v -> %v", h.Name, valueTypeNames(h.Params), valueTypeNames(h.Results))
}

func valueTypeNames(ts []api.ValueType) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = api.ValueTypeName(t)
	}
	return out
}
