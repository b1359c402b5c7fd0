package bridge

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasm-bridge/callback"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/ownership"
	"github.com/wippyai/wasm-bridge/typemap"
)

type targetFunc func(ctx context.Context, params ...uint64) ([]uint64, error)

func (f targetFunc) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f(ctx, params...)
}

type podValue struct {
	Value uint32
}

type unmapped struct {
	Name string
}

var (
	addSig = Func("add", P[uint32]("a"), P[uint32]("b")).Returns(Result[uint32]())
	subSig = Func("sub", P[uint32]("a"), P[uint32]("b")).Returns(Result[uint32]())
)

func newGenerator(t *testing.T) *Generator {
	t.Helper()
	types := typemap.NewRegistry()
	_, err := types.Register(reflect.TypeFor[podValue](), typemap.Struct("pod", typemap.F("value", typemap.U32)))
	require.NoError(t, err)
	g, err := NewGenerator(types)
	require.NoError(t, err)
	return g
}

func generate(t *testing.T, g *Generator, sig Signature) *CallBridge {
	t.Helper()
	b, err := g.Generate(sig)
	require.NoError(t, err)
	return b
}

// callHost runs a host function the way wazero does: params in, results out
// of the same stack.
func callHost(t *testing.T, h *HostFunc, params ...uint64) []uint64 {
	t.Helper()
	n := max(len(h.Params), len(h.Results))
	stack := make([]uint64, n)
	copy(stack, params)
	h.Fn(context.Background(), nil, stack)
	return stack[:len(h.Results)]
}

func TestGenerate_FlatSignature(t *testing.T) {
	g := newGenerator(t)

	b := generate(t, g, addSig)
	require.Equal(t, "add", b.Name())
	require.Equal(t, []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, b.ParamTypes())
	require.Equal(t, []api.ValueType{api.ValueTypeI32}, b.ResultTypes())
	require.Equal(t, "add [i32 i32] -> [i32]", b.String())

	sig := Func("mixed", P[int64]("x"), P[podValue]("p"), P[float64]("y"))
	sig.Fallible = true
	b = generate(t, g, sig.Returns(Result[float32]()))
	require.Equal(t, []api.ValueType{api.ValueTypeI64, api.ValueTypeI32, api.ValueTypeF64}, b.ParamTypes())
	require.Equal(t, []api.ValueType{api.ValueTypeI32, api.ValueTypeF32}, b.ResultTypes())
	require.Equal(t, "mixed(x int64, p bridge.podValue, y float64) (float32, error)", sig.Returns(Result[float32]()).String())

	b = generate(t, g, Func("noop"))
	require.Empty(t, b.ParamTypes())
	require.Empty(t, b.ResultTypes())
}

func TestGenerate_UnmappedType(t *testing.T) {
	g := newGenerator(t)

	_, err := g.Generate(Func("f", P[uint32]("ok"), P[unmapped]("bad")))
	require.ErrorIs(t, err, errors.ErrUnmappedType)
	var be *errors.Error
	require.True(t, stderrors.As(err, &be))
	require.Equal(t, []string{"f", "bad"}, be.Path)
	require.Equal(t, "bridge.unmapped", be.GoType)

	_, err = g.Generate(Func("g").Returns(Result[int]()))
	require.ErrorIs(t, err, errors.ErrUnmappedType)

	_, err = g.Generate(Func("h").Returns(Result[ownership.Ref]()))
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindInvalidInput})

	_, err = g.Generate(Signature{})
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindInvalidInput})
}

func TestGenerateAll_IsolatesFailures(t *testing.T) {
	g := newGenerator(t)

	bridges, err := g.GenerateAll(
		addSig,
		Func("broken", P[unmapped]("u")),
		subSig,
		Func("add"),
	)
	require.Error(t, err)
	require.ErrorIs(t, err, errors.ErrUnmappedType)
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindDuplicate})
	require.Len(t, bridges, 2)
	require.Contains(t, bridges, "add")
	require.Contains(t, bridges, "sub")
}

func TestForward_Add(t *testing.T) {
	g := newGenerator(t)
	fwd, err := generate(t, g, addSig).Bind(targetFunc(func(_ context.Context, p ...uint64) ([]uint64, error) {
		return []uint64{api.EncodeU32(api.DecodeU32(p[0]) + api.DecodeU32(p[1]))}, nil
	}))
	require.NoError(t, err)

	got, err := fwd.Call(context.Background(), uint32(100), uint32(42))
	require.NoError(t, err)
	require.Equal(t, uint32(142), got)
}

func TestForward_PreservesArgumentOrder(t *testing.T) {
	g := newGenerator(t)
	var seen []uint64
	fwd, err := generate(t, g, subSig).Bind(targetFunc(func(_ context.Context, p ...uint64) ([]uint64, error) {
		seen = append([]uint64(nil), p...)
		return []uint64{api.EncodeU32(api.DecodeU32(p[0]) - api.DecodeU32(p[1]))}, nil
	}))
	require.NoError(t, err)

	got, err := fwd.Call(context.Background(), uint32(10), uint32(3))
	require.NoError(t, err)
	require.Equal(t, uint32(7), got)
	require.Equal(t, []uint64{10, 3}, seen)
}

func TestForward_NoCaching(t *testing.T) {
	g := newGenerator(t)
	var calls atomic.Int32
	fwd, err := generate(t, g, addSig).Bind(targetFunc(func(_ context.Context, p ...uint64) ([]uint64, error) {
		calls.Add(1)
		return []uint64{p[0] + p[1]}, nil
	}))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := fwd.Call(context.Background(), uint32(1), uint32(i))
		require.NoError(t, err)
		require.Equal(t, uint32(1+i), got)
	}
	require.Equal(t, int32(3), calls.Load())
}

func TestForward_ArgumentErrors(t *testing.T) {
	g := newGenerator(t)
	fwd, err := generate(t, g, addSig).Bind(targetFunc(func(context.Context, ...uint64) ([]uint64, error) {
		t.Fatal("target must not be called")
		return nil, nil
	}))
	require.NoError(t, err)

	_, err = fwd.Call(context.Background(), uint32(1))
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindArityMismatch})

	_, err = fwd.Call(context.Background(), uint32(1), 2)
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindTypeMismatch})
	var be *errors.Error
	require.True(t, stderrors.As(err, &be))
	require.Equal(t, []string{"add", "b"}, be.Path)
}

func TestForward_ResultOverflow(t *testing.T) {
	g := newGenerator(t)
	fwd, err := generate(t, g, addSig).Bind(targetFunc(func(context.Context, ...uint64) ([]uint64, error) {
		return []uint64{1 << 40}, nil
	}))
	require.NoError(t, err)

	_, err = fwd.Call(context.Background(), uint32(1), uint32(2))
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindOverflow})
}

func TestForward_PODUnchanged(t *testing.T) {
	g := newGenerator(t)
	sig := Func("echo", P[podValue]("v")).Returns(Result[podValue]())
	var seen []uint64
	fwd, err := generate(t, g, sig).Bind(targetFunc(func(_ context.Context, p ...uint64) ([]uint64, error) {
		seen = p
		return p, nil
	}))
	require.NoError(t, err)

	got, err := fwd.Call(context.Background(), podValue{Value: 123})
	require.NoError(t, err)
	require.Equal(t, podValue{Value: 123}, got)
	require.Equal(t, []uint64{123}, seen)
}

func TestForward_Fallible(t *testing.T) {
	g := newGenerator(t)
	sig := Func("checked_add", P[uint32]("a"), P[uint32]("b")).Returns(Result[uint32]())
	sig.Fallible = true
	fwd, err := generate(t, g, sig).Bind(targetFunc(func(_ context.Context, p ...uint64) ([]uint64, error) {
		sum := p[0] + p[1]
		if sum > 0xFFFFFFFF {
			return []uint64{1, 0}, nil
		}
		return []uint64{0, sum}, nil
	}))
	require.NoError(t, err)

	got, err := fwd.Call(context.Background(), uint32(100), uint32(42))
	require.NoError(t, err)
	require.Equal(t, uint32(142), got)

	_, err = fwd.Call(context.Background(), uint32(0xFFFFFFFF), uint32(1))
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindNativeStatus})
	var be *errors.Error
	require.True(t, stderrors.As(err, &be))
	require.Equal(t, uint32(1), be.Value)
}

func TestForward_NativeErrors(t *testing.T) {
	g := newGenerator(t)
	tests := []struct {
		name string
		err  error
		kind errors.Kind
	}{
		{"unwind exit", sys.NewExitError(ExitCodeUnwind), errors.KindCrossBoundaryUnwind},
		{"other exit", sys.NewExitError(3), errors.KindNativeTrap},
		{"trap", fmt.Errorf("wasm error: unreachable"), errors.KindNativeTrap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fwd, err := generate(t, g, addSig).Bind(targetFunc(func(context.Context, ...uint64) ([]uint64, error) {
				return nil, tt.err
			}))
			require.NoError(t, err)
			_, err = fwd.Call(context.Background(), uint32(1), uint32(2))
			require.ErrorIs(t, err, &errors.Error{Kind: tt.kind})
			require.ErrorIs(t, err, tt.err)
		})
	}

	var be *errors.Error
	fwd, _ := generate(t, g, addSig).Bind(targetFunc(func(context.Context, ...uint64) ([]uint64, error) {
		return nil, sys.NewExitError(ExitCodeUnwind)
	}))
	_, err := fwd.Call(context.Background(), uint32(1), uint32(2))
	require.True(t, stderrors.As(err, &be))
	require.True(t, be.Fatal())
}

func TestForward_ResultArity(t *testing.T) {
	g := newGenerator(t)
	fwd, err := generate(t, g, addSig).Bind(targetFunc(func(context.Context, ...uint64) ([]uint64, error) {
		return nil, nil
	}))
	require.NoError(t, err)
	_, err = fwd.Call(context.Background(), uint32(1), uint32(2))
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindArityMismatch})
}

func TestBind_Errors(t *testing.T) {
	g := newGenerator(t)
	_, err := generate(t, g, addSig).Bind(nil)
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindNotFound})

	b := generate(t, g, Func("take", P[ownership.Transfer]("r")))
	require.True(t, b.UsesHandles())
	_, err = b.Bind(targetFunc(func(context.Context, ...uint64) ([]uint64, error) { return nil, nil }))
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindInvalidInput})
}

func TestExport_Add(t *testing.T) {
	g := newGenerator(t)
	h, err := generate(t, g, addSig).Export(func(a, b uint32) uint32 { return a + b })
	require.NoError(t, err)
	require.Equal(t, "add", h.Name)
	require.Equal(t, "add[i32 i32] -> [i32]", h.String())

	require.Equal(t, []uint64{142}, callHost(t, h, 100, 42))
}

func TestExport_OrderAndContext(t *testing.T) {
	g := newGenerator(t)
	var sawCtx bool
	h, err := generate(t, g, subSig).Export(func(ctx context.Context, a, b uint32) uint32 {
		sawCtx = ctx != nil
		return a - b
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, callHost(t, h, 10, 3))
	require.True(t, sawCtx)
}

func TestExport_PODUnchanged(t *testing.T) {
	g := newGenerator(t)
	var seen podValue
	h, err := generate(t, g, Func("store", P[podValue]("v")).Returns(Result[podValue]())).
		Export(func(v podValue) podValue {
			seen = v
			return v
		})
	require.NoError(t, err)
	require.Equal(t, []uint64{123}, callHost(t, h, 123))
	require.Equal(t, podValue{Value: 123}, seen)
}

func TestExport_RejectsMismatchedFunc(t *testing.T) {
	g := newGenerator(t)
	b := generate(t, g, addSig)

	tests := []struct {
		name string
		fn   any
		kind errors.Kind
	}{
		{"not a func", 42, errors.KindTypeMismatch},
		{"too few params", func(a uint32) uint32 { return a }, errors.KindArityMismatch},
		{"wrong param type", func(a uint32, b int32) uint32 { return a }, errors.KindTypeMismatch},
		{"wrong result type", func(a, b uint32) uint64 { return 0 }, errors.KindTypeMismatch},
		{"missing result", func(a, b uint32) {}, errors.KindArityMismatch},
		{"error on infallible", func(a, b uint32) (uint32, error) { return 0, nil }, errors.KindTypeMismatch},
		{"variadic", func(a uint32, b ...uint32) uint32 { return a }, errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Export(tt.fn)
			require.ErrorIs(t, err, &errors.Error{Kind: tt.kind})
		})
	}
}

func TestExport_FallibleStatus(t *testing.T) {
	g := newGenerator(t)
	sig := Func("checked_add", P[uint32]("a"), P[uint32]("b")).Returns(Result[uint32]())
	sig.Fallible = true

	h, err := generate(t, g, sig).Export(func(a, b uint32) (uint32, error) {
		if a > 0xFFFFFFFF-b {
			return 0, fmt.Errorf("overflow")
		}
		if a == 13 {
			panic("unlucky")
		}
		return a + b, nil
	})
	require.NoError(t, err)

	require.Equal(t, []uint64{0, 142}, callHost(t, h, 100, 42))
	require.Equal(t, []uint64{uint64(callback.StatusError), 0}, callHost(t, h, 0xFFFFFFFF, 1))
	require.Equal(t, []uint64{uint64(callback.StatusPanicked), 0}, callHost(t, h, 13, 1))
}

func TestExport_PanicAborts(t *testing.T) {
	g := newGenerator(t)
	var aborted error
	h, err := generate(t, g, addSig).Export(func(a, b uint32) uint32 {
		panic("add overflowed")
	}, WithAbort(func(err error) { aborted = err }))
	require.NoError(t, err)

	defer func() {
		r := recover()
		exit, ok := r.(*sys.ExitError)
		require.True(t, ok, "want *sys.ExitError, got %v", r)
		require.Equal(t, uint32(ExitCodeUnwind), exit.ExitCode())

		require.ErrorIs(t, aborted, errors.ErrCrossBoundaryUnwind)
		var be *errors.Error
		require.True(t, stderrors.As(aborted, &be))
		require.Equal(t, "add overflowed", be.Value)
		require.Equal(t, []string{"add"}, be.Path)
	}()
	callHost(t, h, 1, 2)
	t.Fatal("host function returned after an unwind")
}

func TestExport_UndecodableArgumentAborts(t *testing.T) {
	g := newGenerator(t)
	var aborted error
	h, err := generate(t, g, Func("flag", P[bool]("on"))).Export(func(bool) {},
		WithAbort(func(err error) { aborted = err }))
	require.NoError(t, err)

	require.Panics(t, func() { callHost(t, h, 2) })
	require.ErrorIs(t, aborted, &errors.Error{Kind: errors.KindInvalidData})
}

func TestContain(t *testing.T) {
	require.NoError(t, Contain("ok", func() error { return nil }))

	want := fmt.Errorf("plain")
	require.Equal(t, want, Contain("err", func() error { return want }))

	err := Contain("boom", func() error { panic("boom") })
	require.ErrorIs(t, err, errors.ErrCrossBoundaryUnwind)
}

func TestCallback_Adapter(t *testing.T) {
	g := newGenerator(t)
	fn, err := generate(t, g, addSig).Callback(func(a, b uint32) uint32 { return a + b })
	require.NoError(t, err)

	table := callback.NewTable()
	h, err := table.Wrap(fn)
	require.NoError(t, err)

	got, err := table.Invoke(context.Background(), h, []uint64{100, 42})
	require.NoError(t, err)
	require.Equal(t, []uint64{142}, got)

	_, err = table.Invoke(context.Background(), h, []uint64{1})
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindArityMismatch})
	require.Equal(t, callback.StatusBadArgs, callback.StatusOf(err))
}

func TestCallback_Counter(t *testing.T) {
	g := newGenerator(t)
	var counter int
	fn, err := generate(t, g, Func("tick")).Callback(func() { counter++ })
	require.NoError(t, err)

	table := callback.NewTable()
	h, err := table.Wrap(fn)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := table.Invoke(context.Background(), h, nil)
		require.NoError(t, err)
	}
	require.Equal(t, 3, counter)

	require.NoError(t, table.Release(context.Background(), h))
	_, err = table.Invoke(context.Background(), h, nil)
	require.ErrorIs(t, err, errors.ErrStaleHandle)
}

func TestForward_HandOffTransfer(t *testing.T) {
	g := newGenerator(t)
	table := ownership.NewTable()
	var released atomic.Int32
	var stored ownership.Handle

	b := generate(t, g, Func("take_ownership", P[ownership.Transfer]("r")))
	fwd, err := b.Bind(targetFunc(func(_ context.Context, p ...uint64) ([]uint64, error) {
		stored = ownership.Handle(api.DecodeU32(p[0]))
		return nil, nil
	}), WithHandles(table))
	require.NoError(t, err)

	o := ownership.New("payload", func(string) { released.Add(1) })
	tr, err := ownership.HandOff(o)
	require.NoError(t, err)

	_, err = fwd.Call(context.Background(), tr)
	require.NoError(t, err)
	require.NotZero(t, stored)
	require.False(t, tr.Valid())
	require.ErrorIs(t, o.Release(), errors.ErrHandedOff)

	// the native side releases it, exactly once
	require.NoError(t, table.Release(stored))
	require.ErrorIs(t, table.Release(stored), errors.ErrStaleHandle)
	require.Equal(t, int32(1), released.Load())
}

func TestForward_TransferNotConsumedOnFailure(t *testing.T) {
	g := newGenerator(t)
	table := ownership.NewTable()
	b := generate(t, g, Func("take_two", P[ownership.Transfer]("a"), P[ownership.Transfer]("b")))
	fwd, err := b.Bind(targetFunc(func(context.Context, ...uint64) ([]uint64, error) {
		t.Fatal("target must not be called")
		return nil, nil
	}), WithHandles(table))
	require.NoError(t, err)

	tr, err := ownership.HandOff(ownership.New(1, nil))
	require.NoError(t, err)

	// the same transfer twice: the second adoption fails and the first is undone
	_, err = fwd.Call(context.Background(), tr, tr)
	require.ErrorIs(t, err, errors.ErrHandedOff)
	require.True(t, tr.Valid())
	require.Equal(t, 0, table.Len())
}

func TestForward_LendsRefForCallOnly(t *testing.T) {
	g := newGenerator(t)
	table := ownership.NewTable()

	b := generate(t, g, Func("read_value", P[ownership.Ref]("r")).Returns(Result[uint32]()))
	fwd, err := b.Bind(targetFunc(func(_ context.Context, p ...uint64) ([]uint64, error) {
		ref, err := table.Get(ownership.Handle(api.DecodeU32(p[0])))
		if err != nil {
			return nil, err
		}
		defer ref.Return()
		v, err := ref.Value()
		if err != nil {
			return nil, err
		}
		return []uint64{api.EncodeU32(v.(podValue).Value)}, nil
	}), WithHandles(table))
	require.NoError(t, err)

	o := ownership.New(podValue{Value: 123}, nil)
	ref, err := ownership.Lend(o)
	require.NoError(t, err)

	got, err := fwd.Call(context.Background(), ref)
	require.NoError(t, err)
	require.Equal(t, uint32(123), got)
	require.Equal(t, 0, table.Len(), "borrow handle outlived the call")

	ref.Return()
	require.NoError(t, o.Release())
}

func TestForward_TransferResult(t *testing.T) {
	g := newGenerator(t)
	table := ownership.NewTable()
	var released atomic.Int32

	b := generate(t, g, Func("make").Returns(Result[ownership.Transfer]()))
	fwd, err := b.Bind(targetFunc(func(context.Context, ...uint64) ([]uint64, error) {
		tr, err := ownership.HandOff(ownership.New(podValue{Value: 7}, func(podValue) { released.Add(1) }))
		if err != nil {
			return nil, err
		}
		h, err := table.Adopt(tr)
		if err != nil {
			return nil, err
		}
		return []uint64{api.EncodeU32(uint32(h))}, nil
	}), WithHandles(table))
	require.NoError(t, err)

	got, err := fwd.Call(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, table.Len())

	o, err := ownership.Receive[podValue](got.(ownership.Transfer))
	require.NoError(t, err)
	v, err := o.Value()
	require.NoError(t, err)
	require.Equal(t, uint32(7), v.Value)
	require.NoError(t, o.Release())
	require.Equal(t, int32(1), released.Load())
}

func TestExport_Handles(t *testing.T) {
	g := newGenerator(t)
	table := ownership.NewTable()
	var released atomic.Int32

	var kept *ownership.Owned[string]
	keep, err := generate(t, g, Func("keep", P[ownership.Transfer]("r"))).
		Export(func(tr ownership.Transfer) {
			o, err := ownership.Receive[string](tr)
			if err != nil {
				panic(err)
			}
			kept = o
		}, WithHandles(table))
	require.NoError(t, err)

	var seen string
	peek, err := generate(t, g, Func("peek", P[ownership.Ref]("r"))).
		Export(func(r ownership.Ref) {
			v, err := r.Value()
			if err != nil {
				panic(err)
			}
			seen = v.(string)
		}, WithHandles(table))
	require.NoError(t, err)

	tr, err := ownership.HandOff(ownership.New("hello", func(string) { released.Add(1) }))
	require.NoError(t, err)
	h, err := table.Adopt(tr)
	require.NoError(t, err)

	callHost(t, peek, uint64(h))
	require.Equal(t, "hello", seen)
	require.Equal(t, 1, table.Len())

	callHost(t, keep, uint64(h))
	require.NotNil(t, kept)
	require.Equal(t, 0, table.Len())
	require.NoError(t, kept.Release())
	require.Equal(t, int32(1), released.Load())
}

func TestExport_StaleHandleAborts(t *testing.T) {
	g := newGenerator(t)
	table := ownership.NewTable()
	var aborted error
	h, err := generate(t, g, Func("peek", P[ownership.Ref]("r"))).
		Export(func(ownership.Ref) {}, WithHandles(table), WithAbort(func(err error) { aborted = err }))
	require.NoError(t, err)

	require.Panics(t, func() { callHost(t, h, 99) })
	require.ErrorIs(t, aborted, errors.ErrStaleHandle)
}

func TestExport_BadOwnedHandleKeepsOthers(t *testing.T) {
	g := newGenerator(t)
	table := ownership.NewTable()
	var aborted error
	var called bool
	h, err := generate(t, g, Func("take_two", P[ownership.Transfer]("a"), P[ownership.Transfer]("b"))).
		Export(func(a, b ownership.Transfer) { called = true },
			WithHandles(table), WithAbort(func(err error) { aborted = err }))
	require.NoError(t, err)

	tr, err := ownership.HandOff(ownership.New("first", func(string) {}))
	require.NoError(t, err)
	first, err := table.Adopt(tr)
	require.NoError(t, err)

	require.Panics(t, func() { callHost(t, h, uint64(first), 99) })
	require.ErrorIs(t, aborted, errors.ErrStaleHandle)
	require.False(t, called)

	// the good handle is still live under the number the caller holds
	require.Equal(t, 1, table.Len())
	require.NoError(t, table.Movable(first))
	ref, err := table.Get(first)
	require.NoError(t, err)
	v, err := ref.Value()
	require.NoError(t, err)
	require.Equal(t, "first", v)
	ref.Return()

	aborted = nil
	require.Panics(t, func() { callHost(t, h, uint64(first), uint64(first)) })
	require.ErrorIs(t, aborted, &errors.Error{Kind: errors.KindInvalidInput})
	require.False(t, called)
	require.NoError(t, table.Movable(first))
}

type fileHandle struct {
	fd int
}

func TestGenerate_RejectsForeignHandleType(t *testing.T) {
	types := typemap.NewRegistry()
	_, err := types.RegisterHandle(reflect.TypeFor[fileHandle](), typemap.Own("file"))
	require.NoError(t, err)
	g, err := NewGenerator(types)
	require.NoError(t, err)

	_, err = g.Generate(Func("open", P[fileHandle]("f")))
	require.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseGenerate, Kind: errors.KindTypeMismatch})
	var be *errors.Error
	require.True(t, stderrors.As(err, &be))
	require.Equal(t, []string{"open", "f"}, be.Path)

	_, err = g.Generate(Func("make").Returns(Result[fileHandle]()))
	require.ErrorIs(t, err, &errors.Error{Kind: errors.KindTypeMismatch})
}
