package fixture

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"reflect"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/callback"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/entry"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/ownership"
	"github.com/wippyai/wasm-bridge/typemap"
)

// Options configures Setup.
type Options struct {
	// Entries receives the Go entry points and is sealed by Setup. nil means
	// a private registry.
	Entries *entry.Registry

	// OnUnwind runs after an unwind is counted. The scenarios need it to
	// return, so nil means only counting.
	OnUnwind bridge.AbortFunc

	Logger *zap.Logger
}

// Env is an engine with the native scenario module loaded.
type Env struct {
	Engine  *engine.Engine
	Module  *engine.Module
	Host    *Host
	Types   *typemap.Registry
	unwinds atomic.Int32
}

// Setup registers the Go entry points, creates the engine and loads Native.
func Setup(ctx context.Context, opts Options) (*Env, error) {
	reg := opts.Entries
	if reg == nil {
		reg = entry.NewRegistry()
	}
	env := &Env{Host: &Host{}, Types: Types()}
	if err := env.Host.Register(reg); err != nil {
		return nil, err
	}
	reg.Seal()

	eng, err := engine.New(ctx, &engine.Config{
		Entries: reg,
		Types:   env.Types,
		Logger:  opts.Logger,
		OnUnwind: func(err error) {
			env.unwinds.Add(1)
			if opts.OnUnwind != nil {
				opts.OnUnwind(err)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	mod, err := eng.Load(ctx, Native())
	if err != nil {
		_ = eng.Close(ctx)
		return nil, err
	}
	env.Engine = eng
	env.Module = mod
	return env, nil
}

// Unwinds returns how many unwinds reached the abort hook.
func (e *Env) Unwinds() int32 { return e.unwinds.Load() }

// Close closes the engine and every instance.
func (e *Env) Close(ctx context.Context) error {
	return e.Engine.Close(ctx)
}

// Step is one checked call of a scenario.
type Step struct {
	Result any
	Call   string
}

func (s Step) String() string {
	return fmt.Sprintf("%s = %v", s.Call, s.Result)
}

// Scenario is a named interop check run against a fresh instance.
type Scenario struct {
	Run         func(ctx context.Context, env *Env, inst *engine.Instance) ([]Step, error)
	Name        string
	Description string
}

// Scenarios returns every scenario in run order.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: "self_contained", Description: "AddViaCc and MultiplyViaCc called from Go", Run: selfContained},
		{Name: "mixed_source_set", Description: "native calls native and back into Go", Run: mixedSourceSet},
		{Name: "mixed_component", Description: "bilingual_math calls the Go rust_math", Run: mixedComponent},
		{Name: "fallible", Description: "Go errors reported through a status slot", Run: fallible},
		{Name: "pod", Description: "{value: u32} by value and through memory", Run: pod},
		{Name: "callbacks", Description: "Go callbacks from native and native callbacks from Go", Run: callbacks},
		{Name: "ownership", Description: "borrow, hand-off and native release", Run: handOff},
		{Name: "unwind", Description: "a Go panic under bilingual_math is contained", Run: unwind},
	}
}

// Lookup returns the scenario with the given name.
func Lookup(name string) (Scenario, error) {
	for _, s := range Scenarios() {
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, errors.NotFound(errors.PhaseInvoke, "scenario", name)
}

// Run runs s on a fresh instance.
func (e *Env) Run(ctx context.Context, s Scenario) ([]Step, error) {
	inst, err := e.Module.Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	defer inst.Close(ctx)
	out, err := s.Run(ctx, e, inst)
	if err != nil {
		return out, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return out, nil
}

// call forwards sig with args and checks the result.
func call(ctx context.Context, inst *engine.Instance, sig bridge.Signature, want any, args ...any) (Step, error) {
	step := Step{Call: callString(sig.Name, args)}
	got, err := inst.Call(ctx, sig, args...)
	if err != nil {
		return step, err
	}
	step.Result = got
	return step, expect(step.Call, got, want)
}

// callErr forwards sig and expects it to fail with kind.
func callErr(ctx context.Context, inst *engine.Instance, sig bridge.Signature, kind errors.Kind, args ...any) (Step, error) {
	step := Step{Call: callString(sig.Name, args)}
	_, err := inst.Call(ctx, sig, args...)
	if !stderrors.Is(err, &errors.Error{Kind: kind}) {
		return step, fmt.Errorf("%s: want %s error, got %v", step.Call, kind, err)
	}
	step.Result = err
	return step, nil
}

func expect(what string, got, want any) error {
	if !reflect.DeepEqual(got, want) {
		return fmt.Errorf("%s: got %v, want %v", what, got, want)
	}
	return nil
}

func callString(name string, args []any) string {
	s := name + "("
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprint(a)
	}
	return s + ")"
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}

// steps runs checks in order and stops at the first failure.
func steps(checks ...func() (Step, error)) ([]Step, error) {
	out := make([]Step, 0, len(checks))
	for _, c := range checks {
		s, err := c()
		out = append(out, s)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func selfContained(ctx context.Context, _ *Env, inst *engine.Instance) ([]Step, error) {
	return steps(
		func() (Step, error) { return call(ctx, inst, AddViaCc, uint32(142), uint32(100), uint32(42)) },
		func() (Step, error) { return call(ctx, inst, MultiplyViaCc, uint32(4200), uint32(100), uint32(42)) },
	)
}

func mixedSourceSet(ctx context.Context, env *Env, inst *engine.Instance) ([]Step, error) {
	return steps(
		func() (Step, error) { return call(ctx, inst, CppAddition, uint32(8), uint32(4), uint32(4)) },
		func() (Step, error) { return call(ctx, inst, AddTwoIntsViaRust, uint32(8), uint32(4), uint32(4)) },
		func() (Step, error) {
			before := env.Host.Hellos()
			s, err := call(ctx, inst, RustCode, nil)
			if err != nil {
				return s, err
			}
			s.Result = fmt.Sprintf("cpp_callback called %d time(s)", env.Host.Hellos()-before)
			return s, expect("cpp_callback calls", env.Host.Hellos()-before, int32(1))
		},
	)
}

func mixedComponent(ctx context.Context, _ *Env, inst *engine.Instance) ([]Step, error) {
	return steps(
		func() (Step, error) { return call(ctx, inst, BilingualMath, uint32(142), uint32(100), uint32(42)) },
	)
}

func fallible(ctx context.Context, _ *Env, inst *engine.Instance) ([]Step, error) {
	return steps(
		func() (Step, error) { return call(ctx, inst, CheckedMath, uint32(42), uint32(40), uint32(2)) },
		func() (Step, error) {
			s, err := callErr(ctx, inst, CheckedMath, errors.KindNativeStatus, uint32(math.MaxUint32), uint32(1))
			if err != nil {
				return s, err
			}
			var be *errors.Error
			stderrors.As(s.Result.(error), &be)
			return s, expect("status", be.Value, uint32(callback.StatusError))
		},
	)
}

func pod(ctx context.Context, env *Env, inst *engine.Instance) ([]Step, error) {
	v := Value{Value: 123}
	return steps(
		func() (Step, error) { return call(ctx, inst, EchoValue, v, v) },
		func() (Step, error) { return call(ctx, inst, ValueViaGo, v, v) },
		func() (Step, error) {
			m, err := env.Types.Lookup(reflect.TypeFor[Value]())
			if err != nil {
				return Step{Call: "store"}, err
			}
			if err := m.Store(inst.Memory(), ValueAddr, v); err != nil {
				return Step{Call: "store"}, err
			}
			return call(ctx, inst, ReadValue, uint32(123), ValueAddr)
		},
		func() (Step, error) {
			m, err := env.Types.Lookup(reflect.TypeFor[Value]())
			if err != nil {
				return Step{Call: "load"}, err
			}
			got, err := m.Load(inst.Memory(), ValueAddr)
			s := Step{Call: fmt.Sprintf("load(%d)", ValueAddr), Result: got}
			if err != nil {
				return s, err
			}
			return s, expect(s.Call, got, v)
		},
	)
}

func callbacks(ctx context.Context, env *Env, inst *engine.Instance) ([]Step, error) {
	counterSig := bridge.Func("counter", bridge.P[uint64]("delta")).Returns(bridge.Result[uint64]())
	b, err := env.Engine.Generator().Generate(counterSig)
	if err != nil {
		return nil, err
	}
	var count uint64
	fn, err := b.Callback(func(delta uint64) uint64 {
		count += delta
		return count
	})
	if err != nil {
		return nil, err
	}
	h, err := inst.Callbacks().Wrap(fn)
	if err != nil {
		return nil, err
	}
	defer inst.Callbacks().TryRelease(h)

	invokeNative := func(index uint32, args []uint64, want uint64) (Step, error) {
		s := Step{Call: fmt.Sprintf("bridge_dispatch(%d, %v)", index, args)}
		f, err := inst.NativeCallback(index, 1)
		if err != nil {
			return s, err
		}
		got, err := f(ctx, args)
		if err != nil {
			return s, err
		}
		s.Result = got[0]
		return s, expect(s.Call, got[0], want)
	}

	return steps(
		func() (Step, error) { return call(ctx, inst, CallBack, uint64(1), uint32(h), uint64(1)) },
		func() (Step, error) { return call(ctx, inst, CallBack, uint64(2), uint32(h), uint64(1)) },
		func() (Step, error) { return call(ctx, inst, CallBack, uint64(3), uint32(h), uint64(1)) },
		func() (Step, error) {
			return call(ctx, inst, ReleaseCallback, uint32(callback.StatusOK), uint32(h))
		},
		func() (Step, error) { return callErr(ctx, inst, CallBack, errors.KindNativeStatus, uint32(h), uint64(1)) },
		func() (Step, error) { return invokeNative(NativeDouble, []uint64{21}, 42) },
		func() (Step, error) { return invokeNative(NativeSum, []uint64{100, 42}, 142) },
	)
}

func handOff(ctx context.Context, _ *Env, inst *engine.Instance) ([]Step, error) {
	var released atomic.Int32
	o := ownership.New("greeting", func(string) { released.Add(1) })

	return steps(
		func() (Step, error) {
			ref, err := ownership.Lend(o)
			if err != nil {
				return Step{Call: "lend"}, err
			}
			defer ref.Return()
			return call(ctx, inst, PeekResource, uint32(len("greeting")), ref)
		},
		func() (Step, error) {
			tr, err := ownership.HandOff(o)
			if err != nil {
				return Step{Call: "handoff"}, err
			}
			return call(ctx, inst, StoreResource, nil, tr)
		},
		func() (Step, error) {
			s := Step{Call: "Release() on the handed-off value"}
			err := o.Release()
			s.Result = err
			if !stderrors.Is(err, errors.ErrHandedOff) {
				return s, fmt.Errorf("%s: want handed_off, got %v", s.Call, err)
			}
			return s, nil
		},
		func() (Step, error) {
			s, err := call(ctx, inst, ReleaseStored, uint32(callback.StatusOK))
			if err != nil {
				return s, err
			}
			return s, expect("release count", released.Load(), int32(1))
		},
		func() (Step, error) {
			s, err := call(ctx, inst, ReleaseStored, uint32(callback.StatusStale))
			if err != nil {
				return s, err
			}
			return s, expect("release count", released.Load(), int32(1))
		},
	)
}

func unwind(ctx context.Context, env *Env, inst *engine.Instance) ([]Step, error) {
	before := env.Unwinds()
	return steps(
		func() (Step, error) {
			return callErr(ctx, inst, BilingualMath, errors.KindCrossBoundaryUnwind, uint32(math.MaxUint32), uint32(1))
		},
		func() (Step, error) {
			s := Step{Call: "abort hook", Result: env.Unwinds() - before}
			return s, expect(s.Call, env.Unwinds()-before, int32(1))
		},
		func() (Step, error) {
			s := Step{Call: "instance closed", Result: inst.Closed()}
			return s, expect(s.Call, inst.Closed(), true)
		},
	)
}
