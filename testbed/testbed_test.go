package testbed

import (
	"context"
	"sync"
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/entry"
	"github.com/wippyai/wasm-bridge/internal/fixture"
	"github.com/wippyai/wasm-bridge/internal/wasmgen"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

var (
	hostAdd          = bridge.Func("host_add", bridge.P[uint32]("a"), bridge.P[uint32]("b")).Returns(bridge.Result[uint32]())
	compute          = bridge.Func("compute", bridge.P[uint32]("a"), bridge.P[uint32]("b")).Returns(bridge.Result[uint32]())
	computeUsingHost = bridge.Func("compute_using_host", bridge.P[uint32]("a"), bridge.P[uint32]("b")).Returns(bridge.Result[uint32]())
)

// MinimalHost implements the Go side of the minimal module
type MinimalHost struct {
	adds []struct{ a, b, result uint32 }
	mu   sync.Mutex
}

func (h *MinimalHost) Add(ctx context.Context, a, b uint32) uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := a + b
	h.adds = append(h.adds, struct{ a, b, result uint32 }{a, b, result})
	return result
}

// minimalModule exports compute(a, b) = a*b and compute_using_host(a, b) =
// host_add(a, b).
func minimalModule() []byte {
	i32 := api.ValueTypeI32
	pair := []api.ValueType{i32, i32}
	one := []api.ValueType{i32}

	m := wasmgen.New()
	add := m.Import(engine.EnvModule, hostAdd.Name, pair, one)
	m.Memory(engine.MemoryName, 1)
	m.Func(compute.Name, pair, one).LocalGet(0).LocalGet(1).I32Mul()
	m.Func(computeUsingHost.Name, pair, one).LocalGet(0).LocalGet(1).Call(add)
	return m.Bytes()
}

func newEngine(t *testing.T, fn any) (*engine.Engine, *engine.Module) {
	t.Helper()
	ctx := context.Background()

	reg := entry.NewRegistry()
	if err := reg.Register(hostAdd, fn); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Seal()

	eng, err := engine.New(ctx, &engine.Config{Entries: reg})
	if err != nil {
		t.Fatalf("create engine: %v", err)
	}
	t.Cleanup(func() { eng.Close(ctx) })

	mod, err := eng.Load(ctx, minimalModule())
	if err != nil {
		t.Fatalf("load module: %v", err)
	}
	return eng, mod
}

func TestMinimal_Compute(t *testing.T) {
	ctx := context.Background()
	host := &MinimalHost{}
	_, mod := newEngine(t, host.Add)

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer inst.Close(ctx)

	result, err := inst.Call(ctx, compute, uint32(5), uint32(3))
	if err != nil {
		t.Fatalf("call compute: %v", err)
	}
	if result != uint32(15) {
		t.Errorf("compute(5, 3) = %v, want 15", result)
	}
}

func TestMinimal_ComputeUsingHost(t *testing.T) {
	ctx := context.Background()
	host := &MinimalHost{}
	_, mod := newEngine(t, host.Add)

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer inst.Close(ctx)

	result, err := inst.Call(ctx, computeUsingHost, uint32(7), uint32(8))
	if err != nil {
		t.Fatalf("call compute_using_host: %v", err)
	}
	if result != uint32(15) {
		t.Errorf("compute_using_host(7, 8) = %v, want 15", result)
	}

	host.mu.Lock()
	defer host.mu.Unlock()
	if len(host.adds) == 0 {
		t.Error("host_add was not called")
	} else if host.adds[0].a != 7 || host.adds[0].b != 8 {
		t.Errorf("host_add called with (%d, %d), want (7, 8)", host.adds[0].a, host.adds[0].b)
	}
}

func TestMinimal_MultipleValues(t *testing.T) {
	ctx := context.Background()
	host := &MinimalHost{}
	_, mod := newEngine(t, host.Add)

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer inst.Close(ctx)

	fwd, err := inst.Forward(compute)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	tests := []struct {
		a, b     uint32
		expected uint32
	}{
		{0, 0, 0},
		{1, 1, 1},
		{10, 20, 200},
		{100, 100, 10000},
		{0xFFFF, 1, 0xFFFF},
		{0x10000, 0x10000, 0},
	}

	for _, tc := range tests {
		result, err := fwd.Call(ctx, tc.a, tc.b)
		if err != nil {
			t.Errorf("compute(%d, %d): %v", tc.a, tc.b, err)
			continue
		}
		if result != tc.expected {
			t.Errorf("compute(%d, %d) = %v, want %d", tc.a, tc.b, result, tc.expected)
		}
	}
}

func TestMinimal_ConcurrentInstances(t *testing.T) {
	ctx := context.Background()
	host := &MinimalHost{}
	_, mod := newEngine(t, host.Add)

	const numGoroutines = 5
	const callsPerGoroutine = 20

	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines)

	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(goroutineID int) {
			defer wg.Done()

			inst, err := mod.Instantiate(ctx)
			if err != nil {
				errs <- err
				return
			}
			defer inst.Close(ctx)

			for i := 0; i < callsPerGoroutine; i++ {
				a := uint32(goroutineID)
				b := uint32(i)
				result, err := inst.Call(ctx, computeUsingHost, a, b)
				if err != nil {
					errs <- err
					return
				}
				if result != a+b {
					t.Errorf("compute_using_host(%d, %d) = %v", a, b, result)
					return
				}
			}
		}(g)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent error: %v", err)
	}

	host.mu.Lock()
	defer host.mu.Unlock()
	if len(host.adds) != numGoroutines*callsPerGoroutine {
		t.Errorf("host_add called %d times, want %d", len(host.adds), numGoroutines*callsPerGoroutine)
	}
}

func TestInvalidWasm(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t, func(a, b uint32) uint32 { return a + b })

	_, err := eng.Load(ctx, []byte{0x00, 0x61, 0x73, 0x6d})
	if err == nil {
		t.Error("expected error loading truncated wasm, got nil")
	}

	_, err = eng.Load(ctx, []byte{})
	if err == nil {
		t.Error("expected error loading empty wasm, got nil")
	}
}

func TestMinimal_ContextPropagation(t *testing.T) {
	ctx := context.WithValue(context.Background(), contextKey("trace"), "abc")

	var seen any
	_, mod := newEngine(t, func(ctx context.Context, a, b uint32) uint32 {
		seen = ctx.Value(contextKey("trace"))
		return a + b
	})

	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	defer inst.Close(ctx)

	if _, err := inst.Call(ctx, computeUsingHost, uint32(1), uint32(2)); err != nil {
		t.Fatalf("call: %v", err)
	}
	if seen != "abc" {
		t.Errorf("context value = %v, want abc", seen)
	}
}

func TestScenarios_Concurrent(t *testing.T) {
	ctx := context.Background()
	env, err := fixture.Setup(ctx, fixture.Options{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer env.Close(ctx)

	scenarios := fixture.Scenarios()
	var wg sync.WaitGroup
	errs := make(chan error, len(scenarios))
	for _, s := range scenarios {
		wg.Add(1)
		go func(s fixture.Scenario) {
			defer wg.Done()
			if _, err := env.Run(ctx, s); err != nil {
				errs <- err
			}
		}(s)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("scenario: %v", err)
	}
	if n := env.Unwinds(); n != 1 {
		t.Errorf("unwinds = %d, want 1", n)
	}
}
