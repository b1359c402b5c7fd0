package engine

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/callback"
	"github.com/wippyai/wasm-bridge/entry"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/ownership"
	"github.com/wippyai/wasm-bridge/typemap"
)

// Host module and export names native modules link against.
const (
	EnvModule    = "env"
	BridgeModule = "bridge"
	DropName     = "drop"
	DispatchName = "bridge_dispatch"
	ScratchName  = "bridge_scratch"
	MemoryName   = "memory"
)

// Config holds configuration for engine creation
type Config struct {
	// OnUnwind runs when a Go panic reaches a native boundary that has no
	// status slot. nil means bridge.DefaultAbort, which exits the process.
	OnUnwind bridge.AbortFunc

	// Entries are the Go entry points bound as the env host module. The
	// registry must be sealed. nil means entry.Default.
	Entries *entry.Registry

	// Types resolves signature types. nil means the builtin scalars.
	Types *typemap.Registry

	// Logger overrides the package logger for this engine.
	Logger *zap.Logger

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// Engine owns a wazero runtime with the env and bridge host modules
// instantiated. Its callback and handle tables are shared by every instance,
// since host modules are runtime-wide.
type Engine struct {
	runtime   wazero.Runtime
	generator *bridge.Generator
	callbacks *callback.Table
	handles   *ownership.Table
	log       *zap.Logger
	exports   map[string]*bridge.HostFunc
	instances map[*Instance]struct{}
	mu        sync.Mutex
}

// New creates an engine. It fails when the entry registry is not sealed or
// an entry point cannot be bridged; all entry failures are reported together.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	entries := cfg.Entries
	if entries == nil {
		entries = entry.Default
	}
	list, err := entries.Entries()
	if err != nil {
		return nil, err
	}

	gen, err := bridge.NewGenerator(cfg.Types)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = Logger()
	}

	e := &Engine{
		generator: gen,
		callbacks: callback.NewTable(),
		handles:   ownership.NewTable(),
		log:       log,
		exports:   make(map[string]*bridge.HostFunc, len(list)),
		instances: make(map[*Instance]struct{}),
	}

	opts := []bridge.Option{bridge.WithHandles(e.handles), bridge.WithAbort(cfg.OnUnwind)}
	var errs error
	for _, ent := range list {
		b, err := gen.Generate(ent.Signature)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		hf, err := b.Export(ent.Fn, opts...)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		e.exports[hf.Name] = hf
	}
	if errs != nil {
		return nil, errs
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	e.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if err := e.initHostModules(ctx); err != nil {
		_ = e.runtime.Close(ctx)
		return nil, err
	}
	e.log.Debug("engine ready", zap.Int("entries", len(e.exports)))
	return e, nil
}

func (e *Engine) initHostModules(ctx context.Context) error {
	env := e.runtime.NewHostModuleBuilder(EnvModule)
	for _, name := range e.ExportNames() {
		hf := e.exports[name]
		env = env.NewFunctionBuilder().
			WithGoModuleFunction(hf.Fn, hf.Params, hf.Results).
			Export(hf.Name)
	}
	if _, err := env.Instantiate(ctx); err != nil {
		return errors.Instantiation(err)
	}

	b := e.callbacks.Define(e.runtime.NewHostModuleBuilder(BridgeModule))
	b = b.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.drop), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		WithParameterNames("handle").
		Export(DropName)
	if _, err := b.Instantiate(ctx); err != nil {
		return errors.Instantiation(err)
	}
	return nil
}

// drop implements bridge.drop: native code releasing an owned handle it was
// given.
func (e *Engine) drop(_ context.Context, _ api.Module, stack []uint64) {
	h := ownership.Handle(api.DecodeU32(stack[0]))
	err := e.handles.Release(h)
	if err != nil {
		e.log.Debug("drop failed", zap.Uint32("handle", uint32(h)), zap.Error(err))
	}
	stack[0] = uint64(callback.StatusOf(err))
}

// ExportNames returns the env symbols bound by the engine, sorted.
func (e *Engine) ExportNames() []string {
	names := make([]string, 0, len(e.exports))
	for name := range e.exports {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// HostFunc returns the reverse trampoline bound for an env symbol.
func (e *Engine) HostFunc(name string) (*bridge.HostFunc, bool) {
	hf, ok := e.exports[name]
	return hf, ok
}

// Generator returns the bridge generator of the engine.
func (e *Engine) Generator() *bridge.Generator { return e.generator }

// Callbacks returns the callback table behind bridge.invoke.
func (e *Engine) Callbacks() *callback.Table { return e.callbacks }

// Handles returns the handle table owned and borrowed values cross through.
func (e *Engine) Handles() *ownership.Table { return e.handles }

// Load compiles a native module and checks its env imports against the
// bound entry points.
func (e *Engine) Load(ctx context.Context, wasmBytes []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile native module", err)
	}
	if err := e.checkImports(compiled); err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}
	return &Module{engine: e, compiled: compiled}, nil
}

func (e *Engine) checkImports(compiled wazero.CompiledModule) error {
	var errs error
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		if module != EnvModule {
			continue
		}
		hf, ok := e.exports[name]
		if !ok {
			errs = multierr.Append(errs, errors.NotFound(errors.PhaseLoad, "entry point", name))
			continue
		}
		if !slices.Equal(def.ParamTypes(), hf.Params) || !slices.Equal(def.ResultTypes(), hf.Results) {
			errs = multierr.Append(errs, errors.New(errors.PhaseLoad, errors.KindIncompatibleLayout).
				Path(name).
				NativeType(signatureString(def.ParamTypes(), def.ResultTypes())).
				Detail("entry point is bound as %s", hf).
				Build())
		}
	}
	return errs
}

// Close closes every live instance and the runtime.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	live := make([]*Instance, 0, len(e.instances))
	for inst := range e.instances {
		live = append(live, inst)
	}
	e.mu.Unlock()

	var err error
	for _, inst := range live {
		err = multierr.Append(err, inst.Close(ctx))
	}
	e.callbacks.Close()
	e.handles.Close()
	return multierr.Append(err, e.runtime.Close(ctx))
}

func (e *Engine) track(inst *Instance) {
	e.mu.Lock()
	e.instances[inst] = struct{}{}
	e.mu.Unlock()
}

func (e *Engine) untrack(inst *Instance) {
	e.mu.Lock()
	delete(e.instances, inst)
	e.mu.Unlock()
}

func signatureString(params, results []api.ValueType) string {
	return "[" + typeNames(params) + "] -> [" + typeNames(results) + "]"
}

func typeNames(ts []api.ValueType) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, " ")
}
