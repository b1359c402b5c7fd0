package engine

import (
	"context"
	"slices"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/callback"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/ownership"
)

// Module is a compiled native module
type Module struct {
	engine   *Engine
	compiled wazero.CompiledModule
}

// ExportNames returns the function symbols the module exports, sorted.
func (m *Module) ExportNames() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Definition returns the flat definition of an exported function.
func (m *Module) Definition(name string) (api.FunctionDefinition, bool) {
	def, ok := m.compiled.ExportedFunctions()[name]
	return def, ok
}

// Instantiate creates an instance. Instances are anonymous so a module can
// be instantiated any number of times.
func (m *Module) Instantiate(ctx context.Context) (*Instance, error) {
	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	inst := &Instance{engine: m.engine, module: mod}
	if mem := mod.ExportedMemory(MemoryName); mem != nil {
		inst.memory = &Memory{mem: mem}
	} else if mem := mod.Memory(); mem != nil {
		inst.memory = &Memory{mem: mem}
	}
	m.engine.track(inst)
	return inst, nil
}

// Close releases the compiled module.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// Instance is a running native module. Like the wazero module it wraps it
// must be used by one goroutine at a time.
type Instance struct {
	engine *Engine
	module api.Module
	memory *Memory
}

// Forward generates a bridge for sig and binds it to the native export of
// the same name.
func (i *Instance) Forward(sig bridge.Signature) (*bridge.Forward, error) {
	if i.module == nil {
		return nil, errClosed(sig.Name)
	}
	fn := i.module.ExportedFunction(sig.Name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseBind, "native entry point", sig.Name)
	}
	b, err := i.engine.generator.Generate(sig)
	if err != nil {
		return nil, err
	}
	return b.Bind(fn, bridge.WithHandles(i.engine.handles))
}

// Call is a one-shot Forward followed by Call.
func (i *Instance) Call(ctx context.Context, sig bridge.Signature, args ...any) (any, error) {
	f, err := i.Forward(sig)
	if err != nil {
		return nil, err
	}
	return f.Call(ctx, args...)
}

// Memory returns the instance's linear memory, or nil if it has none.
func (i *Instance) Memory() *Memory { return i.memory }

// Callbacks returns the callback table native code invokes through
// bridge.invoke.
func (i *Instance) Callbacks() *callback.Table { return i.engine.callbacks }

// Handles returns the handle table shared with native code.
func (i *Instance) Handles() *ownership.Table { return i.engine.handles }

// NativeCallback returns a Func invoking the native callback at index
// through the module's bridge_dispatch export. Arguments and nresults
// results are passed through the buffer returned by bridge_scratch, which
// must hold both.
func (i *Instance) NativeCallback(index uint32, nresults int) (callback.Func, error) {
	if i.module == nil {
		return nil, errClosed(DispatchName)
	}
	dispatch := i.module.ExportedFunction(DispatchName)
	if dispatch == nil {
		return nil, errors.NotFound(errors.PhaseBind, "native dispatcher", DispatchName)
	}
	scratch := i.module.ExportedFunction(ScratchName)
	if scratch == nil {
		return nil, errors.NotFound(errors.PhaseBind, "native scratch buffer", ScratchName)
	}
	if i.memory == nil {
		return nil, errors.NotFound(errors.PhaseBind, "native memory", MemoryName)
	}
	if nresults < 0 || nresults > callback.MaxSlots {
		return nil, errors.InvalidInput(errors.PhaseBind, "native callback result count out of range")
	}
	mem := i.memory.mem

	return func(ctx context.Context, args []uint64) ([]uint64, error) {
		if len(args) > callback.MaxSlots {
			return nil, errors.ArityMismatch(errors.PhaseEncode, DispatchName, callback.MaxSlots, len(args))
		}
		res, err := scratch.Call(ctx)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseInvoke, errors.KindNativeTrap, err, "bridge_scratch trapped")
		}
		argsPtr := api.DecodeU32(res[0])
		resultsPtr := argsPtr + uint32(len(args))*8
		if err := callback.WriteSlots(mem, argsPtr, args); err != nil {
			return nil, err
		}

		res, err = dispatch.Call(ctx,
			api.EncodeU32(index),
			api.EncodeU32(argsPtr),
			api.EncodeU32(uint32(len(args))),
			api.EncodeU32(resultsPtr),
			api.EncodeU32(uint32(nresults)))
		if err != nil {
			return nil, errors.Wrap(errors.PhaseInvoke, errors.KindNativeTrap, err, "bridge_dispatch trapped")
		}
		if status := callback.Status(api.DecodeU32(res[0])); status != callback.StatusOK {
			i.engine.log.Debug("native callback failed",
				zap.Uint32("index", index),
				zap.Stringer("status", status))
			return nil, statusError(index, status)
		}
		return callback.ReadSlots(mem, resultsPtr, uint32(nresults))
	}, nil
}

func errClosed(symbol string) error {
	return errors.New(errors.PhaseBind, errors.KindInvalidInput).
		Path(symbol).
		Detail("instance is closed").
		Build()
}

// statusError maps a status returned by the native dispatcher to an error.
func statusError(index uint32, status callback.Status) error {
	switch status {
	case callback.StatusStale:
		return errors.StaleHandle(errors.PhaseInvoke, "native callback", index)
	case callback.StatusBusy:
		return errors.New(errors.PhaseInvoke, errors.KindInFlight).
			Path(DispatchName).
			Value(index).
			Detail("native callback %d is busy", index).
			Build()
	case callback.StatusBadArgs:
		return errors.New(errors.PhaseInvoke, errors.KindArityMismatch).
			Path(DispatchName).
			Value(index).
			Detail("native callback %d rejected its arguments", index).
			Build()
	default:
		return errors.New(errors.PhaseInvoke, errors.KindNativeStatus).
			Path(DispatchName).
			Value(uint32(status)).
			Detail("native callback %d returned %s", index, status).
			Build()
	}
}

// Closed reports whether the instance was closed, either explicitly or by
// an unwind that terminated it.
func (i *Instance) Closed() bool {
	return i.module == nil || i.module.IsClosed()
}

// Close closes the instance.
func (i *Instance) Close(ctx context.Context) error {
	if i.module == nil {
		return nil
	}
	i.engine.untrack(i)
	err := i.module.Close(ctx)
	i.module = nil
	i.memory = nil
	return err
}
