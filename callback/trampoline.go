package callback

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/errors"
)

// Names of the trampoline functions in the bridge host module.
const (
	InvokeName  = "invoke"
	ReleaseName = "release"
)

// MaxSlots bounds the number of argument or result slots of one invocation.
const MaxSlots = 256

// SlotMemory is the part of api.Memory the trampoline touches.
type SlotMemory interface {
	ReadUint64Le(offset uint32) (uint64, bool)
	WriteUint64Le(offset uint32, v uint64) bool
}

// Define adds the invoke and release trampolines to a host module builder.
func (t *Table) Define(b wazero.HostModuleBuilder) wazero.HostModuleBuilder {
	i32 := api.ValueTypeI32
	return b.
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			stack[0] = uint64(t.invoke(ctx, mod.Memory(), stack))
		}), []api.ValueType{i32, i32, i32, i32, i32}, []api.ValueType{i32}).
		WithParameterNames("handle", "args_ptr", "nargs", "results_ptr", "nresults").
		Export(InvokeName).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			h := Handle(api.DecodeU32(stack[0]))
			stack[0] = uint64(StatusOf(t.TryRelease(h)))
		}), []api.ValueType{i32}, []api.ValueType{i32}).
		WithParameterNames("handle").
		Export(ReleaseName)
}

// invoke implements bridge.invoke over a native memory.
func (t *Table) invoke(ctx context.Context, mem SlotMemory, stack []uint64) Status {
	h := Handle(api.DecodeU32(stack[0]))
	argsPtr := api.DecodeU32(stack[1])
	nargs := api.DecodeU32(stack[2])
	resultsPtr := api.DecodeU32(stack[3])
	nresults := api.DecodeU32(stack[4])

	if mem == nil {
		return StatusBadArgs
	}
	args, err := ReadSlots(mem, argsPtr, nargs)
	if err != nil {
		Logger().Warn("callback arguments unreadable", zap.Uint32("handle", uint32(h)), zap.Error(err))
		return StatusBadArgs
	}

	results, err := t.Invoke(ctx, h, args)
	if err != nil {
		Logger().Debug("callback failed", zap.Uint32("handle", uint32(h)), zap.Error(err))
		return StatusOf(err)
	}
	if uint32(len(results)) != nresults {
		Logger().Warn("callback result count mismatch",
			zap.Uint32("handle", uint32(h)),
			zap.Uint32("want", nresults),
			zap.Int("got", len(results)))
		return StatusBadArgs
	}
	if err := WriteSlots(mem, resultsPtr, results); err != nil {
		return StatusBadArgs
	}
	return StatusOK
}

// ReadSlots reads n 64-bit slots starting at ptr.
func ReadSlots(mem SlotMemory, ptr, n uint32) ([]uint64, error) {
	if n == 0 {
		return nil, nil
	}
	if n > MaxSlots {
		return nil, errors.New(errors.PhaseDecode, errors.KindArityMismatch).
			Detail("%d slots exceeds the limit of %d", n, MaxSlots).
			Build()
	}
	out := make([]uint64, n)
	for i := uint32(0); i < n; i++ {
		v, ok := mem.ReadUint64Le(ptr + 8*i)
		if !ok {
			return nil, errors.OutOfBounds(errors.PhaseDecode, []string{"slots"}, ptr, 8*n)
		}
		out[i] = v
	}
	return out, nil
}

// WriteSlots writes vals as consecutive 64-bit slots starting at ptr.
func WriteSlots(mem SlotMemory, ptr uint32, vals []uint64) error {
	for i, v := range vals {
		if !mem.WriteUint64Le(ptr+8*uint32(i), v) {
			return errors.OutOfBounds(errors.PhaseEncode, []string{"slots"}, ptr, 8*uint32(len(vals)))
		}
	}
	return nil
}
