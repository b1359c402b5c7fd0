package fixture

import (
	"math/bits"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/wippyai/wasm-bridge/entry"
	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/ownership"
)

// Host holds the state of the Go entry points.
type Host struct {
	hellos    atomic.Int32
	inspected atomic.Int32
}

// Register adds the Go entry points to reg. reg must not be sealed yet.
func (h *Host) Register(reg *entry.Registry) error {
	return multierr.Combine(
		reg.Register(RustMath, rustMath),
		reg.Register(CheckedAdd, checkedAdd),
		reg.Register(CppCallback, h.cppCallback),
		reg.Register(InspectValue, h.inspectValue),
		reg.Register(ResourceLen, resourceLen),
	)
}

// Hellos returns how many times native code called cpp_callback.
func (h *Host) Hellos() int32 { return h.hellos.Load() }

// Inspected returns how many values passed through inspect_value.
func (h *Host) Inspected() int32 { return h.inspected.Load() }

// rustMath panics on overflow. The panic never unwinds into native frames.
func rustMath(a, b uint32) uint32 {
	sum, carry := bits.Add32(a, b, 0)
	if carry != 0 {
		panic("integer overflow")
	}
	return sum
}

func checkedAdd(a, b uint32) (uint32, error) {
	sum, carry := bits.Add32(a, b, 0)
	if carry != 0 {
		return 0, errors.Overflow(errors.PhaseInvoke, []string{CheckedAdd.Name}, uint64(a)+uint64(b), "u32")
	}
	return sum, nil
}

func (h *Host) cppCallback() {
	h.hellos.Add(1)
}

func (h *Host) inspectValue(v Value) Value {
	h.inspected.Add(1)
	return v
}

func resourceLen(r ownership.Ref) (uint32, error) {
	v, err := r.Value()
	if err != nil {
		return 0, err
	}
	s, ok := v.(string)
	if !ok {
		return 0, errors.TypeMismatch(errors.PhaseDecode, []string{ResourceLen.Name, "r"}, typeName(v), "string")
	}
	return uint32(len(s)), nil
}
