package entry

import (
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/errors"
)

// Entry is one Go function exposed to native code under a flat symbol.
type Entry struct {
	Fn        any
	Signature bridge.Signature
}

// Name returns the native symbol of the entry.
func (e Entry) Name() string { return e.Signature.Name }

// Registry is a write-once set of entry points.
type Registry struct {
	entries map[string]Entry
	sealed  atomic.Bool
	mu      sync.Mutex
}

// NewRegistry creates an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds an entry point. It fails once the registry is sealed, for a
// duplicate symbol, or when fn is not a function.
func (r *Registry) Register(sig bridge.Signature, fn any) error {
	if sig.Name == "" || strings.ContainsAny(sig.Name, " \t\n") {
		return errors.InvalidInput(errors.PhaseStartup, "entry point needs a flat symbol name")
	}
	if rv := reflect.ValueOf(fn); !rv.IsValid() || rv.Kind() != reflect.Func || rv.IsNil() {
		return errors.New(errors.PhaseStartup, errors.KindTypeMismatch).
			Path(sig.Name).
			Detail("entry point is not a function").
			Build()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() {
		return errors.New(errors.PhaseStartup, errors.KindSealed).
			Path(sig.Name).
			Detail("entry points cannot be registered after the registry is sealed").
			Build()
	}
	if _, ok := r.entries[sig.Name]; ok {
		return errors.New(errors.PhaseStartup, errors.KindDuplicate).
			Path(sig.Name).
			Detail("entry point already registered").
			Build()
	}
	r.entries[sig.Name] = Entry{Signature: sig, Fn: fn}
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(sig bridge.Signature, fn any) {
	if err := r.Register(sig, fn); err != nil {
		panic(err)
	}
}

// Seal freezes the registry. Sealing twice is a no-op.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed.Store(true)
}

// Sealed reports whether the registry has been sealed.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (Entry, error) {
	if !r.sealed.Load() {
		return Entry{}, errNotSealed(name)
	}
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, errors.NotFound(errors.PhaseStartup, "entry point", name)
	}
	return e, nil
}

// Entries returns every entry sorted by symbol.
func (r *Registry) Entries() ([]Entry, error) {
	if !r.sealed.Load() {
		return nil, errNotSealed("")
	}
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Name(), b.Name()) })
	return out, nil
}

func errNotSealed(name string) error {
	b := errors.New(errors.PhaseStartup, errors.KindNotSealed).
		Detail("entry points are read only after the registry is sealed")
	if name != "" {
		b = b.Path(name)
	}
	return b.Build()
}

// Default is the process-wide registry used by the package-level functions.
var Default = NewRegistry()

// Register adds an entry point to Default.
func Register(sig bridge.Signature, fn any) error { return Default.Register(sig, fn) }

// MustRegister adds an entry point to Default and panics on error.
func MustRegister(sig bridge.Signature, fn any) { Default.MustRegister(sig, fn) }

// Seal freezes Default.
func Seal() { Default.Seal() }
