package main

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/internal/fixture"
)

// funcInfo is a native export with the signature it is called with.
type funcInfo struct {
	sig      bridge.Signature
	flat     string
	callable bool
}

// catalog lists the function exports of mod. Exports of the built-in
// fixture use their declared signatures; others get one derived from the
// flat definition.
func catalog(mod *engine.Module) []funcInfo {
	known := make(map[string]bridge.Signature, len(fixture.Exports))
	for _, sig := range fixture.Exports {
		known[sig.Name] = sig
	}

	var funcs []funcInfo
	for _, name := range mod.ExportNames() {
		def, _ := mod.Definition(name)
		fi := funcInfo{flat: flatString(def)}
		sig, ok := known[name]
		if !ok {
			sig, ok = derive(name, def)
		}
		fi.sig = sig
		fi.callable = ok && parsable(sig)
		if fi.sig.Name == "" {
			fi.sig.Name = name
		}
		funcs = append(funcs, fi)
	}
	return funcs
}

// derive maps a flat definition to Go scalars. Multi-value results have no
// Go counterpart.
func derive(name string, def api.FunctionDefinition) (bridge.Signature, bool) {
	sig := bridge.Signature{Name: name}
	for i, t := range def.ParamTypes() {
		sig.Params = append(sig.Params, bridge.Param{Name: paramName(def, i), Type: goType(t)})
	}
	switch len(def.ResultTypes()) {
	case 0:
	case 1:
		sig.Result = goType(def.ResultTypes()[0])
	default:
		return sig, false
	}
	return sig, true
}

func paramName(def api.FunctionDefinition, i int) string {
	if names := def.ParamNames(); i < len(names) && names[i] != "" {
		return names[i]
	}
	return "arg" + strconv.Itoa(i)
}

func goType(t api.ValueType) reflect.Type {
	switch t {
	case api.ValueTypeI64:
		return reflect.TypeFor[uint64]()
	case api.ValueTypeF32:
		return reflect.TypeFor[float32]()
	case api.ValueTypeF64:
		return reflect.TypeFor[float64]()
	default:
		return reflect.TypeFor[uint32]()
	}
}

// parsable reports whether every parameter can be typed in as text.
func parsable(sig bridge.Signature) bool {
	for _, p := range sig.Params {
		if _, ok := numericKind(p.Type); !ok {
			return false
		}
	}
	return true
}

// numericKind returns the scalar kind of t, looking through single-field
// structs such as fixture.Value.
func numericKind(t reflect.Type) (reflect.Kind, bool) {
	if t.Kind() == reflect.Struct {
		if t.NumField() != 1 || !t.Field(0).IsExported() {
			return 0, false
		}
		t = t.Field(0).Type
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Float32, reflect.Float64:
		return t.Kind(), true
	}
	return 0, false
}

// convertArg parses value as a t.
func convertArg(value string, t reflect.Type) (any, error) {
	out := reflect.New(t).Elem()
	dst := out
	if t.Kind() == reflect.Struct {
		dst = out.Field(0)
	}
	value = strings.TrimSpace(value)

	switch dst.Kind() {
	case reflect.Bool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, err
		}
		dst.SetBool(v)
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(value, 0, dst.Type().Bits())
		if err != nil {
			return nil, err
		}
		dst.SetUint(v)
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(value, 0, dst.Type().Bits())
		if err != nil {
			return nil, err
		}
		dst.SetInt(v)
	case reflect.Float32, reflect.Float64:
		v, err := strconv.ParseFloat(value, dst.Type().Bits())
		if err != nil {
			return nil, err
		}
		dst.SetFloat(v)
	default:
		return nil, fmt.Errorf("cannot parse %s", t)
	}
	return out.Interface(), nil
}

func flatString(def api.FunctionDefinition) string {
	if def == nil {
		return ""
	}
	return "[" + typeNames(def.ParamTypes()) + "] -> [" + typeNames(def.ResultTypes()) + "]"
}

func typeNames(ts []api.ValueType) string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = api.ValueTypeName(t)
	}
	return strings.Join(names, " ")
}
