package main

import (
	"context"
	"reflect"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-bridge/internal/fixture"
)

func setup(t *testing.T) *fixture.Env {
	t.Helper()
	ctx := context.Background()
	env, err := fixture.Setup(ctx, fixture.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close(ctx) })
	return env
}

func find(t *testing.T, funcs []funcInfo, name string) funcInfo {
	t.Helper()
	for _, f := range funcs {
		if f.sig.Name == name {
			return f
		}
	}
	t.Fatalf("no function %s", name)
	return funcInfo{}
}

func TestCatalog(t *testing.T) {
	env := setup(t)
	funcs := catalog(env.Module)
	require.Len(t, funcs, len(env.Module.ExportNames()))

	add := find(t, funcs, fixture.AddViaCc.Name)
	require.True(t, add.callable)
	require.Equal(t, fixture.AddViaCc, add.sig)
	require.Equal(t, "[i32 i32] -> [i32]", add.flat)

	require.True(t, find(t, funcs, fixture.EchoValue.Name).callable)
	require.False(t, find(t, funcs, fixture.StoreResource.Name).callable)
	require.False(t, find(t, funcs, fixture.PeekResource.Name).callable)

	// not a fixture signature, so derived from the definition
	scratch := find(t, funcs, "bridge_scratch")
	require.True(t, scratch.callable)
	require.Empty(t, scratch.sig.Params)
	require.Equal(t, reflect.TypeFor[uint32](), scratch.sig.Result)
}

func TestConvertArg(t *testing.T) {
	tests := []struct {
		want  any
		typ   reflect.Type
		name  string
		value string
	}{
		{name: "u32", value: "42", typ: reflect.TypeFor[uint32](), want: uint32(42)},
		{name: "hex u64", value: "0x10", typ: reflect.TypeFor[uint64](), want: uint64(16)},
		{name: "s32", value: " -7 ", typ: reflect.TypeFor[int32](), want: int32(-7)},
		{name: "f64", value: "1.5", typ: reflect.TypeFor[float64](), want: 1.5},
		{name: "bool", value: "true", typ: reflect.TypeFor[bool](), want: true},
		{name: "struct", value: "123", typ: reflect.TypeFor[fixture.Value](), want: fixture.Value{Value: 123}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertArg(tt.value, tt.typ)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := convertArg("-1", reflect.TypeFor[uint32]())
	require.Error(t, err)
	_, err = convertArg("256", reflect.TypeFor[uint8]())
	require.Error(t, err)
	_, err = convertArg("abc", reflect.TypeFor[string]())
	require.Error(t, err)
}

func TestRunScenarios(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	require.NoError(t, runScenarios(ctx, env, "pod"))
	require.NoError(t, runScenarios(ctx, env, "all"))
	require.Error(t, runScenarios(ctx, env, "nope"))
}

func TestDumpBridges(t *testing.T) {
	env := setup(t)
	require.NoError(t, dumpBridges(env))
}

func TestInteractive_Call(t *testing.T) {
	env := setup(t)
	m := newInteractiveModel(env.Module, "")

	for i, f := range m.funcs {
		if f.sig.Name == fixture.AddViaCc.Name {
			m.selected = i
		}
	}
	m.prepareInputs()
	require.Len(t, m.inputs, 2)
	m.inputs[0].SetValue("100")
	m.inputs[1].SetValue("42")

	msg := m.callFunction().(callResultMsg)
	require.NoError(t, msg.err)
	require.Equal(t, "142", msg.result)

	next, _ := m.Update(msg)
	require.Equal(t, stateShowResult, next.(*interactiveModel).state)
	require.Contains(t, m.View(), "142")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
}

func TestInteractive_BadArg(t *testing.T) {
	env := setup(t)
	m := newInteractiveModel(env.Module, "")

	for i, f := range m.funcs {
		if f.sig.Name == fixture.MultiplyViaCc.Name {
			m.selected = i
		}
	}
	m.prepareInputs()
	m.inputs[0].SetValue("x")
	m.inputs[1].SetValue("1")

	msg := m.callFunction().(callResultMsg)
	require.Error(t, msg.err)
}
