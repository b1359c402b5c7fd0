package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/callback"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/entry"
	"github.com/wippyai/wasm-bridge/internal/fixture"
)

func main() {
	var (
		scenario    = flag.String("scenario", "all", "Scenario to run, or all")
		wasmFile    = flag.String("wasm", "", "Native module to list or call instead of the built-in one")
		list        = flag.Bool("list", false, "List entry points and native exports and exit")
		dump        = flag.Bool("dump", false, "Dump the generated call bridges and exit")
		verbose     = flag.Bool("v", false, "Verbose logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: bridgecheck [-scenario name] [-v]")
		fmt.Fprintln(os.Stderr, "       bridgecheck [-wasm file.wasm] -list")
		fmt.Fprintln(os.Stderr, "       bridgecheck -dump")
		fmt.Fprintln(os.Stderr, "       bridgecheck [-wasm file.wasm] -i  (interactive mode)")
		flag.PrintDefaults()
	}
	flag.Parse()

	log := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		log = l
		engine.SetLogger(log)
		bridge.SetLogger(log)
		callback.SetLogger(log)
	}
	defer log.Sync() //nolint:errcheck

	ctx := context.Background()
	env, err := fixture.Setup(ctx, fixture.Options{
		Entries: entry.Default,
		Logger:  log,
		OnUnwind: func(err error) {
			log.Warn("unwind contained", zap.Error(err))
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer env.Close(ctx)

	mod, err := loadModule(ctx, env, *wasmFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *interactive:
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: -i needs a terminal")
			os.Exit(1)
		}
		err = runInteractive(mod, *wasmFile)
	case *list:
		listFuncs(env, mod)
	case *dump:
		err = dumpBridges(env)
	default:
		if *wasmFile != "" {
			fmt.Fprintln(os.Stderr, "Error: scenarios run against the built-in module; use -list or -i with -wasm")
			os.Exit(1)
		}
		err = runScenarios(ctx, env, *scenario)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadModule(ctx context.Context, env *fixture.Env, path string) (*engine.Module, error) {
	if path == "" {
		return env.Module, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return env.Engine.Load(ctx, data)
}

func runScenarios(ctx context.Context, env *fixture.Env, name string) error {
	scenarios := fixture.Scenarios()
	if name != "all" {
		s, err := fixture.Lookup(name)
		if err != nil {
			return err
		}
		scenarios = []fixture.Scenario{s}
	}

	failed := 0
	for _, s := range scenarios {
		out, err := env.Run(ctx, s)
		status := "PASS"
		if err != nil {
			status = "FAIL"
			failed++
		}
		fmt.Printf("%s %s: %s\n", status, s.Name, s.Description)
		for _, step := range out {
			fmt.Printf("    %s\n", step)
		}
		if err != nil {
			fmt.Printf("    %v\n", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(scenarios))
	}
	return nil
}

func listFuncs(env *fixture.Env, mod *engine.Module) {
	fmt.Printf("Entry points:\n")
	for _, name := range env.Engine.ExportNames() {
		hf, _ := env.Engine.HostFunc(name)
		fmt.Printf("  %s.%s\n", engine.EnvModule, hf)
	}

	fmt.Printf("\nNative exports:\n")
	for _, f := range catalog(mod) {
		note := ""
		if !f.callable {
			note = " (not callable from -i)"
		}
		fmt.Printf("  %s %s%s\n", f.sig, f.flat, note)
	}
}

// bridgeSummary is the printable part of a call bridge.
type bridgeSummary struct {
	Name      string
	Signature string
	Params    []string
	Results   []string
	Handles   bool
}

func dumpBridges(env *fixture.Env) error {
	gen := env.Engine.Generator()
	var sums []bridgeSummary
	for _, sig := range fixture.Exports {
		b, err := gen.Generate(sig)
		if err != nil {
			return err
		}
		sums = append(sums, bridgeSummary{
			Name:      b.Name(),
			Signature: b.Signature().String(),
			Params:    strings.Fields(typeNames(b.ParamTypes())),
			Results:   strings.Fields(typeNames(b.ResultTypes())),
			Handles:   b.UsesHandles(),
		})
	}

	cfg := spew.ConfigState{
		Indent:                  "  ",
		DisablePointerAddresses: true,
		DisableCapacities:       true,
		SortKeys:                true,
	}
	cfg.Dump(sums)
	return nil
}
