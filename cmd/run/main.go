package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/wippyai/wasmbind/native"
	"github.com/wippyai/wasmbind/runtime"
	"github.com/wippyai/wasmbind/value"
)

// backends maps -backend names to native runtimes. Optional backends add
// themselves from build-tagged files.
var backends = map[string]func() native.ABI{
	"wazero": runtime.DefaultBackend,
}

type options struct {
	wasmFile    string
	funcName    string
	args        string
	backend     string
	fuel        uint64
	interpreter bool
	list        bool
}

func main() {
	var (
		opts        options
		interactive bool
	)
	flag.StringVar(&opts.wasmFile, "wasm", "", "Path to core wasm module")
	flag.StringVar(&opts.funcName, "func", "", "Function to call (optional)")
	flag.StringVar(&opts.args, "args", "", "Arguments, comma-separated")
	flag.StringVar(&opts.backend, "backend", "wazero", "Native runtime ("+strings.Join(backendNames(), ", ")+")")
	flag.Uint64Var(&opts.fuel, "fuel", 0, "Fuel budget, 0 disables metering")
	flag.BoolVar(&opts.interpreter, "interpreter", false, "Use the interpreter instead of the compiler")
	flag.BoolVar(&opts.list, "list", false, "List exports and exit")
	flag.BoolVar(&interactive, "i", false, "Interactive mode with TUI")
	flag.Parse()

	if opts.wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm> [-func name] [-args 1,2] [-backend wazero]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	var err error
	if interactive {
		err = runInteractive(opts)
	} else {
		err = run(os.Stdout, opts)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}

func backendNames() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// session is a loaded module with the engine and store it lives in.
type session struct {
	engine *runtime.Engine
	store  *runtime.Store
	module *runtime.Module
	funcs  []funcInfo
}

type funcInfo struct {
	name string
	sig  value.Signature
}

func (f funcInfo) String() string {
	return f.name + f.sig.String()
}

func load(opts options) (*session, error) {
	data, err := os.ReadFile(opts.wasmFile)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	newBackend, ok := backends[opts.backend]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (have %s)", opts.backend, strings.Join(backendNames(), ", "))
	}
	eng, err := runtime.NewEngineWithConfig(&runtime.Config{
		Backend:     newBackend(),
		Interpreter: opts.interpreter,
		ConsumeFuel: opts.fuel > 0,
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	s := &session{engine: eng}
	if s.module, err = runtime.NewModule(eng, data); err != nil {
		s.close()
		return nil, fmt.Errorf("compile: %w", err)
	}
	if s.store, err = runtime.NewStore(eng); err != nil {
		s.close()
		return nil, fmt.Errorf("create store: %w", err)
	}
	if opts.fuel > 0 {
		if err := s.store.SetFuel(opts.fuel); err != nil {
			s.close()
			return nil, fmt.Errorf("set fuel: %w", err)
		}
	}

	for _, exp := range s.module.Exports() {
		if exp.Type.Kind == native.ExternFunc {
			s.funcs = append(s.funcs, funcInfo{name: exp.Name, sig: exp.Type.Func})
		}
	}
	slices.SortFunc(s.funcs, func(a, b funcInfo) int { return strings.Compare(a.name, b.name) })
	return s, nil
}

func (s *session) instantiate(ctx context.Context, out func(string)) (*runtime.Instance, error) {
	reg := runtime.NewHostRegistry()
	if err := reg.RegisterHost(envHost{out: out}); err != nil {
		return nil, err
	}
	inst, err := reg.Instantiate(ctx, s.store, s.module)
	if err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}
	return inst, nil
}

func (s *session) lookup(name string) (funcInfo, bool) {
	for _, f := range s.funcs {
		if f.name == name {
			return f, true
		}
	}
	return funcInfo{}, false
}

// entry picks the function to run when none was named.
func (s *session) entry() (string, bool) {
	for _, name := range []string{"_start", "run", "main"} {
		if _, ok := s.lookup(name); ok {
			return name, true
		}
	}
	if len(s.funcs) == 1 {
		return s.funcs[0].name, true
	}
	return "", false
}

func (s *session) close() {
	if s.store != nil {
		_ = s.store.Close()
	}
	if s.module != nil {
		_ = s.module.Close()
	}
	_ = s.engine.Close()
}

func run(w io.Writer, opts options) error {
	ctx := context.Background()

	s, err := load(opts)
	if err != nil {
		return err
	}
	defer s.close()

	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("Module"), opts.wasmFile)
	fmt.Fprintf(w, "Imports: %d\n", len(s.module.Imports()))
	for _, imp := range s.module.Imports() {
		fmt.Fprintf(w, "  %s.%s %s\n", imp.Module, imp.Name, typeStyle.Render(externTypeString(imp.Type)))
	}
	fmt.Fprintf(w, "Exports: %d\n", len(s.module.Exports()))
	for _, exp := range s.module.Exports() {
		fmt.Fprintf(w, "  %s %s\n", funcStyle.Render(exp.Name), typeStyle.Render(externTypeString(exp.Type)))
	}

	if opts.list {
		return nil
	}

	inst, err := s.instantiate(ctx, func(line string) { fmt.Fprintln(w, line) })
	if err != nil {
		return err
	}

	name := opts.funcName
	if name == "" {
		var ok bool
		if name, ok = s.entry(); !ok {
			fmt.Fprintln(w, "\nNo function specified and no common entry point found.")
			fmt.Fprintln(w, "Use -func to specify a function to call.")
			return nil
		}
	}
	f, ok := s.lookup(name)
	if !ok {
		return fmt.Errorf("no exported function %q", name)
	}

	var raw []string
	if opts.args != "" {
		raw = strings.Split(opts.args, ",")
	}
	args, err := parseArgs(raw, f.sig.Params)
	if err != nil {
		return fmt.Errorf("arguments of %s: %w", name, err)
	}

	fmt.Fprintf(w, "\nCalling %s(%s)...\n", funcStyle.Render(name), strings.Join(raw, ", "))
	result, err := inst.Call(ctx, name, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", name, err)
	}
	fmt.Fprintf(w, "Result: %s\n", resultStyle.Render(formatResult(result)))

	if opts.fuel > 0 {
		if left, err := s.store.Fuel(); err == nil {
			fmt.Fprintf(w, "Fuel left: %d\n", left)
		}
	}
	return nil
}
