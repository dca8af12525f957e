package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-bridge/bridge"
	"github.com/wippyai/wasm-bridge/engine"
	"github.com/wippyai/wasm-bridge/instrument"
	"github.com/wippyai/wasm-bridge/wat"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to module (.wasm or .wat)")
		funcName    = flag.String("func", "", "Export to call (optional)")
		argList     = flag.String("args", "", "Call arguments (comma-separated, typed per signature)")
		bytesArg    = flag.String("bytes", "", "Byte payload for the exchange-buffer convention")
		list        = flag.Bool("list", false, "List function exports and exit")
		probe       = flag.Bool("probe", false, "Probe the interface version and exit")
		depth       = flag.Uint("depth", 0, "Max guest call depth (0 = default)")
		maxPages    = flag.Uint("max-pages", 0, "Max linear memory pages (0 = default)")
		cacheSize   = flag.Int("cache", 0, "Compiled module cache size (0 = default)")
		verbose     = flag.Bool("v", false, "Verbose lifecycle logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -wasm <file.wasm|file.wat> [-func name] [-args 1,2] [-bytes data]")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -list")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -probe")
		fmt.Fprintln(os.Stderr, "       run -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	opts := runOpts{
		limits: instrument.Limits{
			MaxCallDepth:   uint32(*depth),
			MaxMemoryPages: uint32(*maxPages),
		},
		cacheSize: *cacheSize,
		verbose:   *verbose,
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*wasmFile, opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*wasmFile, *funcName, *argList, *bytesArg, *list, *probe, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type runOpts struct {
	limits    instrument.Limits
	cacheSize int
	verbose   bool
}

func (o runOpts) config() (bridge.Config, error) {
	cfg := bridge.Config{
		Limits:    o.limits,
		CacheSize: o.cacheSize,
	}
	if o.verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return cfg, fmt.Errorf("logger: %w", err)
		}
		cfg.Logger = logger
	}
	return cfg, nil
}

// loadModule reads a module file, compiling text format on the fly.
func loadModule(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if strings.HasSuffix(path, ".wat") {
		bin, err := wat.Compile(string(data))
		if err != nil {
			return nil, fmt.Errorf("compile wat: %w", err)
		}
		return bin, nil
	}
	return data, nil
}

func run(wasmFile, funcName, argList, bytesArg string, listOnly, probeOnly bool, opts runOpts) error {
	ctx := context.Background()

	raw, err := loadModule(wasmFile)
	if err != nil {
		return err
	}

	cfg, err := opts.config()
	if err != nil {
		return err
	}
	br, err := bridge.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create bridge: %w", err)
	}
	defer br.Close(ctx)

	exports, err := br.Exports(ctx, raw)
	if err != nil {
		return fmt.Errorf("inspect module: %w", err)
	}
	sort.Slice(exports, func(i, j int) bool { return exports[i].Name < exports[j].Name })

	fmt.Printf("Module: %s (%d bytes)\n", wasmFile, len(raw))

	if probeOnly {
		vi, err := br.ProbeVersion(ctx, raw)
		if err != nil {
			return fmt.Errorf("probe version: %w", err)
		}
		if vi.Legacy {
			fmt.Println("Interface version: legacy (no version export)")
		} else {
			fmt.Printf("Interface version: %s\n", vi.Version)
		}
		return nil
	}

	fmt.Printf("\nExported functions:\n")
	for _, e := range exports {
		fmt.Printf("  %s\n", formatExport(e))
	}

	if listOnly {
		return nil
	}

	if bytesArg != "" {
		if funcName == "" {
			return fmt.Errorf("-bytes needs -func")
		}
		fmt.Printf("\nCalling %s(%q)...\n", funcName, bytesArg)
		out, err := br.CallBytes(ctx, raw, funcName, []byte(bytesArg))
		if err != nil {
			return fmt.Errorf("call %s: %w", funcName, err)
		}
		fmt.Printf("Result: %q\n", out)
		return nil
	}

	if funcName == "" {
		funcName = pickEntryPoint(exports)
		if funcName == "" {
			fmt.Printf("\nNo function specified and no obvious entry point.\n")
			fmt.Printf("Use -func to specify an export to call.\n")
			return nil
		}
	}

	info, ok := findExport(exports, funcName)
	if !ok {
		return fmt.Errorf("module does not export %q", funcName)
	}
	args, err := parseArgs(argList, info.Params)
	if err != nil {
		return err
	}

	fmt.Printf("\nCalling %s(%s)...\n", funcName, argList)
	results, err := br.Call(ctx, raw, funcName, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", funcName, err)
	}
	fmt.Printf("Result: %s\n", formatResults(results, info.Results))
	return nil
}

func pickEntryPoint(exports []engine.ExportInfo) string {
	for _, name := range []string{"_start", "run", "main"} {
		if _, ok := findExport(exports, name); ok {
			return name
		}
	}
	if len(exports) == 1 {
		return exports[0].Name
	}
	return ""
}

func findExport(exports []engine.ExportInfo, name string) (engine.ExportInfo, bool) {
	for _, e := range exports {
		if e.Name == name {
			return e, true
		}
	}
	return engine.ExportInfo{}, false
}

func formatExport(e engine.ExportInfo) string {
	params := make([]string, len(e.Params))
	for i, p := range e.Params {
		params[i] = p.String()
	}
	out := e.Name + "(" + strings.Join(params, ", ") + ")"
	if len(e.Results) > 0 {
		results := make([]string, len(e.Results))
		for i, r := range e.Results {
			results[i] = r.String()
		}
		out += " -> " + strings.Join(results, ", ")
	}
	return out
}

// parseArgs converts comma-separated literals into the raw stack encoding
// the signature expects.
func parseArgs(argList string, params []engine.ValueType) ([]uint64, error) {
	var fields []string
	if argList != "" {
		fields = strings.Split(argList, ",")
	}
	if len(fields) != len(params) {
		return nil, fmt.Errorf("export takes %d arguments, got %d", len(params), len(fields))
	}
	args := make([]uint64, len(fields))
	for i, f := range fields {
		v, err := encodeArg(strings.TrimSpace(f), params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

func encodeArg(s string, t engine.ValueType) (uint64, error) {
	switch t {
	case engine.I32:
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("parse %q as i32: %w", s, err)
		}
		return uint64(uint32(int32(v))), nil
	case engine.I64:
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q as i64: %w", s, err)
		}
		return uint64(v), nil
	case engine.F32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return 0, fmt.Errorf("parse %q as f32: %w", s, err)
		}
		return uint64(math.Float32bits(float32(v))), nil
	case engine.F64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q as f64: %w", s, err)
		}
		return math.Float64bits(v), nil
	}
	return 0, fmt.Errorf("unsupported value type %v", t)
}

func formatResults(results []uint64, types []engine.ValueType) string {
	if len(results) == 0 {
		return "(none)"
	}
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = formatValue(r, typeAt(types, i))
	}
	return strings.Join(out, ", ")
}

func typeAt(types []engine.ValueType, i int) engine.ValueType {
	if i < len(types) {
		return types[i]
	}
	return engine.I64
}

func formatValue(r uint64, t engine.ValueType) string {
	switch t {
	case engine.I32:
		return strconv.FormatInt(int64(int32(uint32(r))), 10)
	case engine.F32:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(r))), 'g', -1, 32)
	case engine.F64:
		return strconv.FormatFloat(math.Float64frombits(r), 'g', -1, 64)
	default:
		return strconv.FormatInt(int64(r), 10)
	}
}
