// Command dust compiles tape-language programs to LLVM IR, native object
// files, or runs them on the reference machine.
package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/dust/api"
	"github.com/sarchlab/dust/config"
	"github.com/sarchlab/dust/instr"
	"github.com/sarchlab/dust/program"
	"github.com/sarchlab/dust/util"
	"github.com/sarchlab/dust/verify"
)

var (
	output        = flag.String("o", "", "output path; defaults to the source name with .o or .ll, - for stdout")
	emit          = flag.String("emit", config.EmitObject, "what to produce: obj, ll or run")
	configPath    = flag.String("config", "", "YAML configuration file")
	target        = flag.String("target", "", "target triple, host by default")
	cpu           = flag.String("cpu", "", "target CPU")
	features      = flag.String("features", "", "target features")
	tapeSize      = flag.Int("tape-size", 0, "tape length in cells")
	maxCycles     = flag.Uint64("max-cycles", 0, "cycle limit for run and -verify")
	flushTrailing = flag.Bool("flush-trailing", false, "emit the final pending operator at end of input")
	noOpt         = flag.Bool("no-opt", false, "skip the clear-loop rewrite")
	dumpTokens    = flag.Bool("dump-tokens", false, "print the token table")
	dumpTree      = flag.Bool("dump-tree", false, "print the program tree")
	lint          = flag.Bool("lint", false, "report bracket and run issues in the source")
	verifyRun     = flag.Bool("verify", false, "compare the tree interpreter with the compiled program")
	input         = flag.String("input", "", "file fed to the program for run and -verify, stdin for run by default")
	logLevel      = flag.String("log-level", "", "debug, trace, info, warn or error")
	logFile       = flag.String("log-file", "", "write JSON logs to this file instead of stderr")
	monitor       = flag.Bool("monitor", false, "serve the akita monitor while running")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		atexit.Exit(2)
	}
	file := flag.Arg(0)

	cfg := loadConfig()
	setupLogging(cfg.LogLevel)

	src, err := os.ReadFile(file)
	if err != nil {
		atexit.Fatalf("%v", err)
	}

	if *lint {
		writeIssues(os.Stdout, verify.RunLint(src))
	}

	if *verifyRun {
		report := verify.GenerateReport(file, src, readInput(), cfg)
		report.WriteReport(os.Stdout)
		if !report.OutputsMatch() {
			atexit.Exit(1)
		}
		atexit.Exit(0)
	}

	engine := sim.NewSerialEngine()
	driver := api.DriverBuilder{}.
		WithConfig(cfg).
		WithEngine(engine).
		WithFreq(1 * sim.GHz).
		Build("Dust")

	if *dumpTokens {
		toks, err := driver.Tokens(bytes.NewReader(src))
		if err != nil {
			atexit.Fatalf("%v", err)
		}
		instr.WriteTable(os.Stdout, toks)
	}

	p, err := driver.Parse(bytes.NewReader(src))
	if err != nil {
		atexit.Fatalf("%v", err)
	}

	if *dumpTree {
		program.Dump(os.Stdout, p)
	}

	switch cfg.Emit {
	case config.EmitRun:
		if *monitor {
			m := monitoring.NewMonitor()
			m.RegisterEngine(engine)
			m.StartServer()
		}
		runProgram(driver, p)
	case config.EmitIR:
		emitIR(driver, p, outputPath(file, ".ll"))
	case config.EmitObject:
		path := outputPath(file, ".o")
		if err := driver.EmitObject(p, path); err != nil {
			atexit.Fatalf("%v", err)
		}
		slog.Info("wrote object file", "path", path)
	}

	atexit.Exit(0)
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] file.b\n", os.Args[0])
	flag.PrintDefaults()
}

// loadConfig layers the config file, DUST_* variables and explicitly set
// flags, in that order.
func loadConfig() config.Config {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			atexit.Fatalf("%v", err)
		}
	}
	cfg = cfg.WithEnv()

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "emit":
			cfg.Emit = *emit
		case "target":
			cfg.Target = *target
		case "cpu":
			cfg.CPU = *cpu
		case "features":
			cfg.Features = *features
		case "tape-size":
			cfg.TapeSize = *tapeSize
		case "max-cycles":
			cfg.MaxCycles = *maxCycles
		case "flush-trailing":
			cfg.FlushTrailing = *flushTrailing
		case "no-opt":
			cfg.Optimize = !*noOpt
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		atexit.Fatalf("invalid configuration: %v", err)
	}

	return cfg
}

func setupLogging(level string) {
	var w io.Writer = os.Stderr
	if *logFile != "" {
		f, err := os.Create(*logFile)
		if err != nil {
			atexit.Fatalf("%v", err)
		}
		atexit.Register(func() { f.Close() })
		w = f
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: util.ParseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

func readInput() []byte {
	if *input == "" {
		return nil
	}

	data, err := os.ReadFile(*input)
	if err != nil {
		atexit.Fatalf("%v", err)
	}
	return data
}

func outputPath(file, ext string) string {
	if *output != "" {
		return *output
	}
	return strings.TrimSuffix(file, filepath.Ext(file)) + ext
}

func emitIR(driver api.Driver, p *program.Program, path string) {
	if path == "-" {
		if err := driver.EmitIR(p, os.Stdout); err != nil {
			atexit.Fatalf("%v", err)
		}
		return
	}

	var buf bytes.Buffer
	if err := driver.EmitIR(p, &buf); err != nil {
		atexit.Fatalf("%v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		atexit.Fatalf("%v", err)
	}
	slog.Info("wrote IR", "path", path)
}

func runProgram(driver api.Driver, p *program.Program) {
	var in io.Reader = os.Stdin
	if *input != "" {
		in = bytes.NewReader(readInput())
	}

	out := bufio.NewWriter(os.Stdout)
	atexit.Register(func() { out.Flush() })

	stats, err := driver.Run(p, in, out)
	if err != nil {
		atexit.Fatalf("%v", err)
	}

	slog.Info("run finished", "cycles", stats.Cycles, "exit", stats.ExitCode)
	atexit.Exit(stats.ExitCode)
}

func writeIssues(w io.Writer, issues []verify.Issue) {
	if len(issues) == 0 {
		fmt.Fprintln(w, "no lint issues")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Lint (%d)", len(issues))
	t.AppendHeader(table.Row{"Type", "Line", "Col", "Message"})
	for _, issue := range issues {
		t.AppendRow(table.Row{issue.Type, issue.Line, issue.Column, issue.Message})
	}
	t.Render()
}
