package verify

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/dust/codegen"
	"github.com/sarchlab/dust/config"
	"github.com/sarchlab/dust/emu"
	"github.com/sarchlab/dust/lexer"
	"github.com/sarchlab/dust/optimize"
	"github.com/sarchlab/dust/program"
)

// VerificationReport collects lint findings and the outcome of running
// one program two ways.
type VerificationReport struct {
	Name     string
	Tokens   int
	Loops    int
	MaxDepth int
	Cleared  int

	LintIssues   []Issue
	StructIssues []Issue
	LexIssues    []Issue

	SimulationOutput []byte
	SimulationSteps  uint64
	SimulationErr    error

	MachineOutput []byte
	MachineCycles uint64
	MachineErr    error
}

// SimulationOK reports whether the functional simulator finished.
func (r *VerificationReport) SimulationOK() bool {
	return r.SimulationErr == nil
}

// MachineOK reports whether the generated code ran to completion.
func (r *VerificationReport) MachineOK() bool {
	return r.MachineErr == nil
}

// OutputsMatch reports whether both runs finished with the same output.
func (r *VerificationReport) OutputsMatch() bool {
	return r.SimulationOK() && r.MachineOK() &&
		bytes.Equal(r.SimulationOutput, r.MachineOutput)
}

// GenerateReport lints src, compiles it with cfg and runs the result on
// both the functional simulator and the emu machine, feeding each the
// same input. cfg.MaxCycles bounds both runs.
func GenerateReport(name string, src, input []byte, cfg config.Config) *VerificationReport {
	r := &VerificationReport{Name: name}

	r.LintIssues = RunLint(src)
	for _, issue := range r.LintIssues {
		if issue.Type == IssueStruct {
			r.StructIssues = append(r.StructIssues, issue)
		} else {
			r.LexIssues = append(r.LexIssues, issue)
		}
	}

	var lexOpts []lexer.Option
	if cfg.FlushTrailing {
		lexOpts = append(lexOpts, lexer.WithFlushTrailing())
	}
	toks := lexer.LexBytes(src, lexOpts...)
	if cfg.Optimize {
		var stats optimize.Stats
		toks, stats = optimize.OptimizeWithStats(toks)
		r.Cleared = stats.Cleared
	}
	r.Tokens = len(toks)

	p := program.Parse(toks)
	r.Loops = program.CountLoops(p.Root)
	r.MaxDepth = program.MaxDepth(p.Root)

	r.simulate(p, input, cfg)
	r.execute(p, input, cfg)

	return r
}

func (r *VerificationReport) simulate(p *program.Program, input []byte, cfg config.Config) {
	var out bytes.Buffer

	fs := NewFunctionalSimulator(p, cfg.TapeSize)
	fs.SetInput(bytes.NewReader(input))
	fs.SetOutput(&out)

	r.SimulationErr = fs.Run(cfg.MaxCycles)
	r.SimulationSteps = fs.Steps()
	r.SimulationOutput = out.Bytes()
}

func (r *VerificationReport) execute(p *program.Program, input []byte, cfg config.Config) {
	var out bytes.Buffer

	mod := emu.NewModule(r.Name)
	codegen.Generate(p, mod,
		codegen.WithTapeSize(cfg.TapeSize),
		codegen.WithTapeAlign(cfg.TapeAlign))

	m := emu.NewMachineBuilder().
		WithEngine(sim.NewSerialEngine()).
		WithInput(bytes.NewReader(input)).
		WithOutput(&out).
		WithMemorySize(cfg.TapeSize + cfg.TapeAlign + 64).
		WithMaxCycles(cfg.MaxCycles).
		Build("Verify.Machine", mod)

	stats, err := m.Run()
	r.MachineErr = err
	r.MachineCycles = stats.Cycles
	r.MachineOutput = out.Bytes()
}

// WriteReport writes a formatted report to a writer.
func (r *VerificationReport) WriteReport(w io.Writer) {
	separator := strings.Repeat("=", 60)

	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "VERIFICATION REPORT: %s\n", r.Name)
	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "Tokens: %d  Loops: %d  Max depth: %d  Cleared: %d\n",
		r.Tokens, r.Loops, r.MaxDepth, r.Cleared)

	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "STAGE 1: LINT")
	fmt.Fprintln(w, separator)

	if len(r.LintIssues) == 0 {
		fmt.Fprintln(w, "No lint issues found")
	} else {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetTitle("Issues (%d STRUCT, %d LEX)", len(r.StructIssues), len(r.LexIssues))
		t.AppendHeader(table.Row{"Type", "Line", "Col", "Offset", "Message"})
		for _, issue := range r.LintIssues {
			t.AppendRow(table.Row{issue.Type, issue.Line, issue.Column, issue.Offset, issue.Message})
		}
		t.Render()
	}

	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "STAGE 2: FUNCTIONAL SIMULATION AND MACHINE RUN")
	fmt.Fprintln(w, separator)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Run", "Status", "Steps", "Output bytes"})
	t.AppendRow(table.Row{"funcsim", status(r.SimulationErr), r.SimulationSteps, len(r.SimulationOutput)})
	t.AppendRow(table.Row{"machine", status(r.MachineErr), r.MachineCycles, len(r.MachineOutput)})
	t.Render()

	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "SUMMARY")
	fmt.Fprintln(w, separator)

	switch {
	case r.OutputsMatch():
		fmt.Fprintln(w, "PASS: both runs produced the same output")
	case !r.SimulationOK() || !r.MachineOK():
		fmt.Fprintln(w, "INCOMPLETE: at least one run did not finish")
	default:
		fmt.Fprintf(w, "MISMATCH: outputs first differ at byte %d\n",
			firstDifference(r.SimulationOutput, r.MachineOutput))
	}

	fmt.Fprintln(w)
}

// SaveReportToFile saves the report to a file.
func (r *VerificationReport) SaveReportToFile(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	r.WriteReport(file)
	return nil
}

func status(err error) string {
	if err != nil {
		return "FAILED: " + err.Error()
	}
	return "OK"
}

func firstDifference(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
