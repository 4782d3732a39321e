// Package api defines the driver API for the compiler. A Driver runs the
// pipeline stages with one configuration and hands the result to a
// backend: LLVM for IR and object files, the emu machine for runs.
package api

import (
	"bytes"
	"fmt"
	"io"

	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/dust/codegen"
	"github.com/sarchlab/dust/config"
	"github.com/sarchlab/dust/emu"
	"github.com/sarchlab/dust/instr"
	"github.com/sarchlab/dust/lexer"
	"github.com/sarchlab/dust/llvmir"
	"github.com/sarchlab/dust/optimize"
	"github.com/sarchlab/dust/program"
	"github.com/sarchlab/dust/util"
)

// Driver compiles and runs programs.
type Driver interface {
	// Tokens lexes the source and, unless optimization is off, applies the
	// peephole pass.
	Tokens(src io.Reader) ([]instr.Token, error)

	// Parse turns the source into a program tree.
	Parse(src io.Reader) (*program.Program, error)

	// Lower generates code for the program into any builder.
	Lower(p *program.Program, b codegen.Builder)

	// EmitIR writes verified LLVM IR for the program.
	EmitIR(p *program.Program, w io.Writer) error

	// EmitObject writes a native object file for the configured target.
	EmitObject(p *program.Program, path string) error

	// Run executes the program on the reference machine.
	Run(p *program.Program, in io.Reader, out io.Writer) (emu.Stats, error)
}

// backend is the part of llvmir.Module the driver relies on.
type backend interface {
	codegen.Builder
	Verify() error
	WriteIR(w io.Writer) error
	EmitObject(path string, opts llvmir.TargetOptions) error
	Dispose()
}

type backendFactory func(name string) backend

func newLLVMBackend(name string) backend {
	return llvmir.NewModule(name)
}

type driverImpl struct {
	name   string
	cfg    config.Config
	engine sim.Engine
	freq   sim.Freq

	newBackend backendFactory
}

func (d *driverImpl) Tokens(src io.Reader) ([]instr.Token, error) {
	var opts []lexer.Option
	if d.cfg.FlushTrailing {
		opts = append(opts, lexer.WithFlushTrailing())
	}

	toks, err := lexer.Lex(src, opts...)
	if err != nil {
		return nil, err
	}

	if !d.cfg.Optimize {
		return toks, nil
	}

	out, stats := optimize.OptimizeWithStats(toks)
	util.Trace("Optimize", "Driver", d.name,
		"Cleared", stats.Cleared, "Dropped", stats.Dropped)

	return out, nil
}

func (d *driverImpl) Parse(src io.Reader) (*program.Program, error) {
	toks, err := d.Tokens(src)
	if err != nil {
		return nil, err
	}

	return program.Parse(toks), nil
}

func (d *driverImpl) Lower(p *program.Program, b codegen.Builder) {
	codegen.Generate(p, b,
		codegen.WithTapeSize(d.cfg.TapeSize),
		codegen.WithTapeAlign(d.cfg.TapeAlign))
}

func (d *driverImpl) lowerVerified(p *program.Program) (backend, error) {
	b := d.newBackend(d.name)
	d.Lower(p, b)

	if err := b.Verify(); err != nil {
		b.Dispose()
		return nil, err
	}

	return b, nil
}

func (d *driverImpl) EmitIR(p *program.Program, w io.Writer) error {
	b, err := d.lowerVerified(p)
	if err != nil {
		return err
	}
	defer b.Dispose()

	if err := b.WriteIR(w); err != nil {
		return fmt.Errorf("write IR: %w", err)
	}

	return nil
}

func (d *driverImpl) EmitObject(p *program.Program, path string) error {
	b, err := d.lowerVerified(p)
	if err != nil {
		return err
	}
	defer b.Dispose()

	return b.EmitObject(path, llvmir.TargetOptions{
		Triple:   d.cfg.Target,
		CPU:      d.cfg.CPU,
		Features: d.cfg.Features,
	})
}

func (d *driverImpl) Run(
	p *program.Program,
	in io.Reader,
	out io.Writer,
) (emu.Stats, error) {
	mod := emu.NewModule(d.name)
	d.Lower(p, mod)

	engine := d.engine
	if engine == nil {
		engine = sim.NewSerialEngine()
	}
	if in == nil {
		in = bytes.NewReader(nil)
	}
	if out == nil {
		out = io.Discard
	}

	m := emu.NewMachineBuilder().
		WithEngine(engine).
		WithFreq(d.freq).
		WithInput(in).
		WithOutput(out).
		WithMemorySize(d.cfg.TapeSize + d.cfg.TapeAlign + 64).
		WithMaxCycles(d.cfg.MaxCycles).
		Build(d.name+".Machine", mod)

	return m.Run()
}
