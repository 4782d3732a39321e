package emu

import (
	"bufio"
	"io"

	"github.com/sarchlab/akita/v4/sim"
)

// MachineBuilder can create machines.
type MachineBuilder struct {
	engine    sim.Engine
	freq      sim.Freq
	in        io.Reader
	out       io.Writer
	memSize   int
	maxCycles uint64
}

// NewMachineBuilder returns a builder with a 1 GHz clock, 64 KiB of stack
// memory and no cycle limit.
func NewMachineBuilder() MachineBuilder {
	return MachineBuilder{
		freq:    1 * sim.GHz,
		memSize: 1 << 16,
		out:     io.Discard,
	}
}

// WithEngine sets the engine. Without one, Build creates a serial engine.
func (b MachineBuilder) WithEngine(engine sim.Engine) MachineBuilder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the machine.
func (b MachineBuilder) WithFreq(freq sim.Freq) MachineBuilder {
	b.freq = freq
	return b
}

// WithInput sets where the read primitive takes bytes from.
func (b MachineBuilder) WithInput(in io.Reader) MachineBuilder {
	b.in = in
	return b
}

// WithOutput sets where the write primitive sends bytes.
func (b MachineBuilder) WithOutput(out io.Writer) MachineBuilder {
	b.out = out
	return b
}

// WithMemorySize sets the size of the stack memory in bytes.
func (b MachineBuilder) WithMemorySize(size int) MachineBuilder {
	if size <= 0 {
		panic("memory size must be positive")
	}
	b.memSize = size
	return b
}

// WithMaxCycles stops the machine after n instructions. Zero means no
// limit.
func (b MachineBuilder) WithMaxCycles(n uint64) MachineBuilder {
	b.maxCycles = n
	return b
}

// Build creates a machine that runs mod.
func (b MachineBuilder) Build(name string, mod *Module) *Machine {
	engine := b.engine
	if engine == nil {
		engine = sim.NewSerialEngine()
	}

	m := &Machine{
		engine:    engine,
		mod:       mod,
		mem:       make([]byte, b.memSize),
		sp:        16,
		regs:      make([]uint64, mod.numRegs),
		block:     mod.entry,
		out:       b.out,
		maxCycles: b.maxCycles,
	}

	if b.in != nil {
		if br, ok := b.in.(io.ByteReader); ok {
			m.in = br
		} else {
			m.in = bufio.NewReader(b.in)
		}
	}

	m.TickingComponent = sim.NewTickingComponent(name, engine, b.freq, m)

	return m
}
