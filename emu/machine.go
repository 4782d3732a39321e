package emu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/sarchlab/dust/codegen"
	"github.com/sarchlab/dust/util"
)

var _ codegen.Builder = (*Module)(nil)

// ErrCycleLimit is returned when a program runs longer than the machine's
// cycle budget.
var ErrCycleLimit = errors.New("cycle limit reached")

// eof is what the read primitive returns at end of input.
const eof = -1

// Stats describes a finished run.
type Stats struct {
	Cycles   uint64
	ExitCode int
}

// Machine executes a Module one instruction per tick.
type Machine struct {
	*sim.TickingComponent

	engine sim.Engine
	mod    *Module

	mem  []byte
	sp   uint64
	regs []uint64

	tapeBase uint64
	tapeSize uint64

	block blockID
	pc    int

	in  io.ByteReader
	out io.Writer

	maxCycles uint64
	cycles    uint64
	halted    bool
	exitCode  int
	err       error
}

// Run executes the program until it returns, fails or exceeds the cycle
// limit.
func (m *Machine) Run() (Stats, error) {
	if err := m.mod.Validate(); err != nil {
		return Stats{}, err
	}

	m.block = m.mod.entry
	m.TickLater()

	if err := m.engine.Run(); err != nil {
		return m.stats(), fmt.Errorf("engine: %w", err)
	}

	util.Trace("MachineHalt",
		"Name", m.Name(),
		"Cycles", m.cycles,
		"Time", float64(m.engine.CurrentTime()*1e9),
		"ExitCode", m.exitCode,
	)

	if m.err != nil {
		return m.stats(), m.err
	}
	if !m.halted {
		return m.stats(), fmt.Errorf("%s stopped without returning", m.Name())
	}

	return m.stats(), nil
}

func (m *Machine) stats() Stats {
	return Stats{Cycles: m.cycles, ExitCode: m.exitCode}
}

// Tick runs one instruction.
func (m *Machine) Tick() (madeProgress bool) {
	if m.halted || m.err != nil {
		return false
	}

	if m.maxCycles > 0 && m.cycles >= m.maxCycles {
		m.fail(ErrCycleLimit)
		return false
	}

	bb := m.mod.blocks[m.block]
	if m.pc >= len(bb.insts) {
		m.fail(fmt.Errorf("fell off the end of block %q", bb.name))
		return false
	}

	in := bb.insts[m.pc]
	m.pc++
	m.cycles++

	m.exec(in)

	return !m.halted && m.err == nil
}

func (m *Machine) fail(err error) {
	m.err = fmt.Errorf("%s at cycle %d: %w", m.Name(), m.cycles, err)
}

func (m *Machine) jump(target blockID) {
	m.block = target
	m.pc = 0
}

func (m *Machine) exec(in inst) {
	switch in.op {
	case opAlloc:
		m.alloc(in)
	case opLifetime:
	case opZeroFill:
		if buf, ok := m.span(m.regs[in.src[0]], uint64(in.imm)); ok {
			clear(buf)
		}
	case opConst:
		m.regs[in.dst] = uint64(in.imm)
	case opLoadPtr:
		if buf, ok := m.span(m.regs[in.src[0]], 8); ok {
			m.regs[in.dst] = binary.LittleEndian.Uint64(buf)
		}
	case opStorePtr:
		if buf, ok := m.span(m.regs[in.src[1]], 8); ok {
			binary.LittleEndian.PutUint64(buf, m.regs[in.src[0]])
		}
	case opOffset:
		m.regs[in.dst] = m.regs[in.src[0]] + uint64(in.imm)
	case opLoadByte:
		if buf, ok := m.span(m.regs[in.src[0]], 1); ok {
			m.regs[in.dst] = uint64(buf[0])
		}
	case opStoreByte:
		if buf, ok := m.span(m.regs[in.src[1]], 1); ok {
			buf[0] = byte(m.regs[in.src[0]])
		}
	case opAdd:
		m.regs[in.dst] = uint64(byte(m.regs[in.src[0]] + m.regs[in.src[1]]))
	case opNonZero:
		m.regs[in.dst] = 0
		if byte(m.regs[in.src[0]]) != 0 {
			m.regs[in.dst] = 1
		}
	case opCondBr:
		if m.regs[in.src[0]] != 0 {
			m.jump(in.targets[0])
		} else {
			m.jump(in.targets[1])
		}
	case opBr:
		m.jump(in.targets[0])
	case opCall:
		m.call(in)
	case opTrunc, opWiden:
		m.regs[in.dst] = uint64(byte(m.regs[in.src[0]]))
	case opRet:
		m.halted = true
		m.exitCode = int(in.imm)
	default:
		panic(fmt.Sprintf("emu: unknown instruction %s in block %q",
			in.op, m.mod.blocks[m.block].name))
	}
}

func (m *Machine) alloc(in inst) {
	size, align := uint64(in.imm), uint64(in.imm2)
	if align > 1 {
		m.sp = (m.sp + align - 1) / align * align
	}

	if m.sp+size > uint64(len(m.mem)) {
		m.fail(fmt.Errorf("out of stack memory allocating %d bytes", size))
		return
	}

	if in.buffer && m.tapeSize == 0 {
		m.tapeBase, m.tapeSize = m.sp, size
	}

	m.regs[in.dst] = m.sp
	m.sp += size
}

// span returns the n bytes at addr, or fails the machine if any of them
// lies outside memory.
func (m *Machine) span(addr, n uint64) ([]byte, bool) {
	if addr > uint64(len(m.mem)) || n > uint64(len(m.mem))-addr {
		m.fail(fmt.Errorf("memory access out of bounds at %#x", addr))
		return nil, false
	}
	return m.mem[addr : addr+n], true
}

func (m *Machine) call(in inst) {
	switch in.fn.name {
	case codegen.ReadByteSymbol:
		m.regs[in.dst] = uint64(uint32(m.readByte()))
	case codegen.WriteByteSymbol:
		c := byte(m.regs[in.args[0]])
		if _, err := m.out.Write([]byte{c}); err != nil {
			m.fail(fmt.Errorf("write output: %w", err))
			return
		}
		m.regs[in.dst] = uint64(c)
	default:
		m.fail(fmt.Errorf("call to unknown function %s", in.fn.name))
	}
}

func (m *Machine) readByte() int32 {
	if m.in == nil {
		return eof
	}

	c, err := m.in.ReadByte()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			m.fail(fmt.Errorf("read input: %w", err))
		}
		return eof
	}

	return int32(c)
}

// Tape returns the first buffer the program allocated, or nil before the
// allocation has run.
func (m *Machine) Tape() []byte {
	if m.tapeSize == 0 {
		return nil
	}
	return m.mem[m.tapeBase : m.tapeBase+m.tapeSize]
}
