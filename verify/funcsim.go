package verify

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/dust/instr"
	"github.com/sarchlab/dust/program"
)

// FunctionalSimulator interprets a parsed program tree directly. It
// shares nothing with codegen, so a difference between its output and
// the emu machine's points at the lowering.
type FunctionalSimulator struct {
	prog *program.Program
	tape []byte
	ptr  int

	in  io.ByteReader
	out io.Writer

	steps    uint64
	maxSteps uint64

	TraceToken func(t instr.Token, ptr int)
}

// NewFunctionalSimulator creates a simulator with a zeroed tape.
func NewFunctionalSimulator(p *program.Program, tapeSize int) *FunctionalSimulator {
	return &FunctionalSimulator{
		prog: p,
		tape: make([]byte, tapeSize),
		out:  io.Discard,
	}
}

// SetInput sets where the read primitive takes bytes from.
func (fs *FunctionalSimulator) SetInput(r io.Reader) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	fs.in = br
}

// SetOutput sets where the write primitive puts bytes.
func (fs *FunctionalSimulator) SetOutput(w io.Writer) {
	fs.out = w
}

// Tape returns the simulator's memory.
func (fs *FunctionalSimulator) Tape() []byte {
	return fs.tape
}

// Steps returns how many tokens and loop checks have executed.
func (fs *FunctionalSimulator) Steps() uint64 {
	return fs.steps
}

// Run executes the program. A maxSteps of zero means no limit.
func (fs *FunctionalSimulator) Run(maxSteps uint64) error {
	if fs.prog == nil {
		return errors.New("FunctionalSimulator has no program")
	}

	fs.maxSteps = maxSteps
	return fs.block(fs.prog.Root)
}

func (fs *FunctionalSimulator) block(b program.Block) error {
	for _, child := range b.Children {
		var err error

		switch n := child.(type) {
		case program.Run:
			err = fs.run(n)
		case program.Loop:
			err = fs.loop(n)
		default:
			panic(fmt.Sprintf("verify: unknown node %T", child))
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func (fs *FunctionalSimulator) loop(l program.Loop) error {
	for {
		if err := fs.tick(); err != nil {
			return err
		}
		if fs.tape[fs.ptr] == 0 {
			return nil
		}
		if err := fs.block(l.Body); err != nil {
			return err
		}
	}
}

func (fs *FunctionalSimulator) run(r program.Run) error {
	for _, t := range r.Tokens {
		if t.Op == instr.None {
			continue
		}

		if err := fs.tick(); err != nil {
			return err
		}
		if fs.TraceToken != nil {
			fs.TraceToken(t, fs.ptr)
		}
		if err := fs.exec(t); err != nil {
			return err
		}
	}

	return nil
}

func (fs *FunctionalSimulator) tick() error {
	fs.steps++
	if fs.maxSteps > 0 && fs.steps > fs.maxSteps {
		return fmt.Errorf("after %d steps: %w", fs.maxSteps, ErrStepLimit)
	}
	return nil
}

func (fs *FunctionalSimulator) exec(t instr.Token) error {
	switch t.Op {
	case instr.Move:
		next := fs.ptr + t.Amount
		if next < 0 || next >= len(fs.tape) {
			return fmt.Errorf("pointer moved to %d, outside the %d-cell tape",
				next, len(fs.tape))
		}
		fs.ptr = next
	case instr.Add:
		fs.tape[fs.ptr] += byte(t.Amount)
	case instr.Clear:
		fs.tape[fs.ptr] = 0
	case instr.Input:
		fs.tape[fs.ptr] = fs.readByte()
	case instr.Output:
		if _, err := fs.out.Write([]byte{fs.tape[fs.ptr]}); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	default:
		panic(fmt.Sprintf("verify: unexpected %s token in a run", t.Op))
	}

	return nil
}

// readByte mirrors getchar truncated to a byte: end of input reads as
// 0xff.
func (fs *FunctionalSimulator) readByte() byte {
	if fs.in == nil {
		return 0xff
	}

	c, err := fs.in.ReadByte()
	if err != nil {
		return 0xff
	}
	return c
}
