// Package codegen lowers a parsed program into calls against an
// IR-building backend.
package codegen

import (
	"fmt"

	"github.com/sarchlab/dust/instr"
	"github.com/sarchlab/dust/program"
	"github.com/sarchlab/dust/util"
)

const (
	// DefaultTapeSize is the number of cells on the tape.
	DefaultTapeSize = 30000
	// DefaultTapeAlign is the alignment hint for the tape buffer.
	DefaultTapeAlign = 16

	// ReadByteSymbol and WriteByteSymbol are the runtime primitives the
	// generated code calls for input and output.
	ReadByteSymbol  = "getchar"
	WriteByteSymbol = "putchar"

	// EntrySymbol is the name of the generated function.
	EntrySymbol = "main"
)

// Option configures a generator.
type Option func(*generator)

// WithTapeSize sets the number of cells on the tape.
func WithTapeSize(size int) Option {
	return func(g *generator) {
		g.tapeSize = size
	}
}

// WithTapeAlign sets the alignment hint of the tape buffer.
func WithTapeAlign(align int) Option {
	return func(g *generator) {
		g.tapeAlign = align
	}
}

type generator struct {
	b         Builder
	tapeSize  int
	tapeAlign int

	tape      Value
	ptr       Value // stack slot holding the current cell address
	readByte  Function
	writeByte Function

	loops int
}

// Generate lowers p into b. The tree is walked depth-first in block
// order. An opcode the driver does not know is an internal error and
// panics.
func Generate(p *program.Program, b Builder, opts ...Option) {
	g := &generator{
		b:         b,
		tapeSize:  DefaultTapeSize,
		tapeAlign: DefaultTapeAlign,
	}
	for _, opt := range opts {
		opt(g)
	}

	g.declareRuntime()
	g.prologue()
	g.block(p.Root)
	g.epilogue()

	util.Trace("Generate", "Loops", g.loops, "TapeSize", g.tapeSize)
}

func (g *generator) declareRuntime() {
	g.writeByte = g.b.DeclareExternal(WriteByteSymbol, 1)
	g.readByte = g.b.DeclareExternal(ReadByteSymbol, 0)
}

func (g *generator) prologue() {
	g.b.BeginFunction(EntrySymbol)

	g.tape = g.b.AllocBuffer("tape", g.tapeSize, g.tapeAlign)
	g.ptr = g.b.AllocPointer("ptr")
	g.b.LifetimeStart(g.tape, g.tapeSize)
	g.b.ZeroFill(g.tape, g.tapeSize, g.tapeAlign)
	g.b.StorePointer(g.b.OffsetPointer(g.tape, 0), g.ptr)
}

func (g *generator) epilogue() {
	end := g.b.NewBlock("end")
	g.b.Br(end)
	g.b.SetInsertPoint(end)
	g.b.LifetimeEnd(g.tape, g.tapeSize)
	g.b.Return(0)
}

func (g *generator) block(b program.Block) {
	for _, child := range b.Children {
		switch n := child.(type) {
		case program.Run:
			g.run(n)
		case program.Loop:
			g.loop(n)
		default:
			panic(fmt.Sprintf("codegen: unknown node type %T", child))
		}
	}
}

// loop emits the check/body/merge triple. The check is always emitted;
// whether the body runs is decided at run time only.
func (g *generator) loop(l program.Loop) {
	id := g.loops
	g.loops++

	check := g.b.NewBlock(fmt.Sprintf("loop%d.check", id))
	body := g.b.NewBlock(fmt.Sprintf("loop%d.body", id))
	merge := g.b.NewBlock(fmt.Sprintf("loop%d.merge", id))

	g.b.Br(check)
	g.b.SetInsertPoint(check)
	g.b.CondBr(g.b.NonZero(g.cell()), body, merge)

	g.b.SetInsertPoint(body)
	g.block(l.Body)
	g.b.Br(check)

	g.b.SetInsertPoint(merge)
}

func (g *generator) run(r program.Run) {
	for _, t := range r.Tokens {
		g.token(t)
	}
}

func (g *generator) token(t instr.Token) {
	switch t.Op {
	case instr.Move:
		cur := g.b.LoadPointer(g.ptr)
		g.b.StorePointer(g.b.OffsetPointer(cur, t.Amount), g.ptr)
	case instr.Add:
		cur := g.b.LoadPointer(g.ptr)
		sum := g.b.AddByte(g.b.LoadByte(cur), g.b.ConstByte(byte(t.Amount)))
		g.b.StoreByte(sum, cur)
	case instr.Clear:
		g.b.StoreByte(g.b.ConstByte(0), g.b.LoadPointer(g.ptr))
	case instr.Input:
		v := g.b.TruncByte(g.b.Call(g.readByte, nil))
		g.b.StoreByte(v, g.b.LoadPointer(g.ptr))
	case instr.Output:
		g.b.Call(g.writeByte, []Value{g.b.WidenByte(g.cell())})
	case instr.None:
	default:
		panic(fmt.Sprintf("codegen: unexpected opcode %v", t.Op))
	}
}

// cell loads the byte under the pointer.
func (g *generator) cell() Value {
	return g.b.LoadByte(g.b.LoadPointer(g.ptr))
}
