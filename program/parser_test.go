package program_test

import (
	"bytes"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/dust/instr"
	"github.com/sarchlab/dust/program"
)

var (
	ls    = instr.Token{Op: instr.LoopStart, Amount: 1}
	le    = instr.Token{Op: instr.LoopEnd, Amount: 1}
	right = instr.Token{Op: instr.Move, Amount: 1}
	inc   = instr.Token{Op: instr.Add, Amount: 1}
	out   = instr.Token{Op: instr.Output, Amount: 1}
)

// randomTokens builds a well-bracketed token sequence.
func randomTokens(r *rand.Rand, depth int) []instr.Token {
	var toks []instr.Token
	n := r.Intn(6)
	for i := 0; i < n; i++ {
		switch r.Intn(6) {
		case 0:
			toks = append(toks, instr.Token{Op: instr.Move, Amount: r.Intn(9) - 4})
		case 1:
			toks = append(toks, instr.Token{Op: instr.Add, Amount: r.Intn(9) - 4})
		case 2:
			toks = append(toks, instr.Token{Op: instr.Output, Amount: 1})
		case 3:
			toks = append(toks, instr.Token{Op: instr.Clear, Amount: 1})
		default:
			if depth < 5 {
				toks = append(toks, ls)
				toks = append(toks, randomTokens(r, depth+1)...)
				toks = append(toks, le)
			}
		}
	}
	return toks
}

func loopsInOrder(b program.Block) []program.Loop {
	var loops []program.Loop
	program.Walk(b, func(n program.Node, _ int) {
		if l, ok := n.(program.Loop); ok {
			loops = append(loops, l)
		}
	})
	return loops
}

// matchingEnds maps the index of every loop start to its loop end, in the
// order the starts appear.
func matchingEnds(toks []instr.Token) [][2]int {
	var (
		pairs [][2]int
		stack []int
	)
	for i, t := range toks {
		switch t.Op {
		case instr.LoopStart:
			stack = append(stack, len(pairs))
			pairs = append(pairs, [2]int{i, -1})
		case instr.LoopEnd:
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			pairs[top][1] = i
		}
	}
	return pairs
}

var _ = Describe("Parse", func() {
	It("should parse a single loop", func() {
		p := program.Parse([]instr.Token{ls, right, le})

		Expect(*p).To(Equal(program.Program{
			Root: program.Block{Children: []program.Node{
				program.Loop{Body: program.Block{Children: []program.Node{
					program.Run{Tokens: []instr.Token{right}},
				}}},
			}},
		}))
	})

	It("should end a trailing run with the sentinel", func() {
		p := program.Parse([]instr.Token{inc, out})

		Expect(p.Root.Children).To(Equal([]program.Node{
			program.Run{Tokens: []instr.Token{inc, out, instr.NoneToken}},
		}))
	})

	It("should not add the sentinel before a bracket", func() {
		p := program.Parse([]instr.Token{inc, ls, le})

		Expect(p.Root.Children).To(HaveLen(2))
		Expect(p.Root.Children[0]).To(Equal(
			program.Run{Tokens: []instr.Token{inc}}))
	})

	It("should produce an empty body for an empty loop", func() {
		p := program.Parse([]instr.Token{ls, le})

		Expect(p.Root.Children).To(Equal([]program.Node{
			program.Loop{Body: program.Block{}},
		}))
	})

	It("should parse nothing from no tokens", func() {
		p := program.Parse(nil)

		Expect(p.Root.Children).To(BeEmpty())
	})

	It("should keep sibling loops in order", func() {
		p := program.Parse([]instr.Token{ls, inc, le, right, ls, out, le})

		Expect(p.Root.Children).To(HaveLen(3))
		Expect(p.Root.Children[0]).To(BeAssignableToTypeOf(program.Loop{}))
		Expect(p.Root.Children[1]).To(Equal(
			program.Run{Tokens: []instr.Token{right}}))
		Expect(p.Root.Children[2]).To(BeAssignableToTypeOf(program.Loop{}))
	})

	Context("with unbalanced brackets", func() {
		It("should close an unterminated loop at the end", func() {
			var p *program.Program
			Expect(func() {
				p = program.Parse([]instr.Token{ls, inc})
			}).NotTo(Panic())

			Expect(p.Root.Children).To(Equal([]program.Node{
				program.Loop{Body: program.Block{Children: []program.Node{
					program.Run{Tokens: []instr.Token{inc, instr.NoneToken}},
				}}},
			}))
		})

		It("should skip a stray loop end at the top level", func() {
			var p *program.Program
			Expect(func() {
				p = program.Parse([]instr.Token{le, inc, le, le})
			}).NotTo(Panic())

			Expect(p.Root.Children).To(Equal([]program.Node{
				program.Run{Tokens: []instr.Token{inc}},
			}))
		})
	})

	It("should handle very deep nesting", func() {
		const depth = 10000
		toks := make([]instr.Token, 0, 2*depth)
		for i := 0; i < depth; i++ {
			toks = append(toks, ls)
		}
		for i := 0; i < depth; i++ {
			toks = append(toks, le)
		}

		p := program.Parse(toks)

		Expect(program.CountLoops(p.Root)).To(Equal(depth))
		Expect(program.MaxDepth(p.Root)).To(Equal(depth))
	})

	It("should round-trip well-bracketed sequences", func() {
		r := rand.New(rand.NewSource(42))

		for i := 0; i < 200; i++ {
			toks := randomTokens(r, 0)
			p := program.Parse(toks)

			starts := 0
			for _, t := range toks {
				if t.Op == instr.LoopStart {
					starts++
				}
			}
			Expect(program.CountLoops(p.Root)).To(Equal(starts))

			flat := program.Flatten(p.Root)
			if len(toks) == 0 {
				Expect(flat).To(BeEmpty())
			} else {
				Expect(flat).To(Equal(toks))
			}

			loops := loopsInOrder(p.Root)
			for j, pair := range matchingEnds(toks) {
				inner := toks[pair[0]+1 : pair[1]]
				body := program.Flatten(loops[j].Body)
				if len(inner) == 0 {
					Expect(body).To(BeEmpty())
				} else {
					Expect(body).To(Equal(inner))
				}
			}
		}
	})
})

var _ = Describe("Dump", func() {
	It("should print loops and runs", func() {
		p := program.Parse([]instr.Token{inc, ls, right, le})

		var buf bytes.Buffer
		program.Dump(&buf, p)

		Expect(buf.String()).To(ContainSubstring("program"))
		Expect(buf.String()).To(ContainSubstring("loop (1 children)"))
		Expect(buf.String()).To(ContainSubstring("run >1"))
		Expect(buf.String()).To(ContainSubstring("run +1"))
	})
})
