package program

import (
	"github.com/sarchlab/dust/instr"
	"github.com/sarchlab/dust/util"
)

type parser struct {
	toks []instr.Token
	pos  int
}

// Parse builds the tree for a token sequence. Brackets are matched
// structurally but balance is not checked: an unclosed loop ends at the
// end of the input and a stray loop end at the top level is skipped.
func Parse(toks []instr.Token) *Program {
	p := &parser{toks: toks}
	prog := &Program{Root: p.parseBlock(false)}

	util.Trace("Parse",
		"Tokens", len(toks),
		"Loops", CountLoops(prog.Root),
		"Depth", MaxDepth(prog.Root),
	)

	return prog
}

func (p *parser) atEnd() bool {
	return p.pos >= len(p.toks)
}

func (p *parser) peek() instr.Opcode {
	if p.atEnd() {
		return instr.None
	}
	return p.toks[p.pos].Op
}

// parseRun collects tokens up to the next bracket. A run that reaches the
// end of input is terminated with the sentinel token.
func (p *parser) parseRun() (Run, bool) {
	start := p.pos
	for !p.atEnd() && !p.toks[p.pos].IsBracket() {
		p.pos++
	}

	if p.pos == start {
		return Run{}, false
	}

	tokens := make([]instr.Token, 0, p.pos-start+1)
	tokens = append(tokens, p.toks[start:p.pos]...)
	if p.atEnd() {
		tokens = append(tokens, instr.NoneToken)
	}

	return Run{Tokens: tokens}, true
}

// parseBlock consumes children until the matching loop end (which it
// also consumes) or the end of input.
func (p *parser) parseBlock(nested bool) Block {
	var b Block

	for !p.atEnd() {
		if run, ok := p.parseRun(); ok {
			b.Children = append(b.Children, run)
		}

		switch p.peek() {
		case instr.LoopStart:
			p.pos++
			body := p.parseBlock(true)
			b.Children = append(b.Children, Loop{Body: body})
		case instr.LoopEnd:
			p.pos++
			if nested {
				return b
			}
		}
	}

	return b
}
