// Package instr defines the instruction tokens that flow between the
// lexer, the peephole optimizer and the parser.
package instr

import "fmt"

// Opcode identifies the kind of a token.
type Opcode int

const (
	// None marks a run that trails off at the end of the token stream. It
	// carries no semantics and is never lowered.
	None Opcode = iota
	Move
	Add
	Clear
	Input
	Output
	LoopStart
	LoopEnd
)

var opcodeSymbols = map[Opcode]string{
	None:      "_",
	Move:      ">",
	Add:       "+",
	Clear:     "0",
	Input:     ",",
	Output:    ".",
	LoopStart: "[",
	LoopEnd:   "]",
}

var opcodeNames = map[Opcode]string{
	None:      "none",
	Move:      "move",
	Add:       "add",
	Clear:     "clear",
	Input:     "input",
	Output:    "output",
	LoopStart: "loop-start",
	LoopEnd:   "loop-end",
}

// Symbol returns the one-character form of the opcode.
func (o Opcode) Symbol() string {
	if s, ok := opcodeSymbols[o]; ok {
		return s
	}
	return "?"
}

func (o Opcode) String() string {
	if s, ok := opcodeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("opcode(%d)", int(o))
}

// Token is a single instruction. Amount is the net displacement for Move
// and the net delta for Add; every other opcode carries 1.
type Token struct {
	Op     Opcode
	Amount int
}

// NoneToken is the end-of-stream sentinel appended by the parser.
var NoneToken = Token{Op: None, Amount: 0}

// IsBracket reports whether the token opens or closes a loop.
func (t Token) IsBracket() bool {
	return t.Op == LoopStart || t.Op == LoopEnd
}

// HasAmount reports whether Amount is meaningful for the token.
func (t Token) HasAmount() bool {
	return t.Op == Move || t.Op == Add
}

func (t Token) String() string {
	if t.HasAmount() {
		return fmt.Sprintf("%s%d", t.Op.Symbol(), t.Amount)
	}
	return t.Op.Symbol()
}
