// Package lexer turns source text into run-length merged instruction
// tokens.
package lexer

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/dust/instr"
	"github.com/sarchlab/dust/util"
)

// Option changes how a Lexer behaves.
type Option func(*Lexer)

// WithFlushTrailing makes the lexer emit the operator still pending at
// end of stream, as if another operator followed it. Without it the
// pending operator is dropped.
func WithFlushTrailing() Option {
	return func(l *Lexer) {
		l.flushTrailing = true
	}
}

// Lexer holds the state of a single scanning pass.
type Lexer struct {
	prev          byte // last recognized operator, 0 before the first one
	amount        int
	flushTrailing bool
	out           []instr.Token
}

// New creates a lexer with the given options.
func New(opts ...Option) *Lexer {
	l := &Lexer{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsOperator reports whether c is one of the eight significant symbols.
func IsOperator(c byte) bool {
	switch c {
	case '>', '<', '+', '-', '[', ']', '.', ',':
		return true
	default:
		return false
	}
}

// Lex reads r to the end and returns its tokens.
func Lex(r io.Reader, opts ...Option) ([]instr.Token, error) {
	l := New(opts...)

	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}

	for {
		c, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("lex: read source: %w", err)
		}
		l.Feed(c)
	}

	return l.Finish(), nil
}

// LexBytes tokenizes an in-memory source.
func LexBytes(src []byte, opts ...Option) []instr.Token {
	toks, _ := Lex(bytes.NewReader(src), opts...)
	return toks
}

// Feed advances the lexer by one source byte.
func (l *Lexer) Feed(c byte) {
	if !IsOperator(c) {
		return
	}

	l.step(c)
	l.prev = c
}

// Finish ends the pass and returns the tokens produced so far.
func (l *Lexer) Finish() []instr.Token {
	if l.flushTrailing && l.prev != 0 {
		// Any operator outside the pending run terminates it. A bracket
		// or I/O operator is emitted unconditionally.
		l.step(0)
		l.prev = 0
	}

	util.Trace("Lex", "Tokens", len(l.out), "Flush", l.flushTrailing)

	out := l.out
	l.out = nil
	return out
}

// step applies the merge table for the pending operator and the incoming
// one. The pending operator is counted in its own direction; an operator
// of the opposite direction keeps the run open rather than ending it.
func (l *Lexer) step(c byte) {
	switch l.prev {
	case '>':
		if c == '>' || c == '<' {
			l.amount++
		} else {
			l.amount++
			l.emit(instr.Move)
		}
	case '<':
		if c == '>' || c == '<' {
			l.amount--
		} else {
			l.amount--
			l.emit(instr.Move)
		}
	case '+':
		if c == '+' || c == '-' {
			l.amount++
		} else {
			l.amount++
			l.emit(instr.Add)
		}
	case '-':
		if c == '+' || c == '-' {
			l.amount--
		} else {
			l.amount--
			l.emit(instr.Add)
		}
	case '[', ']', '.', ',':
		l.amount = 1
		l.emit(opcodeOf(l.prev))
	}
}

func (l *Lexer) emit(op instr.Opcode) {
	l.out = append(l.out, instr.Token{Op: op, Amount: l.amount})
	l.amount = 0
}

func opcodeOf(c byte) instr.Opcode {
	switch c {
	case '[':
		return instr.LoopStart
	case ']':
		return instr.LoopEnd
	case '.':
		return instr.Output
	case ',':
		return instr.Input
	default:
		panic(fmt.Sprintf("lexer: %q has no single-symbol opcode", c))
	}
}
