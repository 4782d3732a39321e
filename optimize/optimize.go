// Package optimize implements the single peephole rewrite applied to the
// token stream: "[-]" becomes a clear-cell instruction.
package optimize

import (
	"github.com/sarchlab/dust/instr"
	"github.com/sarchlab/dust/util"
)

// Stats counts the rewrites made by one pass.
type Stats struct {
	Cleared int // idioms replaced by a Clear token
	Dropped int // idioms removed because no cell was modified yet
}

// Optimize returns a new token sequence with every clear-cell idiom
// collapsed. The input slice is not modified.
func Optimize(toks []instr.Token) []instr.Token {
	out, _ := OptimizeWithStats(toks)
	return out
}

// OptimizeWithStats is Optimize that also reports what it rewrote.
func OptimizeWithStats(toks []instr.Token) ([]instr.Token, Stats) {
	var (
		out         = make([]instr.Token, 0, len(toks))
		stats       Stats
		cellTouched bool
	)

	for i := 0; i < len(toks); i++ {
		if isClearIdiom(toks, i) {
			// Before any add every cell is still zero, so the loop
			// never runs.
			if cellTouched {
				out = append(out, instr.Token{Op: instr.Clear, Amount: 1})
				stats.Cleared++
			} else {
				stats.Dropped++
			}
			i += 2
		} else {
			out = append(out, toks[i])
		}

		if toks[i].Op == instr.Add {
			cellTouched = true
		}
	}

	util.Trace("Optimize",
		"In", len(toks),
		"Out", len(out),
		"Cleared", stats.Cleared,
		"Dropped", stats.Dropped,
	)

	return out, stats
}

func isClearIdiom(toks []instr.Token, i int) bool {
	if i+2 >= len(toks) {
		return false
	}

	return toks[i].Op == instr.LoopStart &&
		toks[i+1] == instr.Token{Op: instr.Add, Amount: -1} &&
		toks[i+2].Op == instr.LoopEnd
}
