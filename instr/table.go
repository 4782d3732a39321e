package instr

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// WriteTable renders the token sequence as a table, one row per token.
func WriteTable(w io.Writer, toks []Token) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Tokens (%d)", len(toks))
	t.AppendHeader(table.Row{"#", "Op", "Symbol", "Amount"})

	for i, tok := range toks {
		amount := interface{}("")
		if tok.HasAmount() {
			amount = tok.Amount
		}
		t.AppendRow(table.Row{i, tok.Op, tok.Op.Symbol(), amount})
	}

	t.Render()
}
