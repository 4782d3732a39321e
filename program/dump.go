package program

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/list"
)

// Dump prints the tree in an indented, human-readable form. It is a
// debugging aid; the format is not stable.
func Dump(w io.Writer, p *Program) {
	l := list.NewWriter()
	l.SetOutputMirror(w)
	l.SetStyle(list.StyleConnectedRounded)

	l.AppendItem("program")
	l.Indent()
	dumpBlock(l, p.Root)
	l.UnIndent()

	l.Render()
}

func dumpBlock(l list.Writer, b Block) {
	for _, child := range b.Children {
		switch n := child.(type) {
		case Run:
			l.AppendItem(runLabel(n))
		case Loop:
			l.AppendItem(fmt.Sprintf("loop (%d children)", len(n.Body.Children)))
			l.Indent()
			dumpBlock(l, n.Body)
			l.UnIndent()
		}
	}
}

func runLabel(r Run) string {
	parts := make([]string, 0, len(r.Tokens))
	for _, t := range r.Tokens {
		parts = append(parts, t.String())
	}
	return "run " + strings.Join(parts, " ")
}
