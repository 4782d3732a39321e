// Package program holds the structured form of a source program: a tree
// of blocks, straight-line runs and loops.
//
//	Program
//	  └── Block
//	      ├── Run  (tokens without brackets)
//	      └── Loop
//	          └── Block (body, same shape)
//
// Every node is owned by exactly one parent and is never changed after the
// parser builds it.
package program

import "github.com/sarchlab/dust/instr"

// Node is a child of a Block. It is either a Run or a Loop.
type Node interface {
	isNode()
}

// Run is straight-line code. It never contains loop brackets.
type Run struct {
	Tokens []instr.Token
}

// Loop repeats its body while the current cell is nonzero.
type Loop struct {
	Body Block
}

func (Run) isNode()  {}
func (Loop) isNode() {}

// Block is an ordered list of runs and loops, in source order.
type Block struct {
	Children []Node
}

// Program is the root of the tree.
type Program struct {
	Root Block
}

// Walk visits every node of b depth-first in execution order. depth is 0
// for the direct children of b.
func Walk(b Block, visit func(n Node, depth int)) {
	walk(b, 0, visit)
}

func walk(b Block, depth int, visit func(n Node, depth int)) {
	for _, child := range b.Children {
		visit(child, depth)
		if loop, ok := child.(Loop); ok {
			walk(loop.Body, depth+1, visit)
		}
	}
}

// CountLoops returns the number of loops anywhere under b.
func CountLoops(b Block) int {
	n := 0
	Walk(b, func(node Node, _ int) {
		if _, ok := node.(Loop); ok {
			n++
		}
	})
	return n
}

// MaxDepth returns the deepest loop nesting under b. A block without loops
// has depth 0.
func MaxDepth(b Block) int {
	deepest := 0
	Walk(b, func(node Node, depth int) {
		if _, ok := node.(Loop); ok && depth+1 > deepest {
			deepest = depth + 1
		}
	})
	return deepest
}

// Flatten turns b back into a token sequence, re-inserting the loop
// brackets. The end-of-stream sentinel is left out.
func Flatten(b Block) []instr.Token {
	var out []instr.Token
	for _, child := range b.Children {
		switch n := child.(type) {
		case Run:
			for _, t := range n.Tokens {
				if t.Op != instr.None {
					out = append(out, t)
				}
			}
		case Loop:
			out = append(out, instr.Token{Op: instr.LoopStart, Amount: 1})
			out = append(out, Flatten(n.Body)...)
			out = append(out, instr.Token{Op: instr.LoopEnd, Amount: 1})
		}
	}
	return out
}
