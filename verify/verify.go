// Package verify holds debugging aids that sit beside the compiler.
//
// It has two independent checks:
//
//  1. Lint (lint.go) scans the raw source for unbalanced brackets and for
//     runs the lexer treats in a way the author may not expect.
//  2. The functional simulator (funcsim.go) interprets the parsed tree
//     directly, without going through codegen, so its output can be
//     compared with a run of the generated code on the emu machine.
//
// GenerateReport runs both and the emu machine on the same input.
package verify

import "errors"

type IssueType string

const (
	IssueStruct IssueType = "STRUCT" // bracket structure
	IssueLex    IssueType = "LEX"    // run merging and trailing operators
)

// Issue is a single lint finding.
type Issue struct {
	Type    IssueType
	Offset  int // byte offset in the source
	Line    int // 1-based
	Column  int // 1-based
	Message string
	Details map[string]interface{}
}

// ErrStepLimit is returned when the functional simulator runs out of
// steps.
var ErrStepLimit = errors.New("step limit reached")
