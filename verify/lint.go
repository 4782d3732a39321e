package verify

import (
	"fmt"
)

type position struct {
	offset, line, column int
}

// run tracks a stretch of same-class operators (moves or adds).
type run struct {
	start    position
	class    byte // '>' for moves, '+' for adds
	pos, neg int
}

// RunLint checks a source text without compiling it. It reports
// unmatched brackets (STRUCT), runs whose symbols cancel each other and
// the final operator that the lexer drops unless trailing flush is on
// (LEX). An empty result means nothing was found.
func RunLint(src []byte) []Issue {
	var (
		issues []Issue
		open   []position
		cur    *run
		last   *position
		lastOp byte
	)

	closeRun := func() {
		if cur == nil {
			return
		}
		if cur.pos > 0 && cur.neg > 0 {
			issues = append(issues, mixedRunIssue(cur))
		}
		cur = nil
	}

	p := position{line: 1, column: 1}
	for i, c := range src {
		p.offset = i

		switch c {
		case '[':
			open = append(open, p)
		case ']':
			if len(open) == 0 {
				issues = append(issues, issueAt(IssueStruct, p,
					"unmatched ']' has no loop to close"))
			} else {
				open = open[:len(open)-1]
			}
		}

		if class := runClass(c); class != 0 {
			if cur == nil || cur.class != class {
				closeRun()
				cur = &run{start: p, class: class}
			}
			if c == '>' || c == '+' {
				cur.pos++
			} else {
				cur.neg++
			}
		} else if isStructural(c) {
			closeRun()
		}

		if runClass(c) != 0 || isStructural(c) {
			at := p
			last = &at
			lastOp = c
		}

		if c == '\n' {
			p.line++
			p.column = 1
		} else {
			p.column++
		}
	}
	closeRun()

	for _, o := range open {
		issues = append(issues, issueAt(IssueStruct, o,
			"unmatched '[' is never closed"))
	}

	if last != nil {
		issue := issueAt(IssueLex, *last, fmt.Sprintf(
			"final operator %q is dropped unless trailing flush is enabled", lastOp))
		issue.Details = map[string]interface{}{"operator": string(lastOp)}
		issues = append(issues, issue)
	}

	return issues
}

func mixedRunIssue(r *run) Issue {
	up, down := '>', '<'
	if r.class == '+' {
		up, down = '+', '-'
	}

	issue := issueAt(IssueLex, r.start, fmt.Sprintf(
		"run mixes %c and %c; they cancel to a net %d", up, down, r.pos-r.neg))
	issue.Details = map[string]interface{}{
		"net":   r.pos - r.neg,
		"count": r.pos + r.neg,
	}

	return issue
}

func issueAt(t IssueType, p position, msg string) Issue {
	return Issue{
		Type:    t,
		Offset:  p.offset,
		Line:    p.line,
		Column:  p.column,
		Message: msg,
	}
}

func runClass(c byte) byte {
	switch c {
	case '>', '<':
		return '>'
	case '+', '-':
		return '+'
	default:
		return 0
	}
}

func isStructural(c byte) bool {
	switch c {
	case '[', ']', '.', ',':
		return true
	default:
		return false
	}
}
