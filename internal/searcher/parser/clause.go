package parser

import (
	"strconv"
	"strings"
)

// Occur says how a clause of a BooleanClause contributes to a match.
type Occur int

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) prefix() string {
	switch o {
	case Must:
		return "+"
	case MustNot:
		return "-"
	}
	return ""
}

// Clause is one of *TermClause, *PhraseClause or *BooleanClause.
type Clause interface {
	String() string
	clause()
}

// TermClause matches documents containing Term.
type TermClause struct {
	Term string
}

// PhraseClause matches documents where Terms occur at the given positions
// relative to the first term. Gaps left by removed stop words are kept.
type PhraseClause struct {
	Terms     []string
	Positions []int
}

type BooleanItem struct {
	Occur  Occur
	Clause Clause
}

// BooleanClause combines sub-clauses. An empty BooleanClause matches
// nothing.
type BooleanClause struct {
	Clauses []BooleanItem
}

func (*TermClause) clause()    {}
func (*PhraseClause) clause()  {}
func (*BooleanClause) clause() {}

func (c *TermClause) String() string {
	return c.Term
}

func (c *PhraseClause) String() string {
	var b strings.Builder
	b.WriteByte('"')
	for i, term := range c.Terms {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(term)
		b.WriteByte('@')
		b.WriteString(strconv.Itoa(c.Positions[i]))
	}
	b.WriteByte('"')
	return b.String()
}

func (c *BooleanClause) String() string {
	parts := make([]string, len(c.Clauses))
	for i, item := range c.Clauses {
		parts[i] = item.Occur.prefix() + item.Clause.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}
