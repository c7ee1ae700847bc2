// Package parser turns console/API query text into a Query tree.
//
// The grammar is "<selector> <expression>". The selector picks a field (and
// with it an index and an analyzer); the expression is a list of
// whitespace-separated chunks, each a bare word or a "quoted phrase",
// optionally prefixed with + (required) or - (prohibited).
package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/indexer/analyzer"
	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

// FieldSpec binds a selector to the field it searches, the index holding
// that field, and the analyzer the field was indexed with.
type FieldSpec struct {
	Field    string
	Index    string
	Analyzer analyzer.Analyzer
}

// Fields maps lower-case selectors to their field specs.
type Fields map[string]FieldSpec

// Query is a parsed query. Root is never nil; a query whose chunks all
// analysed to nothing has an empty BooleanClause root and matches nothing.
type Query struct {
	Selector string
	Field    string
	Index    string
	Root     Clause
	Raw      string
}

func (q *Query) String() string {
	return q.Index + "/" + q.Field + ":" + q.Root.String()
}

type chunk struct {
	text   string
	phrase bool
	occur  Occur
}

// Parse parses queryText against the selectors in fields.
func Parse(queryText string, fields Fields) (*Query, error) {
	text := strings.TrimLeftFunc(queryText, unicode.IsSpace)
	split := strings.IndexFunc(text, unicode.IsSpace)
	if split < 0 {
		return nil, apperrors.Errorf(apperrors.ErrInvalidQuerySyntax, "expected \"<field> <terms>\", got %q", queryText)
	}
	selector := text[:split]
	expr := strings.TrimSpace(text[split:])
	if expr == "" {
		return nil, apperrors.Errorf(apperrors.ErrInvalidQuerySyntax, "no search terms after %q", selector)
	}
	spec, ok := fields[strings.ToLower(selector)]
	if !ok {
		return nil, apperrors.Errorf(apperrors.ErrUnknownField, "%q", selector)
	}

	chunks, err := splitChunks(expr)
	if err != nil {
		return nil, err
	}

	root := &BooleanClause{}
	for _, c := range chunks {
		clause := analyzeChunk(spec.Analyzer, c)
		if clause == nil {
			continue
		}
		root.Clauses = append(root.Clauses, BooleanItem{Occur: c.occur, Clause: clause})
	}

	q := &Query{
		Selector: strings.ToLower(selector),
		Field:    spec.Field,
		Index:    spec.Index,
		Root:     root,
		Raw:      queryText,
	}
	if len(root.Clauses) == 1 && root.Clauses[0].Occur == Should {
		q.Root = root.Clauses[0].Clause
	}
	return q, nil
}

// splitChunks breaks the expression into words and quoted phrases.
func splitChunks(expr string) ([]chunk, error) {
	var chunks []chunk
	i := 0
	for i < len(expr) {
		r, size := utf8.DecodeRuneInString(expr[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}

		c := chunk{occur: Should}
		switch expr[i] {
		case '+':
			c.occur = Must
			i++
		case '-':
			c.occur = MustNot
			i++
		}
		if c.occur != Should {
			next, _ := utf8.DecodeRuneInString(expr[i:])
			if i >= len(expr) || unicode.IsSpace(next) {
				return nil, apperrors.Errorf(apperrors.ErrInvalidQuerySyntax, "operator %q must precede a term", expr[i-1:i])
			}
		}

		if expr[i] == '"' {
			end := strings.IndexByte(expr[i+1:], '"')
			if end < 0 {
				return nil, apperrors.Errorf(apperrors.ErrInvalidQuerySyntax, "unterminated phrase %s", expr[i:])
			}
			c.text = expr[i+1 : i+1+end]
			c.phrase = true
			i += end + 2
		} else {
			// A quote ends a bare word and opens a phrase, so an unbalanced
			// quote anywhere in the expression is reported as unterminated.
			end := strings.IndexFunc(expr[i:], func(r rune) bool { return r == '"' || unicode.IsSpace(r) })
			if end < 0 {
				end = len(expr) - i
			}
			c.text = expr[i : i+end]
			i += end
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

func analyzeChunk(a analyzer.Analyzer, c chunk) Clause {
	tokens := analyzer.Collect(a, c.text)
	switch {
	case len(tokens) == 0:
		return nil
	case len(tokens) == 1:
		return &TermClause{Term: tokens[0].Term}
	case c.phrase:
		p := &PhraseClause{}
		base := tokens[0].Position
		for _, t := range tokens {
			p.Terms = append(p.Terms, t.Term)
			p.Positions = append(p.Positions, t.Position-base)
		}
		return p
	default:
		or := &BooleanClause{}
		for _, t := range tokens {
			or.Clauses = append(or.Clauses, BooleanItem{Occur: Should, Clause: &TermClause{Term: t.Term}})
		}
		return or
	}
}
