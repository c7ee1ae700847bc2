// Package analyzer turns raw field text into a stream of normalised,
// positioned tokens. An Analyzer is a pipeline of char filters, one
// tokenizer and a chain of token filters; the same Analyzer is used at index
// time and at query time so that both sides agree on every term.
package analyzer

import (
	"iter"
	"slices"

	apperrors "github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/errors"
)

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Analyzer produces tokens for a piece of text. Analyze returns a fresh,
// finite sequence on every call and keeps no state between calls.
type Analyzer interface {
	Name() string
	Analyze(text string) iter.Seq[Token]
}

// CharFilter rewrites the raw text before it is tokenised.
type CharFilter func(text string) string

// Tokenizer splits text into raw words.
type Tokenizer func(text string) iter.Seq[string]

// TokenFilter transforms a single term. Returning false drops the term; the
// position it occupied is still consumed, so phrase offsets survive stop
// word removal.
type TokenFilter func(term string) (string, bool)

// Pipeline is the generic Analyzer implementation.
type Pipeline struct {
	name        string
	charFilters []CharFilter
	tokenizer   Tokenizer
	filters     []TokenFilter
}

// NewPipeline assembles an Analyzer from its stages.
func NewPipeline(name string, tokenizer Tokenizer, charFilters []CharFilter, filters ...TokenFilter) *Pipeline {
	return &Pipeline{
		name:        name,
		charFilters: charFilters,
		tokenizer:   tokenizer,
		filters:     filters,
	}
}

func (p *Pipeline) Name() string {
	return p.name
}

func (p *Pipeline) Analyze(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		s := text
		for _, cf := range p.charFilters {
			s = cf(s)
		}
		pos := 0
		for word := range p.tokenizer(s) {
			term, keep := word, true
			for _, f := range p.filters {
				if term, keep = f(term); !keep {
					break
				}
			}
			if keep && term != "" {
				if !yield(Token{Term: term, Position: pos}) {
					return
				}
			}
			pos++
		}
	}
}

// Collect materialises the token stream of text.
func Collect(a Analyzer, text string) []Token {
	return slices.Collect(a.Analyze(text))
}

// NewWhitespace returns the exact analyzer used for file names: it drops a
// trailing file extension, splits on whitespace and lowercases. No stemming
// and no stop words.
func NewWhitespace() *Pipeline {
	return NewPipeline("whitespace", WhitespaceTokenizer,
		[]CharFilter{TrimExtension},
		Lowercase,
	)
}

// NewItalian returns the linguistic analyzer for Italian text.
func NewItalian() *Pipeline {
	return NewPipeline("italian", WordTokenizer,
		[]CharFilter{NormalizeNFKC},
		Lowercase,
		Elision(italianArticles),
		StopWords(italianStopWords),
		ItalianStem,
	)
}

// NewEnglish returns the linguistic analyzer for English text.
func NewEnglish() *Pipeline {
	return NewPipeline("english", WordTokenizer,
		[]CharFilter{NormalizeNFKC},
		Lowercase,
		StopWords(englishStopWords),
		EnglishStem,
	)
}

// ByName resolves a configured analyzer name.
func ByName(name string) (Analyzer, error) {
	switch name {
	case "whitespace":
		return NewWhitespace(), nil
	case "italian":
		return NewItalian(), nil
	case "english":
		return NewEnglish(), nil
	default:
		return nil, apperrors.Errorf(apperrors.ErrInvalidArgument, "unknown analyzer %q", name)
	}
}
