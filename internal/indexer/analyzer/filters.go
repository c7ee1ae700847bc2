package analyzer

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/snowballstem"
	"github.com/blevesearch/snowballstem/italian"
	"github.com/clipperhouse/uax29/v2/words"
	"github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"
)

const maxExtensionLen = 5

// WhitespaceTokenizer splits on Unicode white space only, so punctuation
// stays inside the token.
func WhitespaceTokenizer(text string) iter.Seq[string] {
	return strings.FieldsSeq(text)
}

// WordTokenizer splits on UAX#29 word boundaries and drops segments that
// carry no letter or digit (spaces, punctuation).
func WordTokenizer(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		segments := words.FromString(text)
		for segments.Next() {
			seg := segments.Value()
			if !hasWordRune(seg) {
				continue
			}
			if !yield(seg) {
				return
			}
		}
	}
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// NormalizeNFKC folds compatibility characters (ligatures, full-width
// forms) so that visually identical words index identically.
func NormalizeNFKC(text string) string {
	return norm.NFKC.String(text)
}

// TrimExtension removes a short trailing ".ext" suffix such as ".txt".
// Text without an extension is returned unchanged.
func TrimExtension(text string) string {
	trimmed := strings.TrimRightFunc(text, unicode.IsSpace)
	dot := strings.LastIndexByte(trimmed, '.')
	if dot <= 0 {
		return text
	}
	ext := trimmed[dot+1:]
	if ext == "" || len(ext) > maxExtensionLen {
		return text
	}
	hasLetter := false
	for _, r := range ext {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
		default:
			return text
		}
	}
	if !hasLetter || unicode.IsSpace(rune(trimmed[dot-1])) {
		return text
	}
	return trimmed[:dot]
}

func Lowercase(term string) (string, bool) {
	return strings.ToLower(term), true
}

// StopWords drops every term contained in set.
func StopWords(set map[string]struct{}) TokenFilter {
	return func(term string) (string, bool) {
		if _, isStop := set[term]; isStop {
			return term, false
		}
		return term, true
	}
}

// Elision strips an elided article and its apostrophe, turning "l'amore"
// into "amore". Both the ASCII and the typographic apostrophe are accepted.
func Elision(articles map[string]struct{}) TokenFilter {
	return func(term string) (string, bool) {
		i := strings.IndexAny(term, "'’")
		if i <= 0 {
			return term, true
		}
		if _, ok := articles[term[:i]]; !ok {
			return term, true
		}
		_, size := utf8.DecodeRuneInString(term[i:])
		return term[i+size:], true
	}
}

// ItalianStem reduces a term with the snowball Italian stemmer.
func ItalianStem(term string) (string, bool) {
	env := snowballstem.NewEnv(term)
	italian.Stem(env)
	return env.Current(), true
}

// EnglishStem reduces a term with the snowball English stemmer.
func EnglishStem(term string) (string, bool) {
	return english.Stem(term, false), true
}
