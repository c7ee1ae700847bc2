// Package ranker scores matches with TF-IDF and orders them.
package ranker

import "math"

// DefaultPhraseBonus multiplies the summed term scores of a phrase match.
const DefaultPhraseBonus = 2.0

type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Score float64 `json:"score"`
}

// TermScore is the contribution of one term to one document:
// (1 + ln tf) * ln(N / df). It is zero when the term is absent from the
// document or occurs in every document.
func TermScore(termFreq, docFreq, totalDocs int) float64 {
	if termFreq <= 0 || docFreq <= 0 || totalDocs <= 0 {
		return 0
	}
	return (1 + math.Log(float64(termFreq))) * computeIDF(totalDocs, docFreq)
}

func computeIDF(totalDocs, docFreq int) float64 {
	return math.Log(float64(totalDocs) / float64(docFreq))
}

// Before reports whether a ranks ahead of b: higher score first, lower
// document id on ties.
func Before(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}
