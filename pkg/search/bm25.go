package search

import "math"

// BM25 parameters. K controls term frequency saturation, B the strength of
// field length normalization and D the lower bound added to the frequency
// component of any matching term.
const (
	K = 1.2
	B = 0.7
	D = 0.5
)

// BM25 scores a term occurring termFreq times in a field of fieldLength
// terms, given the number of documents containing the term in that field,
// the total number of documents and the average field length.
func BM25(termFreq, matchingCount, totalCount, fieldLength int, avgFieldLength float64) float64 {
	n := float64(matchingCount)
	idf := math.Log(1 + (float64(totalCount)-n+0.5)/(n+0.5))

	norm := 1 - B
	if avgFieldLength > 0 {
		norm += B * float64(fieldLength) / avgFieldLength
	}
	tf := float64(termFreq)
	return idf * (D + tf*(K+1)/(tf+K*norm))
}
