package service

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"docqa/internal/domain"
)

var wordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// lexicalSearch ranks chunks by the Ochiai coefficient between the word sets
// of the query and each chunk. Chunks with no shared word are dropped.
func lexicalSearch(query string, chunks []domain.Chunk, topK int) []domain.SearchResult {
	qset := tokenSet(query)
	out := make([]domain.SearchResult, 0, len(chunks))
	for _, ch := range chunks {
		if score := ochiai(qset, tokenSet(ch.Text)); score > 0 {
			out = append(out, domain.SearchResult{Chunk: ch, Score: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// ochiai returns |A∩B| / sqrt(|A||B|).
func ochiai(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}
