package vectorsearch

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

type sparseVec = map[int]float64

// lexicalIndex is a TF-IDF index over item text. It answers searches when
// the query cannot be embedded.
type lexicalIndex struct {
	vocab map[string]int
	idf   []float64
	docs  []sparseVec
}

type lexicalHit struct {
	index int
	score float64
}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	var tokens []string
	var cur strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}

func buildLexicalIndex(texts []string) *lexicalIndex {
	vocab := make(map[string]int)
	for _, text := range texts {
		for _, tok := range tokenize(text) {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}

	df := make([]int, len(vocab))
	docs := make([]sparseVec, len(texts))
	for i, text := range texts {
		tf := make(map[int]int)
		for _, tok := range tokenize(text) {
			tf[vocab[tok]]++
		}
		vec := make(sparseVec, len(tf))
		for idx, count := range tf {
			vec[idx] = float64(count)
			df[idx]++
		}
		docs[i] = vec
	}

	n := float64(len(texts))
	idf := make([]float64, len(vocab))
	for i, d := range df {
		if d > 0 {
			idf[i] = math.Log(n/float64(d)) + 1.0
		}
	}
	for _, vec := range docs {
		for idx := range vec {
			vec[idx] *= idf[idx]
		}
	}
	return &lexicalIndex{vocab: vocab, idf: idf, docs: docs}
}

func (idx *lexicalIndex) queryVec(query string) sparseVec {
	tf := make(map[int]int)
	for _, tok := range tokenize(query) {
		if i, ok := idx.vocab[tok]; ok {
			tf[i]++
		}
	}
	vec := make(sparseVec, len(tf))
	for i, count := range tf {
		vec[i] = float64(count) * idx.idf[i]
	}
	return vec
}

// search returns up to k documents with a positive score, best first. Ties
// keep index order.
func (idx *lexicalIndex) search(query string, k int) []lexicalHit {
	if len(idx.docs) == 0 || k <= 0 {
		return nil
	}
	qvec := idx.queryVec(query)
	if len(qvec) == 0 {
		return nil
	}
	var hits []lexicalHit
	for i, dvec := range idx.docs {
		if sim := cosineSim(qvec, dvec); sim > 0 {
			hits = append(hits, lexicalHit{index: i, score: sim})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func cosineSim(a, b sparseVec) float64 {
	var dot, normA, normB float64
	for i, va := range a {
		if vb, ok := b[i]; ok {
			dot += va * vb
		}
		normA += va * va
	}
	for _, vb := range b {
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
