// Package lexical is the key-free fallback matcher: a TF-IDF index over
// unigrams and bigrams with cosine ranking.
package lexical

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/efebarandurmaz/riskmap/internal/corpus"
)

// MaxFeatures caps the vocabulary size.
const MaxFeatures = 10000

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Hit is one ranked document.
type Hit struct {
	ID    string
	Name  string
	Score float64
}

type sparse map[int]float64

// Index is an immutable TF-IDF model fitted to a corpus.
type Index struct {
	docs  corpus.Corpus
	vocab map[string]int
	idf   []float64
	vecs  []sparse
}

// Tokenize lowercases text, extracts tokens of two or more word characters,
// drops English stop words and appends adjacent bigrams.
func Tokenize(text string) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(text), -1)
	words := raw[:0]
	for _, w := range raw {
		if _, stop := englishStopWords[w]; !stop {
			words = append(words, w)
		}
	}
	terms := make([]string, 0, 2*len(words))
	terms = append(terms, words...)
	for i := 1; i < len(words); i++ {
		terms = append(terms, words[i-1]+" "+words[i])
	}
	return terms
}

// Build fits the vocabulary and vectorises docs.
func Build(docs corpus.Corpus) *Index {
	idx := &Index{docs: docs, vocab: map[string]int{}}
	if len(docs) == 0 {
		return idx
	}

	counts := make([]map[string]int, len(docs))
	total := map[string]int{}
	df := map[string]int{}
	for i, d := range docs {
		c := map[string]int{}
		for _, t := range Tokenize(d.Text) {
			c[t]++
		}
		for t, n := range c {
			total[t] += n
			df[t]++
		}
		counts[i] = c
	}

	terms := make([]string, 0, len(total))
	for t := range total {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if total[terms[i]] != total[terms[j]] {
			return total[terms[i]] > total[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > MaxFeatures {
		terms = terms[:MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	idx.idf = make([]float64, len(terms))
	for i, t := range terms {
		idx.vocab[t] = i
		idx.idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}

	idx.vecs = make([]sparse, len(docs))
	for i, c := range counts {
		idx.vecs[i] = idx.weigh(c)
	}
	return idx
}

// weigh applies raw count times IDF and L2-normalises. Out-of-vocabulary
// terms are ignored.
func (x *Index) weigh(counts map[string]int) sparse {
	v := sparse{}
	var norm float64
	for t, c := range counts {
		j, ok := x.vocab[t]
		if !ok {
			continue
		}
		w := float64(c) * x.idf[j]
		v[j] = w
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for j := range v {
			v[j] /= norm
		}
	}
	return v
}

// Len is the number of indexed documents.
func (x *Index) Len() int { return len(x.docs) }

// VocabularySize is the number of fitted terms.
func (x *Index) VocabularySize() int { return len(x.idf) }

// Query ranks every document against text and returns the top k, stable on
// corpus order for equal scores.
func (x *Index) Query(text string, k int) []Hit {
	if len(x.docs) == 0 || k <= 0 {
		return []Hit{}
	}
	counts := map[string]int{}
	for _, t := range Tokenize(text) {
		counts[t]++
	}
	q := x.weigh(counts)

	hits := make([]Hit, len(x.docs))
	for i, d := range x.docs {
		hits[i] = Hit{ID: d.ID, Name: d.Name, Score: dot(q, x.vecs[i])}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits
}

func dot(a, b sparse) float64 {
	if len(a) > len(b) {
		a, b = b, a
	}
	var s float64
	for j, w := range a {
		s += w * b[j]
	}
	return s
}
