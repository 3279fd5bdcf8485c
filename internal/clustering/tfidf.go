package clustering

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"

	"CommentTrends/internal/config"
	"CommentTrends/internal/domain"
)

var tokenExpr = regexp.MustCompile(`[\p{L}\p{M}\p{N}_]{2,}`)

// Vectorizer builds L2-normalized TF-IDF rows over a corpus.
type Vectorizer struct {
	MaxDocumentFrequencyRatio float64
	MinDocumentFrequencyCount int
	StopWords                 map[string]struct{}
}

// Matrix is a fitted TF-IDF representation of a corpus.
type Matrix struct {
	Vocabulary []string
	Rows       sparseRows
}

// Tokenize splits cleaned text into vocabulary candidates, dropping stop words.
func Tokenize(text string, stop map[string]struct{}) []string {
	raw := tokenExpr.FindAllString(text, -1)
	tokens := raw[:0]
	for _, tok := range raw {
		if _, skip := stop[tok]; skip {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Fit computes document frequencies, prunes the vocabulary and weights every document.
func (v Vectorizer) Fit(docs []string) (Matrix, error) {
	n := len(docs)
	if n == 0 {
		return Matrix{}, &domain.InsufficientDataError{Reason: "no documents to vectorize"}
	}

	maxDocs := v.MaxDocumentFrequencyRatio * float64(n)
	if maxDocs < float64(v.MinDocumentFrequencyCount) {
		return Matrix{}, &domain.InsufficientDataError{
			Reason: fmt.Sprintf("max_document_frequency_ratio allows %.1f documents, fewer than min_document_frequency_count %d", maxDocs, v.MinDocumentFrequencyCount),
		}
	}

	counts := make([]map[string]int, n)
	df := map[string]int{}
	for i, doc := range docs {
		tf := map[string]int{}
		for _, tok := range Tokenize(doc, v.StopWords) {
			tf[tok]++
		}
		for term := range tf {
			df[term]++
		}
		counts[i] = tf
	}

	vocab := make([]string, 0, len(df))
	for term, d := range df {
		if float64(d) > maxDocs || d < v.MinDocumentFrequencyCount {
			continue
		}
		vocab = append(vocab, term)
	}
	if len(vocab) == 0 {
		return Matrix{}, &domain.InsufficientDataError{Reason: fmt.Sprintf("no terms remain after pruning %d documents", n)}
	}
	sort.Strings(vocab)

	index := make(map[string]int, len(vocab))
	idf := make([]float64, len(vocab))
	for i, term := range vocab {
		index[term] = i
		idf[i] = math.Log(float64(1+n)/float64(1+df[term])) + 1
	}

	rows := sparseRows{dim: len(vocab), rows: make([]sparseVec, n)}
	for i, tf := range counts {
		var vec sparseVec
		for term, c := range tf {
			j, ok := index[term]
			if !ok {
				continue
			}
			vec.idx = append(vec.idx, j)
			vec.val = append(vec.val, float64(c)*idf[j])
		}
		vec.sortByIndex()
		vec.normalize()
		rows.rows[i] = vec
	}

	return Matrix{Vocabulary: vocab, Rows: rows}, nil
}

// TFIDF is the sparse lexical strategy.
type TFIDF struct {
	vectorizer Vectorizer
	kmeans     KMeans
	topTerms   int
}

var _ Strategy = (*TFIDF)(nil)

// NewTFIDF builds the lexical strategy from clustering settings.
func NewTFIDF(cfg config.ClusteringConfig) *TFIDF {
	return &TFIDF{
		vectorizer: Vectorizer{
			MaxDocumentFrequencyRatio: cfg.MaxDocumentFrequencyRatio,
			MinDocumentFrequencyCount: cfg.MinDocumentFrequencyCount,
			StopWords:                 StopWords(cfg.ExtraStopWords),
		},
		kmeans:   KMeansFromConfig(cfg),
		topTerms: cfg.TopTerms,
	}
}

// Name identifies the strategy inside the registry.
func (t *TFIDF) Name() string {
	return "tfidf"
}

// Cluster vectorizes docs and partitions them with k-means.
func (t *TFIDF) Cluster(ctx context.Context, docs []string, nClusters int) (Result, error) {
	matrix, err := t.vectorizer.Fit(docs)
	if err != nil {
		return Result{}, err
	}

	fit, err := t.kmeans.Fit(ctx, matrix.Rows, nClusters)
	if err != nil {
		return Result{}, err
	}

	top := make([][]string, nClusters)
	for c, centroid := range fit.Centroids {
		top[c] = topDimensions(centroid, matrix.Vocabulary, t.topTerms)
	}

	return Result{Assignments: fit.Labels, TopTerms: top, Inertia: fit.Inertia}, nil
}

func topDimensions(centroid []float64, vocab []string, n int) []string {
	order := make([]int, len(centroid))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return centroid[order[a]] > centroid[order[b]]
	})

	if n <= 0 || n > len(order) {
		n = len(order)
	}
	terms := make([]string, 0, n)
	for _, j := range order[:n] {
		if centroid[j] <= 0 {
			break
		}
		terms = append(terms, vocab[j])
	}
	return terms
}
