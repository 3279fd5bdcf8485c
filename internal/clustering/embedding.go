package clustering

import (
	"context"
	"fmt"
	"sort"

	"CommentTrends/internal/config"
	"CommentTrends/internal/ports"
)

// Embedding is the dense semantic strategy: sentence embeddings + k-means.
type Embedding struct {
	embedder  ports.Embedder
	batchSize int
	kmeans    KMeans
	stopWords map[string]struct{}
	topTerms  int
}

var _ Strategy = (*Embedding)(nil)

// NewEmbedding builds the dense strategy around an embedding backend.
func NewEmbedding(embedder ports.Embedder, batchSize int, cfg config.ClusteringConfig) *Embedding {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Embedding{
		embedder:  embedder,
		batchSize: batchSize,
		kmeans:    KMeansFromConfig(cfg),
		stopWords: StopWords(cfg.ExtraStopWords),
		topTerms:  cfg.TopTerms,
	}
}

// Name identifies the strategy inside the registry.
func (e *Embedding) Name() string {
	return "embedding"
}

// Cluster embeds docs in batches and partitions the vectors.
func (e *Embedding) Cluster(ctx context.Context, docs []string, nClusters int) (Result, error) {
	if e.embedder == nil {
		return Result{}, fmt.Errorf("embedding backend is not configured")
	}

	rows := make(denseRows, 0, len(docs))
	for start := 0; start < len(docs); start += e.batchSize {
		end := min(start+e.batchSize, len(docs))
		vectors, err := e.embedder.EmbedBatch(ctx, docs[start:end])
		if err != nil {
			return Result{}, fmt.Errorf("embed documents %d-%d: %w", start, end, err)
		}
		if len(vectors) != end-start {
			return Result{}, fmt.Errorf("embed documents %d-%d: got %d vectors", start, end, len(vectors))
		}
		for _, v := range vectors {
			row := make([]float64, len(v))
			for j, x := range v {
				row[j] = float64(x)
			}
			if len(rows) > 0 && len(row) != len(rows[0]) {
				return Result{}, fmt.Errorf("embedding dimension changed from %d to %d", len(rows[0]), len(row))
			}
			rows = append(rows, row)
		}
	}

	fit, err := e.kmeans.Fit(ctx, rows, nClusters)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Assignments: fit.Labels,
		TopTerms:    frequentTerms(docs, fit.Labels, nClusters, e.stopWords, e.topTerms),
		Inertia:     fit.Inertia,
	}, nil
}

// frequentTerms ranks non-stop-word tokens by frequency inside each cluster.
func frequentTerms(docs []string, labels []int, k int, stop map[string]struct{}, n int) [][]string {
	counts := make([]map[string]int, k)
	for c := range counts {
		counts[c] = map[string]int{}
	}
	for i, doc := range docs {
		for _, tok := range Tokenize(doc, stop) {
			counts[labels[i]][tok]++
		}
	}

	out := make([][]string, k)
	for c, tc := range counts {
		terms := make([]string, 0, len(tc))
		for term := range tc {
			terms = append(terms, term)
		}
		sort.Slice(terms, func(a, b int) bool {
			if tc[terms[a]] != tc[terms[b]] {
				return tc[terms[a]] > tc[terms[b]]
			}
			return terms[a] < terms[b]
		})
		if n > 0 && len(terms) > n {
			terms = terms[:n]
		}
		out[c] = terms
	}
	return out
}
