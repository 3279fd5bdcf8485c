package clustering

import (
	"strings"
	"unicode/utf8"

	"CommentTrends/internal/domain"
)

const exampleRunes = 200

// Summarize builds the per-cluster labeling diagnostic: size, top terms
// and the first few raw comments of each cluster.
func Summarize(raw []string, result Result, nClusters, examples int) []domain.ClusterSummary {
	summaries := make([]domain.ClusterSummary, nClusters)
	for c := range summaries {
		summaries[c].ID = c
		if c < len(result.TopTerms) {
			summaries[c].TopTerms = result.TopTerms[c]
		}
	}

	for i, label := range result.Assignments {
		if label < 0 || label >= nClusters {
			continue
		}
		s := &summaries[label]
		s.Size++
		if len(s.Examples) < examples && i < len(raw) {
			s.Examples = append(s.Examples, truncate(raw[i], exampleRunes))
		}
	}
	return summaries
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
