package domain

import (
	"fmt"
	"time"
)

// ClusterSummary is the human-labeling diagnostic for a single cluster.
type ClusterSummary struct {
	ID       int      `yaml:"id" json:"id"`
	Label    string   `yaml:"label" json:"label"`
	Size     int      `yaml:"size" json:"size"`
	TopTerms []string `yaml:"top_terms,omitempty" json:"top_terms"`
	Examples []string `yaml:"examples,omitempty" json:"examples"`
}

// Run describes one clustering run. Its labels only apply to snapshots
// written with the same RunID.
type Run struct {
	ID           string           `yaml:"run_id" json:"run_id"`
	CreatedAt    time.Time        `yaml:"created_at" json:"created_at"`
	Strategy     string           `yaml:"strategy" json:"strategy"`
	NClusters    int              `yaml:"n_clusters" json:"n_clusters"`
	CommentCount int              `yaml:"comment_count" json:"comment_count"`
	SnapshotPath string           `yaml:"snapshot_path" json:"snapshot_path"`
	Clusters     []ClusterSummary `yaml:"clusters" json:"clusters"`
}

// Labels returns the cluster id to display name table for the run.
// Clusters without a curated label get a positional default.
func (r Run) Labels() map[int]string {
	labels := make(map[int]string, r.NClusters)
	for id := 0; id < r.NClusters; id++ {
		labels[id] = DefaultLabel(id)
	}
	for _, c := range r.Clusters {
		if c.Label != "" {
			labels[c.ID] = c.Label
		}
	}
	return labels
}

// DefaultLabel names a cluster that has not been labeled by a human.
func DefaultLabel(id int) string {
	return fmt.Sprintf("Topic %d", id)
}

// TrendPoint is a comment count for one (bucket, topic) pair.
type TrendPoint struct {
	Bucket time.Time `json:"date"`
	Topic  string    `json:"topic_label"`
	Count  int       `json:"comment_count"`
}
