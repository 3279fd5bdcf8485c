package domain

import "time"

// NoCluster marks a comment that has not been assigned to a cluster yet.
const NoCluster = -1

// Video is a channel upload considered for comment collection.
type Video struct {
	ID          string
	Title       string
	PublishedAt time.Time
}

// Comment is a single top-level comment with engagement metadata.
type Comment struct {
	VideoID     string
	Text        string
	LikeCount   int
	PublishedAt time.Time
	ReplyCount  int

	// Filled by the clustering stage.
	CleanText string
	Cluster   int
	RunID     string
}

// Clustered reports whether the comment carries a cluster assignment.
func (c Comment) Clustered() bool {
	return c.Cluster >= 0
}

// VideoPage is one page of the uploads playlist listing.
type VideoPage struct {
	Videos        []Video
	NextPageToken string
}

// CommentPage is one page of top-level comment threads for a video.
type CommentPage struct {
	Comments      []Comment
	NextPageToken string
}

// Snapshot is the persisted, clustered comment table.
type Snapshot struct {
	Path     string
	RunID    string
	ModTime  time.Time
	Comments []Comment
}

// DateRange returns the earliest and latest publish dates in the snapshot.
func (s Snapshot) DateRange() (time.Time, time.Time, bool) {
	var minT, maxT time.Time
	found := false
	for _, c := range s.Comments {
		if c.PublishedAt.IsZero() {
			continue
		}
		if !found || c.PublishedAt.Before(minT) {
			minT = c.PublishedAt
		}
		if !found || c.PublishedAt.After(maxT) {
			maxT = c.PublishedAt
		}
		found = true
	}
	return minT, maxT, found
}
