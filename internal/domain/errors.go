package domain

import (
	"errors"
	"fmt"
)

// ErrSnapshotNotFound is returned when no clustered snapshot has been written yet.
var ErrSnapshotNotFound = errors.New("comment snapshot not found; run a refresh to initialize the dataset")

// ConfigurationError reports a missing or invalid setting. It is fatal.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Field, e.Reason)
}

// UpstreamError reports a failed call to the video platform API.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("upstream %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// InsufficientDataError reports a corpus too small or too homogeneous to cluster.
type InsufficientDataError struct {
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s (lower n_clusters or relax document-frequency thresholds)", e.Reason)
}

// EmptyResultError reports that no video matched the title filter.
type EmptyResultError struct {
	Keyword string
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("no videos matching %q found", e.Keyword)
}
