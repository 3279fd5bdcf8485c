package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"CommentTrends/internal/domain"
	"CommentTrends/internal/ports"
)

const (
	colVideoID    = "video_id"
	colComment    = "comment"
	colLikeCount  = "like_count"
	colPublished  = "publishedAt"
	colReplyCount = "reply_count"
	colCluster    = "cluster"
	colClean      = "clean_comment"
	colRunID      = "run_id"
)

var (
	rawHeader      = []string{colVideoID, colComment, colLikeCount, colPublished, colReplyCount}
	snapshotHeader = []string{colVideoID, colComment, colLikeCount, colPublished, colReplyCount, colCluster, colClean, colRunID}
)

// CSVRepository persists the raw cache and the clustered snapshot as flat CSV files.
type CSVRepository struct {
	rawPath      string
	snapshotPath string
}

var _ ports.CommentRepository = (*CSVRepository)(nil)

// NewCSVRepository wires the two file locations.
func NewCSVRepository(rawPath, snapshotPath string) *CSVRepository {
	return &CSVRepository{rawPath: rawPath, snapshotPath: snapshotPath}
}

// SnapshotPath is where SaveSnapshot writes.
func (r *CSVRepository) SnapshotPath() string {
	return r.snapshotPath
}

// RawCacheExists reports whether a raw cache file is present.
func (r *CSVRepository) RawCacheExists() bool {
	if r.rawPath == "" {
		return false
	}
	info, err := os.Stat(r.rawPath)
	return err == nil && !info.IsDir()
}

// LoadRaw reads the raw cache verbatim.
func (r *CSVRepository) LoadRaw(ctx context.Context) ([]domain.Comment, error) {
	comments, err := readComments(ctx, r.rawPath)
	if err != nil {
		return nil, fmt.Errorf("load raw cache: %w", err)
	}
	return comments, nil
}

// SaveRaw writes the unclustered table.
func (r *CSVRepository) SaveRaw(ctx context.Context, comments []domain.Comment) error {
	if r.rawPath == "" {
		return nil
	}
	if err := writeAtomic(r.rawPath, func(w *csv.Writer) error {
		return writeRows(ctx, w, rawHeader, comments)
	}); err != nil {
		return fmt.Errorf("save raw cache: %w", err)
	}
	return nil
}

// SaveSnapshot writes the clustered table and returns its path.
func (r *CSVRepository) SaveSnapshot(ctx context.Context, comments []domain.Comment) (string, error) {
	if err := writeAtomic(r.snapshotPath, func(w *csv.Writer) error {
		return writeRows(ctx, w, snapshotHeader, comments)
	}); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	return r.snapshotPath, nil
}

// LoadSnapshot reads a clustered table. A missing file is ErrSnapshotNotFound.
func (r *CSVRepository) LoadSnapshot(ctx context.Context, path string) (domain.Snapshot, error) {
	if path == "" {
		path = r.snapshotPath
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Snapshot{}, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("stat snapshot: %w", err)
	}

	comments, err := readComments(ctx, path)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	snap := domain.Snapshot{Path: path, ModTime: info.ModTime(), Comments: comments}
	for _, c := range comments {
		if c.RunID != "" {
			snap.RunID = c.RunID
			break
		}
	}
	return snap, nil
}

func writeRows(ctx context.Context, w *csv.Writer, header []string, comments []domain.Comment) error {
	if err := w.Write(header); err != nil {
		return err
	}
	withCluster := len(header) > len(rawHeader)

	for i, c := range comments {
		if i%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		row := []string{
			c.VideoID,
			c.Text,
			strconv.Itoa(c.LikeCount),
			formatTime(c.PublishedAt),
			strconv.Itoa(c.ReplyCount),
		}
		if withCluster {
			cluster := ""
			if c.Clustered() {
				cluster = strconv.Itoa(c.Cluster)
			}
			row = append(row, cluster, c.CleanText, c.RunID)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func readComments(ctx context.Context, path string) ([]domain.Comment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, required := range []string{colVideoID, colComment, colPublished} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, required)
		}
	}

	get := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var comments []domain.Comment
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		c := domain.Comment{
			VideoID:   get(record, colVideoID),
			Text:      get(record, colComment),
			CleanText: get(record, colClean),
			RunID:     get(record, colRunID),
			Cluster:   domain.NoCluster,
		}
		if c.LikeCount, err = parseCount(get(record, colLikeCount)); err != nil {
			return nil, fmt.Errorf("%s line %d: like_count: %w", path, line, err)
		}
		if c.ReplyCount, err = parseCount(get(record, colReplyCount)); err != nil {
			return nil, fmt.Errorf("%s line %d: reply_count: %w", path, line, err)
		}
		if raw := strings.TrimSpace(get(record, colCluster)); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: cluster: %w", path, line, err)
			}
			c.Cluster = int(v)
		}
		if raw := strings.TrimSpace(get(record, colPublished)); raw != "" {
			ts, err := dateparse.ParseIn(raw, time.UTC)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: publishedAt: %w", path, line, err)
			}
			c.PublishedAt = ts.UTC()
		}
		comments = append(comments, c)
	}
	return comments, nil
}

func parseCount(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 {
		return 0, fmt.Errorf("negative count %s", raw)
	}
	return int(f), nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// fileMode is applied to temp files before rename; CreateTemp creates them 0600.
const fileMode os.FileMode = 0o644

// writeAtomic writes through a temp file in the target directory and renames it into place.
func writeAtomic(path string, fill func(w *csv.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := fill(w); err != nil {
		_ = tmp.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
