package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"CommentTrends/internal/domain"
	"CommentTrends/internal/ports"
)

// ErrRunNotFound is returned when no artifact exists for a run id.
var ErrRunNotFound = errors.New("run artifact not found")

// RunRepository stores one YAML artifact per clustering run. Operators edit
// the label fields in place; the file name is the run id.
type RunRepository struct {
	dir string
}

var _ ports.RunRepository = (*RunRepository)(nil)

// NewRunRepository wires the artifact directory.
func NewRunRepository(dir string) *RunRepository {
	return &RunRepository{dir: dir}
}

// SaveRun writes <dir>/<run_id>.yaml.
func (r *RunRepository) SaveRun(ctx context.Context, run domain.Run) error {
	path, err := r.path(run.ID)
	if err != nil {
		return err
	}

	raw, err := yaml.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	header := "# Fill in `label` for each cluster. Labels only apply to snapshots written by this run.\n"

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create runs dir: %w", err)
	}
	tmp, err := os.CreateTemp(r.dir, ".run-*")
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(header + string(raw)); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// LoadRun reads the artifact for runID, including any hand-edited labels.
func (r *RunRepository) LoadRun(ctx context.Context, runID string) (domain.Run, error) {
	path, err := r.path(runID)
	if err != nil {
		return domain.Run{}, err
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Run{}, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("read run %s: %w", runID, err)
	}

	var run domain.Run
	if err := yaml.Unmarshal(raw, &run); err != nil {
		return domain.Run{}, fmt.Errorf("parse run %s: %w", runID, err)
	}
	if run.ID != runID {
		return domain.Run{}, fmt.Errorf("run file %s carries run_id %q", path, run.ID)
	}
	return run, nil
}

func (r *RunRepository) path(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || strings.HasPrefix(runID, ".") {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(r.dir, runID+".yaml"), nil
}
