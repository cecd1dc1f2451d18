// Package workspace owns every intermediate file of one pipeline run and
// guarantees their removal.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/kikiluvv/reelcut/pkg/util"
	"github.com/shirou/gopsutil/v4/disk"
)

// Workspace is a private run directory plus a registry of files to delete.
type Workspace struct {
	mu     sync.Mutex
	runID  string
	dir    string
	files  map[string]struct{}
	closed bool
}

// New creates <root>/<slug(subject)>-<uuid>.
func New(root, subject string) (*Workspace, error) {
	runID := uuid.NewString()
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", util.Slug(subject), runID))
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return &Workspace{
		runID: runID,
		dir:   dir,
		files: make(map[string]struct{}),
	}, nil
}

// RunID returns the unique id of this run.
func (w *Workspace) RunID() string { return w.runID }

// Dir returns the run directory.
func (w *Workspace) Dir() string { return w.dir }

// NewFile returns a fresh, registered path inside the run directory. The
// file itself is not created.
func (w *Workspace) NewFile(prefix, ext string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return "", errors.New("workspace already cleaned up")
	}
	path := filepath.Join(w.dir, fmt.Sprintf("%s-%s%s", prefix, uuid.NewString()[:8], ext))
	w.files[path] = struct{}{}
	return path, nil
}

// Release deletes a file early and forgets it. Missing files are fine.
func (w *Workspace) Release(path string) error {
	w.mu.Lock()
	delete(w.files, path)
	w.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// Tracked reports how many files are still registered.
func (w *Workspace) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.files)
}

// Cleanup deletes every registered file and the run directory. It is safe
// to call more than once.
func (w *Workspace) Cleanup() error {
	w.mu.Lock()
	files := w.files
	w.files = make(map[string]struct{})
	w.closed = true
	w.mu.Unlock()

	var errs []error
	for path := range files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(w.dir); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// EnsureFree fails when the volume holding the run directory has less than
// need bytes available.
func (w *Workspace) EnsureFree(need uint64) error {
	if need == 0 {
		return nil
	}
	usage, err := disk.Usage(w.dir)
	if err != nil {
		// unknown filesystems are not a reason to refuse work
		return nil
	}
	if usage.Free < need {
		return fmt.Errorf("insufficient disk space in %s: %d bytes free, %d needed", w.dir, usage.Free, need)
	}
	return nil
}
