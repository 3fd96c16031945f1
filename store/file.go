package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// FileStore persists snapshots to a single file. Writes go to a temp file
// named with the process id in the target directory and are renamed over
// the target, so a crashed or concurrent writer never leaves a torn file.
//
// Paths are whitelisted: after resolving against the working directory and
// normalizing away "." and ".." (following symlinks where the path already
// exists), the target must live under the working directory or the system
// temp directory. Anything else disables the store — operations continue
// in memory only.
type FileStore struct {
	path   string // empty when the path was rejected
	logger zerolog.Logger
}

// NewFileStore validates path against the whitelist and returns the store.
// A rejected path is logged once; the store then loads and saves nothing.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	resolved, ok := resolveStatePath(path)
	if !ok {
		logger.Warn().Str("path", path).Msg("state file outside allowed roots, persistence disabled")
		return &FileStore{logger: logger}
	}
	return &FileStore{path: resolved, logger: logger}
}

// Path returns the resolved target path, or "" when the path was rejected.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	if f.path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn().Str("path", f.path).Msg("no state file, starting empty")
			return nil, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", f.path, err)
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		f.logger.Warn().Err(err).Str("path", f.path).Msg("state file malformed, starting empty")
		return nil, nil
	}
	return snap, nil
}

func (f *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	if f.path == "" {
		return nil
	}
	data, err := snap.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("store: mkdir for %s: %w", f.path, err)
	}
	tmp := fmt.Sprintf("%s.%d.tmp", f.path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: rename %s: %w", tmp, err)
	}
	return nil
}

// resolveStatePath normalizes path and checks it against the allowed
// roots. It follows symlinks on the deepest existing prefix so a link
// pointing outside the whitelist cannot smuggle the file out.
func resolveStatePath(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", false
		}
		path = filepath.Join(cwd, path)
	}
	path = filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	} else if resolved, err := filepath.EvalSymlinks(filepath.Dir(path)); err == nil {
		// Target does not exist yet; resolve its directory instead.
		path = filepath.Join(resolved, filepath.Base(path))
	}
	for _, root := range allowedRoots() {
		if underRoot(path, root) {
			return path, true
		}
	}
	return "", false
}

func allowedRoots() []string {
	var roots []string
	if cwd, err := os.Getwd(); err == nil {
		roots = append(roots, normalizeRoot(cwd))
	}
	roots = append(roots, normalizeRoot(os.TempDir()))
	return roots
}

func normalizeRoot(dir string) string {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved
	}
	return filepath.Clean(dir)
}

func underRoot(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
