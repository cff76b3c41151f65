package paramstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// DefaultFilename is the cache file used when none is configured.
const DefaultFilename = "best_params.json"

// FileStore keeps the snapshot in a single JSON or YAML file. Saves write a
// temporary file next to the target and rename it over, so readers never
// observe a partial file.
type FileStore struct {
	path   string
	format Format

	// mu serializes saves from the same process.
	mu sync.Mutex
}

// NewFileStore returns a store backed by path. The format follows the
// extension. An empty path means DefaultFilename.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultFilename
	}

	return &FileStore{path: path, format: FormatFor(path)}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store. A missing file is an empty snapshot.
func (s *FileStore) Load(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{Families: map[string]Entry{}}, nil
	}

	if err != nil {
		return Snapshot{}, persistenceError("cache.load", err)
	}

	snap, err := Decode(data, s.format)
	if err != nil {
		return Snapshot{}, persistenceError("cache.load", err)
	}

	return snap, nil
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, snapshot Snapshot) error {
	data, err := Encode(snapshot, s.format)
	if err != nil {
		return persistenceError("cache.save", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return persistenceError("cache.save", writeFileAtomic(s.path, data, 0o644))
}

// writeFileAtomic writes data to a temporary file in the target directory,
// syncs it and renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()
	committed := false

	defer func() {
		_ = tmp.Close()

		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}

	if err := tmp.Chmod(perm); err != nil {
		return err
	}

	if err := tmp.Sync(); err != nil {
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	committed = true

	return nil
}
