package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const fileExt = ".json"

// FileStore keeps one <id>.json file per session in a directory.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is created lazily.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return "", fmt.Errorf("invalid key %q", id)
	}
	return filepath.Join(s.dir, id+fileExt), nil
}

func (s *FileStore) ensureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := s.ensureDir(); err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	return newestFirst(keys), nil
}

// Read implements Store.
func (s *FileStore) Read(ctx context.Context, id string) ([]byte, bool, error) {
	p, err := s.path(id)
	if err != nil {
		return nil, false, &Error{Op: "read", Key: id, Err: err}
	}
	payload, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &Error{Op: "read", Key: id, Err: err}
	}
	return payload, true, nil
}

// Write implements Store. The payload lands in a temp file first and is renamed
// over the record, so readers see either the old or the new content.
func (s *FileStore) Write(ctx context.Context, id string, payload []byte) error {
	p, err := s.path(id)
	if err != nil {
		return &Error{Op: "write", Key: id, Err: err}
	}
	if err := s.ensureDir(); err != nil {
		return &Error{Op: "write", Key: id, Err: err}
	}

	tmp, err := os.CreateTemp(s.dir, "."+id+"-*.tmp")
	if err != nil {
		return &Error{Op: "write", Key: id, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return &Error{Op: "write", Key: id, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &Error{Op: "write", Key: id, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Op: "write", Key: id, Err: err}
	}
	if err := os.Rename(tmpName, p); err != nil {
		return &Error{Op: "write", Key: id, Err: err}
	}
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	p, err := s.path(id)
	if err != nil {
		return &Error{Op: "delete", Key: id, Err: err}
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &Error{Op: "delete", Key: id, Err: err}
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
