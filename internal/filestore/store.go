package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ErrInvalidRef is returned for references that could escape the store root.
var ErrInvalidRef = errors.New("invalid file reference")

// Store keeps uploaded and generated documents under a root directory. The
// core only ever sees the opaque reference returned by Save.
type Store struct {
	fs   afero.Fs
	root string
}

// New wraps fs, keeping files under root.
func New(fs afero.Fs, root string) *Store {
	if root == "" {
		root = "."
	}
	return &Store{fs: fs, root: root}
}

// NewDisk returns a store on the host filesystem, confined to root.
func NewDisk(root string) *Store {
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), root), "/")
}

// NewMemory returns an in-memory store.
func NewMemory() *Store {
	return New(afero.NewMemMapFs(), "/files")
}

// Save writes data under a fresh reference that keeps the extension of
// suggestedName.
func (s *Store) Save(ctx context.Context, data []byte, suggestedName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return "", fmt.Errorf("create store root: %w", err)
	}
	ref := uuid.NewString() + cleanExt(suggestedName)
	if err := afero.WriteFile(s.fs, s.path(ref), data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", ref, err)
	}
	return ref, nil
}

// Delete removes ref. It reports false when the file was already absent.
func (s *Store) Delete(ctx context.Context, ref string) (bool, error) {
	if err := checkRef(ref); err != nil {
		return false, err
	}
	ok, err := s.Exists(ctx, ref)
	if err != nil || !ok {
		return false, err
	}
	if err := s.fs.Remove(s.path(ref)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) Exists(_ context.Context, ref string) (bool, error) {
	if err := checkRef(ref); err != nil {
		return false, err
	}
	return afero.Exists(s.fs, s.path(ref))
}

// Open returns a reader for ref.
func (s *Store) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	if err := checkRef(ref); err != nil {
		return nil, err
	}
	return s.fs.Open(s.path(ref))
}

func (s *Store) path(ref string) string {
	return filepath.Join(s.root, ref)
}

func checkRef(ref string) error {
	if ref == "" || ref == "." || ref == ".." || strings.ContainsAny(ref, `/\`) {
		return ErrInvalidRef
	}
	return nil
}

func cleanExt(name string) string {
	ext := strings.ToLower(path.Ext(filepath.Base(name)))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		return ""
	}
	return ext
}
