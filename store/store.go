// Package store manages a node's private file tree, addressed by paths
// relative to the tree root.
package store

import (
	"os"
	"path"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var (
	// ErrInvalidName is returned for file names which are not a single path element.
	ErrInvalidName = errors.New("invalid file name")
	// ErrNotRegular is returned when a path names something other than a regular file.
	ErrNotRegular = errors.New("not a regular file")
)

// Store is a file tree rooted at a directory of an afero.Fs. All paths given
// to a Store are relative to its root and cannot escape it.
type Store struct {
	fs   afero.Fs
	root string
}

// New returns a Store rooted at |root| of |fs|, creating the root if needed.
func New(fs afero.Fs, root string) (*Store, error) {
	if err := fs.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating store root %s", root)
	}
	return &Store{fs: afero.NewBasePathFs(fs, root), root: root}, nil
}

// Root is the root directory of the Store within its underlying afero.Fs.
func (s *Store) Root() string { return s.root }

// Fs returns the afero.Fs of the Store, rooted at Root.
func (s *Store) Fs() afero.Fs { return s.fs }

// Clean maps a client-supplied path onto a rooted, slash-separated path.
// Parent references cannot climb above the root.
func Clean(p string) string { return path.Clean("/" + p) }

// Writer of a file being stored. Exactly one of Commit or Abort must be called.
type Writer struct {
	afero.File
	fs   afero.Fs
	name string
}

// Commit completes the write.
func (w *Writer) Commit() error {
	return errors.Wrapf(w.File.Close(), "closing %s", w.name)
}

// Abort discards the partially written file.
func (w *Writer) Abort() {
	_ = w.File.Close()
	_ = w.fs.Remove(w.name)
}

// Create opens file |name| under directory |destDir| for writing, creating
// missing directories and truncating any existing file.
func (s *Store) Create(destDir, name string) (*Writer, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') {
		return nil, errors.WithMessagef(ErrInvalidName, "%q", name)
	}
	var dir = Clean(destDir)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating directory %s", dir)
	}
	var p = path.Join(dir, name)
	f, err := s.fs.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", p)
	}
	return &Writer{File: f, fs: s.fs, name: p}, nil
}

// Open the regular file at |relPath| for reading, returning its size.
func (s *Store) Open(relPath string) (afero.File, int64, error) {
	var p = Clean(relPath)
	f, err := s.fs.Open(p)
	if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, errors.Wrapf(err, "stat %s", p)
	} else if !fi.Mode().IsRegular() {
		f.Close()
		return nil, 0, errors.WithMessagef(ErrNotRegular, "%s", p)
	}
	return f, fi.Size(), nil
}

// Remove the file at |relPath|. The root itself is never removed.
func (s *Store) Remove(relPath string) error {
	var p = Clean(relPath)
	if p == "/" {
		return errors.WithMessage(ErrInvalidName, "cannot remove the store root")
	}
	if fi, err := s.fs.Stat(p); err == nil && fi.IsDir() {
		return errors.WithMessagef(ErrNotRegular, "%s", p)
	}
	return s.fs.Remove(p)
}
