package store

import (
	"bufio"
	"io"
	"iter"
	"os"
	"path"
	"strings"
)

// readdirBatch is the number of directory entries read at a time.
const readdirBatch = 64

// Entry is one regular file of a listing.
type Entry struct {
	// Name is the final path element of the file.
	Name string
	// RelPath is the path of the file with the listed directory stripped.
	RelPath string
}

// String formats the Entry as a listing line, without trailing newline.
func (e Entry) String() string { return e.Name + " - " + e.RelPath }

// Index walks the directory |dir| and yields every regular file beneath it,
// recursing into subdirectories. Entries are produced lazily in
// directory-read order, which is unspecified. A missing |dir| yields nothing.
func (s *Store) Index(dir string) iter.Seq2[Entry, error] {
	var root = Clean(dir)
	return func(yield func(Entry, error) bool) {
		s.walk(root, root, yield)
	}
}

func (s *Store) walk(root, dir string, yield func(Entry, error) bool) bool {
	f, err := s.fs.Open(dir)
	if os.IsNotExist(err) && dir == root {
		return true
	} else if err != nil {
		return yield(Entry{}, err)
	}
	defer f.Close()

	for {
		infos, err := f.Readdir(readdirBatch)
		for _, fi := range infos {
			var name = fi.Name()
			if name == "." || name == ".." {
				continue
			}
			var p = path.Join(dir, name)

			if fi.IsDir() {
				if !s.walk(root, p, yield) {
					return false
				}
			} else if fi.Mode().IsRegular() {
				if !yield(Entry{Name: name, RelPath: relativeTo(root, p)}, nil) {
					return false
				}
			}
		}
		if err == io.EOF || (err == nil && len(infos) == 0) {
			return true
		} else if err != nil {
			return yield(Entry{}, err)
		}
	}
}

func relativeTo(root, p string) string {
	if root == "/" {
		return p
	}
	return strings.TrimPrefix(p, root)
}

// WriteListing writes each entry of |entries| to |w| as one line, returning
// the number of entries written. Iteration stops at the first error.
func WriteListing(w io.Writer, entries iter.Seq2[Entry, error]) (int, error) {
	var bw = bufio.NewWriter(w)
	var count int

	for e, err := range entries {
		if err != nil {
			return count, err
		}
		if _, err = bw.WriteString(e.String() + "\n"); err != nil {
			return count, err
		}
		count++
	}
	return count, bw.Flush()
}
