package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// readArchive returns regular file names of a .tar.gz, mapped to their contents.
func readArchive(t *testing.T, fs afero.Fs, path string) map[string]string {
	f, err := fs.Open(path)
	require.NoError(t, err)
	defer f.Close()

	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	var tr = tar.NewReader(zr)
	var out = make(map[string]string)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		b, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[strings.TrimPrefix(hdr.Name, "./")] = string(b)
	}
	return out
}

func TestNativeRebuildIsFresh(t *testing.T) {
	var fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/smain/a.c", []byte("aaa"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/smain/sub/b.c", []byte("bb"), 0644))

	var a = &Archiver{Builder: Native{Fs: fs}, Fs: fs, Dir: "/tar"}
	path, err := a.Rebuild(context.Background(), "c", "/smain")
	require.NoError(t, err)
	require.Equal(t, "/tar/c.tar.gz", path)
	require.Equal(t, a.Path("c"), path)

	require.Equal(t, map[string]string{"a.c": "aaa", "sub/b.c": "bb"},
		readArchive(t, fs, path))

	// A later upload and a removal are both reflected by the next rebuild.
	require.NoError(t, afero.WriteFile(fs, "/smain/new/c.c", []byte("c"), 0644))
	require.NoError(t, fs.Remove("/smain/a.c"))

	path, err = a.Rebuild(context.Background(), "c", "/smain")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"sub/b.c": "bb", "new/c.c": "c"},
		readArchive(t, fs, path))

	// No temporary files remain beside the artifact.
	infos, err := afero.ReadDir(fs, "/tar")
	require.NoError(t, err)
	require.Len(t, infos, 1)
}

func TestNativeEntryNames(t *testing.T) {
	var fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/d/x.txt", []byte("x"), 0644))
	require.NoError(t, Native{Fs: fs}.Build(context.Background(), "/src", "/out.tar.gz"))

	f, err := fs.Open("/out.tar.gz")
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)

	var names []string
	for tr := tar.NewReader(zr); ; {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	require.Equal(t, []string{"./", "./d/", "./d/x.txt"}, names)
}

func TestCopyFileMatchesHeaderSize(t *testing.T) {
	var fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/f", []byte("hello"), 0644))

	for _, tc := range []struct {
		size int64
		want string
	}{
		{5, "hello"},
		// The file grew after its header was written.
		{3, "hel"},
		// The file shrank.
		{8, "hello\x00\x00\x00"},
	} {
		var buf bytes.Buffer
		require.NoError(t, copyFile(fs, &buf, "/f", tc.size))
		require.Equal(t, tc.want, buf.String())
	}
}

type failingBuilder struct{ err error }

func (b failingBuilder) Build(_ context.Context, _, dst string) error { return b.err }

func TestFailedBuildKeepsPreviousArtifact(t *testing.T) {
	var fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/stext/a.txt", []byte("a"), 0644))

	var a = &Archiver{Builder: Native{Fs: fs}, Fs: fs, Dir: "/tar"}
	_, err := a.Rebuild(context.Background(), "txt", "/stext")
	require.NoError(t, err)

	var boom = errors.New("boom")
	a.Builder = failingBuilder{err: boom}
	_, err = a.Rebuild(context.Background(), "txt", "/stext")
	require.Equal(t, boom, errors.Cause(err))

	require.Equal(t, map[string]string{"a.txt": "a"}, readArchive(t, fs, a.Path("txt")))
	infos, err := afero.ReadDir(fs, "/tar")
	require.NoError(t, err)
	require.Len(t, infos, 1)
}

func TestNativeCancelled(t *testing.T) {
	var fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/a.c", []byte("a"), 0644))

	var ctx, cancel = context.WithCancel(context.Background())
	cancel()

	var a = &Archiver{Builder: Native{Fs: fs}, Fs: fs, Dir: "/tar"}
	_, err := a.Rebuild(ctx, "c", "/src")
	require.Equal(t, context.Canceled, errors.Cause(err))

	ok, _ := afero.Exists(fs, a.Path("c"))
	require.False(t, ok)
}

func TestTarCommand(t *testing.T) {
	if _, err := exec.LookPath("tar"); err != nil {
		t.Skip("tar is not installed")
	}
	var fs = afero.NewOsFs()
	var src, dir = t.TempDir(), t.TempDir()

	require.NoError(t, fs.MkdirAll(filepath.Join(src, "x"), 0755))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(src, "p.pdf"), []byte("%PDF"), 0644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(src, "x", "q.pdf"), []byte("q"), 0644))

	var a = &Archiver{Builder: TarCommand{}, Fs: fs, Dir: dir}
	path, err := a.Rebuild(context.Background(), "pdf", src)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "pdf.tar.gz"), path)

	var got = readArchive(t, fs, path)
	var names []string
	for n := range got {
		names = append(names, n)
	}
	sort.Strings(names)
	require.Equal(t, []string{"p.pdf", "x/q.pdf"}, names)

	// A missing source directory fails, leaving the previous artifact.
	_, err = a.Rebuild(context.Background(), "pdf", filepath.Join(src, "missing"))
	require.Error(t, err)
	require.Len(t, readArchive(t, fs, path), 2)
}
