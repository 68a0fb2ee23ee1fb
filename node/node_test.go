package node

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"distfs/archive"
	"distfs/client"
	"distfs/common"
	"distfs/protocol"
	"distfs/server"
	"distfs/store"
)

func startNode(t *testing.T, class protocol.Class) (*Node, *client.Client) {
	var fs = afero.NewOsFs()
	st, err := store.New(fs, t.TempDir())
	require.NoError(t, err)

	var n = &Node{
		Store:    st,
		Archiver: &archive.Archiver{Builder: archive.Native{Fs: fs}, Fs: fs, Dir: t.TempDir()},
		Class:    class,
	}

	ln, addr, err := server.Listen("127.0.0.1:0")
	require.NoError(t, err)
	var ctx, cancel = context.WithCancel(context.Background())
	var done = make(chan error, 1)
	go func() { done <- (&server.Server{Handler: n}).Serve(ctx, ln) }()

	c, err := client.Dial(ctx, addr, 0)
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
		cancel()
		require.NoError(t, <-done)
	})
	return n, c
}

func TestStoreFetchDelete(t *testing.T) {
	var _, c = startNode(t, protocol.Text)

	status, err := c.Store("a.txt", 5, "x/y", strings.NewReader("hello"))
	require.NoError(t, err)
	require.Equal(t, protocol.StatusStored, status)

	var buf bytes.Buffer
	n, status, err := c.Fetch("/x/y/a.txt", &buf)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
	require.Equal(t, protocol.StatusFetched, status)
	require.Equal(t, "hello", buf.String())

	status, err = c.Delete("x/y/a.txt")
	require.NoError(t, err)
	require.Equal(t, protocol.StatusRemoved, status)

	status, err = c.Delete("x/y/a.txt")
	require.NoError(t, err)
	require.Equal(t, protocol.StatusRemoveFailed, status)
}

func TestUnstorableFileIsDrained(t *testing.T) {
	var n, c = startNode(t, protocol.Local)

	// A name which is not a single path element can't be created.
	status, err := c.Store("..", 3, "d", strings.NewReader("abc"))
	require.NoError(t, err)
	require.Equal(t, protocol.StatusStoreFailed, status)

	// The session is still in step.
	status, err = c.Store("ok.c", 2, "d", strings.NewReader("ok"))
	require.NoError(t, err)
	require.Equal(t, protocol.StatusStored, status)

	var count int
	for _, err := range n.Store.Index("d") {
		require.NoError(t, err)
		count++
	}
	require.Equal(t, 1, count)
}

func TestListing(t *testing.T) {
	var _, c = startNode(t, protocol.PDF)

	for _, name := range []string{"one.pdf", "two.pdf"} {
		_, err := c.Store(name, 1, "docs/"+strings.TrimSuffix(name, ".pdf"), strings.NewReader("x"))
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	size, status, err := c.List("docs", &buf)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusListed, status)
	require.Equal(t, int64(buf.Len()), size)

	var lines = strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.ElementsMatch(t, []string{"one.pdf - /one/one.pdf", "two.pdf - /two/two.pdf"}, lines)

	buf.Reset()
	size, status, err = c.List("empty", &buf)
	require.NoError(t, err)
	require.Equal(t, int64(0), size)
	require.Equal(t, protocol.StatusListFailed, status)
}

func TestArchiveOnlyOwnKeyword(t *testing.T) {
	var n, c = startNode(t, protocol.Text)

	_, err := c.Store("a.txt", 1, "d", strings.NewReader("a"))
	require.NoError(t, err)

	var buf bytes.Buffer
	size, status, err := c.Archive("txt", &buf)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusArchived, status)
	require.Equal(t, int64(buf.Len()), size)

	ok, err := afero.Exists(n.Archiver.Fs, n.Archiver.Path("txt"))
	require.NoError(t, err)
	require.True(t, ok)

	for _, kw := range []string{"pdf", "c", "tar"} {
		buf.Reset()
		size, status, err = c.Archive(kw, &buf)
		require.NoError(t, err)
		require.Equal(t, int64(common.NotFound), size, kw)
		require.Equal(t, protocol.StatusArchiveFailed, status)
		require.Zero(t, buf.Len())
	}
}

type fullDisk struct{}

func (fullDisk) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestFetchIntoFailingWriterKeepsSession(t *testing.T) {
	var _, c = startNode(t, protocol.Local)

	_, err := c.Store("a.c", 6, "d", strings.NewReader("abcdef"))
	require.NoError(t, err)

	n, status, err := c.Fetch("d/a.c", fullDisk{})
	require.True(t, common.IsSinkError(err))
	require.Equal(t, int64(6), n)
	require.Equal(t, protocol.StatusFetched, status)

	var buf bytes.Buffer
	n, status, err = c.Fetch("d/a.c", &buf)
	require.NoError(t, err)
	require.Equal(t, int64(6), n)
	require.Equal(t, protocol.StatusFetched, status)
	require.Equal(t, "abcdef", buf.String())
}
