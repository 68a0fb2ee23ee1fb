package protocol

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestParseVerbs(t *testing.T) {
	for _, tc := range []struct {
		msg  string
		want Command
	}{
		{"ufile a.c 12 docs/x", Command{Store, []string{"a.c", "12", "docs/x"}}},
		{"dfile docs/x/a.c", Command{Fetch, []string{"docs/x/a.c"}}},
		{"rmfile notes.txt", Command{Delete, []string{"notes.txt"}}},
		{"  display \t docs  ", Command{List, []string{"docs"}}},
		{"dtar pdf", Command{Archive, []string{"pdf"}}},
	} {
		got, err := Parse(tc.msg)
		require.NoError(t, err, tc.msg)
		require.Equal(t, tc.want, got)
	}
}

func TestParseFailures(t *testing.T) {
	for _, tc := range []struct {
		msg   string
		cause error
	}{
		{"", ErrUnknownVerb},
		{"   ", ErrUnknownVerb},
		{"upload a.c 1 x", ErrUnknownVerb},
		{"UFILE a.c 1 x", ErrUnknownVerb},
		{"ufile a.c 1", ErrBadArguments},
		{"ufile a.c one x", ErrBadArguments},
		{"ufile a.c -3 x", ErrBadArguments},
		{"dfile", ErrBadArguments},
		{"dfile a b", ErrBadArguments},
		{"dtar c txt pdf x y", ErrBadArguments},
	} {
		_, err := Parse(tc.msg)
		require.Error(t, err, tc.msg)
		require.Equal(t, tc.cause, errors.Cause(err), tc.msg)
	}
}

func TestCommandEncoding(t *testing.T) {
	require.Equal(t, "ufile a.txt 42 notes", NewStore("a.txt", 42, "notes").String())
	require.Equal(t, "dfile notes/a.txt", NewFetch("notes/a.txt").String())
	require.Equal(t, "rmfile notes/a.txt", NewDelete("notes/a.txt").String())
	require.Equal(t, "display notes", NewList("notes").String())
	require.Equal(t, "dtar txt", NewArchive("txt").String())

	// Encoding is the inverse of parsing.
	var cmd = NewStore("report.pdf", 1<<20, "a/b")
	parsed, err := Parse(cmd.String())
	require.NoError(t, err)
	require.Equal(t, cmd, parsed)

	size, err := parsed.Size()
	require.NoError(t, err)
	require.Equal(t, int64(1<<20), size)

	_, err = NewFetch("x").Size()
	require.Equal(t, ErrBadArguments, errors.Cause(err))
}

func TestStatusOutcomes(t *testing.T) {
	require.Equal(t, "File received by server", Store.Success())
	require.Equal(t, "Failed to download file", Fetch.Failure())
	require.True(t, Delete.Succeeded(StatusRemoved))
	require.False(t, Delete.Succeeded(StatusRemoveFailed))
	require.False(t, List.Succeeded(StatusArchived))
	require.Equal(t, StatusInvalid, Verb(0).Failure())
	require.Equal(t, "invalid", Verb(99).String())
}
