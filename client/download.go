package client

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"distfs/common"
)

// DownloadFunc performs a downloading exchange into a writer, such as
// Client.Fetch bound to a path.
type DownloadFunc func(w io.Writer) (int64, string, error)

// DownloadFile runs |fn| into file |path| of |fs|, which is created or
// truncated. The file is removed again if the remote file was not found or
// the exchange failed. Local file failures are returned as *common.SinkError.
func DownloadFile(fs afero.Fs, path string, fn DownloadFunc) (int64, string, error) {
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		// Still run the exchange, so that the connection stays in step.
		var n, status, derr = fn(io.Discard)
		if derr == nil {
			derr = &common.SinkError{Err: errors.Wrapf(err, "creating %s", path)}
		}
		return n, status, derr
	}

	n, status, err := fn(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = &common.SinkError{Err: errors.Wrapf(cerr, "closing %s", path)}
	}
	if n < 0 || err != nil {
		_ = fs.Remove(path)
	}
	return n, status, err
}
