// Package archive produces compressed tar archives of node file trees.
package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Builder writes a gzip-compressed tar of directory |srcDir| to file |dst|.
// Build blocks until the archive is complete, and a non-nil error means the
// contents of |dst| are unusable.
type Builder interface {
	Build(ctx context.Context, srcDir, dst string) error
}

// TarCommand builds archives by running an external tar tool, equivalent to
// `tar -czf <dst> -C <srcDir> .`. Paths are of the host filesystem.
type TarCommand struct {
	// Path of the tar executable. If empty, "tar" is resolved from $PATH.
	Path string
}

// Build runs the tar tool and waits for it to exit.
func (t TarCommand) Build(ctx context.Context, srcDir, dst string) error {
	var bin = t.Path
	if bin == "" {
		bin = "tar"
	}
	var cmd = exec.CommandContext(ctx, bin, "-czf", dst, "-C", srcDir, ".")
	var out bytes.Buffer
	cmd.Stdout, cmd.Stderr = &out, &out

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "tar cancelled")
		}
		return errors.Wrapf(err, "tar -czf %s -C %s . (output: %q)",
			dst, srcDir, strings.TrimSpace(out.String()))
	}
	return nil
}

// Native builds archives in-process over an afero.Fs. Entry names mirror
// those produced by TarCommand ("./", "./dir/", "./dir/file").
type Native struct {
	Fs afero.Fs
}

// Build walks |srcDir| of the Fs, writing every directory and regular file.
func (n Native) Build(ctx context.Context, srcDir, dst string) (err error) {
	out, err := n.Fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "creating %s", dst)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = errors.Wrapf(cerr, "closing %s", dst)
		}
	}()

	var zw = gzip.NewWriter(out)
	var tw = tar.NewWriter(zw)

	err = afero.Walk(n.Fs, srcDir, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		} else if err = ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		var name = "./"
		if rel != "." {
			name += filepath.ToSlash(rel)
		}

		switch {
		case fi.IsDir():
			if !strings.HasSuffix(name, "/") {
				name += "/"
			}
			return writeHeader(tw, fi, name)
		case fi.Mode().IsRegular():
			if err := writeHeader(tw, fi, name); err != nil {
				return err
			}
			return copyFile(n.Fs, tw, p, fi.Size())
		default:
			return nil // Skip sockets, devices and links.
		}
	})
	if err != nil {
		return errors.Wrapf(err, "archiving %s", srcDir)
	}
	if err = tw.Close(); err != nil {
		return errors.Wrap(err, "closing tar stream")
	}
	return errors.Wrap(zw.Close(), "closing gzip stream")
}

func writeHeader(tw *tar.Writer, fi os.FileInfo, name string) error {
	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return errors.Wrapf(err, "building header of %s", name)
	}
	hdr.Name = name
	return errors.Wrapf(tw.WriteHeader(hdr), "writing header of %s", name)
}

// copyFile writes exactly |size| bytes of file |p|, its size when the header
// was written. A file which changed since is cut or zero-padded to match.
func copyFile(fs afero.Fs, w io.Writer, p string, size int64) error {
	f, err := fs.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := io.Copy(w, io.LimitReader(f, size))
	if err == nil && n < size {
		_, err = io.CopyN(w, zeros{}, size-n)
	}
	return errors.Wrapf(err, "copying %s", p)
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
