// Package node serves commands against a single local file tree. A backend
// is entirely a Node; the router uses a Node for files it keeps locally.
package node

import (
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"distfs/archive"
	"distfs/common"
	"distfs/protocol"
	"distfs/server"
	"distfs/store"
)

// ErrForeignKeyword is returned for archive requests of a keyword which the
// Node does not hold.
var ErrForeignKeyword = errors.New("archive keyword is not served by this node")

// Node is a server.Handler over a Store.
type Node struct {
	Store    *store.Store
	Archiver *archive.Archiver
	// Class of files held by the Node. Archives are built only for its keyword.
	Class protocol.Class
}

// Serve the Command.
func (n *Node) Serve(ctx context.Context, s *server.Session, cmd protocol.Command) (string, error) {
	switch cmd.Verb {
	case protocol.Store:
		var size, _ = cmd.Size()
		return n.Receive(s, cmd.Args[0], size, cmd.Args[2])
	case protocol.Fetch:
		return n.fetch(s, cmd.Args[0])
	case protocol.Delete:
		return n.delete(s, cmd.Args[0])
	case protocol.List:
		return n.list(s, cmd.Args[0])
	case protocol.Archive:
		return n.archive(ctx, s, cmd.Args[0])
	default:
		return protocol.StatusInvalid, nil
	}
}

// Receive a payload of |size| bytes from the Session into file |name| of
// |destDir|, and acknowledge it. The payload is consumed even if the file
// cannot be stored.
func (n *Node) Receive(s *server.Session, name string, size int64, destDir string) (string, error) {
	var w, werr = n.Store.Create(destDir, name)

	var sink io.Writer = io.Discard
	if werr == nil {
		sink = w
	}
	var err = s.RecvBytes(sink, size)

	if err != nil && !common.IsSinkError(err) {
		if w != nil {
			w.Abort()
		}
		return "", err
	}
	if w != nil {
		if err == nil {
			err = w.Commit()
		}
		if err != nil {
			w.Abort()
			werr = err
		}
	}
	if err = s.WriteMessage(common.Ack); err != nil {
		return "", err
	}

	var fields = log.Fields{"name": name, "dest": destDir, "size": size}
	if werr != nil {
		s.Log.WithFields(fields).WithError(werr).Warn("failed to store file")
		return protocol.Store.Failure(), nil
	}
	s.Log.WithFields(fields).Info("stored file")
	return protocol.Store.Success(), nil
}

func (n *Node) fetch(s *server.Session, relPath string) (string, error) {
	f, size, err := n.Store.Open(relPath)
	if err != nil {
		s.Log.WithFields(log.Fields{"path": relPath, "err": err}).Info("cannot fetch file")
		if err = s.SendPayload(nil, common.NotFound); err != nil {
			return "", err
		}
		return protocol.Fetch.Failure(), nil
	}
	defer f.Close()

	if err = s.SendPayload(f, size); err != nil {
		return "", err
	}
	return protocol.Fetch.Success(), nil
}

func (n *Node) delete(s *server.Session, relPath string) (string, error) {
	var rmErr = n.Store.Remove(relPath)
	if err := s.WriteMessage(common.Ack); err != nil {
		return "", err
	}
	if rmErr != nil {
		s.Log.WithFields(log.Fields{"path": relPath, "err": rmErr}).Info("cannot remove file")
		return protocol.Delete.Failure(), nil
	}
	s.Log.WithField("path", relPath).Info("removed file")
	return protocol.Delete.Success(), nil
}

// Listing writes listing lines of every file beneath |dirPath| to |w|.
func (n *Node) Listing(dirPath string, w io.Writer) (int, error) {
	return store.WriteListing(w, n.Store.Index(dirPath))
}

func (n *Node) list(s *server.Session, dirPath string) (string, error) {
	var buf bytes.Buffer
	if _, err := n.Listing(dirPath, &buf); err != nil {
		s.Log.WithFields(log.Fields{"dir": dirPath, "err": err}).Warn("failed to index directory")
		buf.Reset()
	}
	var size = int64(buf.Len())

	if err := s.SendPayload(&buf, size); err != nil {
		return "", err
	} else if size == 0 {
		return protocol.List.Failure(), nil
	}
	return protocol.List.Success(), nil
}

// BuildArchive rebuilds the archive of |keyword|, which must name the Node's
// Class, and returns its path within the Archiver's Fs.
func (n *Node) BuildArchive(ctx context.Context, keyword string) (string, error) {
	if class, ok := protocol.ClassForKeyword(keyword); !ok || class != n.Class {
		return "", errors.WithMessagef(ErrForeignKeyword, "%q", keyword)
	}
	return n.Archiver.Rebuild(ctx, keyword, n.Store.Root())
}

func (n *Node) archive(ctx context.Context, s *server.Session, keyword string) (string, error) {
	var fields = log.Fields{"keyword": keyword}

	var path, err = n.BuildArchive(ctx, keyword)
	if err != nil {
		s.Log.WithFields(fields).WithError(err).Warn("cannot build archive")
		if err = s.SendPayload(nil, common.NotFound); err != nil {
			return "", err
		}
		return protocol.Archive.Failure(), nil
	}
	fields["path"] = path

	sent, err := SendFile(s.Channel, n.Archiver.Fs, path)
	if err != nil {
		return "", err
	} else if !sent {
		s.Log.WithFields(fields).Warn("archive vanished before it was sent")
		return protocol.Archive.Failure(), nil
	}
	s.Log.WithFields(fields).Info("sent archive")
	return protocol.Archive.Success(), nil
}

// SendFile sends the regular file |path| of |fs| as a payload, or announces
// common.NotFound if it cannot be opened. It returns whether the file was sent.
func SendFile(ch *common.Channel, fs afero.Fs, path string) (bool, error) {
	f, err := fs.Open(path)
	if err != nil {
		return false, ch.SendPayload(nil, common.NotFound)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		return false, ch.SendPayload(nil, common.NotFound)
	}
	return true, ch.SendPayload(f, fi.Size())
}
