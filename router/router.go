// Package router implements the client-facing node, which keeps files of
// the local class itself and delegates text and PDF files to backends.
package router

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"distfs/client"
	"distfs/common"
	"distfs/metrics"
	"distfs/node"
	"distfs/protocol"
	"distfs/server"
)

// Router is a server.Handler which routes each Command by file class.
type Router struct {
	// Local serves files of protocol.Local.
	Local *node.Node
	// Backends serving each remote protocol.Class.
	Backends map[protocol.Class]*Pool
	// Staging holds transient copies of relayed files within StagingDir.
	Staging    afero.Fs
	StagingDir string
}

// Prime a connection to every backend, failing if any is unreachable.
func (r *Router) Prime(ctx context.Context) error {
	for _, class := range protocol.Classes {
		if pool, ok := r.Backends[class]; ok {
			if err := pool.Prime(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close all backend Pools.
func (r *Router) Close() {
	for _, pool := range r.Backends {
		pool.Close()
	}
}

// Serve the Command.
func (r *Router) Serve(ctx context.Context, s *server.Session, cmd protocol.Command) (string, error) {
	var class = protocol.Local

	switch cmd.Verb {
	case protocol.List:
		return r.list(ctx, s, cmd.Args[0])
	case protocol.Archive:
		if c, ok := protocol.ClassForKeyword(cmd.Args[0]); ok {
			class = c
		}
	default:
		class = r.classify(s, cmd)
	}
	if _, ok := r.Backends[class]; !ok {
		return r.Local.Serve(ctx, s, cmd)
	}

	switch cmd.Verb {
	case protocol.Store:
		return r.relayStore(ctx, s, class, cmd)
	case protocol.Delete:
		return r.relayDelete(ctx, s, class, cmd)
	default:
		return r.relayDownload(ctx, s, class, cmd)
	}
}

func (r *Router) classify(s *server.Session, cmd protocol.Command) protocol.Class {
	var class, err = protocol.Classify(cmd.Args[0])
	if err != nil {
		s.Log.WithFields(log.Fields{"command": cmd.String(), "err": err}).Info("cannot route command")
		return protocol.Local
	}
	return class
}

// delegate runs |fn| with a pooled connection to the backend of |class|.
func (r *Router) delegate(ctx context.Context, class protocol.Class, verb protocol.Verb, fn func(*client.Client) error) error {
	var pool = r.Backends[class]
	var started = time.Now()

	c, err := pool.Get(ctx)
	if err == nil {
		err = fn(c)
		pool.Put(c, err)
	}

	var outcome = metrics.Ok
	if err != nil {
		outcome = metrics.Fail
	}
	metrics.BackendExchangeSeconds.WithLabelValues(pool.Name, verb.String(), outcome).
		Observe(time.Since(started).Seconds())

	return errors.WithMessagef(err, "backend %s", pool.Name)
}

// stage creates a staging file, and returns it with a func which removes it.
func (r *Router) stage() (afero.File, func(), error) {
	f, err := afero.TempFile(r.Staging, r.StagingDir, "relay-*")
	if err != nil {
		return nil, nil, errors.Wrap(err, "creating staging file")
	}
	return f, func() {
		_ = f.Close()
		_ = r.Staging.Remove(f.Name())
	}, nil
}

func (r *Router) relayStore(ctx context.Context, s *server.Session, class protocol.Class, cmd protocol.Command) (string, error) {
	var size, _ = cmd.Size()
	var name, destDir = cmd.Args[0], cmd.Args[2]
	var status = protocol.Store.Failure()

	f, cleanup, err := r.stage()
	var sink io.Writer = io.Discard
	if err == nil {
		defer cleanup()
		sink = f
	}

	if rerr := s.RecvBytes(sink, size); rerr != nil && !common.IsSinkError(rerr) {
		return "", rerr
	} else if err == nil {
		err = rerr
	}

	if err == nil {
		if _, err = f.Seek(0, io.SeekStart); err == nil {
			err = r.delegate(ctx, class, protocol.Store, func(c *client.Client) (err error) {
				status, err = c.Store(name, size, destDir, f)
				return err
			})
		}
	}
	if err != nil {
		s.Log.WithFields(log.Fields{"name": name, "dest": destDir, "err": err}).Warn("failed to relay stored file")
		status = protocol.Store.Failure()
	}

	if err = s.WriteMessage(common.Ack); err != nil {
		return "", err
	}
	return status, nil
}

func (r *Router) relayDelete(ctx context.Context, s *server.Session, class protocol.Class, cmd protocol.Command) (string, error) {
	var status string
	var err = r.delegate(ctx, class, protocol.Delete, func(c *client.Client) (err error) {
		status, err = c.Delete(cmd.Args[0])
		return err
	})
	if err != nil {
		s.Log.WithFields(log.Fields{"path": cmd.Args[0], "err": err}).Warn("failed to relay delete")
		status = protocol.Delete.Failure()
	}

	if err = s.WriteMessage(common.Ack); err != nil {
		return "", err
	}
	return status, nil
}

// relayDownload pulls a Fetch or Archive payload from a backend into
// staging, then sends it on to the Session.
func (r *Router) relayDownload(ctx context.Context, s *server.Session, class protocol.Class, cmd protocol.Command) (string, error) {
	var status = cmd.Verb.Failure()
	var n int64 = common.NotFound

	f, cleanup, err := r.stage()
	if err == nil {
		defer cleanup()

		err = r.delegate(ctx, class, cmd.Verb, func(c *client.Client) (err error) {
			if cmd.Verb == protocol.Archive {
				n, status, err = c.Archive(cmd.Args[0], f)
			} else {
				n, status, err = c.Fetch(cmd.Args[0], f)
			}
			return err
		})
	}
	if err == nil && n > 0 {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		s.Log.WithFields(log.Fields{"command": cmd.String(), "err": err}).Warn("failed to relay download")
		n, status = common.NotFound, cmd.Verb.Failure()
	}

	if n < 0 {
		err = s.SendPayload(nil, common.NotFound)
	} else {
		err = s.SendPayload(f, n)
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// list concatenates listings of the local tree, then of each backend in
// Class order. Failure of any backend fails the entire listing.
func (r *Router) list(ctx context.Context, s *server.Session, dirPath string) (string, error) {
	var buf bytes.Buffer
	var _, err = r.Local.Listing(dirPath, &buf)

	for _, class := range protocol.Classes {
		if _, ok := r.Backends[class]; !ok || err != nil {
			continue
		}
		err = r.delegate(ctx, class, protocol.List, func(c *client.Client) error {
			var _, _, err = c.List(dirPath, &buf)
			return err
		})
	}
	if err != nil {
		s.Log.WithFields(log.Fields{"dir": dirPath, "err": err}).Warn("failed to aggregate listing")
		buf.Reset()
	}
	var size = int64(buf.Len())

	if err = s.SendPayload(&buf, size); err != nil {
		return "", err
	} else if size == 0 {
		return protocol.List.Failure(), nil
	}
	return protocol.List.Success(), nil
}
