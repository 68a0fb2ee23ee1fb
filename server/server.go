// Package server accepts client connections and runs the command loop of
// each connection against a Handler.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"distfs/common"
	"distfs/metrics"
	"distfs/protocol"
)

// Handler serves a parsed Command of a Session, after the command itself
// has been acknowledged. It performs the verb's exchange over the Session and
// returns the final status line to send. A returned error means the Session's
// channel can no longer be used, and ends the Session.
type Handler interface {
	Serve(ctx context.Context, s *Session, cmd protocol.Command) (status string, err error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(context.Context, *Session, protocol.Command) (string, error)

// Serve calls fn.
func (fn HandlerFunc) Serve(ctx context.Context, s *Session, cmd protocol.Command) (string, error) {
	return fn(ctx, s, cmd)
}

// Session is a single connected client.
type Session struct {
	*common.Channel
	// ID identifies the Session in logs.
	ID  uuid.UUID
	Log *log.Entry
}

// Listen on TCP |addr|, returning the listener and its actual address.
// A zero port selects an ephemeral one.
func Listen(addr string) (net.Listener, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", errors.Wrapf(err, "listening on %s", addr)
	}
	var actual = ln.Addr().String()
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok && tcpAddr.IP.IsUnspecified() {
		actual = fmt.Sprintf(":%d", tcpAddr.Port)
	}
	return ln, actual, nil
}

// Server runs a Session per accepted connection.
type Server struct {
	Handler Handler
	// Timeout bounds each read or write of a Session. Zero means none.
	Timeout time.Duration

	mu       sync.Mutex
	sessions map[*Session]struct{}
	wg       sync.WaitGroup
}

// Serve accepts connections of |ln| until |ctx| is done, at which point the
// listener and all open Sessions are closed. Serve waits for Session
// goroutines to exit before returning.
func (srv *Server) Serve(ctx context.Context, ln net.Listener) error {
	var done = make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = ln.Close()
		case <-done:
		}
	}()

	var err error
	for {
		var conn net.Conn
		if conn, err = ln.Accept(); err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				err = nil
			} else {
				err = errors.Wrap(err, "accepting connection")
			}
			break
		}
		var s = srv.track(conn)

		srv.wg.Add(1)
		go func() {
			defer srv.wg.Done()
			defer srv.untrack(s)
			srv.serveSession(ctx, s)
		}()
	}

	srv.mu.Lock()
	for s := range srv.sessions {
		_ = s.Close()
	}
	srv.mu.Unlock()

	srv.wg.Wait()
	return err
}

func (srv *Server) track(conn net.Conn) *Session {
	var s = &Session{
		Channel: common.NewChannel(conn),
		ID:      uuid.New(),
	}
	s.Channel.Timeout = srv.Timeout
	s.Log = log.WithFields(log.Fields{
		"session": s.ID.String(),
		"remote":  conn.RemoteAddr().String(),
	})

	srv.mu.Lock()
	if srv.sessions == nil {
		srv.sessions = make(map[*Session]struct{})
	}
	srv.sessions[s] = struct{}{}
	srv.mu.Unlock()
	return s
}

func (srv *Server) untrack(s *Session) {
	srv.mu.Lock()
	delete(srv.sessions, s)
	srv.mu.Unlock()
	_ = s.Close()
}

func (srv *Server) serveSession(ctx context.Context, s *Session) {
	metrics.SessionsActive.Inc()
	defer metrics.SessionsActive.Dec()

	s.Log.Info("client connected")
	defer s.Log.Info("client disconnected")

	for {
		msg, err := s.ReceiveAcknowledged(common.Ack)
		if err != nil {
			if !isDisconnect(err) {
				s.Log.WithError(err).Warn("failed to receive command")
			}
			return
		}

		status, err := srv.dispatch(ctx, s, msg)
		if err != nil {
			s.Log.WithFields(log.Fields{"command": msg, "err": err}).Warn("session channel failed")
			return
		}
		if err = s.WriteMessage(status); err != nil {
			s.Log.WithError(err).Warn("failed to send status")
			return
		}
	}
}

func (srv *Server) dispatch(ctx context.Context, s *Session, msg string) (string, error) {
	cmd, err := protocol.Parse(msg)
	if err != nil {
		s.Log.WithFields(log.Fields{"command": msg, "err": err}).Info("invalid command")
		metrics.CommandsTotal.WithLabelValues("invalid", metrics.Fail).Inc()
		return protocol.StatusInvalid, nil
	}

	var started = time.Now()
	status, err := srv.Handler.Serve(ctx, s, cmd)
	if err != nil {
		return "", err
	}

	var outcome = metrics.Ok
	if !cmd.Verb.Succeeded(status) {
		outcome = metrics.Fail
	}
	metrics.CommandsTotal.WithLabelValues(cmd.Verb.String(), outcome).Inc()

	s.Log.WithFields(log.Fields{
		"command": cmd.String(),
		"status":  status,
		"elapsed": time.Since(started),
	}).Debug("served command")
	return status, nil
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
