package router

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"distfs/client"
	"distfs/common"
	"distfs/metrics"
)

// ErrPoolClosed is returned by Get after the Pool is closed.
var ErrPoolClosed = errors.New("backend pool closed")

// Pool of connections to a single backend. A connection is used by at most
// one session at a time: Get checks it out exclusively and Put returns it.
// Connections are dialed lazily, and one which failed mid-exchange is closed
// rather than reused, since its stream can no longer be trusted.
type Pool struct {
	// Name of the backend, for logs and metrics.
	Name string
	// Addr of the backend.
	Addr string
	// DialTimeout bounds connection attempts. Zero means none.
	DialTimeout time.Duration
	// Timeout bounds each read or write of a pooled connection. Zero means none.
	Timeout time.Duration

	sem    *semaphore.Weighted
	mu     sync.Mutex
	idle   []*client.Client
	closed bool
}

// NewPool returns a Pool of at most |maxConns| open connections to |addr|.
func NewPool(name, addr string, maxConns int64) *Pool {
	if maxConns < 1 {
		maxConns = 1
	}
	return &Pool{
		Name: name,
		Addr: addr,
		sem:  semaphore.NewWeighted(maxConns),
	}
}

// Get checks out a connection, blocking while all connections are in use.
func (p *Pool) Get(ctx context.Context) (*client.Client, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrapf(err, "waiting for %s connection", p.Name)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, errors.WithMessagef(ErrPoolClosed, "backend %s", p.Name)
	}
	if n := len(p.idle); n != 0 {
		var c = p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return c, nil
	}
	p.mu.Unlock()

	c, err := client.Dial(ctx, p.Addr, p.DialTimeout)
	if err != nil {
		p.sem.Release(1)
		return nil, errors.WithMessagef(err, "backend %s", p.Name)
	}
	c.Channel().Timeout = p.Timeout
	metrics.BackendConnsOpen.WithLabelValues(p.Name).Inc()

	log.WithFields(log.Fields{"backend": p.Name, "addr": p.Addr}).Debug("dialed backend")
	return c, nil
}

// Put returns a connection checked out by Get, along with the error of the
// exchange it was used for. Connections which failed other than by a local
// *common.SinkError are closed.
func (p *Pool) Put(c *client.Client, err error) {
	var keep = err == nil || common.IsSinkError(err)

	p.mu.Lock()
	if keep && !p.closed {
		p.idle = append(p.idle, c)
	} else {
		keep = false
	}
	p.mu.Unlock()

	if !keep {
		p.discard(c)
	}
	p.sem.Release(1)
}

// Prime ensures a connection to the backend can be established, and keeps it.
func (p *Pool) Prime(ctx context.Context) error {
	c, err := p.Get(ctx)
	if err != nil {
		return err
	}
	p.Put(c, nil)
	return nil
}

// Close idle connections. Checked-out connections are closed as they're Put.
func (p *Pool) Close() {
	p.mu.Lock()
	var idle = p.idle
	p.idle, p.closed = nil, true
	p.mu.Unlock()

	for _, c := range idle {
		p.discard(c)
	}
}

func (p *Pool) discard(c *client.Client) {
	_ = c.Close()
	metrics.BackendConnsOpen.WithLabelValues(p.Name).Dec()
}
