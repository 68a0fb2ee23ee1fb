// Package client implements the requesting side of every command. It is
// used by the command-line client toward the router, and by the router
// toward its backends.
package client

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"distfs/common"
	"distfs/protocol"
)

// Client issues Commands over a Channel, one at a time.
type Client struct {
	ch *common.Channel
}

// New returns a Client of the Channel.
func New(ch *common.Channel) *Client { return &Client{ch: ch} }

// Dial a node at |addr|, giving up after |timeout| if non-zero.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	var d = net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}
	return New(common.NewChannel(conn)), nil
}

// Channel of the Client.
func (c *Client) Channel() *common.Channel { return c.ch }

// Close the Client's connection.
func (c *Client) Close() error { return c.ch.Close() }

// Store sends |size| bytes of |r| as file |name| within directory |destDir|.
func (c *Client) Store(name string, size int64, destDir string, r io.Reader) (string, error) {
	if err := c.command(protocol.NewStore(name, size, destDir)); err != nil {
		return "", err
	}
	if err := c.ch.SendBytes(r, size); err != nil {
		return "", err
	}
	if err := c.ch.ReadAck(); err != nil {
		return "", err
	}
	return c.ch.ReadMessage()
}

// Fetch the file at |relPath| into |w|. The returned size is
// common.NotFound if the file does not exist, in which case nothing is
// written. A *common.SinkError is returned alongside the status if |w| failed.
func (c *Client) Fetch(relPath string, w io.Writer) (int64, string, error) {
	return c.download(protocol.NewFetch(relPath), w)
}

// Delete the file at |relPath|.
func (c *Client) Delete(relPath string) (string, error) {
	if err := c.command(protocol.NewDelete(relPath)); err != nil {
		return "", err
	}
	if err := c.ch.ReadAck(); err != nil {
		return "", err
	}
	return c.ch.ReadMessage()
}

// List files beneath |dirPath| into |w| as listing lines, returning the
// listing size. A size of zero means no files were found.
func (c *Client) List(dirPath string, w io.Writer) (int64, string, error) {
	return c.download(protocol.NewList(dirPath), w)
}

// Archive requests a fresh archive for |keyword| and downloads it into |w|.
func (c *Client) Archive(keyword string, w io.Writer) (int64, string, error) {
	return c.download(protocol.NewArchive(keyword), w)
}

func (c *Client) command(cmd protocol.Command) error {
	ack, err := c.ch.SendAcknowledged(cmd.String())
	if err != nil {
		return err
	} else if ack != common.Ack {
		return errors.Errorf("unexpected acknowledgement of %s: %q", cmd.Verb, ack)
	}
	return nil
}

func (c *Client) download(cmd protocol.Command, w io.Writer) (int64, string, error) {
	if err := c.command(cmd); err != nil {
		return 0, "", err
	}
	var n, sinkErr = c.ch.RecvPayload(w)
	if sinkErr != nil && !common.IsSinkError(sinkErr) {
		return n, "", sinkErr
	}
	status, err := c.ch.ReadMessage()
	if err != nil {
		return n, "", err
	}
	return n, status, sinkErr
}
