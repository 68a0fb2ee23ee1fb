package common

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"distfs/metrics"
)

// Ack is the fixed acknowledgement frame exchanged after every control
// message and after every completed payload transfer.
const Ack = "ack"

// NotFound is the size announced in place of a payload which does not exist.
const NotFound = -1

// chunkSize bounds the buffer used to move payload bytes.
const chunkSize = 32 * 1024

// ErrShortPayload is returned when a payload source ends before the
// announced byte count was sent.
var ErrShortPayload = errors.New("payload source ended before announced size")

// SinkError reports that received payload bytes could not be written
// locally. The payload was still consumed in full, so the Channel remains
// usable for the next exchange.
type SinkError struct {
	Err error
}

func (e *SinkError) Error() string { return "writing received payload: " + e.Err.Error() }

// Unwrap returns the underlying write error.
func (e *SinkError) Unwrap() error { return e.Err }

// IsSinkError returns whether err wraps a *SinkError.
func IsSinkError(err error) bool {
	var se *SinkError
	return errors.As(err, &se)
}

// Channel is an ordered, acknowledged message exchange over a single
// connection. It is not safe for concurrent use: the protocol requires strict
// request / response alternation, and callers must serialize exchanges.
type Channel struct {
	// Timeout, if non-zero, bounds each individual read or write.
	Timeout time.Duration

	conn net.Conn
	r    *bufio.Reader
}

// NewChannel wraps conn.
func NewChannel(conn net.Conn) *Channel {
	return &Channel{
		conn: conn,
		r:    bufio.NewReaderSize(conn, chunkSize),
	}
}

// RemoteAddr of the underlying connection.
func (c *Channel) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close the underlying connection.
func (c *Channel) Close() error { return c.conn.Close() }

func (c *Channel) arm() {
	if c.Timeout != 0 {
		_ = c.conn.SetDeadline(time.Now().Add(c.Timeout))
	}
}

// WriteMessage writes a single unacknowledged control message.
func (c *Channel) WriteMessage(msg string) error {
	c.arm()
	return errors.Wrap(WriteFrame(c.conn, []byte(msg)), "writing message")
}

// ReadMessage reads a single unacknowledged control message.
func (c *Channel) ReadMessage() (string, error) {
	c.arm()
	var b, err = ReadFrame(c.r, MaxFrameSize)
	if err != nil {
		return "", errors.Wrap(err, "reading message")
	}
	return string(b), nil
}

// ReadAck reads a trailing acknowledgement and verifies it.
func (c *Channel) ReadAck() error {
	var msg, err = c.ReadMessage()
	if err != nil {
		return err
	}
	if msg != Ack {
		return errors.Errorf("expected acknowledgement, got %q", msg)
	}
	return nil
}

// SendAcknowledged writes msg, then blocks for the peer's acknowledgement
// (or answer) and returns it.
func (c *Channel) SendAcknowledged(msg string) (string, error) {
	if err := c.WriteMessage(msg); err != nil {
		return "", err
	}
	return c.ReadMessage()
}

// ReceiveAcknowledged blocks for the peer's next message, acknowledges it
// with ack, and returns it.
func (c *Channel) ReceiveAcknowledged(ack string) (string, error) {
	var msg, err = c.ReadMessage()
	if err != nil {
		return "", err
	}
	if err = c.WriteMessage(ack); err != nil {
		return "", err
	}
	return msg, nil
}

// SendSize announces a payload size (or NotFound) and awaits its acknowledgement.
func (c *Channel) SendSize(n int64) error {
	_, err := c.SendAcknowledged(strconv.FormatInt(n, 10))
	return err
}

// RecvSize receives and acknowledges an announced payload size.
func (c *Channel) RecvSize() (int64, error) {
	var msg, err = c.ReceiveAcknowledged(Ack)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(msg), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing announced size %q", msg)
	} else if n < NotFound {
		return 0, errors.Errorf("invalid announced size %d", n)
	}
	return n, nil
}

// SendBytes streams exactly n bytes of r, without framing. Any error leaves
// the stream misaligned and the Channel must not be reused.
func (c *Channel) SendBytes(r io.Reader, n int64) error {
	var buf = make([]byte, chunkSize)
	var sent int64

	for sent < n {
		var chunk = buf
		if rem := n - sent; rem < int64(len(chunk)) {
			chunk = chunk[:rem]
		}
		m, rerr := r.Read(chunk)
		if m > 0 {
			c.arm()
			if _, err := c.conn.Write(chunk[:m]); err != nil {
				return errors.Wrap(err, "sending payload")
			}
			sent += int64(m)
			metrics.PayloadBytesTotal.WithLabelValues(metrics.Sent).Add(float64(m))
		}
		if rerr == io.EOF {
			if sent < n {
				return ErrShortPayload
			}
		} else if rerr != nil {
			return errors.Wrap(rerr, "reading payload source")
		}
	}
	return nil
}

// RecvBytes reads exactly n bytes into w. Should w fail, the remainder is
// still consumed and a *SinkError is returned.
func (c *Channel) RecvBytes(w io.Writer, n int64) error {
	var buf = make([]byte, chunkSize)
	var sinkErr error

	for remaining := n; remaining > 0; {
		var chunk = buf
		if remaining < int64(len(chunk)) {
			chunk = chunk[:remaining]
		}
		c.arm()
		m, err := c.r.Read(chunk)
		if m > 0 {
			if sinkErr == nil {
				if _, werr := w.Write(chunk[:m]); werr != nil {
					sinkErr = werr
				}
			}
			remaining -= int64(m)
			metrics.PayloadBytesTotal.WithLabelValues(metrics.Received).Add(float64(m))
		}
		if err != nil && remaining != 0 {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return errors.Wrap(err, "receiving payload")
		}
	}
	if sinkErr != nil {
		return &SinkError{Err: sinkErr}
	}
	return nil
}

// SendPayload announces |n| and, if positive, streams n bytes of r and
// awaits the receiver's trailing acknowledgement. Announcing zero or
// NotFound ends the exchange after the size.
func (c *Channel) SendPayload(r io.Reader, n int64) error {
	if err := c.SendSize(n); err != nil {
		return err
	} else if n <= 0 {
		return nil
	}
	if err := c.SendBytes(r, n); err != nil {
		return err
	}
	return c.ReadAck()
}

// RecvPayload is the receiving side of SendPayload. It returns the announced
// size, which is NotFound if the sender had nothing to send. A returned
// *SinkError leaves the Channel aligned and usable.
func (c *Channel) RecvPayload(w io.Writer) (int64, error) {
	var n, err = c.RecvSize()
	if err != nil || n <= 0 {
		return n, err
	}
	err = c.RecvBytes(w, n)
	if err != nil && !IsSinkError(err) {
		return n, err
	}
	if aerr := c.WriteMessage(Ack); aerr != nil {
		return n, aerr
	}
	return n, err
}
