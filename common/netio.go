package common

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// MaxFrameSize bounds a single control frame.
const MaxFrameSize = 64 * 1024

// ErrFrameTooLarge is returned for frames whose length prefix exceeds the limit.
var ErrFrameTooLarge = errors.New("control frame exceeds maximum size")

// WriteFrame writes p prefixed with its big-endian uint32 length, in one write.
func WriteFrame(w io.Writer, p []byte) error {
	if len(p) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var buf = make([]byte, 4+len(p))
	binary.BigEndian.PutUint32(buf, uint32(len(p)))
	copy(buf[4:], p)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length-prefixed frame of at most limit bytes.
func ReadFrame(r io.Reader, limit int) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(lenBuf)
	if int64(n) > int64(limit) {
		return nil, ErrFrameTooLarge
	}
	data := make([]byte, n)

	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return data, nil
}
