package router

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"distfs/protocol"
)

func TestPoolReusesAndDiscards(t *testing.T) {
	var addr, _ = serve(t, newNode(t, protocol.Text))
	var pool = NewPool("text", addr, 1)
	var ctx = context.Background()

	c1, err := pool.Get(ctx)
	require.NoError(t, err)
	pool.Put(c1, nil)

	c2, err := pool.Get(ctx)
	require.NoError(t, err)
	require.True(t, c1 == c2)

	// A failed exchange drops the connection.
	pool.Put(c2, errors.New("connection reset"))
	c3, err := pool.Get(ctx)
	require.NoError(t, err)
	require.False(t, c2 == c3)
	pool.Put(c3, nil)

	pool.Close()
	_, err = pool.Get(ctx)
	require.Equal(t, ErrPoolClosed, errors.Cause(err))
}

func TestPoolClosedWhileCheckedOut(t *testing.T) {
	var addr, _ = serve(t, newNode(t, protocol.PDF))
	var pool = NewPool("pdf", addr, 1)

	c, err := pool.Get(context.Background())
	require.NoError(t, err)
	pool.Close()
	pool.Put(c, nil)

	// Put released the checkout, and Get refuses to dial again.
	_, err = pool.Get(context.Background())
	require.Equal(t, ErrPoolClosed, errors.Cause(err))
	require.Error(t, c.Channel().WriteMessage("ping"))
}
