package socket

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAllVectoredWrite(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	s := &tcpSocket{conn: client, closed: make(chan struct{}), once: make(chan struct{}, 1)}

	go func() {
		buf := make([]byte, 11)
		n, _ := io.ReadFull(server, buf)
		assert.Equal(t, "hello world", string(buf[:n]))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := s.WriteAll(ctx, net.Buffers{[]byte("hello "), []byte("world")})
	require.NoError(t, err)
	assert.Equal(t, 11, n)
}

func TestCloseIsIdempotent(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	s := &tcpSocket{conn: client, closed: make(chan struct{}), once: make(chan struct{}, 1)}

	require.NoError(t, s.Close(CloseOpts{Mode: CloseSSLNotify}))
	require.NoError(t, s.Close(CloseOpts{Mode: CloseSSLNotify}), "second Close must be a no-op, not an error")
}

func TestDialSocketRejectsUnresolvedAddress(t *testing.T) {
	_, err := DialSocket(context.Background(), "not-a-host-port", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResolve)
}
