package link

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrix-construct/construct-sub003/internal/socket"
	"github.com/matrix-construct/construct-sub003/internal/tag"
)

// pipeSocket is a minimal in-memory Socket backed by net.Pipe, used to drive
// the Link's write/read state machines without a real TCP connection —
// mirroring the in-process harness style of a server's tests.
type pipeSocket struct {
	mu     sync.Mutex
	closed bool
	conn   net.Conn
}

func newPipeSocket(conn net.Conn) *pipeSocket {
	return &pipeSocket{conn: conn}
}

func (p *pipeSocket) WriteAll(ctx context.Context, buffers net.Buffers) (int, error) {
	n, err := buffers.WriteTo(p.conn)
	return int(n), err
}

func (p *pipeSocket) Read(ctx context.Context, b []byte) (int, error) {
	return p.conn.Read(b)
}

func (p *pipeSocket) WaitReadable(ctx context.Context) error { return nil }
func (p *pipeSocket) WaitWritable(ctx context.Context) error { return nil }

func (p *pipeSocket) Close(opts socket.CloseOpts) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.conn.Close()
}

func (p *pipeSocket) RemoteAddr() net.Addr { return p.conn.RemoteAddr() }

func TestLinkSubmitRoundTripFixedContentLength(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	l := New(newPipeSocket(clientConn), Options{TagMax: 4, TagCommitMax: 4, HeaderMaxSize: 4096}, nil)
	defer l.Close(socket.CloseOpts{})

	go func() {
		buf := make([]byte, 256)
		n, _ := serverConn.Read(buf)
		_ = buf[:n] // the written request; not asserted here

		resp := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"
		_, _ = serverConn.Write([]byte(resp))
	}()

	fut, err := l.Submit(tag.Request{Head: []byte("GET /x HTTP/1.1\r\nHost: a\r\n\r\n")})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := fut.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "hello", string(resp.Content))
}

func TestLinkSubmitRoundTripChunkedContiguous(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	l := New(newPipeSocket(clientConn), Options{TagMax: 4, TagCommitMax: 4, HeaderMaxSize: 4096}, nil)
	defer l.Close(socket.CloseOpts{})

	go func() {
		buf := make([]byte, 256)
		_, _ = serverConn.Read(buf)

		var resp bytes.Buffer
		resp.WriteString("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n")
		resp.WriteString("5\r\nhello\r\n")
		resp.WriteString("1\r\n!\r\n")
		resp.WriteString("0\r\n\r\n")
		_, _ = serverConn.Write(resp.Bytes())
	}()

	fut, err := l.Submit(tag.Request{
		Head:    []byte("GET /x HTTP/1.1\r\n\r\n"),
		Options: tag.RequestOptions{ContiguousContent: true},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := fut.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello!", string(resp.Content))
	assert.Nil(t, resp.Chunks)
}

func TestLinkSubmitRoundTripChunkedVector(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	l := New(newPipeSocket(clientConn), Options{TagMax: 4, TagCommitMax: 4, HeaderMaxSize: 4096}, nil)
	defer l.Close(socket.CloseOpts{})

	go func() {
		buf := make([]byte, 256)
		_, _ = serverConn.Read(buf)

		var resp bytes.Buffer
		resp.WriteString("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n")
		resp.WriteString("5\r\nhello\r\n")
		resp.WriteString("1\r\n!\r\n")
		resp.WriteString("0\r\n\r\n")
		_, _ = serverConn.Write(resp.Bytes())
	}()

	// ContiguousContent left false (the zero value): the response must come
	// back as a chunk vector, one entry per wire chunk, not concatenated.
	fut, err := l.Submit(tag.Request{Head: []byte("GET /x HTTP/1.1\r\n\r\n")})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := fut.Wait(ctx)
	require.NoError(t, err)
	assert.Empty(t, resp.Content)
	require.Len(t, resp.Chunks, 2)
	assert.Equal(t, "hello", string(resp.Chunks[0]))
	assert.Equal(t, "!", string(resp.Chunks[1]))
}

func TestLinkTagMaxRejectsAdmission(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	l := New(newPipeSocket(clientConn), Options{TagMax: 1, TagCommitMax: 1, HeaderMaxSize: 4096}, nil)
	defer l.Close(socket.CloseOpts{})

	// Nothing drains serverConn, so the first Tag stays queued/inflight
	// and occupies the Link's only admission slot.
	_, err := l.Submit(tag.Request{Head: []byte("GET / HTTP/1.1\r\n\r\n")})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	_, err = l.Submit(tag.Request{Head: []byte("GET /2 HTTP/1.1\r\n\r\n")})
	assert.Error(t, err)
}

func TestLinkCancelTagRemovesQueuedTagBeforeWrite(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	l := New(newPipeSocket(clientConn), Options{TagMax: 4, TagCommitMax: 4, HeaderMaxSize: 4096}, nil)
	defer l.Close(socket.CloseOpts{})

	// Nobody reads serverConn yet, so fut1's write blocks inside the Link's
	// writeLoop and fut2 sits in queue, never dialed.
	fut1, err := l.Submit(tag.Request{Head: []byte("GET /1 HTTP/1.1\r\n\r\n")})
	require.NoError(t, err)
	fut2, err := l.Submit(tag.Request{Head: []byte("GET /2 HTTP/1.1\r\n\r\n")})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	assert.True(t, l.CancelTag(fut2))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = fut2.Wait(ctx)
	assert.ErrorIs(t, err, tag.ErrCanceled)

	go func() {
		buf := make([]byte, 256)
		_, _ = serverConn.Read(buf)
		_, _ = serverConn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	}()
	resp1, err := fut1.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, resp1.StatusCode)
}

func TestLinkCancelTagOnInflightDiscardsResponse(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	l := New(newPipeSocket(clientConn), Options{TagMax: 4, TagCommitMax: 4, HeaderMaxSize: 4096}, nil)
	defer l.Close(socket.CloseOpts{})

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		buf := make([]byte, 256)
		_, _ = serverConn.Read(buf)
		// Give CancelTag a moment to run against the now-committed Tag
		// before the response arrives.
		time.Sleep(20 * time.Millisecond)
		_, _ = serverConn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello"))
	}()

	fut, err := l.Submit(tag.Request{Head: []byte("GET /x HTTP/1.1\r\n\r\n")})
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond) // let the write land so the Tag commits

	assert.True(t, l.CancelTag(fut))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = fut.Wait(ctx)
	assert.ErrorIs(t, err, tag.ErrCanceled)

	<-serverDone
}
