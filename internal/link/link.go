// Package link implements a single outbound connection to a destination: a
// strictly-FIFO write queue of Tags paired with a FIFO-matched read loop that
// parses each Tag's response off the wire. The write/read loop shape is
// carried over from a TCP server's handleConnection, turned from a
// server-side accept loop into a client-side dial-and-pump loop.
package link

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/matrix-construct/construct-sub003/internal/pool"
	"github.com/matrix-construct/construct-sub003/internal/socket"
	"github.com/matrix-construct/construct-sub003/internal/tag"
)

// Options configures admission and timing for a Link.
type Options struct {
	TagMax        int
	TagCommitMax  int
	HeaderMaxSize int

	// Requeue, when non-nil, is called by a failing Link for every Tag that
	// had not yet committed (queued, or inflight but not yet fully written)
	// at the moment of failure, handing it back to the owning Peer for
	// resubmission onto another Link. When nil, such Tags are simply
	// rejected with the transport error instead.
	Requeue func(t *tag.Tag)
}

// Link pumps a strictly-ordered queue of Tags across one Socket: writes go
// out FIFO, and each response is read and matched to the write that produced
// it in the same order (no out-of-order multiplexing within a Link, unlike
// across the Links of a single Peer).
type Link struct {
	sock    socket.Socket
	opts    Options
	log     *slog.Logger
	requeue func(t *tag.Tag)

	mu        sync.Mutex
	queue     []*tag.Tag // admitted, not yet written
	inflight  []*tag.Tag // written, awaiting response, FIFO order
	committed int        // count of inflight tags that have fully written (== len(inflight) in steady state)

	closed    bool
	closeOnce sync.Once
	done      chan struct{}

	wake chan struct{}

	bufPool *pool.Pool[*[]byte]
}

// New wraps sock in a Link, starting its write and read pump goroutines.
func New(sock socket.Socket, opts Options, log *slog.Logger) *Link {
	if opts.HeaderMaxSize <= 0 {
		opts.HeaderMaxSize = 64 * 1024
	}
	l := &Link{
		sock:    sock,
		opts:    opts,
		log:     log,
		requeue: opts.Requeue,
		done:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
		bufPool: pool.New(func() *[]byte {
			b := make([]byte, 32*1024)
			return &b
		}),
	}
	go l.writeLoop()
	go l.readLoop()
	return l
}

// TagCount returns the number of Tags admitted but not yet resolved (queued
// plus inflight).
func (l *Link) TagCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) + len(l.inflight)
}

// TagCommitted returns the number of inflight Tags whose request has been
// fully written (committed).
func (l *Link) TagCommitted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.committed
}

// Submit admits req onto the Link's write queue, returning a Future for the
// eventual Response. Returns ResourceError if the Link is already at
// TagMax, or LogicalError if the Link is closed.
func (l *Link) Submit(req tag.Request) (*tag.Future, error) {
	t := tag.New(req)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, tag.ErrClosed
	}
	if len(l.queue)+len(l.inflight) >= l.opts.TagMax && req.Options.Priority != minPriority {
		l.mu.Unlock()
		return nil, &resourceErrTagMax{}
	}
	l.insertByPriority(t)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	return t.Future(), nil
}

// CancelTag locates the Tag owning fut and cancels it, reporting whether it
// was found on this Link. A Tag still in queue is spliced out synchronously
// and never dialed; a Tag already inflight is marked canceled and left to
// the read loop, which discards its response instead of resolving it once
// the read completes (the framing still requires reading it off the wire).
func (l *Link) CancelTag(fut *tag.Future) bool {
	l.mu.Lock()
	for i, t := range l.queue {
		if t.Future() == fut {
			l.queue = append(l.queue[:i:i], l.queue[i+1:]...)
			l.mu.Unlock()
			tag.Cancel(t)
			return true
		}
	}
	for _, t := range l.inflight {
		if t.Future() == fut {
			l.mu.Unlock()
			tag.Cancel(t)
			return true
		}
	}
	l.mu.Unlock()
	return false
}

const minPriority = -1 << 15 // math.MinInt16, reserved over-cap slot

func (l *Link) insertByPriority(t *tag.Tag) {
	p := t.Request().Options.Priority
	i := len(l.queue)
	for i > 0 && l.queue[i-1].Request().Options.Priority > p {
		i--
	}
	l.queue = append(l.queue, nil)
	copy(l.queue[i+1:], l.queue[i:])
	l.queue[i] = t
}

type resourceErrTagMax struct{}

func (*resourceErrTagMax) Error() string { return "resource: link at tag admission cap" }

// writeLoop pulls queued Tags in priority/FIFO order and writes their
// request bytes to the Socket using a vectored write, mirroring
// TCPServer.writeMessage's net.Buffers{lenBuf, response}.WriteTo pattern.
func (l *Link) writeLoop() {
	ctx := context.Background()
	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			t := l.queue[0]
			l.queue = l.queue[1:]
			if t.Canceled() {
				// Canceled before a single byte was written: its Future was
				// already rejected by Cancel; just drop it, never dial out.
				l.mu.Unlock()
				continue
			}
			l.inflight = append(l.inflight, t)
			l.mu.Unlock()

			req := t.Request()
			buffers := net.Buffers{req.Head}
			if len(req.Content) > 0 {
				buffers = append(buffers, req.Content)
			}

			n, err := l.sock.WriteAll(ctx, buffers)
			if err != nil {
				l.terminate(fmt.Errorf("write: %w", err))
				return
			}
			t.WroteBuffer(n)

			if req.Options.OnProgress != nil && len(req.Content) > 0 {
				req.Options.OnProgress(len(req.Content))
			}

			l.mu.Lock()
			l.committed++
			l.mu.Unlock()
		}
	}
}

// readLoop matches each Socket read to the oldest inflight Tag, running the
// AwaitHead -> ReadContentFixed|ReadChunkHead(->ReadChunkBody)|ReadDynamic
// state machine for each response in turn.
func (l *Link) readLoop() {
	ctx := context.Background()
	var buf bytes.Buffer
	readBuf := make([]byte, 32*1024)

	for {
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()

		t := l.nextInflight()
		if t == nil {
			select {
			case <-l.done:
				return
			case <-l.wake:
				continue
			}
		}

		resp, err := l.readOneResponse(ctx, &buf, readBuf, t)
		if err != nil {
			l.terminate(fmt.Errorf("read: %w", err))
			return
		}

		if t.Canceled() {
			// Committed before cancellation: the framing required reading
			// the response to completion, but the caller asked to discard
			// it. Cancel already rejected pre-commit Tags; this is the
			// post-commit half of that contract.
			t.Future().Reject(tag.ErrCanceled)
		} else {
			t.Future().Resolve(resp)
		}
		l.popInflight()
	}
}

func (l *Link) nextInflight() *tag.Tag {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.inflight) == 0 {
		return nil
	}
	return l.inflight[0]
}

func (l *Link) popInflight() {
	l.mu.Lock()
	if len(l.inflight) > 0 {
		l.inflight = l.inflight[1:]
		if l.committed > 0 {
			l.committed--
		}
	}
	l.mu.Unlock()
}

// readOneResponse runs the read state machine to completion for a single
// Tag's response.
func (l *Link) readOneResponse(ctx context.Context, buf *bytes.Buffer, readBuf []byte, t *tag.Tag) (tag.Response, error) {
	opts := t.Request().Options
	state := readAwaitHead
	var head []byte
	var contentLen int
	var hasContentLen bool
	var chunked bool
	var content bytes.Buffer
	var chunks [][]byte
	var discard int

	fill := func() error {
		n, err := l.sock.Read(ctx, readBuf)
		if n > 0 {
			buf.Write(readBuf[:n])
		}
		if err != nil {
			return err
		}
		return nil
	}

	for state != readDone {
		switch state {
		case readAwaitHead:
			idx := bytes.Index(buf.Bytes(), []byte("\r\n\r\n"))
			if idx < 0 {
				if buf.Len() > l.opts.HeaderMaxSize {
					return tag.Response{}, &protocolErrHeaderTooLarge{}
				}
				if err := fill(); err != nil {
					return tag.Response{}, err
				}
				continue
			}
			all := buf.Bytes()
			head = append([]byte(nil), all[:idx]...)
			buf.Next(idx + 4)
			contentLen, hasContentLen, chunked = parseHeadMeta(head)
			if hasContentLen && opts.ContentLengthMaxAlloc > 0 && contentLen > opts.ContentLengthMaxAlloc {
				if opts.TruncateContent {
					discard = contentLen - opts.ContentLengthMaxAlloc
					contentLen = opts.ContentLengthMaxAlloc
				} else {
					return tag.Response{}, tag.ErrAllocCapExceeded
				}
			}
			switch {
			case chunked:
				state = readChunkHead
			case hasContentLen:
				state = readContentFixed
			default:
				state = readDynamic
			}

		case readContentFixed:
			if buf.Len() < contentLen+discard {
				if err := fill(); err != nil {
					return tag.Response{}, err
				}
				continue
			}
			content.Write(buf.Next(contentLen))
			buf.Next(discard) // truncated overflow: read off the wire and dropped
			state = readDone

		case readChunkHead:
			idx := bytes.Index(buf.Bytes(), []byte("\r\n"))
			if idx < 0 {
				if err := fill(); err != nil {
					return tag.Response{}, err
				}
				continue
			}
			sizeLine := string(buf.Next(idx + 2)[:idx])
			size, err := strconv.ParseInt(strings.TrimSpace(sizeLine), 16, 64)
			if err != nil {
				return tag.Response{}, &protocolErrBadChunk{}
			}
			if size == 0 {
				state = readDone
				continue
			}
			contentLen = int(size)
			state = readChunkBody

		case readChunkBody:
			overCap := opts.ContiguousContent && opts.ContentLengthMaxAlloc > 0 &&
				content.Len()+contentLen > opts.ContentLengthMaxAlloc
			if overCap && !opts.TruncateContent {
				return tag.Response{}, tag.ErrBufferOverrun
			}
			if buf.Len() < contentLen+2 {
				if err := fill(); err != nil {
					return tag.Response{}, err
				}
				continue
			}
			chunk := append([]byte(nil), buf.Next(contentLen)...)
			buf.Next(2) // trailing CRLF
			if opts.ContiguousContent {
				if overCap {
					// TruncateContent: keep bytes up to the cap, drop the rest.
					chunk = chunk[:opts.ContentLengthMaxAlloc-content.Len()]
				}
				content.Write(chunk)
			} else {
				chunks = append(chunks, chunk)
				t.ReadBuffer(chunk)
			}
			state = readChunkHead

		case readDynamic:
			if err := fill(); err != nil {
				if isCleanEOF(err) {
					content.Write(buf.Next(buf.Len()))
					state = readDone
					continue
				}
				return tag.Response{}, err
			}
		}

		t.ReadBuffer(content.Bytes())
	}

	t.markReadDone()
	status, statusLine := parseStatusLine(head)
	return tag.Response{
		StatusCode: status,
		Status:     statusLine,
		Head:       head,
		Content:    content.Bytes(),
		Chunks:     chunks,
	}, nil
}

func isCleanEOF(err error) bool {
	return err == socket.ErrEOF
}

func parseHeadMeta(head []byte) (contentLen int, hasContentLen bool, chunked bool) {
	lines := strings.Split(string(head), "\r\n")
	for _, line := range lines[1:] {
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		switch k {
		case "content-length":
			if n, err := strconv.Atoi(v); err == nil {
				contentLen = n
				hasContentLen = true
			}
		case "transfer-encoding":
			if strings.EqualFold(v, "chunked") {
				chunked = true
			}
		}
	}
	return
}

func parseStatusLine(head []byte) (int, string) {
	line, _, _ := bytes.Cut(head, []byte("\r\n"))
	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) < 2 {
		return 0, string(line)
	}
	code, _ := strconv.Atoi(parts[1])
	return code, string(line)
}

type protocolErrHeaderTooLarge struct{}

func (*protocolErrHeaderTooLarge) Error() string { return "protocol: header exceeds HeaderMaxSize" }

type protocolErrBadChunk struct{}

func (*protocolErrBadChunk) Error() string { return "protocol: malformed chunk size" }

// terminate closes the Socket and resolves every Tag: committed inflight
// Tags fail terminally (Abandoned), since their request may have already
// had a side effect at the destination. Uncommitted Tags — both the queue
// and whichever inflight Tag was being written when the failure hit — are
// handed back to the owning Peer via Requeue for redispatch onto another
// Link; when no Requeue callback is set, they are rejected with the
// transport error instead.
func (l *Link) terminate(err error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	queued := l.queue
	inflight := l.inflight
	l.queue = nil
	l.inflight = nil
	l.mu.Unlock()

	_ = l.sock.Close(socket.CloseOpts{Mode: socket.CloseReset})
	close(l.done)

	var abandoned, requeued int
	for _, t := range inflight {
		if t.Committed() {
			tag.Abandon(t)
			abandoned++
		} else {
			l.requeueOrReject(t, err)
			requeued++
		}
	}
	for _, t := range queued {
		l.requeueOrReject(t, err)
		requeued++
	}

	if l.log != nil {
		l.log.Warn("link terminated", "err", err, "abandoned", abandoned, "requeued", requeued)
	}
}

// requeueOrReject hands t back to the owning Peer for redispatch if one was
// supplied, otherwise rejects t's Future directly with err.
func (l *Link) requeueOrReject(t *tag.Tag, err error) {
	if l.requeue != nil {
		l.requeue(t)
		return
	}
	t.Future().Reject(err)
}

// Close idempotently shuts the Link down, mirroring TCPServer.Stop's
// done-channel guard.
func (l *Link) Close(opts socket.CloseOpts) error {
	var err error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		queued := l.queue
		inflight := l.inflight
		l.queue = nil
		l.inflight = nil
		l.mu.Unlock()

		err = l.sock.Close(opts)
		close(l.done)

		for _, t := range inflight {
			tag.Abandon(t)
		}
		for _, t := range queued {
			tag.Cancel(t)
		}
	})
	return err
}
