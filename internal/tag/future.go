package tag

import (
	"context"
	"sync"
)

// Future is the caller-facing handle for a Tag's eventual Response. It wraps
// an unbuffered done channel that is closed once: only the first Resolve or
// Reject call has effect, from whichever goroutine (Link read loop, Peer
// error path, Dispatcher cancellation) determines the Tag's outcome.
type Future struct {
	done chan struct{}
	once sync.Once

	resp Response
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve completes the Future successfully. Only the first call has effect.
func (f *Future) Resolve(resp Response) {
	f.once.Do(func() {
		f.resp = resp
		close(f.done)
	})
}

// Reject completes the Future with an error. Only the first call has effect.
func (f *Future) Reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the Future is resolved or ctx is done, whichever comes
// first.
func (f *Future) Wait(ctx context.Context) (Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Done returns a channel closed when the Future is resolved, for callers
// that want to select alongside other events.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Cancel marks t canceled. If t has not yet committed (its request has not
// been fully written), its Future is rejected immediately with ErrCanceled
// and the Link never writes it. If t has already committed, its side effect
// may already be in flight at the destination, so the response must still
// be read off the wire to keep the Link's framing in sync — but the Link's
// read loop discards it and rejects the Future with ErrCanceled instead of
// resolving it, once that read completes.
func Cancel(t *Tag) {
	t.cancel()
	if !t.Committed() {
		t.future.Reject(ErrCanceled)
	}
}

// Abandon marks t abandoned and rejects its Future with ErrAbandoned. Called
// by a Link when it terminates with t already committed.
func Abandon(t *Tag) {
	t.abandon()
	t.future.Reject(ErrAbandoned)
}
