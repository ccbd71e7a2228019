// Package batchio provides the bulk-fetch facade callers use to pull many
// related federation resources (room events, backfill pages, room state) in
// one call, each descriptor populated concurrently using the same
// sync.WaitGroup fan-out idiom used per accepted
// connection (wg.Go launching one goroutine per unit of work, Wait
// collecting them all before returning).
package batchio

import (
	"context"
	"fmt"
	"sync"

	"github.com/matrix-construct/construct-sub003/internal/directory"
	"github.com/matrix-construct/construct-sub003/internal/dispatch"
	"github.com/matrix-construct/construct-sub003/internal/jsonview"
	"github.com/matrix-construct/construct-sub003/internal/pool"
	"github.com/matrix-construct/construct-sub003/internal/tag"
)

// Descriptor is one fetch within a batch: a destination plus path, populated
// in place by Acquire* with either a Future or an already-local result.
type Descriptor struct {
	Destination string
	Path        string

	// Hint carries an optional static directory override for this
	// descriptor's destination. The facade itself does not read it: every
	// dispatched descriptor goes through the Dispatcher's SRV/AAAA/A resolution.
	Hint *directory.Hint

	// Local, set by the AcquireLocal oracle, short-circuits the descriptor:
	// when true the facade never calls the Dispatcher for it, and View is
	// expected to already be populated by the caller.
	Local bool

	buf   *[]byte
	View  jsonview.View
	Err   error
}

// Facade is the batch I/O entry point. AcquireLocal, when set, is consulted
// before dispatching each descriptor over the network — implementations
// typically check a local room-state cache or the static directory.
type Facade struct {
	dispatcher   *dispatch.Dispatcher
	bufPool      *pool.Pool[*[]byte]
	AcquireLocal func(d *Descriptor) bool
}

// New creates a Facade backed by dispatcher.
func New(dispatcher *dispatch.Dispatcher) *Facade {
	return &Facade{
		dispatcher: dispatcher,
		bufPool: pool.New(func() *[]byte {
			b := make([]byte, 0, 4096)
			return &b
		}),
	}
}

// AcquireEvents fetches a batch of individual event descriptors concurrently.
func (f *Facade) AcquireEvents(ctx context.Context, descs []*Descriptor) error {
	return f.acquire(ctx, descs, "GET")
}

// AcquireRoomBackfill fetches a batch of room-backfill page descriptors
// concurrently (Go has no overload-by-return-type, so each Acquire* method
// names the resource kind it fetches instead).
func (f *Facade) AcquireRoomBackfill(ctx context.Context, descs []*Descriptor) error {
	return f.acquire(ctx, descs, "GET")
}

// AcquireRoomState fetches a batch of room-state descriptors concurrently.
func (f *Facade) AcquireRoomState(ctx context.Context, descs []*Descriptor) error {
	return f.acquire(ctx, descs, "GET")
}

// acquire is the shared fan-out: every descriptor not resolved locally is
// dispatched concurrently, and acquire blocks until every one of them has
// either a parsed View or an Err.
func (f *Facade) acquire(ctx context.Context, descs []*Descriptor, method string) error {
	var wg sync.WaitGroup
	for _, d := range descs {
		if f.AcquireLocal != nil && f.AcquireLocal(d) {
			d.Local = true
			continue
		}
		wg.Go(func() {
			f.fetchOne(ctx, d, method)
		})
	}
	wg.Wait()
	return nil
}

func (f *Facade) fetchOne(ctx context.Context, d *Descriptor, method string) {
	head := fmt.Appendf(nil, "%s %s HTTP/1.1\r\nHost: %s\r\n\r\n", method, d.Path, d.Destination)

	fut, err := f.dispatcher.Submit(ctx, d.Destination, tag.Request{
		Head: head,
		Options: tag.RequestOptions{
			// The facade always needs one parseable JSON body, never a chunk
			// vector, whether the response is framed with Content-Length or
			// chunked transfer encoding.
			ContiguousContent: true,
		},
	})
	if err != nil {
		d.Err = err
		return
	}

	resp, err := fut.Wait(ctx)
	if err != nil {
		d.Err = err
		return
	}

	buf := f.bufPool.Get()
	*buf = append((*buf)[:0], resp.Content...)
	d.buf = buf

	view, err := jsonview.Parse(resp.Content)
	if err != nil {
		d.Err = fmt.Errorf("batchio: decode %s%s: %w", d.Destination, d.Path, err)
		return
	}
	d.View = view
}

// Release returns every descriptor's backing buffer to the pool. Callers
// must not touch Descriptor.View after calling Release.
func (f *Facade) Release(descs []*Descriptor) {
	for _, d := range descs {
		if d.buf != nil {
			f.bufPool.Put(d.buf)
			d.buf = nil
		}
	}
}
