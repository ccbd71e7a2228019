// Package peer manages the set of Links open to one destination: resolving
// its address, choosing which Link a new Tag is admitted onto, opening new
// Links up to the configured cap, and tracking destination-wide health so a
// failing destination is not retried on every single request.
package peer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/matrix-construct/construct-sub003/internal/link"
	"github.com/matrix-construct/construct-sub003/internal/resolvers"
	"github.com/matrix-construct/construct-sub003/internal/socket"
	"github.com/matrix-construct/construct-sub003/internal/tag"
)

// Options configures a Peer's admission caps and dial behavior. These
// correspond to BrokerConfig's *_default settings, resolved per-destination
// by the Dispatcher before constructing the Peer.
type Options struct {
	LinkMin       int
	LinkMax       int
	TagMax        int
	TagCommitMax  int
	HeaderMaxSize int
	DialTimeout   time.Duration
	ErrorCooldown time.Duration
	EnableIPv6    bool
	TLSConfig     *tls.Config
}

// Peer is the sole process-wide mutable record for one destination: its
// Links, their admission state, and its error-cooldown slot. Per the
// concurrency model, Peer's registry (held by the Dispatcher) is mutated
// only from the Dispatcher's single scheduler goroutine, so Peer itself does
// not need to be safe for concurrent Submit calls from arbitrary goroutines
// — callers funnel through the Dispatcher's jobs channel.
type Peer struct {
	destination string
	opts        Options
	resolver    resolvers.DestinationResolver
	log         *slog.Logger

	mu     sync.Mutex
	links  []*link.Link
	closed bool

	errSlot *errorSlot
}

// New creates a Peer for destination. No Link is opened until the first
// Submit call.
func New(destination string, opts Options, resolver resolvers.DestinationResolver, log *slog.Logger) *Peer {
	if opts.ErrorCooldown <= 0 {
		opts.ErrorCooldown = 30 * time.Second
	}
	return &Peer{
		destination: destination,
		opts:        opts,
		resolver:    resolver,
		log:         log,
		errSlot:     newErrorSlot(opts.ErrorCooldown),
	}
}

// Destination returns the name this Peer serves.
func (p *Peer) Destination() string { return p.destination }

// Submit admits req onto one of the Peer's Links, opening a new Link (up to
// LinkMax) when every existing Link is saturated, and queueing onto the
// least-loaded Link when even LinkMax is reached. Returns ErrLinksExhausted
// when no Link can accept it, or the destination's cooldown has not yet
// elapsed after a recent failure.
func (p *Peer) Submit(ctx context.Context, req tag.Request) (*tag.Future, error) {
	if !p.errSlot.canTry() {
		return nil, fmt.Errorf("peer %s: %w", p.destination, tag.ErrLinksExhausted)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, tag.ErrClosed
	}

	idx, openNew := selectLink(p.links, p.opts.TagMax, p.opts.TagCommitMax)
	if !openNew {
		l := p.links[idx]
		p.mu.Unlock()
		fut, err := l.Submit(req)
		if err != nil {
			return nil, err
		}
		return fut, nil
	}

	if len(p.links) >= p.opts.LinkMax {
		overflowIdx := selectOverflowLink(p.links, p.opts.TagMax)
		if overflowIdx < 0 {
			p.mu.Unlock()
			p.errSlot.markFailed()
			return nil, fmt.Errorf("peer %s: %w", p.destination, tag.ErrLinksExhausted)
		}
		l := p.links[overflowIdx]
		p.mu.Unlock()
		return l.Submit(req)
	}
	p.mu.Unlock()

	l, err := p.openLink(ctx)
	if err != nil {
		p.errSlot.markFailed()
		return nil, err
	}
	p.errSlot.markHealthy()

	fut, err := l.Submit(req)
	if err != nil {
		return nil, err
	}
	return fut, nil
}

// openLink resolves the destination, dials a new Socket, and wraps it in a
// Link registered with the Peer.
func (p *Peer) openLink(ctx context.Context) (*link.Link, error) {
	dialCtx := ctx
	var cancel context.CancelFunc
	if p.opts.DialTimeout > 0 {
		dialCtx, cancel = context.WithTimeout(ctx, p.opts.DialTimeout)
		defer cancel()
	}

	addr, port, err := resolveAddr(dialCtx, p.resolver, p.destination, p.opts.EnableIPv6)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", p.destination, err)
	}

	sock, err := socket.DialSocket(dialCtx, net.JoinHostPort(addr, fmt.Sprint(port)), p.opts.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", p.destination, err)
	}

	l := link.New(sock, link.Options{
		TagMax:        p.opts.TagMax,
		TagCommitMax:  p.opts.TagCommitMax,
		HeaderMaxSize: p.opts.HeaderMaxSize,
		Requeue:       p.requeueTag,
	}, p.log)

	p.mu.Lock()
	p.links = append(p.links, l)
	p.mu.Unlock()

	return l, nil
}

// requeueTag resubmits an uncommitted Tag whose Link failed before its
// request finished writing, onto another Link of the same Peer (opening one
// if needed), forwarding the resubmission's eventual outcome to the Tag's
// original Future. The caller already holds that Future, so it must be the
// one that resolves no matter which Link the Tag ultimately rides on.
func (p *Peer) requeueTag(t *tag.Tag) {
	fut, err := p.Submit(context.Background(), t.Request())
	if err != nil {
		t.Future().Reject(err)
		return
	}
	go func() {
		resp, werr := fut.Wait(context.Background())
		if werr != nil {
			t.Future().Reject(werr)
			return
		}
		t.Future().Resolve(resp)
	}()
}

// CancelTag locates the Tag behind fut among this Peer's Links and cancels
// it, reporting whether it was found.
func (p *Peer) CancelTag(fut *tag.Future) bool {
	p.mu.Lock()
	links := append([]*link.Link(nil), p.links...)
	p.mu.Unlock()

	for _, l := range links {
		if l.CancelTag(fut) {
			return true
		}
	}
	return false
}

// CancelAll cancels every Tag currently queued or inflight on every Link of
// this Peer, used when a destination is administratively removed from the
// policy allow-list.
func (p *Peer) CancelAll() {
	p.mu.Lock()
	links := append([]*link.Link(nil), p.links...)
	p.mu.Unlock()

	for _, l := range links {
		_ = l.Close(socket.CloseOpts{Mode: socket.CloseSSLNotify})
	}
}

// Close closes every Link belonging to the Peer.
func (p *Peer) Close(opts socket.CloseOpts) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	links := p.links
	p.links = nil
	p.mu.Unlock()

	var firstErr error
	for _, l := range links {
		if err := l.Close(opts); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LinkCount returns the number of Links currently open to this destination.
func (p *Peer) LinkCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.links)
}
