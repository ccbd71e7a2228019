// Package dispatch owns the process-wide Peer registry and the single
// scheduler goroutine that mutates it, generalizing the process-wide
// upstream-pool idiom (one shared, mutex-free-in-the-steady-state pool
// object consulted by every accept-loop goroutine) from a pool of DNS
// upstreams to a registry of federation destinations.
package dispatch

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/matrix-construct/construct-sub003/internal/config"
	"github.com/matrix-construct/construct-sub003/internal/peer"
	"github.com/matrix-construct/construct-sub003/internal/policy"
	"github.com/matrix-construct/construct-sub003/internal/resolvers"
	"github.com/matrix-construct/construct-sub003/internal/socket"
	"github.com/matrix-construct/construct-sub003/internal/tag"
)

// job is a unit of work trampolined onto the scheduler goroutine: a Submit,
// Cancel, Close or stats request, answered through outCh when one is set.
type job struct {
	kind      jobKind
	destination string
	req       tag.Request
	fut       *tag.Future
	outCh     chan submitResult
}

type jobKind int

const (
	jobSubmit jobKind = iota
	jobCancel
	jobClose
	jobStats
)

type submitResult struct {
	fut       *tag.Future
	err       error
	peerCount int
}

// Dispatcher is the single entry point callers use to send a Request to a
// destination. Internally it runs one dedicated goroutine that owns the
// Peer registry outright, so Peer/Link state never needs its own lock
// against concurrent Submit callers — every caller's work crosses into that
// goroutine through the buffered jobs channel, Go's answer to the
// design's single-scheduler-thread/fiber model.
type Dispatcher struct {
	cfg       config.BrokerConfig
	policy    *policy.PolicyEngine
	resolver  resolvers.Resolver
	tlsConfig *tls.Config
	log       *slog.Logger
	rateLimit *RateLimiter
	stats     *Stats

	jobs chan job
	done chan struct{}

	peers map[string]*peer.Peer
}

// New starts a Dispatcher's scheduler goroutine. resolver is the low-level
// wire resolver (ForwardingResolver/Chained); each Peer gets its own
// DestinationResolver adapter over it. rlCfg configures pre-admission
// rate limiting; the zero value disables every level.
func New(cfg config.BrokerConfig, pe *policy.PolicyEngine, resolver resolvers.Resolver, tlsConfig *tls.Config, rlCfg config.RateLimitConfig, log *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg:       cfg,
		policy:    pe,
		resolver:  resolver,
		tlsConfig: tlsConfig,
		log:       log,
		rateLimit: NewRateLimiter(rlCfg),
		stats:     NewStats(),
		jobs:      make(chan job, 256),
		done:      make(chan struct{}),
		peers:     make(map[string]*peer.Peer),
	}
	go d.scheduler()
	return d
}

// Submit queues req for destination. The actual Peer/Link admission work
// runs on the scheduler goroutine; Submit itself only blocks long enough to
// hand the job off (or until ctx is done).
func (d *Dispatcher) Submit(ctx context.Context, destination string, req tag.Request) (*tag.Future, error) {
	if d.policy != nil {
		decision := d.policy.Evaluate(destination)
		if decision.Action == policy.ActionBlock {
			d.stats.RecordBlocked()
			return nil, fmt.Errorf("dispatch: destination %s blocked by policy rule %q", destination, decision.Rule)
		}
	}

	if !d.rateLimit.Allow(destination) {
		d.stats.RecordRateLimited()
		return nil, fmt.Errorf("dispatch: destination %s rate limited", destination)
	}

	d.stats.RecordSubmit()

	out := make(chan submitResult, 1)
	j := job{kind: jobSubmit, destination: destination, req: req, outCh: out}

	select {
	case d.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		return nil, tag.ErrClosed
	}

	select {
	case res := <-out:
		if res.err != nil {
			d.stats.RecordSubmitError()
		}
		return res.fut, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		return nil, tag.ErrClosed
	}
}

// Cancel cancels a Tag's Future. It is safe to call with a Future that has
// already resolved; Cancel becomes a no-op past that point.
func (d *Dispatcher) Cancel(fut *tag.Future) {
	select {
	case d.jobs <- job{kind: jobCancel, fut: fut}:
	case <-d.done:
	}
}

// Close stops the scheduler goroutine and closes every registered Peer.
func (d *Dispatcher) Close() error {
	out := make(chan submitResult, 1)
	select {
	case d.jobs <- job{kind: jobClose, outCh: out}:
		<-out
	case <-d.done:
	}
	return nil
}

// scheduler is the Dispatcher's single goroutine: it is the only code that
// ever reads or writes d.peers, so no lock guards it.
func (d *Dispatcher) scheduler() {
	defer close(d.done)
	for j := range d.jobs {
		switch j.kind {
		case jobSubmit:
			fut, err := d.handleSubmit(j.destination, j.req)
			j.outCh <- submitResult{fut: fut, err: err}
		case jobCancel:
			// The scheduler goroutine is the only place d.peers is read or
			// written, so this scan is race-free without a lock. Canceling a
			// Tag whose Link has already resolved its Future is a no-op:
			// Resolve/Reject are sync.Once-guarded, so the race between this
			// and the Link's own resolution loses harmlessly.
			if j.fut != nil {
				for _, p := range d.peers {
					if p.CancelTag(j.fut) {
						break
					}
				}
			}
		case jobClose:
			for _, p := range d.peers {
				_ = p.Close(socket.CloseOpts{Mode: socket.CloseSSLNotify})
			}
			d.peers = nil
			j.outCh <- submitResult{}
			return
		case jobStats:
			j.outCh <- submitResult{peerCount: len(d.peers)}
		}
	}
}

func (d *Dispatcher) handleSubmit(destination string, req tag.Request) (*tag.Future, error) {
	p, ok := d.peers[destination]
	if !ok {
		p = d.newPeer(destination)
		d.peers[destination] = p
	}

	ctx, cancel := d.submitContext()
	defer cancel()
	return p.Submit(ctx, req)
}

func (d *Dispatcher) newPeer(destination string) *peer.Peer {
	dr := resolvers.NewDestinationResolver(d.resolver, resolvers.DefaultRetryPolicy)

	linkMax := d.cfg.LinkMaxDefault
	if linkMax <= 0 || linkMax > config.LinkMaxAbsoluteCap {
		linkMax = config.LinkMaxAbsoluteCap
	}
	linkMin := d.cfg.LinkMinDefault
	if linkMin < 0 {
		linkMin = 0
	}
	tagMax := d.cfg.TagMaxDefault
	if tagMax <= 0 {
		tagMax = 32
	}
	tagCommitMax := d.cfg.TagCommitMaxDefault
	if tagCommitMax <= 0 || tagCommitMax > tagMax {
		tagCommitMax = tagMax
	}

	dialTimeout, _ := time.ParseDuration(d.cfg.RequestTimeout)
	errClear, _ := time.ParseDuration(d.cfg.ErrorClearDefault)

	return peer.New(destination, peer.Options{
		LinkMin:       linkMin,
		LinkMax:       linkMax,
		TagMax:        tagMax,
		TagCommitMax:  tagCommitMax,
		HeaderMaxSize: d.cfg.HeaderMaxSize,
		DialTimeout:   dialTimeout,
		ErrorCooldown: errClear,
		EnableIPv6:    d.cfg.EnableIPv6,
		TLSConfig:     d.tlsConfig,
	}, dr, d.log)
}

func (d *Dispatcher) submitContext() (context.Context, context.CancelFunc) {
	timeout, err := time.ParseDuration(d.cfg.AsyncTimeout)
	if err != nil || timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

// Stats returns a point-in-time snapshot of dispatcher-wide submission
// statistics.
func (d *Dispatcher) Stats() StatsSnapshot {
	return d.stats.Snapshot()
}

// PeerCount returns the number of destinations with an open registry entry,
// for the admin stats endpoint. Safe to call concurrently: it trampolines
// through the scheduler like every other read of d.peers.
func (d *Dispatcher) PeerCount() int {
	out := make(chan submitResult, 1)
	select {
	case d.jobs <- job{kind: jobStats, outCh: out}:
	case <-d.done:
		return 0
	}
	select {
	case res := <-out:
		return res.peerCount
	case <-d.done:
		return 0
	}
}
