package resolvers

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/matrix-construct/construct-sub003/internal/dnswire"
)

// SRVTarget is a single weighted SRV answer, RFC 2782-shaped.
type SRVTarget struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Host     string
}

// Record is a resolved A/AAAA address with its advertised TTL.
type Record struct {
	Addr string
	TTL  uint32
}

// ErrNXDomain is returned by DestinationResolver methods when the upstream
// authoritatively reports the name does not exist. It is fatal: the Peer
// does not retry a lookup that failed NXDOMAIN, only ones whose wire query
// failed or whose response could not be parsed (timeouts among them).
var ErrNXDomain = errors.New("resolvers: nxdomain")

// ErrRCode wraps a non-success, non-NXDOMAIN response code (SERVFAIL,
// REFUSED, FORMERR, NOTIMP). Like ErrNXDomain these are treated as fatal:
// they indicate the authoritative side rejected the query shape, which a
// retry will not fix.
type ErrRCode struct {
	Code dnswire.RCode
}

func (e *ErrRCode) Error() string { return fmt.Sprintf("resolvers: rcode %d", e.Code) }

// RetryPolicy configures the exponential backoff DestinationResolver applies
// to transient failures (timeouts) before giving up.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy uses the same count as ForwardingResolver's
// DefaultMaxRetries (3), adding bounded backoff on top for the Peer's
// resolution pipeline.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 2 * time.Second}

// DestinationResolver resolves a federation destination name to connection
// targets: SRV records for the `_matrix._tcp` service, falling back to
// AAAA/A on the bare destination when no SRV record exists.
type DestinationResolver interface {
	ResolveSRV(ctx context.Context, name, service string) ([]SRVTarget, error)
	ResolveAAAA(ctx context.Context, target string) ([]Record, error)
	ResolveA(ctx context.Context, target string) ([]Record, error)
	Close() error
}

// destinationResolver adapts a low-level wire Resolver (ForwardingResolver or
// Chained) into the DestinationResolver interface the Peer package consumes,
// building query packets with dnswire and parsing the answer section back
// into typed records.
type destinationResolver struct {
	wire   Resolver
	policy RetryPolicy
}

// NewDestinationResolver wraps wire with retry policy, keeping wire's own
// cache/singleflight/upstream-pool machinery untouched underneath.
func NewDestinationResolver(wire Resolver, policy RetryPolicy) DestinationResolver {
	if policy.MaxRetries <= 0 {
		policy = DefaultRetryPolicy
	}
	return &destinationResolver{wire: wire, policy: policy}
}

func (d *destinationResolver) Close() error { return d.wire.Close() }

func (d *destinationResolver) ResolveSRV(ctx context.Context, name, service string) ([]SRVTarget, error) {
	qname := service + "." + dnswire.NormalizeName(name)
	pkt, err := d.query(ctx, qname, uint16(dnswire.TypeSRV))
	if err != nil {
		return nil, err
	}

	targets := make([]SRVTarget, 0, len(pkt.Answers))
	for _, rr := range pkt.Answers {
		srv, ok := rr.(*dnswire.SRVRecord)
		if !ok {
			continue
		}
		targets = append(targets, SRVTarget{
			Priority: srv.Priority,
			Weight:   srv.Weight,
			Port:     srv.Port,
			Host:     srv.Target,
		})
	}
	return targets, nil
}

func (d *destinationResolver) ResolveAAAA(ctx context.Context, target string) ([]Record, error) {
	return d.resolveIP(ctx, target, uint16(dnswire.TypeAAAA))
}

func (d *destinationResolver) ResolveA(ctx context.Context, target string) ([]Record, error) {
	return d.resolveIP(ctx, target, uint16(dnswire.TypeA))
}

func (d *destinationResolver) resolveIP(ctx context.Context, target string, qtype uint16) ([]Record, error) {
	pkt, err := d.query(ctx, target, qtype)
	if err != nil {
		return nil, err
	}

	recs := make([]Record, 0, len(pkt.Answers))
	for _, rr := range pkt.Answers {
		ip, ok := rr.(*dnswire.IPRecord)
		if !ok {
			continue
		}
		recs = append(recs, Record{Addr: ip.Addr.String(), TTL: ip.Header().TTL})
	}
	return recs, nil
}

// query runs req through the wrapped wire Resolver with exponential backoff
// on any error from the wire Resolver (timeouts among them) or an
// unparsable response. NXDOMAIN and other non-success RCODEs returned by
// the upstream are not retried.
func (d *destinationResolver) query(ctx context.Context, qname string, qtype uint16) (dnswire.Packet, error) {
	req := dnswire.Packet{
		Header: dnswire.Header{ID: 0, Flags: 0x0100 /* RD */, QDCount: 1},
		Questions: []dnswire.Question{{
			Name:  qname,
			Type:  qtype,
			Class: uint16(dnswire.ClassIN),
		}},
	}
	reqBytes, err := req.Marshal()
	if err != nil {
		return dnswire.Packet{}, err
	}

	delay := d.policy.BaseDelay
	var lastErr error
	for attempt := 0; attempt <= d.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return dnswire.Packet{}, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > d.policy.MaxDelay {
				delay = d.policy.MaxDelay
			}
		}

		result, err := d.wire.Resolve(ctx, req, reqBytes)
		if err != nil {
			lastErr = err
			continue
		}

		pkt, err := dnswire.ParsePacket(result.ResponseBytes)
		if err != nil {
			lastErr = err
			continue
		}

		rcode := dnswire.RCodeFromFlags(pkt.Header.Flags)
		switch rcode {
		case dnswire.RCodeNoError:
			return pkt, nil
		case dnswire.RCodeNXDomain:
			return dnswire.Packet{}, ErrNXDomain
		default:
			return dnswire.Packet{}, &ErrRCode{Code: rcode}
		}
	}
	return dnswire.Packet{}, fmt.Errorf("resolvers: exhausted %d retries: %w", d.policy.MaxRetries, lastErr)
}

// pickWeighted selects one SRVTarget among those sharing the lowest priority
// using RFC 2782's weighted-random ordering: each candidate's selection
// probability is proportional to its Weight (a Weight of 0 still gets a
// minimal chance, matching the RFC's "should not be selected first, but may
// still be selected" guidance by counting it as weight 1). This resolves an Open Question the distilled design left
// unspecified: plain round-robin would starve low-weight-but-nonzero peers
// under bursty traffic, so weighted-random was chosen to match RFC 2782.
func pickWeighted(targets []SRVTarget) SRVTarget {
	if len(targets) == 1 {
		return targets[0]
	}

	lowest := targets[0].Priority
	for _, t := range targets {
		if t.Priority < lowest {
			lowest = t.Priority
		}
	}

	var pool []SRVTarget
	var total uint32
	for _, t := range targets {
		if t.Priority != lowest {
			continue
		}
		w := uint32(t.Weight)
		if w == 0 {
			w = 1
		}
		total += w
		pool = append(pool, t)
	}

	if total == 0 {
		return pool[0]
	}
	r := rand.N(total)
	var acc uint32
	for _, t := range pool {
		w := uint32(t.Weight)
		if w == 0 {
			w = 1
		}
		acc += w
		if r < acc {
			return t
		}
	}
	return pool[len(pool)-1]
}

// PickWeighted exports pickWeighted for the Peer package's resolution
// pipeline.
func PickWeighted(targets []SRVTarget) SRVTarget {
	return pickWeighted(targets)
}
