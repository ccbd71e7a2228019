package peer

import (
	"context"
	"fmt"
	"net"

	"github.com/matrix-construct/construct-sub003/internal/resolvers"
)

// matrixFedService is the SRV service name federation destinations are
// expected to publish, per the protocol's server-discovery convention.
const matrixFedService = "_matrix._tcp"

// resolveAddr runs the destination resolution pipeline: try SRV first, and
// only on a fully empty answer (no SRV record published) fall back to
// resolving the destination name itself as a host, trying AAAA before A when
// the broker is configured for IPv6.
func resolveAddr(ctx context.Context, dr resolvers.DestinationResolver, destination string, enableIPv6 bool) (string, uint16, error) {
	srv, err := dr.ResolveSRV(ctx, destination, matrixFedService)
	if err != nil && err != resolvers.ErrNXDomain {
		return "", 0, err
	}
	if len(srv) > 0 {
		t := resolvers.PickWeighted(srv)
		addr, err := resolveHost(ctx, dr, t.Host, enableIPv6)
		if err != nil {
			return "", 0, err
		}
		return addr, t.Port, nil
	}

	addr, err := resolveHost(ctx, dr, destination, enableIPv6)
	if err != nil {
		return "", 0, err
	}
	return addr, 8448, nil
}

// resolveHost resolves a bare hostname to a single address, preferring AAAA
// over A when IPv6 is enabled and records exist.
func resolveHost(ctx context.Context, dr resolvers.DestinationResolver, host string, enableIPv6 bool) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	if enableIPv6 {
		if recs, err := dr.ResolveAAAA(ctx, host); err == nil && len(recs) > 0 {
			return recs[0].Addr, nil
		}
	}

	recs, err := dr.ResolveA(ctx, host)
	if err != nil {
		return "", err
	}
	if len(recs) == 0 {
		return "", fmt.Errorf("resolvers: no address records for %s", host)
	}
	return recs[0].Addr, nil
}
