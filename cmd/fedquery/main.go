// Command fedquery resolves a federation destination's address candidates
// (SRV, then AAAA/A) and prints them without dispatching any request.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/matrix-construct/construct-sub003/internal/resolvers"
)

const matrixFedService = "_matrix._tcp"

func main() {
	var (
		server  = flag.String("server", "8.8.8.8:53", "Recursive resolver HOST:PORT")
		name    = flag.String("name", "matrix.org", "Federation destination to resolve")
		timeout = flag.Duration("timeout", 2*time.Second, "Per-query timeout")
		ipv6    = flag.Bool("ipv6", false, "Prefer AAAA over A for the host-fallback lookup")
		quiet   = flag.Bool("quiet", false, "Suppress output (exit status indicates success)")
	)
	flag.Parse()

	if err := run(*server, *name, *timeout, *ipv6, *quiet); err != nil {
		if !*quiet {
			fmt.Fprintf(os.Stderr, "fedquery: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(server, name string, timeout time.Duration, ipv6, quiet bool) error {
	wire := resolvers.NewForwardingResolver([]string{server}, 0, 0, true, timeout, timeout, 0)
	defer wire.Close()

	dr := resolvers.NewDestinationResolver(wire, resolvers.DefaultRetryPolicy)
	defer dr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout*3)
	defer cancel()

	srv, err := dr.ResolveSRV(ctx, name, matrixFedService)
	if err != nil && err != resolvers.ErrNXDomain {
		return fmt.Errorf("SRV lookup: %w", err)
	}

	if len(srv) == 0 {
		if !quiet {
			fmt.Printf("%s: no SRV record, falling back to host lookup\n", name)
		}
		return resolveHostAndPrint(ctx, dr, name, ipv6, quiet)
	}

	if !quiet {
		for _, t := range srv {
			fmt.Printf("SRV priority=%d weight=%d %s:%d\n", t.Priority, t.Weight, t.Host, t.Port)
		}
	}

	chosen := resolvers.PickWeighted(srv)
	if !quiet {
		fmt.Printf("chosen: %s:%d\n", chosen.Host, chosen.Port)
	}
	return resolveHostAndPrint(ctx, dr, chosen.Host, ipv6, quiet)
}

func resolveHostAndPrint(ctx context.Context, dr resolvers.DestinationResolver, host string, ipv6, quiet bool) error {
	if ipv6 {
		if recs, err := dr.ResolveAAAA(ctx, host); err == nil && len(recs) > 0 {
			printRecords(host, "AAAA", recs, quiet)
			return nil
		}
	}

	recs, err := dr.ResolveA(ctx, host)
	if err != nil {
		return fmt.Errorf("A lookup for %s: %w", host, err)
	}
	if len(recs) == 0 {
		return fmt.Errorf("no address records for %s", host)
	}
	printRecords(host, "A", recs, quiet)
	return nil
}

func printRecords(host, qtype string, recs []resolvers.Record, quiet bool) {
	if quiet {
		return
	}
	for _, r := range recs {
		fmt.Printf("%s %d IN %s %s\n", host, r.TTL, qtype, r.Addr)
	}
}
