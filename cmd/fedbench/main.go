// Command fedbench fires concurrent requests at a single federation
// destination through the Batch I/O facade and reports latency/throughput.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/matrix-construct/construct-sub003/internal/batchio"
	"github.com/matrix-construct/construct-sub003/internal/config"
	"github.com/matrix-construct/construct-sub003/internal/dispatch"
	"github.com/matrix-construct/construct-sub003/internal/policy"
	"github.com/matrix-construct/construct-sub003/internal/resolvers"
)

func main() {
	var (
		destination = flag.String("destination", "matrix.org", "Federation destination to hammer")
		path        = flag.String("path", "/_matrix/federation/v1/version", "Request path")
		resolver    = flag.String("resolver", "8.8.8.8:53", "Recursive resolver HOST:PORT")
		concurrency = flag.Int("concurrency", 20, "Number of concurrent workers")
		requests    = flag.Int("requests", 500, "Total number of requests")
		timeout     = flag.Duration("timeout", 5*time.Second, "Per-request timeout")
	)
	flag.Parse()

	wireResolver := resolvers.NewForwardingResolver([]string{*resolver}, 0, 0, true, *timeout, *timeout, 0)
	destResolver := resolvers.NewDestinationResolver(wireResolver, resolvers.DefaultRetryPolicy)
	pe := policy.NewPolicyEngine(policy.PolicyEngineConfig{Enabled: false})
	defer pe.Close()

	disp := dispatch.New(config.BrokerConfig{
		AsyncTimeout:   timeout.String(),
		RequestTimeout: timeout.String(),
		LinkMaxDefault: 4,
		TagMaxDefault:  32,
	}, pe, destResolver, nil, config.RateLimitConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer disp.Close()

	facade := batchio.New(disp)

	conc := *concurrency
	if conc < 1 {
		conc = 1
	}
	total := *requests
	if total < 1 {
		total = 1
	}
	per := total / conc
	rem := total % conc

	lat := make([]float64, 0, total)
	var latMu sync.Mutex

	t0 := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < conc; i++ {
		n := per
		if i < rem {
			n++
		}
		if n <= 0 {
			continue
		}
		wg.Add(1)
		go func(num int) {
			defer wg.Done()
			for j := 0; j < num; j++ {
				start := time.Now()
				ctx, cancel := context.WithTimeout(context.Background(), *timeout)
				desc := &batchio.Descriptor{Destination: *destination, Path: *path}
				_ = facade.AcquireEvents(ctx, []*batchio.Descriptor{desc})
				cancel()
				if desc.Err != nil {
					continue
				}
				ms := float64(time.Since(start).Microseconds()) / 1000.0
				latMu.Lock()
				lat = append(lat, ms)
				latMu.Unlock()
				facade.Release([]*batchio.Descriptor{desc})
			}
		}(n)
	}
	wg.Wait()
	elapsed := time.Since(t0).Seconds()

	if len(lat) == 0 {
		fmt.Printf("no successful requests\n")
		return
	}
	sort.Float64s(lat)
	p50 := percentile(lat, 50)
	p95 := percentile(lat, 95)
	p99 := percentile(lat, 99)
	qps := float64(len(lat)) / elapsed

	fmt.Printf("destination=%s path=%s concurrency=%d requests=%d\n", *destination, *path, conc, len(lat))
	fmt.Printf("elapsed_s=%.3f qps=%.1f\n", elapsed, qps)
	fmt.Printf("latency_ms p50=%.3f p95=%.3f p99=%.3f min=%.3f max=%.3f\n", p50, p95, p99, lat[0], lat[len(lat)-1])
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := int(float64(len(sorted))*float64(p)/100.0) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
