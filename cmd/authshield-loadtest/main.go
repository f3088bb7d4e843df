package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authshield/ratelimit"
)

func main() {
	var (
		requests    = flag.Int("requests", 10000, "requests per phase")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		limit       = flag.Int("limit", 100, "max requests per window")
		window      = flag.Duration("window", time.Minute, "limiter window")
		identifiers = flag.Int("identifiers", 1000, "distinct identifiers in the throughput phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *requests <= 0 || *concurrency <= 0 || *limit <= 0 || *identifiers <= 0 {
		fmt.Fprintln(os.Stderr, "requests, concurrency, limit, and identifiers must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := ratelimit.Config{
		Prefix:      fmt.Sprintf("loadtest_%d", time.Now().UnixNano()),
		Window:      *window,
		MaxRequests: *limit,
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid limiter config: %v\n", err)
		os.Exit(2)
	}
	limiter := ratelimit.New(client, cfg)

	contention := runPhase(ctx, limiter, *requests, *concurrency, func(int, *rand.Rand) string {
		return "single"
	})
	throughput := runPhase(ctx, limiter, *requests, *concurrency, func(_ int, r *rand.Rand) string {
		return fmt.Sprintf("id-%d", r.Intn(*identifiers))
	})

	fmt.Println("---- results ----")
	printStats("contention", contention)
	printStats("throughput", throughput)

	want := *limit
	if *requests < want {
		want = *requests
	}
	if contention.admitted != int64(want) {
		fmt.Fprintf(os.Stderr, "admission mismatch: admitted=%d want=%d\n", contention.admitted, want)
		os.Exit(1)
	}
	fmt.Printf("single identifier admitted exactly %d of %d\n", contention.admitted, *requests)
}

func runPhase(ctx context.Context, limiter *ratelimit.Limiter, ops, concurrency int, identifier func(int, *rand.Rand) string) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		admitted  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				id := identifier(i, r)
				t0 := time.Now()
				res := limiter.CheckIdentifier(ctx, id)
				d := time.Since(t0)
				if res.Success {
					atomic.AddInt64(&admitted, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, admitted)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	admitted int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, admitted int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		admitted: admitted,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d admitted=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.admitted,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
