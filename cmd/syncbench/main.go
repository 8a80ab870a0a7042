// syncbench drives a posts service through syncclient with concurrent
// operations and checks that the local collection ends up matching the server.
//
//	N=2000 CONC=32 ORDERING=issuance go run ./cmd/syncbench
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/d60-Lab/postsync/config"
	"github.com/d60-Lab/postsync/internal/remote"
	"github.com/d60-Lab/postsync/internal/store"
	"github.com/d60-Lab/postsync/internal/syncclient"
)

type phaseResult struct {
	name      string
	total     int
	failed    int
	elapsed   time.Duration
	latencies []time.Duration
}

func main() {
	cfg := must(config.Load())
	ctx := context.Background()

	N := envInt("N", 1000)
	CONC := envInt("CONC", 16)
	endpoint := cfg.Client.BaseURL
	if s := os.Getenv("ENDPOINT"); s != "" {
		endpoint = s
	}
	ordering := must(syncclient.ParseOrdering(envString("ORDERING", cfg.Client.Ordering)))
	policy := must(syncclient.ParseDeletePolicy(cfg.Client.DeletePolicy))

	rc := remote.NewClient(endpoint, remote.WithTimeout(cfg.Client.Timeout))
	client := syncclient.New(rc, store.New(),
		syncclient.WithOrdering(ordering),
		syncclient.WithDeletePolicy(policy))

	mustDo(client.Refresh(ctx))
	fmt.Printf("endpoint=%s ordering=%s n=%d conc=%d existing=%d\n",
		endpoint, envString("ORDERING", cfg.Client.Ordering), N, CONC, client.Store().Len())

	creates := make([]syncclient.Intent, N)
	for i := range creates {
		creates[i] = syncclient.CreateIntent(fmt.Sprintf("bench post %d", i))
	}
	created := runPhase(ctx, client, "create", creates, CONC)
	printResult(created.result)

	edits := make([]syncclient.Intent, 0, len(created.posts))
	for i, p := range created.posts {
		edits = append(edits, syncclient.UpdateIntent(p.ID, fmt.Sprintf("bench post %d (edited)", i)))
	}
	printResult(runPhase(ctx, client, "update", edits, CONC).result)

	// 并发刷新与删除交错，检验协调顺序
	mixed := make([]syncclient.Intent, 0, len(created.posts))
	for i, p := range created.posts {
		if i%2 == 0 {
			mixed = append(mixed, syncclient.DeleteIntent(p.ID))
		}
		if i%50 == 0 {
			mixed = append(mixed, syncclient.RefreshIntent())
		}
	}
	printResult(runPhase(ctx, client, "delete+refresh", mixed, CONC).result)

	local := client.Store().List()
	server := must(rc.List(ctx))
	fmt.Printf("local=%d server=%d consistent=%v\n", len(local), len(server), sameIDs(local, server))
}

type phaseOutput struct {
	result phaseResult
	posts  []store.Post
}

func runPhase(ctx context.Context, client *syncclient.Client, name string, intents []syncclient.Intent, conc int) phaseOutput {
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		res   = phaseResult{name: name, total: len(intents)}
		posts = make([]store.Post, 0, len(intents))
		sem   = make(chan struct{}, conc)
	)
	start := time.Now()
	for _, in := range intents {
		sem <- struct{}{}
		wg.Add(1)
		issued := time.Now()
		op := client.Submit(ctx, in)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			p, err := op.Result()
			lat := time.Since(issued)

			mu.Lock()
			defer mu.Unlock()
			res.latencies = append(res.latencies, lat)
			if err != nil {
				res.failed++
				return
			}
			if !p.ID.IsZero() {
				posts = append(posts, p)
			}
		}()
	}
	wg.Wait()
	res.elapsed = time.Since(start)
	return phaseOutput{result: res, posts: posts}
}

func printResult(r phaseResult) {
	qps := float64(r.total) / r.elapsed.Seconds()
	fmt.Printf("%-16s total=%d failed=%d qps=%.0f avg=%v p95=%v p99=%v\n",
		r.name, r.total, r.failed, qps, avg(r.latencies), pct(r.latencies, 0.95), pct(r.latencies, 0.99))
}

func sameIDs(local, server []store.Post) bool {
	if len(local) != len(server) {
		return false
	}
	seen := make(map[store.ID]bool, len(server))
	for _, p := range server {
		seen[p.ID] = true
	}
	for _, p := range local {
		if !seen[p.ID] {
			return false
		}
	}
	return true
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range vs {
		sum += v
	}
	return sum / time.Duration(len(vs))
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envString(key, def string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return def
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func mustDo(err error) {
	if err != nil {
		panic(err)
	}
}
