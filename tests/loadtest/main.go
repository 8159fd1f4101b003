package main

import (
	"bytes"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

const (
	baseURL      = "http://127.0.0.1:8090"
	numWorkers   = 50
	testDuration = 10 * time.Second
	numFans      = 2000
	numCreators  = 20
	bulkSize     = 25
)

var categories = []string{"photos", "videos", "custom_content", "voice_notes", "live_streams", "bundles", "cosplay", "fitness"}

var messages = []string{
	"love this, you are amazing!",
	"hey, how was your day?",
	"not really interested right now",
	"this is too expensive honestly",
	"can't wait for the next set 😍",
	"ok",
}

var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     30 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   2 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

type result struct {
	endpoint string
	status   int
	latency  time.Duration
	err      bool
}

type stats struct {
	count     int64
	errors    int64
	latencies []time.Duration
}

func main() {
	fmt.Println("=== memoryd Load Test ===")
	fmt.Printf("Workers: %d | Duration: %s\n", numWorkers, testDuration)
	fmt.Printf("Fans: %d | Creators: %d | Bulk size: %d\n\n", numFans, numCreators, bulkSize)

	fmt.Print("Waiting for server... ")
	for i := 0; i < 30; i++ {
		resp, err := httpClient.Get(baseURL + "/health")
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			break
		}
		if i == 29 {
			fmt.Println("FAILED: server not responding")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	fmt.Println("OK")

	fmt.Println("\n--- Phase 1: Seeding interactions (POST /memory/{fanId}) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		return doSave(rng)
	})

	fmt.Println("\nWaiting 2s for background learning...")
	time.Sleep(2 * time.Second)

	fmt.Println("\n--- Phase 2: Mixed load (40% writes, 60% reads) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.40:
			return doSave(rng)
		case r < 0.80:
			return doGetContext(rng)
		case r < 0.90:
			return doGetEngagement(rng)
		case r < 0.97:
			return doBulk(rng)
		default:
			return doStats(rng)
		}
	})

	fmt.Println("\n--- Phase 3: Read-heavy load (5% writes, 95% reads) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.05:
			return doSave(rng)
		case r < 0.85:
			return doGetContext(rng)
		case r < 0.95:
			return doBulk(rng)
		default:
			return doGetEngagement(rng)
		}
	})
}

func runPhase(duration time.Duration, workFn func(rng *rand.Rand) result) {
	results := make(chan result, 10000)
	var wg sync.WaitGroup
	var totalOps atomic.Int64
	stop := make(chan struct{})

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
					r := workFn(rng)
					totalOps.Add(1)
					results <- r
				}
			}
		}(rand.Int63() + int64(i))
	}

	allResults := make(map[string]*stats)
	done := make(chan struct{})
	go func() {
		for r := range results {
			s, ok := allResults[r.endpoint]
			if !ok {
				s = &stats{}
				allResults[r.endpoint] = s
			}
			s.count++
			if r.err {
				s.errors++
			}
			s.latencies = append(s.latencies, r.latency)
		}
		close(done)
	}()

	time.Sleep(duration)
	close(stop)
	wg.Wait()
	close(results)
	<-done

	printResults(allResults, duration)
}

func printResults(allResults map[string]*stats, duration time.Duration) {
	var totalOps int64
	var totalErrors int64

	endpoints := make([]string, 0, len(allResults))
	for ep := range allResults {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	fmt.Printf("\n  %-30s %8s %6s %10s %10s %10s %10s\n",
		"Endpoint", "Reqs", "Errs", "Avg", "P50", "P95", "P99")
	fmt.Println("  " + repeat("-", 96))

	for _, ep := range endpoints {
		s := allResults[ep]
		totalOps += s.count
		totalErrors += s.errors

		sort.Slice(s.latencies, func(i, j int) bool {
			return s.latencies[i] < s.latencies[j]
		})

		avg := avgDuration(s.latencies)
		p50 := percentile(s.latencies, 0.50)
		p95 := percentile(s.latencies, 0.95)
		p99 := percentile(s.latencies, 0.99)

		fmt.Printf("  %-30s %8d %6d %10s %10s %10s %10s\n",
			ep, s.count, s.errors, fmtDur(avg), fmtDur(p50), fmtDur(p95), fmtDur(p99))
	}

	rps := float64(totalOps) / duration.Seconds()
	fmt.Println("  " + repeat("-", 96))
	fmt.Printf("  Total: %d reqs | Errors: %d (%.1f%%) | RPS: %.0f\n",
		totalOps, totalErrors, float64(totalErrors)/float64(totalOps)*100, rps)
}

func pick(rng *rand.Rand) (fan, creator string) {
	return fmt.Sprintf("fan_%d", rng.Intn(numFans)), fmt.Sprintf("creator_%d", rng.Intn(numCreators))
}

func do(endpoint string, expect int, req *http.Request) result {
	start := time.Now()
	resp, err := httpClient.Do(req)
	lat := time.Since(start)
	if err != nil {
		return result{endpoint, 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{endpoint, resp.StatusCode, lat, resp.StatusCode != expect}
}

func doSave(rng *rand.Rand) result {
	fan, creator := pick(rng)
	body := map[string]interface{}{
		"creatorId": creator,
		"sender":    "fan",
		"kind":      "message",
		"content":   messages[rng.Intn(len(messages))],
	}
	switch r := rng.Float64(); {
	case r < 0.10:
		body["kind"] = "purchase"
		body["content"] = ""
		body["metadata"] = map[string]interface{}{
			"category": categories[rng.Intn(len(categories))],
			"amount":   float64(rng.Intn(5000)) / 100,
		}
	case r < 0.15:
		body["kind"] = "offer_declined"
		body["content"] = ""
		body["metadata"] = map[string]interface{}{"category": categories[rng.Intn(len(categories))]}
	case r < 0.40:
		body["sender"] = "ai"
	}

	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/memory/%s", baseURL, fan), bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return do("POST /memory/{fanId}", http.StatusCreated, req)
}

func doGetContext(rng *rand.Rand) result {
	fan, creator := pick(rng)
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/memory/%s?creatorId=%s", baseURL, fan, creator), nil)
	res := do("GET /memory/{fanId}", http.StatusOK, req)
	if res.status == http.StatusNotFound {
		res.err = false
	}
	return res
}

func doGetEngagement(rng *rand.Rand) result {
	fan, creator := pick(rng)
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/memory/%s/engagement?creatorId=%s", baseURL, fan, creator), nil)
	res := do("GET /memory/{fanId}/engagement", http.StatusOK, req)
	if res.status == http.StatusNotFound {
		res.err = false
	}
	return res
}

func doBulk(rng *rand.Rand) result {
	_, creator := pick(rng)
	fans := make([]string, bulkSize)
	for i := range fans {
		fans[i] = fmt.Sprintf("fan_%d", rng.Intn(numFans))
	}
	data, _ := json.Marshal(map[string]interface{}{"fanIds": fans})
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/memory/bulk?creatorId=%s", baseURL, creator), bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return do("POST /memory/bulk", http.StatusOK, req)
}

func doStats(rng *rand.Rand) result {
	_, creator := pick(rng)
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/memory/stats?creatorId=%s", baseURL, creator), nil)
	return do("GET /memory/stats", http.StatusOK, req)
}

func avgDuration(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}

func percentile(d []time.Duration, p float64) time.Duration {
	if len(d) == 0 {
		return 0
	}
	idx := int(float64(len(d)) * p)
	if idx >= len(d) {
		idx = len(d) - 1
	}
	return d[idx]
}

func fmtDur(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000.0)
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
