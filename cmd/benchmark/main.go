package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	payers      int
)

// Metrics
var (
	totalRequests uint64
	allowed200    uint64 // Served (budget or prior proof)
	challenged402 uint64 // Invoice issued
	rejected401   uint64 // Replay / verification rejections
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "budget", "Workload type: budget | cold")
	flag.IntVar(&payers, "payers", 100, "Number of distinct payer identities")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

// worker hits the gated endpoint. The budget workload presents a payer
// identity so requests race on budget debits; the cold workload sends bare
// requests and measures challenge throughput.
func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		req, _ := http.NewRequest("GET", targetURL+"/api/v1/premium", nil)
		if workload == "budget" {
			req.Header.Set("X-Payer-Identity", fmt.Sprintf("bench-payer-%d", rand.Intn(payers)+1))
		}

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case 200:
			atomic.AddUint64(&allowed200, 1)
		case 402:
			atomic.AddUint64(&challenged402, 1)
		case 401:
			atomic.AddUint64(&rejected401, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&allowed200)
	ch := atomic.LoadUint64(&challenged402)
	rj := atomic.LoadUint64(&rejected401)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()

	results := map[string]interface{}{
		"workload":       workload,
		"duration_sec":   d.Seconds(),
		"total_requests": total,
		"throughput_tps": tps,
		"allowed":        ok,
		"challenged":     ch,
		"rejected":       rj,
		"errors":         fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
