// Benchmark tool for load-testing a running Kite server.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -count 10000
//
// This tool:
//   1. Generates synthetic transactions across a pool of accounts
//   2. Sends each to POST /assess
//   3. Tallies the decision distribution and latency
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// AssessRequest mirrors the Kite API request format.
type AssessRequest struct {
	Amount   float64 `json:"amount"`
	Location string  `json:"location"`
	Merchant int     `json:"merchantCategory"`
}

// AssessResponse is the subset of the Kite API response the benchmark reads.
type AssessResponse struct {
	Assessment *struct {
		Score    float64 `json:"score"`
		Decision string  `json:"decision"`
	} `json:"assessment"`
	VerificationRequired bool `json:"verificationRequired"`
	PendingVerification  bool `json:"pendingVerification"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	mu        sync.Mutex
	decisions map[string]int64

	TotalProcessed      int64
	TotalPending        int64
	TotalAutoApprovable int64
	TotalErrors         int64
	ProcessingTimeMs    int64
}

func (m *Metrics) recordDecision(decision string) {
	m.mu.Lock()
	m.decisions[decision]++
	m.mu.Unlock()
}

var locations = []string{
	"Calgary, Alberta",
	"Edmonton, Alberta",
	"Toronto, Ontario",
	"Vancouver, British Columbia",
	"Lagos, Nigeria",
	"London, United Kingdom",
	"Somewhere",
	"Atlantis, Oceania",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kite base URL")
	count := flag.Int("count", 10000, "Number of transactions to send")
	accounts := flag.Int("accounts", 100, "Number of distinct accounts")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	maxAmount := flag.Float64("max-amount", 25000, "Upper bound for random amounts")
	seed := flag.Int64("seed", 42, "Random seed")
	verbose := flag.Bool("verbose", false, "Print each result")
	flag.Parse()

	fmt.Println("=== KITE BENCHMARK ===")
	fmt.Printf("URL:      %s\n", *baseURL)
	fmt.Printf("Count:    %d\n", *count)
	fmt.Printf("Accounts: %d\n", *accounts)
	fmt.Printf("Workers:  %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kite not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kite is running:")
		fmt.Println("  go run cmd/kite/main.go")
		os.Exit(1)
	}
	fmt.Println("Kite is healthy")

	metrics := &Metrics{decisions: make(map[string]int64)}

	rng := rand.New(rand.NewSource(*seed))
	work := make(chan int, 100)
	accountIDs := make([]string, *count)
	requests := make([]AssessRequest, *count)
	for i := 0; i < *count; i++ {
		accountIDs[i] = fmt.Sprintf("bench-%03d", rng.Intn(*accounts))
		requests[i] = AssessRequest{
			Amount:   1 + rng.Float64()*(*maxAmount),
			Location: locations[rng.Intn(len(locations))],
			Merchant: 1 + rng.Intn(7),
		}
	}

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for i := range work {
				req := requests[i]
				start := time.Now()
				result, err := assess(client, *baseURL, accountIDs[i], req)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if *verbose {
						fmt.Printf("ERROR: %v\n", err)
					}
					continue
				}

				if result.PendingVerification {
					atomic.AddInt64(&metrics.TotalPending, 1)
				}
				if result.Assessment != nil {
					metrics.recordDecision(result.Assessment.Decision)
					if *verbose {
						fmt.Printf("$%10.2f -> %-16s (%.2f)\n",
							req.Amount, result.Assessment.Decision, result.Assessment.Score)
					}
				}
			}
		}()
	}

	for i := range requests {
		work <- i
	}
	close(work)
	wg.Wait()

	printResults(metrics, time.Since(startTime))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func assess(client *http.Client, baseURL, accountID string, req AssessRequest) (*AssessResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/assess", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Account-ID", accountID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 423 means the synthetic account froze itself along the way; that is a
	// legitimate outcome for a load run, not an error.
	if resp.StatusCode == http.StatusLocked {
		return &AssessResponse{}, nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AssessResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n=== BENCHMARK RESULTS ===")
	fmt.Printf("Total Processed: %d\n", m.TotalProcessed)
	fmt.Printf("Pending Verify:  %d\n", m.TotalPending)
	fmt.Printf("Errors:          %d\n", m.TotalErrors)

	fmt.Println("\nDecision distribution:")
	m.mu.Lock()
	for decision, n := range m.decisions {
		pct := 100 * float64(n) / float64(m.TotalProcessed)
		fmt.Printf("  %-18s %8d (%.2f%%)\n", decision, n, pct)
	}
	m.mu.Unlock()

	fmt.Println("\nPerformance:")
	fmt.Printf("  Total Duration: %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("  Avg Latency:    %.2f ms\n", avgMs)
		fmt.Printf("  Throughput:     %.2f tx/sec\n", tps)
	}
	fmt.Println()
}
