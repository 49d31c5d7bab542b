// Command loadtest drives POST /api/v1/verify with a fixed mix of quotes and
// reports latency percentiles, status codes and the verdict mix.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 10] [-duration 30s] [-texts file]
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config describes one run.
type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Texts       []string
}

// Stats accumulates results across workers.
type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	verified      atomic.Int64
	unverified    atomic.Int64
	prefiltered   atomic.Int64
	cacheHits     atomic.Int64

	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

// NewStats creates empty Stats.
func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]int64),
	}
}

type verdict struct {
	Verified    bool `json:"verified"`
	Cached      bool `json:"cached"`
	Prefiltered bool `json:"prefiltered"`
}

// RecordRequest records one request. v is nil unless the response decoded.
func (s *Stats) RecordRequest(duration time.Duration, statusCode int, v *verdict, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	if v != nil {
		switch {
		case v.Prefiltered:
			s.prefiltered.Add(1)
		case v.Verified:
			s.verified.Add(1)
		default:
			s.unverified.Add(1)
		}
		if v.Cached {
			s.cacheHits.Add(1)
		}
	}

	s.mu.Lock()
	s.latencies = append(s.latencies, duration)
	s.statusCodes[statusCode]++
	s.mu.Unlock()
}

var defaultTexts = []string{
	"The quick brown fox jumps over the lazy dog",
	"Breaking news ab0ut the ec0n0my t0day",
	"Make America Great Again!",
	"Thank you to the great people of Iowa",
	"this is just a screenshot of my lunch",
	"Donald J. Trump @realDonaldTrump The FAKE NEWS media is working overtime",
	"",
	"Truth Social post: we will never surrender",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the verifier service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	textsFile := flag.String("texts", "", "file with one query text per line (defaults to a built-in mix)")
	flag.Parse()

	texts := defaultTexts
	if *textsFile != "" {
		loaded, err := readLines(*textsFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading texts: %v\n", err)
			os.Exit(1)
		}
		texts = loaded
	}

	cfg := Config{
		BaseURL:     strings.TrimSuffix(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		Texts:       texts,
	}

	fmt.Println("=== Quote Verifier Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Texts:       %d unique\n", len(cfg.Texts))
	fmt.Println()

	stats := runLoadTest(cfg)
	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%s has no lines", path)
	}
	return lines, nil
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	verifyURL := cfg.BaseURL + "/api/v1/verify"
	bodies := make([][]byte, len(cfg.Texts))
	for i, t := range cfg.Texts {
		bodies[i], _ = json.Marshal(map[string]string{"text": t})
	}

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			idx := workerID
			for ctx.Err() == nil {
				body := bodies[idx%len(bodies)]
				idx++

				req, err := http.NewRequestWithContext(ctx, http.MethodPost, verifyURL, bytes.NewReader(body))
				if err != nil {
					stats.RecordRequest(0, 0, nil, err)
					continue
				}
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("X-Client-ID", fmt.Sprintf("loadtest-%d", workerID))

				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.RecordRequest(elapsed, 0, nil, err)
					continue
				}
				var v verdict
				decoded := json.NewDecoder(resp.Body).Decode(&v) == nil && resp.StatusCode == http.StatusOK
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				if decoded {
					stats.RecordRequest(elapsed, resp.StatusCode, &v, nil)
				} else {
					stats.RecordRequest(elapsed, resp.StatusCode, nil, nil)
				}
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// printReport writes the summary and reports whether any request completed.
func printReport(w io.Writer, stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errCount := stats.errorCount.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", errCount)
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(errCount)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Verdicts ===")
	fmt.Fprintf(w, "Verified:        %d\n", stats.verified.Load())
	fmt.Fprintf(w, "Unverified:      %d\n", stats.unverified.Load())
	fmt.Fprintf(w, "Prefiltered:     %d\n", stats.prefiltered.Load())
	fmt.Fprintf(w, "Cache hits:      %d\n", stats.cacheHits.Load())

	stats.mu.Lock()
	latencies := append([]time.Duration(nil), stats.latencies...)
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(stats.statusCodes))
	for k, v := range stats.statusCodes {
		counts[k] = v
	}
	stats.mu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(w, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		for _, l := range latencies {
			diff := float64(l) - float64(avg)
			sumSquared += diff * diff
		}
		fmt.Fprintf(w, "StdDev: %s\n", time.Duration(math.Sqrt(sumSquared/float64(len(latencies)))))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, counts[code])
	}

	if total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
