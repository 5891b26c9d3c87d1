package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"
)

type stats struct {
	requests  int64
	succeeded int64
	failed    int64
	alerts    int64
	totalNs   int64
	minNs     int64
	maxNs     int64

	mu        sync.Mutex
	latencies []int64
}

func main() {
	url := pflag.String("url", "http://localhost:5000/predict", "Prediction endpoint")
	threads := pflag.Int("threads", 4, "Worker goroutine groups")
	connections := pflag.Int("connections", 100, "Concurrent requests in flight")
	duration := pflag.Duration("duration", 30*time.Second, "Test duration")
	patients := pflag.Int("patients", 50, "Distinct patient ids to spread samples over")
	pflag.Parse()

	if *threads < 1 || *connections < 1 || *patients < 1 {
		fmt.Println("threads, connections and patients must be positive")
		os.Exit(1)
	}

	fmt.Printf("Load Test Configuration:\n")
	fmt.Printf("  URL:         %s\n", *url)
	fmt.Printf("  Threads:     %d\n", *threads)
	fmt.Printf("  Connections: %d\n", *connections)
	fmt.Printf("  Patients:    %d\n", *patients)
	fmt.Printf("  Duration:    %v\n\n", *duration)

	st := &stats{minNs: 1 << 62, latencies: make([]int64, 0, 10000)}
	start := time.Now()
	end := start.Add(*duration)

	perThread := *connections / *threads
	if perThread == 0 {
		perThread = 1
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *connections,
			MaxIdleConnsPerHost: *connections,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	var wg sync.WaitGroup
	for t := 0; t < *threads*perThread; t++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for time.Now().Before(end) {
				st.send(client, *url, randomSample(rng, *patients))
			}
		}(start.UnixNano() + int64(t))
	}

	wg.Wait()
	st.print(time.Since(start))
}

// randomSample produces a plausible patient-day; about one in twenty nights is short.
func randomSample(rng *rand.Rand, patients int) map[string]any {
	day := time.Now().UTC().AddDate(0, 0, -rng.Intn(60))
	dow := (int(day.Weekday()) + 6) % 7
	sleep := 6 + rng.Float64()*2.5
	if rng.Intn(20) == 0 {
		sleep = 2 + rng.Float64()*2
	}
	return map[string]any{
		"patient_id":           rng.Intn(patients) + 1,
		"date":                 day.Format("2006-01-02"),
		"heart_rate":           60 + rng.Float64()*30,
		"hr_variability":       30 + rng.Float64()*40,
		"steps":                rng.Intn(12000),
		"mood_score":           1 + rng.Intn(10),
		"sleep_duration_hours": sleep,
		"sleep_efficiency":     70 + rng.Float64()*25,
		"num_awakenings":       rng.Intn(5),
		"age":                  30 + rng.Intn(50),
		"day_of_week":          dow,
		"weekend":              dow >= 5,
		"medication_taken":     rng.Intn(2) == 1,
		"is_female":            rng.Intn(2) == 1,
	}
}

func (st *stats) send(client *http.Client, url string, sample map[string]any) {
	body, _ := json.Marshal(sample)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start).Nanoseconds()

	atomic.AddInt64(&st.requests, 1)
	if err != nil {
		atomic.AddInt64(&st.failed, 1)
		return
	}
	defer resp.Body.Close()

	var decoded struct {
		Prediction struct {
			AlertFlag bool `json:"alert_flag"`
		} `json:"prediction"`
	}
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&decoded) != nil {
		atomic.AddInt64(&st.failed, 1)
		return
	}

	atomic.AddInt64(&st.succeeded, 1)
	if decoded.Prediction.AlertFlag {
		atomic.AddInt64(&st.alerts, 1)
	}
	atomic.AddInt64(&st.totalNs, latency)

	for {
		old := atomic.LoadInt64(&st.minNs)
		if latency >= old || atomic.CompareAndSwapInt64(&st.minNs, old, latency) {
			break
		}
	}
	for {
		old := atomic.LoadInt64(&st.maxNs)
		if latency <= old || atomic.CompareAndSwapInt64(&st.maxNs, old, latency) {
			break
		}
	}

	st.mu.Lock()
	st.latencies = append(st.latencies, latency)
	st.mu.Unlock()
}

func (st *stats) percentile(sorted []int64, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return time.Duration(sorted[idx])
}

func (st *stats) print(elapsed time.Duration) {
	total := atomic.LoadInt64(&st.requests)
	succeeded := atomic.LoadInt64(&st.succeeded)

	var avg time.Duration
	if succeeded > 0 {
		avg = time.Duration(atomic.LoadInt64(&st.totalNs) / succeeded)
	}

	st.mu.Lock()
	sorted := append([]int64(nil), st.latencies...)
	st.mu.Unlock()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	successRate := 0.0
	if total > 0 {
		successRate = float64(succeeded) / float64(total) * 100
	}

	fmt.Println("\n==========================================")
	fmt.Println("Load Test Results")
	fmt.Println("==========================================")
	fmt.Printf("Duration:       %v\n", elapsed)
	fmt.Printf("Total Requests: %d\n", total)
	fmt.Printf("Successful:     %d\n", succeeded)
	fmt.Printf("Failed:         %d\n", atomic.LoadInt64(&st.failed))
	fmt.Printf("Alerts Raised:  %d\n", atomic.LoadInt64(&st.alerts))
	fmt.Printf("Success Rate:   %.2f%%\n", successRate)
	fmt.Printf("Requests/sec:   %.2f\n", float64(total)/elapsed.Seconds())
	if succeeded > 0 {
		fmt.Println("\nLatency Statistics:")
		fmt.Printf("  Min:          %v\n", time.Duration(atomic.LoadInt64(&st.minNs)))
		fmt.Printf("  Max:          %v\n", time.Duration(atomic.LoadInt64(&st.maxNs)))
		fmt.Printf("  Average:      %v\n", avg)
		fmt.Printf("  p50:          %v\n", st.percentile(sorted, 50))
		fmt.Printf("  p95:          %v\n", st.percentile(sorted, 95))
		fmt.Printf("  p99:          %v\n", st.percentile(sorted, 99))
	}
	fmt.Println("==========================================")
}
