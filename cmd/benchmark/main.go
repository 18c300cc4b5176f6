// Benchmark tool for measuring Rimborsami scoring accuracy against labelled quiz data.
//
// Usage:
//
//	go run ./cmd/benchmark -csv /path/to/quiz.csv -url http://localhost:8080
//
// The CSV has one column per quiz question plus an "expected" column listing
// the categories that should apply, separated by "|". Empty cells are
// treated as unanswered.
//
// This tool:
//  1. Reads the labelled quiz submissions
//  2. Sends each one to POST /quiz/evaluate
//  3. Compares the applied categories with the expected ones
//  4. Reports per-category precision, recall, F1-score and latency
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rimborsami/rimborsami/internal/domain"
)

// Submission is one labelled row of the benchmark dataset.
type Submission struct {
	Row      int
	Answers  map[string]string
	Expected map[string]bool
}

// EvaluateResponse is the subset of the /quiz/evaluate response the tool reads.
type EvaluateResponse struct {
	EvaluationID      string   `json:"evaluationId"`
	AppliedCategories []string `json:"appliedCategories"`
	TotalEstimated    string   `json:"totalEstimated"`
}

// Confusion tracks per-category outcomes.
type Confusion struct {
	TruePositives  int64
	FalsePositives int64
	FalseNegatives int64
	TrueNegatives  int64
}

// Metrics tracks benchmark results.
type Metrics struct {
	mu         sync.Mutex
	categories map[string]*Confusion

	TotalProcessed   int64
	TotalErrors      int64
	ExactMatches     int64
	ProcessingTimeMs int64
}

func (m *Metrics) record(sub Submission, applied []string) {
	got := make(map[string]bool, len(applied))
	for _, c := range applied {
		got[c] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	exact := true
	for _, c := range categories {
		cm := m.categories[c]
		switch predicted, actual := got[c], sub.Expected[c]; {
		case predicted && actual:
			cm.TruePositives++
		case predicted && !actual:
			cm.FalsePositives++
			exact = false
		case !predicted && actual:
			cm.FalseNegatives++
			exact = false
		default:
			cm.TrueNegatives++
		}
	}
	if exact {
		m.ExactMatches++
	}
}

// categories is the scored category order of the API.
var categories = categoryNames(domain.ScoredCategories())

func categoryNames(cats []domain.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

func main() {
	csvPath := flag.String("csv", "", "Path to the labelled quiz CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Rimborsami base URL")
	userID := flag.String("user", "benchmark-user", "User ID for requests")
	limit := flag.Int("limit", 0, "Maximum submissions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each submission result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/quiz.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           RIMBORSAMI BENCHMARK - Quiz Scoring                 ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("URL:         %s\n", *baseURL)
	fmt.Printf("User ID:     %s\n", *userID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Rimborsami not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure the server is running:")
		fmt.Println("  go run ./cmd/rimborsami serve")
		os.Exit(1)
	}
	fmt.Println("✓ Rimborsami is healthy")

	fmt.Printf("\nReading submissions from %s...\n", *csvPath)
	subs, err := readSubmissions(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d submissions\n", len(subs))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics, err := runBenchmark(context.Background(), subs, *baseURL, *userID, *workers, *verbose)
	if err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
	duration := time.Since(startTime)

	printResults(metrics, duration)
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

func readSubmissions(path string, limit int) ([]Submission, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return parseSubmissions(file, limit)
}

func parseSubmissions(r io.Reader, limit int) ([]Submission, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	expectedCol := -1
	for i, col := range header {
		header[i] = strings.TrimSpace(col)
		if strings.EqualFold(header[i], "expected") {
			expectedCol = i
		}
	}
	if expectedCol < 0 {
		return nil, errors.New(`missing "expected" column`)
	}

	var subs []Submission
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			continue // Skip malformed rows
		}

		sub := Submission{
			Row:      row,
			Answers:  make(map[string]string),
			Expected: make(map[string]bool),
		}
		for i, value := range record {
			if i >= len(header) || value == "" {
				continue
			}
			if i == expectedCol {
				for _, c := range strings.Split(value, "|") {
					if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
						sub.Expected[c] = true
					}
				}
				continue
			}
			sub.Answers[header[i]] = value
		}
		subs = append(subs, sub)

		if limit > 0 && len(subs) >= limit {
			break
		}
	}

	return subs, nil
}

func runBenchmark(ctx context.Context, subs []Submission, baseURL, userID string, numWorkers int, verbose bool) (*Metrics, error) {
	metrics := &Metrics{categories: make(map[string]*Confusion, len(categories))}
	for _, c := range categories {
		metrics.categories[c] = &Confusion{}
	}

	client := &http.Client{Timeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(numWorkers)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			start := time.Now()
			result, err := evaluate(gctx, client, baseURL, userID, sub)
			elapsed := time.Since(start).Milliseconds()

			atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
			atomic.AddInt64(&metrics.TotalProcessed, 1)

			if err != nil {
				atomic.AddInt64(&metrics.TotalErrors, 1)
				if verbose {
					fmt.Printf("ERROR: row %d -> %v\n", sub.Row, err)
				}
				return nil
			}

			metrics.record(sub, result.AppliedCategories)

			if verbose {
				fmt.Printf("row %-6d | expected: %-30s | applied: %-30s | total: %s\n",
					sub.Row,
					strings.Join(sortedKeys(sub.Expected), ","),
					strings.Join(result.AppliedCategories, ","),
					result.TotalEstimated,
				)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return metrics, nil
}

func evaluate(ctx context.Context, client *http.Client, baseURL, userID string, sub Submission) (*EvaluateResponse, error) {
	body, err := json.Marshal(map[string]any{"answers": sub.Answers})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/quiz/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-ID", userID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result EvaluateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Scores derives precision, recall and F1 from a confusion matrix.
func (c *Confusion) Scores() (precision, recall, f1 float64) {
	if c.TruePositives+c.FalsePositives > 0 {
		precision = float64(c.TruePositives) / float64(c.TruePositives+c.FalsePositives)
	}
	if c.TruePositives+c.FalseNegatives > 0 {
		recall = float64(c.TruePositives) / float64(c.TruePositives+c.FalseNegatives)
	}
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}
	return precision, recall, f1
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	evaluated := m.TotalProcessed - m.TotalErrors
	if evaluated > 0 {
		fmt.Printf("   Exact Matches:    %d / %d (%.2f%%)\n", m.ExactMatches, evaluated,
			100*float64(m.ExactMatches)/float64(evaluated))
	}

	fmt.Printf("\n🎯 PER-CATEGORY METRICS\n")
	fmt.Println("   Category        TP     FP     FN   Precision  Recall     F1")
	var total Confusion
	for _, c := range categories {
		cm := m.categories[c]
		p, r, f := cm.Scores()
		fmt.Printf("   %-13s %5d  %5d  %5d   %.4f     %.4f    %.4f\n",
			c, cm.TruePositives, cm.FalsePositives, cm.FalseNegatives, p, r, f)
		total.TruePositives += cm.TruePositives
		total.FalsePositives += cm.FalsePositives
		total.FalseNegatives += cm.FalseNegatives
	}
	p, r, f := total.Scores()
	fmt.Printf("   %-13s %5d  %5d  %5d   %.4f     %.4f    %.4f\n",
		"micro-avg", total.TruePositives, total.FalsePositives, total.FalseNegatives, p, r, f)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", rps)
	}

	fmt.Println()
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
