// main.go - Load generator for the analytics collector
//
// Every worker plays a stream of synthetic visitors. Each visitor is a
// tracker client with its own IP and user agent, so the server sees real
// session bootstraps followed by page views and events.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"hayzedd/pkg/tracker"
)

// LoadConfig holds the configuration for the run
type LoadConfig struct {
	BaseURL     string
	Origin      string
	Concurrency int
	Duration    time.Duration
	VisitorRate int
	Timeout     time.Duration
	Verbose     bool
	Output      string
}

// LoadStats aggregates per-endpoint latency and outcome counts.
type LoadStats struct {
	mu          sync.Mutex
	histograms  map[string]*hdrhistogram.Histogram
	statusCodes map[int]int64
	failures    map[string]int64

	RunID         string
	Visitors      atomic.Int64
	FailedInits   atomic.Int64
	TotalRequests atomic.Int64
	StartTime     time.Time
	EndTime       time.Time
}

func newLoadStats() *LoadStats {
	return &LoadStats{
		histograms:  make(map[string]*hdrhistogram.Histogram),
		statusCodes: make(map[int]int64),
		failures:    make(map[string]int64),
		RunID:       uuid.NewString(),
		StartTime:   time.Now(),
	}
}

func (s *LoadStats) record(path string, latency time.Duration, err error) {
	s.TotalRequests.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.histograms[path]
	if !ok {
		// 1µs to 60s at three significant digits.
		h = hdrhistogram.New(1, 60_000_000, 3)
		s.histograms[path] = h
	}
	_ = h.RecordValue(latency.Microseconds())

	var statusErr *tracker.StatusError
	switch {
	case err == nil:
		s.statusCodes[200]++
	case errors.As(err, &statusErr):
		s.statusCodes[statusErr.StatusCode]++
		s.failures[path]++
	default:
		s.statusCodes[0]++
		s.failures[path]++
	}
}

// timedTransport measures every request the tracker makes.
type timedTransport struct {
	next  tracker.Transport
	stats *LoadStats
}

func (t *timedTransport) Send(ctx context.Context, path string, payload, out any) error {
	start := time.Now()
	err := t.next.Send(ctx, path, payload, out)
	t.stats.record(path, time.Since(start), err)
	return err
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the collector")
	concurrency := flag.Int("c", 10, "Number of concurrent visitor streams")
	duration := flag.Duration("d", 30*time.Second, "Duration of the test")
	visitorRate := flag.Int("rate", 0, "Target new visitors per second (0 = unlimited)")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	output := flag.String("out", "loadgen_results.json", "Where to write the JSON summary")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	origin := os.Getenv("HAYZEDD_LOADGEN_ORIGIN")
	if origin == "" {
		origin = "https://example.com"
	}

	cfg := &LoadConfig{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Origin:      origin,
		Concurrency: *concurrency,
		Duration:    *duration,
		VisitorRate: *visitorRate,
		Timeout:     *timeout,
		Verbose:     *verbose,
		Output:      *output,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		fmt.Printf("Received signal %v, shutting down...\n", sig)
		cancel()
	}()

	fmt.Println("\n=== Analytics Load Generator ===")
	fmt.Printf("  URL (-url):           %s\n", cfg.BaseURL)
	fmt.Printf("  Concurrency (-c):     %d\n", cfg.Concurrency)
	fmt.Printf("  Duration (-d):        %v\n", cfg.Duration)
	fmt.Printf("  Visitors/sec (-rate): %d\n", cfg.VisitorRate)
	fmt.Printf("  Timeout (-timeout):   %v\n", cfg.Timeout)
	fmt.Println("================================")

	stats := newLoadStats()

	testCtx, testCancel := context.WithTimeout(ctx, cfg.Duration)
	defer testCancel()

	run(testCtx, cfg, stats, logger)

	stats.EndTime = time.Now()
	printResults(stats)
	if err := exportResults(stats, cfg.Output); err != nil {
		fmt.Printf("Failed to export results: %v\n", err)
		os.Exit(1)
	}
}

// run starts the visitor streams and waits for them to drain.
func run(ctx context.Context, cfg *LoadConfig, stats *LoadStats, logger *slog.Logger) {
	var wg sync.WaitGroup

	// One limiter shared by all workers; nil means unlimited.
	var limiter *rate.Limiter
	if cfg.VisitorRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.VisitorRate), cfg.VisitorRate)
	}

	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						return
					}
				}
				visit(ctx, cfg, stats, logger)
			}
		}()
	}

	wg.Wait()
}

// visit plays one visitor: session bootstrap, a short journey and close.
func visit(ctx context.Context, cfg *LoadConfig, stats *LoadStats, logger *slog.Logger) {
	stats.Visitors.Add(1)

	headers := map[string]string{
		"Origin":          cfg.Origin,
		"User-Agent":      userAgents[rand.IntN(len(userAgents))],
		"Accept-Language": languages[rand.IntN(len(languages))],
		"X-Forwarded-For": randomIP(),
		"X-Loadgen-Run":   stats.RunID,
	}
	transport := tracker.NewHTTPTransport(cfg.BaseURL, headers)
	transport.Client.Timeout = cfg.Timeout
	beacon := tracker.NewHTTPBeacon(cfg.BaseURL, headers)

	journey := journeys[rand.IntN(len(journeys))]

	opts := tracker.DefaultOptions()
	opts.Transport = &timedTransport{next: transport, stats: stats}
	opts.Beacon = beacon
	opts.Logger = logger
	opts.Debug = cfg.Verbose
	opts.Environment = tracker.StaticEnvironment{
		URL:      cfg.Origin + journey[0],
		Title:    journey[0],
		Language: headers["Accept-Language"],
		Timezone: "UTC",
		Referrer: referrers[rand.IntN(len(referrers))],
		Screen:   tracker.Screen{Width: 1920, Height: 1080, ColorDepth: 24},
	}

	client := tracker.New(opts)
	// Every simulated visitor accepts the consent banner.
	if err := client.GrantConsent(); err != nil {
		stats.FailedInits.Add(1)
		_ = client.Close(context.Background())
		return
	}
	res := <-client.Init(ctx)
	if res.Err != nil {
		stats.FailedInits.Add(1)
		_ = client.Close(context.Background())
		return
	}

	for _, page := range journey[1:] {
		client.HandleScroll(rand.IntN(101))
		if rand.IntN(3) == 0 {
			client.HandleClick(tracker.Element{Tag: "a", Text: "Next", Attrs: map[string]string{"href": cfg.Origin + page}})
		}
		client.TrackPageView(page, page)
	}
	client.HandleUnload()

	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	_ = client.Close(closeCtx)
	beacon.Wait()
}

func randomIP() string {
	return fmt.Sprintf("%d.%d.%d.%d", rand.IntN(200)+11, rand.IntN(256), rand.IntN(256), rand.IntN(254)+1)
}

var journeys = [][]string{
	{"/", "/features", "/pricing", "/signup"},
	{"/", "/blog", "/blog/article-1"},
	{"/docs", "/docs/getting-started", "/docs/api-reference"},
	{"/pricing"},
	{"/", "/about", "/contact"},
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
}

var languages = []string{"en-US,en;q=0.9", "es-ES,es;q=0.8", "de-DE,de;q=0.9", "fr-FR,fr;q=0.9"}

var referrers = []string{"", "https://google.com/", "https://news.ycombinator.com/", "https://github.com/"}

// printResults displays the results in aligned tables
func printResults(stats *LoadStats) {
	elapsed := stats.EndTime.Sub(stats.StartTime)
	total := stats.TotalRequests.Load()

	fmt.Println("\nLoad Test Results:")
	fmt.Printf("Run: %s\n", stats.RunID)
	fmt.Printf("Test Duration: %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Visitors: %d (%d failed session bootstraps)\n", stats.Visitors.Load(), stats.FailedInits.Load())
	fmt.Printf("Requests: %d (%.2f/s)\n", total, float64(total)/elapsed.Seconds())

	stats.mu.Lock()
	defer stats.mu.Unlock()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\n%s\t%s\t%s\t%s\t%s\t%s\t%s\n", "ENDPOINT", "COUNT", "FAILED", "P50", "P90", "P99", "MAX")
	for _, path := range sortedKeys(stats.histograms) {
		h := stats.histograms[path]
		fmt.Fprintf(w, "%s\t%d\t%d\t%v\t%v\t%v\t%v\n",
			path, h.TotalCount(), stats.failures[path],
			micros(h.ValueAtQuantile(50)), micros(h.ValueAtQuantile(90)),
			micros(h.ValueAtQuantile(99)), micros(h.Max()))
	}
	w.Flush()

	fmt.Println("\nStatus Code Distribution (0 = transport error):")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		count := stats.statusCodes[code]
		bar := strings.Repeat("█", int(50*float64(count)/float64(max(total, 1))))
		fmt.Fprintf(w, "%d\t%d\t%s\n", code, count, bar)
	}
	w.Flush()
}

type endpointSummary struct {
	Count  int64   `json:"count"`
	Failed int64   `json:"failed"`
	MeanMs float64 `json:"meanMs"`
	P50Ms  float64 `json:"p50Ms"`
	P90Ms  float64 `json:"p90Ms"`
	P99Ms  float64 `json:"p99Ms"`
	MaxMs  float64 `json:"maxMs"`
}

// exportResults writes a JSON summary for comparing runs.
func exportResults(stats *LoadStats, path string) error {
	stats.mu.Lock()
	endpoints := make(map[string]endpointSummary, len(stats.histograms))
	for name, h := range stats.histograms {
		endpoints[name] = endpointSummary{
			Count:  h.TotalCount(),
			Failed: stats.failures[name],
			MeanMs: h.Mean() / 1000,
			P50Ms:  float64(h.ValueAtQuantile(50)) / 1000,
			P90Ms:  float64(h.ValueAtQuantile(90)) / 1000,
			P99Ms:  float64(h.ValueAtQuantile(99)) / 1000,
			MaxMs:  float64(h.Max()) / 1000,
		}
	}
	stats.mu.Unlock()

	summary := map[string]any{
		"runId":       stats.RunID,
		"startTime":   stats.StartTime.Format(time.RFC3339),
		"endTime":     stats.EndTime.Format(time.RFC3339),
		"visitors":    stats.Visitors.Load(),
		"failedInits": stats.FailedInits.Load(),
		"requests":    stats.TotalRequests.Load(),
		"endpoints":   endpoints,
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("\nResults exported to %s\n", path)
	return nil
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
