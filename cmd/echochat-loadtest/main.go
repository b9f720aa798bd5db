// Command echochat-loadtest connects many fake participants to an echochat
// server and measures how quickly their lines are broadcast back.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/aeolun/echochat/pkg/client"
)

var debugLogger = log.New(io.Discard, "", 0)

func initLogging() error {
	logFile, err := os.OpenFile("loadtest.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return fmt.Errorf("failed to create loadtest.log: %w", err)
	}

	debugLogFile, err := os.OpenFile("loadtest_debug.log", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return fmt.Errorf("failed to create loadtest_debug.log: %w", err)
	}

	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	log.SetFlags(log.LstdFlags)

	debugLogger = log.New(debugLogFile, "", log.LstdFlags|log.Lmicroseconds)

	return nil
}

// loadConfig describes one load test run
type loadConfig struct {
	server        string
	clients       int
	duration      time.Duration
	minDelay      time.Duration
	maxDelay      time.Duration
	statsInterval time.Duration
	clientOptions client.Options
}

func main() {
	serverAddr := flag.String("server", "localhost:5555", "Server address (host:port, tcp://, ssh:// or ws:// URL)")
	numClients := flag.Int("clients", 10, "Number of concurrent clients")
	duration := flag.Duration("duration", 1*time.Minute, "Test duration")
	minDelay := flag.Duration("min-delay", 100*time.Millisecond, "Minimum delay between posts")
	maxDelay := flag.Duration("max-delay", 1*time.Second, "Maximum delay between posts")
	insecure := flag.Bool("insecure", false, "Skip SSH host key verification")
	flag.Parse()

	if *numClients < 1 || *maxDelay < *minDelay {
		fmt.Fprintln(os.Stderr, "need at least one client and max-delay >= min-delay")
		os.Exit(2)
	}

	if err := initLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	log.Printf("Load test logs will be written to loadtest.log")
	log.Printf("Detailed client logs in loadtest_debug.log")

	cfg := loadConfig{
		server:        *serverAddr,
		clients:       *numClients,
		duration:      *duration,
		minDelay:      *minDelay,
		maxDelay:      *maxDelay,
		statsInterval: 5 * time.Second,
		clientOptions: client.Options{
			InsecureIgnoreHostKey: *insecure,
			Logger:                debugLogger,
		},
	}

	stop := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Printf("\nShutdown signal received, stopping stats...")
		close(stop)
	}()

	stats := runLoadTest(cfg, stop)
	printResults(cfg, stats)
}

// runLoadTest ramps clients up over a quarter of the duration, lets each post
// for the full duration and ramps them down in reverse order.
func runLoadTest(cfg loadConfig, stop <-chan struct{}) *Stats {
	rampUpDuration := cfg.duration / 4
	staggerDelay := rampUpDuration / time.Duration(cfg.clients)
	if staggerDelay < 1*time.Millisecond {
		staggerDelay = 1 * time.Millisecond
	}

	log.Printf("Starting load test:")
	log.Printf("  Server: %s", cfg.server)
	log.Printf("  Clients: %d", cfg.clients)
	log.Printf("  Duration: %v", cfg.duration)
	log.Printf("  Ramp-up: %v (%v per client)", rampUpDuration, staggerDelay)
	log.Printf("  Delay: %v - %v", cfg.minDelay, cfg.maxDelay)

	stats := &Stats{}
	var wg sync.WaitGroup

	statsDone := make(chan struct{})
	go reportStats(stats, cfg.statsInterval, stop, statsDone)

	disconnectTimes := make(chan time.Time, cfg.clients)

	for i := 0; i < cfg.clients; i++ {
		wg.Add(1)

		// Reverse order for ramp-down
		shutdownDelay := staggerDelay * time.Duration(cfg.clients-i-1)

		go func(id int, shutdownDelay time.Duration) {
			defer wg.Done()

			lc, err := NewLoadClient(id, cfg.server, cfg.clientOptions, stats)
			if err != nil {
				stats.connectionErrors.Add(1)
				debugLogger.Printf("[Client %d] %v", id, err)
				return
			}

			if err := lc.Connect(); err != nil {
				stats.connectionErrors.Add(1)
				debugLogger.Printf("[Client %d] %v", id, err)
				lc.conn.Close()
				return
			}

			stats.successfulClients.Add(1)
			if id%100 == 0 {
				log.Printf("[Client %d] Connected as %s", id, lc.identity)
			}

			lc.Run(cfg.duration, cfg.minDelay, cfg.maxDelay, shutdownDelay, disconnectTimes)
		}(i, shutdownDelay)

		time.Sleep(staggerDelay)
	}

	wg.Wait()
	close(statsDone)
	close(disconnectTimes)
	return stats
}

func reportStats(stats *Stats, interval time.Duration, stop, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	startTime := time.Now()
	for {
		select {
		case <-ticker.C:
			posted, failed, connErrors, avgUs := stats.snapshot()
			elapsed := time.Since(startTime).Seconds()
			rate := float64(posted) / elapsed
			avgMs := avgUs / 1000.0
			load := getCPULoad()
			goroutines := runtime.NumGoroutine()

			log.Printf("Stats: %d posted (%.1f/s), %d received, %d failed, %d conn errors, avg %.2fms, load %.2f, goroutines %d",
				posted, rate, stats.linesReceived.Load(), failed, connErrors, avgMs, load, goroutines)
		case <-stop:
			return
		case <-done:
			return
		}
	}
}

func printResults(cfg loadConfig, stats *Stats) {
	posted, failed, connErrors, avgUs := stats.snapshot()
	successfulClients := stats.successfulClients.Load()
	rate := float64(posted) / cfg.duration.Seconds()
	avgMs := avgUs / 1000.0

	avgDelay := (cfg.minDelay + cfg.maxDelay) / 2
	expectedPerClient := 0.0
	if avgDelay > 0 {
		expectedPerClient = float64(cfg.duration) / float64(avgDelay)
	}
	expectedTotal := expectedPerClient * float64(successfulClients)
	efficiency := 0.0
	if expectedTotal > 0 {
		efficiency = float64(posted) / expectedTotal * 100
	}

	log.Printf("\n=== Final Results ===")
	log.Printf("Clients: %d attempted, %d successful (%.1f%%)", cfg.clients, successfulClients, float64(successfulClients)/float64(cfg.clients)*100)
	log.Printf("Duration: %v", cfg.duration)
	log.Printf("Messages posted: %d (%.1f/s)", posted, rate)
	log.Printf("Lines received: %d", stats.linesReceived.Load())
	log.Printf("Messages failed: %d", failed)
	log.Printf("  - Send failures: %d", stats.sendFailures.Load())
	log.Printf("  - Timeouts: %d", stats.timeouts.Load())
	log.Printf("  - Disconnections: %d", stats.disconnections.Load())
	log.Printf("Connection errors: %d", connErrors)
	if connErrors > 0 {
		log.Printf("  - Dial failed: %d", stats.dialFailures.Load())
		log.Printf("  - Login rejected: %d", stats.loginRejected.Load())
	}
	log.Printf("Average response time: %.2fms", avgMs)
	log.Printf("Expected throughput: %.0f messages (%.1f per client)", expectedTotal, expectedPerClient)
	log.Printf("Actual vs expected: %.1f%% efficiency", efficiency)

	if posted > 0 {
		successRate := float64(posted) / float64(posted+failed) * 100
		log.Printf("Success rate: %.1f%%", successRate)
	}
}
