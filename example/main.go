package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/statuswatch"
	"github.com/jpalmerr/statuswatch/example/mockfeed"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// start mock feeds (see mockfeed/)
	go func() {
		if err := http.ListenAndServe(":9999", mockfeed.New(logger)); err != nil {
			logger.Error("mock server error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	var sources []statuswatch.Source
	for i, name := range mockfeed.Products {
		// alternate Atom and RSS
		ext := "atom"
		if i%2 == 1 {
			ext = "rss"
		}
		src, err := statuswatch.NewSource(name, fmt.Sprintf("http://localhost:9999/%s.%s", name, ext))
		if err != nil {
			logger.Error("invalid source", "error", err)
			os.Exit(1)
		}
		sources = append(sources, src)
	}

	sw, err := statuswatch.New(
		statuswatch.WithSources(sources...),
		statuswatch.WithStateStore(statuswatch.MemoryState(nil)),
		statuswatch.WithPollingInterval(5*time.Second),
		statuswatch.WithPort(8080),
		statuswatch.WithLogger(logger),
		statuswatch.WithChangeCallback(func(ch statuswatch.Change) {
			if !ch.FirstSeen {
				logger.Info("incident rotated", "source", ch.Source, "from", ch.PreviousID, "to", ch.IncidentID)
			}
		}),
	)
	if err != nil {
		logger.Error("failed to create statuswatch", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  statuswatch demo")
	fmt.Println()
	fmt.Println("  Polling 3 mock feeds every 5s; each rotates its incident every 20-60s.")
	fmt.Println("  Recent incidents: http://localhost:8080")
	fmt.Println("  Live stream:      curl -N http://localhost:8080/api/sse")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sw.Start(ctx); err != nil {
		logger.Error("statuswatch error", "error", err)
		os.Exit(1)
	}
}
