// Standalone mock feed server for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/statuswatch run -c example/statuswatch.yaml
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jpalmerr/statuswatch/example/mockfeed"
)

func main() {
	fmt.Println("Mock feed server starting on :9999")
	for _, name := range mockfeed.Products {
		fmt.Printf("  http://localhost:9999/%s.atom  http://localhost:9999/%s.rss\n", name, name)
	}
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := http.ListenAndServe(":9999", mockfeed.New(logger)); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
