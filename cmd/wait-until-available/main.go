package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"gitlab.com/dirk.krummacker/qrinfo-service/internal/config"
	"gitlab.com/dirk.krummacker/qrinfo-service/internal/logging"
)

// Usage example on the command line:
// > REMOTE_URL=http://localhost:8080 go run main.go -interval=2s -timeout=1m
func main() {
	configPtr := flag.String("config", "", "the YAML configuration file")
	intervalPtr := flag.Duration("interval", 5*time.Second, "the time between two attempts")
	timeoutPtr := flag.Duration("timeout", 0, "give up after this time, never if zero")
	flag.Parse()

	cfg, err := config.Load(*configPtr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)

	ctx := context.Background()
	if *timeoutPtr > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeoutPtr)
		defer cancel()
	}
	url := strings.TrimRight(cfg.Storage.RemoteURL, "/") + "/persons"
	if err := waitUntilAvailable(ctx, http.DefaultClient, url, *intervalPtr, logger); err != nil {
		logger.Error("service not available", "url", url, "error", err)
		os.Exit(1)
	}
}

// waitUntilAvailable polls url until it answers with OK or the context ends.
func waitUntilAvailable(ctx context.Context, client *http.Client, url string, interval time.Duration, logger *slog.Logger) error {
	var totalWaitTime time.Duration
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		res, err := client.Do(req)
		if err == nil {
			res.Body.Close()
			if res.StatusCode == http.StatusOK {
				logger.Info("service available", "url", url, "waited", totalWaitTime)
				return nil
			}
			logger.Info("service not ready", "status", res.StatusCode)
		} else {
			logger.Info("service not reachable", "error", err)
		}
		totalWaitTime += interval
		logger.Info("waiting", "total", totalWaitTime)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
