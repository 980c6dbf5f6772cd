// Command mock-backend serves a deterministic OpenAI-compatible Chat
// Completions API, with DeepSeek-style reasoning_content, for local runs and
// end-to-end tests.
//
// Environment:
//
//	MOCK_PORT        listen port, default 9090
//	MOCK_API_KEY     bearer key clients must present; unset accepts any
//	KIKAIKEN_DEBUG   debug categories, e.g. "providers"
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kikaiken/kikaiken/pkg/debug"
	"github.com/kikaiken/kikaiken/pkg/provider/providertest"
)

func main() {
	debug.Init("", "info", "text")

	addr := ":" + envOr("MOCK_PORT", "9090")
	srv := &http.Server{
		Addr:              addr,
		Handler:           providertest.New(providertest.Config{APIKey: os.Getenv("MOCK_API_KEY")}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("mock backend listening", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("mock backend stopped", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
