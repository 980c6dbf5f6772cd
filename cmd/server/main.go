// Command server runs the kikaiken chat-bot backend.
//
// Configuration is read from, in increasing precedence, built-in defaults,
// a YAML file (KIKAIKEN_CONFIG, ./config.yaml or /etc/kikaiken/config.yaml),
// a .env file and KIKAIKEN_* environment variables. Vendor credentials may
// also come from DEEPSEEK_API_KEY or SILICONFLOW_API_KEY.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/kikaiken/kikaiken/pkg/config"
	"github.com/kikaiken/kikaiken/pkg/debug"
	"github.com/kikaiken/kikaiken/pkg/provider"
	"github.com/kikaiken/kikaiken/pkg/provider/openaicompat"
	"github.com/kikaiken/kikaiken/pkg/talk"
	transporthttp "github.com/kikaiken/kikaiken/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	svc, err := talk.New(store, talkConfig(cfg.Provider))
	if err != nil {
		return fmt.Errorf("creating talk service: %w", err)
	}
	defer svc.Close()

	authn, admin, err := buildAuth(cfg.Auth)
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}

	srv := transporthttp.NewServer(svc,
		transporthttp.Backends{Keys: svc, Records: svc, Commands: svc, Health: store},
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithMetricsPath(metricsPath),
		transporthttp.WithAuth(authn),
		transporthttp.WithAdmin(admin),
	)

	slog.Info("kikaiken starting",
		"port", cfg.Server.Port,
		"provider", cfg.Provider.Type,
		"model", cfg.Provider.Model,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
	)
	return srv.Run(ctx)
}

func talkConfig(p config.ProviderConfig) talk.Config {
	return talk.Config{
		Provider:     provider.ProviderType(p.Type),
		Model:        p.Model,
		APIKey:       p.APIKey,
		BaseURL:      p.BaseURL,
		SystemPrompt: p.SystemPrompt,
		Temperature:  p.Temperature,
		Client: openaicompat.ClientOptions{
			Timeout:        p.Timeout,
			MaxRetries:     p.MaxRetries,
			DefaultHeaders: p.Headers,
		},
	}
}
