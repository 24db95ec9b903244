package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/axellelanca/locashare/cmd"
	"github.com/axellelanca/locashare/internal/ai"
	"github.com/axellelanca/locashare/internal/api"
	"github.com/axellelanca/locashare/internal/config"
	"github.com/axellelanca/locashare/internal/monitor"
	"github.com/axellelanca/locashare/internal/realtime"
	"github.com/axellelanca/locashare/internal/services"
)

// RunServerCmd starts the HTTP server and the background workers.
var RunServerCmd = &cobra.Command{
	Use:   "run-server",
	Short: "Start the API server and background workers",
	Long: `Connects the configured stores, starts the click recorder, the idle
connection sweep and the link janitor, optionally joins the NATS broadcast
relay, then serves HTTP until SIGINT or SIGTERM.`,
	RunE: func(c *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cmd.Cfg, cmd.Logger)
	},
}

func init() {
	cmd.RootCmd.AddCommand(RunServerCmd)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	stores, err := cmd.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()
	logger.Info("stores ready", slog.String("sqlite", cfg.Database.Name))

	recorder := services.NewClickRecorder(stores.Links, stores.Clicks,
		cfg.Analytics.BufferSize, cfg.Analytics.WorkerCount, cmd.StorePolicy(cfg), logger)
	recorder.Start()

	locations := cmd.NewLocationService(cfg, stores, logger)
	links := cmd.NewLinkService(cfg, stores, recorder, logger)
	recommender := newRecommender(cfg, locations, logger)

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	registry := realtime.NewRegistry(cfg.Realtime.IdleTimeout, logger)
	registryDone := make(chan struct{})
	go func() {
		registry.Run(bgCtx, cfg.Realtime.SweepInterval)
		close(registryDone)
	}()

	broadcaster, closeRelay, err := newBroadcaster(cfg, registry, logger)
	if err != nil {
		return err
	}
	defer closeRelay()

	janitor := monitor.NewLinkJanitor(links, time.Duration(cfg.Monitor.IntervalMinutes)*time.Minute, cfg.Links.Retention, logger)
	janitor.CheckTargets = cfg.Monitor.CheckTargets
	go janitor.Run(bgCtx)

	dispatcher := realtime.NewDispatcher(cfg.Stream.BufferSize, cfg.Stream.IdleTimeout, logger)
	handlers := api.NewHandlers(locations, links, recommender, registry, broadcaster, dispatcher, api.Options{
		BaseURL:          cfg.Server.BaseURL,
		ShareTTLDays:     cfg.Links.ShareTTLDays,
		DefaultTTLDays:   cfg.Links.DefaultTTLDays,
		WriteTimeout:     cfg.Realtime.WriteTimeout,
		LocationInterval: cfg.Stream.LocationInterval,
	}, logger)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(handlers, logger),
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		// Request contexts end with the background context, which stops
		// long-lived SSE streams before Shutdown waits on them.
		BaseContext: func(net.Listener) context.Context { return bgCtx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", srv.Addr), slog.String("base_url", cfg.Server.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown, so the
	// registry closes them when the background context ends.
	cancelBackground()
	<-registryDone
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.Any("error", err))
	}
	if err := recorder.Stop(shutdownCtx); err != nil {
		logger.Error("click recorder did not drain", slog.Any("error", err))
	}
	logger.Info("server stopped")
	return nil
}

// newRecommender picks the OpenAI client when configured, always falling
// back to the local template.
func newRecommender(cfg *config.Config, locations *services.LocationService, logger *slog.Logger) ai.Recommender {
	static := ai.StaticRecommender{Places: locations, TokenDelay: cfg.Stream.TokenDelay}
	if cfg.AI.Provider != "openai" || cfg.AI.APIKey == "" {
		logger.Info("recommendations from local template")
		return static
	}
	logger.Info("recommendations from OpenAI", slog.String("model", cfg.AI.Model))
	return ai.Fallback{
		Primary: ai.NewOpenAIRecommender(ai.OpenAIConfig{
			APIKey:  cfg.AI.APIKey,
			BaseURL: cfg.AI.BaseURL,
			Model:   cfg.AI.Model,
			Timeout: cfg.AI.Timeout,
		}),
		Secondary: static,
		Logger:    logger,
	}
}

// newBroadcaster joins the NATS relay when nats.url is set or an embedded
// server is requested, and stays local otherwise.
func newBroadcaster(cfg *config.Config, registry *realtime.Registry, logger *slog.Logger) (realtime.Broadcaster, func(), error) {
	url := cfg.NATS.URL
	var shutdownEmbedded func()
	if cfg.NATS.Embedded {
		ns, err := realtime.StartEmbeddedNATS()
		if err != nil {
			return nil, nil, err
		}
		url = ns.ClientURL()
		shutdownEmbedded = ns.Shutdown
		logger.Info("embedded NATS server started", slog.String("url", url))
	}
	if url == "" {
		return realtime.LocalBroadcaster{Registry: registry}, func() {}, nil
	}

	nc, err := nats.Connect(url, nats.Name("locashare"))
	if err != nil {
		if shutdownEmbedded != nil {
			shutdownEmbedded()
		}
		return nil, nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	relay, err := realtime.NewNATSRelay(nc, cfg.NATS.Subject, registry, logger)
	if err != nil {
		nc.Close()
		if shutdownEmbedded != nil {
			shutdownEmbedded()
		}
		return nil, nil, err
	}
	logger.Info("broadcast relay on NATS", slog.String("subject", cfg.NATS.Subject))
	return relay, func() {
		relay.Close()
		nc.Close()
		if shutdownEmbedded != nil {
			shutdownEmbedded()
		}
	}, nil
}
