package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/timerboard/go/internal/relay"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath      string
		port            string
		duplicatePolicy string
		logLevel        string
		natsURL         string
	)

	root := &cobra.Command{
		Use:   "timerboard",
		Short: "Relay that keeps a shared board of countdown timers in sync",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the timer board relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if it exists
			if err := godotenv.Load(); err != nil {
				log.Debug().Err(err).Msg("could not load .env file")
			}

			flags := cmd.Flags()
			if !flags.Changed("config") {
				configPath = getEnv("RELAY_CONFIG", "")
			}
			cfg, err := relay.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if flags.Changed("port") {
				cfg.Port = port
			}
			if flags.Changed("duplicate-policy") {
				cfg.DuplicatePolicy = duplicatePolicy
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if flags.Changed("nats-url") {
				cfg.Mirror.URL = natsURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			setupLogging(cfg.LogLevel)
			return run(cfg)
		},
	}

	serve.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	serve.Flags().StringVarP(&port, "port", "p", "3001", "TCP port to listen on")
	serve.Flags().StringVar(&duplicatePolicy, "duplicate-policy", "reject", "what add-timer does with an existing id: reject, overwrite or ignore")
	serve.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	serve.Flags().StringVar(&natsURL, "nats-url", "", "NATS server to mirror board events to (disabled when empty)")

	root.AddCommand(serve)
	return root
}

func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("log_level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func run(cfg relay.Config) error {
	service, err := relay.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to create relay service: %w", err)
	}

	server := &http.Server{
		Addr:        fmt.Sprintf("0.0.0.0:%s", cfg.Port),
		Handler:     h2c.NewHandler(service.Handler(), &http2.Server{}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- service.Start(ctx)
	}()

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Strs("urls", relay.AdvertisedURLs(cfg.Port)).
			Strs("allowed_origins", cfg.AllowedOrigins).
			Str("duplicate_policy", cfg.DuplicatePolicy).
			Msg("timer board relay listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Cancel service context to close client connections
	cancel()
	if err := <-done; err != nil {
		log.Error().Err(err).Msg("relay shutdown failed")
	}

	log.Info().Msg("timer board relay shutdown complete")
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
