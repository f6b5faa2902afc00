package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	infinispan "github.com/infinispan/infinispan-subsystem"
	"github.com/infinispan/infinispan-subsystem/config"
	"github.com/infinispan/infinispan-subsystem/internal/management"
)

func main() {
	configPath := flag.String("config", "", "path to the server yaml config")
	xmlPath := flag.String("xml", "", "subsystem document to boot, overrides subsystem.xml of the config")
	listen := flag.String("listen", "", "management listen address, overrides management.listen of the config")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			l := zerolog.New(os.Stderr)
			l.Fatal().Err(err).Msg("load config")
		}
	}
	if *xmlPath != "" {
		cfg.Subsystem.XML = *xmlPath
	}
	if *listen != "" {
		if !cfg.Management.Enabled() {
			cfg.Management = &config.Management{}
		}
		cfg.Management.Listen = *listen
		cfg.AdjustConfig()
	}

	logger := newLogger(cfg.Log)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func newLogger(cfg config.Log) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func engineLogger(cfg config.Log) *slog.Logger {
	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.Level))
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "console" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := infinispan.New(ctx, cfg, logger, engineLogger(cfg.Log))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = srv.Close(shutdownCtx)
	}()

	if cfg.Subsystem.XML != "" {
		if err = srv.BootFile(ctx, cfg.Subsystem.XML); err != nil {
			return err
		}
	} else {
		logger.Warn().Msg("no subsystem document given, the model is empty")
	}

	if !cfg.Management.Enabled() {
		logger.Info().Msg("management listener disabled, waiting for shutdown signal")
		<-ctx.Done()
		return nil
	}

	httpSrv := &http.Server{
		Addr:              cfg.Management.Listen,
		Handler:           management.NewRouter(srv, srv.Metrics().Handler(), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("listen", httpSrv.Addr).Msg("management listener started")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Management.ShutdownTimeout)
		defer cancel()
		logger.Info().Msg("shutting down management listener")
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
