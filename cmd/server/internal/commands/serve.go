package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgdir/internal/audit"
	"github.com/wolfeidau/orgdir/internal/auth"
	"github.com/wolfeidau/orgdir/internal/logger"
	"github.com/wolfeidau/orgdir/internal/notify"
	"github.com/wolfeidau/orgdir/internal/server"
	"github.com/wolfeidau/orgdir/internal/telemetry"
	"github.com/wolfeidau/orgdir/internal/transfer"
)

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"localhost:8080" env:"ORGDIR_LISTEN"`
	Cert   string `help:"path to TLS cert file" default:"" env:"ORGDIR_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"ORGDIR_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" env:"ORGDIR_CORS_ORIGINS"`

	// Authentication
	JWTSecret string `help:"HMAC secret used to verify bearer tokens" required:"" env:"ORGDIR_JWT_SECRET"`

	// Background work
	SweepInterval time.Duration `help:"interval between expiry sweeps" default:"1m" env:"ORGDIR_SWEEP_INTERVAL"`
	HookTimeout   time.Duration `help:"timeout for email and event delivery" default:"30s" env:"ORGDIR_HOOK_TIMEOUT"`
	EventBuffer   int           `help:"events buffered per stream subscriber" default:"64" env:"ORGDIR_EVENT_BUFFER"`

	// Observability
	Tracing bool `help:"enable OTLP tracing and metrics export" default:"false" env:"ORGDIR_TRACING"`

	Store    StoreFlags    `embed:""`
	Transfer TransferFlags `embed:"" prefix:"transfer-"`
}

func (c *ServeCmd) Run(globals *Globals) error {
	log := setupLogging(globals)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
		Enabled:     c.Tracing,
		ServiceName: "orgdir-server",
		Version:     globals.Version,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
		shutdown = func(ctx context.Context) error { return nil }
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Failed to shutdown telemetry")
		}
	}()

	st, err := c.Store.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(st)

	hub := notify.NewHub(c.EventBuffer)
	dispatcher := notify.NewDispatcher(c.HookTimeout)
	defer dispatcher.Wait()

	svc, err := transfer.NewService(transfer.Deps{
		Store:      st,
		OrgLog:     audit.NewLogOrgLog(log),
		Mailer:     notify.NewLogMailer(log),
		Events:     hub,
		Dispatcher: dispatcher,
	}, c.Transfer.config())
	if err != nil {
		return err
	}

	verifier, err := auth.NewJWTVerifier(c.JWTSecret, "/health")
	if err != nil {
		return fmt.Errorf("failed to create JWT verifier: %w", err)
	}

	srv, err := server.NewServer(server.Config{
		Transfers:   svc,
		Directory:   st,
		Hub:         hub,
		Verifier:    verifier,
		CORSOrigins: c.CORSOrigins,
	})
	if err != nil {
		return err
	}

	httpServer := configureHTTPServer(c.Listen, srv.Handler(log))
	httpServer.RegisterOnShutdown(srv.CloseStreams)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		transfer.NewSweeper(svc, c.SweepInterval).Run(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" || c.Key != "" {
			errCh <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		stop()
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		log.Error().Err(serr).Msg("Failed to shutdown HTTP server")
	}

	wg.Wait()

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// setupLogging installs the process logger as the global zerolog logger,
// which library packages log through.
func setupLogging(globals *Globals) zerolog.Logger {
	l := logger.Setup(globals.Debug)
	zlog.Logger = l
	return l
}
