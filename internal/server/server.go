// Package server exposes the transfer service as the connect
// orgdir.transfer.v1.TransferService API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	connectcors "connectrpc.com/cors"
	"connectrpc.com/otelconnect"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgdir/api/transfer/v1/transferv1connect"
	"github.com/wolfeidau/orgdir/internal/access"
	"github.com/wolfeidau/orgdir/internal/auth"
	httpmiddleware "github.com/wolfeidau/orgdir/internal/http"
	"github.com/wolfeidau/orgdir/internal/logger"
	"github.com/wolfeidau/orgdir/internal/notify"
	"github.com/wolfeidau/orgdir/internal/store"
	"github.com/wolfeidau/orgdir/internal/transfer"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ transferv1connect.TransferServiceHandler = (*Server)(nil)

// Config wires the server to its collaborators.
type Config struct {
	Transfers   *transfer.Service
	Directory   store.Reader
	Hub         *notify.Hub
	Verifier    *auth.JWTVerifier
	CORSOrigins []string
}

// Server implements the TransferService handlers.
type Server struct {
	transfers   *transfer.Service
	resolver    *access.Resolver
	hub         *notify.Hub
	verifier    *auth.JWTVerifier
	corsOrigins []string
	tracing     connect.Interceptor

	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer creates a new server from cfg.
func NewServer(cfg Config) (*Server, error) {
	switch {
	case cfg.Transfers == nil:
		return nil, errors.New("transfer service is required")
	case cfg.Directory == nil:
		return nil, errors.New("directory store is required")
	case cfg.Hub == nil:
		return nil, errors.New("event hub is required")
	case cfg.Verifier == nil:
		return nil, errors.New("JWT verifier is required")
	}

	otelInterceptor, err := otelconnect.NewInterceptor()
	if err != nil {
		return nil, fmt.Errorf("failed to create OTEL interceptor: %w", err)
	}

	return &Server{
		transfers:   cfg.Transfers,
		resolver:    access.NewResolver(cfg.Directory),
		hub:         cfg.Hub,
		verifier:    cfg.Verifier,
		corsOrigins: cfg.CORSOrigins,
		tracing:     otelInterceptor,
		closing:     make(chan struct{}),
	}, nil
}

// CloseStreams ends every open event stream. Register it with
// http.Server.RegisterOnShutdown so streams do not hold up a graceful shutdown.
func (s *Server) CloseStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	interceptors := []connect.Interceptor{
		logger.NewConnectRequests(log),
		s.tracing,
		spanIdentity(),
	}

	path, handler := transferv1connect.NewTransferServiceHandler(s, connect.WithInterceptors(interceptors...))
	mux.Handle(path, handler)
	// Event streams outlive the server's write timeout.
	mux.Handle(transferv1connect.TransferServiceStreamEventsProcedure, withoutWriteDeadline(handler))

	var h http.Handler = mux
	h = s.verifier.Middleware()(h)
	h = httpmiddleware.ClientInfoMiddleware()(h)

	return withCORS(s.corsOrigins, h)
}

// spanIdentity tags the RPC span with the calling user.
func spanIdentity() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if identity := auth.IdentityFromContext(ctx); identity != nil {
				trace.SpanFromContext(ctx).SetAttributes(attribute.String("orgdir.user_id", identity.UserID.String()))
			}
			return next(ctx, req)
		}
	}
}

func withoutWriteDeadline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
		next.ServeHTTP(w, r)
	})
}

// withCORS adds CORS support to a Connect HTTP handler.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return h
	}

	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: connectcors.AllowedMethods(),
		AllowedHeaders: append(connectcors.AllowedHeaders(), "Authorization"),
		ExposedHeaders: connectcors.ExposedHeaders(),
		MaxAge:         600,
	})
	return middleware.Handler(h)
}
