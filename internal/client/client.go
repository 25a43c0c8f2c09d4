// Package client is a Go client for the orgdir TransferService API.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"
	"github.com/wolfeidau/orgdir/api/transfer/v1/transferv1connect"
	"golang.org/x/oauth2"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Token     string
	Timeout   time.Duration
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8080",
		Timeout:   30 * time.Second,
	}
}

// Client calls the TransferService as the token's user.
type Client struct {
	baseURL string
	rpc     transferv1connect.TransferServiceClient
	stream  transferv1connect.TransferServiceClient
}

// New creates a client. Requests carry cfg.Token as a bearer token. A
// transport placed in ctx under oauth2.HTTPClient is used as the base.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("server URL is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("token is required")
	}

	base, err := url.Parse(strings.TrimSuffix(cfg.ServerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL scheme %q", base.Scheme)
	}

	otelInterceptor, err := otelconnect.NewInterceptor()
	if err != nil {
		return nil, fmt.Errorf("failed to create OTEL interceptor: %w", err)
	}
	opts := []connect.ClientOption{connect.WithInterceptors(otelInterceptor)}

	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.Token,
		TokenType:   "Bearer",
	}))

	// Event streams stay open, so they get a copy without the timeout.
	streamHTTP := *hc
	hc.Timeout = cfg.Timeout

	return &Client{
		baseURL: base.String(),
		rpc:     transferv1connect.NewTransferServiceClient(hc, base.String(), opts...),
		stream:  transferv1connect.NewTransferServiceClient(&streamHTTP, base.String(), opts...),
	}, nil
}

// BaseURL returns the server URL the client was created with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// KindOf returns the error kind carried by err, such as "forbidden" or
// "not_found". Errors that did not come from the server are "internal".
func KindOf(err error) string {
	var connectErr *connect.Error
	if !errors.As(err, &connectErr) {
		return "internal"
	}

	switch connectErr.Code() {
	case connect.CodeInvalidArgument:
		return "validation"
	case connect.CodeFailedPrecondition:
		return "conflict"
	case connect.CodeNotFound:
		return "not_found"
	case connect.CodePermissionDenied:
		return "forbidden"
	case connect.CodeUnauthenticated:
		return "unauthenticated"
	default:
		return "internal"
	}
}

// IsKind reports whether err is a server error of the given kind.
func IsKind(err error, kind string) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the server's message for err, or err.Error() for errors
// raised on the client side.
func Message(err error) string {
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return connectErr.Message()
	}
	return err.Error()
}
