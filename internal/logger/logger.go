package logger

import (
	"context"
	"os"
	"time"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
)

func Setup(dev bool) zerolog.Logger {
	var logger zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Caller().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, FormatTimestamp: func(i any) string {
			return time.Now().Format(time.RFC3339)
		}}).Level(level).With().Stack().Logger()
	}

	return logger
}

var _ connect.Interceptor = (*ConnectRequests)(nil)

// ConnectRequests logs one line per RPC and makes a request scoped logger
// available to handlers through zerolog.Ctx.
type ConnectRequests struct {
	logger zerolog.Logger
}

func NewConnectRequests(logger zerolog.Logger) *ConnectRequests {
	return &ConnectRequests{logger: logger}
}

func (c *ConnectRequests) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return connect.UnaryFunc(func(
		ctx context.Context,
		req connect.AnyRequest,
	) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}

		started := time.Now()

		ctx = c.logger.With().
			Str("procedure", req.Spec().Procedure).
			Str("protocol", req.Peer().Protocol).
			Str("addr", req.Peer().Addr).
			Logger().WithContext(ctx)

		resp, err := next(ctx, req)

		levelFor(ctx, err).
			Err(err).
			Dur("duration", time.Since(started)).
			Msg("rpc call")

		return resp, err
	})
}

func (c *ConnectRequests) WrapStreamingClient(
	next connect.StreamingClientFunc,
) connect.StreamingClientFunc {
	return next
}

func (c *ConnectRequests) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return connect.StreamingHandlerFunc(func(
		ctx context.Context,
		conn connect.StreamingHandlerConn,
	) error {
		started := time.Now()

		ctx = c.logger.With().
			Str("procedure", conn.Spec().Procedure).
			Str("protocol", conn.Peer().Protocol).
			Str("addr", conn.Peer().Addr).
			Logger().WithContext(ctx)

		err := next(ctx, conn)

		levelFor(ctx, err).
			Err(err).
			Dur("duration", time.Since(started)).
			Msg("rpc server stream finished")

		return err
	})
}

// levelFor logs server faults as errors and caller mistakes as warnings.
func levelFor(ctx context.Context, err error) *zerolog.Event {
	log := zerolog.Ctx(ctx)
	if err == nil {
		return log.Info()
	}

	switch connect.CodeOf(err) {
	case connect.CodeInternal, connect.CodeUnknown, connect.CodeDataLoss, connect.CodeUnavailable:
		return log.Error()
	case connect.CodeCanceled:
		return log.Info()
	default:
		return log.Warn()
	}
}
