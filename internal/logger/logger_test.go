package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgdir/api/transfer/v1/transferv1connect"
)

type ping struct {
	Name string `json:"name"`
}

func TestConnectRequests(t *testing.T) {
	const procedure = "/orgdir.test.v1.PingService/Ping"

	tests := []struct {
		name    string
		err     error
		level   string
		errText string
	}{
		{name: "success", level: "info"},
		{name: "caller error", err: connect.NewError(connect.CodeNotFound, errors.New("missing")), level: "warn", errText: "not_found: missing"},
		{name: "server fault", err: connect.NewError(connect.CodeInternal, errors.New("boom")), level: "error", errText: "internal: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			var scoped bool

			handler := connect.NewUnaryHandler(procedure, func(ctx context.Context, req *connect.Request[ping]) (*connect.Response[ping], error) {
				scoped = zerolog.Ctx(ctx).GetLevel() != zerolog.Disabled
				if tt.err != nil {
					return nil, tt.err
				}
				return connect.NewResponse(&ping{Name: req.Msg.Name}), nil
			},
				connect.WithCodec(transferv1connect.Codec{}),
				connect.WithInterceptors(NewConnectRequests(zerolog.New(&buf))),
			)

			ts := httptest.NewServer(handler)
			defer ts.Close()

			client := connect.NewClient[ping, ping](ts.Client(), ts.URL+procedure, connect.WithCodec(transferv1connect.Codec{}))
			_, err := client.CallUnary(context.Background(), connect.NewRequest(&ping{Name: "orgdir"}))
			if tt.err != nil {
				require.Equal(t, connect.CodeOf(tt.err), connect.CodeOf(err))
			} else {
				require.NoError(t, err)
			}

			require.True(t, scoped)

			var line map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			require.Equal(t, tt.level, line["level"])
			require.Equal(t, procedure, line["procedure"])
			require.Equal(t, "connect", line["protocol"])
			require.Equal(t, "rpc call", line["message"])
			if tt.errText != "" {
				require.Equal(t, tt.errText, line["error"])
			}
		})
	}
}

func TestLevelForCanceled(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	levelFor(ctx, connect.NewError(connect.CodeCanceled, context.Canceled)).Msg("done")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "info", line["level"])
}
