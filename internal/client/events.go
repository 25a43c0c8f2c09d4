package client

import (
	"context"
	"fmt"

	"connectrpc.com/connect"
	transferv1 "github.com/wolfeidau/orgdir/api/transfer/v1"
)

// Watch streams the caller's transfer events to fn until ctx is cancelled,
// the server closes the stream or fn returns an error. Cancellation is not
// reported as an error.
func (c *Client) Watch(ctx context.Context, fn func(*transferv1.TransferEvent) error) error {
	stream, err := c.stream.StreamEvents(ctx, connect.NewRequest(&transferv1.StreamEventsRequest{}))
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer stream.Close()

	for stream.Receive() {
		if err := fn(stream.Msg()); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	return stream.Err()
}
