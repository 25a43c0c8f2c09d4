package server

import (
	"context"

	"connectrpc.com/connect"
	"github.com/rs/zerolog"
	transferv1 "github.com/wolfeidau/orgdir/api/transfer/v1"
)

// StreamEvents sends the caller's transfer events until the client goes
// away or the server shuts down. Events published while the client is
// disconnected are not replayed.
func (s *Server) StreamEvents(ctx context.Context, req *connect.Request[transferv1.StreamEventsRequest], stream *connect.ServerStream[transferv1.TransferEvent]) error {
	events, cancel := s.hub.Subscribe(caller(ctx))
	defer cancel()

	zerolog.Ctx(ctx).Debug().Msg("Event stream opened")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.closing:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}

			err := stream.Send(&transferv1.TransferEvent{
				Type:         ev.Type,
				TransferID:   ev.TransferID,
				OrgID:        ev.OrgID,
				TargetUserID: ev.TargetUserID,
				ActorID:      ev.ActorID,
				Status:       ev.Status,
				At:           ev.At,
			})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}
