package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgdir/internal/apperr"
	"github.com/wolfeidau/orgdir/internal/auth"
	httpmiddleware "github.com/wolfeidau/orgdir/internal/http"
	"github.com/wolfeidau/orgdir/internal/transfer"
)

// connectError converts a service error to a connect error carrying the
// code of its kind. Internal causes are logged and never sent to the caller.
func connectError(ctx context.Context, err error) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		zerolog.Ctx(ctx).Error().Err(err).Msg("Request failed")
	}

	return connect.NewError(apperr.CodeOf(err), errors.New(apperr.MessageOf(err)))
}

func requireID(id uuid.UUID, name string) error {
	if id == uuid.Nil {
		return connect.NewError(connect.CodeInvalidArgument, errors.New(name+" is required"))
	}
	return nil
}

// caller returns the authenticated user. The auth middleware guarantees one
// on every RPC.
func caller(ctx context.Context) uuid.UUID {
	identity := auth.IdentityFromContext(ctx)
	if identity == nil {
		return uuid.Nil
	}
	return identity.UserID
}

func client(ctx context.Context) transfer.Client {
	info := httpmiddleware.ClientInfoFromContext(ctx)
	return transfer.Client{IPAddress: info.IPAddress, UserAgent: info.UserAgent}
}
