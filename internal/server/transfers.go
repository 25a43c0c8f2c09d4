package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	transferv1 "github.com/wolfeidau/orgdir/api/transfer/v1"
	"github.com/wolfeidau/orgdir/internal/models"
	"github.com/wolfeidau/orgdir/internal/store"
	"github.com/wolfeidau/orgdir/internal/transfer"
)

func (s *Server) InitiateTransfer(ctx context.Context, req *connect.Request[transferv1.InitiateTransferRequest]) (*connect.Response[transferv1.TransferResponse], error) {
	if err := requireID(req.Msg.OrgID, "org_id"); err != nil {
		return nil, err
	}
	if err := requireID(req.Msg.ToUserID, "to_user_id"); err != nil {
		return nil, err
	}

	t, err := s.transfers.Initiate(ctx, req.Msg.OrgID, caller(ctx), req.Msg.ToUserID, req.Msg.Reason, client(ctx))
	if err != nil {
		return nil, connectError(ctx, err)
	}

	return connect.NewResponse(&transferv1.TransferResponse{Transfer: toTransfer(t)}), nil
}

func (s *Server) ListTransfers(ctx context.Context, req *connect.Request[transferv1.ListTransfersRequest]) (*connect.Response[transferv1.ListTransfersResponse], error) {
	if err := requireID(req.Msg.OrgID, "org_id"); err != nil {
		return nil, err
	}

	filter := store.TransferFilter{Limit: req.Msg.Limit, Offset: req.Msg.Offset}
	if req.Msg.Status != "" {
		status, err := models.ParseTransferStatus(req.Msg.Status)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("invalid status "+req.Msg.Status))
		}
		filter.Status = status
	}

	transfers, err := s.transfers.List(ctx, req.Msg.OrgID, caller(ctx), filter)
	if err != nil {
		return nil, connectError(ctx, err)
	}

	resp := &transferv1.ListTransfersResponse{Transfers: make([]*transferv1.Transfer, 0, len(transfers))}
	for _, t := range transfers {
		resp.Transfers = append(resp.Transfers, toTransfer(t))
	}
	return connect.NewResponse(resp), nil
}

func (s *Server) ListPendingTransfers(ctx context.Context, req *connect.Request[transferv1.ListPendingTransfersRequest]) (*connect.Response[transferv1.ListTransfersResponse], error) {
	pending, err := s.transfers.PendingForUser(ctx, caller(ctx))
	if err != nil {
		return nil, connectError(ctx, err)
	}

	resp := &transferv1.ListTransfersResponse{Transfers: make([]*transferv1.Transfer, 0, len(pending))}
	for _, p := range pending {
		t := toTransfer(p.Transfer)
		t.Direction = string(p.Direction)
		resp.Transfers = append(resp.Transfers, t)
	}
	return connect.NewResponse(resp), nil
}

func (s *Server) GetTransfer(ctx context.Context, req *connect.Request[transferv1.GetTransferRequest]) (*connect.Response[transferv1.TransferResponse], error) {
	if err := requireID(req.Msg.TransferID, "transfer_id"); err != nil {
		return nil, err
	}

	t, err := s.transfers.Get(ctx, req.Msg.TransferID, caller(ctx))
	if err != nil {
		return nil, connectError(ctx, err)
	}

	return connect.NewResponse(&transferv1.TransferResponse{Transfer: toTransfer(t)}), nil
}

func (s *Server) AcceptTransfer(ctx context.Context, req *connect.Request[transferv1.TransitionRequest]) (*connect.Response[transferv1.TransferResponse], error) {
	return s.transition(ctx, req.Msg, func(ctx context.Context, transferID, userID uuid.UUID, _ string, c transfer.Client) (*models.OwnershipTransfer, error) {
		return s.transfers.Accept(ctx, transferID, userID, c)
	})
}

func (s *Server) RejectTransfer(ctx context.Context, req *connect.Request[transferv1.TransitionRequest]) (*connect.Response[transferv1.TransferResponse], error) {
	return s.transition(ctx, req.Msg, s.transfers.Reject)
}

func (s *Server) CancelTransfer(ctx context.Context, req *connect.Request[transferv1.TransitionRequest]) (*connect.Response[transferv1.TransferResponse], error) {
	return s.transition(ctx, req.Msg, s.transfers.Cancel)
}

type transitionFunc func(ctx context.Context, transferID, userID uuid.UUID, reason string, client transfer.Client) (*models.OwnershipTransfer, error)

func (s *Server) transition(ctx context.Context, msg *transferv1.TransitionRequest, fn transitionFunc) (*connect.Response[transferv1.TransferResponse], error) {
	if err := requireID(msg.TransferID, "transfer_id"); err != nil {
		return nil, err
	}

	t, err := fn(ctx, msg.TransferID, caller(ctx), msg.Reason, client(ctx))
	if err != nil {
		return nil, connectError(ctx, err)
	}

	return connect.NewResponse(&transferv1.TransferResponse{Transfer: toTransfer(t)}), nil
}

func (s *Server) GetAuditLog(ctx context.Context, req *connect.Request[transferv1.GetAuditLogRequest]) (*connect.Response[transferv1.GetAuditLogResponse], error) {
	if err := requireID(req.Msg.TransferID, "transfer_id"); err != nil {
		return nil, err
	}

	entries, err := s.transfers.AuditLog(ctx, req.Msg.TransferID, caller(ctx))
	if err != nil {
		return nil, connectError(ctx, err)
	}

	resp := &transferv1.GetAuditLogResponse{Entries: make([]*transferv1.AuditEntry, 0, len(entries))}
	for _, e := range entries {
		entry := &transferv1.AuditEntry{
			EntryID:   e.EntryID,
			Action:    e.Action,
			ActorRole: e.ActorRole,
			Metadata:  e.Metadata,
			IPAddress: e.IPAddress,
			UserAgent: e.UserAgent,
			Timestamp: e.Timestamp,
		}
		if e.ActorID != uuid.Nil {
			actor := e.ActorID
			entry.ActorID = &actor
		}
		resp.Entries = append(resp.Entries, entry)
	}
	return connect.NewResponse(resp), nil
}

func (s *Server) GetAccess(ctx context.Context, req *connect.Request[transferv1.GetAccessRequest]) (*connect.Response[transferv1.GetAccessResponse], error) {
	if err := requireID(req.Msg.OrgID, "org_id"); err != nil {
		return nil, err
	}

	userID := caller(ctx)
	a, err := s.resolver.Resolve(ctx, req.Msg.OrgID, userID)
	if err != nil {
		return nil, connectError(ctx, err)
	}

	return connect.NewResponse(&transferv1.GetAccessResponse{Access: &transferv1.Access{
		OrgID:        req.Msg.OrgID,
		UserID:       userID,
		HasAccess:    a.HasAccess,
		Role:         a.Role,
		IsOwner:      a.IsOwner,
		ViaSuperuser: a.ViaSuperuser,
	}}), nil
}

func toTransfer(t *models.OwnershipTransfer) *transferv1.Transfer {
	return &transferv1.Transfer{
		TransferID:         t.TransferID,
		OrgID:              t.OrgID,
		FromUserID:         t.FromUserID,
		ToUserID:           t.ToUserID,
		Status:             t.Status,
		Reason:             t.Reason,
		CancellationReason: t.CancellationReason,
		InitiatedAt:        t.InitiatedAt,
		ExpiresAt:          t.ExpiresAt,
		CompletedAt:        t.CompletedAt,
	}
}
