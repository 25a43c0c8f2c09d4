package client

import (
	"context"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	transferv1 "github.com/wolfeidau/orgdir/api/transfer/v1"
	"github.com/wolfeidau/orgdir/internal/models"
)

// ListOptions filters an organization's transfer history.
type ListOptions struct {
	Status models.TransferStatus
	Limit  int
	Offset int
}

// Initiate starts a transfer of orgID to toUserID.
func (c *Client) Initiate(ctx context.Context, orgID, toUserID uuid.UUID, reason string) (*transferv1.Transfer, error) {
	resp, err := c.rpc.InitiateTransfer(ctx, connect.NewRequest(&transferv1.InitiateTransferRequest{
		OrgID:    orgID,
		ToUserID: toUserID,
		Reason:   reason,
	}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Transfer, nil
}

// ListTransfers returns an organization's transfers, newest first.
func (c *Client) ListTransfers(ctx context.Context, orgID uuid.UUID, opts ListOptions) ([]*transferv1.Transfer, error) {
	req := &transferv1.ListTransfersRequest{OrgID: orgID, Limit: opts.Limit, Offset: opts.Offset}
	if opts.Status != 0 {
		req.Status = opts.Status.String()
	}

	resp, err := c.rpc.ListTransfers(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Transfers, nil
}

// Pending returns the pending transfers the caller sent or received.
func (c *Client) Pending(ctx context.Context) ([]*transferv1.Transfer, error) {
	resp, err := c.rpc.ListPendingTransfers(ctx, connect.NewRequest(&transferv1.ListPendingTransfersRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Transfers, nil
}

func (c *Client) GetTransfer(ctx context.Context, transferID uuid.UUID) (*transferv1.Transfer, error) {
	resp, err := c.rpc.GetTransfer(ctx, connect.NewRequest(&transferv1.GetTransferRequest{TransferID: transferID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Transfer, nil
}

func (c *Client) Accept(ctx context.Context, transferID uuid.UUID) (*transferv1.Transfer, error) {
	return c.transition(ctx, c.rpc.AcceptTransfer, transferID, "")
}

func (c *Client) Reject(ctx context.Context, transferID uuid.UUID, reason string) (*transferv1.Transfer, error) {
	return c.transition(ctx, c.rpc.RejectTransfer, transferID, reason)
}

func (c *Client) Cancel(ctx context.Context, transferID uuid.UUID, reason string) (*transferv1.Transfer, error) {
	return c.transition(ctx, c.rpc.CancelTransfer, transferID, reason)
}

type transitionRPC func(context.Context, *connect.Request[transferv1.TransitionRequest]) (*connect.Response[transferv1.TransferResponse], error)

func (c *Client) transition(ctx context.Context, rpc transitionRPC, transferID uuid.UUID, reason string) (*transferv1.Transfer, error) {
	resp, err := rpc(ctx, connect.NewRequest(&transferv1.TransitionRequest{TransferID: transferID, Reason: reason}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Transfer, nil
}

// AuditLog returns a transfer's audit entries, oldest first.
func (c *Client) AuditLog(ctx context.Context, transferID uuid.UUID) ([]*transferv1.AuditEntry, error) {
	resp, err := c.rpc.GetAuditLog(ctx, connect.NewRequest(&transferv1.GetAuditLogRequest{TransferID: transferID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Entries, nil
}

// Access returns the caller's resolved access to orgID.
func (c *Client) Access(ctx context.Context, orgID uuid.UUID) (*transferv1.Access, error) {
	resp, err := c.rpc.GetAccess(ctx, connect.NewRequest(&transferv1.GetAccessRequest{OrgID: orgID}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Access, nil
}
