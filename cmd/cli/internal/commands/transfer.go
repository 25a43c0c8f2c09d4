package commands

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	transferv1 "github.com/wolfeidau/orgdir/api/transfer/v1"
	"github.com/wolfeidau/orgdir/internal/client"
)

type TransferCmd struct {
	Initiate InitiateCmd `cmd:"" help:"Offer ownership of an organization to another user"`
	Accept   AcceptCmd   `cmd:"" help:"Accept a transfer addressed to you"`
	Reject   RejectCmd   `cmd:"" help:"Decline a transfer addressed to you"`
	Cancel   CancelCmd   `cmd:"" help:"Withdraw a transfer you initiated"`
	Get      GetCmd      `cmd:"" help:"Show a transfer"`
	List     ListCmd     `cmd:"" help:"List an organization's transfers"`
	Pending  PendingCmd  `cmd:"" help:"List pending transfers you sent or received"`
	Audit    AuditCmd    `cmd:"" help:"Show a transfer's audit log"`
}

type InitiateCmd struct {
	ClientFlags `embed:""`
	OrgID       uuid.UUID `arg:"" help:"Organization ID"`
	ToUserID    uuid.UUID `arg:"" help:"User ID of the new owner"`
	Reason      string    `help:"Reason shown to the recipient"`
}

func (c *InitiateCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := c.client(ctx, globals)
	if err != nil {
		return err
	}

	t, err := api.Initiate(ctx, c.OrgID, c.ToUserID, c.Reason)
	if err != nil {
		return fmt.Errorf("failed to initiate transfer: %w", err)
	}
	return printTransfer(globals.stdout(), t)
}

// TransitionFlags are shared by accept, reject and cancel.
type TransitionFlags struct {
	ClientFlags `embed:""`
	TransferID  uuid.UUID `arg:"" help:"Transfer ID"`
}

func (f *TransitionFlags) run(ctx context.Context, globals *Globals, action string, fn func(*client.Client) (*transferv1.Transfer, error)) error {
	api, err := f.client(ctx, globals)
	if err != nil {
		return err
	}

	t, err := fn(api)
	if err != nil {
		return fmt.Errorf("failed to %s transfer: %w", action, err)
	}
	return printTransfer(globals.stdout(), t)
}

type AcceptCmd struct {
	TransitionFlags `embed:""`
}

func (c *AcceptCmd) Run(ctx context.Context, globals *Globals) error {
	return c.run(ctx, globals, "accept", func(api *client.Client) (*transferv1.Transfer, error) {
		return api.Accept(ctx, c.TransferID)
	})
}

type RejectCmd struct {
	TransitionFlags `embed:""`
	Reason          string `help:"Optional reason recorded in the audit log"`
}

func (c *RejectCmd) Run(ctx context.Context, globals *Globals) error {
	return c.run(ctx, globals, "reject", func(api *client.Client) (*transferv1.Transfer, error) {
		return api.Reject(ctx, c.TransferID, c.Reason)
	})
}

type CancelCmd struct {
	TransitionFlags `embed:""`
	Reason          string `help:"Why the transfer is withdrawn" required:""`
}

func (c *CancelCmd) Run(ctx context.Context, globals *Globals) error {
	return c.run(ctx, globals, "cancel", func(api *client.Client) (*transferv1.Transfer, error) {
		return api.Cancel(ctx, c.TransferID, c.Reason)
	})
}

type GetCmd struct {
	ClientFlags `embed:""`
	TransferID  uuid.UUID `arg:"" help:"Transfer ID"`
}

func (c *GetCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := c.client(ctx, globals)
	if err != nil {
		return err
	}

	t, err := api.GetTransfer(ctx, c.TransferID)
	if err != nil {
		return fmt.Errorf("failed to get transfer: %w", err)
	}
	return printTransfer(globals.stdout(), t)
}

type ListCmd struct {
	ClientFlags `embed:""`
	OrgID       uuid.UUID `arg:"" help:"Organization ID"`
	Status      string    `help:"Status to filter by (pending, accepted, rejected, cancelled or expired)" default:""`
	Limit       int       `help:"Maximum number of transfers" default:"20"`
	Offset      int       `help:"Number of transfers to skip" default:"0"`
}

func (c *ListCmd) Run(ctx context.Context, globals *Globals) error {
	opts := client.ListOptions{Limit: c.Limit, Offset: c.Offset}
	if c.Status != "" {
		if err := opts.Status.UnmarshalText([]byte(c.Status)); err != nil {
			return err
		}
	}

	api, err := c.client(ctx, globals)
	if err != nil {
		return err
	}

	transfers, err := api.ListTransfers(ctx, c.OrgID, opts)
	if err != nil {
		return fmt.Errorf("failed to list transfers: %w", err)
	}
	return printTransfers(globals.stdout(), transfers)
}

type PendingCmd struct {
	ClientFlags `embed:""`
}

func (c *PendingCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := c.client(ctx, globals)
	if err != nil {
		return err
	}

	transfers, err := api.Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending transfers: %w", err)
	}
	return printTransfers(globals.stdout(), transfers)
}

type AuditCmd struct {
	ClientFlags `embed:""`
	TransferID  uuid.UUID `arg:"" help:"Transfer ID"`
}

func (c *AuditCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := c.client(ctx, globals)
	if err != nil {
		return err
	}

	entries, err := api.AuditLog(ctx, c.TransferID)
	if err != nil {
		return fmt.Errorf("failed to get audit log: %w", err)
	}

	tw := tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tACTION\tACTOR\tROLE\tDETAILS")
	for _, e := range entries {
		actor := "system"
		if e.ActorID != nil {
			actor = e.ActorID.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(time.RFC3339),
			e.Action, actor, e.ActorRole, formatMetadata(e.Metadata))
	}
	return tw.Flush()
}

func formatMetadata(md map[string]string) string {
	if len(md) == 0 {
		return "-"
	}

	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+md[k])
	}
	return strings.Join(parts, " ")
}
