package commands

import (
	"context"
	"fmt"
	"time"

	transferv1 "github.com/wolfeidau/orgdir/api/transfer/v1"
)

type WatchCmd struct {
	ClientFlags `embed:""`
}

func (c *WatchCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := c.client(ctx, globals)
	if err != nil {
		return err
	}

	out := globals.stdout()
	fmt.Fprintln(out, "Watching transfer events (press Ctrl+C to stop)...")

	err = api.Watch(ctx, func(ev *transferv1.TransferEvent) error {
		_, err := fmt.Fprintf(out, "[%s] %-9s transfer=%s org=%s actor=%s\n",
			ev.At.Local().Format(time.TimeOnly), ev.Status, ev.TransferID, ev.OrgID, ev.ActorID)
		return err
	})
	if err != nil {
		return fmt.Errorf("event stream failed: %w", err)
	}

	fmt.Fprintln(out, "Watch finished")
	return nil
}
