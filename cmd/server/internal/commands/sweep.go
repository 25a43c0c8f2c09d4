package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/orgdir/internal/audit"
	"github.com/wolfeidau/orgdir/internal/notify"
	"github.com/wolfeidau/orgdir/internal/transfer"
)

// SweepCmd expires stale transfers once, for running from an external scheduler.
type SweepCmd struct {
	Store    StoreFlags    `embed:""`
	Transfer TransferFlags `embed:"" prefix:"transfer-"`
}

func (c *SweepCmd) Run(ctx context.Context, globals *Globals) error {
	log := setupLogging(globals)

	st, err := c.Store.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(st)

	dispatcher := notify.NewDispatcher(notify.DefaultHookTimeout)
	defer dispatcher.Wait()

	svc, err := transfer.NewService(transfer.Deps{
		Store:      st,
		OrgLog:     audit.NewLogOrgLog(log),
		Mailer:     notify.NewLogMailer(log),
		Dispatcher: dispatcher,
	}, c.Transfer.config())
	if err != nil {
		return err
	}

	n, err := svc.ExpireOld(ctx)
	if err != nil {
		return fmt.Errorf("sweep expired %d transfers before failing: %w", n, err)
	}

	log.Info().Int("expired", n).Msg("Sweep complete")
	return nil
}
