package commands

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type AccessCmd struct {
	ClientFlags `embed:""`
	OrgID       uuid.UUID `arg:"" help:"Organization ID"`
}

func (c *AccessCmd) Run(ctx context.Context, globals *Globals) error {
	api, err := c.client(ctx, globals)
	if err != nil {
		return err
	}

	a, err := api.Access(ctx, c.OrgID)
	if err != nil {
		return fmt.Errorf("failed to resolve access: %w", err)
	}

	out := globals.stdout()
	if !a.HasAccess {
		_, err := fmt.Fprintf(out, "No access to organization %s\n", a.OrgID)
		return err
	}

	role := string(a.Role)
	switch {
	case a.ViaSuperuser:
		role += " (via superuser)"
	case a.IsOwner:
		role += " (true owner)"
	}
	_, err = fmt.Fprintf(out, "Organization %s: %s\n", a.OrgID, role)
	return err
}
