package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgdir/internal/auth"
	"github.com/wolfeidau/orgdir/internal/models"
)

// TokenCmd mints a bearer token accepted by the serve command.
type TokenCmd struct {
	UserID     string        `arg:"" help:"user ID the token identifies"`
	SystemRole string        `help:"system_role claim" default:"user" enum:"user,admin,superuser"`
	TTL        time.Duration `help:"token lifetime" default:"24h"`
	JWTSecret  string        `help:"HMAC secret shared with the server" required:"" env:"ORGDIR_JWT_SECRET"`

	out io.Writer
}

func (c *TokenCmd) Run(globals *Globals) error {
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return fmt.Errorf("invalid user ID: %w", err)
	}

	token, err := auth.IssueToken(c.JWTSecret, userID, models.SystemRole(c.SystemRole), c.TTL)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	out := c.out
	if out == nil {
		out = os.Stdout
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
