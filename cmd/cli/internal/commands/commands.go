package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	transferv1 "github.com/wolfeidau/orgdir/api/transfer/v1"
	"github.com/wolfeidau/orgdir/internal/client"
	"github.com/wolfeidau/orgdir/internal/logger"
)

type Globals struct {
	Debug   bool
	Version string

	out io.Writer
}

func (g *Globals) stdout() io.Writer {
	if g.out == nil {
		return os.Stdout
	}
	return g.out
}

// ClientFlags configure the API connection shared by every command.
type ClientFlags struct {
	Server  string        `help:"Server URL" default:"http://localhost:8080" env:"ORGDIR_SERVER"`
	Token   string        `help:"Bearer token for authentication" required:"" env:"ORGDIR_TOKEN"`
	Timeout time.Duration `help:"Request timeout" default:"30s"`
}

func (f ClientFlags) client(ctx context.Context, globals *Globals) (*client.Client, error) {
	log.Logger = logger.Setup(globals.Debug)
	log.Debug().Str("server", f.Server).Msg("Connecting to orgdir")

	c, err := client.New(ctx, client.Config{
		ServerURL: f.Server,
		Token:     f.Token,
		Timeout:   f.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return c, nil
}

func printTransfers(w io.Writer, transfers []*transferv1.Transfer) error {
	if len(transfers) == 0 {
		_, err := fmt.Fprintln(w, "No transfers found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRANSFER ID\tORGANIZATION\tFROM\tTO\tSTATUS\tDIRECTION\tEXPIRES AT")
	for _, t := range transfers {
		direction := t.Direction
		if direction == "" {
			direction = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.TransferID, t.OrgID, t.FromUserID, t.ToUserID,
			strings.ToUpper(t.Status.String()), direction,
			t.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func printTransfer(w io.Writer, t *transferv1.Transfer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Transfer:\t%s\n", t.TransferID)
	fmt.Fprintf(tw, "Organization:\t%s\n", t.OrgID)
	fmt.Fprintf(tw, "From:\t%s\n", t.FromUserID)
	fmt.Fprintf(tw, "To:\t%s\n", t.ToUserID)
	fmt.Fprintf(tw, "Status:\t%s\n", strings.ToUpper(t.Status.String()))
	if t.Reason != "" {
		fmt.Fprintf(tw, "Reason:\t%s\n", t.Reason)
	}
	if t.CancellationReason != nil {
		fmt.Fprintf(tw, "Closing reason:\t%s\n", *t.CancellationReason)
	}
	fmt.Fprintf(tw, "Initiated:\t%s\n", t.InitiatedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(tw, "Expires:\t%s\n", t.ExpiresAt.Local().Format(time.RFC3339))
	if t.CompletedAt != nil {
		fmt.Fprintf(tw, "Completed:\t%s\n", t.CompletedAt.Local().Format(time.RFC3339))
	}
	return tw.Flush()
}
