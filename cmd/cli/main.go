package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/orgdir/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Transfer commands.TransferCmd `cmd:"" help:"Manage organization ownership transfers"`
		Access   commands.AccessCmd   `cmd:"" help:"Show your access to an organization"`
		Watch    commands.WatchCmd    `cmd:"" help:"Stream your transfer events"`
		Debug    bool                 `help:"Enable debug mode."`
		Version  kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("orgctl"),
		kong.Description("Client for the orgdir ownership transfer API."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
