package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/orgdir/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"ORGDIR_DEBUG"`
		Version kong.VersionFlag
		Serve   commands.ServeCmd `cmd:"" default:"withargs" help:"Start the HTTP API and the expiry sweeper"`
		Sweep   commands.SweepCmd `cmd:"" help:"Expire stale pending transfers once and exit"`
		Seed    commands.SeedCmd  `cmd:"" help:"Load users, organizations and memberships from a YAML file"`
		Token   commands.TokenCmd `cmd:"" help:"Mint a bearer token for a user (development only)"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("orgdir"),
		kong.Description("Organization directory with ownership transfers."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
