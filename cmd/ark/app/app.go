// Package app builds the ark command.
package app

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/kart-io/ark/cmd/ark/app/options"
	"github.com/kart-io/ark/internal/ark"
	"github.com/kart-io/ark/pkg/infra/app"
)

const commandDesc = `Ark is the core of a MongoDB desktop client.

It keeps saved connections with encrypted passwords, opens SSH tunnels,
caches live driver handles and evaluates shell scripts with paginated
results and CSV or JSON exports. The UI talks to it over a loopback
HTTP bridge: POST /api/v1/<library>/<action>.`

// NewApp creates the ark application.
func NewApp() *app.App {
	opts := options.NewServerOptions()

	return app.NewApp(
		app.WithName(ark.Name),
		app.WithShortDescription("MongoDB desktop client core"),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithArgs(cobra.NoArgs),
		app.WithRunFunc(func() error {
			return run(opts)
		}),
	)
}

func run(opts *options.ServerOptions) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}

	srv, err := cfg.NewServer(context.Background())
	if err != nil {
		return err
	}
	return srv.Run()
}
