package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Oudwins/wocs/internals/cliutil"
	"github.com/Oudwins/wocs/internals/env"
	"github.com/Oudwins/wocs/internals/term"
	"github.com/Oudwins/wocs/wocsd/core"
	"github.com/Oudwins/wocs/wocsd/server"
)

func newServeCmd() *cobra.Command {
	var detach bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, webhook, queue consumers and scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if detach {
				e := env.Get()
				if err := cliutil.StartDaemon(e.BASE_URL, e.DATA_DIR); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wocs serving at %s\n", term.ClickableLink(e.BASE_URL, e.BASE_URL))
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, core.New())
		},
	}
	cmd.Flags().BoolVar(&detach, "detach", false, "start the server in the background and return once it answers")
	return cmd
}

// serve runs the base server loops and the HTTP server until ctx is cancelled
// or one of them fails.
func serve(ctx context.Context, base *core.BaseServer) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return base.Run(ctx) })
	g.Go(func() error { return server.New(base).Serve(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return errors.Join(err, base.Close())
}
