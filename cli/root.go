// Package cli is the wocs command tree: the server process plus thin client
// commands over the HTTP API.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Oudwins/wocs/internals/cliutil"
	"github.com/Oudwins/wocs/internals/env"
	"github.com/Oudwins/wocs/internals/timeouts"
	"github.com/Oudwins/wocs/sdk"
)

const defaultActor = "cli"

type rootOptions struct {
	server string
	actor  string
	json   bool
}

// Execute runs the command tree against os.Args and exits non-zero on error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "wocs",
		Short:         "WhatsApp ops control: queue, approve and run ops commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", "", "wocs server base URL (default from WOCS_HOST/WOCS_PORT)")
	root.PersistentFlags().StringVar(&opts.actor, "actor", defaultActor, "actor recorded in the audit log")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print raw JSON responses")

	root.AddCommand(
		newServeCmd(),
		newParseCmd(opts),
		newTaskCmd(opts),
		newTemplatesCmd(opts),
		newStatsCmd(opts),
		newConfigCmd(opts),
		newLandingCmd(opts),
		newUserCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

func (o *rootOptions) baseURL() string {
	if o.server != "" {
		return strings.TrimRight(o.server, "/")
	}
	return env.Get().BASE_URL
}

// client returns an API client after checking that a server answers.
func (o *rootOptions) client() (*sdk.Client, error) {
	client := sdk.NewClient(sdk.WithBaseURL(o.baseURL()), sdk.WithActor(o.actor))
	if err := cliutil.EnsureServer(client); err != nil {
		return nil, err
	}
	return client, nil
}

func (o *rootOptions) printer(w io.Writer) *cliutil.Printer {
	return cliutil.NewPrinter(w, o.json)
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeouts.Request)
}
