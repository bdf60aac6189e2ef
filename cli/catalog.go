package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Oudwins/wocs/internals/cliutil"
	"github.com/Oudwins/wocs/internals/command"
	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/internals/timeouts"
	"github.com/Oudwins/wocs/internals/version"
	"github.com/Oudwins/wocs/sdk"
)

func newParseCmd(opts *rootOptions) *cobra.Command {
	var voice bool
	cmd := &cobra.Command{
		Use:   "parse <text...>",
		Short: "Show how a command line (or voice transcript) is classified, without creating a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			parsed := command.Parse(text)
			if voice {
				parsed = command.ParseVoice(text)
			}
			return opts.printer(cmd.OutOrStdout()).Parsed(schemas.ParseResponse{
				Type:             parsed.Type,
				Payload:          parsed.Payload,
				Raw:              parsed.Raw,
				RequiresApproval: parsed.RequiresApproval,
			})
		},
	}
	cmd.Flags().BoolVar(&voice, "voice", false, "treat the text as a speech transcript")
	return cmd
}

func newTemplatesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template"},
		Short:   "List templates and create tasks from them",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List task templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			templates, err := client.ListTemplates(ctx)
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).Templates(*templates)
		},
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			tmpl, err := client.GetTemplate(ctx, args[0])
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).Templates(schemas.TemplateListResponse{Templates: []schemas.TemplateResponse{*tmpl}})
		},
	}

	var overrides []string
	use := &cobra.Command{
		Use:   "use <id>",
		Short: "Create a task from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := cliutil.SplitAssignments(overrides)
			if err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			response, err := client.CreateFromTemplate(ctx, args[0], schemas.TemplateTaskRequest{
				Overrides:   values,
				RequestedBy: opts.actor,
			})
			if err != nil {
				return err
			}
			return printAction(opts, cmd, response)
		},
	}
	use.Flags().StringArrayVar(&overrides, "set", nil, "override a payload entry key=value (repeatable)")

	cmd.AddCommand(list, get, use)
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Task counts by status and type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			stats, err := client.Stats(ctx)
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).Stats(*stats)
		},
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the managed configuration store",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List config entries with their versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			entries, err := client.ListConfig(ctx)
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).Config(*entries)
		},
	})
	return cmd
}

func newLandingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "landing <slug>",
		Short: "List the stored versions of a landing page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			versions, err := client.LandingPageVersions(ctx, args[0])
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).LandingPages(*versions)
		},
	}
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version and, when reachable, the server version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Info()
			out := cmd.OutOrStdout()
			printer := opts.printer(out)

			baseURL := opts.baseURL()
			serverVersion := ""
			if sdk.IsRunningWithTimeout(baseURL, timeouts.Probe) {
				client := sdk.NewClient(sdk.WithBaseURL(baseURL), sdk.WithActor(opts.actor))
				ctx, cancel := requestContext(cmd)
				defer cancel()
				if v, err := client.Version(ctx); err == nil {
					serverVersion = v
				}
			}

			if printer.JSON {
				return printer.Value(struct {
					Client version.BuildInfo `json:"client"`
					Server string            `json:"server,omitempty"`
				}{info, serverVersion})
			}
			fmt.Fprintf(out, "client: %s (%s)\n", info.Version, info.GoVersion)
			if serverVersion != "" {
				fmt.Fprintf(out, "server: %s\n", serverVersion)
			}
			return nil
		},
	}
}
