package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	z "github.com/Oudwins/zog"
	"github.com/spf13/cobra"

	"github.com/Oudwins/wocs/internals/cliutil"
	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/sdk"
)

type createArgs struct {
	Type     string   `zog:"type"`
	Set      []string `zog:"set"`
	Priority int      `zog:"priority"`
	At       string   `zog:"at"`
	In       string   `zog:"in"`
	Wait     bool     `zog:"wait"`
}

var createArgsSchema = z.Struct(z.Shape{
	"Type": z.String().Optional().Trim().OneOf(taskTypeNames(), z.Message("unknown task type")),
	"At": z.String().Optional().Trim().TestFunc(func(v *string, ctx z.Ctx) bool {
		if *v == "" {
			return true
		}
		_, err := time.Parse(time.RFC3339, *v)
		return err == nil
	}, z.Message("--at must be RFC3339")),
	"In": z.String().Optional().Trim().TestFunc(func(v *string, ctx z.Ctx) bool {
		if *v == "" {
			return true
		}
		d, err := time.ParseDuration(*v)
		return err == nil && d >= 0
	}, z.Message("--in must be a non-negative duration like 90s")),
})

func taskTypeNames() []string {
	names := make([]string, 0, len(schemas.TaskTypes))
	for _, t := range schemas.TaskTypes {
		names = append(names, string(t))
	}
	return names
}

func newTaskCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create, inspect and act on tasks",
	}
	cmd.AddCommand(
		newTaskListCmd(opts),
		newTaskGetCmd(opts),
		newTaskCreateCmd(opts),
		newTaskBatchCmd(opts),
		newTaskActionCmd(opts, "approve", "Approve a task awaiting approval", func(ctx context.Context, c *sdk.Client, id string) (*schemas.ActionResponse, error) {
			return c.Approve(ctx, id)
		}),
		newTaskRejectCmd(opts),
		newTaskActionCmd(opts, "run", "Run a pending task now", func(ctx context.Context, c *sdk.Client, id string) (*schemas.ActionResponse, error) {
			return c.Run(ctx, id)
		}),
		newTaskActionCmd(opts, "rollback", "Undo a finished task", func(ctx context.Context, c *sdk.Client, id string) (*schemas.ActionResponse, error) {
			return c.Rollback(ctx, id)
		}),
		newTaskLogsCmd(opts),
		newTaskWaitCmd(opts),
	)
	return cmd
}

func newTaskListCmd(opts *rootOptions) *cobra.Command {
	var status, taskType string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			list, err := client.ListTasks(ctx, sdk.ListTasksOptions{
				Status: schemas.TaskStatus(status),
				Type:   schemas.TaskType(taskType),
				Limit:  limit,
			})
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).Tasks(*list)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&taskType, "type", "", "filter by task type")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of tasks")
	return cmd
}

func newTaskGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			task, err := client.GetTask(ctx, args[0])
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).Task(*task)
		},
	}
}

func newTaskCreateCmd(opts *rootOptions) *cobra.Command {
	parsed := createArgs{}
	var waitTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "create [command...]",
		Short: "Create a task from a command line or from --type and --set",
		Example: `  wocs task create /config key=site.theme value=dark
  wocs task create --type report --set name=weekly --in 1h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if issues := createArgsSchema.Validate(&parsed); len(issues) > 0 {
				return fmt.Errorf("invalid arguments:\n%s", z.Issues.Prettify(issues))
			}
			request, err := buildCreateRequest(parsed, strings.Join(args, " "), cmd.Flags().Changed("priority"), time.Now())
			if err != nil {
				return err
			}
			request.RequestedBy = opts.actor

			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			response, err := client.CreateTask(ctx, request)
			if err != nil {
				return err
			}
			printer := opts.printer(cmd.OutOrStdout())
			if err := printer.Action(*response); err != nil {
				return err
			}
			if !response.OK {
				return errRefused
			}
			if parsed.Wait && response.Task != nil {
				final, err := waitForTask(cmd.Context(), client, response.Task.ID, waitTimeout)
				if err != nil {
					return err
				}
				return printer.Task(*final)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&parsed.Type, "type", "", "task type when no command line is given")
	cmd.Flags().StringArrayVar(&parsed.Set, "set", nil, "payload entry key=value (repeatable)")
	cmd.Flags().IntVar(&parsed.Priority, "priority", 0, "task priority, higher runs first")
	cmd.Flags().StringVar(&parsed.At, "at", "", "run at an RFC3339 time")
	cmd.Flags().StringVar(&parsed.In, "in", "", "run after a delay such as 10m")
	cmd.Flags().BoolVar(&parsed.Wait, "wait", false, "wait until the task settles")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 2*time.Minute, "how long --wait polls")
	return cmd
}

// errRefused marks a command whose request the server answered with ok=false.
// The server's message has already been printed.
var errRefused = errors.New("request refused")

func buildCreateRequest(parsed createArgs, line string, priorityChanged bool, now time.Time) (schemas.TaskCreateRequest, error) {
	request := schemas.TaskCreateRequest{Command: strings.TrimSpace(line)}
	if request.Command == "" && parsed.Type == "" {
		return request, errors.New("give a command line or --type")
	}
	if request.Command != "" && parsed.Type != "" {
		return request, errors.New("--type cannot be combined with a command line")
	}
	if parsed.At != "" && parsed.In != "" {
		return request, errors.New("--at and --in are mutually exclusive")
	}
	if len(parsed.Set) > 0 {
		payload, err := cliutil.SplitAssignments(parsed.Set)
		if err != nil {
			return request, err
		}
		request.Payload = payload
	}
	request.Type = schemas.TaskType(parsed.Type)
	if priorityChanged {
		priority := parsed.Priority
		request.Priority = &priority
	}
	switch {
	case parsed.At != "":
		request.ScheduledAt = parsed.At
	case parsed.In != "":
		delay, err := time.ParseDuration(parsed.In)
		if err != nil {
			return request, err
		}
		request.ScheduledAt = now.Add(delay).UTC().Format(time.RFC3339)
	}
	return request, nil
}

func newTaskBatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <command> [command...]",
		Short: "Create several tasks, one per quoted command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			response, err := client.CreateBatch(ctx, schemas.BatchCreateRequest{Commands: args, RequestedBy: opts.actor})
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).Batch(*response)
		},
	}
}

type taskAction func(ctx context.Context, client *sdk.Client, id string) (*schemas.ActionResponse, error)

func newTaskActionCmd(opts *rootOptions, use, short string, action taskAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			response, err := action(ctx, client, args[0])
			if err != nil {
				return err
			}
			return printAction(opts, cmd, response)
		},
	}
}

func newTaskRejectCmd(opts *rootOptions) *cobra.Command {
	var reason string
	cmd := newTaskActionCmd(opts, "reject", "Reject a task awaiting approval", func(ctx context.Context, c *sdk.Client, id string) (*schemas.ActionResponse, error) {
		return c.Reject(ctx, id, reason)
	})
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the task")
	return cmd
}

func printAction(opts *rootOptions, cmd *cobra.Command, response *schemas.ActionResponse) error {
	if err := opts.printer(cmd.OutOrStdout()).Action(*response); err != nil {
		return err
	}
	if !response.OK {
		return errRefused
	}
	return nil
}

func newTaskLogsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logs <id>",
		Short: "Show a task's audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := requestContext(cmd)
			defer cancel()
			logs, err := client.TaskLogs(ctx, args[0])
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).Logs(*logs)
		},
	}
}

func newTaskWaitCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "wait <id>",
		Short: "Poll a task until it is done, failed, cancelled or rolled back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			task, err := waitForTask(cmd.Context(), client, args[0], timeout)
			if err != nil {
				return err
			}
			return opts.printer(cmd.OutOrStdout()).Task(*task)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "give up after this long")
	return cmd
}

var waitPollInterval = time.Second

func waitForTask(ctx context.Context, client *sdk.Client, id string, timeout time.Duration) (*schemas.TaskResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()
	for {
		task, err := client.GetTask(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("timed out waiting for task %s", id)
			}
			return nil, err
		}
		if task.Status.Terminal() || task.Status == schemas.TaskStatusFailed {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for task %s", id)
		case <-ticker.C:
		}
	}
}
