package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	z "github.com/Oudwins/zog"
	"github.com/spf13/cobra"

	"github.com/Oudwins/wocs/internals/env"
	"github.com/Oudwins/wocs/internals/schemas"
	"github.com/Oudwins/wocs/internals/store"
	"github.com/Oudwins/wocs/wocsd/core"
)

var userRoles = []string{"operator", "admin"}

type userArgs struct {
	Name  string `zog:"name"`
	Phone string `zog:"phone"`
	Role  string `zog:"role"`
}

var userArgsSchema = z.Struct(z.Shape{
	"Name":  z.String().Required().Trim(),
	"Phone": z.String().Required().Min(6, z.Message("phone needs at least 6 digits")),
	"Role":  z.String().Default("operator").Trim().OneOf(userRoles, z.Message("role must be operator or admin")),
})

// User management writes the database directly so operators can be registered
// before the server is first started.
func newUserCmd(opts *rootOptions) *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage the operators allowed to send commands over WhatsApp",
	}
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory holding wocs.db (default WOCS_DATA_DIR)")

	withStore := func(cmd *cobra.Command, fn func(ctx context.Context, st *store.Store) error) error {
		dir := dataDir
		if dir == "" {
			dir = env.Get().DATA_DIR
		} else {
			expanded, err := env.ExpandPath(dir)
			if err != nil {
				return err
			}
			dir = expanded
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		st, err := store.Open(filepath.Join(dir, core.DBFileName))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		ctx, cancel := requestContext(cmd)
		defer cancel()
		return fn(ctx, st)
	}

	var role string
	add := &cobra.Command{
		Use:   "add <name> <phone>",
		Short: "Register an operator",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := userArgs{Name: args[0], Phone: schemas.NormalizePhone(args[1]), Role: role}
			if issues := userArgsSchema.Validate(&parsed); len(issues) > 0 {
				return fmt.Errorf("invalid arguments:\n%s", z.Issues.Prettify(issues))
			}
			return withStore(cmd, func(ctx context.Context, st *store.Store) error {
				user, err := st.CreateUser(ctx, parsed.Name, parsed.Phone, parsed.Role)
				if err != nil {
					return err
				}
				return opts.printer(cmd.OutOrStdout()).Users([]store.User{*user})
			})
		},
	}
	add.Flags().StringVar(&role, "role", "operator", "operator or admin")

	list := &cobra.Command{
		Use:   "list",
		Short: "List operators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st *store.Store) error {
				users, err := st.ListUsers(ctx)
				if err != nil {
					return err
				}
				return opts.printer(cmd.OutOrStdout()).Users(users)
			})
		},
	}

	setActive := func(use, short string, active bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <phone>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				phone := schemas.NormalizePhone(args[0])
				return withStore(cmd, func(ctx context.Context, st *store.Store) error {
					if err := st.SetUserActive(ctx, phone, active); err != nil {
						return err
					}
					user, err := st.GetUserByPhone(ctx, phone)
					if err != nil {
						return err
					}
					return opts.printer(cmd.OutOrStdout()).Users([]store.User{*user})
				})
			},
		}
	}

	cmd.AddCommand(
		add,
		list,
		setActive("activate", "Allow an operator to send commands again", true),
		setActive("deactivate", "Stop accepting commands from an operator", false),
	)
	return cmd
}
