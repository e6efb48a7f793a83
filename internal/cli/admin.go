package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func (r *runner) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.with(cmd, func(ctx context.Context, svc *Services) error {
				if svc.Migrate == nil {
					return errors.New("no database configured, set DB_HOST")
				}
				applied, err := svc.Migrate(ctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(applied) == 0 {
					fmt.Fprintln(out, "schema up to date")
					return nil
				}
				for _, name := range applied {
					fmt.Fprintf(out, "%s %s\n", okColor.Sprint("applied"), name)
				}
				return nil
			})
		},
	}
}

func (r *runner) tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <userId>",
		Short: "Mint an access token for local API testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(_ context.Context, svc *Services) error {
				token, expiresAt, err := svc.Tokens.GenerateAccessToken(args[0], ttl)
				if err != nil {
					return err
				}
				if r.asJSON {
					return r.printJSON(cmd.OutOrStdout(), map[string]any{
						"accessToken": token,
						"expiresAt":   expiresAt,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	return cmd
}
