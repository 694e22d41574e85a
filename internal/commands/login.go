package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bit2swaz/tmpsweep/internal/auth"
)

func newLoginCommand() *cobra.Command {
	var server, token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Remember a tmpsweepd address and token for remote commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			if err := auth.Save(auth.Credentials{Server: server, Token: token}); err != nil {
				logError(cmd.ErrOrStderr(), err.Error())
				return newExitError(exitConfig, err)
			}
			path, _ := auth.Path()
			logSuccess(cmd.OutOrStdout(), fmt.Sprintf("Saved credentials for %s to %s", server, path))
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:9102", "tmpsweepd base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (server.auth_token on the daemon)")
	return cmd
}
