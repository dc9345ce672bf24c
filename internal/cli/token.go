package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/changewatch/internal/auth"
)

func newTokenCmd(opts *options) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token for --user",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := opts.cfg.Server.JWTSecret
			if secret == "" {
				return fmt.Errorf("SERVER_JWT_SECRET is not set, the API trusts the X-User-ID header instead")
			}
			token, err := auth.MintToken(opts.userID(), secret, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(opts.out, token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	return cmd
}
