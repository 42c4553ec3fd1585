package cli

import (
	"errors"
	"strings"
	"time"

	"github.com/dkeye/Meet/internal/adapters/identity"
	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	var secret, issuer string
	cmd := &cobra.Command{
		Use:   "token <access-token>",
		Short: "Verify a calling access token and show its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret or MEET_IDENTITY_SECRET is required")
			}
			claims, err := identity.Verify(args[0], []byte(secret), issuer, nil)
			if err != nil {
				return err
			}
			text := renderTable([]string{"Claim", "Value"}, [][]string{
				{"Subject", string(claims.Subject)},
				{"Issuer", claims.Issuer},
				{"Scopes", strings.Join(claims.Scopes, " ")},
				{"Issued", claims.IssuedAt.Local().Format(time.DateTime)},
				{"Expires", claims.ExpiresAt.Local().Format(time.DateTime)},
			})
			return a.print(cmd.OutOrStdout(), claims, text)
		},
	}
	cmd.Flags().StringVar(&secret, "secret", a.cfg.Identity.Secret, "identity signing secret (identity.secret from config)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "expected issuer (any when empty)")
	return cmd
}
