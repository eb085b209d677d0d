package cli

import (
	"time"

	"github.com/shamank/snet-custody-go/pkg/tenant"
	"github.com/spf13/cobra"
)

// NewTokenCommand issues tenant bearer tokens for the HTTP API.
func NewTokenCommand(opts *RootOptions) *cobra.Command {
	var (
		secret   string
		tenantID string
		subject  string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an HS256 bearer token for a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				subject = tenantID
			}
			token, err := tenant.IssueToken(envOr(opts, secret, "JWT_SECRET"), tenantID, subject, ttl)
			if err != nil {
				return err
			}
			return newFormatter(cmd, opts).Success(token)
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default $JWT_SECRET)")
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (default: tenant id)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}
