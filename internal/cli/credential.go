package cli

import (
	"context"

	"github.com/shamank/snet-custody-go/pkg/credential"
	"github.com/shamank/snet-custody-go/pkg/sdk"
	"github.com/spf13/cobra"
)

// CredentialOptions holds flags for the credential commands.
type CredentialOptions struct {
	*RootOptions
	Tenant     string
	Actor      string
	AccountID  string
	PrivateKey string
	Network    string
}

// NewCredentialCommand manages a tenant's stored ledger credential.
func NewCredentialCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CredentialOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Store, inspect and deactivate tenant ledger credentials",
	}
	cmd.PersistentFlags().StringVar(&opts.Tenant, "tenant", "", "tenant id")
	cmd.PersistentFlags().StringVar(&opts.Actor, "actor", "cli", "recorded as created_by/updated_by")
	_ = cmd.MarkPersistentFlagRequired("tenant")

	put := &cobra.Command{
		Use:   "put",
		Short: "Encrypt and store the tenant's account key, replacing any previous one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := credential.Secret{
				AccountID:  opts.AccountID,
				PrivateKey: envOr(opts.RootOptions, opts.PrivateKey, "TENANT_PRIVATE_KEY"),
				Network:    opts.Network,
			}
			return withCore(cmd, opts.RootOptions, func(ctx context.Context, core *sdk.Core) error {
				rec, err := core.UpsertCredential(ctx, opts.Tenant, secret, opts.Actor)
				if err != nil {
					return err
				}
				return newFormatter(cmd, opts.RootOptions).Success(rec)
			})
		},
	}
	put.Flags().StringVar(&opts.AccountID, "account-id", "", "account address")
	put.Flags().StringVar(&opts.PrivateKey, "private-key", "", "hex private key (default $TENANT_PRIVATE_KEY)")
	put.Flags().StringVar(&opts.Network, "network", "", "main, test or preview (default: configured network)")
	_ = put.MarkFlagRequired("account-id")

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the tenant's credential record without the secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, opts.RootOptions, func(ctx context.Context, core *sdk.Core) error {
				rec, err := core.CredentialRecord(ctx, opts.Tenant)
				if err != nil {
					return err
				}
				return newFormatter(cmd, opts.RootOptions).Success(rec)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete",
		Short: "Deactivate the tenant's credential; the operator account signs afterwards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, opts.RootOptions, func(ctx context.Context, core *sdk.Core) error {
				if err := core.DeactivateCredential(ctx, opts.Tenant, opts.Actor); err != nil {
					return err
				}
				return newFormatter(cmd, opts.RootOptions).Success(map[string]string{"tenant_id": opts.Tenant, "status": string(credential.StatusInactive)})
			})
		},
	}

	cmd.AddCommand(put, get, del)
	return cmd
}
