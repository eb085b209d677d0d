package cli

import (
	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/vault"
	"github.com/spf13/cobra"
)

// NewVaultCommand groups the master key operations. They need only
// VAULT_MASTER_KEY, not a full configuration.
func NewVaultCommand(opts *RootOptions) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Encrypt and decrypt with the vault master key",
	}
	cmd.PersistentFlags().StringVar(&key, "master-key", "", "master key (default $VAULT_MASTER_KEY)")

	cipher := func() (*vault.Cipher, error) {
		return vault.New(config.Vault{MasterKey: envOr(opts, key, "VAULT_MASTER_KEY")})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "encrypt <plaintext>",
		Short: "Encrypt plaintext into an iv:tag:ciphertext token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cipher()
			if err != nil {
				return err
			}
			token, err := c.Encrypt(args[0])
			if err != nil {
				return err
			}
			return newFormatter(cmd, opts).Success(token)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "decrypt <token>",
		Short: "Decrypt a token produced by encrypt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cipher()
			if err != nil {
				return err
			}
			plaintext, err := c.Decrypt(args[0])
			if err != nil {
				return err
			}
			return newFormatter(cmd, opts).Success(plaintext)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "fingerprint",
		Short: "Print the fingerprint of the configured master key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cipher()
			if err != nil {
				return err
			}
			return newFormatter(cmd, opts).Success(c.Fingerprint())
		},
	})

	return cmd
}
