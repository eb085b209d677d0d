// Package cli implements the snet-custody command line.
package cli

import (
	"context"
	"fmt"

	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/sdk"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CoreFactory builds a Core from a loaded configuration.
type CoreFactory func(ctx context.Context, cfg *config.Config) (*sdk.Core, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Debug      bool
	Format     string // "json" | "text"

	// NewCore builds the core for commands that need one. Tests replace it.
	NewCore CoreFactory
	// LoadConfig reads the configuration. Tests replace it.
	LoadConfig func(path string) (*config.Config, error)

	env *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

func defaultCore(ctx context.Context, cfg *config.Config) (*sdk.Core, error) {
	return sdk.New(ctx, cfg)
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWith(&RootOptions{NewCore: defaultCore, LoadConfig: config.Load})
}

// NewRootCommandWith creates the root command around opts.
func NewRootCommandWith(opts *RootOptions) *cobra.Command {
	if opts.NewCore == nil {
		opts.NewCore = defaultCore
	}
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.Load
	}
	opts.env = viper.New()
	opts.env.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "snet-custody",
		Short: "Custodial signing and payment gateway for ledger tools",
		Long: `snet-custody signs and submits ledger transactions for tenants whose keys
are stored encrypted under a vault master key, offloads large payloads to
content-addressed storage and gates paid calls through a payment facilitator.

Configuration comes from environment variables (RPC_ADDR, VAULT_MASTER_KEY,
OPERATOR_ACCOUNT_ID, ...) and an optional custody_config.yaml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Debug {
				sdk.SetupLogger(true)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to custody_config.yaml")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "verbose logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "json", "output format (json|text)")

	cmd.AddCommand(NewVaultCommand(opts))
	cmd.AddCommand(NewCredentialCommand(opts))
	cmd.AddCommand(NewPayloadCommand(opts))
	cmd.AddCommand(NewSubmitMessageCommand(opts))
	cmd.AddCommand(NewTransferCommand(opts))
	cmd.AddCommand(NewCreateAccountCommand(opts))
	cmd.AddCommand(NewSubmitSignedCommand(opts))
	cmd.AddCommand(NewInvokeCommand(opts))
	cmd.AddCommand(NewPaymentCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))
	cmd.AddCommand(NewHealthCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withCore loads the configuration, builds a core, runs fn and closes it.
func withCore(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, core *sdk.Core) error) error {
	cfg, err := opts.LoadConfig(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitConfigError, "load configuration", err)
	}
	if opts.Debug {
		cfg.Debug = true
	}
	core, err := opts.NewCore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer core.Close()
	return fn(cmd.Context(), core)
}

// envOr returns the flag value when set, else the environment variable.
func envOr(opts *RootOptions, flag, env string) string {
	if flag != "" {
		return flag
	}
	return opts.env.GetString(env)
}
