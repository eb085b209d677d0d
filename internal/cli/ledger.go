package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shamank/snet-custody-go/pkg/model"
	"github.com/shamank/snet-custody-go/pkg/sdk"
	"github.com/spf13/cobra"
)

// NewSubmitMessageCommand posts a message, or an offloaded payload, to a topic.
func NewSubmitMessageCommand(opts *RootOptions) *cobra.Command {
	var (
		tenantID    string
		req         model.SubmitMessageRequest
		payload     string
		payloadFile string
	)

	cmd := &cobra.Command{
		Use:   "submit-message",
		Short: "Submit a message to a topic",
		Long: `Submit a message to a topic.

With --payload or --payload-file the JSON document is offloaded to storage
first and its content id is submitted instead.

Example:
  snet-custody submit-message --topic 0x5B38... --payload '{"score":0.93}' --tenant acme`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readPayload(cmd, payload, payloadFile)
			if err != nil {
				return err
			}
			req.Payload = raw
			return withCore(cmd, opts, func(ctx context.Context, core *sdk.Core) error {
				res, err := core.SubmitMessage(ctx, req, tenantID)
				if err != nil {
					return err
				}
				return newFormatter(cmd, opts).Success(res)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (empty signs with the operator account)")
	cmd.Flags().StringVar(&req.TopicID, "topic", "", "topic address")
	cmd.Flags().StringVar(&req.Message, "message", "", "message text")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload to offload")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "file holding the JSON payload (- for stdin)")
	_ = cmd.MarkFlagRequired("topic")
	cmd.MarkFlagsMutuallyExclusive("message", "payload", "payload-file")
	return cmd
}

// NewTransferCommand moves coins from the tenant account.
func NewTransferCommand(opts *RootOptions) *cobra.Command {
	var (
		tenantID string
		req      model.TransferRequest
	)
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer coins to another account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, opts, func(ctx context.Context, core *sdk.Core) error {
				res, err := core.Transfer(ctx, req, tenantID)
				if err != nil {
					return err
				}
				return newFormatter(cmd, opts).Success(res)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (empty signs with the operator account)")
	cmd.Flags().StringVar(&req.To, "to", "", "recipient address")
	cmd.Flags().StringVar(&req.Amount, "amount", "", "amount in coins, e.g. 0.25")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

// NewCreateAccountCommand creates and funds a new account.
func NewCreateAccountCommand(opts *RootOptions) *cobra.Command {
	var (
		tenantID string
		req      model.CreateAccountRequest
	)
	cmd := &cobra.Command{
		Use:   "create-account",
		Short: "Create a new account funded by the signer",
		Long: `Create a new account funded by the signer.

The generated private key is only printed when DEV_MODE is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, opts, func(ctx context.Context, core *sdk.Core) error {
				res, err := core.CreateAccount(ctx, req, tenantID)
				if err != nil {
					return err
				}
				return newFormatter(cmd, opts).Success(res)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (empty signs with the operator account)")
	cmd.Flags().StringVar(&req.InitialBalance, "initial-balance", "", "coins to fund the account with")
	return cmd
}

// NewSubmitSignedCommand relays a transaction signed elsewhere.
func NewSubmitSignedCommand(opts *RootOptions) *cobra.Command {
	var (
		tenantID string
		req      model.SignedBytesRequest
	)
	cmd := &cobra.Command{
		Use:   "submit-signed",
		Short: "Submit a pre-signed transaction (base64 envelope)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, opts, func(ctx context.Context, core *sdk.Core) error {
				res, err := core.SubmitSignedBytes(ctx, req, tenantID)
				if err != nil {
					return err
				}
				return newFormatter(cmd, opts).Success(res)
			})
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (empty uses the operator connection)")
	cmd.Flags().StringVar(&req.Envelope, "envelope", "", "base64 encoded signed transaction")
	_ = cmd.MarkFlagRequired("envelope")
	return cmd
}

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Args   string
	Tenant string
}

// NewInvokeCommand runs any operation by kind with JSON arguments.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <kind>",
		Short: "Invoke an operation with JSON arguments",
		Long: fmt.Sprintf(`Invoke an operation with JSON arguments validated against its schema.

Kinds: %v

Example:
  snet-custody invoke transfer --args '{"to":"0xAb8483F64d9C6d1EcF9b849Ae677dD3315835cb2","amount":"0.1"}'`, model.Kinds()),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !json.Valid([]byte(opts.Args)) {
				return fmt.Errorf("invalid --args JSON")
			}
			return withCore(cmd, opts.RootOptions, func(ctx context.Context, core *sdk.Core) error {
				out, err := core.Invoke(ctx, args[0], []byte(opts.Args), opts.Tenant)
				if err != nil {
					return err
				}
				return newFormatter(cmd, opts.RootOptions).Success(out)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "operation arguments as JSON")
	cmd.Flags().StringVar(&opts.Tenant, "tenant", "", "tenant id")
	return cmd
}
