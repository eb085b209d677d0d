package cli

import (
	"context"

	"github.com/shamank/snet-custody-go/pkg/blockchain"
	"github.com/shamank/snet-custody-go/pkg/faults"
	"github.com/shamank/snet-custody-go/pkg/payment"
	"github.com/shamank/snet-custody-go/pkg/sdk"
	"github.com/spf13/cobra"
)

// NewPaymentCommand signs, verifies and settles X-PAYMENT headers.
func NewPaymentCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Sign, verify and settle payment headers",
	}

	var (
		key string
		p   payment.Payload
	)
	sign := &cobra.Command{
		Use:   "sign",
		Short: "Sign a payment and print the X-PAYMENT header value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, pk, err := blockchain.ParsePrivateKeyECDSA(envOr(opts, key, "PAYER_PRIVATE_KEY"))
			if err != nil {
				return faults.New(faults.KindInvalidInput, "cli.payment.sign", "pass --key or set PAYER_PRIVATE_KEY", err)
			}
			signed, err := payment.Sign(p, pk)
			if err != nil {
				return faults.New(faults.KindInvalidInput, "cli.payment.sign", "", err)
			}
			header, err := payment.EncodeHeader(signed)
			if err != nil {
				return err
			}
			return newFormatter(cmd, opts).Success(map[string]any{"header": header, "payload": signed})
		},
	}
	sign.Flags().StringVar(&key, "key", "", "payer private key (default $PAYER_PRIVATE_KEY)")
	sign.Flags().StringVar(&p.Network, "network", "test", "payment network")
	sign.Flags().StringVar(&p.Amount, "amount", "", "amount in smallest units")
	sign.Flags().StringVar(&p.Token, "token", "", "token address")
	sign.Flags().StringVar(&p.SessionID, "session", "", "session id")
	_ = sign.MarkFlagRequired("amount")
	_ = sign.MarkFlagRequired("token")

	var resource string
	check := func(settle bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			p, err := payment.DecodePayload(args[0])
			if err != nil {
				return faults.New(faults.KindInvalidInput, "cli.payment", "pass the base64 X-PAYMENT value", err)
			}
			return withCore(cmd, opts, func(ctx context.Context, core *sdk.Core) error {
				req, ok := core.Requirement(resource)
				if !ok {
					return faults.Newf(faults.KindConfig, "cli.payment", "set PAYMENT_PAY_TO", "no payment requirement for %q", resource)
				}
				if settle {
					s, err := core.SettlePayment(ctx, p, req)
					if err != nil {
						return err
					}
					return newFormatter(cmd, opts).Success(s)
				}
				d, err := core.VerifyPayment(ctx, p, req)
				if err != nil {
					return err
				}
				return newFormatter(cmd, opts).Success(d)
			})
		}
	}

	verify := &cobra.Command{
		Use:   "verify <header>",
		Short: "Verify a payment against the configured requirement",
		Args:  cobra.ExactArgs(1),
		RunE:  check(false),
	}
	settle := &cobra.Command{
		Use:   "settle <header>",
		Short: "Verify and settle a payment exactly once",
		Args:  cobra.ExactArgs(1),
		RunE:  check(true),
	}
	for _, c := range []*cobra.Command{verify, settle} {
		c.Flags().StringVar(&resource, "resource", payment.DefaultResource, "resource whose requirement applies")
	}

	requirements := &cobra.Command{
		Use:   "requirements",
		Short: "Print the configured payment requirement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, opts, func(ctx context.Context, core *sdk.Core) error {
				req, ok := core.Requirement("")
				if !ok {
					return newFormatter(cmd, opts).Success([]payment.Requirement{})
				}
				return newFormatter(cmd, opts).Success([]payment.Requirement{req})
			})
		},
	}

	cmd.AddCommand(sign, verify, settle, requirements)
	return cmd
}
