package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/shamank/snet-custody-go/pkg/faults"
	"github.com/shamank/snet-custody-go/pkg/sdk"
	"github.com/spf13/cobra"
)

// NewPayloadCommand uploads and fetches offloaded JSON payloads.
func NewPayloadCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payload",
		Short: "Upload and fetch offloaded JSON payloads",
	}

	var inline string
	upload := &cobra.Command{
		Use:   "upload [file|-]",
		Short: "Upload a JSON document and print its content id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			raw, err := readPayload(cmd, inline, file)
			if err != nil {
				return err
			}
			if raw == nil {
				return fmt.Errorf("give a file, - for stdin, or --json")
			}
			return withCore(cmd, opts, func(ctx context.Context, core *sdk.Core) error {
				id, err := core.UploadPayload(ctx, raw)
				if err != nil {
					return err
				}
				return newFormatter(cmd, opts).Success(map[string]string{
					"content_id": id.String(),
					"backend":    id.Backend,
					"hash":       id.Hash,
				})
			})
		},
	}
	upload.Flags().StringVar(&inline, "json", "", "inline JSON document")

	fetch := &cobra.Command{
		Use:   "fetch <content-id>",
		Short: "Fetch a payload by content id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCore(cmd, opts, func(ctx context.Context, core *sdk.Core) error {
				raw, err := core.FetchPayload(ctx, args[0])
				if err != nil {
					return err
				}
				return newFormatter(cmd, opts).Success(raw)
			})
		},
	}

	cmd.AddCommand(upload, fetch)
	return cmd
}

// readPayload returns inline, or the content of file ("-" reads stdin), as
// validated JSON. Both empty yields nil.
func readPayload(cmd *cobra.Command, inline, file string) (json.RawMessage, error) {
	var raw []byte
	switch {
	case inline != "":
		raw = []byte(inline)
	case file == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		raw = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, faults.Newf(faults.KindInvalidInput, "cli.payload", "", "payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
