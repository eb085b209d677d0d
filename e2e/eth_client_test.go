//go:build e2e

package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shamank/snet-custody-go/pkg/blockchain"
	"github.com/shamank/snet-custody-go/pkg/config"
	"github.com/shamank/snet-custody-go/pkg/model"
	"github.com/shamank/snet-custody-go/pkg/sdk"
)

func TestETHClientChainID(t *testing.T) {
	rpc := os.Getenv("ETH_RPC_URL")
	if rpc == "" {
		t.Skip("ETH_RPC_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cli, err := blockchain.Dial(ctx, rpc, config.Network{}, config.Timeouts{})
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer cli.Close()
	if cli.ChainID == nil || cli.ChainID.Sign() == 0 {
		t.Fatalf("unexpected chain id %v", cli.ChainID)
	}
	if _, err := cli.GetCurrentBlockNumberCtx(ctx); err != nil {
		t.Fatalf("block number: %v", err)
	}
}

// TestOperatorSubmitMessage needs a funded operator account on the node
// behind RPC_ADDR, e.g. a local anvil with its first dev key.
func TestOperatorSubmitMessage(t *testing.T) {
	if os.Getenv("RPC_ADDR") == "" || os.Getenv("OPERATOR_PRIVATE_KEY") == "" {
		t.Skip("RPC_ADDR and OPERATOR_PRIVATE_KEY not set")
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	core, err := sdk.New(ctx, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer core.Close()

	res, err := core.SubmitMessage(ctx, model.SubmitMessageRequest{
		TopicID: cfg.Operator.AccountID,
		Message: "e2e " + time.Now().UTC().Format(time.RFC3339),
	}, "")
	if err != nil {
		t.Fatalf("SubmitMessage: %v", err)
	}
	if res.Status != blockchain.StatusSuccess {
		t.Fatalf("status = %s (tx %s)", res.Status, res.TxID)
	}
}
